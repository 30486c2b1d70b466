package lifecycle

import "reparto-backend/internal/models"

// next is the adjacency table of the order lifecycle. Terminal states have
// no entry.
var next = map[models.OrderState][]models.OrderState{
	models.StatePending:   {models.StateConfirmed, models.StateCancelled},
	models.StateConfirmed: {models.StatePreparing, models.StateCancelled},
	models.StatePreparing: {models.StateReady, models.StateCancelled},
	models.StateReady:     {models.StateOnTheWay, models.StateCancelled},
	models.StateOnTheWay:  {models.StateDelivered},
}

var allowedTransitionSet = buildTransitionSet(next)

func buildTransitionSet(transitions map[models.OrderState][]models.OrderState) map[models.OrderState]map[models.OrderState]struct{} {
	set := make(map[models.OrderState]map[models.OrderState]struct{}, len(transitions))
	for from, tos := range transitions {
		n := make(map[models.OrderState]struct{}, len(tos))
		for _, to := range tos {
			n[to] = struct{}{}
		}
		set[from] = n
	}
	return set
}

// CanTransition reports whether the adjacency table allows from -> to.
func CanTransition(from, to models.OrderState) bool {
	n, ok := allowedTransitionSet[from]
	if !ok {
		return false
	}
	_, ok = n[to]
	return ok
}

// Predecessors returns the states from which to is reachable in one step,
// in lifecycle order.
func Predecessors(to models.OrderState) []models.OrderState {
	var out []models.OrderState
	for _, from := range models.AllStates {
		if CanTransition(from, to) {
			out = append(out, from)
		}
	}
	return out
}
