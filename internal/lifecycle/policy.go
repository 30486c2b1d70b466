package lifecycle

import "reparto-backend/internal/models"

// Ownership binds an actor to a column of the order row.
type Ownership int

const (
	OwnAny        Ownership = iota // no binding
	OwnRestaurant                  // actor.RestaurantID == restaurante_id
	OwnCourier                     // actor.ID == repartidor_id
	OwnCustomer                    // actor.ID == usuario_id
)

// Rule says from which states a role may move an order into a target
// state. A nil From means every predecessor in the adjacency table.
type Rule struct {
	From      []models.OrderState
	Ownership Ownership
}

// Policy is the configurable part of the lifecycle.
type Policy struct {
	// ClaimableStates is the single set of states in which an unassigned
	// order may be claimed.
	ClaimableStates []models.OrderState
	// RequireAvailableCourier rejects claims from couriers marked
	// unavailable.
	RequireAvailableCourier bool
	// Transitions is keyed by target state, then role.
	Transitions map[models.OrderState]map[models.Role]Rule
}

func DefaultPolicy() Policy {
	restaurant := Rule{Ownership: OwnRestaurant}
	courier := Rule{Ownership: OwnCourier}
	operator := Rule{}

	return Policy{
		ClaimableStates:         []models.OrderState{models.StateConfirmed, models.StatePreparing, models.StateReady},
		RequireAvailableCourier: true,
		Transitions: map[models.OrderState]map[models.Role]Rule{
			models.StateConfirmed: {
				models.RoleRestaurant: restaurant,
				models.RoleAdmin:      operator,
			},
			models.StatePreparing: {
				models.RoleRestaurant: restaurant,
				models.RoleAdmin:      operator,
			},
			models.StateReady: {
				models.RoleRestaurant: restaurant,
				models.RoleAdmin:      operator,
			},
			models.StateOnTheWay: {
				models.RoleCourier: courier,
			},
			models.StateDelivered: {
				models.RoleCourier: courier,
			},
			models.StateCancelled: {
				models.RoleCustomer: {From: []models.OrderState{models.StatePending}, Ownership: OwnCustomer},
				models.RoleRestaurant: {
					From:      []models.OrderState{models.StatePending, models.StateConfirmed, models.StatePreparing, models.StateReady},
					Ownership: OwnRestaurant,
				},
				models.RoleDispatcher: operator,
				models.RoleAdmin:      operator,
			},
		},
	}
}

// allowedFrom intersects the adjacency predecessors of to with the rule.
func (r Rule) allowedFrom(to models.OrderState) []models.OrderState {
	preds := Predecessors(to)
	if r.From == nil {
		return preds
	}
	var out []models.OrderState
	for _, p := range preds {
		for _, f := range r.From {
			if p == f {
				out = append(out, p)
				break
			}
		}
	}
	return out
}

// owns reports whether actor satisfies the ownership binding for o.
func (r Rule) owns(actor models.Actor, o *models.Order) bool {
	switch r.Ownership {
	case OwnRestaurant:
		return actor.RestaurantID != "" && o.RestaurantID == actor.RestaurantID
	case OwnCourier:
		return o.AssignedTo(actor.ID)
	case OwnCustomer:
		return o.CustomerID == actor.ID
	}
	return true
}
