// Package lifecycle owns the order state machine: creation, the atomic
// courier claim and every state transition. Each mutation is a single
// conditional write in the store; rejections are diagnosed afterwards from
// a fresh read and never retried.
package lifecycle

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"reparto-backend/internal/models"
	"reparto-backend/internal/store"
)

type Service struct {
	orders   store.Orders
	couriers store.Couriers
	policy   Policy
	log      *logrus.Logger
	now      func() time.Time

	claims      metric.Int64Counter
	transitions metric.Int64Counter
}

func NewService(orders store.Orders, couriers store.Couriers, policy Policy, log *logrus.Logger) *Service {
	s := &Service{
		orders:   orders,
		couriers: couriers,
		policy:   policy,
		log:      log,
		now:      time.Now,
	}

	meter := otel.GetMeterProvider().Meter("reparto.lifecycle")
	var err error
	s.claims, err = meter.Int64Counter("order_claims_total", metric.WithDescription("Claim attempts by result"))
	if err != nil {
		log.Warnf("failed to register claim counter: %v", err)
	}
	s.transitions, err = meter.Int64Counter("order_transitions_total", metric.WithDescription("Transition attempts by target and result"))
	if err != nil {
		log.Warnf("failed to register transition counter: %v", err)
	}
	return s
}

func (s *Service) Policy() Policy { return s.policy }

// Create places a new order for a customer.
func (s *Service) Create(ctx context.Context, actor models.Actor, n store.NewOrder) (Outcome, error) {
	if actor.Role != models.RoleCustomer {
		return rejected(ReasonUnauthorized, nil), nil
	}
	n.CustomerID = actor.ID
	n.At = s.now().Unix()
	if err := n.Validate(); err != nil {
		return rejected(ReasonInvalid, nil), nil
	}

	o, err := s.orders.CreateOrder(ctx, n)
	if err != nil {
		if errors.Is(err, store.ErrInvalid) {
			return rejected(ReasonInvalid, nil), nil
		}
		return Outcome{}, errors.Wrap(err, "create order")
	}
	s.log.WithFields(logrus.Fields{"order_id": o.ID, "numero": o.Number, "restaurante_id": o.RestaurantID}).Info("🆕 Order created")
	return applied(o), nil
}

// Claim assigns orderID to the acting courier if nobody holds it yet and
// it is in a claimable state. Of any number of concurrent claims on the
// same order exactly one applies.
func (s *Service) Claim(ctx context.Context, actor models.Actor, orderID string) (Outcome, error) {
	if actor.Role != models.RoleCourier {
		s.count(ctx, s.claims, string(ReasonUnauthorized))
		return rejected(ReasonUnauthorized, nil), nil
	}

	o, ok, err := s.orders.ClaimOrder(ctx, store.Claim{
		OrderID:          orderID,
		CourierID:        actor.ID,
		ClaimableStates:  s.policy.ClaimableStates,
		RequireAvailable: s.policy.RequireAvailableCourier,
		At:               s.now().Unix(),
	})
	if err != nil {
		return Outcome{}, errors.Wrapf(err, "claim order %s", orderID)
	}
	if ok {
		s.count(ctx, s.claims, "applied")
		s.log.WithFields(logrus.Fields{"order_id": orderID, "courier_id": actor.ID}).Info("✅ Order claimed")
		return applied(o), nil
	}

	out, err := s.diagnoseClaim(ctx, actor, orderID)
	if err != nil {
		return Outcome{}, err
	}
	s.count(ctx, s.claims, string(out.Reason))
	s.log.WithFields(logrus.Fields{"order_id": orderID, "courier_id": actor.ID, "reason": out.Reason}).Info("Claim rejected")
	return out, nil
}

func (s *Service) diagnoseClaim(ctx context.Context, actor models.Actor, orderID string) (Outcome, error) {
	cur, err := s.orders.GetOrder(ctx, orderID)
	if errors.Is(err, store.ErrNotFound) {
		return rejected(ReasonNotFound, nil), nil
	}
	if err != nil {
		return Outcome{}, errors.Wrapf(err, "re-read order %s", orderID)
	}

	switch {
	case cur.AssignedTo(actor.ID):
		return rejected(ReasonConflict, cur), nil
	case cur.HasCourier():
		// lost the race; the winner's row is not visible to this courier
		return rejected(ReasonConflict, nil), nil
	case !store.Contains(s.policy.ClaimableStates, cur.State):
		return rejected(ReasonNotClaimable, cur), nil
	}

	if s.policy.RequireAvailableCourier {
		c, err := s.couriers.GetCourier(ctx, actor.ID)
		if errors.Is(err, store.ErrNotFound) || (err == nil && !c.Available) {
			return rejected(ReasonCourierUnavailable, cur), nil
		}
		if err != nil {
			return Outcome{}, errors.Wrapf(err, "read courier %s", actor.ID)
		}
	}
	// The row changed between the write and the re-read.
	return rejected(ReasonConflict, cur), nil
}

// Transition moves orderID to target when the adjacency table, the policy
// and the acting identity all allow it. The check and the write are one
// conditional update.
func (s *Service) Transition(ctx context.Context, actor models.Actor, orderID string, target models.OrderState) (Outcome, error) {
	if !target.Valid() {
		s.countTransition(ctx, target, string(ReasonInvalid))
		return rejected(ReasonInvalid, nil), nil
	}

	rule, permitted := s.policy.Transitions[target][actor.Role]
	from := rule.allowedFrom(target)
	if !permitted || len(from) == 0 {
		return s.rejectTransition(ctx, actor, orderID, target, rule, permitted)
	}

	tr := store.Transition{
		OrderID:        orderID,
		To:             target,
		From:           from,
		RequireCourier: target == models.StateOnTheWay,
		At:             s.now().Unix(),
	}
	switch rule.Ownership {
	case OwnRestaurant:
		if actor.RestaurantID == "" {
			return s.rejectTransition(ctx, actor, orderID, target, rule, false)
		}
		tr.RestaurantID = actor.RestaurantID
	case OwnCourier:
		tr.CourierID = actor.ID
	case OwnCustomer:
		tr.CustomerID = actor.ID
	}

	o, ok, err := s.orders.TransitionOrder(ctx, tr)
	if err != nil {
		return Outcome{}, errors.Wrapf(err, "transition order %s to %s", orderID, target)
	}
	if ok {
		s.countTransition(ctx, target, "applied")
		s.log.WithFields(logrus.Fields{
			"order_id": orderID,
			"estado":   target,
			"actor_id": actor.ID,
			"role":     actor.Role,
		}).Info("🔄 Order transitioned")
		return applied(o), nil
	}
	return s.rejectTransition(ctx, actor, orderID, target, rule, true)
}

// Cancel is Transition to cancelado.
func (s *Service) Cancel(ctx context.Context, actor models.Actor, orderID string) (Outcome, error) {
	return s.Transition(ctx, actor, orderID, models.StateCancelled)
}

func (s *Service) rejectTransition(ctx context.Context, actor models.Actor, orderID string, target models.OrderState, rule Rule, permitted bool) (Outcome, error) {
	cur, err := s.orders.GetOrder(ctx, orderID)
	if errors.Is(err, store.ErrNotFound) {
		s.countTransition(ctx, target, string(ReasonNotFound))
		return rejected(ReasonNotFound, nil), nil
	}
	if err != nil {
		return Outcome{}, errors.Wrapf(err, "re-read order %s", orderID)
	}

	visible := s.CanView(actor, cur)
	shown := cur
	if !visible {
		shown = nil
	}

	var reason Reason
	switch {
	case !visible:
		reason = ReasonUnauthorized
	case !CanTransition(cur.State, target):
		reason = ReasonIllegalTransition
	case target == models.StateOnTheWay && !cur.HasCourier():
		reason = ReasonIllegalTransition
	case !permitted || !rule.owns(actor, cur) || !store.Contains(rule.allowedFrom(target), cur.State):
		reason = ReasonUnauthorized
	default:
		reason = ReasonConflict
	}

	s.countTransition(ctx, target, string(reason))
	s.log.WithFields(logrus.Fields{
		"order_id": orderID,
		"estado":   cur.State,
		"target":   target,
		"actor_id": actor.ID,
		"reason":   reason,
	}).Info("Transition rejected")
	return rejected(reason, shown), nil
}

// Get returns the order if the actor may see it.
func (s *Service) Get(ctx context.Context, actor models.Actor, orderID string) (*models.Order, error) {
	o, err := s.orders.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !s.CanView(actor, o) {
		return nil, ErrForbidden
	}
	return o, nil
}

// List returns the orders visible to actor. Couriers see their own
// assignments, or with f.Unassigned the claimable board.
func (s *Service) List(ctx context.Context, actor models.Actor, f store.OrderFilter) ([]models.Order, error) {
	if f.Limit <= 0 || f.Limit > 100 {
		f.Limit = 100
	}
	switch actor.Role {
	case models.RoleCustomer:
		f.CustomerID = actor.ID
	case models.RoleRestaurant:
		if actor.RestaurantID == "" {
			return nil, ErrForbidden
		}
		f.RestaurantID = actor.RestaurantID
	case models.RoleCourier:
		if f.Unassigned {
			f.States = s.policy.ClaimableStates
			f.CourierID = ""
		} else {
			f.CourierID = actor.ID
		}
	case models.RoleDispatcher, models.RoleAdmin:
	default:
		return nil, ErrForbidden
	}
	return s.orders.ListOrders(ctx, f)
}

// CanView reports whether actor may read o.
func (s *Service) CanView(actor models.Actor, o *models.Order) bool {
	switch actor.Role {
	case models.RoleDispatcher, models.RoleAdmin:
		return true
	case models.RoleCustomer:
		return o.CustomerID == actor.ID
	case models.RoleRestaurant:
		return actor.RestaurantID != "" && o.RestaurantID == actor.RestaurantID
	case models.RoleCourier:
		if o.HasCourier() {
			return o.AssignedTo(actor.ID)
		}
		return store.Contains(s.policy.ClaimableStates, o.State)
	}
	return false
}

func (s *Service) count(ctx context.Context, c metric.Int64Counter, result string) {
	if c == nil {
		return
	}
	c.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}

func (s *Service) countTransition(ctx context.Context, target models.OrderState, result string) {
	if s.transitions == nil {
		return
	}
	s.transitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("target", string(target)),
		attribute.String("result", result),
	))
}
