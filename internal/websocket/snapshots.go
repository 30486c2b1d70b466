package websocket

import (
	"context"

	"github.com/pkg/errors"

	"reparto-backend/internal/fanout"
	"reparto-backend/internal/lifecycle"
	"reparto-backend/internal/models"
	"reparto-backend/internal/panels"
	"reparto-backend/internal/store"
	"reparto-backend/internal/tracking"
)

var ErrForbidden = errors.New("scope not visible to actor")

// FleetView is the fleet scope payload: every courier with their last
// known position, when one exists.
type FleetView struct {
	Couriers  []models.Courier         `json:"repartidores"`
	Positions []models.CourierPosition `json:"ubicaciones"`
}

// Snapshots authorizes scopes and builds the readers behind them.
type Snapshots struct {
	orders *lifecycle.Service
	track  *tracking.Service
	fleet  interface {
		store.Couriers
		store.Positions
	}
	panels *panels.Reader
}

func NewSnapshots(orders *lifecycle.Service, track *tracking.Service, st store.Store, reader *panels.Reader) *Snapshots {
	return &Snapshots{orders: orders, track: track, fleet: st, panels: reader.Uncached()}
}

// Authorize checks actor may watch scope and returns its snapshot reader.
// The reader checks access again on every read; once it is lost the read
// fails with fanout.ErrRevoked.
func (s *Snapshots) Authorize(ctx context.Context, actor models.Actor, scope fanout.Scope) (fanout.SnapshotFunc, error) {
	read, err := s.reader(ctx, actor, scope)
	if err != nil {
		return nil, err
	}
	return func(ctx context.Context) (any, error) {
		data, err := read(ctx)
		if forbidden(err) {
			return nil, errors.Wrapf(fanout.ErrRevoked, "%s for %s", scope, actor.ID)
		}
		return data, err
	}, nil
}

func forbidden(err error) bool {
	return errors.Is(err, ErrForbidden) ||
		errors.Is(err, lifecycle.ErrForbidden) ||
		errors.Is(err, tracking.ErrForbidden)
}

func (s *Snapshots) reader(ctx context.Context, actor models.Actor, scope fanout.Scope) (fanout.SnapshotFunc, error) {
	switch scope.Kind {
	case fanout.KindOrder:
		if _, err := s.orders.Get(ctx, actor, scope.ID); err != nil {
			return nil, err
		}
		return func(ctx context.Context) (any, error) {
			return s.orders.Get(ctx, actor, scope.ID)
		}, nil

	case fanout.KindCourier:
		ok, err := s.track.CanTrack(ctx, actor, scope.ID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, ErrForbidden
		}
		return func(ctx context.Context) (any, error) {
			// a customer or restaurant only follows the courier while
			// one of their orders is with them
			if ok, err := s.track.CanTrack(ctx, actor, scope.ID); err != nil {
				return nil, err
			} else if !ok {
				return nil, ErrForbidden
			}
			pos, err := s.fleet.GetPosition(ctx, scope.ID)
			if errors.Is(err, store.ErrNotFound) {
				return nil, nil
			}
			return pos, err
		}, nil

	case fanout.KindRestaurant:
		if !panels.CanViewRestaurant(actor, scope.ID) {
			return nil, ErrForbidden
		}
		return func(ctx context.Context) (any, error) {
			return s.orders.List(ctx, actor, store.OrderFilter{RestaurantID: scope.ID})
		}, nil

	case fanout.KindOrders:
		switch {
		case actor.Role.Operator():
			return func(ctx context.Context) (any, error) {
				return s.orders.List(ctx, actor, store.OrderFilter{States: activeBoard})
			}, nil
		case actor.Role == models.RoleCourier:
			return func(ctx context.Context) (any, error) {
				return s.orders.List(ctx, actor, store.OrderFilter{Unassigned: true})
			}, nil
		}
		return nil, ErrForbidden

	case fanout.KindFleet:
		if !actor.Role.Operator() {
			return nil, ErrForbidden
		}
		return s.fleetView, nil

	case fanout.KindSystemPanel:
		if !panels.CanViewSystem(actor) {
			return nil, ErrForbidden
		}
		return func(ctx context.Context) (any, error) { return s.panels.System(ctx) }, nil

	case fanout.KindFleetPanel:
		if !panels.CanViewSystem(actor) {
			return nil, ErrForbidden
		}
		return func(ctx context.Context) (any, error) { return s.panels.Fleet(ctx) }, nil

	case fanout.KindRestaurantPanel:
		if !panels.CanViewRestaurant(actor, scope.ID) {
			return nil, ErrForbidden
		}
		return func(ctx context.Context) (any, error) { return s.panels.Restaurant(ctx, scope.ID) }, nil

	case fanout.KindCourierPanel:
		if !panels.CanViewCourier(actor, scope.ID) {
			return nil, ErrForbidden
		}
		return func(ctx context.Context) (any, error) { return s.panels.Courier(ctx, scope.ID) }, nil
	}
	return nil, errors.Errorf("unsupported scope %s", scope)
}

// activeBoard is what dispatchers watch: everything not yet terminal.
var activeBoard = []models.OrderState{
	models.StatePending,
	models.StateConfirmed,
	models.StatePreparing,
	models.StateReady,
	models.StateOnTheWay,
}

func (s *Snapshots) fleetView(ctx context.Context) (any, error) {
	couriers, err := s.fleet.ListCouriers(ctx)
	if err != nil {
		return nil, err
	}
	positions, err := s.fleet.ListPositions(ctx)
	if err != nil {
		return nil, err
	}
	return &FleetView{Couriers: couriers, Positions: positions}, nil
}
