// Package tracking is the server side of courier live positions: the
// latest-wins write made by the owning courier and the reads made by
// dashboards.
package tracking

import (
	"context"
	"math"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"reparto-backend/internal/models"
	"reparto-backend/internal/store"
)

var (
	ErrForbidden  = errors.New("forbidden")
	ErrInvalidFix = errors.New("invalid position")
)

type Service struct {
	positions store.Positions
	couriers  store.Couriers
	orders    store.Orders
	log       *logrus.Logger
	now       func() time.Time

	writes metric.Int64Counter
}

func NewService(positions store.Positions, couriers store.Couriers, orders store.Orders, log *logrus.Logger) *Service {
	s := &Service{
		positions: positions,
		couriers:  couriers,
		orders:    orders,
		log:       log,
		now:       time.Now,
	}
	meter := otel.GetMeterProvider().Meter("reparto.tracking")
	var err error
	s.writes, err = meter.Int64Counter("position_writes_total", metric.WithDescription("Live position writes by result"))
	if err != nil {
		log.Warnf("failed to register position counter: %v", err)
	}
	return s
}

// Report upserts the acting courier's live position. Only the owning
// courier writes its row.
func (s *Service) Report(ctx context.Context, actor models.Actor, r models.PositionReport) (*models.CourierPosition, error) {
	if actor.Role != models.RoleCourier {
		s.count(ctx, "forbidden")
		return nil, ErrForbidden
	}
	if !validCoordinate(r.Latitude, 90) || !validCoordinate(r.Longitude, 180) {
		s.count(ctx, "invalid")
		return nil, errors.Wrapf(ErrInvalidFix, "lat=%v lng=%v", r.Latitude, r.Longitude)
	}

	p := models.CourierPosition{
		CourierID: actor.ID,
		Latitude:  r.Latitude,
		Longitude: r.Longitude,
		Speed:     r.Speed,
		Heading:   r.Heading,
		UpdatedAt: s.now().Unix(),
	}
	if r.Accuracy != nil {
		if *r.Accuracy < 0 {
			s.count(ctx, "invalid")
			return nil, errors.Wrap(ErrInvalidFix, "negative accuracy")
		}
		// precision_metros is an INTEGER column
		m := int(math.Round(*r.Accuracy))
		p.AccuracyMeters = &m
	}

	if err := s.positions.UpsertPosition(ctx, p); err != nil {
		s.count(ctx, "error")
		return nil, errors.Wrapf(err, "upsert position for %s", actor.ID)
	}
	s.count(ctx, "written")
	return &p, nil
}

// Position returns a courier's live row. Operators and the courier see it
// always; customers and restaurants only while the courier carries one of
// their active orders.
func (s *Service) Position(ctx context.Context, actor models.Actor, courierID string) (*models.CourierPosition, error) {
	ok, err := s.CanTrack(ctx, actor, courierID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrForbidden
	}
	return s.positions.GetPosition(ctx, courierID)
}

// CanTrack reports whether actor may follow courierID.
func (s *Service) CanTrack(ctx context.Context, actor models.Actor, courierID string) (bool, error) {
	switch actor.Role {
	case models.RoleDispatcher, models.RoleAdmin:
		return true, nil
	case models.RoleCourier:
		return actor.ID == courierID, nil
	case models.RoleCustomer, models.RoleRestaurant:
	default:
		return false, nil
	}

	f := store.OrderFilter{
		CourierID: courierID,
		States:    []models.OrderState{models.StateConfirmed, models.StatePreparing, models.StateReady, models.StateOnTheWay},
		Limit:     1,
	}
	if actor.Role == models.RoleCustomer {
		f.CustomerID = actor.ID
	} else {
		if actor.RestaurantID == "" {
			return false, nil
		}
		f.RestaurantID = actor.RestaurantID
	}
	orders, err := s.orders.ListOrders(ctx, f)
	if err != nil {
		return false, errors.Wrap(err, "list orders for tracking check")
	}
	return len(orders) > 0, nil
}

// SetAvailability flips the acting courier's disponible flag.
func (s *Service) SetAvailability(ctx context.Context, actor models.Actor, available bool) (*models.Courier, error) {
	if actor.Role != models.RoleCourier {
		return nil, ErrForbidden
	}
	c, err := s.couriers.SetCourierAvailability(ctx, actor.ID, available, s.now().Unix())
	if err != nil {
		return nil, errors.Wrapf(err, "set availability for %s", actor.ID)
	}
	s.log.WithFields(logrus.Fields{"courier_id": actor.ID, "disponible": available}).Info("🚦 Courier availability changed")
	return c, nil
}

func validCoordinate(v, limit float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v >= -limit && v <= limit
}

func (s *Service) count(ctx context.Context, result string) {
	if s.writes == nil {
		return
	}
	s.writes.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}
