// Package store defines the change-feed store contract shared by the
// PostgreSQL implementation and the in-process one.
package store

import (
	"context"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"reparto-backend/internal/changefeed"
	"reparto-backend/internal/models"
)

var (
	ErrNotFound = errors.New("not found")
	ErrInvalid  = errors.New("invalid request")
)

// NewOrder carries everything needed to create an order. The store
// computes the total from the lines and freezes both.
type NewOrder struct {
	CustomerID      string
	RestaurantID    string
	DeliveryAddress string
	Latitude        float64
	Longitude       float64
	Notes           *string
	Items           []NewOrderItem
	At              int64
}

type NewOrderItem struct {
	Name      string
	UnitPrice decimal.Decimal
	Quantity  int
	Notes     *string
}

// Claim is the conditional assignment of an unassigned order to a courier.
type Claim struct {
	OrderID          string
	CourierID        string
	ClaimableStates  []models.OrderState
	RequireAvailable bool
	At               int64
}

// Transition is a conditional state change. The update applies only when
// the current state is in From and every non-empty ownership field matches
// the row.
type Transition struct {
	OrderID        string
	To             models.OrderState
	From           []models.OrderState
	RequireCourier bool
	RestaurantID   string
	CustomerID     string
	CourierID      string
	At             int64
}

type OrderFilter struct {
	States       []models.OrderState
	CustomerID   string
	RestaurantID string
	CourierID    string
	Unassigned   bool
	Limit        int
}

type Orders interface {
	CreateOrder(ctx context.Context, o NewOrder) (*models.Order, error)
	// GetOrder returns the order with its lines, or ErrNotFound.
	GetOrder(ctx context.Context, id string) (*models.Order, error)
	ListOrders(ctx context.Context, f OrderFilter) ([]models.Order, error)
	// ClaimOrder and TransitionOrder apply atomically. applied is false when
	// any precondition failed; the returned order is then nil.
	ClaimOrder(ctx context.Context, c Claim) (order *models.Order, applied bool, err error)
	TransitionOrder(ctx context.Context, t Transition) (order *models.Order, applied bool, err error)
}

type Couriers interface {
	GetCourier(ctx context.Context, id string) (*models.Courier, error)
	ListCouriers(ctx context.Context) ([]models.Courier, error)
	SetCourierAvailability(ctx context.Context, id string, available bool, at int64) (*models.Courier, error)
}

type Positions interface {
	// UpsertPosition replaces the courier's single live row.
	UpsertPosition(ctx context.Context, p models.CourierPosition) error
	GetPosition(ctx context.Context, courierID string) (*models.CourierPosition, error)
	ListPositions(ctx context.Context) ([]models.CourierPosition, error)
}

// Totals counts orders created in a window and sums their revenue.
// Cancelled orders are excluded from both.
type Totals struct {
	Orders  int
	Revenue decimal.Decimal
}

// Aggregates are read-only rollups. Filters with empty ids mean "all".
type Aggregates interface {
	StateCounts(ctx context.Context, restaurantID string) (map[models.OrderState]int, error)
	OrderTotals(ctx context.Context, restaurantID string, since int64) (Totals, error)
	CourierDeliveries(ctx context.Context, courierID string, since int64) (int, error)
	TopRestaurants(ctx context.Context, since int64, limit int) ([]models.LeaderboardEntry, error)
	TopCouriers(ctx context.Context, since int64, limit int) ([]models.LeaderboardEntry, error)
}

type Store interface {
	Orders
	Couriers
	Positions
	Aggregates
	changefeed.Source
}

// Contains reports whether s is one of states.
func Contains(states []models.OrderState, s models.OrderState) bool {
	for _, st := range states {
		if st == s {
			return true
		}
	}
	return false
}

// Validate checks the shape of a new order before it reaches the store.
func (o NewOrder) Validate() error {
	if o.CustomerID == "" || o.RestaurantID == "" {
		return errors.Wrap(ErrInvalid, "customer and restaurant are required")
	}
	if o.DeliveryAddress == "" {
		return errors.Wrap(ErrInvalid, "delivery address is required")
	}
	if len(o.Items) == 0 {
		return errors.Wrap(ErrInvalid, "order has no items")
	}
	for i, it := range o.Items {
		if it.Name == "" || it.Quantity <= 0 || it.UnitPrice.IsNegative() {
			return errors.Wrapf(ErrInvalid, "item %d is malformed", i)
		}
	}
	return nil
}

// Total sums the frozen line subtotals.
func (o NewOrder) Total() decimal.Decimal {
	total := decimal.Zero
	for _, it := range o.Items {
		total = total.Add(it.UnitPrice.Mul(decimal.NewFromInt(int64(it.Quantity))))
	}
	return total
}
