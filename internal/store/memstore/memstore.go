// Package memstore is an in-process change-feed store. Every conditional
// write runs under one mutex, which gives the same all-or-nothing behaviour
// as the conditional UPDATE statements of the PostgreSQL store. It backs the
// tests and STORE_DRIVER=memory.
package memstore

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"reparto-backend/internal/changefeed"
	"reparto-backend/internal/models"
	"reparto-backend/internal/store"
)

type Store struct {
	mu          sync.Mutex
	seq         int64
	orders      map[string]*models.Order
	couriers    map[string]*models.Courier
	positions   map[string]*models.CourierPosition
	restaurants map[string]string
	listeners   map[int]*listener
	nextID      int

	// Now stamps change events. Defaults to time.Now.
	Now func() time.Time
}

var _ store.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		orders:      make(map[string]*models.Order),
		couriers:    make(map[string]*models.Courier),
		positions:   make(map[string]*models.CourierPosition),
		restaurants: make(map[string]string),
		listeners:   make(map[int]*listener),
		Now:         time.Now,
	}
}

// AddRestaurant registers a restaurant name for leaderboards.
func (s *Store) AddRestaurant(id, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.restaurants[id] = name
}

// AddCourier inserts or replaces a courier row.
func (s *Store) AddCourier(c models.Courier) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var old *models.Courier
	if prev, ok := s.couriers[c.ID]; ok {
		cp := *prev
		old = &cp
	}
	row := c
	s.couriers[c.ID] = &row
	s.emitLocked(changefeed.TableCouriers, old, &row)
}

func (s *Store) CreateOrder(ctx context.Context, n store.NewOrder) (*models.Order, error) {
	if err := n.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	o := &models.Order{
		ID:              uuid.New().String(),
		Number:          s.seq,
		State:           models.StatePending,
		Total:           n.Total(),
		DeliveryAddress: n.DeliveryAddress,
		Latitude:        n.Latitude,
		Longitude:       n.Longitude,
		Notes:           n.Notes,
		CustomerID:      n.CustomerID,
		RestaurantID:    n.RestaurantID,
		CreatedAt:       n.At,
		UpdatedAt:       n.At,
	}
	for _, it := range n.Items {
		o.Items = append(o.Items, models.OrderItem{
			ID:        uuid.New().String(),
			OrderID:   o.ID,
			Name:      it.Name,
			UnitPrice: it.UnitPrice,
			Quantity:  it.Quantity,
			Notes:     it.Notes,
		})
	}
	s.orders[o.ID] = o
	s.emitLocked(changefeed.TableOrders, nil, o)
	return copyOrder(o), nil
}

func (s *Store) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return nil, errors.Wrapf(store.ErrNotFound, "order %s", id)
	}
	return copyOrder(o), nil
}

func (s *Store) ListOrders(ctx context.Context, f store.OrderFilter) ([]models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.Order, 0)
	for _, o := range s.orders {
		if len(f.States) > 0 && !store.Contains(f.States, o.State) {
			continue
		}
		if f.CustomerID != "" && o.CustomerID != f.CustomerID {
			continue
		}
		if f.RestaurantID != "" && o.RestaurantID != f.RestaurantID {
			continue
		}
		if f.CourierID != "" && !o.AssignedTo(f.CourierID) {
			continue
		}
		if f.Unassigned && o.HasCourier() {
			continue
		}
		cp := *o
		cp.Items = nil
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt != out[j].CreatedAt {
			return out[i].CreatedAt > out[j].CreatedAt
		}
		return out[i].Number > out[j].Number
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (s *Store) ClaimOrder(ctx context.Context, c store.Claim) (*models.Order, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[c.OrderID]
	if !ok || o.HasCourier() || !store.Contains(c.ClaimableStates, o.State) {
		return nil, false, nil
	}
	if c.RequireAvailable {
		cr, ok := s.couriers[c.CourierID]
		if !ok || !cr.Available {
			return nil, false, nil
		}
	}

	old := copyOrder(o)
	courierID := c.CourierID
	at := c.At
	o.CourierID = &courierID
	o.AssignedAt = &at
	o.UpdatedAt = c.At
	s.emitLocked(changefeed.TableOrders, old, o)
	return copyOrder(o), true, nil
}

func (s *Store) TransitionOrder(ctx context.Context, t store.Transition) (*models.Order, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[t.OrderID]
	if !ok || o.State.Terminal() || !store.Contains(t.From, o.State) {
		return nil, false, nil
	}
	if t.RequireCourier && !o.HasCourier() {
		return nil, false, nil
	}
	if t.RestaurantID != "" && o.RestaurantID != t.RestaurantID {
		return nil, false, nil
	}
	if t.CustomerID != "" && o.CustomerID != t.CustomerID {
		return nil, false, nil
	}
	if t.CourierID != "" && !o.AssignedTo(t.CourierID) {
		return nil, false, nil
	}

	old := copyOrder(o)
	o.State = t.To
	o.UpdatedAt = t.At
	store.Stamp(o, t.To, t.At)
	s.emitLocked(changefeed.TableOrders, old, o)

	if t.To == models.StateDelivered {
		if cr, ok := s.couriers[*o.CourierID]; ok {
			prev := *cr
			cr.TotalDeliveries++
			cr.UpdatedAt = t.At
			s.emitLocked(changefeed.TableCouriers, &prev, cr)
		}
	}
	return copyOrder(o), true, nil
}

func (s *Store) GetCourier(ctx context.Context, id string) (*models.Courier, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.couriers[id]
	if !ok {
		return nil, errors.Wrapf(store.ErrNotFound, "courier %s", id)
	}
	cp := *c
	return &cp, nil
}

func (s *Store) ListCouriers(ctx context.Context) ([]models.Courier, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Courier, 0, len(s.couriers))
	for _, c := range s.couriers {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) SetCourierAvailability(ctx context.Context, id string, available bool, at int64) (*models.Courier, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.couriers[id]
	if !ok {
		return nil, errors.Wrapf(store.ErrNotFound, "courier %s", id)
	}
	prev := *c
	c.Available = available
	c.UpdatedAt = at
	s.emitLocked(changefeed.TableCouriers, &prev, c)
	cp := *c
	return &cp, nil
}

func (s *Store) UpsertPosition(ctx context.Context, p models.CourierPosition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var old *models.CourierPosition
	if prev, ok := s.positions[p.CourierID]; ok {
		cp := *prev
		old = &cp
	}
	row := p
	s.positions[p.CourierID] = &row
	s.emitLocked(changefeed.TablePositions, old, &row)
	return nil
}

func (s *Store) GetPosition(ctx context.Context, courierID string) (*models.CourierPosition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.positions[courierID]
	if !ok {
		return nil, errors.Wrapf(store.ErrNotFound, "position for %s", courierID)
	}
	cp := *p
	return &cp, nil
}

func (s *Store) ListPositions(ctx context.Context) ([]models.CourierPosition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.CourierPosition, 0, len(s.positions))
	for _, p := range s.positions {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CourierID < out[j].CourierID })
	return out, nil
}

func (s *Store) StateCounts(ctx context.Context, restaurantID string) (map[models.OrderState]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	counts := make(map[models.OrderState]int)
	for _, o := range s.orders {
		if restaurantID != "" && o.RestaurantID != restaurantID {
			continue
		}
		counts[o.State]++
	}
	return counts, nil
}

func (s *Store) OrderTotals(ctx context.Context, restaurantID string, since int64) (store.Totals, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := store.Totals{Revenue: decimal.Zero}
	for _, o := range s.orders {
		if o.CreatedAt < since || o.State == models.StateCancelled {
			continue
		}
		if restaurantID != "" && o.RestaurantID != restaurantID {
			continue
		}
		t.Orders++
		t.Revenue = t.Revenue.Add(o.Total)
	}
	return t, nil
}

func (s *Store) CourierDeliveries(ctx context.Context, courierID string, since int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, o := range s.orders {
		if o.State == models.StateDelivered && o.AssignedTo(courierID) && o.DeliveredAt != nil && *o.DeliveredAt >= since {
			n++
		}
	}
	return n, nil
}

func (s *Store) TopRestaurants(ctx context.Context, since int64, limit int) ([]models.LeaderboardEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	byID := make(map[string]*models.LeaderboardEntry)
	for _, o := range s.orders {
		if o.CreatedAt < since || o.State == models.StateCancelled {
			continue
		}
		e, ok := byID[o.RestaurantID]
		if !ok {
			name := s.restaurants[o.RestaurantID]
			if name == "" {
				name = o.RestaurantID
			}
			e = &models.LeaderboardEntry{ID: o.RestaurantID, Name: name, Value: decimal.Zero}
			byID[o.RestaurantID] = e
		}
		e.Count++
		e.Value = e.Value.Add(o.Total)
	}
	return rank(byID, limit), nil
}

func (s *Store) TopCouriers(ctx context.Context, since int64, limit int) ([]models.LeaderboardEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	byID := make(map[string]*models.LeaderboardEntry)
	for _, o := range s.orders {
		if o.State != models.StateDelivered || !o.HasCourier() || o.DeliveredAt == nil || *o.DeliveredAt < since {
			continue
		}
		id := *o.CourierID
		e, ok := byID[id]
		if !ok {
			name := id
			if c, ok := s.couriers[id]; ok && c.FullName != "" {
				name = c.FullName
			}
			e = &models.LeaderboardEntry{ID: id, Name: name, Value: decimal.Zero}
			byID[id] = e
		}
		e.Count++
		e.Value = e.Value.Add(o.Total)
	}
	entries := rank(byID, 0)
	// couriers rank by delivery count first
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].Count > entries[j].Count })
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

func rank(byID map[string]*models.LeaderboardEntry, limit int) []models.LeaderboardEntry {
	out := make([]models.LeaderboardEntry, 0, len(byID))
	for _, e := range byID {
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool {
		if c := out[i].Value.Cmp(out[j].Value); c != 0 {
			return c > 0
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func copyOrder(o *models.Order) *models.Order {
	cp := *o
	if o.Items != nil {
		cp.Items = append([]models.OrderItem(nil), o.Items...)
	}
	return &cp
}

// marshalRow renders the key columns of v, as the Postgres trigger does.
func marshalRow(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return changefeed.Keys(b)
}
