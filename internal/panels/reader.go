// Package panels computes the read-only dashboard rollups. Every panel is a
// pure read of the store; missing or null values come back as zeros.
package panels

import (
	"context"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"reparto-backend/internal/models"
	"reparto-backend/internal/store"
)

// DefaultTTL is how long a cached panel is served.
const DefaultTTL = 10 * time.Second

// reportingWindow is how recent a position must be to count as reporting.
const reportingWindow = 2 * time.Minute

var activeStates = []models.OrderState{
	models.StateConfirmed,
	models.StatePreparing,
	models.StateReady,
	models.StateOnTheWay,
}

type Reader struct {
	st    store.Store
	cache Cache
	ttl   time.Duration
	sf    *singleflight.Group
	log   *logrus.Logger
	loc   *time.Location
	now   func() time.Time
}

// NewReader builds a reader. cache may be nil.
func NewReader(st store.Store, cache Cache, ttl time.Duration, loc *time.Location, log *logrus.Logger) *Reader {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if loc == nil {
		loc = time.Local
	}
	return &Reader{
		st:    st,
		cache: cache,
		ttl:   ttl,
		sf:    &singleflight.Group{},
		log:   log,
		loc:   loc,
		now:   time.Now,
	}
}

// Uncached returns a reader sharing everything but the cache. Push-driven
// refreshes use it so a change is never hidden behind a cached copy.
func (r *Reader) Uncached() *Reader {
	cp := *r
	cp.cache = nil
	return &cp
}

func (r *Reader) startOfDay() int64 {
	t := r.now().In(r.loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, r.loc).Unix()
}

func (r *Reader) startOfMonth() int64 {
	t := r.now().In(r.loc)
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, r.loc).Unix()
}

// load serves key from cache, collapsing concurrent misses into one
// computation.
func load[T any](ctx context.Context, r *Reader, key string, compute func(context.Context) (*T, error)) (*T, error) {
	if r.cache != nil {
		var cached T
		hit, err := r.cache.Get(ctx, key, &cached)
		if err != nil {
			r.log.WithError(err).Warn("panel cache read failed")
		}
		if hit {
			return &cached, nil
		}
	}

	v, err, _ := r.sf.Do(key, func() (interface{}, error) {
		p, err := compute(ctx)
		if err != nil {
			return nil, err
		}
		if r.cache != nil {
			if err := r.cache.Set(ctx, key, p, r.ttl); err != nil {
				r.log.WithError(err).Warn("panel cache write failed")
			}
		}
		return p, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*T), nil
}

func zeroFilled(counts map[models.OrderState]int) map[models.OrderState]int {
	out := make(map[models.OrderState]int, len(models.AllStates))
	for _, s := range models.AllStates {
		out[s] = counts[s]
	}
	return out
}

func activeCount(counts map[models.OrderState]int) int {
	n := 0
	for _, s := range activeStates {
		n += counts[s]
	}
	return n + counts[models.StatePending]
}

func (r *Reader) Restaurant(ctx context.Context, restaurantID string) (*models.RestaurantPanel, error) {
	return load(ctx, r, "restaurant:"+restaurantID, func(ctx context.Context) (*models.RestaurantPanel, error) {
		p := &models.RestaurantPanel{RestaurantID: restaurantID, GeneratedAt: r.now().Unix()}
		var counts map[models.OrderState]int
		var today, month store.Totals

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() (err error) {
			counts, err = r.st.StateCounts(gctx, restaurantID)
			return err
		})
		g.Go(func() (err error) {
			today, err = r.st.OrderTotals(gctx, restaurantID, r.startOfDay())
			return err
		})
		g.Go(func() (err error) {
			month, err = r.st.OrderTotals(gctx, restaurantID, r.startOfMonth())
			return err
		})
		if err := g.Wait(); err != nil {
			return nil, errors.Wrapf(err, "restaurant panel %s", restaurantID)
		}

		p.ByState = zeroFilled(counts)
		p.Active = activeCount(p.ByState)
		p.OrdersToday, p.RevenueToday = today.Orders, orZero(today.Revenue)
		p.OrdersMonth, p.RevenueMonth = month.Orders, orZero(month.Revenue)
		return p, nil
	})
}

func (r *Reader) System(ctx context.Context) (*models.SystemPanel, error) {
	return load(ctx, r, "system", func(ctx context.Context) (*models.SystemPanel, error) {
		p := &models.SystemPanel{GeneratedAt: r.now().Unix()}
		var counts map[models.OrderState]int
		var today store.Totals

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() (err error) {
			counts, err = r.st.StateCounts(gctx, "")
			return err
		})
		g.Go(func() (err error) {
			today, err = r.st.OrderTotals(gctx, "", r.startOfDay())
			return err
		})
		if err := g.Wait(); err != nil {
			return nil, errors.Wrap(err, "system panel")
		}

		p.ByState = zeroFilled(counts)
		for _, n := range p.ByState {
			p.Total += n
		}
		p.Active = activeCount(p.ByState)
		p.OrdersToday, p.RevenueToday = today.Orders, orZero(today.Revenue)
		return p, nil
	})
}

func (r *Reader) Fleet(ctx context.Context) (*models.FleetPanel, error) {
	return load(ctx, r, "fleet", func(ctx context.Context) (*models.FleetPanel, error) {
		var couriers []models.Courier
		var positions []models.CourierPosition
		var active []models.Order

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() (err error) {
			couriers, err = r.st.ListCouriers(gctx)
			return err
		})
		g.Go(func() (err error) {
			positions, err = r.st.ListPositions(gctx)
			return err
		})
		g.Go(func() (err error) {
			active, err = r.st.ListOrders(gctx, store.OrderFilter{States: activeStates})
			return err
		})
		if err := g.Wait(); err != nil {
			return nil, errors.Wrap(err, "fleet panel")
		}

		busy := make(map[string]bool)
		for _, o := range active {
			if o.HasCourier() {
				busy[*o.CourierID] = true
			}
		}

		now := r.now()
		p := &models.FleetPanel{Total: len(couriers), GeneratedAt: now.Unix()}
		for _, c := range couriers {
			switch {
			case busy[c.ID]:
				p.Busy++
			case c.Available:
				p.Available++
			default:
				p.Offline++
			}
		}
		cutoff := now.Add(-reportingWindow).Unix()
		for _, pos := range positions {
			if pos.UpdatedAt >= cutoff {
				p.Reporting++
			}
		}
		return p, nil
	})
}

func (r *Reader) Courier(ctx context.Context, courierID string) (*models.CourierPanel, error) {
	return load(ctx, r, "courier:"+courierID, func(ctx context.Context) (*models.CourierPanel, error) {
		var courier *models.Courier
		var position *models.CourierPosition
		var deliveries int
		var active []models.Order

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() (err error) {
			courier, err = r.st.GetCourier(gctx, courierID)
			return err
		})
		g.Go(func() error {
			p, err := r.st.GetPosition(gctx, courierID)
			if errors.Is(err, store.ErrNotFound) {
				return nil
			}
			position = p
			return err
		})
		g.Go(func() (err error) {
			deliveries, err = r.st.CourierDeliveries(gctx, courierID, r.startOfDay())
			return err
		})
		g.Go(func() (err error) {
			active, err = r.st.ListOrders(gctx, store.OrderFilter{CourierID: courierID, States: activeStates})
			return err
		})
		if err := g.Wait(); err != nil {
			return nil, errors.Wrapf(err, "courier panel %s", courierID)
		}

		p := &models.CourierPanel{
			CourierID:       courier.ID,
			Name:            courier.FullName,
			Available:       courier.Available,
			TotalDeliveries: courier.TotalDeliveries,
			DeliveriesToday: deliveries,
			ActiveOrders:    len(active),
			Position:        position,
			GeneratedAt:     r.now().Unix(),
		}
		if courier.AverageRating != nil {
			p.AverageRating = *courier.AverageRating
		}
		return p, nil
	})
}

// Leaderboard ranks restaurants by revenue and couriers by deliveries for
// the current month.
func (r *Reader) Leaderboard(ctx context.Context, limit int) (*models.Leaderboard, error) {
	if limit <= 0 || limit > 100 {
		limit = 10
	}
	since := r.startOfMonth()
	key := "leaderboard:" + time.Unix(since, 0).In(r.loc).Format("2006-01") + ":" + strconv.Itoa(limit)
	return load(ctx, r, key, func(ctx context.Context) (*models.Leaderboard, error) {
		lb := &models.Leaderboard{Since: since, GeneratedAt: r.now().Unix()}

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() (err error) {
			lb.Restaurants, err = r.st.TopRestaurants(gctx, since, limit)
			return err
		})
		g.Go(func() (err error) {
			lb.Couriers, err = r.st.TopCouriers(gctx, since, limit)
			return err
		})
		if err := g.Wait(); err != nil {
			return nil, errors.Wrap(err, "leaderboard")
		}
		if lb.Restaurants == nil {
			lb.Restaurants = []models.LeaderboardEntry{}
		}
		if lb.Couriers == nil {
			lb.Couriers = []models.LeaderboardEntry{}
		}
		return lb, nil
	})
}

func orZero(d decimal.Decimal) decimal.Decimal {
	if d.IsZero() {
		return decimal.Zero
	}
	return d
}
