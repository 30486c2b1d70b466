package lifecycle

import (
	"context"
	"io"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"reparto-backend/internal/models"
	"reparto-backend/internal/store"
	"reparto-backend/internal/store/memstore"
)

var (
	customer   = models.Actor{ID: "cust-1", Role: models.RoleCustomer}
	otherCust  = models.Actor{ID: "cust-2", Role: models.RoleCustomer}
	restaurant = models.Actor{ID: "staff-1", Role: models.RoleRestaurant, RestaurantID: "rest-1"}
	otherRest  = models.Actor{ID: "staff-2", Role: models.RoleRestaurant, RestaurantID: "rest-2"}
	courierA   = models.Actor{ID: "courier-a", Role: models.RoleCourier}
	courierB   = models.Actor{ID: "courier-b", Role: models.RoleCourier}
	dispatcher = models.Actor{ID: "disp-1", Role: models.RoleDispatcher}
	admin      = models.Actor{ID: "admin-1", Role: models.RoleAdmin}
)

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.Out = io.Discard
	return log
}

func newService(t *testing.T) (*Service, *memstore.Store) {
	t.Helper()
	st := memstore.New()
	st.AddCourier(models.Courier{ID: courierA.ID, FullName: "Ana", Available: true})
	st.AddCourier(models.Courier{ID: courierB.ID, FullName: "Beto", Available: true})
	return NewService(st, st, DefaultPolicy(), quietLogger()), st
}

func placeOrder(t *testing.T, s *Service) *models.Order {
	t.Helper()
	out, err := s.Create(context.Background(), customer, store.NewOrder{
		RestaurantID:    "rest-1",
		DeliveryAddress: "Av. Reforma 222",
		Latitude:        19.43,
		Longitude:       -99.16,
		Items: []store.NewOrderItem{
			{Name: "Pozole", UnitPrice: decimal.RequireFromString("120.00"), Quantity: 1},
		},
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if !out.Applied {
		t.Fatalf("Create() rejected: %s", out.Reason)
	}
	return out.Order
}

func mustTransition(t *testing.T, s *Service, actor models.Actor, id string, to models.OrderState) {
	t.Helper()
	out, err := s.Transition(context.Background(), actor, id, to)
	if err != nil {
		t.Fatalf("Transition(%s) error = %v", to, err)
	}
	if !out.Applied {
		t.Fatalf("Transition(%s) rejected: %s", to, out.Reason)
	}
}

func TestCreateRequiresCustomer(t *testing.T) {
	s, _ := newService(t)
	out, err := s.Create(context.Background(), courierA, store.NewOrder{RestaurantID: "rest-1"})
	if err != nil {
		t.Fatal(err)
	}
	if out.Applied || out.Reason != ReasonUnauthorized {
		t.Errorf("Create() by courier = %+v", out)
	}

	out, _ = s.Create(context.Background(), customer, store.NewOrder{RestaurantID: "rest-1", DeliveryAddress: "x"})
	if out.Reason != ReasonInvalid {
		t.Errorf("Create() without items reason = %s, want invalid_request", out.Reason)
	}
}

func TestConcurrentClaimOneWinner(t *testing.T) {
	s, st := newService(t)
	o := placeOrder(t, s)
	mustTransition(t, s, restaurant, o.ID, models.StateConfirmed)

	var wg sync.WaitGroup
	results := make([]Outcome, 2)
	for i, c := range []models.Actor{courierA, courierB} {
		wg.Add(1)
		go func(i int, c models.Actor) {
			defer wg.Done()
			out, err := s.Claim(context.Background(), c, o.ID)
			if err != nil {
				t.Errorf("Claim() error = %v", err)
			}
			results[i] = out
		}(i, c)
	}
	wg.Wait()

	wins := 0
	var winner string
	for i, r := range results {
		if r.Applied {
			wins++
			winner = []string{courierA.ID, courierB.ID}[i]
		} else if r.Reason != ReasonConflict {
			t.Errorf("losing claim reason = %s, want conflict", r.Reason)
		}
	}
	if wins != 1 {
		t.Fatalf("wins = %d, want exactly 1", wins)
	}

	got, _ := st.GetOrder(context.Background(), o.ID)
	if !got.AssignedTo(winner) {
		t.Errorf("repartidor_id = %v, want %s", got.CourierID, winner)
	}
	if got.AssignedAt == nil {
		t.Error("asignado_en not stamped")
	}
	if got.State != models.StateConfirmed {
		t.Errorf("claim changed estado to %s", got.State)
	}
}

func TestClaimDiagnostics(t *testing.T) {
	s, st := newService(t)
	ctx := context.Background()
	o := placeOrder(t, s)

	out, _ := s.Claim(ctx, courierA, o.ID)
	if out.Reason != ReasonNotClaimable {
		t.Errorf("claim on pendiente reason = %s, want not_claimable", out.Reason)
	}

	out, _ = s.Claim(ctx, courierA, "missing")
	if out.Reason != ReasonNotFound {
		t.Errorf("claim on missing order reason = %s, want not_found", out.Reason)
	}

	out, _ = s.Claim(ctx, customer, o.ID)
	if out.Reason != ReasonUnauthorized {
		t.Errorf("claim by customer reason = %s, want unauthorized", out.Reason)
	}

	mustTransition(t, s, restaurant, o.ID, models.StateConfirmed)
	st.SetCourierAvailability(ctx, courierA.ID, false, 0)
	out, _ = s.Claim(ctx, courierA, o.ID)
	if out.Reason != ReasonCourierUnavailable {
		t.Errorf("claim by unavailable courier reason = %s, want courier_unavailable", out.Reason)
	}

	if out, _ := s.Claim(ctx, courierB, o.ID); !out.Applied {
		t.Fatalf("claim by courier B rejected: %s", out.Reason)
	}
	out, _ = s.Claim(ctx, courierB, o.ID)
	if out.Applied || out.Reason != ReasonConflict || out.Order == nil {
		t.Errorf("second claim by holder = %+v, want conflict with row", out)
	}
}

func TestCourierCannotSkipOnTheWay(t *testing.T) {
	s, st := newService(t)
	ctx := context.Background()
	o := placeOrder(t, s)
	mustTransition(t, s, restaurant, o.ID, models.StateConfirmed)
	mustTransition(t, s, restaurant, o.ID, models.StatePreparing)
	mustTransition(t, s, restaurant, o.ID, models.StateReady)
	if out, _ := s.Claim(ctx, courierA, o.ID); !out.Applied {
		t.Fatalf("claim rejected: %s", out.Reason)
	}

	out, err := s.Transition(ctx, courierA, o.ID, models.StateDelivered)
	if err != nil {
		t.Fatal(err)
	}
	if out.Applied || out.Reason != ReasonIllegalTransition {
		t.Errorf("entregado from listo = %+v, want illegal_transition", out)
	}
	got, _ := st.GetOrder(ctx, o.ID)
	if got.State != models.StateReady {
		t.Errorf("estado = %s, want listo", got.State)
	}

	mustTransition(t, s, courierA, o.ID, models.StateOnTheWay)
	mustTransition(t, s, courierA, o.ID, models.StateDelivered)
	got, _ = st.GetOrder(ctx, o.ID)
	if got.DeliveredAt == nil || got.PickedUpAt == nil {
		t.Errorf("timestamps not stamped: %+v", got)
	}
}

func TestOnTheWayRequiresCourier(t *testing.T) {
	s, st := newService(t)
	ctx := context.Background()
	o := placeOrder(t, s)
	mustTransition(t, s, restaurant, o.ID, models.StateConfirmed)
	mustTransition(t, s, restaurant, o.ID, models.StatePreparing)
	mustTransition(t, s, restaurant, o.ID, models.StateReady)

	out, _ := s.Transition(ctx, courierA, o.ID, models.StateOnTheWay)
	if out.Applied {
		t.Fatal("unassigned order moved to en_camino")
	}
	if out.Reason != ReasonIllegalTransition {
		t.Errorf("reason = %s, want illegal_transition", out.Reason)
	}
	got, _ := st.GetOrder(ctx, o.ID)
	if got.State != models.StateReady {
		t.Errorf("estado = %s, want listo", got.State)
	}
}

func TestTransitionAuthorization(t *testing.T) {
	s, _ := newService(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		setup  []models.OrderState
		actor  models.Actor
		target models.OrderState
		want   Reason
	}{
		{"other restaurant confirms", nil, otherRest, models.StateConfirmed, ReasonUnauthorized},
		{"customer confirms", nil, customer, models.StateConfirmed, ReasonUnauthorized},
		{"dispatcher confirms", nil, dispatcher, models.StateConfirmed, ReasonUnauthorized},
		{"other customer cancels", nil, otherCust, models.StateCancelled, ReasonUnauthorized},
		{"customer cancels after confirm", []models.OrderState{models.StateConfirmed}, customer, models.StateCancelled, ReasonUnauthorized},
		{"restaurant skips preparation", nil, restaurant, models.StateReady, ReasonIllegalTransition},
		{"unknown state", nil, admin, models.OrderState("perdido"), ReasonInvalid},
		{"customer cancels pending", nil, customer, models.StateCancelled, ReasonNone},
		{"restaurant cancels ready", []models.OrderState{models.StateConfirmed, models.StatePreparing, models.StateReady}, restaurant, models.StateCancelled, ReasonNone},
		{"admin confirms", nil, admin, models.StateConfirmed, ReasonNone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := placeOrder(t, s)
			for _, st := range tt.setup {
				mustTransition(t, s, restaurant, o.ID, st)
			}
			out, err := s.Transition(ctx, tt.actor, o.ID, tt.target)
			if err != nil {
				t.Fatal(err)
			}
			if out.Reason != tt.want {
				t.Errorf("Transition() reason = %q, want %q", out.Reason, tt.want)
			}
			if out.Applied != (tt.want == ReasonNone) {
				t.Errorf("Transition() applied = %v", out.Applied)
			}
		})
	}
}

func TestNoCancelWhileOnTheWay(t *testing.T) {
	s, _ := newService(t)
	ctx := context.Background()
	o := placeOrder(t, s)
	mustTransition(t, s, restaurant, o.ID, models.StateConfirmed)
	if out, _ := s.Claim(ctx, courierA, o.ID); !out.Applied {
		t.Fatal("claim rejected")
	}
	mustTransition(t, s, restaurant, o.ID, models.StatePreparing)
	mustTransition(t, s, restaurant, o.ID, models.StateReady)
	mustTransition(t, s, courierA, o.ID, models.StateOnTheWay)

	out, _ := s.Cancel(ctx, admin, o.ID)
	if out.Applied || out.Reason != ReasonIllegalTransition {
		t.Errorf("admin cancel of en_camino = %+v, want illegal_transition", out)
	}
}

func TestTerminalOrderRejectsEverything(t *testing.T) {
	s, st := newService(t)
	ctx := context.Background()
	o := placeOrder(t, s)
	if out, _ := s.Cancel(ctx, customer, o.ID); !out.Applied {
		t.Fatalf("cancel rejected: %s", out.Reason)
	}

	for _, target := range models.AllStates {
		out, _ := s.Transition(ctx, admin, o.ID, target)
		if out.Applied {
			t.Errorf("cancelled order moved to %s", target)
		}
	}
	got, _ := st.GetOrder(ctx, o.ID)
	if got.State != models.StateCancelled || got.CancelledAt == nil {
		t.Errorf("order = %+v, want cancelado with cancelado_en", got)
	}
}

func TestTransitionNotFound(t *testing.T) {
	s, _ := newService(t)
	out, err := s.Transition(context.Background(), admin, "missing", models.StateConfirmed)
	if err != nil {
		t.Fatal(err)
	}
	if out.Reason != ReasonNotFound {
		t.Errorf("reason = %s, want not_found", out.Reason)
	}
}

func TestVisibility(t *testing.T) {
	s, _ := newService(t)
	ctx := context.Background()
	o := placeOrder(t, s)

	if _, err := s.Get(ctx, otherCust, o.ID); err != ErrForbidden {
		t.Errorf("Get() by other customer error = %v, want ErrForbidden", err)
	}
	if _, err := s.Get(ctx, courierA, o.ID); err != ErrForbidden {
		t.Errorf("Get() of pendiente by courier error = %v, want ErrForbidden", err)
	}
	mustTransition(t, s, restaurant, o.ID, models.StateConfirmed)
	if _, err := s.Get(ctx, courierA, o.ID); err != nil {
		t.Errorf("Get() of claimable order by courier error = %v", err)
	}

	board, err := s.List(ctx, courierB, store.OrderFilter{Unassigned: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(board) != 1 {
		t.Errorf("claimable board = %d orders, want 1", len(board))
	}
	mine, _ := s.List(ctx, otherCust, store.OrderFilter{})
	if len(mine) != 0 {
		t.Errorf("other customer sees %d orders", len(mine))
	}
}
