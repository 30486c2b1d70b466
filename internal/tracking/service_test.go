package tracking

import (
	"context"
	"io"
	"testing"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"reparto-backend/internal/models"
	"reparto-backend/internal/store"
	"reparto-backend/internal/store/memstore"
)

func newService() (*Service, *memstore.Store) {
	log := logrus.New()
	log.Out = io.Discard
	st := memstore.New()
	st.AddCourier(models.Courier{ID: "c1", Available: true})
	return NewService(st, st, st, log), st
}

func ptr(v float64) *float64 { return &v }

func TestReportUpsertsOwnRow(t *testing.T) {
	s, st := newService()
	ctx := context.Background()
	courier := models.Actor{ID: "c1", Role: models.RoleCourier}

	fixes := []models.PositionReport{
		{Latitude: 19.4, Longitude: -99.1, Accuracy: ptr(12.4)},
		{Latitude: 19.5, Longitude: -99.1, Accuracy: ptr(8.6)},
	}
	for _, f := range fixes {
		_, err := s.Report(ctx, courier, f)
		if err != nil {
			t.Fatalf("Report() error = %v", err)
		}
	}

	rows, _ := st.ListPositions(ctx)
	if len(rows) != 1 {
		t.Fatalf("rows = %d, want 1", len(rows))
	}
	if rows[0].Latitude != 19.5 {
		t.Errorf("Latitude = %v, want 19.5", rows[0].Latitude)
	}
	if rows[0].AccuracyMeters == nil || *rows[0].AccuracyMeters != 9 {
		t.Errorf("precision_metros = %v, want 9", rows[0].AccuracyMeters)
	}
}

func TestReportRejects(t *testing.T) {
	s, _ := newService()
	ctx := context.Background()

	tests := []struct {
		name  string
		actor models.Actor
		r     models.PositionReport
		want  error
	}{
		{"customer", models.Actor{ID: "u1", Role: models.RoleCustomer}, models.PositionReport{}, ErrForbidden},
		{"latitude out of range", models.Actor{ID: "c1", Role: models.RoleCourier}, models.PositionReport{Latitude: 91}, ErrInvalidFix},
		{"longitude out of range", models.Actor{ID: "c1", Role: models.RoleCourier}, models.PositionReport{Longitude: -181}, ErrInvalidFix},
		{"negative accuracy", models.Actor{ID: "c1", Role: models.RoleCourier}, models.PositionReport{Accuracy: ptr(-1)}, ErrInvalidFix},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Report(ctx, tt.actor, tt.r)
			if !errors.Is(err, tt.want) {
				t.Errorf("Report() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestCanTrack(t *testing.T) {
	s, st := newService()
	ctx := context.Background()

	o, err := st.CreateOrder(ctx, store.NewOrder{
		CustomerID:      "u1",
		RestaurantID:    "r1",
		DeliveryAddress: "Insurgentes 10",
		Items:           []store.NewOrderItem{{Name: "Torta", UnitPrice: decimal.NewFromInt(60), Quantity: 1}},
	})
	if err != nil {
		t.Fatal(err)
	}

	customer := models.Actor{ID: "u1", Role: models.RoleCustomer}
	restaurant := models.Actor{ID: "s1", Role: models.RoleRestaurant, RestaurantID: "r1"}

	if ok, _ := s.CanTrack(ctx, customer, "c1"); ok {
		t.Error("customer can track courier before assignment")
	}

	st.TransitionOrder(ctx, store.Transition{OrderID: o.ID, To: models.StateConfirmed, From: []models.OrderState{models.StatePending}})
	st.ClaimOrder(ctx, store.Claim{OrderID: o.ID, CourierID: "c1", ClaimableStates: []models.OrderState{models.StateConfirmed}})

	tests := []struct {
		actor models.Actor
		want  bool
	}{
		{customer, true},
		{restaurant, true},
		{models.Actor{ID: "u2", Role: models.RoleCustomer}, false},
		{models.Actor{ID: "s2", Role: models.RoleRestaurant, RestaurantID: "r2"}, false},
		{models.Actor{ID: "c1", Role: models.RoleCourier}, true},
		{models.Actor{ID: "c2", Role: models.RoleCourier}, false},
		{models.Actor{ID: "d1", Role: models.RoleDispatcher}, true},
	}
	for _, tt := range tests {
		got, err := s.CanTrack(ctx, tt.actor, "c1")
		if err != nil {
			t.Fatal(err)
		}
		if got != tt.want {
			t.Errorf("CanTrack(%s %s) = %v, want %v", tt.actor.Role, tt.actor.ID, got, tt.want)
		}
	}
}

func TestSetAvailability(t *testing.T) {
	s, _ := newService()
	c, err := s.SetAvailability(context.Background(), models.Actor{ID: "c1", Role: models.RoleCourier}, false)
	if err != nil {
		t.Fatal(err)
	}
	if c.Available {
		t.Error("courier still available")
	}
	if _, err := s.SetAvailability(context.Background(), models.Actor{ID: "a", Role: models.RoleAdmin}, true); err != ErrForbidden {
		t.Errorf("admin SetAvailability() error = %v, want ErrForbidden", err)
	}
}
