package lifecycle

import (
	"testing"

	"reparto-backend/internal/models"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from models.OrderState
		to   models.OrderState
		want bool
	}{
		{models.StatePending, models.StateConfirmed, true},
		{models.StatePending, models.StateCancelled, true},
		{models.StatePending, models.StateReady, false},
		{models.StateConfirmed, models.StatePreparing, true},
		{models.StatePreparing, models.StateReady, true},
		{models.StateReady, models.StateOnTheWay, true},
		{models.StateReady, models.StateDelivered, false},
		{models.StateReady, models.StateCancelled, true},
		{models.StateOnTheWay, models.StateDelivered, true},
		{models.StateOnTheWay, models.StateCancelled, false},
		{models.StateDelivered, models.StateCancelled, false},
		{models.StateCancelled, models.StatePending, false},
		{models.StateConfirmed, models.StatePending, false},
	}

	for _, tt := range tests {
		if got := CanTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("CanTransition(%q, %q) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestTerminalStatesHaveNoSuccessors(t *testing.T) {
	for _, from := range []models.OrderState{models.StateDelivered, models.StateCancelled} {
		if !from.Terminal() {
			t.Errorf("%q.Terminal() = false", from)
		}
		for _, to := range models.AllStates {
			if CanTransition(from, to) {
				t.Errorf("CanTransition(%q, %q) = true for terminal state", from, to)
			}
		}
	}
}

func TestPredecessors(t *testing.T) {
	got := Predecessors(models.StateCancelled)
	want := []models.OrderState{models.StatePending, models.StateConfirmed, models.StatePreparing, models.StateReady}
	if len(got) != len(want) {
		t.Fatalf("Predecessors(cancelado) = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Predecessors(cancelado)[%d] = %q, want %q", i, got[i], want[i])
		}
	}
	if p := Predecessors(models.StatePending); len(p) != 0 {
		t.Errorf("Predecessors(pendiente) = %v, want none", p)
	}
}

func TestRuleAllowedFrom(t *testing.T) {
	customer := DefaultPolicy().Transitions[models.StateCancelled][models.RoleCustomer]
	got := customer.allowedFrom(models.StateCancelled)
	if len(got) != 1 || got[0] != models.StatePending {
		t.Errorf("customer cancel allowedFrom = %v, want [pendiente]", got)
	}

	admin := DefaultPolicy().Transitions[models.StateCancelled][models.RoleAdmin]
	if got := admin.allowedFrom(models.StateCancelled); len(got) != 4 {
		t.Errorf("admin cancel allowedFrom = %v, want every cancellable state", got)
	}
}
