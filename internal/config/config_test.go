package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"

	"reparto-backend/internal/models"
	"reparto-backend/internal/reporter"
)

func testViper(values map[string]interface{}) *viper.Viper {
	v := viper.New()
	defaults(v)
	for k, val := range values {
		v.Set(k, val)
	}
	return v
}

func TestDefaults(t *testing.T) {
	cfg, err := fromViper(testViper(map[string]interface{}{"STORE_DRIVER": "memory"}))
	if err != nil {
		t.Fatalf("fromViper() error = %v", err)
	}
	if cfg.Port != "8080" || cfg.PanelCacheTTL != 10*time.Second || cfg.PollInterval != 30*time.Second {
		t.Errorf("cfg = %+v", cfg)
	}
	want := []models.OrderState{models.StateConfirmed, models.StatePreparing, models.StateReady}
	if len(cfg.ClaimableStates) != len(want) {
		t.Fatalf("ClaimableStates = %v, want %v", cfg.ClaimableStates, want)
	}
	for i := range want {
		if cfg.ClaimableStates[i] != want[i] {
			t.Errorf("ClaimableStates[%d] = %s, want %s", i, cfg.ClaimableStates[i], want[i])
		}
	}
	p := cfg.Policy()
	if !p.RequireAvailableCourier || len(p.ClaimableStates) != 3 {
		t.Errorf("Policy() = %+v", p)
	}
}

func TestValidation(t *testing.T) {
	tests := []struct {
		name   string
		values map[string]interface{}
	}{
		{"postgres without url", map[string]interface{}{"STORE_DRIVER": "postgres"}},
		{"unknown driver", map[string]interface{}{"STORE_DRIVER": "mongo"}},
		{"terminal claimable", map[string]interface{}{"STORE_DRIVER": "memory", "CLAIMABLE_STATES": "listo,entregado"}},
		{"on the way claimable", map[string]interface{}{"STORE_DRIVER": "memory", "CLAIMABLE_STATES": "en_camino"}},
		{"unknown state", map[string]interface{}{"STORE_DRIVER": "memory", "CLAIMABLE_STATES": "ready"}},
		{"empty claimable", map[string]interface{}{"STORE_DRIVER": "memory", "CLAIMABLE_STATES": " , "}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := fromViper(testViper(tt.values)); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestClaimableOverride(t *testing.T) {
	cfg, err := fromViper(testViper(map[string]interface{}{
		"STORE_DRIVER":             "memory",
		"CLAIMABLE_STATES":         " listo ",
		"CLAIM_REQUIRES_AVAILABLE": false,
	}))
	if err != nil {
		t.Fatalf("fromViper() error = %v", err)
	}
	if len(cfg.ClaimableStates) != 1 || cfg.ClaimableStates[0] != models.StateReady {
		t.Errorf("ClaimableStates = %v", cfg.ClaimableStates)
	}
	if cfg.Policy().RequireAvailableCourier {
		t.Error("RequireAvailableCourier should follow config")
	}
}

func TestAgentRequiresToken(t *testing.T) {
	if _, err := agentFromViper(testViper(nil)); err == nil {
		t.Error("expected error without COURIER_TOKEN")
	}
	a, err := agentFromViper(testViper(map[string]interface{}{
		"COURIER_TOKEN": "tok",
		"SERVER_URL":    "http://api.local/",
	}))
	if err != nil {
		t.Fatalf("agentFromViper() error = %v", err)
	}
	if a.ServerURL != "http://api.local" || a.Report.Interval != reporter.DefaultInterval {
		t.Errorf("agent = %+v", a)
	}
	if a.Report.GoodAccuracy != reporter.DefaultGoodAccuracy || a.Report.DegradedAccuracy != reporter.DefaultDegradedAccuracy {
		t.Errorf("agent Report = %+v", a.Report)
	}

	a, err = agentFromViper(testViper(map[string]interface{}{
		"COURIER_TOKEN":   "tok",
		"REPORT_INTERVAL": "2s",
	}))
	if err != nil {
		t.Fatalf("agentFromViper() error = %v", err)
	}
	if a.Report.Interval != 2*time.Second {
		t.Errorf("Report.Interval = %v, want 2s", a.Report.Interval)
	}
}
