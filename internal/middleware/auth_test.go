package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"

	"reparto-backend/internal/models"
)

const secret = "test-secret"

func sign(t *testing.T, claims jwt.Claims, key string) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(key))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return s
}

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.Out = io.Discard
	return log
}

func TestParseToken(t *testing.T) {
	valid := sign(t, ActorClaims{UserID: "u-1", Role: "restaurante", RestaurantID: "rest-1"}, secret)
	actor, err := ParseToken(valid, secret)
	if err != nil {
		t.Fatalf("ParseToken() error = %v", err)
	}
	want := models.Actor{ID: "u-1", Role: models.RoleRestaurant, RestaurantID: "rest-1"}
	if actor != want {
		t.Errorf("actor = %+v, want %+v", actor, want)
	}

	expired := ActorClaims{UserID: "u-1", Role: "cliente"}
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Hour))

	tests := []struct {
		name  string
		token string
	}{
		{"wrong key", sign(t, ActorClaims{UserID: "u-1", Role: "cliente"}, "other")},
		{"unknown role", sign(t, ActorClaims{UserID: "u-1", Role: "driver"}, secret)},
		{"no user", sign(t, ActorClaims{Role: "cliente"}, secret)},
		{"restaurant without id", sign(t, ActorClaims{UserID: "u-1", Role: "restaurante"}, secret)},
		{"expired", sign(t, expired, secret)},
		{"garbage", "not-a-token"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseToken(tt.token, secret); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestAuthAndRequireRole(t *testing.T) {
	var seen models.Actor
	h := Auth(secret, quietLogger())(RequireRole(models.RoleDispatcher, models.RoleAdmin)(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			seen, _ = ActorFromContext(r.Context())
			w.WriteHeader(http.StatusNoContent)
		})))

	dispatcher := sign(t, ActorClaims{UserID: "d-1", Role: "despachador"}, secret)
	customer := sign(t, ActorClaims{UserID: "c-1", Role: "cliente"}, secret)

	tests := []struct {
		name   string
		header string
		query  string
		want   int
	}{
		{"no token", "", "", http.StatusUnauthorized},
		{"bad header", "Token " + dispatcher, "", http.StatusUnauthorized},
		{"wrong role", "Bearer " + customer, "", http.StatusForbidden},
		{"bearer", "Bearer " + dispatcher, "", http.StatusNoContent},
		{"query token", "", "?token=" + dispatcher, http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/panels/system"+tt.query, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
	if seen.ID != "d-1" || seen.Role != models.RoleDispatcher {
		t.Errorf("actor in context = %+v", seen)
	}
}

func TestPeekActorIgnoresSignature(t *testing.T) {
	tok := sign(t, ActorClaims{UserID: "rep-ana", Role: "repartidor"}, "someone-elses-secret")
	actor, err := PeekActor(tok)
	if err != nil {
		t.Fatalf("PeekActor() error = %v", err)
	}
	if actor.ID != "rep-ana" || actor.Role != models.RoleCourier {
		t.Errorf("actor = %+v", actor)
	}
	if _, err := ParseToken(tok, secret); err == nil {
		t.Error("ParseToken() accepted a token signed with another key")
	}
	if _, err := PeekActor("not-a-jwt"); err == nil {
		t.Error("PeekActor() accepted garbage")
	}
}
