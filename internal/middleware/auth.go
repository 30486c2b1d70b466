package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"reparto-backend/internal/models"
)

type contextKey string

const ActorContextKey contextKey = "actor"

// ActorClaims is the token payload. Token issuance lives elsewhere; this
// service only verifies.
type ActorClaims struct {
	UserID       string `json:"user_id"`
	Role         string `json:"role"`
	RestaurantID string `json:"restaurant_id,omitempty"`
	jwt.RegisteredClaims
}

var (
	ErrNoToken      = errors.New("missing token")
	ErrInvalidToken = errors.New("invalid token")
)

// ParseToken verifies an HMAC-signed token and returns its actor.
func ParseToken(tokenString, secret string) (models.Actor, error) {
	claims := &ActorClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte(secret), nil
	})
	if err != nil || !token.Valid {
		return models.Actor{}, errors.Wrap(ErrInvalidToken, errString(err))
	}

	actor := models.Actor{ID: claims.UserID, Role: models.Role(claims.Role), RestaurantID: claims.RestaurantID}
	if actor.ID == "" || !actor.Role.Valid() {
		return models.Actor{}, errors.Wrap(ErrInvalidToken, "missing user_id or unknown role")
	}
	if actor.Role == models.RoleRestaurant && actor.RestaurantID == "" {
		return models.Actor{}, errors.Wrap(ErrInvalidToken, "restaurant token without restaurant_id")
	}
	return actor, nil
}

// PeekActor reads the actor from a token without verifying it. Only for
// clients that hold their own token and never for authorization.
func PeekActor(tokenString string) (models.Actor, error) {
	claims := &ActorClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tokenString, claims); err != nil {
		return models.Actor{}, errors.Wrap(ErrInvalidToken, err.Error())
	}
	return models.Actor{ID: claims.UserID, Role: models.Role(claims.Role), RestaurantID: claims.RestaurantID}, nil
}

func errString(err error) string {
	if err == nil {
		return "token not valid"
	}
	return err.Error()
}

// TokenFromRequest reads a bearer header, falling back to the token query
// parameter used by browser WebSocket clients.
func TokenFromRequest(r *http.Request) (string, error) {
	if authHeader := r.Header.Get("Authorization"); authHeader != "" {
		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			return "", errors.Wrap(ErrNoToken, "invalid authorization header format")
		}
		return parts[1], nil
	}
	if token := r.URL.Query().Get("token"); token != "" {
		return token, nil
	}
	return "", ErrNoToken
}

// Auth validates the JWT and stores the actor in the request context.
func Auth(secret string, log *logrus.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString, err := TokenFromRequest(r)
			if err != nil {
				log.WithField("path", r.URL.Path).Debug("❌ No bearer token")
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			actor, err := ParseToken(tokenString, secret)
			if err != nil {
				log.WithError(err).WithField("path", r.URL.Path).Warn("❌ Invalid token")
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := WithActor(r.Context(), actor)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole rejects actors whose role is not listed (must be used after Auth).
func RequireRole(roles ...models.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, ok := ActorFromContext(r.Context())
			if !ok {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			for _, role := range roles {
				if actor.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			http.Error(w, "Forbidden", http.StatusForbidden)
		})
	}
}

func ActorFromContext(ctx context.Context) (models.Actor, bool) {
	actor, ok := ctx.Value(ActorContextKey).(models.Actor)
	return actor, ok
}

// WithActor stores a verified actor on ctx.
func WithActor(ctx context.Context, actor models.Actor) context.Context {
	return context.WithValue(ctx, ActorContextKey, actor)
}
