package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"reparto-backend/internal/fanout"
	"reparto-backend/internal/lifecycle"
	"reparto-backend/internal/middleware"
	"reparto-backend/internal/models"
	"reparto-backend/internal/panels"
	"reparto-backend/internal/services/directions"
	"reparto-backend/internal/tracking"
	"reparto-backend/internal/websocket"
	"reparto-backend/pkg/utils"
)

// Deps is everything the HTTP surface is built from.
type Deps struct {
	Orders     *lifecycle.Service
	Tracking   *tracking.Service
	Panels     *panels.Reader
	Directions *directions.Client
	Fanout     *fanout.Hub
	Sockets    *websocket.Hub
	Secret     string
	Log        *logrus.Logger
}

func NewRouter(d Deps) http.Handler {
	validate := validator.New()
	log := d.Log

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger(log))
	r.Use(chimiddleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/health", Health(d))

	// authentication handled in handler via query param
	if d.Sockets != nil {
		r.Get("/ws", websocket.HandleWebSocket(d.Sockets, d.Secret, log))
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Auth(d.Secret, log))

		r.Post("/orders", CreateOrder(d.Orders, validate, log))
		r.Get("/orders", ListOrders(d.Orders, log))
		r.Get("/orders/{id}", GetOrder(d.Orders, log))
		r.Post("/orders/{id}/claim", ClaimOrder(d.Orders, log))
		r.Post("/orders/{id}/transition", TransitionOrder(d.Orders, validate, log))
		r.Post("/orders/{id}/cancel", CancelOrder(d.Orders, log))
		r.Get("/orders/{id}/route", GetOrderRoute(d.Orders, d.Tracking, d.Directions, log))

		r.Get("/couriers/{id}/position", GetCourierPosition(d.Tracking, log))

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireRole(models.RoleCourier))
			r.Post("/courier/position", ReportPosition(d.Tracking, validate, log))
			r.Patch("/courier/availability", SetAvailability(d.Tracking, validate, log))
		})

		r.Get("/panels/restaurant/{id}", RestaurantPanel(d.Panels, log))
		r.Get("/panels/courier/{id}", CourierPanel(d.Panels, log))

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireRole(models.RoleDispatcher, models.RoleAdmin))
			r.Get("/panels/system", SystemPanel(d.Panels, log))
			r.Get("/panels/fleet", FleetPanel(d.Panels, log))
			r.Get("/panels/leaderboard", Leaderboard(d.Panels, log))
		})
	})

	return r
}

// Health reports liveness plus a few runtime counters.
func Health(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body := map[string]interface{}{"status": "ok"}
		if d.Fanout != nil {
			body["subscriptions"] = d.Fanout.Count()
		}
		if d.Sockets != nil {
			body["ws_clients"] = d.Sockets.GetClientCount()
			body["ws_subscriptions"] = d.Sockets.SubscriptionCount()
		}
		if d.Directions != nil {
			body["directions"] = d.Directions.Stats()
		}
		utils.RespondJSON(w, http.StatusOK, body)
	}
}
