package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"reparto-backend/internal/panels"
	"reparto-backend/pkg/utils"
)

func SystemPanel(reader *panels.Reader, log *logrus.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := reader.System(r.Context())
		if err != nil {
			respondErr(w, log, err)
			return
		}
		utils.RespondJSON(w, http.StatusOK, p)
	}
}

func FleetPanel(reader *panels.Reader, log *logrus.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := reader.Fleet(r.Context())
		if err != nil {
			respondErr(w, log, err)
			return
		}
		utils.RespondJSON(w, http.StatusOK, p)
	}
}

// Leaderboard returns this month's top restaurants and couriers (?limit=n, max 100).
func Leaderboard(reader *panels.Reader, log *logrus.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := 10
		if raw := r.URL.Query().Get("limit"); raw != "" {
			if n, err := strconv.Atoi(raw); err == nil && n > 0 {
				limit = n
			}
		}
		if limit > 100 {
			limit = 100
		}

		lb, err := reader.Leaderboard(r.Context(), limit)
		if err != nil {
			respondErr(w, log, err)
			return
		}
		utils.RespondJSON(w, http.StatusOK, lb)
	}
}

func RestaurantPanel(reader *panels.Reader, log *logrus.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := actorOrFail(w, r)
		if !ok {
			return
		}
		id := chi.URLParam(r, "id")
		if !panels.CanViewRestaurant(actor, id) {
			utils.RespondError(w, http.StatusForbidden, "unauthorized")
			return
		}
		p, err := reader.Restaurant(r.Context(), id)
		if err != nil {
			respondErr(w, log, err)
			return
		}
		utils.RespondJSON(w, http.StatusOK, p)
	}
}

func CourierPanel(reader *panels.Reader, log *logrus.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := actorOrFail(w, r)
		if !ok {
			return
		}
		id := chi.URLParam(r, "id")
		if !panels.CanViewCourier(actor, id) {
			utils.RespondError(w, http.StatusForbidden, "unauthorized")
			return
		}
		p, err := reader.Courier(r.Context(), id)
		if err != nil {
			respondErr(w, log, err)
			return
		}
		utils.RespondJSON(w, http.StatusOK, p)
	}
}
