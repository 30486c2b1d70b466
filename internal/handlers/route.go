package handlers

import (
	"context"
	"math"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"reparto-backend/internal/lifecycle"
	"reparto-backend/internal/services/directions"
	"reparto-backend/internal/tracking"
	"reparto-backend/pkg/utils"
)

// Router is the directions provider used for ETA estimates.
type Router interface {
	Route(ctx context.Context, from, to directions.LatLng) (*directions.Route, error)
}

type RouteResponse struct {
	*directions.Route
	// Estimated is set when the provider was unavailable and the figures
	// are a straight-line guess.
	Estimated bool `json:"estimado"`
}

// assumed average urban courier speed for straight-line estimates, m/s
const fallbackSpeed = 6.0

// Calculate distance between two coordinates using Haversine formula, in meters
func calculateDistance(lat1, lon1, lat2, lon2 float64) float64 {
	const earthRadius = 6371000

	dLat := (lat2 - lat1) * math.Pi / 180.0
	dLon := (lon2 - lon1) * math.Pi / 180.0

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*math.Pi/180.0)*math.Cos(lat2*math.Pi/180.0)*
			math.Sin(dLon/2)*math.Sin(dLon/2)

	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadius * c
}

// GetOrderRoute estimates the trip from the assigned courier's live
// position to the delivery address.
func GetOrderRoute(orders *lifecycle.Service, track *tracking.Service, router Router, log *logrus.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := actorOrFail(w, r)
		if !ok {
			return
		}

		o, err := orders.Get(r.Context(), actor, chi.URLParam(r, "id"))
		if err != nil {
			respondErr(w, log, err)
			return
		}
		if !o.HasCourier() {
			utils.RespondError(w, http.StatusConflict, "not_assigned")
			return
		}

		pos, err := track.Position(r.Context(), actor, *o.CourierID)
		if err != nil {
			respondErr(w, log, err)
			return
		}

		from := directions.LatLng{Latitude: pos.Latitude, Longitude: pos.Longitude}
		to := directions.LatLng{Latitude: o.Latitude, Longitude: o.Longitude}

		route, err := router.Route(r.Context(), from, to)
		switch {
		case err == nil:
			utils.RespondJSON(w, http.StatusOK, RouteResponse{Route: route})
		case errors.Is(err, directions.ErrNoRoute):
			respondErr(w, log, err)
		default:
			log.WithError(err).WithField("order_id", o.ID).Warn("⚠️  Directions unavailable - using straight-line estimate")
			d := calculateDistance(from.Latitude, from.Longitude, to.Latitude, to.Longitude)
			utils.RespondJSON(w, http.StatusOK, RouteResponse{
				Route: &directions.Route{
					From:            from,
					To:              to,
					DistanceMeters:  math.Round(d),
					DurationSeconds: math.Round(d / fallbackSpeed),
				},
				Estimated: true,
			})
		}
	}
}
