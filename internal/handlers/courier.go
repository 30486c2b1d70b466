package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"reparto-backend/internal/models"
	"reparto-backend/internal/tracking"
	"reparto-backend/pkg/utils"
)

type AvailabilityRequest struct {
	Available *bool `json:"disponible" validate:"required"`
}

// ReportPosition accepts one fix from the courier device. The device has
// already applied its own quality and rate gate.
func ReportPosition(svc *tracking.Service, validate *validator.Validate, log *logrus.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := actorOrFail(w, r)
		if !ok {
			return
		}

		var req models.PositionReport
		if err := decode(r, validate, &req); err != nil {
			respondErr(w, log, err)
			return
		}

		pos, err := svc.Report(r.Context(), actor, req)
		if err != nil {
			respondErr(w, log, err)
			return
		}
		utils.RespondJSON(w, http.StatusOK, pos)
	}
}

func SetAvailability(svc *tracking.Service, validate *validator.Validate, log *logrus.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := actorOrFail(w, r)
		if !ok {
			return
		}

		var req AvailabilityRequest
		if err := decode(r, validate, &req); err != nil {
			respondErr(w, log, err)
			return
		}

		c, err := svc.SetAvailability(r.Context(), actor, *req.Available)
		if err != nil {
			respondErr(w, log, err)
			return
		}
		utils.RespondJSON(w, http.StatusOK, c)
	}
}

func GetCourierPosition(svc *tracking.Service, log *logrus.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := actorOrFail(w, r)
		if !ok {
			return
		}
		pos, err := svc.Position(r.Context(), actor, chi.URLParam(r, "id"))
		if err != nil {
			respondErr(w, log, err)
			return
		}
		utils.RespondJSON(w, http.StatusOK, pos)
	}
}
