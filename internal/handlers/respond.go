package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"reparto-backend/internal/lifecycle"
	"reparto-backend/internal/middleware"
	"reparto-backend/internal/models"
	"reparto-backend/internal/services/directions"
	"reparto-backend/internal/store"
	"reparto-backend/internal/tracking"
	"reparto-backend/pkg/utils"
)

func statusFor(reason lifecycle.Reason) int {
	switch reason {
	case lifecycle.ReasonNotFound:
		return http.StatusNotFound
	case lifecycle.ReasonConflict, lifecycle.ReasonNotClaimable, lifecycle.ReasonCourierUnavailable:
		return http.StatusConflict
	case lifecycle.ReasonIllegalTransition, lifecycle.ReasonInvalid:
		return http.StatusUnprocessableEntity
	case lifecycle.ReasonUnauthorized:
		return http.StatusForbidden
	}
	return http.StatusInternalServerError
}

// respondOutcome writes an applied outcome with okStatus, or the rejection
// with the current row when the actor may see it.
func respondOutcome(w http.ResponseWriter, out lifecycle.Outcome, okStatus int) {
	if out.Applied {
		utils.RespondJSON(w, okStatus, out.Order)
		return
	}
	var current interface{}
	if out.Order != nil {
		current = out.Order
	}
	utils.RespondRejected(w, statusFor(out.Reason), string(out.Reason), current)
}

func respondErr(w http.ResponseWriter, log *logrus.Logger, err error) {
	var verrs validator.ValidationErrors
	switch {
	case errors.Is(err, store.ErrNotFound):
		utils.RespondError(w, http.StatusNotFound, "not_found")
	case errors.Is(err, lifecycle.ErrForbidden), errors.Is(err, tracking.ErrForbidden):
		utils.RespondError(w, http.StatusForbidden, "unauthorized")
	case errors.Is(err, store.ErrInvalid), errors.Is(err, tracking.ErrInvalidFix):
		utils.RespondError(w, http.StatusUnprocessableEntity, "invalid_request")
	case errors.As(err, &verrs):
		utils.RespondError(w, http.StatusUnprocessableEntity, verrs.Error())
	case errors.Is(err, directions.ErrNoRoute):
		utils.RespondError(w, http.StatusUnprocessableEntity, "no_route")
	case errors.Is(err, directions.ErrDisabled):
		utils.RespondError(w, http.StatusServiceUnavailable, "directions_disabled")
	default:
		log.WithError(err).Error("❌ Request failed")
		utils.RespondError(w, http.StatusInternalServerError, "internal_error")
	}
}

// decode reads a JSON body and validates it.
func decode(r *http.Request, validate *validator.Validate, dst interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return errors.Wrap(store.ErrInvalid, err.Error())
	}
	if err := validate.Struct(dst); err != nil {
		return err
	}
	return nil
}

// actorOrFail extracts the actor placed by middleware.Auth.
func actorOrFail(w http.ResponseWriter, r *http.Request) (models.Actor, bool) {
	actor, ok := middleware.ActorFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
	}
	return actor, ok
}
