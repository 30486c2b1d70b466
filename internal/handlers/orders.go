package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"reparto-backend/internal/lifecycle"
	"reparto-backend/internal/models"
	"reparto-backend/internal/store"
	"reparto-backend/pkg/utils"
)

// Free-text limits keep an order row, and anything derived from it, small.
type CreateOrderItem struct {
	Name      string          `json:"nombre" validate:"required,max=200"`
	UnitPrice decimal.Decimal `json:"precio_unitario"`
	Quantity  int             `json:"cantidad" validate:"gt=0"`
	Notes     *string         `json:"notas" validate:"omitempty,max=500"`
}

type CreateOrderRequest struct {
	RestaurantID    string            `json:"restaurante_id" validate:"required,max=64"`
	DeliveryAddress string            `json:"direccion_entrega" validate:"required,max=500"`
	Latitude        float64           `json:"latitud" validate:"gte=-90,lte=90"`
	Longitude       float64           `json:"longitud" validate:"gte=-180,lte=180"`
	Notes           *string           `json:"notas" validate:"omitempty,max=1000"`
	Items           []CreateOrderItem `json:"items" validate:"required,min=1,max=50,dive"`
}

type TransitionRequest struct {
	State models.OrderState `json:"estado" validate:"required"`
}

// CreateOrder places an order for the authenticated customer.
func CreateOrder(svc *lifecycle.Service, validate *validator.Validate, log *logrus.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := actorOrFail(w, r)
		if !ok {
			return
		}

		var req CreateOrderRequest
		if err := decode(r, validate, &req); err != nil {
			respondErr(w, log, err)
			return
		}

		n := store.NewOrder{
			RestaurantID:    req.RestaurantID,
			DeliveryAddress: req.DeliveryAddress,
			Latitude:        req.Latitude,
			Longitude:       req.Longitude,
			Notes:           req.Notes,
		}
		for _, it := range req.Items {
			n.Items = append(n.Items, store.NewOrderItem{
				Name:      it.Name,
				UnitPrice: it.UnitPrice,
				Quantity:  it.Quantity,
				Notes:     it.Notes,
			})
		}

		out, err := svc.Create(r.Context(), actor, n)
		if err != nil {
			respondErr(w, log, err)
			return
		}
		respondOutcome(w, out, http.StatusCreated)
	}
}

// ListOrders supports ?estado=a,b, ?sin_asignar=true (couriers: the
// claimable board) and ?limit=n.
func ListOrders(svc *lifecycle.Service, log *logrus.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := actorOrFail(w, r)
		if !ok {
			return
		}

		q := r.URL.Query()
		var f store.OrderFilter
		if raw := q.Get("estado"); raw != "" {
			for _, part := range strings.Split(raw, ",") {
				s := models.OrderState(strings.TrimSpace(part))
				if !s.Valid() {
					utils.RespondError(w, http.StatusUnprocessableEntity, "unknown estado "+string(s))
					return
				}
				f.States = append(f.States, s)
			}
		}
		f.Unassigned = q.Get("sin_asignar") == "true"
		if raw := q.Get("limit"); raw != "" {
			if n, err := strconv.Atoi(raw); err == nil {
				f.Limit = n
			}
		}

		orders, err := svc.List(r.Context(), actor, f)
		if err != nil {
			respondErr(w, log, err)
			return
		}
		utils.RespondJSON(w, http.StatusOK, orders)
	}
}

func GetOrder(svc *lifecycle.Service, log *logrus.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := actorOrFail(w, r)
		if !ok {
			return
		}
		o, err := svc.Get(r.Context(), actor, chi.URLParam(r, "id"))
		if err != nil {
			respondErr(w, log, err)
			return
		}
		utils.RespondJSON(w, http.StatusOK, o)
	}
}

func ClaimOrder(svc *lifecycle.Service, log *logrus.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := actorOrFail(w, r)
		if !ok {
			return
		}
		out, err := svc.Claim(r.Context(), actor, chi.URLParam(r, "id"))
		if err != nil {
			respondErr(w, log, err)
			return
		}
		respondOutcome(w, out, http.StatusOK)
	}
}

func TransitionOrder(svc *lifecycle.Service, validate *validator.Validate, log *logrus.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := actorOrFail(w, r)
		if !ok {
			return
		}

		var req TransitionRequest
		if err := decode(r, validate, &req); err != nil {
			respondErr(w, log, err)
			return
		}

		out, err := svc.Transition(r.Context(), actor, chi.URLParam(r, "id"), req.State)
		if err != nil {
			respondErr(w, log, err)
			return
		}
		respondOutcome(w, out, http.StatusOK)
	}
}

func CancelOrder(svc *lifecycle.Service, log *logrus.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := actorOrFail(w, r)
		if !ok {
			return
		}
		out, err := svc.Cancel(r.Context(), actor, chi.URLParam(r, "id"))
		if err != nil {
			respondErr(w, log, err)
			return
		}
		respondOutcome(w, out, http.StatusOK)
	}
}
