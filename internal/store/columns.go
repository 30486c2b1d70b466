package store

import "reparto-backend/internal/models"

// StampColumn is the pedidos column set when an order enters s.
func StampColumn(s models.OrderState) string {
	switch s {
	case models.StateConfirmed:
		return "confirmado_en"
	case models.StatePreparing:
		return "preparando_en"
	case models.StateReady:
		return "listo_en"
	case models.StateOnTheWay:
		return "en_camino_en"
	case models.StateDelivered:
		return "entregado_en"
	case models.StateCancelled:
		return "cancelado_en"
	}
	return ""
}

// Stamp sets the matching timestamp field on o.
func Stamp(o *models.Order, s models.OrderState, at int64) {
	ts := at
	switch s {
	case models.StateConfirmed:
		o.ConfirmedAt = &ts
	case models.StatePreparing:
		o.PreparingAt = &ts
	case models.StateReady:
		o.ReadyAt = &ts
	case models.StateOnTheWay:
		o.PickedUpAt = &ts
	case models.StateDelivered:
		o.DeliveredAt = &ts
	case models.StateCancelled:
		o.CancelledAt = &ts
	}
}
