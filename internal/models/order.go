package models

import "github.com/shopspring/decimal"

// OrderState is the lifecycle state stored in pedidos.estado
type OrderState string

const (
	StatePending   OrderState = "pendiente"
	StateConfirmed OrderState = "confirmado"
	StatePreparing OrderState = "en_preparacion"
	StateReady     OrderState = "listo"
	StateOnTheWay  OrderState = "en_camino"
	StateDelivered OrderState = "entregado"
	StateCancelled OrderState = "cancelado"
)

// AllStates lists every state in lifecycle order, cancelado last.
var AllStates = []OrderState{
	StatePending,
	StateConfirmed,
	StatePreparing,
	StateReady,
	StateOnTheWay,
	StateDelivered,
	StateCancelled,
}

func (s OrderState) Valid() bool {
	for _, st := range AllStates {
		if st == s {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transition is possible from s.
func (s OrderState) Terminal() bool {
	return s == StateDelivered || s == StateCancelled
}

// Order mirrors a row of the pedidos table. Total and Items are frozen at
// creation time.
type Order struct {
	ID              string          `json:"id" db:"id"`
	Number          int64           `json:"numero_pedido" db:"numero_pedido"`
	State           OrderState      `json:"estado" db:"estado"`
	Total           decimal.Decimal `json:"total" db:"total"`
	DeliveryAddress string          `json:"direccion_entrega" db:"direccion_entrega"`
	Latitude        float64         `json:"latitud" db:"latitud"`
	Longitude       float64         `json:"longitud" db:"longitud"`
	Notes           *string         `json:"notas,omitempty" db:"notas"`
	CustomerID      string          `json:"usuario_id" db:"usuario_id"`
	RestaurantID    string          `json:"restaurante_id" db:"restaurante_id"`
	CourierID       *string         `json:"repartidor_id" db:"repartidor_id"`
	CreatedAt       int64           `json:"creado_en" db:"creado_en"`
	ConfirmedAt     *int64          `json:"confirmado_en,omitempty" db:"confirmado_en"`
	PreparingAt     *int64          `json:"preparando_en,omitempty" db:"preparando_en"`
	ReadyAt         *int64          `json:"listo_en,omitempty" db:"listo_en"`
	AssignedAt      *int64          `json:"asignado_en,omitempty" db:"asignado_en"`
	PickedUpAt      *int64          `json:"en_camino_en,omitempty" db:"en_camino_en"`
	DeliveredAt     *int64          `json:"entregado_en,omitempty" db:"entregado_en"`
	CancelledAt     *int64          `json:"cancelado_en,omitempty" db:"cancelado_en"`
	UpdatedAt       int64           `json:"actualizado_en" db:"actualizado_en"`

	Items []OrderItem `json:"items,omitempty" db:"-"`
}

// HasCourier reports whether a courier has claimed the order.
func (o *Order) HasCourier() bool {
	return o.CourierID != nil && *o.CourierID != ""
}

// AssignedTo reports whether courierID holds the order.
func (o *Order) AssignedTo(courierID string) bool {
	return o.HasCourier() && *o.CourierID == courierID
}

// OrderItem is a frozen snapshot of a cart line (pedido_items).
type OrderItem struct {
	ID        string          `json:"id" db:"id"`
	OrderID   string          `json:"pedido_id" db:"pedido_id"`
	Name      string          `json:"nombre" db:"nombre"`
	UnitPrice decimal.Decimal `json:"precio_unitario" db:"precio_unitario"`
	Quantity  int             `json:"cantidad" db:"cantidad"`
	Notes     *string         `json:"notas,omitempty" db:"notas"`
}

// Subtotal returns unit price times quantity.
func (i OrderItem) Subtotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}
