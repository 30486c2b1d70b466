package models

// Courier mirrors a row of the repartidores table. The id is the courier's
// user id, so it is also the key of ubicacion_real.
type Courier struct {
	ID              string   `json:"id" db:"id"`
	FullName        string   `json:"nombre_completo" db:"nombre_completo"`
	VehicleType     string   `json:"tipo_vehiculo" db:"tipo_vehiculo"`
	Available       bool     `json:"disponible" db:"disponible"`
	TotalDeliveries int      `json:"total_entregas" db:"total_entregas"`
	AverageRating   *float64 `json:"calificacion_promedio" db:"calificacion_promedio"`
	UpdatedAt       int64    `json:"actualizado_en" db:"actualizado_en"`
}

// CourierPosition is the latest-wins live position of one courier.
type CourierPosition struct {
	CourierID      string   `json:"usuario_id" db:"usuario_id"`
	Latitude       float64  `json:"latitud" db:"latitud"`
	Longitude      float64  `json:"longitud" db:"longitud"`
	Speed          *float64 `json:"velocidad,omitempty" db:"velocidad"`         // m/s
	Heading        *float64 `json:"heading,omitempty" db:"heading"`             // 0-360 degrees
	AccuracyMeters *int     `json:"precision_metros,omitempty" db:"precision_metros"`
	UpdatedAt      int64    `json:"actualizado_en" db:"actualizado_en"`
}

// PositionReport is what a courier device sends for one accepted fix.
type PositionReport struct {
	Latitude  float64  `json:"latitud" validate:"gte=-90,lte=90"`
	Longitude float64  `json:"longitud" validate:"gte=-180,lte=180"`
	Speed     *float64 `json:"velocidad,omitempty" validate:"omitempty,gte=0"`
	Heading   *float64 `json:"heading,omitempty" validate:"omitempty,gte=0,lte=360"`
	Accuracy  *float64 `json:"precision,omitempty" validate:"omitempty,gte=0"`
	Timestamp int64    `json:"timestamp,omitempty"` // client-side, unix seconds
}
