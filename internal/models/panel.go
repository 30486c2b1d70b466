package models

import "github.com/shopspring/decimal"

// RestaurantPanel is the dashboard rollup for one restaurant.
type RestaurantPanel struct {
	RestaurantID string             `json:"restaurante_id"`
	OrdersToday  int                `json:"pedidos_hoy"`
	RevenueToday decimal.Decimal    `json:"ingresos_hoy"`
	OrdersMonth  int                `json:"pedidos_mes"`
	RevenueMonth decimal.Decimal    `json:"ingresos_mes"`
	Active       int                `json:"activos"`
	ByState      map[OrderState]int `json:"por_estado"`
	GeneratedAt  int64              `json:"generado_en"`
}

// FleetPanel summarizes courier availability.
type FleetPanel struct {
	Total       int   `json:"total"`
	Available   int   `json:"disponibles"`
	Busy        int   `json:"ocupados"`
	Offline     int   `json:"no_disponibles"`
	Reporting   int   `json:"reportando"`
	GeneratedAt int64 `json:"generado_en"`
}

// SystemPanel is the system-wide order histogram.
type SystemPanel struct {
	ByState      map[OrderState]int `json:"por_estado"`
	Total        int                `json:"total"`
	Active       int                `json:"activos"`
	OrdersToday  int                `json:"pedidos_hoy"`
	RevenueToday decimal.Decimal    `json:"ingresos_hoy"`
	GeneratedAt  int64              `json:"generado_en"`
}

// CourierPanel is what a courier sees about their own work.
type CourierPanel struct {
	CourierID       string           `json:"repartidor_id"`
	Name            string           `json:"nombre_completo"`
	Available       bool             `json:"disponible"`
	TotalDeliveries int              `json:"total_entregas"`
	AverageRating   float64          `json:"calificacion_promedio"`
	DeliveriesToday int              `json:"entregas_hoy"`
	ActiveOrders    int              `json:"pedidos_activos"`
	Position        *CourierPosition `json:"ubicacion,omitempty"`
	GeneratedAt     int64            `json:"generado_en"`
}

type LeaderboardEntry struct {
	ID    string          `json:"id" db:"id"`
	Name  string          `json:"nombre" db:"nombre"`
	Count int             `json:"pedidos" db:"pedidos"`
	Value decimal.Decimal `json:"valor" db:"valor"`
}

type Leaderboard struct {
	Restaurants []LeaderboardEntry `json:"restaurantes"`
	Couriers    []LeaderboardEntry `json:"repartidores"`
	Since       int64              `json:"desde"`
	GeneratedAt int64              `json:"generado_en"`
}
