package database

import (
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"

	"reparto-backend/internal/models"
	"reparto-backend/internal/store"
)

// Store is the PostgreSQL change-feed store. Every claim and transition is
// a single conditional UPDATE, so two racing writers cannot both apply.
type Store struct {
	db  *sqlx.DB
	dsn string
	log *logrus.Logger
	now func() time.Time
}

var _ store.Store = (*Store)(nil)

// New wraps db. dsn is used again to open the dedicated LISTEN connection.
func New(db *sqlx.DB, dsn string, log *logrus.Logger) *Store {
	return &Store{db: db, dsn: dsn, log: log, now: time.Now}
}

const orderColumns = `id, numero_pedido, estado, total, direccion_entrega, latitud, longitud, notas,
	usuario_id, restaurante_id, repartidor_id, creado_en, confirmado_en, preparando_en, listo_en,
	asignado_en, en_camino_en, entregado_en, cancelado_en, actualizado_en`

const courierColumns = `id, nombre_completo, tipo_vehiculo, disponible, total_entregas,
	calificacion_promedio, actualizado_en`

const positionColumns = `usuario_id, latitud, longitud, velocidad, heading, precision_metros, actualizado_en`

func stateStrings(states []models.OrderState) []string {
	out := make([]string, len(states))
	for i, s := range states {
		out[i] = string(s)
	}
	return out
}
