package database

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"

	"reparto-backend/internal/models"
	"reparto-backend/internal/store"
)

// UpsertPosition keeps exactly one row per courier; the newest write wins.
func (s *Store) UpsertPosition(ctx context.Context, p models.CourierPosition) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO ubicacion_real (`+positionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (usuario_id) DO UPDATE SET
			latitud = EXCLUDED.latitud,
			longitud = EXCLUDED.longitud,
			velocidad = EXCLUDED.velocidad,
			heading = EXCLUDED.heading,
			precision_metros = EXCLUDED.precision_metros,
			actualizado_en = EXCLUDED.actualizado_en`,
		p.CourierID, p.Latitude, p.Longitude, p.Speed, p.Heading, p.AccuracyMeters, p.UpdatedAt)
	if err != nil {
		return errors.Wrapf(err, "upsert position for %s", p.CourierID)
	}
	return nil
}

func (s *Store) GetPosition(ctx context.Context, courierID string) (*models.CourierPosition, error) {
	var p models.CourierPosition
	err := s.db.GetContext(ctx, &p, `SELECT `+positionColumns+` FROM ubicacion_real WHERE usuario_id = $1`, courierID)
	if err == sql.ErrNoRows {
		return nil, errors.Wrapf(store.ErrNotFound, "position for %s", courierID)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "get position for %s", courierID)
	}
	return &p, nil
}

func (s *Store) ListPositions(ctx context.Context) ([]models.CourierPosition, error) {
	positions := []models.CourierPosition{}
	err := s.db.SelectContext(ctx, &positions, `SELECT `+positionColumns+` FROM ubicacion_real ORDER BY usuario_id`)
	if err != nil {
		return nil, errors.Wrap(err, "list positions")
	}
	return positions, nil
}
