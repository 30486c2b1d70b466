package database

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"

	"reparto-backend/internal/models"
	"reparto-backend/internal/store"
)

func (s *Store) GetCourier(ctx context.Context, id string) (*models.Courier, error) {
	var c models.Courier
	err := s.db.GetContext(ctx, &c, `SELECT `+courierColumns+` FROM repartidores WHERE id = $1`, id)
	if err == sql.ErrNoRows {
		return nil, errors.Wrapf(store.ErrNotFound, "courier %s", id)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "get courier %s", id)
	}
	return &c, nil
}

func (s *Store) ListCouriers(ctx context.Context) ([]models.Courier, error) {
	couriers := []models.Courier{}
	err := s.db.SelectContext(ctx, &couriers, `SELECT `+courierColumns+` FROM repartidores ORDER BY id`)
	if err != nil {
		return nil, errors.Wrap(err, "list couriers")
	}
	return couriers, nil
}

func (s *Store) SetCourierAvailability(ctx context.Context, id string, available bool, at int64) (*models.Courier, error) {
	var c models.Courier
	err := s.db.QueryRowxContext(ctx, `
		UPDATE repartidores SET disponible = $2, actualizado_en = $3
		WHERE id = $1
		RETURNING `+courierColumns, id, available, at).StructScan(&c)
	if err == sql.ErrNoRows {
		return nil, errors.Wrapf(store.ErrNotFound, "courier %s", id)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "set availability for %s", id)
	}
	return &c, nil
}
