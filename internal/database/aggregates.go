package database

import (
	"context"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"reparto-backend/internal/models"
	"reparto-backend/internal/store"
)

func (s *Store) StateCounts(ctx context.Context, restaurantID string) (map[models.OrderState]int, error) {
	var rows []struct {
		State models.OrderState `db:"estado"`
		Count int               `db:"n"`
	}
	err := s.db.SelectContext(ctx, &rows, `
		SELECT estado, COUNT(*) AS n FROM pedidos
		WHERE ($1::text = '' OR restaurante_id = $1)
		GROUP BY estado`, restaurantID)
	if err != nil {
		return nil, errors.Wrap(err, "count orders by state")
	}
	counts := make(map[models.OrderState]int, len(rows))
	for _, r := range rows {
		counts[r.State] = r.Count
	}
	return counts, nil
}

func (s *Store) OrderTotals(ctx context.Context, restaurantID string, since int64) (store.Totals, error) {
	var row struct {
		Orders  int                 `db:"pedidos"`
		Revenue decimal.NullDecimal `db:"valor"`
	}
	err := s.db.GetContext(ctx, &row, `
		SELECT COUNT(*) AS pedidos, SUM(total) AS valor FROM pedidos
		WHERE creado_en >= $2
		  AND estado <> 'cancelado'
		  AND ($1::text = '' OR restaurante_id = $1)`, restaurantID, since)
	if err != nil {
		return store.Totals{}, errors.Wrap(err, "order totals")
	}
	t := store.Totals{Orders: row.Orders, Revenue: decimal.Zero}
	if row.Revenue.Valid {
		t.Revenue = row.Revenue.Decimal
	}
	return t, nil
}

func (s *Store) CourierDeliveries(ctx context.Context, courierID string, since int64) (int, error) {
	var n int
	err := s.db.GetContext(ctx, &n, `
		SELECT COUNT(*) FROM pedidos
		WHERE repartidor_id = $1 AND estado = 'entregado' AND entregado_en >= $2`, courierID, since)
	if err != nil {
		return 0, errors.Wrapf(err, "count deliveries for %s", courierID)
	}
	return n, nil
}

func (s *Store) TopRestaurants(ctx context.Context, since int64, limit int) ([]models.LeaderboardEntry, error) {
	entries := []models.LeaderboardEntry{}
	err := s.db.SelectContext(ctx, &entries, `
		SELECT p.restaurante_id AS id,
		       COALESCE(r.nombre, p.restaurante_id) AS nombre,
		       COUNT(*) AS pedidos,
		       COALESCE(SUM(p.total), 0) AS valor
		FROM pedidos p
		LEFT JOIN restaurantes r ON r.id = p.restaurante_id
		WHERE p.creado_en >= $1 AND p.estado <> 'cancelado'
		GROUP BY p.restaurante_id, r.nombre
		ORDER BY valor DESC, id
		LIMIT $2`, since, limit)
	if err != nil {
		return nil, errors.Wrap(err, "top restaurants")
	}
	return entries, nil
}

func (s *Store) TopCouriers(ctx context.Context, since int64, limit int) ([]models.LeaderboardEntry, error) {
	entries := []models.LeaderboardEntry{}
	err := s.db.SelectContext(ctx, &entries, `
		SELECT p.repartidor_id AS id,
		       COALESCE(NULLIF(c.nombre_completo, ''), p.repartidor_id) AS nombre,
		       COUNT(*) AS pedidos,
		       COALESCE(SUM(p.total), 0) AS valor
		FROM pedidos p
		LEFT JOIN repartidores c ON c.id = p.repartidor_id
		WHERE p.estado = 'entregado' AND p.entregado_en >= $1
		GROUP BY p.repartidor_id, c.nombre_completo
		ORDER BY pedidos DESC, valor DESC, id
		LIMIT $2`, since, limit)
	if err != nil {
		return nil, errors.Wrap(err, "top couriers")
	}
	return entries, nil
}
