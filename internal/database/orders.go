package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"reparto-backend/internal/models"
	"reparto-backend/internal/store"
)

func (s *Store) CreateOrder(ctx context.Context, n store.NewOrder) (*models.Order, error) {
	if err := n.Validate(); err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var o models.Order
	err = tx.QueryRowxContext(ctx, `
		INSERT INTO pedidos (
			id, estado, total, direccion_entrega, latitud, longitud, notas,
			usuario_id, restaurante_id, creado_en, actualizado_en
		) VALUES ($1, 'pendiente', $2, $3, $4, $5, $6, $7, $8, $9, $9)
		RETURNING `+orderColumns,
		uuid.New().String(), n.Total(), n.DeliveryAddress, n.Latitude, n.Longitude, n.Notes,
		n.CustomerID, n.RestaurantID, n.At,
	).StructScan(&o)
	if err != nil {
		return nil, fmt.Errorf("failed to create order: %w", err)
	}

	for _, it := range n.Items {
		item := models.OrderItem{
			ID:        uuid.New().String(),
			OrderID:   o.ID,
			Name:      it.Name,
			UnitPrice: it.UnitPrice,
			Quantity:  it.Quantity,
			Notes:     it.Notes,
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO pedido_items (id, pedido_id, nombre, precio_unitario, cantidad, notas)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			item.ID, item.OrderID, item.Name, item.UnitPrice, item.Quantity, item.Notes,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create order item: %w", err)
		}
		o.Items = append(o.Items, item)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit order: %w", err)
	}
	return &o, nil
}

func (s *Store) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	var o models.Order
	err := s.db.GetContext(ctx, &o, `SELECT `+orderColumns+` FROM pedidos WHERE id = $1`, id)
	if err == sql.ErrNoRows {
		return nil, errors.Wrapf(store.ErrNotFound, "order %s", id)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "get order %s", id)
	}
	if err := s.loadItems(ctx, &o); err != nil {
		return nil, err
	}
	return &o, nil
}

func (s *Store) loadItems(ctx context.Context, o *models.Order) error {
	err := s.db.SelectContext(ctx, &o.Items, `
		SELECT id, pedido_id, nombre, precio_unitario, cantidad, notas
		FROM pedido_items WHERE pedido_id = $1 ORDER BY nombre, id`, o.ID)
	if err != nil {
		return errors.Wrapf(err, "load items for order %s", o.ID)
	}
	return nil
}

// ListOrders returns order rows newest first, without their lines.
func (s *Store) ListOrders(ctx context.Context, f store.OrderFilter) ([]models.Order, error) {
	var where []string
	var args []interface{}
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if len(f.States) > 0 {
		where = append(where, "estado = ANY("+arg(pq.Array(stateStrings(f.States)))+")")
	}
	if f.CustomerID != "" {
		where = append(where, "usuario_id = "+arg(f.CustomerID))
	}
	if f.RestaurantID != "" {
		where = append(where, "restaurante_id = "+arg(f.RestaurantID))
	}
	if f.CourierID != "" {
		where = append(where, "repartidor_id = "+arg(f.CourierID))
	}
	if f.Unassigned {
		where = append(where, "repartidor_id IS NULL")
	}

	query := `SELECT ` + orderColumns + ` FROM pedidos`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY creado_en DESC, numero_pedido DESC"
	if f.Limit > 0 {
		query += " LIMIT " + arg(f.Limit)
	}

	orders := []models.Order{}
	if err := s.db.SelectContext(ctx, &orders, query, args...); err != nil {
		return nil, errors.Wrap(err, "list orders")
	}
	return orders, nil
}

func (s *Store) ClaimOrder(ctx context.Context, c store.Claim) (*models.Order, bool, error) {
	var o models.Order
	err := s.db.QueryRowxContext(ctx, `
		UPDATE pedidos
		SET repartidor_id = $2, asignado_en = $3, actualizado_en = $3
		WHERE id = $1
		  AND repartidor_id IS NULL
		  AND estado = ANY($4)
		  AND ($5::boolean = FALSE OR EXISTS (
			SELECT 1 FROM repartidores r WHERE r.id = $2 AND r.disponible
		  ))
		RETURNING `+orderColumns,
		c.OrderID, c.CourierID, c.At, pq.Array(stateStrings(c.ClaimableStates)), c.RequireAvailable,
	).StructScan(&o)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrapf(err, "claim order %s", c.OrderID)
	}
	if err := s.loadItems(ctx, &o); err != nil {
		return nil, false, err
	}
	return &o, true, nil
}

func (s *Store) TransitionOrder(ctx context.Context, t store.Transition) (*models.Order, bool, error) {
	stamp := store.StampColumn(t.To)
	if stamp == "" {
		return nil, false, errors.Wrapf(store.ErrInvalid, "no transition into %s", t.To)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// stamp comes from a fixed whitelist, never from input.
	query := fmt.Sprintf(`
		UPDATE pedidos
		SET estado = $2, %s = $3, actualizado_en = $3
		WHERE id = $1
		  AND estado = ANY($4)
		  AND estado NOT IN ('entregado', 'cancelado')
		  AND ($5::boolean = FALSE OR repartidor_id IS NOT NULL)
		  AND ($6::text = '' OR restaurante_id = $6)
		  AND ($7::text = '' OR usuario_id = $7)
		  AND ($8::text = '' OR repartidor_id = $8)
		RETURNING %s`, stamp, orderColumns)

	var o models.Order
	err = tx.QueryRowxContext(ctx, query,
		t.OrderID, string(t.To), t.At, pq.Array(stateStrings(t.From)), t.RequireCourier,
		t.RestaurantID, t.CustomerID, t.CourierID,
	).StructScan(&o)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrapf(err, "transition order %s to %s", t.OrderID, t.To)
	}

	if t.To == models.StateDelivered && o.CourierID != nil {
		_, err := tx.ExecContext(ctx, `
			UPDATE repartidores SET total_entregas = total_entregas + 1, actualizado_en = $2
			WHERE id = $1`, *o.CourierID, t.At)
		if err != nil {
			return nil, false, errors.Wrapf(err, "count delivery for %s", *o.CourierID)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("failed to commit transition: %w", err)
	}
	if err := s.loadItems(ctx, &o); err != nil {
		return nil, false, err
	}
	return &o, true, nil
}
