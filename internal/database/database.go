package database

import (
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"reparto-backend/internal/changefeed"
)

func Connect(dbURL string, log *logrus.Logger) (*sqlx.DB, error) {
	log.WithField("url_prefix", dbURL[:min(30, len(dbURL))]+"...").Info("🔌 Connecting to database")

	db, err := sqlx.Connect("postgres", dbURL)
	if err != nil {
		log.WithError(err).Errorf("❌ Database connection failed (%T)", err)
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.Ping(); err != nil {
		log.WithError(err).Error("❌ Database ping failed")
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Info("✅ Database connection successful")
	return db, nil
}

func Migrate(db *sqlx.DB, log *logrus.Logger) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS restaurantes (
			id TEXT PRIMARY KEY,
			nombre TEXT NOT NULL,
			creado_en BIGINT NOT NULL DEFAULT EXTRACT(EPOCH FROM NOW())::BIGINT
		)`,

		// One row per courier; id is the courier's user id.
		`CREATE TABLE IF NOT EXISTS repartidores (
			id TEXT PRIMARY KEY,
			nombre_completo TEXT NOT NULL DEFAULT '',
			tipo_vehiculo TEXT NOT NULL DEFAULT 'moto',
			disponible BOOLEAN NOT NULL DEFAULT FALSE,
			total_entregas INT NOT NULL DEFAULT 0,
			calificacion_promedio DOUBLE PRECISION,
			actualizado_en BIGINT NOT NULL DEFAULT EXTRACT(EPOCH FROM NOW())::BIGINT,
			CHECK (total_entregas >= 0)
		)`,

		`CREATE SEQUENCE IF NOT EXISTS pedidos_numero_seq`,

		`CREATE TABLE IF NOT EXISTS pedidos (
			id TEXT PRIMARY KEY,
			numero_pedido BIGINT NOT NULL UNIQUE DEFAULT nextval('pedidos_numero_seq'),
			estado TEXT NOT NULL DEFAULT 'pendiente',
			total NUMERIC(12,2) NOT NULL,
			direccion_entrega TEXT NOT NULL,
			latitud DOUBLE PRECISION NOT NULL DEFAULT 0,
			longitud DOUBLE PRECISION NOT NULL DEFAULT 0,
			notas TEXT,
			usuario_id TEXT NOT NULL,
			restaurante_id TEXT NOT NULL,
			repartidor_id TEXT,
			creado_en BIGINT NOT NULL,
			confirmado_en BIGINT,
			preparando_en BIGINT,
			listo_en BIGINT,
			asignado_en BIGINT,
			en_camino_en BIGINT,
			entregado_en BIGINT,
			cancelado_en BIGINT,
			actualizado_en BIGINT NOT NULL,
			FOREIGN KEY (repartidor_id) REFERENCES repartidores(id) ON DELETE RESTRICT,
			CHECK (estado IN ('pendiente', 'confirmado', 'en_preparacion', 'listo', 'en_camino', 'entregado', 'cancelado')),
			CHECK (total >= 0),
			CHECK (estado NOT IN ('en_camino', 'entregado') OR repartidor_id IS NOT NULL)
		)`,

		`CREATE TABLE IF NOT EXISTS pedido_items (
			id TEXT PRIMARY KEY,
			pedido_id TEXT NOT NULL,
			nombre TEXT NOT NULL,
			precio_unitario NUMERIC(12,2) NOT NULL,
			cantidad INT NOT NULL,
			notas TEXT,
			FOREIGN KEY (pedido_id) REFERENCES pedidos(id) ON DELETE CASCADE,
			CHECK (cantidad > 0),
			CHECK (precio_unitario >= 0)
		)`,

		// Exactly one row per courier, replaced via UPSERT.
		`CREATE TABLE IF NOT EXISTS ubicacion_real (
			usuario_id TEXT PRIMARY KEY,
			latitud DOUBLE PRECISION NOT NULL,
			longitud DOUBLE PRECISION NOT NULL,
			velocidad DOUBLE PRECISION,
			heading DOUBLE PRECISION,
			precision_metros INT,
			actualizado_en BIGINT NOT NULL DEFAULT EXTRACT(EPOCH FROM NOW())::BIGINT
		)`,

		`CREATE INDEX IF NOT EXISTS idx_pedidos_estado ON pedidos(estado)`,
		`CREATE INDEX IF NOT EXISTS idx_pedidos_restaurante ON pedidos(restaurante_id, creado_en)`,
		`CREATE INDEX IF NOT EXISTS idx_pedidos_usuario ON pedidos(usuario_id)`,
		`CREATE INDEX IF NOT EXISTS idx_pedidos_repartidor ON pedidos(repartidor_id, estado)`,
		`CREATE INDEX IF NOT EXISTS idx_pedidos_sin_asignar ON pedidos(estado) WHERE repartidor_id IS NULL`,
		`CREATE INDEX IF NOT EXISTS idx_pedido_items_pedido ON pedido_items(pedido_id)`,

		// Terminal orders are immutable and the frozen total never changes.
		`CREATE OR REPLACE FUNCTION proteger_pedido() RETURNS trigger AS $$
		BEGIN
			IF OLD.estado IN ('entregado', 'cancelado') THEN
				RAISE EXCEPTION 'pedido % is terminal (%)', OLD.id, OLD.estado;
			END IF;
			IF NEW.total <> OLD.total THEN
				RAISE EXCEPTION 'pedido % total is frozen', OLD.id;
			END IF;
			RETURN NEW;
		END;
		$$ LANGUAGE plpgsql`,
		`DROP TRIGGER IF EXISTS trg_proteger_pedido ON pedidos`,
		`CREATE TRIGGER trg_proteger_pedido BEFORE UPDATE ON pedidos
			FOR EACH ROW EXECUTE FUNCTION proteger_pedido()`,

		`CREATE OR REPLACE FUNCTION congelar_items() RETURNS trigger AS $$
		BEGIN
			RAISE EXCEPTION 'pedido_items are frozen once created';
		END;
		$$ LANGUAGE plpgsql`,
		`DROP TRIGGER IF EXISTS trg_congelar_items ON pedido_items`,
		`CREATE TRIGGER trg_congelar_items BEFORE UPDATE ON pedido_items
			FOR EACH ROW EXECUTE FUNCTION congelar_items()`,

		// Change feed: every committed row change on the watched tables is
		// published on the cambios channel, key columns only.
		notifyFunction(),
		`DROP TRIGGER IF EXISTS trg_cambios_pedidos ON pedidos`,
		`CREATE TRIGGER trg_cambios_pedidos AFTER INSERT OR UPDATE OR DELETE ON pedidos
			FOR EACH ROW EXECUTE FUNCTION notificar_cambio()`,
		`DROP TRIGGER IF EXISTS trg_cambios_repartidores ON repartidores`,
		`CREATE TRIGGER trg_cambios_repartidores AFTER INSERT OR UPDATE OR DELETE ON repartidores
			FOR EACH ROW EXECUTE FUNCTION notificar_cambio()`,
		`DROP TRIGGER IF EXISTS trg_cambios_ubicacion ON ubicacion_real`,
		`CREATE TRIGGER trg_cambios_ubicacion AFTER INSERT OR UPDATE OR DELETE ON ubicacion_real
			FOR EACH ROW EXECUTE FUNCTION notificar_cambio()`,
	}

	for _, migration := range migrations {
		if _, err := db.Exec(migration); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	log.Info("✓ Database migrations completed")
	return nil
}

// notifyFunction builds the trigger function behind the change feed. Rows
// are cut down to changefeed.KeyColumns before they go through pg_notify.
func notifyFunction() string {
	keys := func(rec string) string {
		parts := make([]string, len(changefeed.KeyColumns))
		for i, c := range changefeed.KeyColumns {
			parts[i] = fmt.Sprintf("'%s', to_jsonb(%s)->'%s'", c, rec, c)
		}
		return "jsonb_build_object(" + strings.Join(parts, ", ") + ")"
	}
	return `CREATE OR REPLACE FUNCTION notificar_cambio() RETURNS trigger AS $$
		BEGIN
			PERFORM pg_notify('` + ChangeChannel + `', json_build_object(
				'type', TG_OP,
				'table', TG_TABLE_NAME,
				'old', CASE WHEN TG_OP = 'INSERT' THEN NULL ELSE ` + keys("OLD") + ` END,
				'new', CASE WHEN TG_OP = 'DELETE' THEN NULL ELSE ` + keys("NEW") + ` END,
				'at', EXTRACT(EPOCH FROM NOW())::BIGINT
			)::text);
			RETURN COALESCE(NEW, OLD);
		END;
		$$ LANGUAGE plpgsql`
}
