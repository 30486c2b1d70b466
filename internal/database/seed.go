package database

import (
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"

	"reparto-backend/internal/models"
)

// Restaurant is the seed shape of a restaurantes row.
type Restaurant struct {
	ID   string `db:"id"`
	Name string `db:"nombre"`
}

var DemoRestaurants = []Restaurant{
	{ID: "rest-centro", Name: "Taquería El Centro"},
	{ID: "rest-roma", Name: "Cocina Roma"},
	{ID: "rest-condesa", Name: "Pizzería Condesa"},
}

// DemoCouriers ids are the user ids carried in courier tokens.
var DemoCouriers = []models.Courier{
	{ID: "rep-ana", FullName: "Ana Torres", VehicleType: "moto", Available: true},
	{ID: "rep-luis", FullName: "Luis Ramírez", VehicleType: "bicicleta", Available: true},
	{ID: "rep-sofia", FullName: "Sofía Méndez", VehicleType: "auto", Available: false},
}

// SeedRestaurants inserts the demo restaurants unless any exist.
func SeedRestaurants(db *sqlx.DB, log *logrus.Logger) error {
	var count int
	if err := db.Get(&count, "SELECT COUNT(*) FROM restaurantes"); err != nil {
		return err
	}

	if count > 0 {
		log.Info("✓ Restaurants already seeded, skipping...")
		return nil
	}

	log.Info("🌱 Seeding restaurants...")

	for _, r := range DemoRestaurants {
		if _, err := db.NamedExec(`INSERT INTO restaurantes (id, nombre) VALUES (:id, :nombre)`, r); err != nil {
			return err
		}
		log.Infof("  ✓ Created restaurant: %s", r.Name)
	}

	log.Info("✓ Successfully seeded restaurants")
	return nil
}

// SeedCouriers inserts the demo couriers unless any exist.
func SeedCouriers(db *sqlx.DB, log *logrus.Logger) error {
	var count int
	if err := db.Get(&count, "SELECT COUNT(*) FROM repartidores"); err != nil {
		return err
	}

	if count > 0 {
		log.Info("✓ Couriers already seeded, skipping...")
		return nil
	}

	log.Info("🌱 Seeding couriers...")

	now := time.Now().Unix()
	for _, c := range DemoCouriers {
		c.UpdatedAt = now
		query := `
			INSERT INTO repartidores (id, nombre_completo, tipo_vehiculo, disponible, actualizado_en)
			VALUES (:id, :nombre_completo, :tipo_vehiculo, :disponible, :actualizado_en)
		`
		if _, err := db.NamedExec(query, c); err != nil {
			return err
		}
		log.Infof("  ✓ Created courier: %s (%s)", c.FullName, c.ID)
	}

	log.Info("✓ Successfully seeded couriers")
	return nil
}
