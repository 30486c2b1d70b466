package main

import (
	"flag"
	"fmt"

	"github.com/sirupsen/logrus"

	"reparto-backend/internal/config"
	"reparto-backend/internal/database"
	"reparto-backend/internal/logging"
)

func main() {
	seed := flag.Bool("seed", true, "insert demo restaurants and couriers into empty tables")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("configuration invalid")
	}
	if cfg.StoreDriver != config.DriverPostgres {
		logrus.Fatal("migrate needs STORE_DRIVER=postgres")
	}
	log := logging.New(cfg.LogLevel)

	db, err := database.Connect(cfg.DatabaseURL, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to connect to database")
	}
	defer db.Close()

	if err := database.Migrate(db, log); err != nil {
		log.WithError(err).Fatal("Migration failed")
	}

	if *seed {
		if err := database.SeedRestaurants(db, log); err != nil {
			log.WithError(err).Fatal("Restaurant seeding failed")
		}
		if err := database.SeedCouriers(db, log); err != nil {
			log.WithError(err).Fatal("Courier seeding failed")
		}
	}

	var result struct {
		Restaurants int `db:"restaurants"`
		Couriers    int `db:"couriers"`
		Available   int `db:"available"`
		Orders      int `db:"orders"`
		Active      int `db:"active"`
	}

	query := `
		SELECT
			(SELECT COUNT(*) FROM restaurantes) AS restaurants,
			(SELECT COUNT(*) FROM repartidores) AS couriers,
			(SELECT COUNT(*) FROM repartidores WHERE disponible) AS available,
			(SELECT COUNT(*) FROM pedidos) AS orders,
			(SELECT COUNT(*) FROM pedidos WHERE estado NOT IN ('entregado', 'cancelado')) AS active
	`
	if err := db.Get(&result, query); err != nil {
		log.WithError(err).Fatal("Failed to query summary")
	}

	fmt.Println("\n============================================================")
	fmt.Println("MIGRATION SUMMARY")
	fmt.Println("============================================================")
	fmt.Printf("Restaurants:             %d\n", result.Restaurants)
	fmt.Printf("Couriers:                %d (%d available)\n", result.Couriers, result.Available)
	fmt.Printf("Orders:                  %d (%d active)\n", result.Orders, result.Active)
	fmt.Println("============================================================")
}
