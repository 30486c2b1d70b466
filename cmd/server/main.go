package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"reparto-backend/internal/config"
	"reparto-backend/internal/database"
	"reparto-backend/internal/fanout"
	"reparto-backend/internal/handlers"
	"reparto-backend/internal/lifecycle"
	"reparto-backend/internal/logging"
	"reparto-backend/internal/panels"
	"reparto-backend/internal/services/directions"
	"reparto-backend/internal/store"
	"reparto-backend/internal/store/memstore"
	"reparto-backend/internal/telemetry"
	"reparto-backend/internal/tracking"
	"reparto-backend/internal/websocket"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("❌ FATAL ERROR: configuration invalid")
	}
	log := logging.New(cfg.LogLevel)

	log.Info("═══════════════════════════════════════════════════════════════════")
	log.Info("🚀 REPARTO BACKEND SERVER STARTING")
	log.Info("═══════════════════════════════════════════════════════════════════")

	if err := cfg.RequireSecret(); err != nil {
		log.WithError(err).Fatal("❌ FATAL ERROR: JWT secret missing")
	}
	loc, err := cfg.Location()
	if err != nil {
		log.WithError(err).Fatal("❌ FATAL ERROR: timezone invalid")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownMetrics := telemetry.InitMetrics(ctx, cfg.OTLPEndpoint, "reparto-backend", log)

	st, closeStore := openStore(cfg, log)
	defer closeStore()

	var cache panels.Cache
	if cfg.RedisAddr != "" {
		rdb, err := panels.Connect(ctx, cfg.RedisAddr)
		if err != nil {
			log.WithError(err).Warn("⚠️  Redis unavailable - panel cache disabled")
		} else {
			defer rdb.Close()
			cache = panels.NewRedisCache(rdb, log)
			log.WithField("addr", cfg.RedisAddr).Info("✅ Panel cache connected")
		}
	}

	orders := lifecycle.NewService(st, st, cfg.Policy(), log)
	track := tracking.NewService(st, st, st, log)
	reader := panels.NewReader(st, cache, cfg.PanelCacheTTL, loc, log)
	router := directions.NewClient(cfg.DirectionsURL, cfg.DirectionsTimeout, log)

	fan := fanout.NewHub(log)
	go fan.Run(ctx, st)
	log.Info("✅ Change feed fan-out started")

	sockets := websocket.NewHub(fan, websocket.NewSnapshots(orders, track, st, reader), track, cfg.PollInterval, log)
	go sockets.Run(ctx)
	log.Info("✅ WebSocket hub started")

	handler := handlers.NewRouter(handlers.Deps{
		Orders:     orders,
		Tracking:   track,
		Panels:     reader,
		Directions: router,
		Fanout:     fan,
		Sockets:    sockets,
		Secret:     cfg.JWTSecret,
		Log:        log,
	})
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.WithField("port", cfg.Port).Info("🔌 Ready to accept requests!")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("❌ FATAL ERROR: Server failed to start")
		}
	}()

	<-ctx.Done()
	log.Info("🛑 Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("HTTP shutdown incomplete")
	}
	if err := shutdownMetrics(shutdownCtx); err != nil {
		log.WithError(err).Warn("metrics flush failed")
	}
}

// openStore returns the configured store and its closer. The memory store
// is seeded with the same demo restaurants and couriers as the database.
func openStore(cfg *config.Config, log *logrus.Logger) (store.Store, func()) {
	if cfg.StoreDriver == config.DriverMemory {
		log.Warn("⚠️  Using in-memory store - data is lost on restart")
		st := memstore.New()
		for _, r := range database.DemoRestaurants {
			st.AddRestaurant(r.ID, r.Name)
		}
		for _, c := range database.DemoCouriers {
			st.AddCourier(c)
		}
		return st, func() {}
	}

	log.Info("🔌 Connecting to database...")
	db, err := database.Connect(cfg.DatabaseURL, log)
	if err != nil {
		log.WithError(err).Fatal("❌ FATAL ERROR: Database connection failed")
	}
	if err := database.Migrate(db, log); err != nil {
		log.WithError(err).Fatal("❌ FATAL ERROR: Database migrations failed")
	}
	if err := database.SeedRestaurants(db, log); err != nil {
		log.WithError(err).Fatal("❌ FATAL ERROR: Restaurant seeding failed")
	}
	if err := database.SeedCouriers(db, log); err != nil {
		log.WithError(err).Fatal("❌ FATAL ERROR: Courier seeding failed")
	}
	return database.New(db, cfg.DatabaseURL, log), func() { db.Close() }
}
