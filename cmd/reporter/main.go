// Command reporter is the courier device agent. It replays position fixes
// from a JSON-lines source, gates them the way the mobile app does and
// posts the accepted ones to the API as the courier in COURIER_TOKEN.
package main

import (
	"context"
	"flag"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"reparto-backend/internal/config"
	"reparto-backend/internal/logging"
	"reparto-backend/internal/middleware"
	"reparto-backend/internal/reporter"
)

func main() {
	input := flag.String("input", "-", "JSON-lines fix file, - for stdin")
	pace := flag.Bool("pace", true, "space fixes by their recorded timestamps")
	flag.Parse()

	cfg, err := config.LoadAgent()
	if err != nil {
		logrus.WithError(err).Fatal("configuration invalid")
	}
	log := logging.New(cfg.LogLevel)

	actor, err := middleware.PeekActor(cfg.Token)
	if err != nil {
		log.WithError(err).Fatal("COURIER_TOKEN unreadable")
	}

	var src io.Reader = os.Stdin
	if *input != "-" {
		f, err := os.Open(*input)
		if err != nil {
			log.WithError(err).Fatal("open input")
		}
		defer f.Close()
		src = f
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	geo := reporter.NewReplayGeolocator(src, *pace, log)
	writer := reporter.NewHTTPWriter(cfg.ServerURL, cfg.Token)
	manager := reporter.NewManager(func(courierID string) *reporter.Session {
		return reporter.NewSession(courierID, geo, writer, cfg.Report, log)
	})

	if err := manager.SetActor(ctx, actor); err != nil {
		log.WithError(err).Fatal("start reporting")
	}
	session := manager.Current()
	if session == nil {
		log.WithField("role", actor.Role).Fatal("token does not belong to a courier")
	}

	<-ctx.Done()
	manager.Stop()
	log.WithFields(logrus.Fields{"courier_id": actor.ID, "gate": session.Gate().GetStats()}).Info("📊 Reporter finished")
}
