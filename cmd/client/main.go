package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"rescuesim/internal/logging"
	"rescuesim/internal/observer"
	"rescuesim/internal/session"
	"rescuesim/internal/sim/mathx"
	"rescuesim/internal/sim/presets"
	"rescuesim/internal/transport"
	"rescuesim/internal/transport/stream"
	"rescuesim/internal/transport/ws"
)

func main() {
	var (
		addr      = flag.String("addr", "127.0.0.1:8080", "server session address")
		wsURL     = flag.String("ws", "", "websocket session url, e.g. ws://127.0.0.1:8081/v1/session (overrides -addr)")
		scenario  = flag.String("scenario", "default", "built-in scenario id or path to a scenario yaml/json")
		seed      = flag.Int64("seed", 0, "override the scenario seed (0 keeps it)")
		reserve   = flag.Float64("reserve", 10, "battery level at which drones return home")
		timeoutMS = flag.Int("read_timeout_ms", 30000, "per-snapshot read timeout")
		geoPath   = flag.String("geojson", "", "write the final snapshot as GeoJSON to this path")
		logLevel  = flag.String("log_level", "info", "log level")
	)
	flag.Parse()

	logger, err := logging.FromEnv(*logLevel, "text")
	if err != nil {
		fmt.Fprintln(os.Stderr, "logging:", err)
		os.Exit(2)
	}
	log := logger.WithField("component", "client")

	cfg, err := presets.Resolve(*scenario)
	if err != nil {
		log.WithError(err).Fatal("scenario")
	}
	if *seed != 0 {
		cfg.Seed = *seed
	}
	grid, err := mathx.NewGrid(cfg.Grid.Width, cfg.Grid.Height, cfg.Grid.ZoneSize, cfg.Grid.Terrain)
	if err != nil {
		log.WithError(err).Fatal("scenario grid")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	conn, err := dial(ctx, *addr, *wsURL, time.Duration(*timeoutMS)*time.Millisecond)
	if err != nil {
		log.WithError(err).Fatal("dial")
	}
	defer conn.Close()

	ctrl := newSweep(grid, *reserve, log)
	client := session.NewClient(conn)
	start := time.Now()
	snap, err := client.Run(ctx, cfg, ctrl)

	fields := logrus.Fields{
		"scenario_id": cfg.ScenarioID,
		"status":      snap.Status,
		"tick":        snap.Tick,
		"time":        snap.Time,
		"found":       len(ctrl.Found()),
		"hash":        snap.Hash,
		"elapsed_ms":  time.Since(start).Milliseconds(),
	}
	if *geoPath != "" {
		if werr := writeGeoJSON(*geoPath, observer.FeatureCollection(snap, grid)); werr != nil {
			log.WithError(werr).Error("write geojson")
		} else {
			fields["geojson"] = *geoPath
		}
	}

	var se *session.ServerError
	switch {
	case err == nil:
		log.WithFields(fields).Info("scenario finished")
	case errors.Is(err, context.Canceled):
		log.WithFields(fields).Warn("interrupted")
	case errors.As(err, &se):
		log.WithFields(fields).WithField("code", se.Code).Error(se.Text)
		os.Exit(1)
	default:
		log.WithFields(fields).WithError(err).Error("session failed")
		os.Exit(1)
	}
}

func dial(ctx context.Context, addr, wsURL string, readTimeout time.Duration) (transport.Conn, error) {
	dctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if wsURL != "" {
		return ws.Dial(dctx, wsURL, ws.Options{ReadTimeout: readTimeout})
	}
	return stream.Dial(dctx, addr, stream.Options{ReadTimeout: readTimeout, WriteTimeout: 5 * time.Second})
}

func writeGeoJSON(path string, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}
