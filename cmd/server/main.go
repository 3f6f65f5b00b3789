package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"rescuesim/internal/logging"
	"rescuesim/internal/observer"
	persistlog "rescuesim/internal/persistence/log"
	"rescuesim/internal/persistence/snapshot"
	"rescuesim/internal/session"
	"rescuesim/internal/sim/scenario"
	"rescuesim/internal/sim/tuning"
	"rescuesim/internal/transport/stream"
)

const defaultTuningPath = "./configs/tuning.yaml"

func main() {
	var (
		tuningPath = flag.String("tuning", defaultTuningPath, "path to tuning.yaml")
		listen     = flag.String("listen", "", "session listen address (overrides tuning)")
		httpListen = flag.String("http", "", "http listen address for /healthz, /metrics, websocket sessions and the observer feed")
		dataDir    = flag.String("data", "", "runtime data directory (overrides tuning)")
		readMS     = flag.Int("read_timeout_ms", 0, "per-message read timeout, 0 waits forever")
		disableDB  = flag.Bool("disable_db", false, "disable the sqlite index")
		noTickLog  = flag.Bool("no_tick_log", false, "disable per-session tick logs")
		parallel   = flag.Bool("parallel", false, "integrate remotes concurrently")
		workers    = flag.Int("workers", 0, "parallel integration workers, 0 means GOMAXPROCS")
		once       = flag.Bool("once", false, "exit after the first session")
		logLevel   = flag.String("log_level", "", "log level (overrides tuning and LOG_LEVEL)")
		logFormat  = flag.String("log_format", "", "text or json (overrides tuning and LOG_FORMAT)")
	)
	flag.Parse()

	tune, err := tuning.Load(*tuningPath)
	if err != nil {
		if !(os.IsNotExist(err) && *tuningPath == defaultTuningPath) {
			fmt.Fprintln(os.Stderr, "load tuning:", err)
			os.Exit(1)
		}
		tune = tuning.Defaults()
	}

	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "listen":
			tune.Listen = *listen
		case "http":
			tune.HTTPListen = *httpListen
		case "data":
			tune.DataDir = *dataDir
		case "read_timeout_ms":
			tune.ReadTimeoutMs = *readMS
		case "disable_db":
			tune.IndexDB = !*disableDB
		case "no_tick_log":
			tune.TickLog = !*noTickLog
		case "parallel":
			tune.ParallelIntegration = *parallel
		case "workers":
			tune.ParallelWorkers = *workers
		case "once":
			tune.Once = *once
		}
	})
	tune.Normalize()
	if err := tune.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, "tuning:", err)
		os.Exit(2)
	}

	lvl, format := logging.Resolve(tune.LogLevel, tune.LogFormat)
	if *logLevel != "" {
		lvl = *logLevel
	}
	if *logFormat != "" {
		format = *logFormat
	}
	logger, err := logging.New(lvl, format)
	if err != nil {
		fmt.Fprintln(os.Stderr, "logging:", err)
		os.Exit(2)
	}
	log := logger.WithField("component", "server")

	if tune.DataDir != "" {
		if err := os.MkdirAll(tune.DataDir, 0o755); err != nil {
			log.WithError(err).Fatal("data dir")
		}
	}

	// Optional: read-model index backend (does not affect sim determinism).
	idx, err := openIndex(tune)
	if err != nil {
		log.WithError(err).Fatal("open index backend")
	}
	if idx != nil {
		defer idx.Close()
	}

	hub := observer.NewHub(logger.WithField("component", "observer"))
	opts := session.Options{
		Engine: scenario.Options{
			Parallel: tune.ParallelIntegration,
			Workers:  tune.ParallelWorkers,
		},
		Observer: hub,
		Log:      logger,
	}
	if idx != nil {
		opts.Index = idx
	}
	if tune.TickLog {
		opts.OpenLog = persistlog.Opener(tune.DataDir)
		log.WithField("dir", filepath.Join(tune.DataDir, "sessions")).Info("tick logs enabled")
	}
	if tune.DataDir != "" {
		opts.Archive = snapshot.Archiver(func(id string) string { return persistlog.SessionDir(tune.DataDir, id) })
	}
	srv := session.NewServer(opts)

	ctx, cancel := signalContext()
	defer cancel()

	var httpSrv *http.Server
	if tune.HTTPListen != "" {
		httpSrv = &http.Server{
			Addr:              tune.HTTPListen,
			Handler:           newMux(ctx, srv, hub, idx, tune),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			log.WithField("addr", tune.HTTPListen).Info("http listening")
			if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.WithError(err).Error("http server")
				cancel()
			}
		}()
	}

	ln, err := stream.Listen(tune.Listen, stream.Options{
		ReadTimeout:  tune.ReadTimeout(),
		WriteTimeout: tune.WriteTimeout(),
		MaxLineBytes: tune.MaxLineBytes,
	})
	if err != nil {
		log.WithError(err).Fatal("listen")
	}
	log.WithField("addr", ln.Addr().String()).Info("listening")

	if err := srv.ServeStream(ctx, ln, tune.Once); err != nil {
		log.WithError(err).Error("accept loop")
	}

	if httpSrv != nil {
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = httpSrv.Shutdown(ctx2)
	}
	log.WithFields(logrus.Fields{"sessions": srv.Metrics().Snapshot().Sessions}).Info("server stopped")
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}
