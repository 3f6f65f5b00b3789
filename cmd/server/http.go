package main

import (
	"context"
	"fmt"
	"net/http"

	"rescuesim/internal/observer"
	"rescuesim/internal/persistence/indexdb"
	"rescuesim/internal/session"
	"rescuesim/internal/sim/tuning"
	"rescuesim/internal/transport"
	"rescuesim/internal/transport/ws"
)

func newMux(ctx context.Context, srv *session.Server, hub *observer.Hub, idx *indexdb.SQLiteIndex, tune tuning.Tuning) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")
		writeMetrics(rw, srv.Metrics().Snapshot(), hub, idx)
	})

	wsSrv := ws.NewServer(func(_ context.Context, c transport.Conn) error {
		// Hijacked requests outlive r.Context; tie the session to the process.
		return srv.Serve(ctx, c)
	}, ws.Options{
		ReadTimeout:  tune.ReadTimeout(),
		WriteTimeout: tune.WriteTimeout(),
		MaxMessage:   int64(tune.MaxLineBytes),
	}, srv.Log())
	mux.HandleFunc("/v1/session", wsSrv.Handler())

	mux.HandleFunc("/observer/ws", hub.WSHandler())
	mux.HandleFunc("/observer/latest", hub.LatestHandler())
	return mux
}

// Minimal Prometheus exposition format.
func writeMetrics(rw http.ResponseWriter, m session.MetricsSnapshot, hub *observer.Hub, idx *indexdb.SQLiteIndex) {
	fmt.Fprintf(rw, "# HELP rescuesim_sessions_total Sessions accepted since start.\n")
	fmt.Fprintf(rw, "# TYPE rescuesim_sessions_total counter\n")
	fmt.Fprintf(rw, "rescuesim_sessions_total %d\n", m.Sessions)

	fmt.Fprintf(rw, "# HELP rescuesim_sessions_active Sessions currently running.\n")
	fmt.Fprintf(rw, "# TYPE rescuesim_sessions_active gauge\n")
	fmt.Fprintf(rw, "rescuesim_sessions_active %d\n", m.ActiveSessions)

	fmt.Fprintf(rw, "# HELP rescuesim_ticks_total Steps simulated since start.\n")
	fmt.Fprintf(rw, "# TYPE rescuesim_ticks_total counter\n")
	fmt.Fprintf(rw, "rescuesim_ticks_total %d\n", m.Ticks)

	fmt.Fprintf(rw, "# HELP rescuesim_session_errors_total Sessions ended by an error, by class.\n")
	fmt.Fprintf(rw, "# TYPE rescuesim_session_errors_total counter\n")
	fmt.Fprintf(rw, "rescuesim_session_errors_total{class=%q} %d\n", "protocol", m.ProtocolErrors)
	fmt.Fprintf(rw, "rescuesim_session_errors_total{class=%q} %d\n", "simulation", m.SimErrors)
	fmt.Fprintf(rw, "rescuesim_session_errors_total{class=%q} %d\n", "connection", m.ConnErrors)

	fmt.Fprintf(rw, "# HELP rescuesim_last_tick Tick of the most recent step.\n")
	fmt.Fprintf(rw, "# TYPE rescuesim_last_tick gauge\n")
	fmt.Fprintf(rw, "rescuesim_last_tick %d\n", m.LastTick)

	fmt.Fprintf(rw, "# HELP rescuesim_step_ms Last step duration in milliseconds.\n")
	fmt.Fprintf(rw, "# TYPE rescuesim_step_ms gauge\n")
	fmt.Fprintf(rw, "rescuesim_step_ms %.3f\n", m.LastStepMS)

	if hub != nil {
		fmt.Fprintf(rw, "# HELP rescuesim_observers Connected observer feeds.\n")
		fmt.Fprintf(rw, "# TYPE rescuesim_observers gauge\n")
		fmt.Fprintf(rw, "rescuesim_observers %d\n", hub.Viewers())
		fmt.Fprintf(rw, "rescuesim_observer_dropped_total %d\n", hub.Dropped())
	}
	if idx != nil {
		st := idx.Stats()
		fmt.Fprintf(rw, "# HELP rescuesim_index_queue Index writer queue.\n")
		fmt.Fprintf(rw, "# TYPE rescuesim_index_queue gauge\n")
		fmt.Fprintf(rw, "rescuesim_index_queue{stat=%q} %d\n", "depth", st.QueueDepth)
		fmt.Fprintf(rw, "rescuesim_index_queue{stat=%q} %d\n", "capacity", st.QueueCapacity)
		fmt.Fprintf(rw, "rescuesim_index_dropped_total %d\n", st.QueueDroppedTotal)
		fmt.Fprintf(rw, "rescuesim_index_failed_total %d\n", st.FailedTotal)
	}
}
