// Package session runs the request/response loop between one controller
// and one scenario engine.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"rescuesim/internal/protocol"
	"rescuesim/internal/sim/mathx"
	"rescuesim/internal/sim/scenario"
	"rescuesim/internal/transport"
	"rescuesim/internal/transport/stream"
)

type Options struct {
	Engine scenario.Options
	// OpenLog, when set, opens the per-session tick log.
	OpenLog func(sessionID string) (EntryLog, error)
	// Index receives every entry of every session.
	Index EntryWriter
	// Observer sees every snapshot sent to the controller.
	Observer SnapshotSink
	// Archive stores the last snapshot of a session that got past START.
	Archive func(sessionID string, final protocol.Snapshot) error
	Metrics *Metrics
	Log     logrus.FieldLogger
}

// SnapshotSink receives a copy of each snapshot after it is sent.
// Publish must not block.
type SnapshotSink interface {
	Publish(snap protocol.Snapshot, grid *mathx.Grid)
}

// Server runs at most one scenario at a time; concurrent Serve calls wait.
type Server struct {
	opts Options
	log  logrus.FieldLogger
	mu   sync.Mutex
}

func NewServer(opts Options) *Server {
	if opts.Metrics == nil {
		opts.Metrics = &Metrics{}
	}
	log := opts.Log
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Server{opts: opts, log: log}
}

func (s *Server) Metrics() *Metrics { return s.opts.Metrics }

// Serve runs one scenario on conn until it ends. conn is closed early only
// when ctx is cancelled. A nil return means the scenario reached DONE or a
// server shutdown.
func (s *Server) Serve(ctx context.Context, conn transport.Conn) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	// Unblock a pending read when the process shuts down.
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	m := s.opts.Metrics
	m.sessions.Add(1)
	m.active.Add(1)
	defer m.active.Add(-1)

	ss := &session{
		srv:  s,
		conn: conn,
		id:   uuid.NewString(),
	}
	ss.log = s.log.WithFields(logrus.Fields{"session_id": ss.id, "remote": conn.RemoteAddr()})
	err := ss.run()
	ss.close()

	switch {
	case err == nil:
	case errors.Is(err, protocol.ErrProtocol):
		m.protocolErrors.Add(1)
	case errors.Is(err, scenario.ErrSimulation):
		m.simErrors.Add(1)
	case transport.IsConnError(err):
		m.connErrors.Add(1)
	}
	if err != nil {
		ss.log.WithError(err).Warn("session ended")
	} else {
		ss.log.Info("session ended")
	}
	return err
}

// ServeStream accepts stream connections one at a time until ctx ends.
// With once set it returns after the first session.
func (s *Server) ServeStream(ctx context.Context, ln *stream.Listener, once bool) error {
	stop := context.AfterFunc(ctx, func() { _ = ln.Close() })
	defer stop()
	for {
		c, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		_ = s.Serve(ctx, c)
		_ = c.Close()
		if once || ctx.Err() != nil {
			return nil
		}
	}
}

type session struct {
	srv  *Server
	conn transport.Conn
	id   string
	log  logrus.FieldLogger

	eng   *scenario.Engine
	out   multiWriter
	tlog  EntryLog
	ended bool
}

func (ss *session) run() error {
	line, err := ss.conn.ReadMessage()
	if err != nil {
		return err
	}
	cfg, err := protocol.DecodeScenarioConfig(line)
	if err != nil {
		ss.reject("", err)
		return err
	}
	ss.log = ss.log.WithField("scenario_id", cfg.ScenarioID)

	engOpts := ss.srv.opts.Engine
	engOpts.Log = ss.log
	eng, err := scenario.New(cfg, engOpts)
	if err != nil {
		ss.reject(cfg.ScenarioID, err)
		return err
	}
	ss.eng = eng
	ss.openLog()

	snap := eng.Snapshot()
	ss.record(LogEntry{
		Type:       EntryConfig,
		RemoteAddr: ss.conn.RemoteAddr(),
		Config:     &cfg,
		Status:     snap.Status,
		Hash:       snap.Hash,
	})
	ss.log.WithField("remotes", len(snap.Remotes)).Info("scenario started")
	if err := ss.send(snap); err != nil {
		ss.end(EndConnError, err)
		return err
	}
	if snap.Status.Terminal() {
		ss.end(EndMissionDone, nil)
		return nil
	}

	for {
		line, err := ss.conn.ReadMessage()
		if err != nil {
			ss.end(EndConnError, err)
			return err
		}
		sets, err := protocol.DecodeIntentions(line)
		if err != nil {
			ss.reject(cfg.ScenarioID, err)
			ss.end(EndProtocolError, err)
			return err
		}
		byID, err := protocol.Batch(sets)
		if err != nil {
			perr := &protocol.ProtocolError{Code: protocol.ErrProtoBadRequest, Err: err}
			ss.reject(cfg.ScenarioID, perr)
			ss.end(EndProtocolError, perr)
			return perr
		}

		if srv, ok := byID[protocol.ServerID]; ok && srv.ShutdownRequested() {
			eng.Stop()
			ss.end(EndServerShutdown, nil)
			return ss.send(eng.Snapshot())
		}

		start := time.Now()
		stepErr := eng.Step(byID, cfg.StepSize)
		snap := eng.Snapshot()
		ss.srv.opts.Metrics.ticks.Add(1)
		ss.srv.opts.Metrics.lastTick.Store(snap.Tick)
		ss.srv.opts.Metrics.lastStepMicros.Store(time.Since(start).Microseconds())

		ss.record(LogEntry{
			Type:       EntryTick,
			StepSize:   cfg.StepSize,
			Intentions: protocol.SortedSets(byID),
			Status:     snap.Status,
			Hash:       snap.Hash,
			Warnings:   eng.Warnings(),
			ErrorCode:  snap.ErrorCode,
			Error:      snap.Error,
		})
		if err := ss.send(snap); err != nil {
			ss.end(EndConnError, err)
			return err
		}
		switch {
		case stepErr != nil:
			ss.end(EndSimError, stepErr)
			return stepErr
		case snap.Status.Terminal():
			ss.end(EndMissionDone, nil)
			return nil
		}
	}
}

// reject answers a bad request with an ERROR snapshot. Send errors are
// ignored; the session ends either way.
func (ss *session) reject(scenarioID string, err error) {
	code := protocol.ErrInternal
	var pe *protocol.ProtocolError
	var se *scenario.SimError
	switch {
	case errors.As(err, &pe):
		code = pe.Code
	case errors.As(err, &se):
		code = se.Code
	}
	_ = ss.send(protocol.ErrorSnapshot(scenarioID, code, err.Error()))
}

func (ss *session) send(snap protocol.Snapshot) error {
	b, err := protocol.Encode(snap)
	if err != nil {
		return err
	}
	if err := ss.conn.WriteMessage(b); err != nil {
		return err
	}
	if sink := ss.srv.opts.Observer; sink != nil {
		var grid *mathx.Grid
		if ss.eng != nil {
			grid = ss.eng.Grid()
		}
		sink.Publish(snap, grid)
	}
	return nil
}

func (ss *session) openLog() {
	ss.out = multiWriter{ss.srv.opts.Index}
	if ss.srv.opts.OpenLog == nil {
		return
	}
	l, err := ss.srv.opts.OpenLog(ss.id)
	if err != nil {
		ss.log.WithError(err).Warn("tick log disabled for session")
		return
	}
	ss.tlog = l
	ss.out = append(ss.out, l)
}

func (ss *session) record(e LogEntry) {
	if len(ss.out) == 0 {
		return
	}
	e.SessionID = ss.id
	e.WallMS = time.Now().UnixMilli()
	e.Tick = ss.eng.Tick()
	e.Time = ss.eng.Time()
	if err := ss.out.WriteEntry(e); err != nil {
		ss.log.WithError(err).Warn("write log entry")
	}
}

func (ss *session) end(reason string, err error) {
	if ss.ended || ss.eng == nil {
		return
	}
	ss.ended = true
	snap := ss.eng.Snapshot()
	e := LogEntry{
		Type:      EntryEnd,
		Reason:    reason,
		Status:    snap.Status,
		Hash:      snap.Hash,
		ErrorCode: snap.ErrorCode,
		Error:     snap.Error,
	}
	if err != nil && e.Error == "" {
		e.Error = err.Error()
	}
	ss.record(e)
	if archive := ss.srv.opts.Archive; archive != nil {
		if err := archive(ss.id, snap); err != nil {
			ss.log.WithError(err).Warn("archive final snapshot")
		}
	}
}

func (ss *session) close() {
	if ss.tlog == nil {
		return
	}
	if err := ss.tlog.Close(); err != nil {
		ss.log.WithError(err).Warn("close tick log")
	}
}

func (s *Server) Log() logrus.FieldLogger { return s.log }
