package main

import (
	"context"
	"io"
	"net"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	persistlog "rescuesim/internal/persistence/log"
	"rescuesim/internal/persistence/snapshot"
	"rescuesim/internal/protocol"
	"rescuesim/internal/session"
	"rescuesim/internal/sim/mathx"
	"rescuesim/internal/sim/presets"
	"rescuesim/internal/transport/stream"
)

// recordSession runs a short sar-small session through the real server
// and returns the path of its tick log.
func recordSession(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	l := logrus.New()
	l.SetOutput(io.Discard)

	var sessionID string
	open := persistlog.Opener(dir)
	srv := session.NewServer(session.Options{
		OpenLog: func(id string) (session.EntryLog, error) {
			sessionID = id
			return open(id)
		},
		Archive: snapshot.Archiver(func(id string) string { return persistlog.SessionDir(dir, id) }),
		Log:     l,
	})

	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()
	opts := stream.Options{ReadTimeout: 5 * time.Second}
	done := make(chan error, 1)
	go func() { done <- srv.Serve(context.Background(), stream.New(a, opts)) }()

	c := session.NewClient(stream.New(b, opts))
	cfg, _ := presets.Lookup("sar-small")
	const lead = "drone:(1)"
	if _, err := c.Start(cfg); err != nil {
		t.Fatalf("start: %v", err)
	}
	for i := 0; i < 12; i++ {
		var sets []protocol.IntentionSet
		switch i {
		case 0:
			s, _ := protocol.NewIntentionSet(lead, protocol.GoTo(mathx.Vec(10, 10, 5)))
			sets = append(sets, s)
		case 4:
			s, _ := protocol.NewIntentionSet(lead, protocol.Deactivate("nope"))
			sets = append(sets, s)
		case 6:
			s, _ := protocol.NewIntentionSet(lead, protocol.Shutdown())
			sets = append(sets, s)
		case 7:
			s, _ := protocol.NewIntentionSet(lead, protocol.Startup(), protocol.Activate())
			sets = append(sets, s)
		}
		if _, err := c.Step(sets...); err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
	}
	if _, err := c.Shutdown(); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("serve: %v", err)
	}
	return filepath.Join(persistlog.SessionDir(dir, sessionID), persistlog.TickLogName)
}

func TestReplay_VerifiesRecordedSession(t *testing.T) {
	path := recordSession(t)

	res, err := replay(path, replayOptions{})
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	// START + 12 ticks + end.
	if res.Checked != 14 || res.FinalTick != 12 {
		t.Fatalf("res=%+v", res)
	}
	if res.Status != protocol.StatusDone || res.EndReason != session.EndServerShutdown || !res.Archived {
		t.Fatalf("res=%+v", res)
	}

	par, err := replay(path, replayOptions{Parallel: true})
	if err != nil {
		t.Fatalf("parallel replay: %v", err)
	}
	if par.Checked != res.Checked {
		t.Fatalf("parallel checked=%d", par.Checked)
	}
}

func TestReplay_ToTick(t *testing.T) {
	path := recordSession(t)
	res, err := replay(path, replayOptions{ToTick: 5})
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if res.FinalTick != 5 || res.Checked != 6 {
		t.Fatalf("res=%+v", res)
	}
}

func TestReplay_MissingFile(t *testing.T) {
	_, err := replay(filepath.Join(t.TempDir(), "nope.jsonl.zst"), replayOptions{})
	if err == nil || !strings.Contains(err.Error(), "nope") {
		t.Fatalf("expected open error, got %v", err)
	}
}
