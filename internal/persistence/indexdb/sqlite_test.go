package indexdb

import (
	"context"
	"path/filepath"
	"testing"

	"rescuesim/internal/protocol"
	"rescuesim/internal/session"
	"rescuesim/internal/sim/presets"
	"rescuesim/internal/sim/remote"
)

func TestSQLiteIndex_QueueDropStats(t *testing.T) {
	s := &SQLiteIndex{ch: make(chan session.LogEntry, 1)}
	_ = s.WriteEntry(session.LogEntry{Type: session.EntryTick, Tick: 1})
	_ = s.WriteEntry(session.LogEntry{Type: session.EntryTick, Tick: 2})
	_ = s.WriteEntry(session.LogEntry{Type: session.EntryTick, Tick: 3})

	st := s.Stats()
	if st.QueueDroppedTotal != 2 {
		t.Fatalf("QueueDroppedTotal=%d want=2", st.QueueDroppedTotal)
	}
	if st.QueueDepth != 1 || st.QueueCapacity != 1 {
		t.Fatalf("queue stats mismatch: depth=%d cap=%d", st.QueueDepth, st.QueueCapacity)
	}
}

func TestSQLiteIndex_RecordsSessionLifecycle(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.sqlite")
	idx, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	cfg, _ := presets.Lookup("default")
	set, _ := protocol.NewIntentionSet("drone", protocol.Activate("nope"))

	entries := []session.LogEntry{
		{Type: session.EntryConfig, SessionID: "s1", RemoteAddr: "pipe", Config: &cfg, Status: protocol.StatusStart, Hash: "h0", WallMS: 1},
		{Type: session.EntryTick, SessionID: "s1", Tick: 1, Time: 0.5, Status: protocol.StatusInProgress, Hash: "h1",
			Intentions: []protocol.IntentionSet{set},
			Warnings:   []remote.Warning{{RemoteID: "drone", Intention: protocol.IntentActivate, SensorID: "nope", Reason: "unknown sensor"}}},
		{Type: session.EntryTick, SessionID: "s1", Tick: 2, Time: 1, Status: protocol.StatusInProgress, Hash: "h2"},
		{Type: session.EntryEnd, SessionID: "s1", Tick: 2, Time: 1, Status: protocol.StatusDone, Hash: "h3", Reason: session.EndServerShutdown, WallMS: 2},
	}
	for _, e := range entries {
		if err := idx.WriteEntry(e); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	if err := idx.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if st := idx.Stats(); st.WrittenTotal != 4 || st.FailedTotal != 0 {
		t.Fatalf("stats=%+v", st)
	}

	idx, err = OpenSQLite(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer idx.Close()

	ctx := context.Background()
	row, err := idx.LookupSession(ctx, "s1")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if row.ScenarioID != cfg.ScenarioID || row.Seed != cfg.Seed || row.Remotes != 2 {
		t.Fatalf("row=%+v", row)
	}
	if row.Status != string(protocol.StatusDone) || row.Reason != session.EndServerShutdown || row.FinalHash != "h3" || row.Ticks != 2 {
		t.Fatalf("row=%+v", row)
	}
	if row.EndedAt == "" {
		t.Fatalf("ended_at not set")
	}
	n, err := idx.CountTicks(ctx, "s1")
	if err != nil || n != 2 {
		t.Fatalf("ticks=%d err=%v", n, err)
	}
}

func TestSQLiteIndex_BadEntryKeepsBatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.sqlite")
	idx, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	cfg, _ := presets.Lookup("default")
	entries := []session.LogEntry{
		{Type: session.EntryConfig, SessionID: "s1", Config: &cfg, Status: protocol.StatusStart, Hash: "h0"},
		{Type: session.EntryTick, SessionID: "s1", Tick: 1, Time: 0.5, Status: protocol.StatusInProgress, Hash: "h1"},
		{Type: "bogus", SessionID: "s1", Tick: 1},
		{Type: session.EntryConfig, SessionID: "s2"},
		{Type: session.EntryTick, SessionID: "s1", Tick: 2, Time: 1, Status: protocol.StatusInProgress, Hash: "h2"},
		{Type: session.EntryEnd, SessionID: "s1", Tick: 2, Time: 1, Status: protocol.StatusDone, Hash: "h3", Reason: session.EndMissionDone},
	}
	for _, e := range entries {
		_ = idx.WriteEntry(e)
	}
	if err := idx.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if st := idx.Stats(); st.WrittenTotal != 4 || st.FailedTotal != 2 {
		t.Fatalf("stats=%+v", st)
	}

	idx, err = OpenSQLite(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer idx.Close()
	ctx := context.Background()
	row, err := idx.LookupSession(ctx, "s1")
	if err != nil {
		t.Fatalf("entries before the bad one were lost: %v", err)
	}
	if row.FinalHash != "h3" || row.Ticks != 2 {
		t.Fatalf("row=%+v", row)
	}
	if n, err := idx.CountTicks(ctx, "s1"); err != nil || n != 2 {
		t.Fatalf("ticks=%d err=%v", n, err)
	}
}
