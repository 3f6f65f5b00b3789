package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	persistlog "rescuesim/internal/persistence/log"
	"rescuesim/internal/persistence/snapshot"
	"rescuesim/internal/protocol"
	"rescuesim/internal/session"
	"rescuesim/internal/sim/scenario"
)

func main() {
	var (
		logPath   = flag.String("log", "", "path to ticks.jsonl.zst")
		sessionID = flag.String("session", "", "session id (with -data, instead of -log)")
		dataDir   = flag.String("data", "./data", "runtime data directory")
		parallel  = flag.Bool("parallel", false, "integrate remotes concurrently while replaying")
		toTick    = flag.Int64("to_tick", 0, "stop after this tick (inclusive, optional)")
	)
	flag.Parse()

	path := *logPath
	if path == "" && *sessionID != "" {
		path = filepath.Join(persistlog.SessionDir(*dataDir, *sessionID), persistlog.TickLogName)
	}
	if path == "" {
		fmt.Fprintln(os.Stderr, "missing -log or -session")
		os.Exit(2)
	}

	res, err := replay(path, replayOptions{Parallel: *parallel, ToTick: *toTick})
	if err != nil {
		fmt.Fprintln(os.Stderr, "replay:", err)
		os.Exit(1)
	}
	fmt.Printf("replay ok: session=%s scenario=%s checked=%d ticks final_tick=%d status=%s end=%s archived=%v\n",
		res.SessionID, res.ScenarioID, res.Checked, res.FinalTick, res.Status, res.EndReason, res.Archived)
}

type replayOptions struct {
	Parallel bool
	ToTick   int64
}

type replayResult struct {
	SessionID  string
	ScenarioID string
	Checked    int
	FinalTick  int64
	Status     protocol.Status
	EndReason  string
	// Archived is set when the final snapshot archive was found and matched.
	Archived bool
}

var errStop = errors.New("stop")

// replay rebuilds the engine from the config entry, re-applies every
// recorded round, and checks each recorded hash.
func replay(path string, opts replayOptions) (replayResult, error) {
	quiet := logrus.New()
	quiet.SetOutput(io.Discard)

	var (
		res replayResult
		eng *scenario.Engine
	)
	check := func(e session.LogEntry) error {
		snap := eng.Snapshot()
		if snap.Hash != e.Hash {
			return fmt.Errorf("tick %d: hash mismatch: got=%s want=%s", e.Tick, snap.Hash, e.Hash)
		}
		if snap.Tick != e.Tick {
			return fmt.Errorf("tick mismatch: got=%d want=%d", snap.Tick, e.Tick)
		}
		res.Checked++
		res.FinalTick = snap.Tick
		res.Status = snap.Status
		return nil
	}

	err := persistlog.ReadEntries(path, func(e session.LogEntry) error {
		switch e.Type {
		case session.EntryConfig:
			if eng != nil {
				return fmt.Errorf("second config entry")
			}
			if e.Config == nil {
				return fmt.Errorf("config entry without config")
			}
			res.SessionID = e.SessionID
			res.ScenarioID = e.Config.ScenarioID
			var err error
			eng, err = scenario.New(*e.Config, scenario.Options{Log: quiet, Parallel: opts.Parallel})
			if err != nil {
				return err
			}
			return check(e)

		case session.EntryTick:
			if eng == nil {
				return fmt.Errorf("tick %d before config", e.Tick)
			}
			if opts.ToTick != 0 && e.Tick > opts.ToTick {
				return errStop
			}
			byID, err := protocol.Batch(e.Intentions)
			if err != nil {
				return fmt.Errorf("tick %d: %w", e.Tick, err)
			}
			// A recorded fault replays as the same fault.
			if err := eng.Step(byID, e.StepSize); err != nil && !errors.Is(err, scenario.ErrSimulation) {
				return fmt.Errorf("tick %d: %w", e.Tick, err)
			}
			return check(e)

		case session.EntryEnd:
			if eng == nil {
				return nil
			}
			res.EndReason = e.Reason
			if e.Reason == session.EndServerShutdown {
				eng.Stop()
			}
			if e.Hash == "" {
				return nil
			}
			return check(e)
		}
		return fmt.Errorf("unknown entry type %q", e.Type)
	})
	if err != nil && !errors.Is(err, errStop) {
		return res, err
	}
	if eng == nil {
		return res, fmt.Errorf("%s: no config entry", path)
	}
	if opts.ToTick != 0 {
		return res, nil
	}
	a, err := snapshot.ReadSnapshot(filepath.Join(filepath.Dir(path), snapshot.FinalName))
	switch {
	case os.IsNotExist(err):
		return res, nil
	case err != nil:
		return res, err
	}
	if got := eng.Snapshot().Hash; a.Header.Hash != got || scenario.Digest(a.Snapshot) != got {
		return res, fmt.Errorf("final snapshot mismatch: archived=%s replayed=%s", a.Header.Hash, got)
	}
	res.Archived = true
	return res, nil
}
