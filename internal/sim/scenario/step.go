package scenario

import (
	"math"
	"sort"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"rescuesim/internal/protocol"
	"rescuesim/internal/sim/remote"
	"rescuesim/internal/sim/sensor"
)

const clockEps = 1e-9

type stepResult struct {
	warnings []remote.Warning
	err      error
}

// Step advances the mission by stepSize, truncated at the mission end.
// Remotes without an entry in intents receive no intention. Calling Step
// on a finished engine is a no-op; on a failed engine it returns the fault.
func (e *Engine) Step(intents map[string]protocol.IntentionSet, stepSize float64) error {
	if e.fault != nil {
		return e.fault
	}
	if stepSize <= 0 || math.IsNaN(stepSize) || math.IsInf(stepSize, 0) {
		return ErrBadStep
	}
	if e.IsDone() {
		return nil
	}
	start := time.Now()

	dt := stepSize
	clamped := false
	// Summed float steps drift (ten steps of 0.1 give 0.9999999999999999),
	// so a step that lands within clockEps of the end finishes the mission.
	if e.time+dt >= e.missionEnd-clockEps*math.Max(1, e.missionEnd) {
		dt = e.missionEnd - e.time
		clamped = true
	}

	e.warnings = e.warnings[:0]
	for _, id := range sortedKeys(intents) {
		if id == protocol.ServerID {
			e.serverWarnings(intents[id])
			continue
		}
		if _, ok := e.byID[id]; !ok {
			w := remote.Warning{RemoteID: id, Intention: protocol.IntentNone, Reason: "unknown remote"}
			e.log.WithField("remote_id", id).Warn(w.Reason)
			e.warnings = append(e.warnings, w)
		}
	}

	results := e.integrate(intents, dt)
	for i, res := range results {
		e.warnings = append(e.warnings, res.warnings...)
		if res.err != nil && e.fault == nil {
			e.fault = &SimError{Code: protocol.ErrSimInternal, Err: res.err}
			e.log.WithField("remote_id", e.remotes[i].ID()).WithError(res.err).Error("remote fault")
		}
	}

	// Barrier: every remote has its new position before any range query.
	e.senseAll()

	e.tick++
	if clamped {
		e.time = e.missionEnd
	} else {
		e.time += dt
	}

	e.log.WithFields(logrus.Fields{
		"tick":     e.tick,
		"time":     e.time,
		"warnings": len(e.warnings),
		"step_ms":  time.Since(start).Milliseconds(),
	}).Debug("step")

	if e.fault != nil {
		return e.fault
	}
	return nil
}

// serverWarnings flags server-addressed intentions other than the session
// shutdown commands, which the session layer handles before stepping.
func (e *Engine) serverWarnings(set protocol.IntentionSet) {
	for _, in := range set.Intentions {
		switch in.Type {
		case protocol.IntentNone, protocol.IntentDone, protocol.IntentStop, protocol.IntentShutdown, protocol.IntentDeactivate:
			continue
		}
		w := remote.Warning{RemoteID: protocol.ServerID, Intention: in.Type, Reason: "unsupported server command"}
		e.log.WithFields(logrus.Fields{"remote_id": protocol.ServerID, "intention": in.Type}).Warn(w.Reason)
		e.warnings = append(e.warnings, w)
	}
}

func (e *Engine) integrate(intents map[string]protocol.IntentionSet, dt float64) []stepResult {
	results := make([]stepResult, len(e.remotes))
	one := func(i int) {
		r := e.remotes[i]
		set, ok := intents[r.ID()]
		if !ok {
			set = protocol.IntentionSet{RemoteID: r.ID()}
		}
		ws, err := r.Step(set, dt, e.grid)
		results[i] = stepResult{warnings: ws, err: err}
	}

	if !e.parallel || len(e.remotes) < 2 {
		for i := range e.remotes {
			one(i)
		}
		return results
	}
	var g errgroup.Group
	if e.workers > 0 {
		g.SetLimit(e.workers)
	}
	for i := range e.remotes {
		i := i
		g.Go(func() error {
			one(i)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (e *Engine) senseAll() {
	env := &sensor.Env{Peers: e.peers, Rand: e.rng}
	for _, r := range e.remotes {
		r.UpdateSensors(env)
	}
}

func sortedKeys(m map[string]protocol.IntentionSet) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
