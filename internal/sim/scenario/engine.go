// Package scenario owns one simulation run: the remotes, the mission clock
// and the seeded RNG.
package scenario

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"rescuesim/internal/protocol"
	"rescuesim/internal/sim/mathx"
	"rescuesim/internal/sim/remote"
	"rescuesim/internal/sim/sensor"
)

type Options struct {
	Log logrus.FieldLogger
	// Parallel integrates remotes concurrently before the sensor pass.
	Parallel bool
	Workers  int
}

// Engine is not safe for concurrent use; one goroutine drives it.
type Engine struct {
	cfg  protocol.ScenarioConfig
	grid *mathx.Grid
	rng  *rand.Rand
	log  logrus.FieldLogger

	remotes []*remote.Remote
	byID    map[string]*remote.Remote
	peers   []sensor.Peer

	missionEnd float64
	time       float64
	tick       int64
	stopped    bool
	fault      *SimError
	warnings   []remote.Warning

	parallel bool
	workers  int
}

func New(cfg protocol.ScenarioConfig, opts Options) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, &SimError{Code: protocol.ErrSimInvalidConfig, Err: err}
	}
	grid, err := mathx.NewGrid(cfg.Grid.Width, cfg.Grid.Height, cfg.Grid.ZoneSize, cfg.Grid.Terrain)
	if err != nil {
		return nil, &SimError{Code: protocol.ErrSimInvalidConfig, Err: err}
	}
	log := opts.Log
	if log == nil {
		log = logrus.StandardLogger()
	}
	e := &Engine{
		cfg:        cfg,
		grid:       grid,
		rng:        rand.New(rand.NewSource(cfg.Seed)),
		log:        log.WithField("scenario_id", cfg.ScenarioID),
		byID:       map[string]*remote.Remote{},
		missionEnd: cfg.MissionEnd(),
		parallel:   opts.Parallel,
		workers:    opts.Workers,
	}
	if err := e.populate(); err != nil {
		return nil, &SimError{Code: protocol.ErrSimInvalidConfig, Err: err}
	}
	sort.Slice(e.remotes, func(i, j int) bool { return e.remotes[i].ID() < e.remotes[j].ID() })
	e.peers = make([]sensor.Peer, len(e.remotes))
	for i, r := range e.remotes {
		e.peers[i] = r
	}
	// Initial sensor pass so the START snapshot already carries payloads.
	e.senseAll()
	return e, nil
}

// populate builds remotes in config order so RNG draws are reproducible.
func (e *Engine) populate() error {
	// Generated IDs count per label from 1, so adding a victim block does
	// not renumber the drones.
	counters := map[string]int{}
	for i, rc := range e.cfg.Remotes {
		label := rc.Proto.Label
		if label == "" {
			label = strings.ToLower(string(rc.Proto.Kind))
		}
		for n := 0; n < rc.Count; n++ {
			counters[label]++
			id := fmt.Sprintf("%s:(%d)", label, counters[label])
			if n < len(rc.RemoteIDs) {
				id = rc.RemoteIDs[n]
			}
			if _, dup := e.byID[id]; dup {
				return fmt.Errorf("remotes[%d]: duplicate remote id %q", i, id)
			}

			var loc mathx.Vector
			if rc.Proto.Location != nil {
				loc = *rc.Proto.Location
				if !e.grid.InBounds(loc) {
					return fmt.Errorf("remote %s: location %+v outside grid", id, loc)
				}
			} else {
				loc = e.grid.RandomLocation(e.rng)
			}

			r, err := remote.New(remote.Spec{
				ID:       id,
				Team:     rc.Team,
				Proto:    rc.Proto,
				Active:   rc.Active,
				Dynamic:  rc.Dynamic,
				Location: loc,
				Velocity: e.initialVelocity(rc),
			}, e.log)
			if err != nil {
				return err
			}
			e.remotes = append(e.remotes, r)
			e.byID[id] = r
		}
	}
	return nil
}

// initialVelocity gives passive mobile remotes a random horizontal drift.
func (e *Engine) initialVelocity(rc protocol.RemoteConfig) mathx.Vector {
	m := rc.Proto.Motion
	if m == nil {
		return mathx.Vector{}
	}
	if m.InitialVelocity != nil {
		return *m.InitialVelocity
	}
	if rc.Dynamic || (m.SpeedMean == 0 && m.SpeedStdDev == 0) {
		return mathx.Vector{}
	}
	speed := math.Max(0, m.SpeedMean+m.SpeedStdDev*e.rng.NormFloat64())
	if m.MaxVelocity > 0 {
		speed = math.Min(speed, m.MaxVelocity)
	}
	heading := e.rng.Float64() * 2 * math.Pi
	return mathx.Vec(speed*math.Cos(heading), speed*math.Sin(heading), 0)
}

func (e *Engine) Config() protocol.ScenarioConfig { return e.cfg }
func (e *Engine) Grid() *mathx.Grid               { return e.grid }
func (e *Engine) Time() float64                   { return e.time }
func (e *Engine) Tick() int64                     { return e.tick }
func (e *Engine) StepSize() float64               { return e.cfg.StepSize }
func (e *Engine) MissionEnd() float64             { return e.missionEnd }
func (e *Engine) Remote(id string) *remote.Remote { return e.byID[id] }

// Remotes lists every remote sorted by ID.
func (e *Engine) Remotes() []*remote.Remote { return e.remotes }

// Warnings returns the recoverable warnings raised by the last Step.
func (e *Engine) Warnings() []remote.Warning { return e.warnings }

// Fault is the error that put the engine into ERROR, if any.
func (e *Engine) Fault() error {
	if e.fault == nil {
		return nil
	}
	return e.fault
}

// IsDone reports mission end, an all-terminal population, or a stop request.
func (e *Engine) IsDone() bool {
	if e.stopped || e.time >= e.missionEnd {
		return true
	}
	for _, r := range e.remotes {
		if !r.Terminal() {
			return false
		}
	}
	return true
}

// Stop ends the run early; the next snapshot reports DONE.
func (e *Engine) Stop() { e.stopped = true }

func (e *Engine) Status() protocol.Status {
	switch {
	case e.fault != nil:
		return protocol.StatusError
	case e.IsDone():
		return protocol.StatusDone
	case e.tick == 0:
		return protocol.StatusStart
	}
	return protocol.StatusInProgress
}
