package main

import (
	"sort"

	"github.com/sirupsen/logrus"

	"rescuesim/internal/protocol"
	"rescuesim/internal/sim/mathx"
)

const arriveRadius = 0.5

type droneState struct {
	queue     []mathx.Vector
	target    *mathx.Vector
	home      mathx.Vector
	returning bool
	done      bool
}

// sweep sends every dynamic drone through its share of the zone centers,
// then home, then Done. Drones whose battery falls to reserve go home early.
type sweep struct {
	grid    *mathx.Grid
	reserve float64
	log     logrus.FieldLogger

	drones map[string]*droneState
	found  map[string]bool
}

func newSweep(grid *mathx.Grid, reserve float64, log logrus.FieldLogger) *sweep {
	return &sweep{grid: grid, reserve: reserve, log: log, found: map[string]bool{}}
}

// Found returns the IDs any vision sensor has reported so far.
func (s *sweep) Found() []string {
	out := make([]string, 0, len(s.found))
	for id := range s.found {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func (s *sweep) init(snap protocol.Snapshot) {
	s.drones = map[string]*droneState{}
	var ids []string
	for _, id := range snap.DynamicRemoteIDs {
		r := snap.Remotes[id]
		if r.Kind != protocol.RemoteDrone || r.Location == nil {
			continue
		}
		ids = append(ids, id)
		s.drones[id] = &droneState{home: *r.Location}
	}
	sort.Strings(ids)
	if len(ids) == 0 {
		return
	}
	zones := s.grid.Zones()
	for i, z := range zones {
		d := s.drones[ids[i%len(ids)]]
		c := z.Center()
		c.Z = 5
		d.queue = append(d.queue, c)
	}
}

func (s *sweep) Intentions(snap protocol.Snapshot) ([]protocol.IntentionSet, error) {
	if s.drones == nil {
		s.init(snap)
	}
	s.collect(snap)

	ids := make([]string, 0, len(s.drones))
	for id := range s.drones {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var out []protocol.IntentionSet
	for _, id := range ids {
		d := s.drones[id]
		r, ok := snap.Remotes[id]
		if !ok || d.done || r.State.Terminal() {
			continue
		}
		var in []protocol.Intention
		if r.State == protocol.StateInactive {
			in = append(in, protocol.Startup(), protocol.Activate())
		} else {
			in = s.next(id, d, r)
		}
		if len(in) == 0 {
			continue
		}
		set, err := protocol.NewIntentionSet(id, in...)
		if err != nil {
			return nil, err
		}
		out = append(out, set)
	}
	return out, nil
}

func (s *sweep) next(id string, d *droneState, r protocol.RemoteState) []protocol.Intention {
	loc := *r.Location
	if d.returning {
		if mathx.Dist(loc, d.home) <= arriveRadius {
			d.done = true
			s.log.WithField("remote_id", id).Info("drone home")
			return []protocol.Intention{protocol.Done()}
		}
		return nil
	}
	if r.Battery != nil && *r.Battery <= s.reserve {
		s.log.WithFields(logrus.Fields{"remote_id": id, "battery": *r.Battery}).Info("battery reserve reached, returning")
		return s.goHome(d)
	}
	if d.target != nil && mathx.Dist(loc, *d.target) > arriveRadius {
		return nil
	}
	if len(d.queue) == 0 {
		return s.goHome(d)
	}
	t := d.queue[0]
	d.queue = d.queue[1:]
	d.target = &t
	return []protocol.Intention{protocol.GoTo(t)}
}

func (s *sweep) goHome(d *droneState) []protocol.Intention {
	d.returning = true
	d.target = nil
	return []protocol.Intention{protocol.GoTo(d.home)}
}

func (s *sweep) collect(snap protocol.Snapshot) {
	for _, r := range snap.Remotes {
		for _, sn := range r.Sensors {
			if sn.Kind != protocol.SensorVision {
				continue
			}
			for _, seen := range sn.Observations {
				if snap.Remotes[seen].Kind == protocol.RemoteVictim && !s.found[seen] {
					s.found[seen] = true
					s.log.WithFields(logrus.Fields{"victim": seen, "by": r.RemoteID, "tick": snap.Tick}).Info("victim spotted")
				}
			}
		}
	}
}
