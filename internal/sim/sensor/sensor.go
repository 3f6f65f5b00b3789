// Package sensor simulates the capabilities carried by remotes.
package sensor

import (
	"fmt"
	"math/rand"
	"sort"

	"rescuesim/internal/protocol"
	"rescuesim/internal/sim/mathx"
)

// Host is the remote carrying a sensor.
type Host interface {
	ID() string
	Location() mathx.Vector
	Active() bool
}

// Peer is any remote a range query may see, the host included.
type Peer interface {
	ID() string
	Location() mathx.Vector
	HasSensorModel(model string) bool
}

// Env is the read-only view of the world for one sensor pass. Peers must be
// in a stable order and already hold this tick's positions.
type Env struct {
	Peers []Peer
	Rand  *rand.Rand
}

type updateFunc func(s *Sensor, host Host, env *Env)

var updaters = map[protocol.SensorKind]updateFunc{
	protocol.SensorComms:   updateComms,
	protocol.SensorVision:  updateVision,
	protocol.SensorMonitor: updateMonitor,
	protocol.SensorGeneric: updateGeneric,
}

type Sensor struct {
	id     string
	proto  protocol.SensorProto
	update updateFunc

	active    bool
	seen      map[string]struct{}
	monitorID string
}

func New(id string, proto protocol.SensorProto, active bool) (*Sensor, error) {
	fn, ok := updaters[proto.Kind]
	if !ok {
		return nil, fmt.Errorf("sensor %s: unknown kind %q", id, proto.Kind)
	}
	return &Sensor{
		id:     id,
		proto:  proto,
		update: fn,
		active: active,
		seen:   map[string]struct{}{},
	}, nil
}

func (s *Sensor) ID() string                  { return s.id }
func (s *Sensor) Model() string               { return s.proto.Model }
func (s *Sensor) Kind() protocol.SensorKind   { return s.proto.Kind }
func (s *Sensor) Proto() protocol.SensorProto { return s.proto }
func (s *Sensor) Active() bool                { return s.active }

// Activate reports whether the sensor changed state.
func (s *Sensor) Activate() bool {
	if s.active {
		return false
	}
	s.active = true
	return true
}

// Deactivate turns the sensor off and clears its payload.
func (s *Sensor) Deactivate() bool {
	if !s.active {
		return false
	}
	s.active = false
	s.clear()
	return true
}

// BatteryDraw is the charge this sensor consumes over one step.
func (s *Sensor) BatteryDraw(stepSize float64) float64 {
	if !s.active {
		return 0
	}
	return s.proto.BatteryUsage * stepSize
}

// Update recomputes the payload against env.
func (s *Sensor) Update(host Host, env *Env) {
	if s.active && !host.Active() {
		s.Deactivate()
	}
	s.update(s, host, env)
}

// Sees reports whether id is in the connection or observation set.
func (s *Sensor) Sees(id string) bool {
	_, ok := s.seen[id]
	return ok
}

func (s *Sensor) State() protocol.SensorState {
	st := protocol.SensorState{
		SensorID:  s.id,
		Model:     s.proto.Model,
		Kind:      s.proto.Kind,
		Active:    s.active,
		MonitorID: s.monitorID,
	}
	ids := s.sortedSeen()
	switch s.proto.Kind {
	case protocol.SensorComms:
		st.Connections = ids
	case protocol.SensorVision:
		st.Observations = ids
	}
	return st
}

func (s *Sensor) sortedSeen() []string {
	if len(s.seen) == 0 {
		return nil
	}
	out := make([]string, 0, len(s.seen))
	for id := range s.seen {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func (s *Sensor) clear() {
	for id := range s.seen {
		delete(s.seen, id)
	}
	s.monitorID = ""
}

func (s *Sensor) mark(id string, on bool) {
	if on {
		s.seen[id] = struct{}{}
		return
	}
	delete(s.seen, id)
}
