// Package remote simulates one agent: lifecycle, intentions, motion and power.
package remote

import (
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"

	"rescuesim/internal/protocol"
	"rescuesim/internal/sim/mathx"
	"rescuesim/internal/sim/sensor"
)

type kindSpec struct {
	mobile bool
	aerial bool
}

var kinds = map[protocol.RemoteKind]kindSpec{
	protocol.RemoteBase:   {},
	protocol.RemoteDrone:  {mobile: true, aerial: true},
	protocol.RemoteVictim: {mobile: true},
}

// Spec describes one remote to build.
type Spec struct {
	ID       string
	Team     string
	Proto    protocol.RemoteProto
	Active   bool
	Dynamic  bool
	Location mathx.Vector
	Velocity mathx.Vector
}

type Remote struct {
	id      string
	team    string
	kind    protocol.RemoteKind
	spec    kindSpec
	proto   protocol.RemoteProto
	dynamic bool
	log     logrus.FieldLogger

	state protocol.LifecycleState
	home  mathx.Vector
	loc   mathx.Vector
	vel   mathx.Vector
	acc   mathx.Vector

	hasBattery bool
	battery    float64

	sensors []*sensor.Sensor
	byID    map[string]*sensor.Sensor
	models  map[string]struct{}

	motion motion
}

func New(s Spec, log logrus.FieldLogger) (*Remote, error) {
	ks, ok := kinds[s.Proto.Kind]
	if !ok {
		return nil, fmt.Errorf("remote %s: no prototype for kind %q", s.ID, s.Proto.Kind)
	}
	if s.ID == "" || s.ID == protocol.ServerID {
		return nil, fmt.Errorf("remote: invalid id %q", s.ID)
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	r := &Remote{
		id:      s.ID,
		team:    s.Team,
		kind:    s.Proto.Kind,
		spec:    ks,
		proto:   s.Proto,
		dynamic: s.Dynamic,
		log:     log.WithField("remote_id", s.ID),
		state:   protocol.StateInactive,
		home:    s.Location,
		loc:     s.Location,
		byID:    map[string]*sensor.Sensor{},
		models:  map[string]struct{}{},
	}
	if ks.mobile {
		r.vel = s.Velocity
		if !ks.aerial {
			r.home.Z, r.loc.Z, r.vel.Z = 0, 0, 0
		}
	}
	if s.Active {
		r.state = protocol.StateActive
	}
	if b := s.Proto.Battery; b != nil {
		r.hasBattery = true
		r.battery = b.Initial
	}

	for _, sc := range s.Proto.Sensors {
		active := r.state == protocol.StateActive && sc.Active
		label := sc.Proto.Model
		for n := 0; n < sc.Count; n++ {
			id := fmt.Sprintf("%s:(%d)", label, n+1)
			if n < len(sc.SensorIDs) {
				id = sc.SensorIDs[n]
			}
			if _, dup := r.byID[id]; dup {
				return nil, fmt.Errorf("remote %s: duplicate sensor id %q", r.id, id)
			}
			sn, err := sensor.New(id, sc.Proto, active)
			if err != nil {
				return nil, fmt.Errorf("remote %s: %w", r.id, err)
			}
			r.sensors = append(r.sensors, sn)
			r.byID[id] = sn
			r.models[sc.Proto.Model] = struct{}{}
		}
	}
	sort.Slice(r.sensors, func(i, j int) bool { return r.sensors[i].ID() < r.sensors[j].ID() })

	if r.hasBattery && r.battery <= 0 {
		r.disable()
	}
	return r, nil
}

func (r *Remote) ID() string                       { return r.id }
func (r *Remote) Team() string                     { return r.team }
func (r *Remote) Kind() protocol.RemoteKind        { return r.kind }
func (r *Remote) Dynamic() bool                    { return r.dynamic }
func (r *Remote) Mobile() bool                     { return r.spec.mobile }
func (r *Remote) State() protocol.LifecycleState   { return r.state }
func (r *Remote) Active() bool                     { return r.state == protocol.StateActive }
func (r *Remote) Terminal() bool                   { return r.state.Terminal() }
func (r *Remote) Location() mathx.Vector           { return r.loc }
func (r *Remote) Velocity() mathx.Vector           { return r.vel }
func (r *Remote) Acceleration() mathx.Vector       { return r.acc }
func (r *Remote) Home() mathx.Vector               { return r.home }
func (r *Remote) Sensors() []*sensor.Sensor        { return r.sensors }
func (r *Remote) Sensor(id string) *sensor.Sensor  { return r.byID[id] }
func (r *Remote) HasSensorModel(model string) bool { _, ok := r.models[model]; return ok }

// Battery reports the charge and whether the remote has a battery at all.
func (r *Remote) Battery() (float64, bool) { return r.battery, r.hasBattery }

// UpdateSensors runs the sensor pass. Call it only after every remote has
// finished Step for the tick.
func (r *Remote) UpdateSensors(env *sensor.Env) {
	for _, s := range r.sensors {
		s.Update(r, env)
	}
}

func (r *Remote) Snapshot() protocol.RemoteState {
	loc := r.loc
	st := protocol.RemoteState{
		RemoteID: r.id,
		Kind:     r.kind,
		Team:     r.team,
		State:    r.state,
		Dynamic:  r.dynamic,
		Location: &loc,
	}
	if r.spec.mobile {
		vel, acc := r.vel, r.acc
		st.Velocity = &vel
		st.Acceleration = &acc
	}
	if r.hasBattery {
		b := r.battery
		st.Battery = &b
	}
	for _, s := range r.sensors {
		st.Sensors = append(st.Sensors, s.State())
	}
	return st
}

func (r *Remote) disable() {
	r.state = protocol.StateDisabled
	r.freeze()
}

func (r *Remote) freeze() {
	r.vel, r.acc = mathx.Vector{}, mathx.Vector{}
	r.motion = motion{}
	for _, s := range r.sensors {
		s.Deactivate()
	}
}
