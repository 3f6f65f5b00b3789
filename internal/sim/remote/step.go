package remote

import (
	"github.com/sirupsen/logrus"

	"rescuesim/internal/protocol"
	"rescuesim/internal/sim/mathx"
)

// Step applies one tick of intentions, motion and battery drain. It touches
// only this remote, so distinct remotes may step concurrently. A non-nil
// *Fault means the remote was disabled by an internal error.
func (r *Remote) Step(set protocol.IntentionSet, dt float64, grid *mathx.Grid) ([]Warning, error) {
	if r.Terminal() {
		return nil, nil
	}
	st := stepper{r: r}
	st.lifecycle(set)
	if r.Terminal() {
		return st.warnings, nil
	}

	for _, in := range set.Intentions {
		switch in.Type {
		case protocol.IntentActivate, protocol.IntentDeactivate:
			st.toggleSensors(in)
		}
	}
	st.applyMotion(set)

	if !r.Active() {
		return st.warnings, nil
	}

	prevLoc, prevVel := r.loc, r.vel
	if r.spec.mobile {
		r.integrate(dt)
		if grid != nil {
			r.confine(grid)
		}
		if !r.loc.IsFinite() || !r.vel.IsFinite() {
			r.loc, r.vel = prevLoc, prevVel
			r.disable()
			return st.warnings, &Fault{RemoteID: r.id, Reason: "non-finite kinematic state"}
		}
	}
	r.drain(dt)
	return st.warnings, nil
}

type stepper struct {
	r        *Remote
	warnings []Warning
}

func (st *stepper) warn(t protocol.IntentionType, sensorID, reason string) {
	w := Warning{RemoteID: st.r.id, Intention: t, SensorID: sensorID, Reason: reason}
	st.warnings = append(st.warnings, w)
	st.r.log.WithFields(logrus.Fields{
		"intention": t,
		"sensor_id": sensorID,
	}).Warn(reason)
}

// lifecycle applies at most one structural transition: Done, then
// Shutdown, then Startup.
func (st *stepper) lifecycle(set protocol.IntentionSet) {
	r := st.r
	switch {
	case set.Has(protocol.IntentDone):
		r.state = protocol.StateDone
		r.freeze()
		return
	case set.Has(protocol.IntentShutdown):
		if r.state == protocol.StateInactive {
			st.warn(protocol.IntentShutdown, "", "already inactive")
		} else {
			r.state = protocol.StateInactive
			r.freeze()
		}
		if set.Has(protocol.IntentStartup) {
			st.warn(protocol.IntentStartup, "", "ignored: shutdown in the same tick")
		}
	case set.Has(protocol.IntentStartup):
		if r.state == protocol.StateActive {
			st.warn(protocol.IntentStartup, "", "already active")
			return
		}
		r.state = protocol.StateActive
	}
}

func (st *stepper) toggleSensors(in protocol.Intention) {
	r := st.r
	if !r.Active() {
		st.warn(in.Type, "", "remote is not active")
		return
	}
	on := in.Type == protocol.IntentActivate
	ids := in.SensorIDs
	if len(ids) == 0 {
		for _, s := range r.sensors {
			ids = append(ids, s.ID())
		}
	}
	for _, id := range ids {
		s := r.byID[id]
		if s == nil {
			st.warn(in.Type, id, "unknown sensor")
			continue
		}
		var changed bool
		if on {
			changed = s.Activate()
		} else {
			changed = s.Deactivate()
		}
		if !changed && len(in.SensorIDs) > 0 {
			st.warn(in.Type, id, "redundant")
		}
	}
}

var motionOrder = []protocol.IntentionType{
	protocol.IntentStop,
	protocol.IntentGoTo,
	protocol.IntentMove,
	protocol.IntentSteer,
}

// applyMotion takes the first motion intention by precedence; the rest
// are reported and dropped.
func (st *stepper) applyMotion(set protocol.IntentionSet) {
	r := st.r
	applied := false
	for _, t := range motionOrder {
		in, ok := set.Get(t)
		if !ok {
			continue
		}
		switch {
		case !r.spec.mobile:
			st.warn(t, "", "remote is not mobile")
		case !r.Active():
			st.warn(t, "", "remote is not active")
		case applied:
			st.warn(t, "", "ignored: another motion intention takes precedence")
		default:
			r.command(in)
			applied = true
		}
	}
}
