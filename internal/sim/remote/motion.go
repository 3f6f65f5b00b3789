package remote

import (
	"math"

	"rescuesim/internal/protocol"
	"rescuesim/internal/sim/mathx"
)

// arriveEps is how close counts as at the destination once the remote can
// also come to rest within one tick.
const arriveEps = 0.01

type motionMode int

const (
	motionCoast motionMode = iota
	motionSeek
	motionVelocity
	motionAccel
)

// motion is the standing order a mobile remote follows every tick until
// another motion intention replaces it.
type motion struct {
	mode   motionMode
	target mathx.Vector
	maxV   float64
	maxA   float64
}

func (r *Remote) maxVelocity() float64 {
	if r.proto.Motion == nil {
		return 0
	}
	return r.proto.Motion.MaxVelocity
}

func (r *Remote) maxAcceleration() float64 {
	if r.proto.Motion == nil {
		return 0
	}
	return r.proto.Motion.MaxAcceleration
}

// tighter picks the smaller positive bound; zero means unbounded.
func tighter(proto, req float64) float64 {
	if req <= 0 {
		return proto
	}
	if proto <= 0 || req < proto {
		return req
	}
	return proto
}

func (r *Remote) command(in protocol.Intention) {
	m := motion{maxV: r.maxVelocity(), maxA: r.maxAcceleration()}
	switch in.Type {
	case protocol.IntentStop:
		m.mode = motionVelocity
	case protocol.IntentGoTo:
		m.maxV = tighter(m.maxV, in.MaxVelocity)
		m.maxA = tighter(m.maxA, in.MaxAcceleration)
		switch {
		case in.Location != nil:
			m.mode, m.target = motionSeek, r.flatten(*in.Location)
		case in.Velocity != nil:
			m.mode, m.target = motionVelocity, r.flatten(*in.Velocity)
		default:
			m.mode, m.target = motionSeek, r.home
		}
	case protocol.IntentMove:
		m.mode = motionAccel
		if in.Acceleration != nil {
			m.target = r.flatten(*in.Acceleration)
		}
	case protocol.IntentSteer:
		m.mode = motionVelocity
		if in.Direction != nil {
			m.target = r.flatten(*in.Direction).Unit().Scale(r.vel.Norm())
		}
	}
	r.motion = m
}

// flatten drops altitude for ground remotes.
func (r *Remote) flatten(v mathx.Vector) mathx.Vector {
	if !r.spec.aerial {
		v.Z = 0
	}
	return v
}

// integrate advances velocity then location by dt under the standing order.
func (r *Remote) integrate(dt float64) {
	m := r.motion
	var want mathx.Vector
	switch m.mode {
	case motionCoast:
		want = mathx.Vector{}
	case motionAccel:
		want = m.target.ClampNorm(m.maxA)
	case motionVelocity:
		want = m.target.ClampNorm(m.maxV).Sub(r.vel).Scale(1 / dt).ClampNorm(m.maxA)
	case motionSeek:
		delta := m.target.Sub(r.loc)
		dist := delta.Norm()
		if dist <= arriveEps && r.canStop(dt) {
			r.arrive(dt)
			return
		}
		want = r.seekVelocity(delta, dist, dt).Sub(r.vel).Scale(1 / dt).ClampNorm(m.maxA)
	}

	maxV := m.maxV
	if m.mode == motionCoast {
		maxV = r.maxVelocity()
	}
	r.acc = r.flatten(want)
	r.vel = r.flatten(r.vel.Add(r.acc.Scale(dt)).ClampNorm(maxV))

	step := r.vel.Scale(dt)
	if m.mode == motionSeek {
		// Land on the target when this step reaches it; the velocity is kept
		// and braked away on the next tick.
		rem := m.target.Sub(r.loc)
		if d := rem.Norm(); d > 0 && step.Dot(rem) > 0 && step.Norm() >= d-1e-9 {
			r.loc = m.target
			return
		}
	}
	r.loc = r.flatten(r.loc.Add(step))
	if r.spec.aerial && r.loc.Z < 0 {
		r.loc.Z = 0
		r.vel.Z = math.Max(r.vel.Z, 0)
	}
}

// seekVelocity is the velocity along delta that still allows braking to a
// stop exactly on the target under maxA.
func (r *Remote) seekVelocity(delta mathx.Vector, dist, dt float64) mathx.Vector {
	if dist == 0 {
		return mathx.Vector{}
	}
	m := r.motion
	speed := dist / dt
	if m.maxA > 0 {
		speed = brakingSpeed(dist, m.maxA, dt)
	}
	if m.maxV > 0 {
		speed = math.Min(speed, m.maxV)
	}
	return delta.Scale(speed / dist)
}

// brakingSpeed solves dt*(v + (v-u) + (v-2u) + ...) = dist for v, with
// u = a*dt and only positive terms summed: the fastest speed from which
// per-tick braking at a covers exactly dist.
func brakingSpeed(dist, a, dt float64) float64 {
	u := a * dt
	// k counts the braking ticks after this one; it is at least sqrt(2*dist/(u*dt))-2.
	k := math.Max(0, math.Floor(math.Sqrt(2*dist/(u*dt)))-2)
	for {
		v := (dist/dt + u*k*(k+1)/2) / (k + 1)
		if v <= (k+1)*u {
			return v
		}
		k++
	}
}

// canStop reports whether the current velocity can be cancelled in one tick
// without exceeding the acceleration bound.
func (r *Remote) canStop(dt float64) bool {
	return r.motion.maxA <= 0 || r.vel.Norm() <= r.motion.maxA*dt+1e-9
}

func (r *Remote) arrive(dt float64) {
	r.acc = r.vel.Scale(-1 / dt)
	r.loc = r.motion.target
	r.vel = mathx.Vector{}
	r.motion = motion{}
}

// confine keeps the remote on the grid. Passive remotes bounce off the
// edges; driven remotes stop against them.
func (r *Remote) confine(g *mathx.Grid) {
	if g.InBounds(r.loc) {
		return
	}
	w, h := g.Extent()
	if r.dynamic {
		c := g.Clamp(r.loc)
		if c.X != r.loc.X {
			r.vel.X = 0
		}
		if c.Y != r.loc.Y {
			r.vel.Y = 0
		}
		r.loc = c
		return
	}
	r.loc.X, r.vel.X = bounce(r.loc.X, r.vel.X, w)
	r.loc.Y, r.vel.Y = bounce(r.loc.Y, r.vel.Y, h)
	r.loc = g.Clamp(r.loc)
}

func bounce(x, v, max float64) (float64, float64) {
	switch {
	case x < 0:
		return -x, -v
	case x > max:
		return 2*max - x, -v
	}
	return x, v
}

// drain subtracts this tick's consumption and disables the remote when the
// battery runs out.
func (r *Remote) drain(dt float64) {
	if !r.hasBattery {
		return
	}
	u := r.proto.Battery.Usage
	rate := u.Static + u.Horizontal*r.acc.NormXY() + u.Vertical*math.Abs(r.acc.Z)
	used := rate * dt
	for _, s := range r.sensors {
		used += s.BatteryDraw(dt)
	}
	r.battery -= used
	if max := r.proto.Battery.Max; max > 0 && r.battery > max {
		r.battery = max
	}
	if r.battery <= 0 {
		r.battery = 0
		r.disable()
		r.log.Info("battery exhausted")
	}
}
