package remote

import (
	"io"
	"testing"

	"github.com/sirupsen/logrus"

	"rescuesim/internal/protocol"
	"rescuesim/internal/sim/mathx"
	"rescuesim/internal/sim/sensor"
)

func quietLog() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func droneSpec() Spec {
	return Spec{
		ID:       "drone",
		Team:     "blue",
		Active:   true,
		Dynamic:  true,
		Location: mathx.Vec(50, 50, 0),
		Proto: protocol.RemoteProto{
			Kind:    protocol.RemoteDrone,
			Motion:  &protocol.MotionProto{MaxVelocity: 3, MaxAcceleration: 1},
			Battery: &protocol.BatteryProto{Initial: 100, Usage: protocol.BatteryUsage{Static: 0.1, Horizontal: 0.05, Vertical: 0.05}},
			Sensors: []protocol.SensorConfig{
				{Proto: protocol.SensorProto{Kind: protocol.SensorComms, Model: "radio", UnlimitedRange: true, BatteryUsage: 0.01}, Count: 1, SensorIDs: []string{"comms"}, Active: true},
				{Proto: protocol.SensorProto{Kind: protocol.SensorVision, Model: "cam", Range: 15, BatteryUsage: 0.02}, Count: 1, SensorIDs: []string{"cam"}, Active: true},
			},
		},
	}
}

func mustRemote(t *testing.T, s Spec) *Remote {
	t.Helper()
	r, err := New(s, quietLog())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return r
}

func set(id string, in ...protocol.Intention) protocol.IntentionSet {
	return protocol.IntentionSet{RemoteID: id, Intentions: in}
}

func testGrid(t *testing.T) *mathx.Grid {
	t.Helper()
	g, err := mathx.NewGrid(10, 10, 10, nil)
	if err != nil {
		t.Fatalf("grid: %v", err)
	}
	return g
}

func TestGoToApproachesMonotonically(t *testing.T) {
	r := mustRemote(t, droneSpec())
	g := testGrid(t)
	target := mathx.Vec(80, 50, 0)

	if _, err := r.Step(set("drone", protocol.GoTo(target)), 0.5, g); err != nil {
		t.Fatalf("step: %v", err)
	}
	prev := mathx.Dist(r.Location(), target)
	prevBattery, _ := r.Battery()
	arrived := false
	for i := 0; i < 200 && !arrived; i++ {
		if _, err := r.Step(set("drone"), 0.5, g); err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
		d := mathx.Dist(r.Location(), target)
		if d >= prev && d != 0 {
			t.Fatalf("tick %d: distance %v did not decrease from %v", i, d, prev)
		}
		if v := r.Velocity().Norm(); v > 3+1e-9 {
			t.Fatalf("tick %d: speed %v exceeds max", i, v)
		}
		if a := r.Acceleration().Norm(); a > 1+1e-9 {
			t.Fatalf("tick %d: acceleration %v exceeds max", i, a)
		}
		b, _ := r.Battery()
		if b >= prevBattery {
			t.Fatalf("tick %d: battery %v did not decrease from %v", i, b, prevBattery)
		}
		prev, prevBattery = d, b
		arrived = d == 0 && r.Velocity().IsZero()
	}
	if !arrived {
		t.Fatalf("drone never arrived, distance=%v", prev)
	}
	if !r.Velocity().IsZero() {
		t.Fatalf("velocity after arrival = %+v", r.Velocity())
	}
}

func TestArrivalBrakesWithinMaxAcceleration(t *testing.T) {
	for _, tc := range []struct {
		name   string
		target mathx.Vector
	}{
		{"here", mathx.Vec(50, 50, 0)},
		{"just ahead", mathx.Vec(51, 50, 0)},
		{"behind", mathx.Vec(45, 52, 3)},
	} {
		r := mustRemote(t, droneSpec())
		g := testGrid(t)
		r.vel = mathx.Vec(3, 0, 0)

		in := set("drone", protocol.GoTo(tc.target))
		rest := false
		for i := 0; i < 100 && !rest; i++ {
			if _, err := r.Step(in, 0.5, g); err != nil {
				t.Fatalf("%s: step %d: %v", tc.name, i, err)
			}
			in = set("drone")
			if a := r.Acceleration().Norm(); a > 1+1e-9 {
				t.Fatalf("%s: tick %d: acceleration %v exceeds max 1 (vel=%+v)", tc.name, i, a, r.Velocity())
			}
			rest = r.Velocity().IsZero() && r.Location() == tc.target
		}
		if !rest {
			t.Fatalf("%s: never came to rest on target, at %+v vel %+v", tc.name, r.Location(), r.Velocity())
		}
	}
}

func TestGoHomeAndStop(t *testing.T) {
	r := mustRemote(t, droneSpec())
	g := testGrid(t)
	r.Step(set("drone", protocol.GoToVelocity(mathx.Vec(0, 2, 0))), 0.5, g)
	for i := 0; i < 10; i++ {
		r.Step(set("drone"), 0.5, g)
	}
	if r.Velocity().Y <= 0 {
		t.Fatalf("velocity goto should move north, vel=%+v", r.Velocity())
	}
	r.Step(set("drone", protocol.Stop()), 0.5, g)
	for i := 0; i < 20; i++ {
		r.Step(set("drone"), 0.5, g)
	}
	if !r.Velocity().IsZero() {
		t.Fatalf("stop should brake to rest, vel=%+v", r.Velocity())
	}
	r.Step(set("drone", protocol.GoHome()), 0.5, g)
	for i := 0; i < 200; i++ {
		r.Step(set("drone"), 0.5, g)
	}
	if r.Location() != r.Home() {
		t.Fatalf("goto without target should return home, at %+v", r.Location())
	}
}

func TestShutdownStartupKeepsBatteryAndSensors(t *testing.T) {
	r := mustRemote(t, droneSpec())
	before, _ := r.Battery()

	if _, err := r.Step(set("drone", protocol.Shutdown()), 0.5, nil); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if r.State() != protocol.StateInactive {
		t.Fatalf("state=%s want INACTIVE", r.State())
	}
	if b, _ := r.Battery(); b != before {
		t.Fatalf("shutdown tick changed battery %v -> %v", before, b)
	}
	for _, s := range r.Sensors() {
		if s.Active() {
			t.Fatalf("sensor %s active on inactive remote", s.ID())
		}
	}

	ws, _ := r.Step(set("drone", protocol.Activate("cam")), 0.5, nil)
	if len(ws) != 1 || r.Sensor("cam").Active() {
		t.Fatalf("activate on inactive remote should warn, warnings=%v", ws)
	}

	r.Step(set("drone", protocol.Startup()), 0.5, nil)
	if r.State() != protocol.StateActive {
		t.Fatalf("state=%s want ACTIVE", r.State())
	}
	r.Step(set("drone", protocol.Activate()), 0.5, nil)
	for _, s := range r.Sensors() {
		if !s.Active() {
			t.Fatalf("sensor %s should be re-activatable", s.ID())
		}
	}
}

func TestDoneAndDisabledFreeze(t *testing.T) {
	g := testGrid(t)
	r := mustRemote(t, droneSpec())
	r.Step(set("drone", protocol.GoTo(mathx.Vec(90, 90, 10))), 0.5, g)
	r.Step(set("drone"), 0.5, g)
	r.Step(set("drone", protocol.Done()), 0.5, g)
	if r.State() != protocol.StateDone {
		t.Fatalf("state=%s want DONE", r.State())
	}
	loc := r.Location()
	b, _ := r.Battery()
	for i := 0; i < 5; i++ {
		r.Step(set("drone", protocol.Startup(), protocol.GoTo(mathx.Vec(0, 0, 0)), protocol.Activate()), 0.5, g)
	}
	if r.State() != protocol.StateDone || r.Location() != loc || !r.Velocity().IsZero() {
		t.Fatalf("done remote moved or revived: state=%s loc=%+v", r.State(), r.Location())
	}
	if b2, _ := r.Battery(); b2 != b {
		t.Fatalf("done remote battery changed")
	}

	spec := droneSpec()
	spec.Proto.Battery = &protocol.BatteryProto{Initial: 0.2, Usage: protocol.BatteryUsage{Static: 1}}
	weak := mustRemote(t, spec)
	weak.Step(set("drone", protocol.GoTo(mathx.Vec(90, 50, 0))), 0.5, g)
	if weak.State() != protocol.StateDisabled {
		t.Fatalf("state=%s want DISABLED", weak.State())
	}
	if b, _ := weak.Battery(); b != 0 {
		t.Fatalf("battery=%v want clamped 0", b)
	}
	loc = weak.Location()
	weak.Step(set("drone", protocol.Startup()), 0.5, g)
	if weak.State() != protocol.StateDisabled || weak.Location() != loc {
		t.Fatalf("disabled remote must stay frozen")
	}
}

func TestWarnings(t *testing.T) {
	r := mustRemote(t, droneSpec())
	ws, err := r.Step(set("drone", protocol.Activate("radar"), protocol.Deactivate("comms")), 0.5, nil)
	if err != nil {
		t.Fatalf("step: %v", err)
	}
	if len(ws) != 1 || ws[0].SensorID != "radar" {
		t.Fatalf("warnings=%v", ws)
	}
	if r.Sensor("comms").Active() {
		t.Fatalf("comms should be deactivated")
	}
	ws, _ = r.Step(set("drone", protocol.Deactivate("comms")), 0.5, nil)
	if len(ws) != 1 || ws[0].Reason != "redundant" {
		t.Fatalf("redundant deactivate should warn, got %v", ws)
	}
	ws, _ = r.Step(set("drone", protocol.Stop(), protocol.Move(mathx.Vec(1, 0, 0))), 0.5, nil)
	if len(ws) != 1 || ws[0].Intention != protocol.IntentMove {
		t.Fatalf("lower-precedence motion should warn, got %v", ws)
	}

	base := mustRemote(t, Spec{ID: "base", Active: true, Proto: protocol.RemoteProto{Kind: protocol.RemoteBase}})
	ws, _ = base.Step(set("base", protocol.GoTo(mathx.Vec(1, 1, 0))), 0.5, nil)
	if len(ws) != 1 {
		t.Fatalf("goto on base should warn, got %v", ws)
	}
	if base.Location() != (mathx.Vector{}) {
		t.Fatalf("base moved")
	}
}

func TestPassiveVictimBouncesInsideGrid(t *testing.T) {
	g := testGrid(t)
	r := mustRemote(t, Spec{
		ID:       "victim",
		Active:   true,
		Location: mathx.Vec(95, 5, 4),
		Velocity: mathx.Vec(2, -1.5, 3),
		Proto:    protocol.RemoteProto{Kind: protocol.RemoteVictim, Motion: &protocol.MotionProto{MaxVelocity: 2.5}},
	})
	if r.Location().Z != 0 || r.Velocity().Z != 0 {
		t.Fatalf("ground remote kept altitude: loc=%+v vel=%+v", r.Location(), r.Velocity())
	}
	for i := 0; i < 500; i++ {
		r.Step(set("victim"), 0.5, g)
		if !g.InBounds(r.Location()) {
			t.Fatalf("tick %d: victim left the grid at %+v", i, r.Location())
		}
	}
	if r.Velocity().IsZero() {
		t.Fatalf("passive victim should keep drifting")
	}
}

func TestSensorPassUsesHostState(t *testing.T) {
	a := mustRemote(t, droneSpec())
	spec := droneSpec()
	spec.ID = "other"
	spec.Location = mathx.Vec(10, 10, 0)
	b := mustRemote(t, spec)

	env := &sensor.Env{Peers: []sensor.Peer{a, b}}
	a.UpdateSensors(env)
	if !a.Sensor("comms").Sees("other") {
		t.Fatalf("unlimited comms should link matching peer")
	}
	if a.Sensor("cam").Sees("other") {
		t.Fatalf("vision range 15 should not see a peer ~57 away")
	}
	st := a.Snapshot()
	if st.Battery == nil || st.Location == nil || st.Velocity == nil || len(st.Sensors) != 2 {
		t.Fatalf("snapshot incomplete: %+v", st)
	}
}

func TestNewRejectsBadSpecs(t *testing.T) {
	if _, err := New(Spec{ID: "x", Proto: protocol.RemoteProto{Kind: "TANK"}}, nil); err == nil {
		t.Fatalf("expected missing prototype error")
	}
	if _, err := New(Spec{ID: protocol.ServerID, Proto: protocol.RemoteProto{Kind: protocol.RemoteBase}}, nil); err == nil {
		t.Fatalf("expected reserved id error")
	}
	s := droneSpec()
	s.Proto.Sensors[1].SensorIDs = []string{"comms"}
	if _, err := New(s, nil); err == nil {
		t.Fatalf("expected duplicate sensor id error")
	}
}
