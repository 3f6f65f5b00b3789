package protocol

import (
	"encoding/json"
	"errors"
	"reflect"
	"strings"
	"testing"

	"rescuesim/internal/sim/mathx"
)

func sampleConfig() ScenarioConfig {
	home := mathx.Vec(50, 50, 0)
	acc := 0.75
	return ScenarioConfig{
		ScenarioID:    "sample",
		Seed:          42,
		Grid:          GridConfig{Width: 2, Height: 1, ZoneSize: 10, Terrain: []mathx.Terrain{mathx.TerrainOpen, mathx.TerrainWater}},
		MissionLength: 60,
		StepSize:      0.5,
		Remotes: []RemoteConfig{
			{
				Proto: RemoteProto{
					Kind:     RemoteBase,
					Location: &home,
					Sensors: []SensorConfig{
						{Proto: SensorProto{Kind: SensorComms, Model: "radio", UnlimitedRange: true}, Count: 1, Active: true},
					},
				},
				Count:     1,
				RemoteIDs: []string{"base"},
				Team:      "blue",
				Active:    true,
			},
			{
				Proto: RemoteProto{
					Kind:    RemoteDrone,
					Label:   "drone",
					Motion:  &MotionProto{MaxVelocity: 3, MaxAcceleration: 1},
					Battery: &BatteryProto{Initial: 100, Usage: BatteryUsage{Static: 0.1, Horizontal: 0.05}},
					Sensors: []SensorConfig{
						{Proto: SensorProto{Kind: SensorVision, Model: "cam", Range: 10, Accuracy: &acc, BatteryUsage: 0.2}, Count: 2, SensorIDs: []string{"cam-a"}},
					},
				},
				Count:   3,
				Team:    "blue",
				Active:  true,
				Dynamic: true,
			},
		},
	}
}

func sampleSnapshot() Snapshot {
	loc := mathx.Vec(1, 2, 3)
	vel := mathx.Vec(0.5, 0, 0)
	battery := 97.5
	return Snapshot{
		ScenarioID: "sample",
		Status:     StatusInProgress,
		Tick:       4,
		Time:       2,
		StepSize:   0.5,
		Hash:       "abc123",
		Remotes: map[string]RemoteState{
			"drone:(1)": {
				RemoteID: "drone:(1)",
				Kind:     RemoteDrone,
				Team:     "blue",
				State:    StateActive,
				Dynamic:  true,
				Location: &loc,
				Velocity: &vel,
				Battery:  &battery,
				Sensors: []SensorState{
					{SensorID: "comms", Model: "radio", Kind: SensorComms, Active: true, Connections: []string{"base"}},
					{SensorID: "mon", Model: "vitals", Kind: SensorMonitor, Active: true, MonitorID: "drone:(1)"},
				},
			},
			"base": {RemoteID: "base", Kind: RemoteBase, State: StateInactive},
		},
		ActiveRemoteIDs:  []string{"drone:(1)"},
		DynamicRemoteIDs: []string{"drone:(1)"},
	}
}

func TestRoundTrip(t *testing.T) {
	cfg := sampleConfig()
	b, err := Encode(cfg)
	if err != nil {
		t.Fatalf("encode config: %v", err)
	}
	gotCfg, err := DecodeScenarioConfig(b)
	if err != nil {
		t.Fatalf("decode config: %v", err)
	}
	if !reflect.DeepEqual(gotCfg, cfg) {
		t.Fatalf("config mismatch:\n got=%+v\nwant=%+v", gotCfg, cfg)
	}

	sets := []IntentionSet{
		{RemoteID: "drone:(1)", Intentions: []Intention{GoTo(mathx.Vec(80, 50, 5)), Activate("cam-a")}},
		{RemoteID: "drone:(2)", Intentions: []Intention{Shutdown()}},
		{RemoteID: "drone:(3)"},
	}
	b, err = EncodeIntentions(sets)
	if err != nil {
		t.Fatalf("encode intentions: %v", err)
	}
	gotSets, err := DecodeIntentions(b)
	if err != nil {
		t.Fatalf("decode intentions: %v", err)
	}
	if !reflect.DeepEqual(gotSets, sets) {
		t.Fatalf("intentions mismatch:\n got=%+v\nwant=%+v", gotSets, sets)
	}

	snap := sampleSnapshot()
	b, err = Encode(snap)
	if err != nil {
		t.Fatalf("encode snapshot: %v", err)
	}
	gotSnap, err := DecodeSnapshot(b)
	if err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if !reflect.DeepEqual(gotSnap, snap) {
		t.Fatalf("snapshot mismatch:\n got=%+v\nwant=%+v", gotSnap, snap)
	}
}

func TestClassify(t *testing.T) {
	cfgLine, _ := Encode(sampleConfig())
	snapLine, _ := Encode(sampleSnapshot())
	setLine, _ := Encode(IntentionSet{RemoteID: "x", Intentions: []Intention{Stop()}})

	cases := []struct {
		name string
		line string
		want MessageKind
	}{
		{"config", string(cfgLine), KindScenarioConfig},
		{"snapshot", string(snapLine), KindSnapshot},
		{"single set", string(setLine), KindIntentions},
		{"empty batch", `[]`, KindIntentions},
		{"batch", `[{"remote_id":"a"},{"remote_id":"b","intentions":[{"type":"STOP"}]}]`, KindIntentions},
	}
	for _, tc := range cases {
		got, err := Classify([]byte(tc.line))
		if err != nil {
			t.Fatalf("%s: classify: %v", tc.name, err)
		}
		if got != tc.want {
			t.Fatalf("%s: kind=%s want %s", tc.name, got, tc.want)
		}
	}
}

func TestDecodeRejects(t *testing.T) {
	cases := []struct {
		name string
		line string
		dec  func([]byte) error
	}{
		{"malformed json", `{"scenario_id":`, func(b []byte) error { _, err := DecodeScenarioConfig(b); return err }},
		{"unknown shape", `{"hello":"world"}`, func(b []byte) error { _, err := DecodeScenarioConfig(b); return err }},
		{"wrong kind", `[{"remote_id":"a"}]`, func(b []byte) error { _, err := DecodeSnapshot(b); return err }},
		{"unknown intention", `[{"remote_id":"a","intentions":[{"type":"FLY"}]}]`, func(b []byte) error { _, err := DecodeIntentions(b); return err }},
		{"duplicate intention", `[{"remote_id":"a","intentions":[{"type":"STOP"},{"type":"STOP"}]}]`, func(b []byte) error { _, err := DecodeIntentions(b); return err }},
		{"duplicate remote", `[{"remote_id":"a"},{"remote_id":"a"}]`, func(b []byte) error { _, err := DecodeIntentions(b); return err }},
		{"bad element", `[{"remote_id":"a"},{"id":"b"}]`, func(b []byte) error { _, err := DecodeIntentions(b); return err }},
		{"trailing data", `{"remote_id":"a"} {"remote_id":"b"}`, func(b []byte) error { _, err := DecodeIntentions(b); return err }},
		{"scenario id wrong type", `{"scenario_id":1}`, func(b []byte) error { _, err := DecodeScenarioConfig(b); return err }},
		{"snapshot missing hash", `{"scenario_id":"s","status":"DONE","tick":0,"time":0,"step_size":1,"remotes":{}}`, func(b []byte) error { _, err := DecodeSnapshot(b); return err }},
	}
	for _, tc := range cases {
		err := tc.dec([]byte(tc.line))
		if err == nil {
			t.Fatalf("%s: expected error", tc.name)
		}
		if !errors.Is(err, ErrProtocol) {
			t.Fatalf("%s: expected protocol error, got %v", tc.name, err)
		}
		var pe *ProtocolError
		if !errors.As(err, &pe) || !strings.Contains(tc.line, strings.TrimSuffix(pe.Text, "...")) {
			t.Fatalf("%s: error should carry the offending text, got %v", tc.name, err)
		}
	}
}

func TestSchemaJSONDocuments(t *testing.T) {
	for _, k := range []MessageKind{KindScenarioConfig, KindIntentions, KindSnapshot} {
		b, err := SchemaJSON(k)
		if err != nil {
			t.Fatalf("%s: %v", k, err)
		}
		var doc map[string]any
		if err := json.Unmarshal(b, &doc); err != nil {
			t.Fatalf("%s: schema is not json: %v", k, err)
		}
		if _, ok := doc["$defs"]; !ok {
			t.Fatalf("%s: schema has no $defs", k)
		}
		if ref, _ := doc["$ref"].(string); !strings.HasPrefix(ref, "#/$defs/") {
			t.Fatalf("%s: $ref=%q", k, ref)
		}
	}
	if _, err := SchemaJSON(KindUnknown); err == nil {
		t.Fatalf("expected error for unknown kind")
	}
}

func TestConfigValidate(t *testing.T) {
	if err := sampleConfig().Validate(); err != nil {
		t.Fatalf("sample should be valid: %v", err)
	}
	mutate := []func(*ScenarioConfig){
		func(c *ScenarioConfig) { c.StepSize = 0 },
		func(c *ScenarioConfig) { c.MissionLength = 0 },
		func(c *ScenarioConfig) { c.MissionTicks = 10 },
		func(c *ScenarioConfig) { c.Remotes = nil },
		func(c *ScenarioConfig) { c.Remotes[0].Proto.Kind = "TANK" },
		func(c *ScenarioConfig) { c.Remotes[0].Proto.Motion = &MotionProto{} },
		func(c *ScenarioConfig) { c.Remotes[1].RemoteIDs = []string{"a", "b", "c", "d"} },
		func(c *ScenarioConfig) { bad := 1.5; c.Remotes[1].Proto.Sensors[0].Proto.Accuracy = &bad },
		func(c *ScenarioConfig) { c.Remotes[1].Proto.Sensors[0].Proto.Model = "" },
	}
	for i, m := range mutate {
		c := sampleConfig()
		m(&c)
		if err := c.Validate(); err == nil {
			t.Fatalf("mutation %d: expected validation error", i)
		}
	}
	c := sampleConfig()
	c.MissionLength = 0
	c.MissionTicks = 120
	if err := c.Validate(); err != nil || c.MissionEnd() != 60 {
		t.Fatalf("mission ticks: err=%v end=%v", err, c.MissionEnd())
	}
}

func TestServerShutdownRequested(t *testing.T) {
	for _, in := range []Intention{Done(), Stop(), Shutdown(), Deactivate()} {
		s, _ := NewIntentionSet(ServerID, in)
		if !s.ShutdownRequested() {
			t.Fatalf("%s on server id should end the session", in.Type)
		}
	}
	s, _ := NewIntentionSet("drone", Done())
	if s.ShutdownRequested() {
		t.Fatalf("remote intentions must not end the session")
	}
	if _, err := NewIntentionSet("x", Stop(), Stop()); err == nil {
		t.Fatalf("expected duplicate rejection")
	}
}
