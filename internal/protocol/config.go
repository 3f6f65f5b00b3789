package protocol

import (
	"fmt"
	"math"

	"rescuesim/internal/sim/mathx"
)

// ScenarioConfig is the handshake payload (client -> server, once).
type ScenarioConfig struct {
	ScenarioID    string         `json:"scenario_id" yaml:"scenario_id"`
	Seed          int64          `json:"seed" yaml:"seed"`
	Grid          GridConfig     `json:"grid" yaml:"grid"`
	MissionLength float64        `json:"mission_length,omitempty" yaml:"mission_length,omitempty"`
	MissionTicks  int            `json:"mission_ticks,omitempty" yaml:"mission_ticks,omitempty"`
	StepSize      float64        `json:"step_size" yaml:"step_size"`
	Remotes       []RemoteConfig `json:"remotes" yaml:"remotes"`
}

type GridConfig struct {
	Width    int             `json:"width" yaml:"width"`
	Height   int             `json:"height" yaml:"height"`
	ZoneSize float64         `json:"zone_size" yaml:"zone_size"`
	Terrain  []mathx.Terrain `json:"terrain,omitempty" yaml:"terrain,omitempty"`
}

// RemoteConfig declares Count remotes built from one prototype.
type RemoteConfig struct {
	Proto     RemoteProto `json:"proto" yaml:"proto"`
	Count     int         `json:"count" yaml:"count"`
	RemoteIDs []string    `json:"remote_ids,omitempty" yaml:"remote_ids,omitempty"`
	Team      string      `json:"team,omitempty" yaml:"team,omitempty"`
	Active    bool        `json:"active" yaml:"active"`
	Dynamic   bool        `json:"dynamic" yaml:"dynamic"`
}

type RemoteProto struct {
	Kind     RemoteKind     `json:"kind" yaml:"kind"`
	Label    string         `json:"label,omitempty" yaml:"label,omitempty"`
	Location *mathx.Vector  `json:"location,omitempty" yaml:"location,omitempty"`
	Motion   *MotionProto   `json:"motion,omitempty" yaml:"motion,omitempty"`
	Battery  *BatteryProto  `json:"battery,omitempty" yaml:"battery,omitempty"`
	Sensors  []SensorConfig `json:"sensors,omitempty" yaml:"sensors,omitempty"`
}

// MotionProto bounds a mobile remote. Zero maxima are unbounded.
type MotionProto struct {
	MaxVelocity     float64       `json:"max_velocity,omitempty" yaml:"max_velocity,omitempty"`
	MaxAcceleration float64       `json:"max_acceleration,omitempty" yaml:"max_acceleration,omitempty"`
	InitialVelocity *mathx.Vector `json:"initial_velocity,omitempty" yaml:"initial_velocity,omitempty"`
	SpeedMean       float64       `json:"speed_mean,omitempty" yaml:"speed_mean,omitempty"`
	SpeedStdDev     float64       `json:"speed_stddev,omitempty" yaml:"speed_stddev,omitempty"`
}

type BatteryProto struct {
	Initial float64      `json:"initial" yaml:"initial"`
	Max     float64      `json:"max,omitempty" yaml:"max,omitempty"`
	Usage   BatteryUsage `json:"usage" yaml:"usage"`
}

// BatteryUsage is drain per second. Horizontal and Vertical scale the
// magnitude of the applied acceleration in each plane.
type BatteryUsage struct {
	Static     float64 `json:"static,omitempty" yaml:"static,omitempty"`
	Horizontal float64 `json:"horizontal,omitempty" yaml:"horizontal,omitempty"`
	Vertical   float64 `json:"vertical,omitempty" yaml:"vertical,omitempty"`
}

type SensorConfig struct {
	Proto     SensorProto `json:"proto" yaml:"proto"`
	Count     int         `json:"count" yaml:"count"`
	SensorIDs []string    `json:"sensor_ids,omitempty" yaml:"sensor_ids,omitempty"`
	Active    bool        `json:"active" yaml:"active"`
}

type SensorProto struct {
	Kind           SensorKind `json:"kind" yaml:"kind"`
	Model          string     `json:"model" yaml:"model"`
	Range          float64    `json:"range,omitempty" yaml:"range,omitempty"`
	UnlimitedRange bool       `json:"unlimited_range,omitempty" yaml:"unlimited_range,omitempty"`
	// Accuracy is the per-tick detection probability; nil means 1.
	Accuracy     *float64 `json:"accuracy,omitempty" yaml:"accuracy,omitempty"`
	BatteryUsage float64  `json:"battery_usage,omitempty" yaml:"battery_usage,omitempty"`
}

func (p SensorProto) HasRange() bool { return p.UnlimitedRange || p.Range > 0 }

func (p SensorProto) InRange(d float64) bool {
	return p.UnlimitedRange || (p.Range > 0 && d <= p.Range)
}

func (p SensorProto) DetectionAccuracy() float64 {
	if p.Accuracy == nil {
		return 1
	}
	return *p.Accuracy
}

// MissionEnd is the mission length in seconds.
func (c ScenarioConfig) MissionEnd() float64 {
	if c.MissionLength > 0 {
		return c.MissionLength
	}
	return float64(c.MissionTicks) * c.StepSize
}

// Validate checks the semantic rules the schema cannot express.
func (c ScenarioConfig) Validate() error {
	if c.ScenarioID == "" {
		return fmt.Errorf("scenario_id: required")
	}
	if !positive(c.StepSize) {
		return fmt.Errorf("step_size: must be > 0, got %v", c.StepSize)
	}
	if c.MissionLength < 0 || c.MissionTicks < 0 {
		return fmt.Errorf("mission length: must not be negative")
	}
	if c.MissionLength > 0 && c.MissionTicks > 0 {
		return fmt.Errorf("mission length: set mission_length or mission_ticks, not both")
	}
	if !positive(c.MissionEnd()) {
		return fmt.Errorf("mission length: required")
	}
	if len(c.Remotes) == 0 {
		return fmt.Errorf("remotes: at least one remote config required")
	}
	for i, rc := range c.Remotes {
		if err := rc.validate(); err != nil {
			return fmt.Errorf("remotes[%d]: %w", i, err)
		}
	}
	return nil
}

func (rc RemoteConfig) validate() error {
	switch rc.Proto.Kind {
	case RemoteBase, RemoteDrone, RemoteVictim:
	default:
		return fmt.Errorf("kind: unknown %q", rc.Proto.Kind)
	}
	if rc.Count <= 0 {
		return fmt.Errorf("count: must be > 0")
	}
	if len(rc.RemoteIDs) > rc.Count {
		return fmt.Errorf("remote_ids: %d ids for count %d", len(rc.RemoteIDs), rc.Count)
	}
	if rc.Proto.Kind == RemoteBase && rc.Proto.Motion != nil {
		return fmt.Errorf("motion: base remotes are static")
	}
	if m := rc.Proto.Motion; m != nil {
		if m.MaxVelocity < 0 || m.MaxAcceleration < 0 || m.SpeedMean < 0 || m.SpeedStdDev < 0 {
			return fmt.Errorf("motion: negative bound")
		}
	}
	if b := rc.Proto.Battery; b != nil {
		if b.Initial < 0 || b.Max < 0 || (b.Max > 0 && b.Initial > b.Max) {
			return fmt.Errorf("battery: initial %v out of range", b.Initial)
		}
		u := b.Usage
		if u.Static < 0 || u.Horizontal < 0 || u.Vertical < 0 {
			return fmt.Errorf("battery: negative usage")
		}
	}
	for i, sc := range rc.Proto.Sensors {
		if err := sc.validate(); err != nil {
			return fmt.Errorf("sensors[%d]: %w", i, err)
		}
	}
	return nil
}

func (sc SensorConfig) validate() error {
	p := sc.Proto
	if !p.Kind.Valid() {
		return fmt.Errorf("kind: unknown %q", p.Kind)
	}
	if p.Model == "" {
		return fmt.Errorf("model: required")
	}
	if sc.Count <= 0 {
		return fmt.Errorf("count: must be > 0")
	}
	if len(sc.SensorIDs) > sc.Count {
		return fmt.Errorf("sensor_ids: %d ids for count %d", len(sc.SensorIDs), sc.Count)
	}
	if p.Range < 0 || p.BatteryUsage < 0 {
		return fmt.Errorf("range/battery_usage: must not be negative")
	}
	if a := p.DetectionAccuracy(); a < 0 || a > 1 || math.IsNaN(a) {
		return fmt.Errorf("accuracy: %v not in [0,1]", a)
	}
	return nil
}

func positive(x float64) bool { return x > 0 && !math.IsInf(x, 0) }
