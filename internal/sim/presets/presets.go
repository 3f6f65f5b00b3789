// Package presets maps scenario IDs to ready-made scenario configs.
package presets

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"rescuesim/internal/protocol"
	"rescuesim/internal/sim/mathx"
)

var builtin = map[string]func() protocol.ScenarioConfig{
	"default":   Default,
	"sar-small": SARSmall,
	"sar-wide":  SARWide,
}

// IDs lists the built-in scenario IDs.
func IDs() []string {
	out := make([]string, 0, len(builtin))
	for id := range builtin {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func Lookup(id string) (protocol.ScenarioConfig, bool) {
	fn, ok := builtin[id]
	if !ok {
		return protocol.ScenarioConfig{}, false
	}
	return fn(), true
}

// Load reads a scenario config from YAML (JSON is accepted too).
func Load(path string) (protocol.ScenarioConfig, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return protocol.ScenarioConfig{}, err
	}
	var cfg protocol.ScenarioConfig
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return protocol.ScenarioConfig{}, fmt.Errorf("%s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return protocol.ScenarioConfig{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Resolve treats ref as a built-in ID first, then as a file path.
func Resolve(ref string) (protocol.ScenarioConfig, error) {
	if cfg, ok := Lookup(ref); ok {
		return cfg, nil
	}
	if _, err := os.Stat(ref); err != nil {
		return protocol.ScenarioConfig{}, fmt.Errorf("unknown scenario %q (built-in: %v)", ref, IDs())
	}
	return Load(ref)
}

func vec(x, y, z float64) *mathx.Vector {
	v := mathx.Vec(x, y, z)
	return &v
}

func radio() protocol.SensorConfig {
	return protocol.SensorConfig{
		Proto:     protocol.SensorProto{Kind: protocol.SensorComms, Model: "radio", UnlimitedRange: true, BatteryUsage: 0.01},
		Count:     1,
		SensorIDs: []string{"comms"},
		Active:    true,
	}
}

func camera(rng float64) protocol.SensorConfig {
	acc := 0.9
	return protocol.SensorConfig{
		Proto:     protocol.SensorProto{Kind: protocol.SensorVision, Model: "camera", Range: rng, Accuracy: &acc, BatteryUsage: 0.02},
		Count:     1,
		SensorIDs: []string{"vision"},
		Active:    true,
	}
}

func droneProto() protocol.RemoteProto {
	return protocol.RemoteProto{
		Kind:   protocol.RemoteDrone,
		Motion: &protocol.MotionProto{MaxVelocity: 3, MaxAcceleration: 1},
		Battery: &protocol.BatteryProto{
			Initial: 100,
			Max:     100,
			Usage:   protocol.BatteryUsage{Static: 0.1, Horizontal: 0.05, Vertical: 0.08},
		},
		Sensors: []protocol.SensorConfig{radio(), camera(10)},
	}
}

func victimConfig(count int, mean float64) protocol.RemoteConfig {
	return protocol.RemoteConfig{
		Proto: protocol.RemoteProto{
			Kind:   protocol.RemoteVictim,
			Motion: &protocol.MotionProto{MaxVelocity: 1, SpeedMean: mean, SpeedStdDev: mean / 2},
			Sensors: []protocol.SensorConfig{{
				Proto:     protocol.SensorProto{Kind: protocol.SensorMonitor, Model: "vitals"},
				Count:     1,
				SensorIDs: []string{"monitor"},
				Active:    true,
			}},
		},
		Count:  count,
		Team:   "red",
		Active: true,
	}
}

// Default is one base at the center of a 10x10 grid and one drone
// parked on it.
func Default() protocol.ScenarioConfig {
	drone := droneProto()
	drone.Location = vec(50, 50, 0)
	return protocol.ScenarioConfig{
		ScenarioID:    "default",
		Seed:          1,
		Grid:          protocol.GridConfig{Width: 10, Height: 10, ZoneSize: 10},
		MissionLength: 60,
		StepSize:      0.5,
		Remotes: []protocol.RemoteConfig{
			{
				Proto: protocol.RemoteProto{
					Kind:     protocol.RemoteBase,
					Location: vec(50, 50, 0),
					Sensors:  []protocol.SensorConfig{radio()},
				},
				Count:     1,
				RemoteIDs: []string{"base"},
				Team:      "blue",
				Active:    true,
			},
			{
				Proto:     drone,
				Count:     1,
				RemoteIDs: []string{"drone"},
				Team:      "blue",
				Active:    true,
				Dynamic:   true,
			},
		},
	}
}

// SARSmall adds drifting victims and a small drone fleet.
func SARSmall() protocol.ScenarioConfig {
	cfg := Default()
	cfg.ScenarioID = "sar-small"
	cfg.Seed = 7
	cfg.MissionLength = 300
	cfg.Remotes[1].Count = 4
	cfg.Remotes[1].RemoteIDs = nil
	cfg.Remotes = append(cfg.Remotes, victimConfig(8, 0.3))
	return cfg
}

// SARWide is a larger map with mixed terrain and a second base.
func SARWide() protocol.ScenarioConfig {
	cfg := SARSmall()
	cfg.ScenarioID = "sar-wide"
	cfg.Seed = 11
	cfg.Grid = protocol.GridConfig{Width: 20, Height: 20, ZoneSize: 10}
	cfg.Grid.Terrain = make([]mathx.Terrain, 20*20)
	for i := range cfg.Grid.Terrain {
		switch {
		case i%20 < 3:
			cfg.Grid.Terrain[i] = mathx.TerrainWater
		case i/20 > 15:
			cfg.Grid.Terrain[i] = mathx.TerrainMountain
		case (i/20+i%20)%7 == 0:
			cfg.Grid.Terrain[i] = mathx.TerrainForest
		default:
			cfg.Grid.Terrain[i] = mathx.TerrainOpen
		}
	}
	cfg.MissionTicks = 1200
	cfg.MissionLength = 0
	cfg.Remotes[0].Proto.Location = vec(100, 100, 0)
	cfg.Remotes[1].Proto.Location = vec(100, 100, 0)
	cfg.Remotes[1].Count = 6
	cfg.Remotes = append(cfg.Remotes, protocol.RemoteConfig{
		Proto: protocol.RemoteProto{
			Kind:     protocol.RemoteBase,
			Label:    "outpost",
			Location: vec(180, 40, 0),
			Sensors:  []protocol.SensorConfig{radio()},
		},
		Count:  1,
		Team:   "green",
		Active: true,
	})
	cfg.Remotes[2].Count = 20
	return cfg
}
