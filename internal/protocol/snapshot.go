package protocol

// Snapshot (server -> client) is the full world state after a step.
type Snapshot struct {
	ScenarioID       string                 `json:"scenario_id"`
	Status           Status                 `json:"status"`
	Tick             int64                  `json:"tick"`
	Time             float64                `json:"time"`
	StepSize         float64                `json:"step_size"`
	Hash             string                 `json:"hash"`
	Remotes          map[string]RemoteState `json:"remotes"`
	ActiveRemoteIDs  []string               `json:"active_remote_ids,omitempty"`
	DynamicRemoteIDs []string               `json:"dynamic_remote_ids,omitempty"`
	ErrorCode        string                 `json:"error_code,omitempty"`
	Error            string                 `json:"error,omitempty"`
}

type RemoteState struct {
	RemoteID     string         `json:"remote_id"`
	Kind         RemoteKind     `json:"kind"`
	Team         string         `json:"team,omitempty"`
	State        LifecycleState `json:"state"`
	Dynamic      bool           `json:"dynamic,omitempty"`
	Location     *Vector        `json:"location,omitempty"`
	Velocity     *Vector        `json:"velocity,omitempty"`
	Acceleration *Vector        `json:"acceleration,omitempty"`
	Battery      *float64       `json:"battery,omitempty"`
	Sensors      []SensorState  `json:"sensors,omitempty"`
}

func (r RemoteState) Active() bool { return r.State == StateActive }

func (r RemoteState) Sensor(id string) (SensorState, bool) {
	for _, s := range r.Sensors {
		if s.SensorID == id {
			return s, true
		}
	}
	return SensorState{}, false
}

// SensorState carries the payload of its Kind: Connections for COMMS,
// Observations for VISION, MonitorID for MONITOR.
type SensorState struct {
	SensorID     string     `json:"sensor_id"`
	Model        string     `json:"model"`
	Kind         SensorKind `json:"kind"`
	Active       bool       `json:"active"`
	Connections  []string   `json:"connections,omitempty"`
	Observations []string   `json:"observations,omitempty"`
	MonitorID    string     `json:"monitor_id,omitempty"`
}

// ErrorSnapshot reports a failure that ends the session.
func ErrorSnapshot(scenarioID, code, msg string) Snapshot {
	return Snapshot{
		ScenarioID: scenarioID,
		Status:     StatusError,
		Remotes:    map[string]RemoteState{},
		ErrorCode:  code,
		Error:      msg,
	}
}
