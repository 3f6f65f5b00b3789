package protocol

import "rescuesim/internal/sim/mathx"

const Version = "1.0"

// ServerID addresses session-level commands instead of a remote.
const ServerID = "__server__"

type Status string

const (
	StatusStart      Status = "START"
	StatusInProgress Status = "IN_PROGRESS"
	StatusDone       Status = "DONE"
	StatusError      Status = "ERROR"
)

// Terminal reports whether no further rounds follow a snapshot with this status.
func (s Status) Terminal() bool { return s == StatusDone || s == StatusError }

type RemoteKind string

const (
	RemoteBase   RemoteKind = "BASE"
	RemoteDrone  RemoteKind = "DRONE"
	RemoteVictim RemoteKind = "VICTIM"
)

type SensorKind string

const (
	SensorComms   SensorKind = "COMMS"
	SensorVision  SensorKind = "VISION"
	SensorMonitor SensorKind = "MONITOR"
	SensorGeneric SensorKind = "GENERIC"
)

func (k SensorKind) Valid() bool {
	switch k {
	case SensorComms, SensorVision, SensorMonitor, SensorGeneric:
		return true
	}
	return false
}

type LifecycleState string

const (
	StateActive   LifecycleState = "ACTIVE"
	StateInactive LifecycleState = "INACTIVE"
	StateDisabled LifecycleState = "DISABLED"
	StateDone     LifecycleState = "DONE"
)

func (s LifecycleState) Terminal() bool { return s == StateDisabled || s == StateDone }

// Vector is re-exported so wire users need not import mathx.
type Vector = mathx.Vector
