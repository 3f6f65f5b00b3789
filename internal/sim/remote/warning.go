package remote

import (
	"fmt"

	"rescuesim/internal/protocol"
)

// Warning is a recoverable problem with one intention. The intention is
// dropped and the simulation continues.
type Warning struct {
	RemoteID  string                 `json:"remote_id"`
	Intention protocol.IntentionType `json:"intention"`
	SensorID  string                 `json:"sensor_id,omitempty"`
	Reason    string                 `json:"reason"`
}

func (w Warning) Error() string {
	if w.SensorID != "" {
		return fmt.Sprintf("%s %s sensor %s: %s", w.RemoteID, w.Intention, w.SensorID, w.Reason)
	}
	return fmt.Sprintf("%s %s: %s", w.RemoteID, w.Intention, w.Reason)
}

// Fault is an internal invariant violation. The remote is disabled.
type Fault struct {
	RemoteID string
	Reason   string
}

func (f *Fault) Error() string { return fmt.Sprintf("remote %s: %s", f.RemoteID, f.Reason) }
