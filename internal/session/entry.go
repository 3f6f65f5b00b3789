package session

import (
	"rescuesim/internal/protocol"
	"rescuesim/internal/sim/remote"
)

const (
	EntryConfig = "config"
	EntryTick   = "tick"
	EntryEnd    = "end"
)

// End reasons.
const (
	EndMissionDone    = "mission_done"
	EndServerShutdown = "server_shutdown"
	EndProtocolError  = "protocol_error"
	EndSimError       = "sim_error"
	EndConnError      = "conn_error"
)

// LogEntry is one line of a session's tick log. A log holds one config
// entry, then one tick entry per step, then at most one end entry.
type LogEntry struct {
	Type       string                   `json:"type"`
	SessionID  string                   `json:"session_id"`
	WallMS     int64                    `json:"wall_ms"`
	Tick       int64                    `json:"tick"`
	Time       float64                  `json:"time"`
	RemoteAddr string                   `json:"remote_addr,omitempty"`
	Config     *protocol.ScenarioConfig `json:"config,omitempty"`
	StepSize   float64                  `json:"step_size,omitempty"`
	Intentions []protocol.IntentionSet  `json:"intentions,omitempty"`
	Status     protocol.Status          `json:"status,omitempty"`
	Hash       string                   `json:"hash,omitempty"`
	Warnings   []remote.Warning         `json:"warnings,omitempty"`
	Reason     string                   `json:"reason,omitempty"`
	ErrorCode  string                   `json:"error_code,omitempty"`
	Error      string                   `json:"error,omitempty"`
}

// EntryWriter receives session log entries. Writers must not block the
// session loop for long; slow sinks should queue and drop.
type EntryWriter interface {
	WriteEntry(LogEntry) error
}

// EntryLog is a per-session EntryWriter that owns a resource.
type EntryLog interface {
	EntryWriter
	Close() error
}

type multiWriter []EntryWriter

func (m multiWriter) WriteEntry(e LogEntry) error {
	var first error
	for _, w := range m {
		if w == nil {
			continue
		}
		if err := w.WriteEntry(e); err != nil && first == nil {
			first = err
		}
	}
	return first
}
