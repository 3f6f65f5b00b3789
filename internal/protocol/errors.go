package protocol

import (
	"errors"
	"fmt"
)

const (
	// Wire/structure.
	ErrProtoBadRequest = "E_PROTO_BAD_REQUEST"
	ErrProtoUnexpected = "E_PROTO_UNEXPECTED"

	// Simulation.
	ErrSimInvalidConfig = "E_SIM_INVALID_CONFIG"
	ErrSimInternal      = "E_SIM_INTERNAL"

	// Connection.
	ErrConnTimeout = "E_CONN_TIMEOUT"
	ErrConnIO      = "E_CONN_IO"

	ErrInternal = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrProtoBadRequest:  {},
	ErrProtoUnexpected:  {},
	ErrSimInvalidConfig: {},
	ErrSimInternal:      {},
	ErrConnTimeout:      {},
	ErrConnIO:           {},
	ErrInternal:         {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}

// ErrProtocol matches every *ProtocolError via errors.Is.
var ErrProtocol = errors.New("protocol error")

const maxQuotedText = 256

// ProtocolError reports a line that could not be decoded or failed
// structural validation.
type ProtocolError struct {
	Code string
	Text string
	Err  error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol: %v: %q", e.Err, e.Text)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

func (e *ProtocolError) Is(target error) bool { return target == ErrProtocol }

func protoErr(code string, line []byte, err error) *ProtocolError {
	text := string(line)
	if len(text) > maxQuotedText {
		text = text[:maxQuotedText] + "..."
	}
	return &ProtocolError{Code: code, Text: text, Err: err}
}
