// Package transport defines the message connection shared by the stream
// and websocket transports.
package transport

import (
	"errors"
	"fmt"
	"io"
	"net"
)

// Conn moves whole messages, one JSON document each. Reads block until a
// full message arrives or the read deadline expires.
type Conn interface {
	ReadMessage() ([]byte, error)
	WriteMessage(b []byte) error
	Close() error
	RemoteAddr() string
}

var (
	ErrTimeout     = errors.New("read timeout")
	ErrClosed      = errors.New("connection closed")
	ErrLineTooLong = errors.New("message exceeds size limit")
)

// ConnError is an I/O failure. It ends the session but never the process.
type ConnError struct {
	Op      string
	Timeout bool
	Closed  bool
	Err     error
}

func (e *ConnError) Error() string {
	switch {
	case e.Timeout:
		return fmt.Sprintf("%s: %v", e.Op, ErrTimeout)
	case e.Closed:
		return fmt.Sprintf("%s: %v", e.Op, ErrClosed)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ConnError) Unwrap() error { return e.Err }

func (e *ConnError) Is(target error) bool {
	return (target == ErrTimeout && e.Timeout) || (target == ErrClosed && e.Closed)
}

// Wrap classifies a raw I/O error.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	var ce *ConnError
	if errors.As(err, &ce) {
		return err
	}
	out := &ConnError{Op: op, Err: err}
	var ne net.Error
	switch {
	case errors.As(err, &ne) && ne.Timeout():
		out.Timeout = true
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF), errors.Is(err, net.ErrClosed), errors.Is(err, io.ErrClosedPipe):
		out.Closed = true
	}
	return out
}

// IsConnError reports whether err came from the transport.
func IsConnError(err error) bool {
	var ce *ConnError
	return errors.As(err, &ce)
}
