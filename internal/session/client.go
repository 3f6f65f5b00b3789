package session

import (
	"context"
	"errors"
	"fmt"

	"rescuesim/internal/protocol"
	"rescuesim/internal/transport"
)

// ErrEnded is returned by Client methods once the server has sent a
// terminal snapshot.
var ErrEnded = errors.New("session ended")

// ServerError is an ERROR snapshot received from the server.
type ServerError struct {
	Code string
	Text string
}

func (e *ServerError) Error() string { return fmt.Sprintf("server error %s: %s", e.Code, e.Text) }

// Controller chooses the next round of intentions from the latest snapshot.
type Controller interface {
	Intentions(snap protocol.Snapshot) ([]protocol.IntentionSet, error)
}

type ControllerFunc func(snap protocol.Snapshot) ([]protocol.IntentionSet, error)

func (f ControllerFunc) Intentions(snap protocol.Snapshot) ([]protocol.IntentionSet, error) {
	return f(snap)
}

// Client drives one scenario. It is not safe for concurrent use.
type Client struct {
	conn    transport.Conn
	started bool
	ended   bool
	last    protocol.Snapshot
}

func NewClient(conn transport.Conn) *Client { return &Client{conn: conn} }

func (c *Client) Last() protocol.Snapshot { return c.last }
func (c *Client) Ended() bool             { return c.ended }

// Start sends cfg and waits for the START snapshot.
func (c *Client) Start(cfg protocol.ScenarioConfig) (protocol.Snapshot, error) {
	if c.started {
		return c.last, errors.New("session already started")
	}
	b, err := protocol.Encode(cfg)
	if err != nil {
		return protocol.Snapshot{}, err
	}
	c.started = true
	return c.exchange(b)
}

// Step sends one round of intentions and waits for the resulting snapshot.
func (c *Client) Step(sets ...protocol.IntentionSet) (protocol.Snapshot, error) {
	if !c.started {
		return protocol.Snapshot{}, errors.New("session not started")
	}
	if c.ended {
		return c.last, ErrEnded
	}
	b, err := protocol.EncodeIntentions(sets)
	if err != nil {
		return protocol.Snapshot{}, err
	}
	return c.exchange(b)
}

// Shutdown asks the server to end the scenario.
func (c *Client) Shutdown() (protocol.Snapshot, error) {
	set, err := protocol.NewIntentionSet(protocol.ServerID, protocol.Done())
	if err != nil {
		return protocol.Snapshot{}, err
	}
	return c.Step(set)
}

func (c *Client) exchange(msg []byte) (protocol.Snapshot, error) {
	if err := c.conn.WriteMessage(msg); err != nil {
		return protocol.Snapshot{}, err
	}
	line, err := c.conn.ReadMessage()
	if err != nil {
		return protocol.Snapshot{}, err
	}
	snap, err := protocol.DecodeSnapshot(line)
	if err != nil {
		return protocol.Snapshot{}, err
	}
	c.last = snap
	if snap.Status.Terminal() {
		c.ended = true
	}
	if snap.Status == protocol.StatusError {
		return snap, &ServerError{Code: snap.ErrorCode, Text: snap.Error}
	}
	return snap, nil
}

// Run starts cfg and steps with ctrl until the scenario ends. When ctx is
// cancelled first, Run sends a server shutdown and returns ctx.Err().
func (c *Client) Run(ctx context.Context, cfg protocol.ScenarioConfig, ctrl Controller) (protocol.Snapshot, error) {
	snap, err := c.Start(cfg)
	if err != nil {
		return snap, err
	}
	for !c.ended {
		if err := ctx.Err(); err != nil {
			if _, serr := c.Shutdown(); serr != nil {
				return c.last, errors.Join(err, serr)
			}
			return c.last, err
		}
		sets, err := ctrl.Intentions(snap)
		if err != nil {
			return snap, fmt.Errorf("controller: %w", err)
		}
		snap, err = c.Step(sets...)
		if err != nil {
			return snap, err
		}
	}
	return snap, nil
}
