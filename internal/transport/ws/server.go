// Package ws carries the same messages as package stream over websocket,
// one JSON document per text frame.
package ws

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"rescuesim/internal/transport"
)

type Options struct {
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	MaxMessage   int64
}

type Conn struct {
	c    *websocket.Conn
	opts Options

	wmu sync.Mutex
}

func newConn(c *websocket.Conn, opts Options) *Conn {
	if opts.MaxMessage > 0 {
		c.SetReadLimit(opts.MaxMessage)
	}
	return &Conn{c: c, opts: opts}
}

func Dial(ctx context.Context, url string, opts Options) (*Conn, error) {
	c, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, transport.Wrap("dial", err)
	}
	return newConn(c, opts), nil
}

func (c *Conn) RemoteAddr() string { return c.c.RemoteAddr().String() }

func (c *Conn) ReadMessage() ([]byte, error) {
	for {
		if c.opts.ReadTimeout > 0 {
			_ = c.c.SetReadDeadline(time.Now().Add(c.opts.ReadTimeout))
		}
		typ, msg, err := c.c.ReadMessage()
		if err != nil {
			return nil, wrap("read", err)
		}
		if typ != websocket.TextMessage || len(msg) == 0 {
			continue
		}
		return msg, nil
	}
}

func (c *Conn) WriteMessage(b []byte) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	wt := c.opts.WriteTimeout
	if wt <= 0 {
		wt = 5 * time.Second
	}
	_ = c.c.SetWriteDeadline(time.Now().Add(wt))
	return wrap("write", c.c.WriteMessage(websocket.TextMessage, b))
}

func (c *Conn) Close() error {
	c.wmu.Lock()
	_ = c.c.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second))
	c.wmu.Unlock()
	return c.c.Close()
}

func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	var ce *websocket.CloseError
	if errors.As(err, &ce) || errors.Is(err, websocket.ErrCloseSent) {
		return &transport.ConnError{Op: op, Closed: true, Err: err}
	}
	return transport.Wrap(op, err)
}

// HandlerFunc runs one session on an upgraded connection and returns when
// the session is over.
type HandlerFunc func(ctx context.Context, conn transport.Conn) error

type Server struct {
	handle HandlerFunc
	opts   Options
	log    logrus.FieldLogger

	upgrader websocket.Upgrader
}

func NewServer(handle HandlerFunc, opts Options, log logrus.FieldLogger) *Server {
	return &Server{
		handle: handle,
		opts:   opts,
		log:    log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		c, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		conn := newConn(c, s.opts)
		defer conn.Close()

		if err := s.handle(r.Context(), conn); err != nil {
			s.log.WithField("remote", conn.RemoteAddr()).WithError(err).Info("ws session ended")
		}
	}
}
