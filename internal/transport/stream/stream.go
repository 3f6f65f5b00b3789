// Package stream carries newline-delimited JSON over a TCP connection.
package stream

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"rescuesim/internal/transport"
)

const DefaultMaxLineBytes = 8 << 20

type Options struct {
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	MaxLineBytes int
}

func (o Options) maxLine() int {
	if o.MaxLineBytes <= 0 {
		return DefaultMaxLineBytes
	}
	return o.MaxLineBytes
}

type Conn struct {
	c    net.Conn
	r    *bufio.Reader
	opts Options

	wmu sync.Mutex
}

func New(c net.Conn, opts Options) *Conn {
	return &Conn{c: c, r: bufio.NewReaderSize(c, 64*1024), opts: opts}
}

func Dial(ctx context.Context, addr string, opts Options) (*Conn, error) {
	var d net.Dialer
	c, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, transport.Wrap("dial", err)
	}
	return New(c, opts), nil
}

func (c *Conn) RemoteAddr() string { return c.c.RemoteAddr().String() }

func (c *Conn) Close() error { return c.c.Close() }

// ReadMessage returns the next non-empty line without its terminator.
func (c *Conn) ReadMessage() ([]byte, error) {
	for {
		if c.opts.ReadTimeout > 0 {
			_ = c.c.SetReadDeadline(time.Now().Add(c.opts.ReadTimeout))
		}
		line, err := c.readLine()
		if err != nil {
			return nil, transport.Wrap("read", err)
		}
		line = bytes.TrimRight(line, "\r")
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		return line, nil
	}
}

func (c *Conn) readLine() ([]byte, error) {
	var buf []byte
	for {
		frag, err := c.r.ReadSlice('\n')
		if len(buf)+len(frag) > c.opts.maxLine()+1 {
			return nil, &transport.ConnError{Op: "read", Err: transport.ErrLineTooLong}
		}
		buf = append(buf, frag...)
		switch {
		case err == nil:
			return buf[:len(buf)-1], nil
		case errors.Is(err, bufio.ErrBufferFull):
			continue
		default:
			return nil, err
		}
	}
}

// WriteMessage sends b followed by a newline. b must not contain a newline.
func (c *Conn) WriteMessage(b []byte) error {
	if bytes.IndexByte(b, '\n') >= 0 {
		return &transport.ConnError{Op: "write", Err: errors.New("message contains a newline")}
	}
	c.wmu.Lock()
	defer c.wmu.Unlock()
	if c.opts.WriteTimeout > 0 {
		_ = c.c.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout))
	}
	out := make([]byte, 0, len(b)+1)
	out = append(out, b...)
	out = append(out, '\n')
	_, err := c.c.Write(out)
	return transport.Wrap("write", err)
}

// Listener accepts stream connections.
type Listener struct {
	ln   net.Listener
	opts Options
}

func Listen(addr string, opts Options) (*Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &Listener{ln: ln, opts: opts}, nil
}

func (l *Listener) Addr() net.Addr { return l.ln.Addr() }
func (l *Listener) Close() error   { return l.ln.Close() }

func (l *Listener) Accept() (*Conn, error) {
	c, err := l.ln.Accept()
	if err != nil {
		return nil, err
	}
	return New(c, l.opts), nil
}
