// Package log persists session tick logs as zstd-compressed JSON lines.
package log

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/klauspost/compress/zstd"

	"rescuesim/internal/protocol"
	"rescuesim/internal/session"
)

const TickLogName = "ticks.jsonl.zst"

type JSONLZstdWriter struct {
	path string

	mu  sync.Mutex
	f   *os.File
	enc *zstd.Encoder
	w   *bufio.Writer
}

func NewJSONLZstdWriter(path string) *JSONLZstdWriter {
	return &JSONLZstdWriter{path: path}
}

func (w *JSONLZstdWriter) Path() string { return w.path }

func (w *JSONLZstdWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closeLocked()
}

// Write appends v as one line. Each write is flushed through the zstd
// encoder as a complete block, so a crash keeps every line written so far
// readable even though the frame is never closed.
func (w *JSONLZstdWriter) Write(v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.w == nil {
		if err := w.openLocked(); err != nil {
			return err
		}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := w.w.Write(b); err != nil {
		return err
	}
	if err := w.w.WriteByte('\n'); err != nil {
		return err
	}
	if err := w.w.Flush(); err != nil {
		return err
	}
	return w.enc.Flush()
}

func (w *JSONLZstdWriter) openLocked() error {
	if err := os.MkdirAll(filepath.Dir(w.path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return err
	}
	w.f = f
	w.enc = enc
	w.w = bufio.NewWriterSize(enc, 128*1024)
	return nil
}

func (w *JSONLZstdWriter) closeLocked() error {
	var err1 error
	if w.w != nil {
		_ = w.w.Flush()
	}
	if w.enc != nil {
		err1 = w.enc.Close()
		w.enc = nil
	}
	if w.f != nil {
		_ = w.f.Close()
		w.f = nil
	}
	w.w = nil
	return err1
}

// SessionDir is where a session's artifacts live under dataDir.
func SessionDir(dataDir, sessionID string) string {
	return filepath.Join(dataDir, "sessions", sessionID)
}

// TickLogger writes one JSONL entry per session event (compressed).
type TickLogger struct{ w *JSONLZstdWriter }

func NewTickLogger(sessionDir string) *TickLogger {
	return &TickLogger{w: NewJSONLZstdWriter(filepath.Join(sessionDir, TickLogName))}
}

func (l *TickLogger) WriteEntry(e session.LogEntry) error { return l.w.Write(e) }
func (l *TickLogger) Close() error                        { return l.w.Close() }
func (l *TickLogger) Path() string                        { return l.w.Path() }

// Opener returns a session.Options.OpenLog func rooted at dataDir.
func Opener(dataDir string) func(sessionID string) (session.EntryLog, error) {
	return func(sessionID string) (session.EntryLog, error) {
		if sessionID == "" {
			return nil, errors.New("empty session id")
		}
		return NewTickLogger(SessionDir(dataDir, sessionID)), nil
	}
}

// ReadEntries calls fn for each entry of a tick log in order. It stops at
// the first error fn returns.
func ReadEntries(path string, fn func(session.LogEntry) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return DecodeEntries(f, fn)
}

func DecodeEntries(r io.Reader, fn func(session.LogEntry) error) error {
	dec, err := zstd.NewReader(r)
	if err != nil {
		return err
	}
	defer dec.Close()

	sc := bufio.NewScanner(dec)
	sc.Buffer(make([]byte, 64*1024), 8*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		var e session.LogEntry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			return fmt.Errorf("line %d: unmarshal: %w", line, err)
		}
		if err := fn(e); err != nil {
			return err
		}
	}
	return sc.Err()
}

var errFound = errors.New("found")

// FirstConfig returns the scenario config recorded at the head of a tick log.
func FirstConfig(path string) (*protocol.ScenarioConfig, error) {
	var cfg *protocol.ScenarioConfig
	err := ReadEntries(path, func(e session.LogEntry) error {
		if e.Type == session.EntryConfig && e.Config != nil {
			cfg = e.Config
			return errFound
		}
		return nil
	})
	if err != nil && !errors.Is(err, errFound) {
		return nil, err
	}
	if cfg == nil {
		return nil, fmt.Errorf("%s: no config entry", path)
	}
	return cfg, nil
}
