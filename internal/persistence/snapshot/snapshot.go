// Package snapshot archives a session's final snapshot next to its tick log.
package snapshot

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"

	"rescuesim/internal/protocol"
)

const (
	Version   = 1
	FinalName = "final.snap.zst"
)

// Header is the plain JSON first line, readable without decoding the body.
type Header struct {
	Version    int             `json:"version"`
	SessionID  string          `json:"session_id"`
	ScenarioID string          `json:"scenario_id"`
	Tick       int64           `json:"tick"`
	Status     protocol.Status `json:"status"`
	Hash       string          `json:"hash"`
}

type Archived struct {
	Header   Header
	Snapshot protocol.Snapshot
}

func WriteSnapshot(path string, a Archived) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	bw := bufio.NewWriterSize(enc, 256*1024)

	hb, _ := json.Marshal(a.Header)
	if _, err := bw.Write(hb); err != nil {
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		return err
	}
	// The body is JSON as well: gob would decode a pointer to a zero
	// battery as nil and change the digest.
	if err := json.NewEncoder(bw).Encode(&a.Snapshot); err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := bw.Flush(); err != nil {
		return err
	}
	return enc.Close()
}

func ReadSnapshot(path string) (Archived, error) {
	var a Archived
	f, err := os.Open(path)
	if err != nil {
		return a, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return a, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 256*1024)
	line, err := br.ReadBytes('\n')
	if err != nil {
		return a, fmt.Errorf("read header: %w", err)
	}
	if err := json.Unmarshal(line, &a.Header); err != nil {
		return a, fmt.Errorf("header: %w", err)
	}
	if a.Header.Version != Version {
		return a, fmt.Errorf("unsupported snapshot version %d", a.Header.Version)
	}
	if err := json.NewDecoder(br).Decode(&a.Snapshot); err != nil {
		return a, fmt.Errorf("decode snapshot: %w", err)
	}
	return a, nil
}

// Archiver returns a session.Options.Archive func rooted at sessionDir(id).
func Archiver(sessionDir func(sessionID string) string) func(sessionID string, snap protocol.Snapshot) error {
	return func(sessionID string, snap protocol.Snapshot) error {
		return WriteSnapshot(filepath.Join(sessionDir(sessionID), FinalName), Archived{
			Header: Header{
				Version:    Version,
				SessionID:  sessionID,
				ScenarioID: snap.ScenarioID,
				Tick:       snap.Tick,
				Status:     snap.Status,
				Hash:       snap.Hash,
			},
			Snapshot: snap,
		})
	}
}
