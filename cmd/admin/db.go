package main

import (
	"database/sql"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

func dbCmd(args []string) {
	fs := flag.NewFlagSet("db", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	dbPath := fs.String("db", "", "sqlite db path (optional)")
	sessionID := fs.String("session", "", "session id (ticks, warnings)")
	remoteID := fs.String("remote", "", "remote_id filter (warnings)")
	limit := fs.Int("limit", 20, "result limit")
	_ = fs.Parse(args)

	q := "sessions"
	if fs.NArg() > 0 {
		q = strings.TrimSpace(fs.Arg(0))
	}
	path := strings.TrimSpace(*dbPath)
	if path == "" {
		path = filepath.Join(*dataDir, "index", "sessions.sqlite")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := runQuery(db, os.Stdout, q, queryArgs{SessionID: *sessionID, RemoteID: *remoteID, Limit: *limit}); err != nil {
		fmt.Fprintln(os.Stderr, err)
		fmt.Fprintln(os.Stderr, "usage: admin db [-data ./data|-db PATH] [-session ID] [-remote ID] sessions|ticks|warnings")
		os.Exit(1)
	}
}

type queryArgs struct {
	SessionID string
	RemoteID  string
	Limit     int
}

type sessionOut struct {
	SessionID  string `json:"session_id"`
	ScenarioID string `json:"scenario_id"`
	Seed       int64  `json:"seed"`
	Remotes    int    `json:"remotes"`
	StartedAt  string `json:"started_at"`
	EndedAt    string `json:"ended_at,omitempty"`
	Status     string `json:"status"`
	Reason     string `json:"reason,omitempty"`
	Ticks      int64  `json:"ticks"`
	FinalHash  string `json:"final_hash"`
}

type tickOut struct {
	Tick       int64   `json:"tick"`
	Time       float64 `json:"time"`
	Status     string  `json:"status"`
	Hash       string  `json:"hash"`
	Intentions int     `json:"intentions"`
	Warnings   int     `json:"warnings"`
}

type warningOut struct {
	SessionID string `json:"session_id"`
	Tick      int64  `json:"tick"`
	RemoteID  string `json:"remote_id"`
	Intention string `json:"intention"`
	SensorID  string `json:"sensor_id,omitempty"`
	Reason    string `json:"reason"`
}

// runQuery prints one JSON object per row to w.
func runQuery(db *sql.DB, w io.Writer, q string, a queryArgs) error {
	if a.Limit <= 0 {
		a.Limit = 20
	}
	enc := newJSONLines(w)
	switch q {
	case "sessions":
		rows, err := db.Query(`SELECT session_id,scenario_id,seed,remotes,started_at,ended_at,status,reason,ticks,final_hash FROM sessions ORDER BY started_at DESC, session_id LIMIT ?`, a.Limit)
		if err != nil {
			return fmt.Errorf("query: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var (
				r             sessionOut
				ended, reason sql.NullString
			)
			if err := rows.Scan(&r.SessionID, &r.ScenarioID, &r.Seed, &r.Remotes, &r.StartedAt, &ended, &r.Status, &reason, &r.Ticks, &r.FinalHash); err != nil {
				return fmt.Errorf("scan: %w", err)
			}
			r.EndedAt, r.Reason = ended.String, reason.String
			enc(r)
		}
		return rows.Err()

	case "ticks":
		if a.SessionID == "" {
			return fmt.Errorf("ticks: missing -session")
		}
		rows, err := db.Query(`SELECT tick,time,status,hash,intentions,warnings FROM ticks WHERE session_id=? ORDER BY tick DESC LIMIT ?`, a.SessionID, a.Limit)
		if err != nil {
			return fmt.Errorf("query: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var r tickOut
			if err := rows.Scan(&r.Tick, &r.Time, &r.Status, &r.Hash, &r.Intentions, &r.Warnings); err != nil {
				return fmt.Errorf("scan: %w", err)
			}
			enc(r)
		}
		return rows.Err()

	case "warnings":
		query := `SELECT session_id,tick,remote_id,intention,sensor_id,reason FROM warnings`
		var (
			where []string
			args  []any
		)
		if a.SessionID != "" {
			where = append(where, "session_id=?")
			args = append(args, a.SessionID)
		}
		if a.RemoteID != "" {
			where = append(where, "remote_id=?")
			args = append(args, a.RemoteID)
		}
		if len(where) > 0 {
			query += " WHERE " + strings.Join(where, " AND ")
		}
		query += " ORDER BY session_id, tick, seq LIMIT ?"
		args = append(args, a.Limit)

		rows, err := db.Query(query, args...)
		if err != nil {
			return fmt.Errorf("query: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var (
				r      warningOut
				sensor sql.NullString
			)
			if err := rows.Scan(&r.SessionID, &r.Tick, &r.RemoteID, &r.Intention, &sensor, &r.Reason); err != nil {
				return fmt.Errorf("scan: %w", err)
			}
			r.SensorID = sensor.String
			enc(r)
		}
		return rows.Err()
	}
	return fmt.Errorf("unknown query: %s", q)
}
