package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"rescuesim/internal/observer"
	persistlog "rescuesim/internal/persistence/log"
	"rescuesim/internal/persistence/snapshot"
	"rescuesim/internal/sim/mathx"
	"rescuesim/internal/sim/presets"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "db":
			dbCmd(os.Args[2:])
			return
		case "final":
			finalCmd(os.Args[2:])
			return
		case "latest":
			getCmd("latest", "/observer/latest", os.Args[2:])
			return
		case "metrics":
			getCmd("metrics", "/metrics", os.Args[2:])
			return
		case "scenarios":
			for _, id := range presets.IDs() {
				fmt.Println(id)
			}
			return
		}
	}
	listCmd(os.Args[1:])
}

func listCmd(args []string) {
	fs := flag.NewFlagSet("admin", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	_ = fs.Parse(args)

	ids, err := listSessions(*dataDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read:", err)
		os.Exit(1)
	}
	for _, id := range ids {
		fmt.Println(id)
	}
}

// listSessions returns the session directories under dataDir, sorted.
func listSessions(dataDir string) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(dataDir, "sessions"))
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() {
			out = append(out, e.Name())
		}
	}
	sort.Strings(out)
	return out, nil
}

func finalCmd(args []string) {
	fs := flag.NewFlagSet("final", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	sessionID := fs.String("session", "", "session id")
	path := fs.String("path", "", "archive path (instead of -session)")
	asGeoJSON := fs.Bool("geojson", false, "print the final state as GeoJSON")
	_ = fs.Parse(args)

	p := *path
	if p == "" {
		if *sessionID == "" {
			fmt.Fprintln(os.Stderr, "missing -session or -path")
			os.Exit(2)
		}
		p = filepath.Join(persistlog.SessionDir(*dataDir, *sessionID), snapshot.FinalName)
	}
	a, err := snapshot.ReadSnapshot(p)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read:", err)
		os.Exit(1)
	}
	if !*asGeoJSON {
		printJSON(summarize(a))
		return
	}
	grid, err := gridFor(*dataDir, a.Header.SessionID, a.Header.ScenarioID)
	if err != nil {
		fmt.Fprintln(os.Stderr, "grid:", err)
		os.Exit(1)
	}
	printJSON(observer.FeatureCollection(a.Snapshot, grid))
}

type finalSummary struct {
	snapshot.Header
	Remotes int            `json:"remotes"`
	Active  int            `json:"active"`
	ByState map[string]int `json:"by_state"`
	Error   string         `json:"error,omitempty"`
}

func summarize(a snapshot.Archived) finalSummary {
	s := finalSummary{Header: a.Header, Remotes: len(a.Snapshot.Remotes), ByState: map[string]int{}, Error: a.Snapshot.Error}
	for _, r := range a.Snapshot.Remotes {
		s.ByState[string(r.State)]++
		if r.Active() {
			s.Active++
		}
	}
	return s
}

// gridFor rebuilds the grid from the session's recorded config, falling
// back to a built-in scenario of the same ID.
func gridFor(dataDir, sessionID, scenarioID string) (*mathx.Grid, error) {
	logPath := filepath.Join(persistlog.SessionDir(dataDir, sessionID), persistlog.TickLogName)
	cfg, ok := presets.Lookup(scenarioID)
	if e, err := persistlog.FirstConfig(logPath); err == nil {
		cfg, ok = *e, true
	}
	if !ok {
		return nil, fmt.Errorf("no config for session %s (scenario %q)", sessionID, scenarioID)
	}
	return mathx.NewGrid(cfg.Grid.Width, cfg.Grid.Height, cfg.Grid.ZoneSize, cfg.Grid.Terrain)
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}
