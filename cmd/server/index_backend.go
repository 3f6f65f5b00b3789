package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"rescuesim/internal/persistence/indexdb"
	"rescuesim/internal/sim/tuning"
)

func openIndex(tune tuning.Tuning) (*indexdb.SQLiteIndex, error) {
	if !tune.IndexDB {
		return nil, nil
	}

	backend := strings.ToLower(strings.TrimSpace(os.Getenv("RS_INDEX_BACKEND")))
	if backend == "" {
		backend = "sqlite"
	}

	switch backend {
	case "none", "off", "disabled":
		return nil, nil
	case "sqlite":
		dbPath := filepath.Join(tune.DataDir, "index", "sessions.sqlite")
		return indexdb.OpenSQLite(dbPath)
	default:
		return nil, fmt.Errorf("unsupported RS_INDEX_BACKEND: %s", backend)
	}
}
