package tuning

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_EmptyPathGivesDefaults(t *testing.T) {
	got, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.Listen != "127.0.0.1:8080" || !got.TickLog || got.MaxLineBytes != 8<<20 {
		t.Fatalf("defaults=%+v", got)
	}
}

func TestLoad_OverridesAndNormalizes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tuning.yaml")
	raw := "listen: \" 0.0.0.0:9000 \"\nread_timeout_ms: 1500\ndata_dir: \"\"\nparallel_integration: true\nparallel_workers: -3\nlog_format: JSON\n"
	if err := os.WriteFile(path, []byte(raw), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.Listen != "0.0.0.0:9000" || got.ReadTimeout().Milliseconds() != 1500 {
		t.Fatalf("got %+v", got)
	}
	if got.TickLog || got.IndexDB {
		t.Fatalf("empty data_dir must disable persistence: %+v", got)
	}
	if !got.ParallelIntegration || got.ParallelWorkers != 0 || got.LogFormat != "json" {
		t.Fatalf("got %+v", got)
	}
}

func TestLoad_RejectsBadListen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tuning.yaml")
	if err := os.WriteFile(path, []byte("listen: nope\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("expected error")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if !os.IsNotExist(err) {
		t.Fatalf("expected not-exist, got %v", err)
	}
}
