package database

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/datalab-agent/analyst-go/internal/config"
)

func TestMigrate_NilPool(t *testing.T) {
	if _, err := Migrate(context.Background(), nil, t.TempDir()); err == nil {
		t.Fatal("expected error for nil pool")
	}
}

func TestLoadAppliedVersions_NilPool(t *testing.T) {
	_, err := loadAppliedVersions(context.Background(), nil)
	if err == nil {
		t.Fatal("expected error for nil pool")
	}
}

func TestApplyOneMigration_NilPool(t *testing.T) {
	err := applyOneMigration(context.Background(), nil, t.TempDir(), "001_chat_sessions.sql")
	if err == nil {
		t.Fatal("expected error for nil pool")
	}
}

func TestListMigrationFiles(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"002_chat_logs.sql", "001_chat_sessions.sql", "README.md"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("SELECT 1;"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.Mkdir(filepath.Join(dir, "003_dir.sql"), 0o755); err != nil {
		t.Fatal(err)
	}

	got, err := listMigrationFiles(dir)
	if err != nil {
		t.Fatalf("listMigrationFiles: %v", err)
	}
	want := []string{"001_chat_sessions.sql", "002_chat_logs.sql"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("files = %v, want %v", got, want)
	}
}

func TestListMigrationFiles_MissingDir(t *testing.T) {
	got, err := listMigrationFiles(filepath.Join(t.TempDir(), "nope"))
	if err != nil {
		t.Fatalf("missing dir should not error: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("files = %v, want empty", got)
	}
}

func TestCountPendingMigrations(t *testing.T) {
	files := []string{"001.sql", "002.sql", "003.sql"}
	tests := []struct {
		name    string
		applied map[string]bool
		want    int
	}{
		{"none applied", map[string]bool{}, 3},
		{"partial", map[string]bool{"001.sql": true}, 2},
		{"all applied", map[string]bool{"001.sql": true, "002.sql": true, "003.sql": true}, 0},
		{"unknown version ignored", map[string]bool{"999.sql": true}, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := countPendingMigrations(files, tt.applied); got != tt.want {
				t.Errorf("pending = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestSafeInt32(t *testing.T) {
	if got := safeInt32(10, "x"); got != 10 {
		t.Errorf("safeInt32(10) = %d", got)
	}
	if got := safeInt32(-1, "x"); got != 0 {
		t.Errorf("safeInt32(-1) = %d, want 0", got)
	}
	if got := safeInt32(math.MaxInt32+1, "x"); got != math.MaxInt32 {
		t.Errorf("safeInt32(overflow) = %d, want MaxInt32", got)
	}
}

func TestPoolConfig(t *testing.T) {
	if _, err := poolConfig(&config.Config{}); err == nil {
		t.Fatal("expected error for empty connection string")
	}

	cfg := &config.Config{
		PostgresConnStr:     "postgres://u:p@localhost:5432/analyst",
		PostgresSchema:      "analyst",
		PostgresPoolMinSize: 20,
		PostgresPoolMaxSize: 5,
	}
	pc, err := poolConfig(cfg)
	if err != nil {
		t.Fatalf("poolConfig: %v", err)
	}
	if pc.MaxConns != 5 || pc.MinConns != 5 {
		t.Errorf("conns = %d/%d, want 5/5", pc.MinConns, pc.MaxConns)
	}
	if pc.AfterConnect == nil {
		t.Error("AfterConnect should set search_path for non-public schema")
	}

	cfg.PostgresSchema = "public"
	pc, err = poolConfig(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if pc.AfterConnect != nil {
		t.Error("AfterConnect should be nil for public schema")
	}
}
