package backend

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/xraph/billbook/store/memory"
)

func TestNormalize(t *testing.T) {
	tests := map[string]string{
		"":           Memory,
		"mem":        Memory,
		"PG":         Postgres,
		"postgresql": Postgres,
		"sqlite3":    SQLite,
		" mongodb ":  Mongo,
		"oracle":     "oracle",
	}
	for in, want := range tests {
		if got := Normalize(in); got != want {
			t.Errorf("Normalize(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNew(t *testing.T) {
	s, err := New("memory", nil)
	if err != nil {
		t.Fatalf("memory: %v", err)
	}
	if _, ok := s.(*memory.Store); !ok {
		t.Fatalf("memory driver returned %T", s)
	}

	for _, d := range []string{"postgres", "sqlite", "mongo"} {
		if _, err := New(d, nil); err == nil {
			t.Errorf("%s without db: want error", d)
		}
	}
	if _, err := New("oracle", nil); err == nil {
		t.Error("unknown driver: want error")
	}
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	db, err := Open(ctx, "memory", "")
	if err != nil || db != nil {
		t.Fatalf("memory: got %v, %v; want nil, nil", db, err)
	}
	if _, err := Open(ctx, "sqlite", ""); err == nil {
		t.Error("sqlite without dsn: want error")
	}
	if _, err := Open(ctx, "oracle", "x"); err == nil {
		t.Error("unregistered driver: want error")
	}
}

func TestOpenSQLiteThroughRegistry(t *testing.T) {
	ctx := context.Background()

	db, err := Open(ctx, "sqlite3", filepath.Join(t.TempDir(), "billbook.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	s, err := New("sqlite", db)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Close()

	if err := s.Migrate(ctx); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	if err := s.Ping(ctx); err != nil {
		t.Fatalf("Ping: %v", err)
	}
}
