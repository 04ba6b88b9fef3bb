// Package backend picks a store implementation by driver name.
package backend

import (
	"fmt"
	"strings"

	"github.com/xraph/grove"

	"github.com/xraph/billbook/store"
	"github.com/xraph/billbook/store/memory"
	"github.com/xraph/billbook/store/mongo"
	"github.com/xraph/billbook/store/postgres"
	"github.com/xraph/billbook/store/sqlite"
)

// Driver names accepted by New.
const (
	Memory   = "memory"
	Postgres = "postgres"
	SQLite   = "sqlite"
	Mongo    = "mongo"
)

// Normalize maps common aliases ("pg", "postgresql", "mongodb", "sqlite3")
// to a driver name.
func Normalize(driver string) string {
	switch d := strings.ToLower(strings.TrimSpace(driver)); d {
	case "", Memory, "mem":
		return Memory
	case Postgres, "pg", "postgresql":
		return Postgres
	case SQLite, "sqlite3":
		return SQLite
	case Mongo, "mongodb":
		return Mongo
	default:
		return d
	}
}

// New returns the store for driver over db. db is ignored for the memory
// driver and required for the others.
func New(driver string, db *grove.DB) (store.Store, error) {
	d := Normalize(driver)
	if d == Memory {
		return memory.New(), nil
	}
	if db == nil {
		return nil, fmt.Errorf("billbook: driver %q needs a database", d)
	}

	switch d {
	case Postgres:
		return postgres.New(db), nil
	case SQLite:
		return sqlite.New(db), nil
	case Mongo:
		return mongo.New(db), nil
	default:
		return nil, fmt.Errorf("billbook: unknown store driver %q", driver)
	}
}
