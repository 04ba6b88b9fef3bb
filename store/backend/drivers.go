package backend

import (
	"context"
	"fmt"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/mongodriver"
	"github.com/xraph/grove/drivers/pgdriver"
	"github.com/xraph/grove/drivers/sqlitedriver"

	"github.com/xraph/billbook/store/sqlite"
)

// The grove drivers do not register themselves, so the factories for every
// SQL and document backend are registered here under the same names New
// accepts. grove.OpenDriver can then open any of them by name.
func init() {
	grove.RegisterDriver(Postgres, func(ctx context.Context, dsn string) (grove.GroveDriver, error) {
		db := pgdriver.New()
		if err := db.Open(ctx, dsn); err != nil {
			return nil, err
		}
		return db, nil
	})
	grove.RegisterDriver(SQLite, func(ctx context.Context, dsn string) (grove.GroveDriver, error) {
		db := sqlitedriver.New()
		if err := db.Open(ctx, sqlite.DSN(dsn)); err != nil {
			return nil, err
		}
		return db, nil
	})
	grove.RegisterDriver(Mongo, func(ctx context.Context, uri string) (grove.GroveDriver, error) {
		db := mongodriver.New()
		if err := db.Open(ctx, uri); err != nil {
			return nil, err
		}
		return db, nil
	})
}

// Open connects the grove database for driver through the driver registry.
// The memory driver needs none and gets nil.
func Open(ctx context.Context, driver, dsn string) (*grove.DB, error) {
	d := Normalize(driver)
	if d == Memory {
		return nil, nil
	}
	if dsn == "" {
		return nil, fmt.Errorf("billbook: store dsn is required for driver %q", d)
	}

	drv, err := grove.OpenDriver(ctx, d, dsn)
	if err != nil {
		return nil, fmt.Errorf("billbook: open %s: %w", d, err)
	}
	db, err := grove.Open(drv)
	if err != nil {
		_ = drv.Close()
		return nil, fmt.Errorf("billbook: open grove: %w", err)
	}
	return db, nil
}
