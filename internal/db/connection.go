package db

import (
	"context"
	"fmt"

	"github.com/uptrace/bun/extra/bundebug"

	"github.com/cesilk/comfy-nodes/internal/config"
	"github.com/cesilk/comfy-nodes/internal/db/drivers"
)

const (
	DriverSQLite = "sqlite"
	DriverLibSQL = "libsql"
	DriverPG     = "pg"
)

func NewConnection(ctx context.Context, cfg *config.Config) (drivers.Driver, error) {
	if cfg == nil || cfg.DB == nil {
		return nil, fmt.Errorf("database is not configured")
	}

	var (
		driver drivers.Driver
		err    error
	)

	switch cfg.DB.Driver {
	case DriverSQLite:
		driver, err = drivers.NewSQLiteDriver(ctx, cfg.DB.DSN)
	case DriverLibSQL:
		driver, err = drivers.NewLibSQLDriver(ctx, cfg.DB.DSN)
	case DriverPG:
		driver, err = drivers.NewPGDriver(ctx, cfg.DB.DSN)
	default:
		return nil, fmt.Errorf("invalid database driver: %s", cfg.DB.Driver)
	}
	if err != nil {
		return nil, err
	}

	// BUNDEBUG=1 or BUNDEBUG=2 turns query logging on.
	driver.GetDB().AddQueryHook(bundebug.NewQueryHook(
		bundebug.WithEnabled(false),
		bundebug.FromEnv(),
	))

	return driver, nil
}
