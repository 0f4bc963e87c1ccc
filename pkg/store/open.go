package store

import (
	"context"
	"fmt"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Open returns the Storage for driver. dsn is a file path for sqlite and a
// connection URL for postgres.
func Open(ctx context.Context, driver, dsn string) (Storage, error) {
	switch driver {
	case DriverSQLite:
		return NewSQLiteStore(ctx, dsn)
	case DriverPostgres:
		return NewPostgresStore(ctx, dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
}
