// Package postgres is the relational sink: connection setup and the DDL/DML
// text generated for inferred table schemas.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/guidewire-oss/nosql2sql/internal/config"
	"github.com/lib/pq"
)

// sqlOpen is replaced in tests.
var sqlOpen = sql.Open

// Open connects to Postgres with the configured pool settings and verifies
// the connection.
func Open(ctx context.Context, cfg config.PostgresConfig) (*sql.DB, error) {
	db, err := sqlOpen("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}
	return db, nil
}

// Postgres error codes the applier reacts to.
const (
	codeDuplicateColumn pq.ErrorCode = "42701"
	codeDuplicateTable  pq.ErrorCode = "42P07"
	codeUndefinedTable  pq.ErrorCode = "42P01"
)

func hasCode(err error, code pq.ErrorCode) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == code
}

// IsDuplicateColumn reports whether err is Postgres refusing an existing column.
func IsDuplicateColumn(err error) bool { return hasCode(err, codeDuplicateColumn) }

// IsDuplicateTable reports whether err is Postgres refusing an existing table.
// CREATE TABLE IF NOT EXISTS can still raise it when two sessions race.
func IsDuplicateTable(err error) bool { return hasCode(err, codeDuplicateTable) }

// IsUndefinedTable reports whether err names a table that does not exist.
func IsUndefinedTable(err error) bool { return hasCode(err, codeUndefinedTable) }
