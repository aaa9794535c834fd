package db

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"sort"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Execer is the subset of pgx used to apply schema files.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Migrate applies every embedded migration in lexical order. Files are written
// with IF NOT EXISTS guards so the call is safe to repeat on every boot.
func Migrate(ctx context.Context, conn TxBeginner) error {
	names, err := MigrationNames()
	if err != nil {
		return err
	}
	return WithTx(ctx, conn, func(tx pgx.Tx) error {
		for _, name := range names {
			if err := applyFile(ctx, tx, name); err != nil {
				return err
			}
		}
		return nil
	})
}

// MigrationNames lists the embedded migration files in apply order.
func MigrationNames() ([]string, error) {
	names, err := fs.Glob(migrations, "migrations/*.sql")
	if err != nil {
		return nil, fmt.Errorf("platform/db: list migrations: %w", err)
	}
	sort.Strings(names)
	return names, nil
}

func applyFile(ctx context.Context, conn Execer, name string) error {
	body, err := migrations.ReadFile(name)
	if err != nil {
		return fmt.Errorf("platform/db: read %s: %w", name, err)
	}
	if _, err := conn.Exec(ctx, string(body)); err != nil {
		return fmt.Errorf("platform/db: apply %s: %w", name, err)
	}
	return nil
}
