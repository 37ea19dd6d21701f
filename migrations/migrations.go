// Package migrations embeds the SQL schema files and applies them in order.
package migrations

import (
	"context"
	"embed"
	"fmt"
	"sort"

	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed *.sql
var files embed.FS

// Apply runs every embedded migration in filename order. Statements are
// idempotent (IF NOT EXISTS) so re-running against an existing schema is safe.
func Apply(ctx context.Context, pool *pgxpool.Pool) ([]string, error) {
	entries, err := files.ReadDir(".")
	if err != nil {
		return nil, fmt.Errorf("failed to read embedded migrations: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)

	for _, name := range names {
		sql, readErr := files.ReadFile(name)
		if readErr != nil {
			return nil, fmt.Errorf("failed to read migration %s: %w", name, readErr)
		}
		if _, execErr := pool.Exec(ctx, string(sql)); execErr != nil {
			return nil, fmt.Errorf("failed to apply migration %s: %w", name, execErr)
		}
	}

	return names, nil
}
