package store

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Migrate applies the embedded *.up.sql files in lexical order. The files are
// idempotent, so running Migrate against an initialized database is a no-op.
func (s *Store) Migrate(ctx context.Context) error {
	if s == nil || s.pool == nil {
		return ErrUnavailable
	}
	files, err := migrationFiles(".up.sql")
	if err != nil {
		return err
	}
	for _, name := range files {
		payload, err := migrationsFS.ReadFile(name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}
		if _, err := s.pool.Exec(ctx, string(payload)); err != nil {
			return fmt.Errorf("apply migration %s: %w", name, err)
		}
		s.logger.Printf("store: applied migration %s", name)
	}
	return s.refreshReady(ctx)
}

// Reset applies the embedded *.down.sql files in reverse order, leaving the
// store unavailable.
func (s *Store) Reset(ctx context.Context) error {
	if s == nil || s.pool == nil {
		return ErrUnavailable
	}
	files, err := migrationFiles(".down.sql")
	if err != nil {
		return err
	}
	for i := len(files) - 1; i >= 0; i-- {
		payload, err := migrationsFS.ReadFile(files[i])
		if err != nil {
			return fmt.Errorf("read migration %s: %w", files[i], err)
		}
		if _, err := s.pool.Exec(ctx, string(payload)); err != nil {
			return fmt.Errorf("revert migration %s: %w", files[i], err)
		}
	}
	return s.refreshReady(ctx)
}

func migrationFiles(suffix string) ([]string, error) {
	matches, err := fs.Glob(migrationsFS, "migrations/*.sql")
	if err != nil {
		return nil, fmt.Errorf("list migrations: %w", err)
	}
	files := make([]string, 0, len(matches))
	for _, m := range matches {
		if strings.HasSuffix(m, suffix) {
			files = append(files, m)
		}
	}
	sort.Strings(files)
	return files, nil
}
