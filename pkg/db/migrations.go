package db

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

const migrationsLogPrefix = "db:migrations"

// Migration is one forward-only SQL file.
type Migration struct {
	Name string
	SQL  string
}

// LoadMigrations reads the .sql files in dir ordered by file name. Files
// holding only whitespace are skipped.
func LoadMigrations(dir string) ([]Migration, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("%s - failed to read migration dir %s: %w", migrationsLogPrefix, dir, err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".sql") {
			continue
		}
		names = append(names, e.Name())
	}
	slices.Sort(names)

	out := make([]Migration, 0, len(names))
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("%s - failed to read %s: %w", migrationsLogPrefix, name, err)
		}
		sql := strings.TrimSpace(string(data))
		if sql == "" {
			slog.Warn(fmt.Sprintf("%s - skipping empty migration %s", migrationsLogPrefix, name))
			continue
		}
		out = append(out, Migration{Name: name, SQL: sql})
	}
	slog.Info(fmt.Sprintf("%s - Loaded %d migrations from %s", migrationsLogPrefix, len(out), dir))
	return out, nil
}
