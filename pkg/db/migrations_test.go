package db

import (
	"os"
	"path/filepath"
	"testing"
)

const migrationsTestPrefix = "db:migrations_test"

func writeFiles(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatalf("%s - failed to write %s: %v", migrationsTestPrefix, name, err)
		}
	}
}

func TestLoadMigrations(t *testing.T) {
	tests := []struct {
		name  string
		files map[string]string
		want  []Migration
	}{
		{
			name: "sorted by file name",
			files: map[string]string{
				"003_third.sql":  "THIRD",
				"001_first.sql":  "FIRST",
				"002_second.sql": "SECOND",
			},
			want: []Migration{
				{Name: "001_first.sql", SQL: "FIRST"},
				{Name: "002_second.sql", SQL: "SECOND"},
				{Name: "003_third.sql", SQL: "THIRD"},
			},
		},
		{
			name: "skips non sql files",
			files: map[string]string{
				"001_sessions.sql": "CREATE TABLE packet_sessions ();\n",
				"README.md":        "# Migrations",
				"config.json":      "{}",
			},
			want: []Migration{{Name: "001_sessions.sql", SQL: "CREATE TABLE packet_sessions ();"}},
		},
		{
			name: "skips blank files",
			files: map[string]string{
				"001_blank.sql": " \n\t",
				"002_real.sql":  "SELECT 1;",
			},
			want: []Migration{{Name: "002_real.sql", SQL: "SELECT 1;"}},
		},
		{
			name:  "empty dir",
			files: map[string]string{},
			want:  []Migration{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			writeFiles(t, dir, tt.files)

			got, err := LoadMigrations(dir)
			if err != nil {
				t.Fatalf("%s - unexpected error: %v", migrationsTestPrefix, err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("%s - got %d migrations, want %d", migrationsTestPrefix, len(got), len(tt.want))
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("%s - migration %d = %+v, want %+v", migrationsTestPrefix, i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestLoadMigrations_SkipsDirectories(t *testing.T) {
	dir := t.TempDir()
	if err := os.Mkdir(filepath.Join(dir, "nested.sql"), 0o755); err != nil {
		t.Fatalf("%s - failed to create subdir: %v", migrationsTestPrefix, err)
	}
	writeFiles(t, dir, map[string]string{"001_a.sql": "A"})

	got, err := LoadMigrations(dir)
	if err != nil {
		t.Fatalf("%s - unexpected error: %v", migrationsTestPrefix, err)
	}
	if len(got) != 1 {
		t.Errorf("%s - expected 1 migration, got %d", migrationsTestPrefix, len(got))
	}
}

func TestLoadMigrations_NonExistentDir(t *testing.T) {
	if _, err := LoadMigrations(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Errorf("%s - expected error for missing directory", migrationsTestPrefix)
	}
}

func TestRepositoryMigrations_Load(t *testing.T) {
	got, err := LoadMigrations(filepath.Join("..", "..", "migrations"))
	if err != nil {
		t.Fatalf("%s - repository migrations failed to load: %v", migrationsTestPrefix, err)
	}
	if len(got) == 0 {
		t.Fatalf("%s - expected at least one repository migration", migrationsTestPrefix)
	}
	if got[0].Name != "001_packet_sessions.sql" {
		t.Errorf("%s - first migration = %s, want 001_packet_sessions.sql", migrationsTestPrefix, got[0].Name)
	}
}
