package database

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"
	"time"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(Config{Path: ":memory:"})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup
	return db
}

func TestOpen(t *testing.T) {
	t.Run("creates database file and directory", func(t *testing.T) {
		dbPath := filepath.Join(t.TempDir(), "nested", "settings.db")

		db, err := Open(Config{Path: dbPath, WALMode: true, BusyTimeout: 5})
		if err != nil {
			t.Fatalf("Open() error = %v", err)
		}
		defer db.Close() //nolint:errcheck // Test cleanup

		if _, err := db.ExecContext(context.Background(), "CREATE TABLE t (x INTEGER)"); err != nil {
			t.Fatalf("ExecContext() error = %v", err)
		}
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			t.Error("database file was not created")
		}
		if db.Path() != dbPath {
			t.Errorf("Path() = %v, want %v", db.Path(), dbPath)
		}
	})

	t.Run("memory database keeps state across calls", func(t *testing.T) {
		db := openTestDB(t)
		ctx := context.Background()

		if _, err := db.ExecContext(ctx, "CREATE TABLE t (x INTEGER)"); err != nil {
			t.Fatalf("CREATE error = %v", err)
		}
		if _, err := db.ExecContext(ctx, "INSERT INTO t VALUES (1)"); err != nil {
			t.Fatalf("INSERT error = %v", err)
		}
		var n int
		if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM t").Scan(&n); err != nil {
			t.Fatalf("SELECT error = %v", err)
		}
		if n != 1 {
			t.Errorf("count = %d, want 1", n)
		}
	})
}

func TestHealthCheck(t *testing.T) {
	db := openTestDB(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.HealthCheck(ctx); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}
}

func TestClose(t *testing.T) {
	db, err := Open(Config{Path: ":memory:"})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if err := db.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}

	db.DB = nil
	if err := db.Close(); err != nil {
		t.Errorf("Close() on nil DB error = %v", err)
	}
}

// ===== Migrations =====

func testMigrations() fstest.MapFS {
	return fstest.MapFS{
		"m/20260301_120000_first.up.sql":    {Data: []byte("CREATE TABLE a (x INTEGER);")},
		"m/20260302_120000_second.up.sql":   {Data: []byte("CREATE TABLE b (y INTEGER);")},
		"m/20260302_120000_second.down.sql": {Data: []byte("DROP TABLE b;")},
		"m/README.md":                       {Data: []byte("not a migration")},
	}
}

func TestMigrate(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	fsys := testMigrations()

	if err := db.Migrate(ctx, fsys, "m"); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	// Second run is a no-op.
	if err := db.Migrate(ctx, fsys, "m"); err != nil {
		t.Fatalf("Migrate() second run error = %v", err)
	}

	n, err := db.AppliedCount(ctx)
	if err != nil {
		t.Fatalf("AppliedCount() error = %v", err)
	}
	if n != 2 {
		t.Errorf("AppliedCount() = %d, want 2", n)
	}

	for _, table := range []string{"a", "b"} {
		if _, err := db.ExecContext(ctx, "INSERT INTO "+table+" VALUES (1)"); err != nil {
			t.Errorf("table %s missing after migrate: %v", table, err)
		}
	}
}

func TestMigrate_FailureStops(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	fsys := fstest.MapFS{
		"20260301_120000_ok.up.sql":  {Data: []byte("CREATE TABLE ok (x INTEGER);")},
		"20260302_120000_bad.up.sql": {Data: []byte("CREATE TABLE")},
	}

	if err := db.Migrate(ctx, fsys, "."); err == nil {
		t.Fatal("Migrate() expected error for bad SQL")
	}
	n, err := db.AppliedCount(ctx)
	if err != nil {
		t.Fatalf("AppliedCount() error = %v", err)
	}
	if n != 1 {
		t.Errorf("AppliedCount() = %d, want 1", n)
	}
}

func TestLoadMigrations_Order(t *testing.T) {
	migrations, err := LoadMigrations(testMigrations(), "m")
	if err != nil {
		t.Fatalf("LoadMigrations() error = %v", err)
	}
	if len(migrations) != 2 {
		t.Fatalf("len = %d, want 2", len(migrations))
	}
	if migrations[0].Name != "first" || migrations[1].Name != "second" {
		t.Errorf("order = %s, %s", migrations[0].Name, migrations[1].Name)
	}
}

func TestParseMigrationFilename(t *testing.T) {
	tests := []struct {
		filename    string
		wantVersion string
		wantName    string
		wantOK      bool
	}{
		{"20260118_120000_initial_schema.up.sql", "20260118_120000", "initial_schema", true},
		{"20260118_120000.up.sql", "20260118_120000", "20260118_120000", true},
		{"20260118_120000_initial.down.sql", "", "", false},
		{"20260118.up.sql", "", "", false},
		{"readme.md", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			version, name, ok := parseMigrationFilename(tt.filename)
			if ok != tt.wantOK || version != tt.wantVersion || name != tt.wantName {
				t.Errorf("parseMigrationFilename(%q) = (%q, %q, %v), want (%q, %q, %v)",
					tt.filename, version, name, ok, tt.wantVersion, tt.wantName, tt.wantOK)
			}
		})
	}
}
