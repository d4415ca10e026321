// Package database provides SQLite connectivity for the graycam settings store.
//
// This package manages:
//   - Opening the database file (or ":memory:" for tests and ephemeral runs)
//   - Applying embedded schema migrations in version order
//   - Health checks and lifecycle
//
// All queries use parameterised statements. The database file is created
// with 0600 permissions because it holds the broker URL and credentials.
//
// Usage:
//
//	db, err := database.Open(database.Config{Path: cfg.Settings.Path, WALMode: true})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS, "."); err != nil {
//	    log.Fatal(err)
//	}
package database
