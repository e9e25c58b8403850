// Package database provides SQLite connectivity for the Victron flow bridge.
//
// The bridge persists the virtual device registry (which VRM instance each
// virtual node claimed) so instances stay stable across restarts.
//
// This package manages:
//   - Database connection with WAL mode for concurrent access
//   - Schema migrations registered from an embedded filesystem
//   - Connection lifecycle and health checks
//
// Usage:
//
//	db, err := database.Open(ctx, database.FromConfig(cfg.Database))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
// Migrations are additive-only. Each file pair is named
// YYYYMMDD_HHMMSS_description.up.sql / .down.sql.
package database
