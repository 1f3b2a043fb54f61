// Package database opens the SQLite file that backs the action and status
// journal and applies its schema migrations.
//
// The database runs in WAL mode so the API can page through the journal
// while the recorder appends to it. The file is created owner-only (0600)
// because journal rows name who triggered each action.
//
// Usage:
//
//	db, err := database.Open(ctx, database.Config{Path: cfg.Database.Path, WALMode: true})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if _, err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
//
// Migration files are named YYYYMMDD_HHMMSS_description.up.sql and are
// forward-only.
package database
