// Package database opens the SQLite store and applies schema migrations.
//
// Migrations are read from any fs.FS, normally the embedded migrations
// package:
//
//	db, err := database.Open(ctx, cfg.Database)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if _, err := db.Migrate(ctx, migrations.FS, "."); err != nil {
//	    return err
//	}
//
// All queries use parameterised statements. Database files are created
// with 0600 permissions.
package database
