// Package migrations embeds the ordered SQL schema migrations for each
// storage backend. New schema changes are added as NNN_name.up.sql /
// NNN_name.down.sql pairs, never as conditional DDL in store code.
package migrations

import (
	"embed"
	"io/fs"
)

//go:embed sqlite/*.sql
var sqliteFiles embed.FS

//go:embed postgres/*.sql
var postgresFiles embed.FS

// SQLite returns the migration filesystem for the SQLite backend, rooted at
// the directory containing the NNN_*.sql files.
func SQLite() fs.FS {
	return mustSub(sqliteFiles, "sqlite")
}

// Postgres returns the migration filesystem for the PostgreSQL backend.
func Postgres() fs.FS {
	return mustSub(postgresFiles, "postgres")
}

func mustSub(files embed.FS, dir string) fs.FS {
	sub, err := fs.Sub(files, dir)
	if err != nil {
		// The subdirectory is embedded at compile time; failure here means
		// the binary itself is malformed.
		panic(err)
	}
	return sub
}
