// Package migrations embeds the SQL that prepares the catalog tables for
// text search.
package migrations

import "embed"

// FS holds the .up.sql files applied by database.RunMigrations.
//
//go:embed *.sql
var FS embed.FS
