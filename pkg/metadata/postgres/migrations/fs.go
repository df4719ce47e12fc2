// Package migrations embeds the SQL schema migrations for the metadata store.
package migrations

import "embed"

// FS holds the migration files, applied in lexical order by golang-migrate.
//
//go:embed *.sql
var FS embed.FS
