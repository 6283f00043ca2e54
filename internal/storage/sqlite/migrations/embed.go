package migrations

import "embed"

// FS contains embedded SQLite migrations for habit storage.
//
//go:embed *.sql
var FS embed.FS
