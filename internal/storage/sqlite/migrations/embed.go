package migrations

import "embed"

// FS contains the embedded SQLite migrations for session storage.
//
//go:embed *.sql
var FS embed.FS
