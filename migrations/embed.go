// Package migrations embeds the SQL migration set applied by internal/migrate.
package migrations

import "embed"

// FS holds every *.sql migration file, read by goose at startup.
//
//go:embed *.sql
var FS embed.FS
