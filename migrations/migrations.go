// Package migrations embeds SQL migration files for goose.
//
// Files are named YYYYMMDDHHMMSS_description.sql and applied in order at start.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
