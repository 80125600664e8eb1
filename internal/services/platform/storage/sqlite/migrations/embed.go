// Package migrations embeds the platform item store schema.
package migrations

import "embed"

// FS holds the SQL migration files in name order.
//
//go:embed *.sql
var FS embed.FS
