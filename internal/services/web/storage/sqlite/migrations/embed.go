// Package migrations embeds the web session store schema.
package migrations

import "embed"

// FS holds the SQL migration files in name order.
//
//go:embed *.sql
var FS embed.FS
