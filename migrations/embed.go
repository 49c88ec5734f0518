// Package migrations embeds the goose SQL migrations for visitor_logs.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
