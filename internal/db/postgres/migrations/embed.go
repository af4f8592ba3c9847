// Package migrations embeds SQL migration templates for the Postgres store.
// Templates receive the configured vector dimension as {{.Dimensions}}.
package migrations

import "embed"

// FS contains all SQL migration files embedded at compile time.
//
//go:embed *.sql
var FS embed.FS
