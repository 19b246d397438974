// Package migrations embeds the goose migrations for the postgres document
// store.
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS
