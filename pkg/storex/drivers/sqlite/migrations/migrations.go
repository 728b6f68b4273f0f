// Package migrations embeds the sqlite storage schema.
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS
