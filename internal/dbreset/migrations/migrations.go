// Package migrations embeds the schema the todo backend expects.
package migrations

import "embed"

//go:embed *.sql
var Schema embed.FS
