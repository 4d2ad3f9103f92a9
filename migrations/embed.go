// Package migrations holds the versioned SQL schema applied at startup.
package migrations

import "embed"

// FS contains every NNN_name.up.sql / NNN_name.down.sql file
//
//go:embed *.sql
var FS embed.FS
