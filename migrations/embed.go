// Package migrations embeds the journal schema into the binary so the
// bridge can migrate its database without SQL files on disk.
package migrations

import "embed"

// FS holds every *.up.sql file in this directory.
//
//go:embed *.sql
var FS embed.FS
