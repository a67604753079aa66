// Package migrations embeds the journal's SQL migration files into the binary.
//
// This allows hsmctl to create and upgrade its journal database without the
// SQL files being present on the filesystem.
package migrations

import "embed"

// FS holds every *.sql migration at its root. Pass it to database.DB.Migrate.
//
//go:embed *.sql
var FS embed.FS
