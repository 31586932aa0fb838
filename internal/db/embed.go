package db

import "embed"

// migrationFS embeds the SQL migrations into the binary, so a mission
// run needs no schema files on disk.
//
//go:embed migrations/*.sql
var migrationFS embed.FS
