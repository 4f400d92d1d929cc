// Package migrations embeds the SQL schema migrations into the binary and
// registers them with the database package.
//
// Import for side effects:
//
//	import _ "github.com/nerrad567/dkn-cloud-bridge/migrations"
package migrations

import (
	"embed"

	"github.com/nerrad567/dkn-cloud-bridge/internal/infrastructure/database"
)

//go:embed *.sql
var files embed.FS

func init() {
	database.MigrationsFS = files
	database.MigrationsDir = "."
}
