package credentials

import (
	"embed"
)

//go:embed data/sql/migrations
var migrationsFS embed.FS

//go:embed templates/emails
var templatesFS embed.FS

// GetMigrationsFS returns the migration files for this package
func GetMigrationsFS() embed.FS {
	return migrationsFS
}

// GetTemplatesFS returns the bundled email templates
func GetTemplatesFS() embed.FS {
	return templatesFS
}
