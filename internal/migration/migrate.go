package migration

import (
	"database/sql"
	"embed"
	"fmt"
	"path"

	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog"
)

type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite3"
)

// Embed SQL files for every supported dialect.
//
//go:embed migrations/postgres/*.sql migrations/sqlite/*.sql
var embeddedMigrations embed.FS

func (d Dialect) dir() (string, error) {
	switch d {
	case DialectPostgres:
		return path.Join("migrations", "postgres"), nil
	case DialectSQLite:
		return path.Join("migrations", "sqlite"), nil
	}
	return "", fmt.Errorf("unsupported migration dialect %q", d)
}

// Run applies every pending migration for the dialect to db.
func Run(db *sql.DB, dialect Dialect, logger zerolog.Logger) error {
	dir, err := dialect.dir()
	if err != nil {
		return err
	}

	goose.SetBaseFS(embeddedMigrations)
	goose.SetLogger(NewGooseAdapter(logger))
	goose.SetTableName("ssd_db_version")
	if err := goose.SetDialect(string(dialect)); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}

	if err := goose.Up(db, dir); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	logger.Info().Str("dialect", string(dialect)).Msg("migrations completed successfully")
	return nil
}
