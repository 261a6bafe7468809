package db

import (
	"context"
	"database/sql"
	"embed"
	"strconv"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/juju/errors"
	_ "modernc.org/sqlite"
)

//go:embed schema_*.sql
var schemaFS embed.FS

// Dialect selects the SQL flavour spoken to the database.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

// ParseDSN maps a connection string to a dialect and driver source.
// postgres:// and postgresql:// URLs (and libpq key/value strings containing
// host=) select PostgreSQL; anything else is a SQLite path, optionally
// prefixed with sqlite://.
func ParseDSN(dsn string) (Dialect, string) {
	trimmed := strings.TrimSpace(dsn)
	lower := strings.ToLower(trimmed)
	switch {
	case strings.HasPrefix(lower, "postgres://"), strings.HasPrefix(lower, "postgresql://"):
		return DialectPostgres, trimmed
	case strings.Contains(lower, "host=") && strings.Contains(lower, "dbname="):
		return DialectPostgres, trimmed
	case strings.HasPrefix(lower, "sqlite://"):
		return DialectSQLite, trimmed[len("sqlite://"):]
	}
	return DialectSQLite, trimmed
}

func (d Dialect) driverName() string {
	if d == DialectPostgres {
		return "pgx"
	}
	return "sqlite"
}

// Open connects to dsn and applies the embedded schema for its dialect.
func Open(dsn string) (*sql.DB, Dialect, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, "", errors.NotValidf("empty database url")
	}
	dialect, source := ParseDSN(dsn)

	db, err := sql.Open(dialect.driverName(), source)
	if err != nil {
		return nil, "", errors.Annotatef(err, "open %s database", dialect)
	}
	if dialect == DialectSQLite {
		// A single connection keeps :memory: databases alive and serialises writers.
		db.SetMaxOpenConns(1)
	}

	if err := applySchema(context.Background(), db, dialect); err != nil {
		_ = db.Close()
		return nil, "", err
	}

	return db, dialect, nil
}

func applySchema(ctx context.Context, db *sql.DB, dialect Dialect) error {
	schemaSQL, err := schemaFS.ReadFile("schema_" + string(dialect) + ".sql")
	if err != nil {
		return errors.Annotate(err, "read schema")
	}

	if _, err := db.ExecContext(ctx, string(schemaSQL)); err != nil {
		return errors.Annotate(err, "apply schema")
	}

	return nil
}

// rebind rewrites ? placeholders to the dialect's positional form.
func (d Dialect) rebind(query string) string {
	if d != DialectPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// paginate appends LIMIT/OFFSET for top and skip. SQLite only accepts
// OFFSET after a LIMIT, where -1 means unbounded.
func (d Dialect) paginate(query string, args []any, top, skip *int) (string, []any) {
	switch {
	case top != nil:
		query += " LIMIT ?"
		args = append(args, *top)
	case skip != nil && d == DialectSQLite:
		query += " LIMIT ?"
		args = append(args, -1)
	}
	if skip != nil {
		query += " OFFSET ?"
		args = append(args, *skip)
	}
	return query, args
}
