package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/golang-migrate/migrate/v4/database"
	migratemysql "github.com/golang-migrate/migrate/v4/database/mysql"
	migratepgx "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/mattn/go-sqlite3"
)

// Supported database/sql driver names
const (
	DriverSQLite   = "sqlite3"
	DriverMySQL    = "mysql"
	DriverPostgres = "pgx"
)

// mysqlDuplicateEntry is ER_DUP_ENTRY
const mysqlDuplicateEntry = 1062

// pgUniqueViolation is SQLSTATE unique_violation
const pgUniqueViolation = "23505"

// dialect captures the per-engine differences of the mapping store
type dialect struct {
	name string

	findByLongURL   string
	findByShortCode string
	shortCodeExists string
	insertMapping   string

	// returningID is set when insertMapping yields the new id as a row
	// rather than through sql.Result.LastInsertId
	returningID bool

	prepareDSN        func(dsn string) (string, error)
	isUniqueViolation func(err error) bool
	migrationDriver   func(db *sql.DB) (database.Driver, error)
}

// Drivers returns the names of every supported driver
func Drivers() []string {
	return []string{DriverSQLite, DriverMySQL, DriverPostgres}
}

func dialectFor(driver string) (*dialect, error) {
	switch driver {
	case DriverSQLite:
		return sqliteDialect(), nil
	case DriverMySQL:
		return mysqlDialect(), nil
	case DriverPostgres:
		return postgresDialect(), nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
}

func questionMarkQueries(d *dialect) *dialect {
	d.findByLongURL = "SELECT id, long_url, short_url, created_at FROM url_mappings WHERE long_url = ? ORDER BY id LIMIT 1"
	d.findByShortCode = "SELECT id, long_url, short_url, created_at FROM url_mappings WHERE short_url = ?"
	d.shortCodeExists = "SELECT COUNT(1) FROM url_mappings WHERE short_url = ?"
	d.insertMapping = "INSERT INTO url_mappings (long_url, short_url, created_at) VALUES (?, ?, ?)"
	return d
}

func sqliteDialect() *dialect {
	return questionMarkQueries(&dialect{
		name: DriverSQLite,
		prepareDSN: func(dsn string) (string, error) {
			// each pooled connection would get its own empty database
			if isSQLiteMemoryDSN(dsn) {
				return "", fmt.Errorf("in-memory sqlite database %q is not supported, use a file path", dsn)
			}
			// busy_timeout is per connection, so it has to ride on the DSN
			if strings.Contains(dsn, "_busy_timeout") {
				return dsn, nil
			}
			sep := "?"
			if strings.Contains(dsn, "?") {
				sep = "&"
			}
			return dsn + sep + "_busy_timeout=5000", nil
		},
		isUniqueViolation: func(err error) bool {
			var sqliteErr sqlite3.Error
			if !errors.As(err, &sqliteErr) {
				return false
			}
			return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
				sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
		},
		migrationDriver: func(db *sql.DB) (database.Driver, error) {
			return migratesqlite.WithInstance(db, &migratesqlite.Config{})
		},
	})
}

func isSQLiteMemoryDSN(dsn string) bool {
	return strings.Contains(dsn, ":memory:") || strings.Contains(dsn, "mode=memory")
}

func mysqlDialect() *dialect {
	return questionMarkQueries(&dialect{
		name: DriverMySQL,
		prepareDSN: func(dsn string) (string, error) {
			cfg, err := mysql.ParseDSN(dsn)
			if err != nil {
				return "", fmt.Errorf("invalid mysql DSN: %w", err)
			}
			cfg.ParseTime = true
			cfg.Loc = time.UTC
			return cfg.FormatDSN(), nil
		},
		isUniqueViolation: func(err error) bool {
			var mysqlErr *mysql.MySQLError
			return errors.As(err, &mysqlErr) && mysqlErr.Number == mysqlDuplicateEntry
		},
		migrationDriver: func(db *sql.DB) (database.Driver, error) {
			return migratemysql.WithInstance(db, &migratemysql.Config{})
		},
	})
}

func postgresDialect() *dialect {
	return &dialect{
		name:            DriverPostgres,
		findByLongURL:   "SELECT id, long_url, short_url, created_at FROM url_mappings WHERE long_url = $1 ORDER BY id LIMIT 1",
		findByShortCode: "SELECT id, long_url, short_url, created_at FROM url_mappings WHERE short_url = $1",
		shortCodeExists: "SELECT COUNT(1) FROM url_mappings WHERE short_url = $1",
		insertMapping:   "INSERT INTO url_mappings (long_url, short_url, created_at) VALUES ($1, $2, $3) RETURNING id",
		returningID:     true,
		prepareDSN: func(dsn string) (string, error) {
			return dsn, nil
		},
		isUniqueViolation: func(err error) bool {
			var pgErr *pgconn.PgError
			return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
		},
		migrationDriver: func(db *sql.DB) (database.Driver, error) {
			return migratepgx.WithInstance(db, &migratepgx.Config{})
		},
	}
}

// insert runs insertMapping inside tx and returns the new row id
func (d *dialect) insert(ctx context.Context, tx *sql.Tx, longURL, code string, createdAt time.Time) (int64, error) {
	if d.returningID {
		var id int64
		err := tx.QueryRowContext(ctx, d.insertMapping, longURL, code, createdAt).Scan(&id)
		return id, err
	}

	result, err := tx.ExecContext(ctx, d.insertMapping, longURL, code, createdAt)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}
