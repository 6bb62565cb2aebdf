package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/joshdurbin/shortlink/internal/domain"
	"github.com/joshdurbin/shortlink/internal/repository"
)

// Store implements repository.MappingStore on top of database/sql
type Store struct {
	db      *sql.DB
	dialect *dialect
}

// New opens the database for driver, applies migrations and returns a ready store
func New(ctx context.Context, driver, dsn string) (*Store, error) {
	d, err := dialectFor(driver)
	if err != nil {
		return nil, err
	}

	dsn, err = d.prepareDSN(dsn)
	if err != nil {
		return nil, err
	}

	if err := runMigrations(d, dsn); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	db, err := sql.Open(d.name, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if d.name == DriverSQLite {
		if _, err := db.ExecContext(ctx, "PRAGMA journal_mode = WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{db: db, dialect: d}, nil
}

// Driver returns the database/sql driver name backing the store
func (s *Store) Driver() string {
	return s.dialect.name
}

// FindByLongURL returns the oldest mapping for longURL, or nil when none exists
func (s *Store) FindByLongURL(ctx context.Context, longURL string) (*domain.URLMapping, error) {
	mapping, err := s.scanOne(s.db.QueryRowContext(ctx, s.dialect.findByLongURL, longURL))
	if err != nil {
		return nil, fmt.Errorf("failed to find mapping by long URL: %w", err)
	}
	return mapping, nil
}

// FindByShortCode returns the mapping for code, or nil when none exists
func (s *Store) FindByShortCode(ctx context.Context, code string) (*domain.URLMapping, error) {
	mapping, err := s.scanOne(s.db.QueryRowContext(ctx, s.dialect.findByShortCode, code))
	if err != nil {
		return nil, fmt.Errorf("failed to find mapping by short code: %w", err)
	}
	return mapping, nil
}

// ShortCodeExists checks if a short code is taken
func (s *Store) ShortCodeExists(ctx context.Context, code string) (bool, error) {
	var count int64
	if err := s.db.QueryRowContext(ctx, s.dialect.shortCodeExists, code).Scan(&count); err != nil {
		return false, fmt.Errorf("failed to check short code existence: %w", err)
	}
	return count > 0, nil
}

// Insert creates a mapping inside a transaction. A unique violation on the
// short code is reported as a conflict; any other failure rolls back.
func (s *Store) Insert(ctx context.Context, longURL, code string) (repository.InsertResult, error) {
	createdAt := time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return repository.InsertResult{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	id, err := s.dialect.insert(ctx, tx, longURL, code, createdAt)
	if err != nil {
		if s.dialect.isUniqueViolation(err) {
			return repository.InsertResult{Conflict: true}, nil
		}
		return repository.InsertResult{}, fmt.Errorf("failed to insert mapping: %w", err)
	}

	if err := tx.Commit(); err != nil {
		if s.dialect.isUniqueViolation(err) {
			return repository.InsertResult{Conflict: true}, nil
		}
		return repository.InsertResult{}, fmt.Errorf("failed to commit mapping: %w", err)
	}

	return repository.InsertResult{
		Mapping: &domain.URLMapping{
			ID:        id,
			LongURL:   longURL,
			ShortURL:  code,
			CreatedAt: createdAt,
		},
	}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) scanOne(row *sql.Row) (*domain.URLMapping, error) {
	var m domain.URLMapping
	if err := row.Scan(&m.ID, &m.LongURL, &m.ShortURL, &m.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	m.CreatedAt = m.CreatedAt.UTC()
	return &m, nil
}

// Ensure Store implements the interface
var _ repository.MappingStore = (*Store)(nil)
