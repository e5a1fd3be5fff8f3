package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/cenkalti/backoff/v4"
	"github.com/mattn/go-sqlite3"
	"github.com/tildaslashalef/reposync/internal/loggy"
)

const defaultBusyRetries = 5

// SQLStore implements Store on the cache_entries table
type SQLStore struct {
	db      *sql.DB
	logger  *loggy.Logger
	builder sq.StatementBuilderType
	retries uint64
	now     func() time.Time
}

// NewSQLStore creates a new SQL backed store
func NewSQLStore(db *sql.DB, logger *loggy.Logger) *SQLStore {
	return &SQLStore{
		db:      db,
		logger:  logger,
		builder: sq.StatementBuilder.PlaceholderFormat(sq.Question),
		retries: defaultBusyRetries,
		now:     time.Now,
	}
}

// Get retrieves the value stored under key
func (s *SQLStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	query, args, err := s.builder.Select("value").
		From("cache_entries").
		Where(sq.Eq{"key": key}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, false, fmt.Errorf("building get cache entry query: %w", err)
	}

	var value []byte
	err = s.db.QueryRowContext(ctx, query, args...).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("executing get cache entry query: %w", err)
	}

	return value, true, nil
}

// Set inserts or replaces the value stored under key
func (s *SQLStore) Set(ctx context.Context, key string, value []byte) error {
	query, args, err := s.builder.Insert("cache_entries").
		Columns("key", "value", "updated_at").
		Values(key, value, s.now().UTC()).
		Suffix("ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at").
		ToSql()
	if err != nil {
		return fmt.Errorf("building set cache entry query: %w", err)
	}

	return s.execWithRetry(ctx, "set", key, query, args)
}

// Delete removes key. Deleting a missing key is not an error.
func (s *SQLStore) Delete(ctx context.Context, key string) error {
	query, args, err := s.builder.Delete("cache_entries").
		Where(sq.Eq{"key": key}).
		ToSql()
	if err != nil {
		return fmt.Errorf("building delete cache entry query: %w", err)
	}

	return s.execWithRetry(ctx, "delete", key, query, args)
}

// execWithRetry retries writes that hit SQLITE_BUSY or SQLITE_LOCKED
func (s *SQLStore) execWithRetry(ctx context.Context, op, key, query string, args []any) error {
	attempt := 0
	operation := func() error {
		attempt++
		_, err := s.db.ExecContext(ctx, query, args...)
		if err == nil {
			return nil
		}
		if isBusy(err) {
			s.logger.Debug("Cache busy, retrying", "op", op, "key", key, "attempt", attempt)
			return err
		}
		return backoff.Permanent(err)
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 20 * time.Millisecond
	b.MaxInterval = time.Second

	if err := backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(b, s.retries), ctx)); err != nil {
		return fmt.Errorf("executing %s cache entry query: %w", op, err)
	}
	return nil
}

func isBusy(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked
	}
	return false
}
