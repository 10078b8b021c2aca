// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

// Package sqlite is the default store backend: a single embedded database file
// holding the launch records and the cache metadata.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/xmidt-org/launchcache/model"
	"github.com/xmidt-org/launchcache/store"
	"github.com/xmidt-org/launchcache/store/sqlite/migrations"

	// registers the "sqlite" driver
	_ "modernc.org/sqlite"
)

const SQLite = "sqlite"

const defaultPath = "launchcache.db"

type Config struct {
	// Path of the database file. It is created when missing.
	Path string

	// BusyTimeout is how long a writer waits on a locked database.
	BusyTimeout time.Duration
}

var _ store.S = (*Store)(nil)

// Store persists launches and cache metadata in SQLite.
type Store struct {
	sqlDB *sql.DB
	now   func() time.Time
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens the database at config.Path and applies the embedded migrations.
func Open(ctx context.Context, config Config) (*Store, error) {
	path := strings.TrimSpace(config.Path)
	if path == "" {
		path = defaultPath
	}
	busy := config.BusyTimeout
	if busy <= 0 {
		busy = 5 * time.Second
	}
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(%d)&_pragma=synchronous(NORMAL)",
		filepath.Clean(path), busy.Milliseconds())
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := applyMigrations(ctx, sqlDB, migrations.FS); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB, now: time.Now}, nil
}

func (s *Store) ready(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return store.ErrNotConfigured
	}
	return nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	return s.sqlDB.PingContext(ctx)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

func (s *Store) upsert(ctx context.Context, tx *sql.Tx, launches []model.Launch, now time.Time) error {
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO launches (id, net, data, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
		    net = excluded.net,
		    data = excluded.data,
		    updated_at = excluded.updated_at`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, l := range store.Stamp(launches, now) {
		data, err := encodeLaunch(l)
		if err != nil {
			return err
		}
		_, err = stmt.ExecContext(ctx, l.ID, toMillis(l.Net), data, toMillis(l.CreatedAt), toMillis(l.UpdatedAt))
		if err != nil {
			return fmt.Errorf("upsert launch %s: %w", l.ID, err)
		}
	}
	return nil
}

func (s *Store) touch(ctx context.Context, db execer, key string, ttl time.Duration, now time.Time) (model.CacheMetadata, error) {
	m := model.NewCacheMetadata(key, now.UTC().Truncate(time.Millisecond), ttl)
	_, err := db.ExecContext(ctx, `INSERT INTO cache_metadata (cache_key, last_updated, expires_at)
		VALUES (?, ?, ?)
		ON CONFLICT(cache_key) DO UPDATE SET
		    last_updated = excluded.last_updated,
		    expires_at = excluded.expires_at`,
		m.Key, toMillis(m.LastUpdated), toMillis(m.ExpiresAt),
	)
	if err != nil {
		return model.CacheMetadata{}, err
	}
	return m, nil
}

func (s *Store) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func (s *Store) UpsertAll(ctx context.Context, launches []model.Launch) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if err := store.ValidateLaunches(launches); err != nil {
		return store.Wrap("upsert", err)
	}
	if len(launches) == 0 {
		return nil
	}
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		return s.upsert(ctx, tx, launches, s.now())
	})
	return store.Wrap("upsert", err)
}

func (s *Store) WriteThrough(ctx context.Context, key string, launches []model.Launch, ttl time.Duration) (model.CacheMetadata, error) {
	if err := s.ready(ctx); err != nil {
		return model.CacheMetadata{}, err
	}
	if err := store.ValidateLaunches(launches); err != nil {
		return model.CacheMetadata{}, store.Wrap("upsert", err)
	}
	if err := store.ValidateTouch(key, ttl); err != nil {
		return model.CacheMetadata{}, store.Wrap("touch", err)
	}

	var m model.CacheMetadata
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		now := s.now().UTC().Truncate(time.Millisecond)
		if err := s.upsert(ctx, tx, launches, now); err != nil {
			return err
		}
		var err error
		m, err = s.touch(ctx, tx, key, ttl, now)
		return err
	})
	if err != nil {
		return model.CacheMetadata{}, store.Wrap("write through", err)
	}
	return m, nil
}

func (s *Store) ListOrdered(ctx context.Context, max int) ([]model.Launch, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	if max < 0 {
		return nil, store.Wrap("list", store.ErrNegativeMax)
	}
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT data, created_at, updated_at FROM launches ORDER BY net ASC, id ASC LIMIT ?`, max)
	if err != nil {
		return nil, store.Wrap("list", err)
	}
	defer rows.Close()

	result := make([]model.Launch, 0, max)
	for rows.Next() {
		var (
			data      string
			createdAt int64
			updatedAt int64
		)
		if err := rows.Scan(&data, &createdAt, &updatedAt); err != nil {
			return nil, store.Wrap("list", err)
		}
		l, err := decodeLaunch(data)
		if err != nil {
			return nil, store.Wrap("list", err)
		}
		l.CreatedAt = fromMillis(createdAt)
		l.UpdatedAt = fromMillis(updatedAt)
		result = append(result, l)
	}
	if err := rows.Err(); err != nil {
		return nil, store.Wrap("list", err)
	}
	return result, nil
}

func (s *Store) Count(ctx context.Context) (int, error) {
	if err := s.ready(ctx); err != nil {
		return 0, err
	}
	var count int
	if err := s.sqlDB.QueryRowContext(ctx, `SELECT COUNT(*) FROM launches`).Scan(&count); err != nil {
		return 0, store.Wrap("count", err)
	}
	return count, nil
}

func (s *Store) PurgeOlderThan(ctx context.Context, age time.Duration) (int64, error) {
	if err := s.ready(ctx); err != nil {
		return 0, err
	}
	cutoff := s.now().Add(-age)
	res, err := s.sqlDB.ExecContext(ctx, `DELETE FROM launches WHERE created_at < ?`, toMillis(cutoff))
	if err != nil {
		return 0, store.Wrap("purge", err)
	}
	removed, err := res.RowsAffected()
	return removed, store.Wrap("purge", err)
}

func (s *Store) PurgeAll(ctx context.Context) (int64, error) {
	if err := s.ready(ctx); err != nil {
		return 0, err
	}
	res, err := s.sqlDB.ExecContext(ctx, `DELETE FROM launches`)
	if err != nil {
		return 0, store.Wrap("purge", err)
	}
	removed, err := res.RowsAffected()
	return removed, store.Wrap("purge", err)
}

func (s *Store) IsValid(ctx context.Context, key string) (bool, error) {
	m, err := s.Get(ctx, key)
	if store.IsNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return m.ValidAt(s.now()), nil
}

func (s *Store) Get(ctx context.Context, key string) (model.CacheMetadata, error) {
	if err := s.ready(ctx); err != nil {
		return model.CacheMetadata{}, err
	}
	var lastUpdated, expiresAt int64
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT last_updated, expires_at FROM cache_metadata WHERE cache_key = ?`, key,
	).Scan(&lastUpdated, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.CacheMetadata{}, store.KeyNotFoundError{Key: key}
	}
	if err != nil {
		return model.CacheMetadata{}, store.Wrap("get metadata", err)
	}
	return model.CacheMetadata{
		Key:         key,
		LastUpdated: fromMillis(lastUpdated),
		ExpiresAt:   fromMillis(expiresAt),
	}, nil
}

func (s *Store) List(ctx context.Context) ([]model.CacheMetadata, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT cache_key, last_updated, expires_at FROM cache_metadata ORDER BY cache_key`)
	if err != nil {
		return nil, store.Wrap("list metadata", err)
	}
	defer rows.Close()

	var result []model.CacheMetadata
	for rows.Next() {
		var (
			m                      model.CacheMetadata
			lastUpdated, expiresAt int64
		)
		if err := rows.Scan(&m.Key, &lastUpdated, &expiresAt); err != nil {
			return nil, store.Wrap("list metadata", err)
		}
		m.LastUpdated = fromMillis(lastUpdated)
		m.ExpiresAt = fromMillis(expiresAt)
		result = append(result, m)
	}
	return result, store.Wrap("list metadata", rows.Err())
}

func (s *Store) Touch(ctx context.Context, key string, ttl time.Duration) (model.CacheMetadata, error) {
	if err := s.ready(ctx); err != nil {
		return model.CacheMetadata{}, err
	}
	if err := store.ValidateTouch(key, ttl); err != nil {
		return model.CacheMetadata{}, store.Wrap("touch", err)
	}
	m, err := s.touch(ctx, s.sqlDB, key, ttl, s.now())
	return m, store.Wrap("touch", err)
}

func (s *Store) Clear(ctx context.Context, key string) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	_, err := s.sqlDB.ExecContext(ctx, `DELETE FROM cache_metadata WHERE cache_key = ?`, key)
	return store.Wrap("clear", err)
}

func (s *Store) ClearAll(ctx context.Context) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	_, err := s.sqlDB.ExecContext(ctx, `DELETE FROM cache_metadata`)
	return store.Wrap("clear", err)
}

// encodeLaunch stores the payload without the write timestamps, which live in
// their own columns.
func encodeLaunch(l model.Launch) (string, error) {
	l.CreatedAt = time.Time{}
	l.UpdatedAt = time.Time{}
	data, err := json.Marshal(l)
	if err != nil {
		return "", fmt.Errorf("encode launch %s: %w", l.ID, err)
	}
	return string(data), nil
}

func decodeLaunch(data string) (model.Launch, error) {
	var l model.Launch
	if err := json.Unmarshal([]byte(data), &l); err != nil {
		return model.Launch{}, fmt.Errorf("decode launch: %w", err)
	}
	return l, nil
}
