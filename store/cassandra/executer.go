// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package cassandra

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/gocql/gocql"
	"github.com/hailocab/go-hostpool"
	"github.com/xmidt-org/launchcache/model"
	"github.com/xmidt-org/launchcache/store"
	"go.uber.org/zap"
)

type dbStore interface {
	store.S
}

var (
	noDataResponse = errors.New("no data from query")
	serverClosed   = errors.New("server is closed")
)

type cassandraExecutor struct {
	session *gocql.Session
	logger  *zap.Logger
	now     func() time.Time
}

func connect(clusterConfig *gocql.ClusterConfig, logger *zap.Logger) (dbStore, error) {
	clusterConfig.PoolConfig.HostSelectionPolicy = gocql.HostPoolHostPolicy(hostpool.New(nil))
	session, err := clusterConfig.CreateSession()
	if err != nil {
		return nil, err
	}

	return &cassandraExecutor{session: session, logger: logger, now: time.Now}, nil
}

const (
	insertLaunch   = "INSERT INTO launches (id, net, data, created_at, updated_at) VALUES (?, ?, ?, ?, ?)"
	insertMetadata = "INSERT INTO cache_metadata (cache_key, last_updated, expires_at) VALUES (?, ?, ?)"
)

// createdAt returns the stored created_at of the given ids so a replaced
// record keeps its first write time.
func (s *cassandraExecutor) createdAt(ctx context.Context, ids []string) (map[string]time.Time, error) {
	result := make(map[string]time.Time, len(ids))
	var (
		id      string
		created time.Time
	)
	iter := s.session.Query("SELECT id, created_at FROM launches WHERE id IN ?", ids).WithContext(ctx).Iter()
	for iter.Scan(&id, &created) {
		result[id] = created
	}
	return result, iter.Close()
}

func (s *cassandraExecutor) launchBatch(ctx context.Context, launches []model.Launch, now time.Time) (*gocql.Batch, error) {
	ids := make([]string, 0, len(launches))
	for _, l := range launches {
		ids = append(ids, l.ID)
	}
	existing, err := s.createdAt(ctx, ids)
	if err != nil {
		return nil, err
	}

	batch := s.session.NewBatch(gocql.LoggedBatch).WithContext(ctx)
	for _, l := range store.Stamp(withCreatedAt(launches, existing), now) {
		data, err := encodeLaunch(l)
		if err != nil {
			return nil, err
		}
		batch.Query(insertLaunch, l.ID, l.Net, data, l.CreatedAt, l.UpdatedAt)
	}
	return batch, nil
}

func (s *cassandraExecutor) UpsertAll(ctx context.Context, launches []model.Launch) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := store.ValidateLaunches(launches); err != nil {
		return store.Wrap("upsert", err)
	}
	if len(launches) == 0 {
		return nil
	}
	batch, err := s.launchBatch(ctx, launches, s.now().UTC().Truncate(time.Millisecond))
	if err != nil {
		return store.Wrap("upsert", err)
	}
	return store.Wrap("upsert", s.session.ExecuteBatch(batch))
}

// WriteThrough puts the launch inserts and the metadata insert in one logged
// batch.
func (s *cassandraExecutor) WriteThrough(ctx context.Context, key string, launches []model.Launch, ttl time.Duration) (model.CacheMetadata, error) {
	if err := ctx.Err(); err != nil {
		return model.CacheMetadata{}, err
	}
	if err := store.ValidateLaunches(launches); err != nil {
		return model.CacheMetadata{}, store.Wrap("upsert", err)
	}
	if err := store.ValidateTouch(key, ttl); err != nil {
		return model.CacheMetadata{}, store.Wrap("touch", err)
	}
	now := s.now().UTC().Truncate(time.Millisecond)
	batch, err := s.launchBatch(ctx, launches, now)
	if err != nil {
		return model.CacheMetadata{}, store.Wrap("write through", err)
	}
	m := model.NewCacheMetadata(key, now, ttl)
	batch.Query(insertMetadata, m.Key, m.LastUpdated, m.ExpiresAt)
	if err := s.session.ExecuteBatch(batch); err != nil {
		return model.CacheMetadata{}, store.Wrap("write through", err)
	}
	return m, nil
}

func (s *cassandraExecutor) ListOrdered(ctx context.Context, max int) ([]model.Launch, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if max < 0 {
		return nil, store.Wrap("list", store.ErrNegativeMax)
	}
	var (
		data             []byte
		created, updated time.Time
		result           = []model.Launch{}
	)
	iter := s.session.Query("SELECT data, created_at, updated_at FROM launches").WithContext(ctx).Iter()
	for iter.Scan(&data, &created, &updated) {
		l, err := decodeLaunch(data)
		if err != nil {
			s.logger.Error("failed to unmarshal launch", zap.Error(err))
			continue
		}
		l.CreatedAt = created.UTC()
		l.UpdatedAt = updated.UTC()
		result = append(result, l)
	}
	if err := iter.Close(); err != nil {
		return nil, store.Wrap("list", err)
	}
	model.SortLaunches(result)
	if len(result) > max {
		result = result[:max]
	}
	return result, nil
}

func (s *cassandraExecutor) Count(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	var count int64
	err := s.session.Query("SELECT COUNT(*) FROM launches").WithContext(ctx).Scan(&count)
	return int(count), store.Wrap("count", err)
}

func (s *cassandraExecutor) PurgeOlderThan(ctx context.Context, age time.Duration) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	created := map[string]time.Time{}
	var (
		id string
		at time.Time
	)
	iter := s.session.Query("SELECT id, created_at FROM launches").WithContext(ctx).Iter()
	for iter.Scan(&id, &at) {
		created[id] = at
	}
	if err := iter.Close(); err != nil {
		return 0, store.Wrap("purge", err)
	}

	ids := olderThan(created, s.now().Add(-age))
	if len(ids) == 0 {
		return 0, nil
	}
	batch := s.session.NewBatch(gocql.LoggedBatch).WithContext(ctx)
	for _, id := range ids {
		batch.Query("DELETE FROM launches WHERE id = ?", id)
	}
	if err := s.session.ExecuteBatch(batch); err != nil {
		return 0, store.Wrap("purge", err)
	}
	return int64(len(ids)), nil
}

func (s *cassandraExecutor) PurgeAll(ctx context.Context) (int64, error) {
	count, err := s.Count(ctx)
	if err != nil {
		return 0, err
	}
	err = s.session.Query("TRUNCATE launches").WithContext(ctx).Exec()
	if err != nil {
		return 0, store.Wrap("purge", err)
	}
	return int64(count), nil
}

func (s *cassandraExecutor) IsValid(ctx context.Context, key string) (bool, error) {
	m, err := s.Get(ctx, key)
	if err != nil {
		return false, err
	}
	return m.ValidAt(s.now()), nil
}

func (s *cassandraExecutor) Get(ctx context.Context, key string) (model.CacheMetadata, error) {
	if err := ctx.Err(); err != nil {
		return model.CacheMetadata{}, err
	}
	m := model.CacheMetadata{Key: key}
	err := s.session.Query("SELECT last_updated, expires_at FROM cache_metadata WHERE cache_key = ?", key).
		WithContext(ctx).Scan(&m.LastUpdated, &m.ExpiresAt)
	if errors.Is(err, gocql.ErrNotFound) {
		return model.CacheMetadata{}, noDataResponse
	}
	if err != nil {
		return model.CacheMetadata{}, store.Wrap("get metadata", err)
	}
	m.LastUpdated = m.LastUpdated.UTC()
	m.ExpiresAt = m.ExpiresAt.UTC()
	return m, nil
}

func (s *cassandraExecutor) List(ctx context.Context) ([]model.CacheMetadata, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var (
		result = []model.CacheMetadata{}
		m      model.CacheMetadata
	)
	iter := s.session.Query("SELECT cache_key, last_updated, expires_at FROM cache_metadata").WithContext(ctx).Iter()
	for iter.Scan(&m.Key, &m.LastUpdated, &m.ExpiresAt) {
		m.LastUpdated = m.LastUpdated.UTC()
		m.ExpiresAt = m.ExpiresAt.UTC()
		result = append(result, m)
	}
	if err := iter.Close(); err != nil {
		return nil, store.Wrap("list metadata", err)
	}
	store.SortMetadata(result)
	return result, nil
}

func (s *cassandraExecutor) Touch(ctx context.Context, key string, ttl time.Duration) (model.CacheMetadata, error) {
	if err := ctx.Err(); err != nil {
		return model.CacheMetadata{}, err
	}
	if err := store.ValidateTouch(key, ttl); err != nil {
		return model.CacheMetadata{}, store.Wrap("touch", err)
	}
	m := model.NewCacheMetadata(key, s.now().UTC().Truncate(time.Millisecond), ttl)
	err := s.session.Query(insertMetadata, m.Key, m.LastUpdated, m.ExpiresAt).WithContext(ctx).Exec()
	if err != nil {
		return model.CacheMetadata{}, store.Wrap("touch", err)
	}
	return m, nil
}

func (s *cassandraExecutor) Clear(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := s.session.Query("DELETE FROM cache_metadata WHERE cache_key = ?", key).WithContext(ctx).Exec()
	return store.Wrap("clear", err)
}

func (s *cassandraExecutor) ClearAll(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return store.Wrap("clear", s.session.Query("TRUNCATE cache_metadata").WithContext(ctx).Exec())
}

func (s *cassandraExecutor) Close() error {
	s.session.Close()
	return nil
}

func (s *cassandraExecutor) Ping(ctx context.Context) error {
	if s.session.Closed() {
		return serverClosed
	}
	var now time.Time
	return s.session.Query("SELECT now() FROM system.local").WithContext(ctx).Scan(&now)
}

// withCreatedAt copies the stored created_at onto launches being replaced.
func withCreatedAt(launches []model.Launch, existing map[string]time.Time) []model.Launch {
	result := make([]model.Launch, len(launches))
	for i, l := range launches {
		if created, ok := existing[l.ID]; ok && !created.IsZero() {
			l.CreatedAt = created.UTC()
		}
		result[i] = l
	}
	return result
}

// olderThan returns the ids created before cutoff.
func olderThan(created map[string]time.Time, cutoff time.Time) []string {
	var ids []string
	for id, at := range created {
		if at.Before(cutoff) {
			ids = append(ids, id)
		}
	}
	return ids
}

func encodeLaunch(l model.Launch) ([]byte, error) {
	l.CreatedAt = time.Time{}
	l.UpdatedAt = time.Time{}
	return json.Marshal(l)
}

func decodeLaunch(data []byte) (model.Launch, error) {
	var l model.Launch
	err := json.Unmarshal(data, &l)
	return l, err
}
