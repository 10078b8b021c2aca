// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package inmem

import (
	"context"
	"sync"
	"time"

	"github.com/xmidt-org/launchcache/model"
	"github.com/xmidt-org/launchcache/store"
)

var _ store.S = (*InMem)(nil)

type InMem struct {
	launches map[string]model.Launch
	metadata map[string]model.CacheMetadata
	lock     sync.Mutex
	now      func() time.Time
}

func NewInMem() *InMem {
	return &InMem{
		launches: map[string]model.Launch{},
		metadata: map[string]model.CacheMetadata{},
		now:      time.Now,
	}
}

// NewInMemWithClock is NewInMem with a custom time source.
func NewInMemWithClock(now func() time.Time) *InMem {
	i := NewInMem()
	if now != nil {
		i.now = now
	}
	return i
}

func (i *InMem) UpsertAll(ctx context.Context, launches []model.Launch) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := store.ValidateLaunches(launches); err != nil {
		return store.Wrap("upsert", err)
	}
	i.lock.Lock()
	defer i.lock.Unlock()
	i.upsert(launches, i.now())
	return nil
}

// upsert must be called with the lock held.
func (i *InMem) upsert(launches []model.Launch, now time.Time) {
	for _, l := range store.Stamp(launches, now) {
		if existing, ok := i.launches[l.ID]; ok {
			l.CreatedAt = existing.CreatedAt
		}
		i.launches[l.ID] = l
	}
}

func (i *InMem) ListOrdered(ctx context.Context, max int) ([]model.Launch, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if max < 0 {
		return nil, store.Wrap("list", store.ErrNegativeMax)
	}
	i.lock.Lock()
	result := make([]model.Launch, 0, len(i.launches))
	for _, l := range i.launches {
		result = append(result, l)
	}
	i.lock.Unlock()

	model.SortLaunches(result)
	if len(result) > max {
		result = result[:max]
	}
	return result, nil
}

func (i *InMem) Count(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	i.lock.Lock()
	defer i.lock.Unlock()
	return len(i.launches), nil
}

func (i *InMem) PurgeOlderThan(ctx context.Context, age time.Duration) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	i.lock.Lock()
	defer i.lock.Unlock()
	cutoff := i.now().Add(-age)
	var removed int64
	for id, l := range i.launches {
		if l.CreatedAt.Before(cutoff) {
			delete(i.launches, id)
			removed++
		}
	}
	return removed, nil
}

func (i *InMem) PurgeAll(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	i.lock.Lock()
	defer i.lock.Unlock()
	removed := int64(len(i.launches))
	i.launches = map[string]model.Launch{}
	return removed, nil
}

func (i *InMem) IsValid(ctx context.Context, key string) (bool, error) {
	m, err := i.Get(ctx, key)
	if err != nil {
		if store.IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return m.ValidAt(i.now()), nil
}

func (i *InMem) Get(ctx context.Context, key string) (model.CacheMetadata, error) {
	if err := ctx.Err(); err != nil {
		return model.CacheMetadata{}, err
	}
	i.lock.Lock()
	defer i.lock.Unlock()
	m, ok := i.metadata[key]
	if !ok {
		return model.CacheMetadata{}, store.KeyNotFoundError{Key: key}
	}
	return m, nil
}

func (i *InMem) List(ctx context.Context) ([]model.CacheMetadata, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	i.lock.Lock()
	defer i.lock.Unlock()
	result := make([]model.CacheMetadata, 0, len(i.metadata))
	for _, m := range i.metadata {
		result = append(result, m)
	}
	store.SortMetadata(result)
	return result, nil
}

func (i *InMem) Touch(ctx context.Context, key string, ttl time.Duration) (model.CacheMetadata, error) {
	if err := ctx.Err(); err != nil {
		return model.CacheMetadata{}, err
	}
	if err := store.ValidateTouch(key, ttl); err != nil {
		return model.CacheMetadata{}, store.Wrap("touch", err)
	}
	i.lock.Lock()
	defer i.lock.Unlock()
	m := model.NewCacheMetadata(key, i.now(), ttl)
	i.metadata[key] = m
	return m, nil
}

func (i *InMem) Clear(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	i.lock.Lock()
	defer i.lock.Unlock()
	delete(i.metadata, key)
	return nil
}

func (i *InMem) ClearAll(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	i.lock.Lock()
	defer i.lock.Unlock()
	i.metadata = map[string]model.CacheMetadata{}
	return nil
}

// WriteThrough holds the lock across both writes so readers never observe
// fresh metadata next to old launches.
func (i *InMem) WriteThrough(ctx context.Context, key string, launches []model.Launch, ttl time.Duration) (model.CacheMetadata, error) {
	if err := ctx.Err(); err != nil {
		return model.CacheMetadata{}, err
	}
	if err := store.ValidateLaunches(launches); err != nil {
		return model.CacheMetadata{}, store.Wrap("upsert", err)
	}
	if err := store.ValidateTouch(key, ttl); err != nil {
		return model.CacheMetadata{}, store.Wrap("touch", err)
	}
	i.lock.Lock()
	defer i.lock.Unlock()
	now := i.now()
	i.upsert(launches, now)
	m := model.NewCacheMetadata(key, now, ttl)
	i.metadata[key] = m
	return m, nil
}

func (i *InMem) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (i *InMem) Close() error {
	return nil
}
