// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xmidt-org/launchcache/model"
	"github.com/xmidt-org/launchcache/store"
)

const GenericCacheKey = "upcoming_launches"

// GenericLaunches returns three launches keyed "a", "b" and "c" whose Net
// values are deliberately out of ID order. "b" and "c" share a Net.
func GenericLaunches() []model.Launch {
	base := time.Date(2030, time.January, 6, 12, 0, 0, 0, time.UTC)
	return []model.Launch{
		{
			ID:       "c",
			Name:     "Falcon 9 Block 5 | Starlink Group 9-1",
			Net:      base.Add(48 * time.Hour),
			Status:   model.Status{ID: 1, Name: "Go for Launch", Abbrev: "Go"},
			Provider: model.Provider{ID: 121, Name: "SpaceX", Type: "Commercial"},
			Vehicle: model.Vehicle{ID: 8000, Configuration: model.VehicleConfiguration{
				ID: 164, Name: "Falcon 9", FullName: "Falcon 9 Block 5", Variant: "Block 5",
			}},
			Mission: &model.Mission{ID: 7000, Name: "Starlink Group 9-1", Type: "Communications"},
		},
		{
			ID:       "a",
			Name:     "Electron | Rocket Like a Hurricane",
			Net:      base,
			Status:   model.Status{ID: 2, Name: "To Be Determined", Abbrev: "TBD"},
			Provider: model.Provider{ID: 147, Name: "Rocket Lab", Type: "Commercial"},
			Image: &model.Image{
				ID: 9, Name: "electron", URL: "https://example.com/electron.jpg", Credit: "Rocket Lab",
			},
		},
		{
			ID:       "b",
			Name:     "Ariane 6 | CSO-3",
			Net:      base.Add(48 * time.Hour),
			Status:   model.Status{ID: 8, Name: "To Be Confirmed", Abbrev: "TBC"},
			Provider: model.Provider{ID: 115, Name: "Arianespace", Type: "Commercial"},
		},
	}
}

func ids(launches []model.Launch) []string {
	result := make([]string, 0, len(launches))
	for _, l := range launches {
		result = append(result, l.ID)
	}
	return result
}

// StoreTest validates that a given store implementation works. The store must
// be empty.
func StoreTest(s store.S, t *testing.T) {
	ctx := context.Background()

	t.Run("Empty", func(t *testing.T) {
		assert := assert.New(t)
		require := require.New(t)

		launches, err := s.ListOrdered(ctx, 100)
		require.NoError(err)
		assert.Empty(launches)

		count, err := s.Count(ctx)
		require.NoError(err)
		assert.Zero(count)

		valid, err := s.IsValid(ctx, GenericCacheKey)
		require.NoError(err)
		assert.False(valid)

		_, err = s.Get(ctx, GenericCacheKey)
		assert.True(store.IsNotFound(err))

		assert.NoError(s.Ping(ctx))
	})

	t.Run("UpsertAndList", func(t *testing.T) {
		assert := assert.New(t)
		require := require.New(t)

		require.NoError(s.UpsertAll(ctx, GenericLaunches()))

		launches, err := s.ListOrdered(ctx, 100)
		require.NoError(err)
		assert.Equal([]string{"a", "b", "c"}, ids(launches))
		assert.Equal("Electron | Rocket Like a Hurricane", launches[0].Name)
		require.NotNil(launches[0].Image)
		assert.Equal("https://example.com/electron.jpg", launches[0].Image.URL)
		assert.Nil(launches[0].Mission)
		require.NotNil(launches[2].Mission)
		assert.Equal("Falcon 9 Block 5", launches[2].Vehicle.Configuration.FullName)
		for _, l := range launches {
			assert.False(l.CreatedAt.IsZero())
			assert.False(l.UpdatedAt.IsZero())
		}

		launches, err = s.ListOrdered(ctx, 2)
		require.NoError(err)
		assert.Equal([]string{"a", "b"}, ids(launches))

		launches, err = s.ListOrdered(ctx, 0)
		require.NoError(err)
		assert.Empty(launches)

		_, err = s.ListOrdered(ctx, -1)
		assert.ErrorIs(err, store.ErrNegativeMax)

		count, err := s.Count(ctx)
		require.NoError(err)
		assert.Equal(3, count)
	})

	t.Run("UpsertReplaces", func(t *testing.T) {
		assert := assert.New(t)
		require := require.New(t)

		before, err := s.ListOrdered(ctx, 100)
		require.NoError(err)
		require.Len(before, 3)

		moved := GenericLaunches()[1]
		moved.Name = "Electron | Scrubbed"
		moved.Net = moved.Net.Add(96 * time.Hour)
		moved.Image = nil
		require.NoError(s.UpsertAll(ctx, []model.Launch{moved}))

		after, err := s.ListOrdered(ctx, 100)
		require.NoError(err)
		assert.Equal([]string{"b", "c", "a"}, ids(after))
		assert.Equal("Electron | Scrubbed", after[2].Name)
		assert.Nil(after[2].Image)
		assert.True(before[0].CreatedAt.Equal(after[2].CreatedAt))

		count, err := s.Count(ctx)
		require.NoError(err)
		assert.Equal(3, count)
	})

	t.Run("UpsertRejectsMissingID", func(t *testing.T) {
		assert := assert.New(t)
		require := require.New(t)

		batch := append(GenericLaunches(), model.Launch{Name: "anonymous"})
		err := s.UpsertAll(ctx, batch)
		assert.ErrorIs(err, store.ErrInvalidLaunch)

		count, err := s.Count(ctx)
		require.NoError(err)
		assert.Equal(3, count)
	})

	t.Run("Metadata", func(t *testing.T) {
		assert := assert.New(t)
		require := require.New(t)

		m, err := s.Touch(ctx, GenericCacheKey, time.Hour)
		require.NoError(err)
		assert.Equal(GenericCacheKey, m.Key)
		assert.Equal(time.Hour, m.ExpiresAt.Sub(m.LastUpdated))

		valid, err := s.IsValid(ctx, GenericCacheKey)
		require.NoError(err)
		assert.True(valid)

		got, err := s.Get(ctx, GenericCacheKey)
		require.NoError(err)
		assert.True(m.ExpiresAt.Equal(got.ExpiresAt))

		_, err = s.Touch(ctx, "short", time.Millisecond)
		require.NoError(err)
		time.Sleep(10 * time.Millisecond)
		valid, err = s.IsValid(ctx, "short")
		require.NoError(err)
		assert.False(valid)

		rows, err := s.List(ctx)
		require.NoError(err)
		require.Len(rows, 2)
		assert.Equal("short", rows[0].Key)
		assert.Equal(GenericCacheKey, rows[1].Key)

		require.NoError(s.Clear(ctx, "short"))
		require.NoError(s.Clear(ctx, "never-written"))
		valid, err = s.IsValid(ctx, "short")
		require.NoError(err)
		assert.False(valid)

		_, err = s.Touch(ctx, "", time.Hour)
		assert.ErrorIs(err, store.ErrEmptyCacheKey)
		_, err = s.Touch(ctx, GenericCacheKey, 0)
		assert.ErrorIs(err, store.ErrNonPositiveTTL)

		require.NoError(s.ClearAll(ctx))
		rows, err = s.List(ctx)
		require.NoError(err)
		assert.Empty(rows)
		valid, err = s.IsValid(ctx, GenericCacheKey)
		require.NoError(err)
		assert.False(valid)
	})

	t.Run("WriteThrough", func(t *testing.T) {
		assert := assert.New(t)
		require := require.New(t)

		m, err := s.WriteThrough(ctx, GenericCacheKey, GenericLaunches(), time.Hour)
		require.NoError(err)
		assert.Equal(GenericCacheKey, m.Key)

		valid, err := s.IsValid(ctx, GenericCacheKey)
		require.NoError(err)
		assert.True(valid)

		launches, err := s.ListOrdered(ctx, 100)
		require.NoError(err)
		assert.Equal([]string{"a", "b", "c"}, ids(launches))
		for _, l := range launches {
			assert.True(m.LastUpdated.Equal(l.UpdatedAt), l.ID)
		}

		bad := append(GenericLaunches(), model.Launch{Name: "anonymous"})
		_, err = s.WriteThrough(ctx, "other", bad, time.Hour)
		assert.ErrorIs(err, store.ErrInvalidLaunch)
		valid, err = s.IsValid(ctx, "other")
		require.NoError(err)
		assert.False(valid)
	})

	t.Run("Purge", func(t *testing.T) {
		assert := assert.New(t)
		require := require.New(t)

		removed, err := s.PurgeOlderThan(ctx, time.Hour)
		require.NoError(err)
		assert.Zero(removed)

		time.Sleep(5 * time.Millisecond)
		removed, err = s.PurgeOlderThan(ctx, time.Millisecond)
		require.NoError(err)
		assert.Equal(int64(3), removed)

		require.NoError(s.UpsertAll(ctx, GenericLaunches()))
		removed, err = s.PurgeAll(ctx)
		require.NoError(err)
		assert.Equal(int64(3), removed)

		count, err := s.Count(ctx)
		require.NoError(err)
		assert.Zero(count)

		// purging never touches metadata
		valid, err := s.IsValid(ctx, GenericCacheKey)
		require.NoError(err)
		assert.True(valid)
	})

	t.Run("UpsertIsIdempotent", func(t *testing.T) {
		assert := assert.New(t)
		require := require.New(t)

		require.NoError(s.UpsertAll(ctx, GenericLaunches()))
		first, err := s.ListOrdered(ctx, 100)
		require.NoError(err)

		require.NoError(s.UpsertAll(ctx, GenericLaunches()))
		second, err := s.ListOrdered(ctx, 100)
		require.NoError(err)

		require.Len(second, len(first))
		for i := range first {
			assert.False(second[i].UpdatedAt.Before(first[i].UpdatedAt), first[i].ID)
			a, b := first[i], second[i]
			a.UpdatedAt, b.UpdatedAt = time.Time{}, time.Time{}
			assert.Equal(a, b, first[i].ID)
		}

		count, err := s.Count(ctx)
		require.NoError(err)
		assert.Equal(3, count)

		_, err = s.PurgeAll(ctx)
		require.NoError(err)
	})

	t.Run("CanceledContext", func(t *testing.T) {
		canceled, cancel := context.WithCancel(ctx)
		cancel()
		_, err := s.ListOrdered(canceled, 10)
		assert.ErrorIs(t, err, context.Canceled)
	})
}
