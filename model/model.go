// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package model

import (
	"sort"
	"time"
)

// Launch is a normalized snapshot of one upstream launch.
type Launch struct {
	// ID is the upstream identifier. It is stable across refreshes.
	ID string `json:"id"`

	// Name is the human readable launch name.
	Name string `json:"name"`

	// Net is the "no earlier than" time of the launch and the only sort key
	// used for listing.
	Net time.Time `json:"net"`

	Status   Status   `json:"status"`
	Provider Provider `json:"launch_service_provider"`
	Vehicle  Vehicle  `json:"rocket"`
	Mission  *Mission `json:"mission"`
	Image    *Image   `json:"image"`

	// CreatedAt and UpdatedAt are assigned by the process when the record is
	// written. CreatedAt is zero on launches served straight from upstream.
	CreatedAt time.Time `json:"created_at,omitzero"`
	UpdatedAt time.Time `json:"updated_at,omitzero"`
}

// Status is the launch status as reported upstream (Go, TBD, Success...).
type Status struct {
	ID          int    `json:"id"`
	Name        string `json:"name"`
	Abbrev      string `json:"abbrev"`
	Description string `json:"description"`
}

// Provider is the launch service provider.
type Provider struct {
	ID     int    `json:"id"`
	Name   string `json:"name"`
	Abbrev string `json:"abbrev"`
	Type   string `json:"type"`
}

// Vehicle is the rocket flying the launch.
type Vehicle struct {
	ID            int                  `json:"id"`
	Configuration VehicleConfiguration `json:"configuration"`
}

type VehicleConfiguration struct {
	ID       int    `json:"id"`
	Name     string `json:"name"`
	FullName string `json:"full_name"`
	Variant  string `json:"variant"`
}

// Mission describes the payload. Description may be empty.
type Mission struct {
	ID          int    `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Type        string `json:"type"`
}

type Image struct {
	ID           int    `json:"id"`
	Name         string `json:"name"`
	URL          string `json:"image_url"`
	ThumbnailURL string `json:"thumbnail_url"`
	Credit       string `json:"credit"`
}

// CacheMetadata records when the data set behind Key was last refreshed.
type CacheMetadata struct {
	// Key is the logical cache key governing validity.
	Key string `json:"key"`

	LastUpdated time.Time `json:"last_updated"`

	// ExpiresAt is LastUpdated plus the TTL in effect at write time.
	ExpiresAt time.Time `json:"expires_at"`
}

// ValidAt reports whether the metadata has not yet expired at the given time.
func (m CacheMetadata) ValidAt(now time.Time) bool {
	return now.Before(m.ExpiresAt)
}

// NewCacheMetadata builds the metadata row written on a successful refresh.
func NewCacheMetadata(key string, now time.Time, ttl time.Duration) CacheMetadata {
	return CacheMetadata{
		Key:         key,
		LastUpdated: now,
		ExpiresAt:   now.Add(ttl),
	}
}

// SortLaunches orders launches ascending by Net, breaking ties by ID.
func SortLaunches(launches []Launch) {
	sort.Slice(launches, func(i, j int) bool {
		if launches[i].Net.Equal(launches[j].Net) {
			return launches[i].ID < launches[j].ID
		}
		return launches[i].Net.Before(launches[j].Net)
	})
}
