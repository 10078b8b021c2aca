// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package cache

import "time"

const (
	DefaultKey          = "upcoming_launches"
	defaultTTL          = 30 * time.Minute
	defaultMaxRecords   = 100
	defaultDefaultLimit = 10
)

// Config governs validity and paging of the launch listing.
type Config struct {
	// Key is the metadata row that governs validity of the listing.
	// (Optional) Defaults to upcoming_launches.
	Key string

	// TTL is how long a successful refresh stays valid. Changing it only
	// affects future refreshes.
	// (Optional) Defaults to 30m.
	TTL time.Duration `validate:"gte=0"`

	// MaxRecords bounds how many launches are pulled from storage or the
	// upstream per call.
	// (Optional) Defaults to 100.
	MaxRecords int `validate:"gte=0"`

	// DefaultLimit is the page size used when a request has no limit.
	// (Optional) Defaults to 10.
	DefaultLimit int `validate:"gte=0"`
}

// WithDefaults fills in unset fields.
func (c Config) WithDefaults() Config {
	if c.Key == "" {
		c.Key = DefaultKey
	}
	if c.TTL <= 0 {
		c.TTL = defaultTTL
	}
	if c.MaxRecords <= 0 {
		c.MaxRecords = defaultMaxRecords
	}
	if c.DefaultLimit <= 0 {
		c.DefaultLimit = defaultDefaultLimit
	}
	return c
}
