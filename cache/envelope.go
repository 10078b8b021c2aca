// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package cache

import (
	"net/url"
	"strconv"
	"time"

	"github.com/xmidt-org/launchcache/model"
)

// Envelope is the listing body returned by both the read and the refresh
// endpoints.
type Envelope struct {
	Count     int            `json:"count"`
	Next      *string        `json:"next"`
	Previous  *string        `json:"previous"`
	Results   []model.Launch `json:"results"`
	Cached    bool           `json:"cached"`
	CacheInfo CacheInfo      `json:"cache_info"`
}

type CacheInfo struct {
	Source     Source     `json:"source"`
	FetchedAt  *time.Time `json:"fetched_at"`
	TTLMinutes float64    `json:"ttl_minutes"`
	Warning    string     `json:"warning,omitempty"`
}

// NewEnvelope renders a Result. Next and previous links are built from self,
// the URL that produced the result.
func NewEnvelope(res Result, self *url.URL) Envelope {
	e := Envelope{
		Count:   res.Count,
		Results: res.Launches,
		Cached:  res.Cached,
		CacheInfo: CacheInfo{
			Source:     res.Source,
			FetchedAt:  res.FetchedAt,
			TTLMinutes: res.TTL.Minutes(),
			Warning:    res.Warning,
		},
	}
	if e.Results == nil {
		e.Results = []model.Launch{}
	}
	if res.HasNext() {
		e.Next = pageLink(self, res.Limit, nextOffset(res))
	}
	if res.HasPrevious() {
		prev := res.Offset - res.Limit
		if prev < 0 {
			prev = 0
		}
		e.Previous = pageLink(self, res.Limit, prev)
	}
	return e
}

// nextOffset is offset+limit, clamped to count.
func nextOffset(res Result) int {
	if res.Limit >= res.Count-res.Offset {
		return res.Count
	}
	return res.Offset + res.Limit
}

func pageLink(self *url.URL, limit, offset int) *string {
	if self == nil {
		return nil
	}
	u := *self
	q := u.Query()
	q.Set(limitParam, strconv.Itoa(limit))
	q.Set(offsetParam, strconv.Itoa(offset))
	u.RawQuery = q.Encode()
	link := u.String()
	return &link
}
