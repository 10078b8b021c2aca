// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package histogram

import (
	"fmt"
	"time"

	"github.com/xmidt-org/launchcache/model"
)

// Week is the bucket width of the launch histogram.
const Week = 7 * 24 * time.Hour

const labelLayout = "Jan 02"

// Bucket counts the launches whose net falls in [Start, End).
type Bucket struct {
	Start     time.Time `json:"start"`
	End       time.Time `json:"end"`
	Count     int       `json:"count"`
	Label     string    `json:"label"`
	LaunchIDs []string  `json:"launch_ids"`
}

// Weekly groups launches into 7 day buckets starting at the earliest net.
func Weekly(launches []model.Launch) []Bucket {
	return Group(launches, Week)
}

// Group groups launches into consecutive buckets of the given width. The
// first bucket starts at the earliest net and empty buckets between the
// first and last launch are kept.
func Group(launches []model.Launch, width time.Duration) []Bucket {
	if len(launches) == 0 || width <= 0 {
		return []Bucket{}
	}

	sorted := make([]model.Launch, len(launches))
	copy(sorted, launches)
	model.SortLaunches(sorted)

	first := sorted[0].Net.UTC()
	last := sorted[len(sorted)-1].Net.UTC()
	n := int(last.Sub(first)/width) + 1

	buckets := make([]Bucket, n)
	for i := range buckets {
		start := first.Add(time.Duration(i) * width)
		end := start.Add(width)
		buckets[i] = Bucket{
			Start:     start,
			End:       end,
			Label:     label(start, end),
			LaunchIDs: []string{},
		}
	}

	for _, l := range sorted {
		i := int(l.Net.UTC().Sub(first) / width)
		buckets[i].Count++
		buckets[i].LaunchIDs = append(buckets[i].LaunchIDs, l.ID)
	}
	return buckets
}

// label names a bucket by its first and last calendar day.
func label(start, end time.Time) string {
	lastDay := end.Add(-time.Nanosecond)
	return fmt.Sprintf("%s - %s", start.Format(labelLayout), lastDay.Format(labelLayout))
}
