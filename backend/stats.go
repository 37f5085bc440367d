// Copyright (c) 2026 TTBT Enterprises LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package backend

import (
	"sync"
	"time"
)

const (
	LatencyBuckets    = 101
	LatencyBucketSize = 5 * time.Millisecond
)

// Histogram counts durations in fixed-width buckets. The last bucket holds
// everything slower.
type Histogram struct {
	Buckets [LatencyBuckets]uint64 `json:"b"`
	Count   uint64                 `json:"c"`
	Sum     float64                `json:"s"` // Sum of durations in milliseconds
}

func (h *Histogram) Add(d time.Duration) {
	idx := int(d / LatencyBucketSize)
	if idx >= LatencyBuckets {
		idx = LatencyBuckets - 1
	}
	h.Buckets[idx]++
	h.Count++
	h.Sum += float64(d.Microseconds()) / 1000
}

// Percentile returns the upper edge of the bucket holding the p-th
// percentile, 0 < p <= 1.
func (h *Histogram) Percentile(p float64) time.Duration {
	if h.Count == 0 {
		return 0
	}
	rank := uint64(p * float64(h.Count))
	if rank == 0 {
		rank = 1
	}
	var seen uint64
	for i, n := range h.Buckets {
		seen += n
		if seen >= rank {
			return time.Duration(i+1) * LatencyBucketSize
		}
	}
	return LatencyBuckets * LatencyBucketSize
}

// Stats counts action traffic across all hubs.
type Stats struct {
	mu       sync.Mutex
	actions  uint64
	rejected uint64
	latency  Histogram
}

// StatsReport is what the admin stats endpoint returns.
type StatsReport struct {
	LiveGames int     `json:"live_games"`
	Actions   uint64  `json:"actions"`
	Rejected  uint64  `json:"rejected"`
	Requests  uint64  `json:"requests"`
	MeanMS    float64 `json:"mean_ms"`
	P50MS     int64   `json:"p50_ms"`
	P99MS     int64   `json:"p99_ms"`
}

// recordActions adds one action request: applied actions, whether it ended
// in an error and how long the hub took.
func (s *Stats) recordActions(applied int, failed bool, d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.actions += uint64(applied)
	if failed {
		s.rejected++
	}
	s.latency.Add(d)
}

func (s *Stats) report() StatsReport {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := StatsReport{
		Actions:  s.actions,
		Rejected: s.rejected,
		Requests: s.latency.Count,
		P50MS:    s.latency.Percentile(0.5).Milliseconds(),
		P99MS:    s.latency.Percentile(0.99).Milliseconds(),
	}
	if s.latency.Count > 0 {
		r.MeanMS = s.latency.Sum / float64(s.latency.Count)
	}
	return r
}
