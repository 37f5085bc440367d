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
	"testing"
	"time"
)

func TestHistogramPercentile(t *testing.T) {
	var h Histogram
	if got := h.Percentile(0.5); got != 0 {
		t.Errorf("empty p50 = %v", got)
	}
	for range 98 {
		h.Add(time.Millisecond)
	}
	h.Add(12 * time.Millisecond)
	h.Add(time.Second)

	for _, tc := range []struct {
		p    float64
		want time.Duration
	}{
		{0.01, 5 * time.Millisecond},
		{0.5, 5 * time.Millisecond},
		{0.99, 15 * time.Millisecond},
		{1, LatencyBuckets * LatencyBucketSize},
	} {
		if got := h.Percentile(tc.p); got != tc.want {
			t.Errorf("p%v = %v, want %v", tc.p*100, got, tc.want)
		}
	}
	if h.Count != 100 {
		t.Errorf("count = %d", h.Count)
	}
}

func TestStatsReport(t *testing.T) {
	var s Stats
	s.recordActions(3, false, 2*time.Millisecond)
	s.recordActions(1, true, 8*time.Millisecond)
	r := s.report()
	if r.Actions != 4 || r.Rejected != 1 || r.Requests != 2 {
		t.Errorf("report = %+v", r)
	}
	if r.MeanMS != 5 {
		t.Errorf("mean = %v, want 5", r.MeanMS)
	}
	if r.P50MS != 5 || r.P99MS != 5 {
		t.Errorf("p50 %d p99 %d", r.P50MS, r.P99MS)
	}
}
