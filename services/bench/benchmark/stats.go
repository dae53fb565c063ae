// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package benchmark

import (
	"errors"
	"math"
	"sort"
	"time"
)

// ErrNoSamples indicates that no runtime samples were available.
var ErrNoSamples = errors.New("no samples collected")

// LatencyStats holds latency percentile statistics.
//
// Description:
//
//	Min/max, mean/median, population standard deviation and percentiles of
//	one classifier's per-sample runtimes. Percentiles use linear
//	interpolation between the two nearest ranks.
//
// Thread Safety: Safe for concurrent read access after creation.
type LatencyStats struct {
	Min    time.Duration `json:"min_ns"`
	Max    time.Duration `json:"max_ns"`
	Mean   time.Duration `json:"mean_ns"`
	Median time.Duration `json:"median_ns"`
	StdDev time.Duration `json:"stddev_ns"`
	P90    time.Duration `json:"p90_ns"`
	P95    time.Duration `json:"p95_ns"`
	P99    time.Duration `json:"p99_ns"`
}

// CalculateLatencyStats computes statistics over samples.
//
// Inputs:
//   - samples: Runtimes in any order. Not modified.
//
// Outputs:
//   - LatencyStats: The computed statistics.
//   - error: ErrNoSamples if samples is empty.
func CalculateLatencyStats(samples []time.Duration) (LatencyStats, error) {
	if len(samples) == 0 {
		return LatencyStats{}, ErrNoSamples
	}

	sorted := make([]time.Duration, len(samples))
	copy(sorted, samples)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	stats := LatencyStats{
		Min:    sorted[0],
		Max:    sorted[len(sorted)-1],
		Median: percentile(sorted, 0.5),
		P90:    percentile(sorted, 0.9),
		P95:    percentile(sorted, 0.95),
		P99:    percentile(sorted, 0.99),
	}

	var sum float64
	for _, s := range samples {
		sum += float64(s)
	}
	mean := sum / float64(len(samples))
	stats.Mean = time.Duration(mean)

	var sq float64
	for _, s := range samples {
		d := float64(s) - mean
		sq += d * d
	}
	stats.StdDev = time.Duration(math.Sqrt(sq / float64(len(samples))))
	return stats, nil
}

// percentile returns the p-th percentile of sorted samples.
func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 1 {
		return sorted[0]
	}
	index := p * float64(len(sorted)-1)
	lower := int(math.Floor(index))
	upper := int(math.Ceil(index))
	if lower == upper {
		return sorted[lower]
	}
	fraction := index - float64(lower)
	return time.Duration(float64(sorted[lower])*(1-fraction) + float64(sorted[upper])*fraction)
}
