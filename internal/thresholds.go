// Copyright (c) 2020 Richard Youngkin. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package internal

import (
	"fmt"
	"sort"
	"time"

	"github.com/youngkin/availbench/api"
)

// EvaluateThresholds checks the overall p95 request duration and every
// scenario's failed request rate against t. Scenarios are evaluated in name
// order.
func EvaluateThresholds(t api.Thresholds, results api.RunResults) ([]api.ThresholdResult, error) {
	p95Limit, err := parseDuration("thresholds p95Latency", t.P95Latency)
	if err != nil {
		return nil, err
	}

	timings := make([]time.Duration, len(results.RunSummary.RqstStats.TimingResultsNanos))
	copy(timings, results.RunSummary.RqstStats.TimingResultsNanos)
	p95 := calcPercentiles(95, timings)

	thresholds := []api.ThresholdResult{
		{
			Metric:    "http_req_duration",
			Condition: fmt.Sprintf("p(95)<%s", formatLimit(p95Limit)),
			Observed:  fmt.Sprintf("p(95)=%s", p95.Round(time.Microsecond)),
			Passed:    p95 < p95Limit,
		},
	}

	names := make([]string, 0, len(results.Scenarios))
	for name := range results.Scenarios {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		rate := results.Scenarios[name].ErrorRate()
		thresholds = append(thresholds, api.ThresholdResult{
			Metric:    fmt.Sprintf("http_req_failed{scenario:%s}", name),
			Condition: fmt.Sprintf("rate<%g", t.MaxErrorRate),
			Observed:  fmt.Sprintf("rate=%.4f", rate),
			Passed:    rate < t.MaxErrorRate,
		})
	}
	return thresholds, nil
}

// AllPassed reports whether every threshold passed
func AllPassed(thresholds []api.ThresholdResult) bool {
	for _, t := range thresholds {
		if !t.Passed {
			return false
		}
	}
	return true
}
