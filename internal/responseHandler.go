// Copyright (c) 2020 Richard Youngkin. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package internal

import (
	"math"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/youngkin/availbench/api"
)

// ResponseHandler is responsible for accepting and summarizing the
// responses of a load test run. Every response of the run is funneled
// through its ResponseC so no metric state is shared between virtual users.
type ResponseHandler struct {
	// ResponseC is read until it's closed
	ResponseC chan Response
	// DoneC is closed once ResponseC has been drained and the results are
	// available
	DoneC   chan struct{}
	results api.RunResults
}

// Start begins the process of accepting responses. It expects to be run as a goroutine
func (rh *ResponseHandler) Start() {
	log.Debug().Msg("ResponseHandler starting")
	start := time.Now()

	scenarios := make(map[string]*api.ScenarioResults)
	summary := api.RunSummary{RqstStats: newRqstStats()}

	for resp := range rh.ResponseC {
		addToRqstStats(&summary.RqstStats, resp.RequestDuration)

		sr, ok := scenarios[resp.Scenario]
		if !ok {
			sr = &api.ScenarioResults{
				Name:           resp.Scenario,
				Metric:         resp.Metric,
				HTTPStatusDist: make(map[int]int),
				Checks:         make(map[string]*api.CheckStats),
				RqstStats:      newRqstStats(),
			}
			scenarios[resp.Scenario] = sr
		}
		addToRqstStats(&sr.RqstStats, resp.RequestDuration)
		sr.HTTPStatusDist[resp.HTTPStatus]++
		if resp.Failed() {
			sr.FailedRqsts++
			summary.FailedRqsts++
		}

		for _, check := range resp.Checks {
			cs, ok := sr.Checks[check.Name]
			if !ok {
				cs = &api.CheckStats{}
				sr.Checks[check.Name] = cs
			}
			if check.Passed {
				cs.Passes++
			} else {
				cs.Fails++
			}
		}
	}

	summary.RunDurationNanos = time.Since(start)
	finishRqstStats(&summary.RqstStats)
	if secs := summary.RunDurationNanos.Seconds(); secs > 0 {
		summary.RqstRatePerSec = float64(summary.RqstStats.TotalRqsts) / secs
	}
	for _, sr := range scenarios {
		finishRqstStats(&sr.RqstStats)
		log.Debug().Msgf("ScenarioResults: %s, %d requests, %d failed", sr.Name, sr.RqstStats.TotalRqsts, sr.FailedRqsts)
	}

	rh.results = api.RunResults{RunSummary: summary, Scenarios: scenarios}
	close(rh.DoneC)
}

// Results returns the summarized run. It must only be called after DoneC
// has been closed.
func (rh *ResponseHandler) Results() api.RunResults {
	return rh.results
}

func newRqstStats() api.RqstStats {
	return api.RqstStats{
		TimingResultsNanos:   make([]time.Duration, 0),
		MaxRqstDurationNanos: -1,
		MinRqstDurationNanos: time.Duration(math.MaxInt64),
	}
}

func addToRqstStats(rs *api.RqstStats, d time.Duration) {
	rs.TotalRqsts++
	rs.TotalRequestDurationNanos += d
	rs.TimingResultsNanos = append(rs.TimingResultsNanos, d)
	if d > rs.MaxRqstDurationNanos {
		rs.MaxRqstDurationNanos = d
	}
	if d < rs.MinRqstDurationNanos {
		rs.MinRqstDurationNanos = d
	}
}

func finishRqstStats(rs *api.RqstStats) {
	if rs.TotalRqsts == 0 {
		rs.MaxRqstDurationNanos = 0
		rs.MinRqstDurationNanos = 0
		return
	}
	rs.AvgRqstDurationNanos = rs.TotalRequestDurationNanos / time.Duration(rs.TotalRqsts)
}
