// Copyright (c) 2020 Richard Youngkin. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package internal

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/youngkin/availbench/api"
)

// scenarioPlan is a scenario with its durations parsed and the range of
// virtual user numbers assigned to it
type scenarioPlan struct {
	scenario   api.Scenario
	runDur     time.Duration
	thinkTime  time.Duration
	firstVU    int
	rqstr      Requestor
	iterations int64
}

// Scheduler runs each scenario's virtual users for the scenario's run
// duration. All scenarios run in parallel.
type Scheduler struct {
	plans      []*scenarioPlan
	responseC  chan Response
	userOffset int
	seed       int64
	progress   *Progress
}

// NewScheduler returns a Scheduler for the config's scenarios. Virtual
// users are numbered from 1 across all scenarios in config order, and each
// one must map to a token.
func NewScheduler(config api.LoadTestConfig, client *http.Client, tokens []string,
	responseC chan Response, progress *Progress) (*Scheduler, error) {

	if len(config.Scenarios) == 0 {
		return nil, fmt.Errorf("%w: no scenarios configured", ErrInvalidConfig)
	}

	s := &Scheduler{
		responseC:  responseC,
		userOffset: config.UserOffset,
		seed:       config.Seed,
		progress:   progress,
	}

	nextVU := 1
	for _, sc := range config.Scenarios {
		if sc.VUs < 1 {
			return nil, fmt.Errorf("%w: scenario %s must have at least 1 VU, got %d", ErrInvalidConfig, sc.Name, sc.VUs)
		}
		runDur, err := parseDuration(sc.Name+" runDuration", sc.RunDuration)
		if err != nil {
			return nil, err
		}
		thinkTime, err := parseDuration(sc.Name+" thinkTime", sc.ThinkTime)
		if err != nil {
			return nil, err
		}
		checkLatency, err := parseDuration(sc.Name+" checkLatency", sc.CheckLatency)
		if err != nil {
			return nil, err
		}

		s.plans = append(s.plans, &scenarioPlan{
			scenario:  sc,
			runDur:    runDur,
			thinkTime: thinkTime,
			firstVU:   nextVU,
			rqstr: Requestor{
				Client:       client,
				BaseURL:      config.BaseURL,
				Scenario:     sc,
				Bounds:       config.DateRanges,
				Tokens:       tokens,
				CheckLatency: checkLatency,
				UserAgent:    config.UserAgent,
				ResponseC:    responseC,
			},
		})
		nextVU += sc.VUs
	}

	if config.UserOffset < 0 {
		return nil, fmt.Errorf("%w: userOffset must not be negative, got %d", ErrInvalidConfig, config.UserOffset)
	}
	lastUserIdx := nextVU - 1 + config.UserOffset
	if lastUserIdx > len(tokens) {
		return nil, fmt.Errorf("%w: %d VUs with user offset %d need %d users, only %d tokens available",
			ErrInvalidConfig, nextVU-1, config.UserOffset, lastUserIdx, len(tokens))
	}

	return s, nil
}

// Start runs every scenario to completion and then closes the response
// channel. Cancelling ctx stops virtual users once their current request
// completes.
func (s *Scheduler) Start(ctx context.Context) {
	log.Info().Msgf("Scheduler starting %d scenarios", len(s.plans))

	var wg sync.WaitGroup
	for _, plan := range s.plans {
		wg.Add(1)
		go func(plan *scenarioPlan) {
			defer wg.Done()
			s.runScenario(ctx, plan)
		}(plan)
	}
	wg.Wait()

	close(s.responseC)
	log.Info().Msg("Scheduler: all scenarios complete")
}

// Iterations returns the number of completed iterations keyed by scenario name
func (s *Scheduler) Iterations() map[string]int64 {
	iters := make(map[string]int64, len(s.plans))
	for _, plan := range s.plans {
		iters[plan.scenario.Name] = atomic.LoadInt64(&plan.iterations)
	}
	return iters
}

func (s *Scheduler) runScenario(ctx context.Context, plan *scenarioPlan) {
	log.Info().Msgf("Scenario %s starting with %d VUs for %s", plan.scenario.Name, plan.scenario.VUs, plan.runDur)

	start := time.Now()
	deadline := start.Add(plan.runDur)

	doneC := make(chan struct{})
	bar := s.progress.AddScenario(plan.scenario.Name, plan.scenario.VUs, plan.runDur)
	trackerDoneC := make(chan struct{})
	go func() {
		bar.Track(start, doneC)
		close(trackerDoneC)
	}()

	var wg sync.WaitGroup
	for vu := plan.firstVU; vu < plan.firstVU+plan.scenario.VUs; vu++ {
		wg.Add(1)
		go func(vu int) {
			defer wg.Done()
			s.runVU(ctx, plan, vu, deadline)
		}(vu)
	}
	wg.Wait()
	close(doneC)
	<-trackerDoneC

	log.Info().Msgf("Scenario %s complete after %s, %d iterations", plan.scenario.Name,
		time.Since(start).Round(time.Millisecond), atomic.LoadInt64(&plan.iterations))
}

// runVU repeatedly sends a request and pauses for the think time until
// the deadline passes or ctx is cancelled.
func (s *Scheduler) runVU(ctx context.Context, plan *scenarioPlan, vu int, deadline time.Time) {
	rnd := s.newRand(vu)
	userIdx := vu + s.userOffset
	// Neither the deadline nor ctx cut an in-flight request short, they're
	// only checked between iterations.
	rqstCtx := context.WithoutCancel(ctx)

	for time.Now().Before(deadline) {
		if ctx.Err() != nil {
			return
		}
		plan.rqstr.ProcessRqst(rqstCtx, userIdx, rnd)
		atomic.AddInt64(&plan.iterations, 1)

		if !sleep(ctx, plan.thinkTime) {
			return
		}
	}
}

func (s *Scheduler) newRand(vu int) *rand.Rand {
	seed := s.seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return rand.New(rand.NewSource(seed + int64(vu)))
}

// sleep pauses for d, returning false if ctx was cancelled first
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func parseDuration(field, val string) (time.Duration, error) {
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %q must be of the form xs or xm where x is an integer",
			ErrInvalidConfig, field, val)
	}
	if d < 0 {
		return 0, fmt.Errorf("%w: %s must not be negative, got %s", ErrInvalidConfig, field, val)
	}
	return d, nil
}
