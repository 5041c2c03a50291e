// Copyright (c) 2020 Richard Youngkin. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package internal

import (
	"context"
	"flag"
	"net/http"
	"net/http/httptest"
	"os"
	"regexp"
	"strconv"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/youngkin/availbench/api"
)

var debugLevel = flag.Int("debugLvl", int(zerolog.ErrorLevel), "debug level - 0 thru 5 0 being DEBUG")

func TestMain(m *testing.M) {
	flag.Parse()
	zerolog.SetGlobalLevel(zerolog.Level(*debugLevel))
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	os.Exit(m.Run())
}

func testTokens(n int) []string {
	tokens := make([]string, n)
	for i := range tokens {
		tokens[i] = "token-" + strconv.Itoa(i+1)
	}
	return tokens
}

func schedulerConfig(url string) api.LoadTestConfig {
	config := DefaultConfig()
	config.BaseURL = url
	config.Seed = 11
	for i := range config.Scenarios {
		config.Scenarios[i].VUs = 2
		config.Scenarios[i].RunDuration = "300ms"
		config.Scenarios[i].ThinkTime = "50ms"
	}
	return config
}

func drain(respC chan Response) []Response {
	var resps []Response
	for resp := range respC {
		resps = append(resps, resp)
	}
	return resps
}

func TestSchedulerRunsScenarios(t *testing.T) {
	handler := &srvHandler{HTTPStatus: http.StatusOK}
	testSrv := httptest.NewServer(handler)
	defer testSrv.Close()

	config := schedulerConfig(testSrv.URL)
	respC := make(chan Response)
	s, err := NewScheduler(config, testSrv.Client(), testTokens(4), respC, nil)
	require.NoError(t, err)

	start := time.Now()
	go s.Start(context.Background())
	resps := drain(respC)
	elapsed := time.Since(start)

	assert.GreaterOrEqual(t, elapsed, 300*time.Millisecond)
	assert.Less(t, elapsed, 5*time.Second)

	perScenario := make(map[string]int)
	for _, resp := range resps {
		assert.NoError(t, resp.Err)
		perScenario[resp.Scenario]++
	}
	iters := s.Iterations()
	for _, sc := range config.Scenarios {
		// 2 VUs, each gets at least one iteration in before the deadline
		assert.GreaterOrEqual(t, perScenario[sc.Name], 2, sc.Name)
		assert.EqualValues(t, perScenario[sc.Name], iters[sc.Name], sc.Name)
	}

	// VUs 1-2 run service_logic and 3-4 run sql_logic, each against its own room
	roomPath := regexp.MustCompile(`^/host/rooms/(\d+)/availability(/sql)?$`)
	for _, rqst := range handler.captured() {
		m := roomPath.FindStringSubmatch(rqst.path)
		require.NotNil(t, m, rqst.path)
		room, _ := strconv.Atoi(m[1])
		if m[2] == "" {
			assert.Contains(t, []int{1, 2}, room)
		} else {
			assert.Contains(t, []int{3, 4}, room)
		}
		assert.Equal(t, "Bearer token-"+m[1], rqst.headers.Get("Authorization"))
	}
}

func TestSchedulerUserOffset(t *testing.T) {
	handler := &srvHandler{HTTPStatus: http.StatusOK}
	testSrv := httptest.NewServer(handler)
	defer testSrv.Close()

	config := schedulerConfig(testSrv.URL)
	config.Scenarios = config.Scenarios[:1]
	config.Scenarios[0].VUs = 1
	config.Scenarios[0].RunDuration = "10ms"
	config.UserOffset = 1

	respC := make(chan Response)
	s, err := NewScheduler(config, testSrv.Client(), testTokens(2), respC, nil)
	require.NoError(t, err)
	go s.Start(context.Background())
	drain(respC)

	rqsts := handler.captured()
	require.NotEmpty(t, rqsts)
	assert.Equal(t, "/host/rooms/2/availability", rqsts[0].path)
	assert.Equal(t, "Bearer token-2", rqsts[0].headers.Get("Authorization"))
}

func TestSchedulerCancel(t *testing.T) {
	testSrv := httptest.NewServer(&srvHandler{HTTPStatus: http.StatusOK, Delay: 500 * time.Millisecond})
	defer testSrv.Close()

	config := schedulerConfig(testSrv.URL)
	for i := range config.Scenarios {
		config.Scenarios[i].RunDuration = "1m"
		config.Scenarios[i].ThinkTime = "1s"
	}

	respC := make(chan Response)
	s, err := NewScheduler(config, testSrv.Client(), testTokens(4), respC, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	go s.Start(ctx)
	resps := drain(respC)
	elapsed := time.Since(start)
	assert.Less(t, elapsed, 5*time.Second)

	// Every VU was mid request when cancelled, each of those requests
	// finishes normally and nothing new is started.
	assert.GreaterOrEqual(t, elapsed, 500*time.Millisecond)
	require.Len(t, resps, 4)
	for _, resp := range resps {
		assert.False(t, resp.Failed(), "status=%d err=%v", resp.HTTPStatus, resp.Err)
	}
	for _, iters := range s.Iterations() {
		assert.EqualValues(t, 2, iters)
	}
}

func TestNewSchedulerErrors(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*api.LoadTestConfig)
		tokens int
	}{
		{name: "no scenarios", modify: func(c *api.LoadTestConfig) { c.Scenarios = nil }, tokens: 4},
		{name: "zero VUs", modify: func(c *api.LoadTestConfig) { c.Scenarios[0].VUs = 0 }, tokens: 4},
		{name: "bad run duration", modify: func(c *api.LoadTestConfig) { c.Scenarios[0].RunDuration = "10" }, tokens: 4},
		{name: "bad think time", modify: func(c *api.LoadTestConfig) { c.Scenarios[1].ThinkTime = "soon" }, tokens: 4},
		{name: "not enough tokens", modify: func(c *api.LoadTestConfig) {}, tokens: 3},
		{name: "offset needs more tokens", modify: func(c *api.LoadTestConfig) { c.UserOffset = 1 }, tokens: 4},
		{name: "negative offset", modify: func(c *api.LoadTestConfig) { c.UserOffset = -1 }, tokens: 4},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			config := schedulerConfig("http://somewhere.com")
			tc.modify(&config)
			_, err := NewScheduler(config, &http.Client{}, testTokens(tc.tokens), make(chan Response), nil)
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestNewSchedulerNegativeOffset(t *testing.T) {
	config := schedulerConfig("http://somewhere.com")
	config.UserOffset = -1

	// 4 VUs shifted down by one need only 3 tokens, the offset itself is the problem
	_, err := NewScheduler(config, &http.Client{}, testTokens(2), make(chan Response), nil)
	require.ErrorIs(t, err, ErrInvalidConfig)
	assert.Contains(t, err.Error(), "userOffset must not be negative")
}
