// Copyright (c) 2020 Richard Youngkin. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package internal

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/youngkin/availbench/api"
)

// Run executes a complete load test: every synthetic user is logged in,
// then the scenarios run and the results are summarized and evaluated
// against the thresholds. A token setup failure aborts the run before any
// load is generated. A nil progress displays nothing.
func Run(ctx context.Context, config api.LoadTestConfig, progress *Progress) (api.RunResults, error) {
	if err := ValidateConfig(config); err != nil {
		return api.RunResults{}, err
	}
	runID := uuid.New().String()
	logger := log.With().Str("run_id", runID).Logger()
	logger.Info().Msgf("Run starting against %s", config.BaseURL)

	client, err := newClient(config)
	if err != nil {
		return api.RunResults{}, err
	}

	fetcher := TokenFetcher{
		Client:      client,
		LoginURL:    config.BaseURL + config.LoginPath,
		Concurrency: config.LoginConcurrency,
		UserAgent:   config.UserAgent,
	}
	tokens, err := fetcher.FetchTokens(ctx, Credentials(config))
	if err != nil {
		return api.RunResults{}, err
	}

	totalVUs := 0
	for _, sc := range config.Scenarios {
		totalVUs += sc.VUs
	}
	responseC := make(chan Response, totalVUs)
	responseHandler := &ResponseHandler{
		ResponseC: responseC,
		DoneC:     make(chan struct{}),
	}

	scheduler, err := NewScheduler(config, client, tokens, responseC, progress)
	if err != nil {
		return api.RunResults{}, err
	}

	go responseHandler.Start()
	scheduler.Start(ctx)
	<-responseHandler.DoneC
	progress.Wait()

	results := responseHandler.Results()
	results.RunID = runID
	for name, iters := range scheduler.Iterations() {
		sr, ok := results.Scenarios[name]
		if !ok {
			sr = emptyScenarioResults(config, name)
			results.Scenarios[name] = sr
		}
		sr.Iterations = iters
	}

	results.Thresholds, err = EvaluateThresholds(config.Thresholds, results)
	if err != nil {
		return api.RunResults{}, err
	}
	results.Passed = AllPassed(results.Thresholds)

	logger.Info().Msgf("Run complete, %d requests, thresholds passed: %t",
		results.RunSummary.RqstStats.TotalRqsts, results.Passed)
	return results, nil
}

func newClient(config api.LoadTestConfig) (*http.Client, error) {
	timeout, err := parseDuration("rqstTimeout", config.RqstTimeout)
	if err != nil {
		return nil, err
	}
	maxConns := config.LoginConcurrency
	for _, sc := range config.Scenarios {
		maxConns += sc.VUs
	}
	tlsConfig, err := clientTLSConfig(config)
	if err != nil {
		return nil, err
	}
	t := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		TLSClientConfig:     tlsConfig,
		MaxIdleConnsPerHost: maxConns,
		DisableCompression:  false,
		DisableKeepAlives:   config.NoConnectionReuse,
		IdleConnTimeout:     90 * time.Second,
	}
	return &http.Client{Transport: t, Timeout: timeout}, nil
}

// clientTLSConfig returns nil, meaning the transport's defaults, unless a CA
// or client certificate is configured
func clientTLSConfig(config api.LoadTestConfig) (*tls.Config, error) {
	if config.CACertFile == "" && config.ClientCertFile == "" {
		return nil, nil
	}
	cfg := &tls.Config{}

	if config.CACertFile != "" {
		caCert, err := os.ReadFile(config.CACertFile)
		if err != nil {
			return nil, fmt.Errorf("reading CA certificate file %s: %w", config.CACertFile, err)
		}
		pool, err := x509.SystemCertPool()
		if err != nil {
			log.Warn().Err(err).Msg("System cert pool unavailable, trusting only the configured CA")
			pool = x509.NewCertPool()
		}
		if !pool.AppendCertsFromPEM(caCert) {
			return nil, fmt.Errorf("%w: no certificates found in %s", ErrInvalidConfig, config.CACertFile)
		}
		cfg.RootCAs = pool
	}

	if config.ClientCertFile != "" {
		cert, err := tls.LoadX509KeyPair(config.ClientCertFile, config.ClientKeyFile)
		if err != nil {
			return nil, fmt.Errorf("loading client certificate %s: %w", config.ClientCertFile, err)
		}
		cfg.Certificates = []tls.Certificate{cert}
	}
	return cfg, nil
}

func emptyScenarioResults(config api.LoadTestConfig, name string) *api.ScenarioResults {
	sr := &api.ScenarioResults{
		Name:           name,
		HTTPStatusDist: make(map[int]int),
		Checks:         make(map[string]*api.CheckStats),
		RqstStats:      api.RqstStats{TimingResultsNanos: make([]time.Duration, 0)},
	}
	for _, sc := range config.Scenarios {
		if sc.Name == name {
			sr.Metric = sc.Metric
		}
	}
	return sr
}
