// Copyright (c) 2020 Richard Youngkin. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package internal

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/youngkin/availbench/api"
	"gopkg.in/yaml.v2"
)

// ErrInvalidConfig is returned when a configuration can't be used for a run
var ErrInvalidConfig = errors.New("invalid configuration")

// Environment variables that override the configuration file
const (
	EnvBaseURL  = "AVAILBENCH_BASE_URL"
	EnvPassword = "AVAILBENCH_PASSWORD"
)

// DefaultConfig returns the configuration used when no config file is
// provided: two scenarios of 100 VUs for 10 seconds comparing the service
// and SQL implementations of the availability update.
func DefaultConfig() api.LoadTestConfig {
	return api.LoadTestConfig{
		BaseURL:          "http://localhost:8080",
		LoginPath:        "/users/login",
		NumUsers:         250,
		EmailFormat:      "user%d@test.com",
		Password:         "password",
		LoginConcurrency: 1,
		RqstTimeout:      "15s",
		UserAgent:        "availbench/2endpoints-test",
		OutputType:       "text",
		DateRanges: api.DateRangeBounds{
			MinRanges:         1,
			MaxRanges:         9,
			MinDurationDays:   0,
			MaxDurationDays:   30,
			MinStartDaysAhead: 0,
			MaxStartDaysAhead: 7,
		},
		Thresholds: api.Thresholds{
			P95Latency:   "500ms",
			MaxErrorRate: 0.01,
		},
		Scenarios: []api.Scenario{
			{
				Name:         "service_logic",
				Path:         "/host/rooms/{roomId}/availability",
				Metric:       "service_logic_duration",
				CheckLabel:   "serviceLogic",
				VUs:          100,
				RunDuration:  "10s",
				ThinkTime:    "1s",
				CheckLatency: "1000ms",
			},
			{
				Name:         "sql_logic",
				Path:         "/host/rooms/{roomId}/availability/sql",
				Metric:       "sql_logic_duration",
				CheckLabel:   "sqlLogic",
				VUs:          100,
				RunDuration:  "10s",
				ThinkTime:    "1s",
				CheckLatency: "1000ms",
			},
		},
	}
}

// LoadConfig returns the defaults overlaid with the contents of fileName,
// if provided, and then with any environment overrides. Files ending in
// .yaml or .yml are parsed as YAML, anything else as JSON.
func LoadConfig(fileName string) (api.LoadTestConfig, error) {
	config := DefaultConfig()

	if fileName != "" {
		contents, err := os.ReadFile(fileName)
		if err != nil {
			return api.LoadTestConfig{}, fmt.Errorf("unable to read config file %s: %w", fileName, err)
		}
		log.Debug().Msgf("Raw config file contents: %s", string(contents))

		scenarios := config.Scenarios
		config.Scenarios = nil
		switch strings.ToLower(filepath.Ext(fileName)) {
		case ".yaml", ".yml":
			err = yaml.Unmarshal(contents, &config)
		default:
			err = json.Unmarshal(contents, &config)
		}
		if err != nil {
			return api.LoadTestConfig{}, fmt.Errorf("error unmarshaling test config %s: %w", fileName, err)
		}
		if config.Scenarios == nil {
			config.Scenarios = scenarios
		}
		fillScenarioDefaults(config.Scenarios)
	}

	if err := loadDotEnv(".env"); err != nil {
		return api.LoadTestConfig{}, err
	}
	applyEnv(&config)

	return config, nil
}

// fillScenarioDefaults gives scenarios from a config file the default
// timings when they don't specify their own
func fillScenarioDefaults(scenarios []api.Scenario) {
	def := DefaultConfig().Scenarios[0]
	for i := range scenarios {
		sc := &scenarios[i]
		if sc.Metric == "" {
			sc.Metric = sc.Name + "_duration"
		}
		if sc.RunDuration == "" {
			sc.RunDuration = def.RunDuration
		}
		if sc.ThinkTime == "" {
			sc.ThinkTime = def.ThinkTime
		}
		if sc.CheckLatency == "" {
			sc.CheckLatency = def.CheckLatency
		}
	}
}

// loadDotEnv loads fileName into the environment. A missing file is not
// an error, and variables already set are left alone.
func loadDotEnv(fileName string) error {
	err := godotenv.Load(fileName)
	if err == nil {
		log.Debug().Msgf("Loaded environment from %s", fileName)
		return nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("loading %s: %w", fileName, err)
}

func applyEnv(config *api.LoadTestConfig) {
	if v := os.Getenv(EnvBaseURL); v != "" {
		config.BaseURL = v
	}
	if v := os.Getenv(EnvPassword); v != "" {
		config.Password = v
	}
}

// ValidateConfig reports the first problem found with config
func ValidateConfig(config api.LoadTestConfig) error {
	if config.BaseURL == "" {
		return fmt.Errorf("%w: baseURL is required", ErrInvalidConfig)
	}
	if config.NumUsers < 1 {
		return fmt.Errorf("%w: numUsers must be at least 1, got %d", ErrInvalidConfig, config.NumUsers)
	}
	if !strings.Contains(config.EmailFormat, "%d") {
		return fmt.Errorf("%w: emailFormat %q must contain %%d", ErrInvalidConfig, config.EmailFormat)
	}
	if _, err := parseDuration("rqstTimeout", config.RqstTimeout); err != nil {
		return err
	}
	if _, err := parseDuration("thresholds p95Latency", config.Thresholds.P95Latency); err != nil {
		return err
	}
	if config.Thresholds.MaxErrorRate < 0 || config.Thresholds.MaxErrorRate > 1 {
		return fmt.Errorf("%w: thresholds maxErrorRate must be between 0 and 1, got %v",
			ErrInvalidConfig, config.Thresholds.MaxErrorRate)
	}
	switch strings.ToLower(config.OutputType) {
	case "", "text", "json":
	default:
		return fmt.Errorf("%w: outputType must be text or json, got %q", ErrInvalidConfig, config.OutputType)
	}
	if (config.ClientCertFile == "") != (config.ClientKeyFile == "") {
		return fmt.Errorf("%w: clientCertFile and clientKeyFile must be provided together", ErrInvalidConfig)
	}
	if err := config.DateRanges.Validate(); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, err)
	}
	if len(config.Scenarios) == 0 {
		return fmt.Errorf("%w: no scenarios configured", ErrInvalidConfig)
	}

	names := make(map[string]bool)
	totalVUs := 0
	for _, sc := range config.Scenarios {
		if sc.Name == "" {
			return fmt.Errorf("%w: every scenario needs a name", ErrInvalidConfig)
		}
		if names[sc.Name] {
			return fmt.Errorf("%w: duplicate scenario name %s", ErrInvalidConfig, sc.Name)
		}
		names[sc.Name] = true
		if !strings.Contains(sc.Path, roomIDParam) {
			return fmt.Errorf("%w: scenario %s path %q must contain %s", ErrInvalidConfig, sc.Name, sc.Path, roomIDParam)
		}
		if sc.VUs < 1 {
			return fmt.Errorf("%w: scenario %s must have at least 1 VU, got %d", ErrInvalidConfig, sc.Name, sc.VUs)
		}
		durations := []struct{ field, val string }{
			{"runDuration", sc.RunDuration},
			{"thinkTime", sc.ThinkTime},
			{"checkLatency", sc.CheckLatency},
		}
		for _, d := range durations {
			if _, err := parseDuration(sc.Name+" "+d.field, d.val); err != nil {
				return err
			}
		}
		totalVUs += sc.VUs
	}

	if config.UserOffset < 0 {
		return fmt.Errorf("%w: userOffset must not be negative, got %d", ErrInvalidConfig, config.UserOffset)
	}
	if totalVUs+config.UserOffset > config.NumUsers {
		return fmt.Errorf("%w: %d VUs with user offset %d need %d users, numUsers is %d",
			ErrInvalidConfig, totalVUs, config.UserOffset, totalVUs+config.UserOffset, config.NumUsers)
	}
	return nil
}
