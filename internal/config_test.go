// Copyright (c) 2020 Richard Youngkin. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package internal

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/youngkin/availbench/api"
)

func writeConfig(t *testing.T, name, contents string) string {
	t.Helper()
	fileName := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(fileName, []byte(contents), 0o600))
	return fileName
}

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()
	require.NoError(t, ValidateConfig(config))

	assert.Equal(t, "http://localhost:8080", config.BaseURL)
	assert.Equal(t, 250, config.NumUsers)
	assert.Equal(t, defaultBounds, config.DateRanges)
	assert.Equal(t, api.Thresholds{P95Latency: "500ms", MaxErrorRate: 0.01}, config.Thresholds)
	require.Len(t, config.Scenarios, 2)
	assert.Equal(t, "/host/rooms/{roomId}/availability", config.Scenarios[0].Path)
	assert.Equal(t, "service_logic_duration", config.Scenarios[0].Metric)
	assert.Equal(t, "/host/rooms/{roomId}/availability/sql", config.Scenarios[1].Path)
	assert.Equal(t, "sql_logic_duration", config.Scenarios[1].Metric)
	assert.Equal(t, "serviceLogic", config.Scenarios[0].CheckLabel)
	assert.Equal(t, "sqlLogic", config.Scenarios[1].CheckLabel)
	for _, sc := range config.Scenarios {
		assert.Equal(t, 100, sc.VUs)
		assert.Equal(t, "10s", sc.RunDuration)
		assert.Equal(t, "1s", sc.ThinkTime)
	}
}

func TestLoadConfig(t *testing.T) {
	jsonConfig := `{
  "baseURL": "http://booking:9090",
  "numUsers": 20,
  "seed": 5,
  "dateRanges": {"minRanges": 2, "maxRanges": 4, "maxDurationDays": 10, "maxStartDaysAhead": 3},
  "scenarios": [
    {"name": "service_logic", "path": "/host/rooms/{roomId}/availability", "vus": 10, "runDuration": "30s"}
  ]
}`
	yamlConfig := `
baseURL: http://booking:9090
numUsers: 20
seed: 5
dateRanges:
  minRanges: 2
  maxRanges: 4
  maxDurationDays: 10
  maxStartDaysAhead: 3
scenarios:
  - name: service_logic
    path: /host/rooms/{roomId}/availability
    vus: 10
    runDuration: 30s
`

	tests := []struct {
		name     string
		fileName string
		contents string
	}{
		{name: "json", fileName: "config.json", contents: jsonConfig},
		{name: "yaml", fileName: "config.yaml", contents: yamlConfig},
		{name: "yml", fileName: "config.yml", contents: yamlConfig},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			config, err := LoadConfig(writeConfig(t, tc.fileName, tc.contents))
			require.NoError(t, err)
			require.NoError(t, ValidateConfig(config))

			assert.Equal(t, "http://booking:9090", config.BaseURL)
			assert.Equal(t, 20, config.NumUsers)
			assert.EqualValues(t, 5, config.Seed)
			assert.Equal(t, "password", config.Password, "unset fields keep their defaults")
			assert.Equal(t, api.DateRangeBounds{MinRanges: 2, MaxRanges: 4, MaxDurationDays: 10, MaxStartDaysAhead: 3}, config.DateRanges)

			require.Len(t, config.Scenarios, 1)
			sc := config.Scenarios[0]
			assert.Equal(t, 10, sc.VUs)
			assert.Equal(t, "30s", sc.RunDuration)
			assert.Equal(t, "service_logic_duration", sc.Metric)
			assert.Equal(t, "1s", sc.ThinkTime)
			assert.Equal(t, "1000ms", sc.CheckLatency)
		})
	}
}

func TestLoadConfigErrors(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)

	_, err = LoadConfig(writeConfig(t, "bad.json", "{not json"))
	assert.Error(t, err)
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	t.Setenv(EnvBaseURL, "http://from-env:8080")
	t.Setenv(EnvPassword, "secret")

	config, err := LoadConfig(writeConfig(t, "config.json", `{"baseURL": "http://from-file"}`))
	require.NoError(t, err)
	assert.Equal(t, "http://from-env:8080", config.BaseURL)
	assert.Equal(t, "secret", config.Password)
}

func TestLoadDotEnv(t *testing.T) {
	t.Setenv(EnvPassword, "")
	os.Unsetenv(EnvPassword)

	require.NoError(t, loadDotEnv(filepath.Join(t.TempDir(), ".env")), "a missing file is ignored")

	require.NoError(t, loadDotEnv(writeConfig(t, ".env", EnvPassword+"=dotenv-password\n")))
	assert.Equal(t, "dotenv-password", os.Getenv(EnvPassword))
}

func TestValidateConfigReportsFirstBadDuration(t *testing.T) {
	config := DefaultConfig()
	config.Scenarios[0].RunDuration = "10"
	config.Scenarios[0].ThinkTime = "1"
	config.Scenarios[0].CheckLatency = "fast"

	for i := 0; i < 10; i++ {
		err := ValidateConfig(config)
		require.ErrorIs(t, err, ErrInvalidConfig)
		assert.Contains(t, err.Error(), "service_logic runDuration")
	}
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*api.LoadTestConfig)
	}{
		{name: "no base URL", modify: func(c *api.LoadTestConfig) { c.BaseURL = "" }},
		{name: "no users", modify: func(c *api.LoadTestConfig) { c.NumUsers = 0 }},
		{name: "email format", modify: func(c *api.LoadTestConfig) { c.EmailFormat = "user@test.com" }},
		{name: "request timeout", modify: func(c *api.LoadTestConfig) { c.RqstTimeout = "15" }},
		{name: "p95 latency", modify: func(c *api.LoadTestConfig) { c.Thresholds.P95Latency = "" }},
		{name: "error rate", modify: func(c *api.LoadTestConfig) { c.Thresholds.MaxErrorRate = 2 }},
		{name: "client cert without key", modify: func(c *api.LoadTestConfig) { c.ClientCertFile = "client.pem" }},
		{name: "output type", modify: func(c *api.LoadTestConfig) { c.OutputType = "xml" }},
		{name: "date ranges", modify: func(c *api.LoadTestConfig) { c.DateRanges.MinRanges = 10 }},
		{name: "no scenarios", modify: func(c *api.LoadTestConfig) { c.Scenarios = nil }},
		{name: "unnamed scenario", modify: func(c *api.LoadTestConfig) { c.Scenarios[0].Name = "" }},
		{name: "duplicate scenario", modify: func(c *api.LoadTestConfig) { c.Scenarios[1].Name = c.Scenarios[0].Name }},
		{name: "path without room", modify: func(c *api.LoadTestConfig) { c.Scenarios[0].Path = "/host/rooms/availability" }},
		{name: "zero VUs", modify: func(c *api.LoadTestConfig) { c.Scenarios[0].VUs = 0 }},
		{name: "think time", modify: func(c *api.LoadTestConfig) { c.Scenarios[0].ThinkTime = "-1s" }},
		{name: "too many VUs", modify: func(c *api.LoadTestConfig) { c.Scenarios[0].VUs = 151 }},
		{name: "offset past roster", modify: func(c *api.LoadTestConfig) { c.UserOffset = 51 }},
		{name: "negative offset", modify: func(c *api.LoadTestConfig) { c.UserOffset = -1 }},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			config := DefaultConfig()
			tc.modify(&config)
			assert.ErrorIs(t, ValidateConfig(config), ErrInvalidConfig)
		})
	}
}
