// Copyright (c) 2020 Richard Youngkin. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package internal

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"sort"
	"strings"
	"text/template"
	"time"

	"github.com/youngkin/availbench/api"
)

// OutputType specifies the output formate of the final report. There are
// 2 values, 'text' and 'json'. 'text' will present a human readable form.
// 'json' will present the JSON structures that capture the detailed run
// stats.
type OutputType int

const (
	// Text specifies a human readable report will be produced
	Text OutputType = iota
	// JSON indicates the RunResults will be written as JSON
	JSON
)

// ParseOutputType maps "text" and "json" to an OutputType. Anything else
// is treated as text.
func ParseOutputType(s string) OutputType {
	if strings.EqualFold(s, "json") {
		return JSON
	}
	return Text
}

var tmpltFuncs = template.FuncMap{
	"formatFloat":      formatFloat,
	"formatSeconds":    formatSeconds,
	"formatPercentile": formatPercentile,
	"formatCheck":      formatCheck,
	"formatPassed":     formatPassed,
	"format100Million": format100Million,
}

func formatFloat(f float64) string {
	return fmt.Sprintf("%4.4f", f)
}

func formatSeconds(d time.Duration) string {
	return fmt.Sprintf("%04.4f", d.Seconds())
}

func formatPercentile(p int, d []time.Duration) string {
	val := calcPercentiles(p, d)
	return formatSeconds(val)
}

func formatCheck(cs *api.CheckStats) string {
	mark := "✓"
	if cs.Fails > 0 {
		mark = "✗"
	}
	total := cs.Passes + cs.Fails
	pct := 0.0
	if total > 0 {
		pct = float64(cs.Passes) * 100 / float64(total)
	}
	return fmt.Sprintf("%s %6.2f%% (%d/%d)", mark, pct, cs.Passes, total)
}

func formatPassed(passed bool) string {
	if passed {
		return "PASS"
	}
	return "FAIL"
}

func format100Million(i int64) string {
	return fmt.Sprintf("%9v", i)
}

var runSummTmplt = `
Run Summary:
	             Run ID: {{ .RunID }}
	        Total Rqsts: {{ .RunSummary.RqstStats.TotalRqsts }}
	       Failed Rqsts: {{ .RunSummary.FailedRqsts }}
	          Rqsts/sec: {{ formatFloat .RunSummary.RqstRatePerSec }}
	Run Duration (secs): {{ formatSeconds .RunSummary.RunDurationNanos }}
`

var rqstLatencyTmplt = `
Request Latency (secs): Min      Median   P90      P95      P99      Max      Avg
	                    {{ formatPercentile 0 .TimingResultsNanos }}   {{ formatPercentile 50 .TimingResultsNanos }}   {{ formatPercentile 90 .TimingResultsNanos }}   {{ formatPercentile 95 .TimingResultsNanos }}   {{ formatPercentile 99 .TimingResultsNanos }}   {{ formatSeconds .MaxRqstDurationNanos }}   {{ formatSeconds .AvgRqstDurationNanos }}
`

// Pass in the ScenarioResults in display order
var scenarioDetailsTmplt = `
Scenario Details(secs): {{ range . }}
  {{ .Name }} ({{ .Metric }}):
	  Iterations   Requests     Failed   Min        Median     P90        P95        P99        Max
	  {{ format100Million .Iterations }}  {{ format100Million .RqstStats.TotalRqsts }}  {{ format100Million .FailedRqsts }}   {{ formatPercentile 0 .RqstStats.TimingResultsNanos }}     {{ formatPercentile 50 .RqstStats.TimingResultsNanos }}     {{ formatPercentile 90 .RqstStats.TimingResultsNanos }}     {{ formatPercentile 95 .RqstStats.TimingResultsNanos }}     {{ formatPercentile 99 .RqstStats.TimingResultsNanos }}     {{ formatSeconds .RqstStats.MaxRqstDurationNanos }}
	  Checks: {{ range $name, $cs := .Checks }}
	    {{ formatCheck $cs }} {{ $name }}{{ end }}
{{ end }}`

var thresholdsTmplt = `
Thresholds: {{ range . }}
	{{ formatPassed .Passed }} {{ .Metric }} {{ .Condition }}, {{ .Observed }}{{ end }}
`

// PrintReport writes the run results to w in the requested format
func PrintReport(w io.Writer, results api.RunResults, ot OutputType) error {
	if ot == JSON {
		rsjson, err := json.MarshalIndent(results, "", "  ")
		if err != nil {
			return fmt.Errorf("error marshaling RunResults: %w", err)
		}
		_, err = fmt.Fprintf(w, "%s\n", rsjson)
		return err
	}

	scenarios := make([]*api.ScenarioResults, 0, len(results.Scenarios))
	for _, sr := range results.Scenarios {
		scenarios = append(scenarios, sr)
	}
	sort.Slice(scenarios, func(i, j int) bool { return scenarios[i].Name < scenarios[j].Name })

	sections := []struct {
		name   string
		tmplt  string
		values interface{}
	}{
		{"runSummary", runSummTmplt, results},
		{"rqstLatency", rqstLatencyTmplt, results.RunSummary.RqstStats},
		{"scenarioDetails", scenarioDetailsTmplt, scenarios},
		{"thresholds", thresholdsTmplt, results.Thresholds},
	}
	for _, s := range sections {
		tmplt, err := template.New(s.name).Funcs(tmpltFuncs).Parse(s.tmplt)
		if err != nil {
			return fmt.Errorf("error parsing %s template: %w", s.name, err)
		}
		if err = tmplt.Execute(w, s.values); err != nil {
			return fmt.Errorf("error executing %s template: %w", s.name, err)
		}
	}
	return nil
}

func calcPercentiles(percentile int, results []time.Duration) time.Duration {
	if len(results) == 0 {
		return 0
	}

	if percentile == 0 {
		return calcPMin(results)
	}

	if percentile == 50 {
		return calcPMedian(results)
	}

	sort.Slice(results, func(i, j int) bool { return results[i] < results[j] })

	// applying math.Ceil to the results of math.Ceil is required to round up
	// to the next results cell when len(results) is a small number, e.g., like
	// 2. Otherwise Median is greater than P99.
	p := math.Ceil(math.Ceil(float64((len(results)-1)*percentile)) / 100)
	return results[int(p)]
}

func calcPMin(results []time.Duration) time.Duration {
	if len(results) == 0 {
		return 0
	}
	sort.Slice(results, func(i, j int) bool { return results[i] < results[j] })
	return results[0]
}

func calcPMedian(results []time.Duration) time.Duration {
	if len(results) == 0 {
		return 0
	}

	sort.Slice(results, func(i, j int) bool { return results[i] < results[j] })

	isEven := len(results)%2 == 0
	mNumber := len(results) / 2

	if !isEven {
		return results[mNumber]
	}
	return (results[mNumber-1] + results[mNumber]) / time.Duration(2)
}
