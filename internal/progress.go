// Copyright (c) 2020 Richard Youngkin. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package internal

import (
	"io"
	"strconv"
	"time"

	"github.com/vbauerster/mpb/v5"
	"github.com/vbauerster/mpb/v5/decor"
)

const progressRefresh = 200 * time.Millisecond

// Progress displays one bar per scenario showing how much of the scenario's
// run duration has elapsed. A nil *Progress displays nothing.
type Progress struct {
	p *mpb.Progress
}

// NewProgress returns a Progress writing to w
func NewProgress(w io.Writer) *Progress {
	return &Progress{
		p: mpb.New(mpb.WithOutput(w), mpb.WithWidth(48), mpb.WithRefreshRate(progressRefresh)),
	}
}

// ScenarioBar tracks a single scenario
type ScenarioBar struct {
	bar   *mpb.Bar
	total int64
}

// AddScenario adds a bar for a scenario that runs for runDur
func (pr *Progress) AddScenario(name string, vus int, runDur time.Duration) *ScenarioBar {
	if pr == nil {
		return nil
	}
	total := int64(runDur / time.Millisecond)
	if total < 1 {
		total = 1
	}
	bar := pr.p.AddBar(total,
		mpb.PrependDecorators(
			decor.Name(name, decor.WC{W: len(name) + 1, C: decor.DidentRight}),
			decor.Name(formatVUs(vus), decor.WCSyncSpaceR),
		),
		mpb.AppendDecorators(
			decor.Elapsed(decor.ET_STYLE_GO, decor.WCSyncSpace),
			decor.Percentage(decor.WCSyncSpace),
		),
	)
	return &ScenarioBar{bar: bar, total: total}
}

// Track advances the bar with the elapsed time since start until doneC is
// closed, at which point the bar is completed.
func (sb *ScenarioBar) Track(start time.Time, doneC <-chan struct{}) {
	if sb == nil {
		return
	}
	ticker := time.NewTicker(progressRefresh)
	defer ticker.Stop()
	for {
		select {
		case <-doneC:
			sb.bar.SetTotal(sb.total, true)
			return
		case <-ticker.C:
			elapsed := int64(time.Since(start) / time.Millisecond)
			if elapsed >= sb.total {
				// Completing the bar is left to doneC, VUs may still be
				// finishing their last iteration.
				elapsed = sb.total - 1
			}
			sb.bar.SetCurrent(elapsed)
		}
	}
}

// Wait blocks until every bar has completed and been rendered
func (pr *Progress) Wait() {
	if pr == nil {
		return
	}
	pr.p.Wait()
}

func formatVUs(vus int) string {
	if vus == 1 {
		return "1 VU"
	}
	return strconv.Itoa(vus) + " VUs"
}
