// Copyright (c) 2020 Richard Youngkin. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/youngkin/availbench/internal"
)

// exitThresholdsFailed is the exit status when the run completes but one or
// more thresholds fail
const exitThresholdsFailed = 99

func main() {
	usage := `
Usage: availbench [-config <ConfigFileLocation>] [options...]

Compares the latency and error rate of the service logic and SQL logic
room availability update endpoints under concurrent load. Without a config
file the run uses 100 VUs per endpoint for 10 seconds against
http://localhost:8080.

Options:
  -config   Optional JSON or YAML (.yaml/.yml) run configuration
  -url      Base URL of the service under test, overrides the config file
  -loglevel Logging level. Default is 'WARN' (2). 0 is DEBUG, 1 INFO, up to 4 FATAL
  -output   Report format, 'text' or 'json'. Overrides the config file
  -seed     Seed for the generated payloads. 0, the default, varies every run
  -quiet    Don't display progress bars
  -help     This usage message

Exit status is 0 when every threshold passes, 99 when a threshold fails and
1 when the run couldn't be started.`

	configFile := flag.String("config", "", "path and filename containing the runtime configuration")
	baseURL := flag.String("url", "", "base URL of the service under test")
	logLevel := flag.Int("loglevel", int(zerolog.WarnLevel), "log level, 0 for debug, 1 info, 2 warn, ...")
	output := flag.String("output", "", "report format, 'text' or 'json'")
	seed := flag.Int64("seed", 0, "seed for generated payloads, 0 varies every run")
	quiet := flag.Bool("quiet", false, "don't display progress bars")
	help := flag.Bool("help", false, "help will emit detailed usage instructions and exit")
	flag.Parse()

	if *help {
		fmt.Println(usage)
		return
	}

	zerolog.SetGlobalLevel(zerolog.Level(*logLevel))
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.StampMilli})
	log.Info().Msgf("availbench started with config from %q", *configFile)

	config, err := internal.LoadConfig(*configFile)
	if err != nil {
		log.Fatal().Err(err).Msg("error loading configuration")
	}
	if *baseURL != "" {
		config.BaseURL = *baseURL
	}
	if *output != "" {
		config.OutputType = *output
	}
	if *seed != 0 {
		config.Seed = *seed
	}
	if err = internal.ValidateConfig(config); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	outputType := internal.ParseOutputType(config.OutputType)
	var progress *internal.Progress
	if !*quiet && outputType == internal.Text {
		progress = internal.NewProgress(os.Stderr)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case <-sigs:
			log.Debug().Msg("availbench: SIGTERM caught")
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigs)
	}()

	results, err := internal.Run(ctx, config, progress)
	if err != nil {
		if errors.Is(err, internal.ErrTokenSetup) {
			log.Fatal().Err(err).Msg("setup failed, no load was generated")
		}
		log.Fatal().Err(err).Msg("run failed")
	}

	if err = internal.PrintReport(os.Stdout, results, outputType); err != nil {
		log.Error().Err(err).Msg("error printing report")
	}

	log.Info().Msg("availbench: DONE")
	if !results.Passed {
		cancel()
		os.Exit(exitThresholdsFailed)
	}
}
