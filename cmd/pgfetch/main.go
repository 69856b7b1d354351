// Copyright 2024 The pgfetch Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/alecthomas/kong"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"go.uber.org/automaxprocs/maxprocs"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/pgfetch/pgfetch/build/version"
	"github.com/pgfetch/pgfetch/internal/util/ctxutil"
	"github.com/pgfetch/pgfetch/internal/util/debug"
	"github.com/pgfetch/pgfetch/internal/util/debugbuild"
	"github.com/pgfetch/pgfetch/internal/util/logging"
	"github.com/pgfetch/pgfetch/internal/util/must"
	"github.com/pgfetch/pgfetch/internal/util/observability"
	"github.com/pgfetch/pgfetch/internal/util/startup"
	"github.com/pgfetch/pgfetch/internal/util/state"
	"github.com/pgfetch/pgfetch/pgfetch"
)

// The cli struct represents all command-line commands, fields and flags.
// It's used for parsing the user input.
//
// Keep order in sync with documentation.
//
//nolint:lll // some tags are long
var cli struct {
	URL       string        `default:"${default_url}" help:"PostgreSQL connection URL presented to the gateway."`
	AuthToken string        `default:""               help:"Bearer token for gateways that authenticate over HTTP."`
	Endpoint  string        `default:""               help:"Gateway URL override; derived from the URL host when empty."`
	Timeout   time.Duration `default:"30s"            help:"Deadline for a single gateway exchange."`

	StateDir  string `default:"." help:"Process state directory."`
	DebugAddr string `default:""  help:"Listen address for HTTP handlers for metrics, pprof, etc."`

	OTelEndpoint string `name:"otel-endpoint" default:"" help:"OpenTelemetry OTLP/HTTP trace exporter endpoint (e.g. 127.0.0.1:4318)."`

	Log struct {
		Level  string `default:"${default_log_level}" help:"${help_log_level}"`
		Format string `default:"console"              help:"${help_log_format}" enum:"${enum_log_format}"`
		UUID   bool   `default:"false"                help:"Add instance UUID to all log messages." negatable:""`
	} `embed:"" prefix:"log-"`

	MetricsUUID bool `default:"false" help:"Add instance UUID to all metrics." negatable:""`

	Ping pingParams `cmd:"" help:"Check that the gateway executes statements."`
	Eval evalParams `cmd:"" help:"Execute one SQL statement and print its outcome."`

	Version struct{} `cmd:"" help:"Print version to stdout and exit."`

	Test struct {
		RecordsDir string `default:"" help:"Testing: directory for response record files."`
	} `embed:"" prefix:"test-"`
}

// Additional variables for the kong parsers.
var (
	logLevels = []string{
		zap.DebugLevel.String(),
		zap.InfoLevel.String(),
		zap.WarnLevel.String(),
		zap.ErrorLevel.String(),
	}

	logFormats = []string{"console", "json"}

	kongOptions = []kong.Option{
		kong.Vars{
			"default_log_level": defaultLogLevel().String(),
			"default_url":       "postgresql://postgres@127.0.0.1:5432/postgres",

			"enum_log_format": strings.Join(logFormats, ","),

			"help_log_format": fmt.Sprintf("Log format: '%s'.", strings.Join(logFormats, "', '")),
			"help_log_level":  fmt.Sprintf("Log level: '%s'.", strings.Join(logLevels, "', '")),
		},
		kong.DefaultEnvars("PGFETCH"),
	}
)

func main() {
	kongCtx := kong.Parse(&cli, kongOptions...)

	run(kongCtx.Command())
}

// defaultLogLevel returns the default log level.
func defaultLogLevel() zapcore.Level {
	if version.Get().DebugBuild {
		return zap.DebugLevel
	}

	return zap.InfoLevel
}

// setupState setups state provider.
func setupState() *state.Provider {
	var sp *state.Provider
	var err error

	// https://github.com/alecthomas/kong/issues/389
	if cli.StateDir == "" || cli.StateDir == "-" {
		sp, err = state.NewProvider("")
	} else {
		sp, err = startup.State(cli.StateDir)
	}

	if err != nil {
		log.Fatalf("Failed to set up state provider: %s.", err)
	}

	return sp
}

// setupMetrics setups Prometheus metrics registerer with some metrics.
func setupMetrics(stateProvider *state.Provider) prometheus.Registerer {
	r := prometheus.DefaultRegisterer
	m := stateProvider.MetricsCollector(true)

	// we don't do it by default due to
	// https://prometheus.io/docs/instrumenting/writing_exporters/#target-labels-not-static-scraped-labels
	if cli.MetricsUUID {
		r = prometheus.WrapRegistererWith(
			prometheus.Labels{"uuid": stateProvider.Get().UUID},
			prometheus.DefaultRegisterer,
		)
		m = stateProvider.MetricsCollector(false)
	}

	r.MustRegister(m)

	return r
}

// setupLogger setups zap logger.
func setupLogger(stateProvider *state.Provider, format string) *zap.Logger {
	info := version.Get()

	startupFields := []zap.Field{
		zap.String("version", info.Version),
		zap.String("commit", info.Commit),
		zap.String("branch", info.Branch),
		zap.Bool("dirty", info.Dirty),
		zap.String("package", info.Package),
		zap.Bool("debugBuild", info.DebugBuild),
	}
	logUUID := stateProvider.Get().UUID

	// Similarly to Prometheus, unless requested, don't add UUID to all messages, but log it once at startup.
	if !cli.Log.UUID {
		startupFields = append(startupFields, zap.String("uuid", logUUID))
		logUUID = ""
	}

	level, err := zapcore.ParseLevel(cli.Log.Level)
	if err != nil {
		log.Fatal(err)
	}

	logging.Setup(level, format, logUUID)
	l := zap.L()

	// one-shot commands keep stderr quiet unless asked not to
	l.Debug("Starting pgfetch "+info.Version+"...", startupFields...)

	if debugbuild.Enabled {
		l.Info("This is debug build. The performance will be affected.")
	}

	return l
}

// dumpMetrics dumps all Prometheus metrics to stderr.
func dumpMetrics() {
	mfs := must.NotFail(prometheus.DefaultGatherer.Gather())

	for _, mf := range mfs {
		must.NotFail(expfmt.MetricFamilyToText(os.Stderr, mf))
	}
}

// run sets up the environment based on the provided flags and executes the given command.
func run(cmd string) {
	if cmd == "version" {
		info := version.Get()

		fmt.Fprintln(os.Stdout, "version:", info.Version)
		fmt.Fprintln(os.Stdout, "commit:", info.Commit)
		fmt.Fprintln(os.Stdout, "branch:", info.Branch)
		fmt.Fprintln(os.Stdout, "dirty:", info.Dirty)
		fmt.Fprintln(os.Stdout, "package:", info.Package)
		fmt.Fprintln(os.Stdout, "debugBuild:", info.DebugBuild)

		return
	}

	// to increase a chance of resource finalizers to spot problems
	if debugbuild.Enabled {
		defer func() {
			runtime.GC()
			runtime.GC()
		}()
	}

	// safe to always enable
	runtime.SetBlockProfileRate(10000)

	stateProvider := setupState()

	metricsRegisterer := setupMetrics(stateProvider)

	logger := setupLogger(stateProvider, cli.Log.Format)

	if _, err := maxprocs.Set(maxprocs.Logger(logger.Sugar().Debugf)); err != nil {
		logger.Sugar().Warnf("Failed to set GOMAXPROCS: %s.", err)
	}

	ctx, stop := ctxutil.SigTerm(context.Background())
	defer stop()

	otelShutdown, err := observability.SetupOtel("pgfetch", cli.OTelEndpoint)
	if err != nil {
		logger.Sugar().Fatalf("Failed to set up OpenTelemetry exporter: %s.", err)
	}

	var wg sync.WaitGroup

	// https://github.com/alecthomas/kong/issues/389
	if cli.DebugAddr != "" && cli.DebugAddr != "-" {
		wg.Add(1)

		go func() {
			defer wg.Done()
			debug.RunHandler(ctx, cli.DebugAddr, metricsRegisterer, logger.Named("debug"))
		}()
	}

	config := &pgfetch.Config{
		ConnString:   cli.URL,
		AuthToken:    cli.AuthToken,
		QueryTimeout: cli.Timeout,
		Endpoint:     cli.Endpoint,
		RecordDir:    cli.Test.RecordsDir,
		Logger:       logger,
	}

	switch cmd {
	case "ping":
		err = ping(ctx, config, metricsRegisterer, logger)
	case "eval <query>", "eval <query> <args>":
		err = eval(ctx, config, metricsRegisterer, logger)
	default:
		panic("unhandled command: " + cmd)
	}

	stop()
	wg.Wait()

	if otelShutdown != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), time.Second)
		defer shutdownCancel()

		must.NoError(otelShutdown(shutdownCtx))
	}

	if version.Get().DebugBuild {
		dumpMetrics()
	}

	if err != nil {
		logger.Sugar().Fatalf("Command failed: %s.", err)
	}
}
