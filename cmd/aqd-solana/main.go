// Command aqd-solana deploys programs and calls their instructions as
// described by an IDL document.
package main

import (
	"context"
	"crypto/ed25519"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/aqd-labs/aqd-solana/pkg/metrics"
	"github.com/aqd-labs/aqd-solana/pkg/pipeline"
	"github.com/aqd-labs/aqd-solana/pkg/solana"
	"github.com/aqd-labs/aqd-solana/pkg/solana/cliconfig"
)

var configPath = flag.String("config", "", "configuration file path")

const usage = `usage: aqd-solana [-config <file>] <command> [flags]

commands:
  deploy [-output-json] <program.so>
  call -idl <file> -instruction <name> [-program-id <address>] [-args <json>]
       [-accounts a,b,...] [-simulate] [-output-json]
  describe -idl <file> [-instruction <name>] [-output-json]
`

// environment holds what every command needs to talk to the cluster.
type environment struct {
	config   Config
	client   solana.Client
	pipeline *pipeline.Pipeline
	payer    ed25519.PrivateKey
}

func main() {
	flag.Usage = func() {
		fmt.Fprint(flag.CommandLine.Output(), usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	if err := run(flag.Args()); err != nil {
		reportError(err)
		os.Exit(1)
	}
}

func run(args []string) error {
	if len(args) == 0 {
		flag.Usage()
		return errors.New("missing command")
	}

	cliConfigPath, err := cliconfig.DefaultPath()
	if err != nil {
		logrus.WithError(err).Debug("solana cli config unavailable")
		cliConfigPath = ""
	}

	config, err := loadConfig(*configPath, cliConfigPath)
	if err != nil {
		return err
	}

	var metricsProvider *newrelic.Application
	if len(config.NewRelicLicenseKey) > 0 {
		metricsProvider, err = newrelic.NewApplication(
			newrelic.ConfigFromEnvironment(),
			newrelic.ConfigAppName(config.AppName),
			newrelic.ConfigLicense(config.NewRelicLicenseKey),
			newrelic.ConfigDistributedTracerEnabled(true),
			newrelic.ConfigAppLogForwardingEnabled(true),
		)
		if err != nil {
			return errors.Wrap(err, "error connecting to new relic")
		}
	}

	configureLogger(config, metricsProvider)

	if args[0] == "describe" {
		return runDescribe(args[1:])
	}

	env, err := newEnvironment(config)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ctx, end := metrics.WithApplication(ctx, metricsProvider, args[0])
	defer end()

	switch args[0] {
	case "deploy":
		return runDeploy(ctx, env, args[1:])
	case "call":
		return runCall(ctx, env, args[1:])
	}

	flag.Usage()
	return errors.Errorf("unknown command %q", args[0])
}

func newEnvironment(config Config) (*environment, error) {
	endpoint, err := config.endpoint()
	if err != nil {
		return nil, err
	}

	if config.KeypairPath == "" {
		return nil, errors.New("no keypair configured")
	}
	payer, err := cliconfig.LoadKeypair(config.KeypairPath)
	if err != nil {
		return nil, err
	}

	client := solana.New(string(endpoint))

	return &environment{
		config:   config,
		client:   client,
		pipeline: pipeline.New(client, pipeline.WithSettings(config.settings())),
		payer:    payer,
	}, nil
}

func configureLogger(config Config, metricsProvider *newrelic.Application) {
	if metricsProvider != nil {
		logrus.SetFormatter(metrics.NewCustomNewRelicLogFormatter(metricsProvider, &logrus.JSONFormatter{}))
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{})
	}

	level, err := logrus.ParseLevel(strings.ToLower(config.LogLevel))
	if err != nil {
		logrus.StandardLogger().WithField("log_level", config.LogLevel).Warn("unknown log level, ignoring")
	} else {
		logrus.SetLevel(level)
	}

	// stdout carries command output
	logrus.SetOutput(os.Stderr)
}

func reportError(err error) {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)

	var execErr *pipeline.ProgramExecutionError
	if errors.As(err, &execErr) && len(execErr.Logs) > 0 {
		fmt.Fprintln(os.Stderr, "logs:")
		for _, line := range execErr.Logs {
			fmt.Fprintf(os.Stderr, "  %s\n", line)
		}
	}
}
