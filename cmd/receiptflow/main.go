package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/systemstart/receiptflow/pkg/api"
	"github.com/systemstart/receiptflow/pkg/browser"
	"github.com/systemstart/receiptflow/pkg/collab"
	"github.com/systemstart/receiptflow/pkg/logging"
	"github.com/systemstart/receiptflow/pkg/processing"
	"github.com/systemstart/receiptflow/pkg/steps"
	"github.com/systemstart/receiptflow/pkg/workbook"
)

var version = "dev"

const (
	_ = iota
	exitConfigNotSpecified
	exitDotenvError
	exitLoadConfigurationFileFailed
	exitLoadParametersFailed
	exitInvalidParameters
	exitCredentialsMissing
	exitJournalDirectoryCreateFailed
	exitPipelineSetupFailed
	exitCycleFailures
)

const (
	envIdentity = "RECEIPTFLOW_IDENTITY"
	envSecret   = "RECEIPTFLOW_SECRET"
)

var (
	configFile     string
	parametersFile string
	parameters     []string
	journalDir     string
	loggingType    string
	logLevel       string
	showVersion    bool
)

func init() {
	flag.StringVar(
		&configFile,
		"config",
		"",
		"run configuration YAML file")
	flag.StringVar(
		&parametersFile,
		"parameters",
		"",
		"YAML file with the batch parameter list (replaces batch.parameters)")
	flag.Func(
		"parameter",
		"batch parameter, may be repeated (replaces batch.parameters and -parameters)",
		func(v string) error {
			parameters = append(parameters, v)
			return nil
		})
	flag.StringVar(
		&journalDir,
		"journal-dir",
		"",
		"directory for per-cycle result snapshots (overrides batch.journalDir)")
	flag.StringVar(
		&loggingType,
		"logging-type",
		"tint",
		"logging type: json, text or tint")
	flag.StringVar(
		&logLevel,
		"log-level",
		"info",
		"logging level: debug, info, warn, error")
	flag.BoolVar(
		&showVersion,
		"version",
		false,
		"print version and exit")
}

func main() {
	flag.Parse()

	if showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	_ = logging.Initialize(loggingType, logLevel)

	includeEnv()
	cfg := loadConfig()
	params := resolveParameters(cfg)
	creds := loadCredentials()
	controller := buildController(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var ok bool
	if len(params) == 0 {
		ok = runSingle(ctx, controller, creds)
	} else {
		ok = runBatch(ctx, controller, params, creds)
	}

	if !ok {
		stop()
		os.Exit(exitCycleFailures)
	}
	slog.Info("done")
}

func runSingle(ctx context.Context, c *processing.Controller, creds collab.Credentials) bool {
	r := c.RunSingle(ctx, creds)
	if !r.Success {
		slog.Error("cycle failed", "message", r.Message)
		return false
	}
	return true
}

func runBatch(ctx context.Context, c *processing.Controller, params []string, creds collab.Credentials) bool {
	b := c.RunBatch(ctx, params, creds)
	for _, r := range b.Cycles {
		if !r.Success {
			slog.Error("cycle failed", "cycle", r.Cycle, "parameter", r.Parameter, "message", r.Message)
		}
	}
	if !b.Success {
		slog.Error("batch failed", "message", b.Message)
		return false
	}
	return true
}

func includeEnv() {
	err := godotenv.Load()
	if err != nil {
		if !os.IsNotExist(err) {
			slog.Error("failed to load .env", "error", err)
			os.Exit(exitDotenvError)
		}
		slog.Info("no .env file found")
	} else {
		slog.Info("using .env file")
	}
}

func loadConfig() *api.Config {
	if configFile == "" {
		slog.Error("-config not set")
		os.Exit(exitConfigNotSpecified)
	}

	cfg, err := api.LoadConfig(configFile)
	if err != nil {
		slog.Error("failed to load configuration", "filename", configFile, "error", err)
		os.Exit(exitLoadConfigurationFileFailed)
	}
	if journalDir != "" {
		cfg.Batch.JournalDir = journalDir
	}
	return cfg
}

func resolveParameters(cfg *api.Config) []string {
	if len(parameters) > 0 {
		if err := api.ValidateParameters(parameters); err != nil {
			slog.Error("invalid -parameter values", "error", err)
			os.Exit(exitInvalidParameters)
		}
		return parameters
	}

	if parametersFile != "" {
		params, err := api.LoadParameters(parametersFile)
		if err != nil {
			slog.Error("failed to load parameters", "filename", parametersFile, "error", err)
			os.Exit(exitLoadParametersFailed)
		}
		return params
	}

	return cfg.Batch.Parameters
}

func loadCredentials() collab.Credentials {
	creds := collab.Credentials{
		Identity: strings.TrimSpace(os.Getenv(envIdentity)),
		Secret:   os.Getenv(envSecret),
	}
	if creds.Identity == "" || creds.Secret == "" {
		slog.Error("credentials not set", "identityEnv", envIdentity, "secretEnv", envSecret)
		os.Exit(exitCredentialsMissing)
	}
	return creds
}

func buildController(cfg *api.Config) *processing.Controller {
	pipeline, err := steps.NewPipeline(steps.Deps{
		Config:    cfg,
		Workbook:  workbook.New(cfg.Workbook),
		Approvals: browser.NewApprover(cfg.Browser),
	})
	if err != nil {
		slog.Error("failed to build pipeline", "error", err)
		os.Exit(exitPipelineSetupFailed)
	}

	var journal processing.Journal
	if cfg.Batch.JournalDir != "" {
		if err := os.MkdirAll(cfg.Batch.JournalDir, 0750); err != nil {
			slog.Error("failed to create journal directory", "directory", cfg.Batch.JournalDir, "error", err)
			os.Exit(exitJournalDirectoryCreateFailed)
		}
		journal = processing.FileJournal{Dir: cfg.Batch.JournalDir}
	}

	runner, err := processing.NewRunner(pipeline, processing.LogReporter{}, journal)
	if err != nil {
		slog.Error("failed to build runner", "error", err)
		os.Exit(exitPipelineSetupFailed)
	}
	return processing.NewController(cfg, runner, browser.NewSessionFactory(cfg))
}
