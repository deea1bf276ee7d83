package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ecordell/optgen/helpers"
	"github.com/fatih/color"
	"github.com/jzelinskie/cobrautil/v2"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/kubev2v/hypervisor-collector/internal/config"
	"github.com/kubev2v/hypervisor-collector/internal/gatherers"
	"github.com/kubev2v/hypervisor-collector/internal/models"
	"github.com/kubev2v/hypervisor-collector/internal/services"
	"github.com/kubev2v/hypervisor-collector/internal/sources"
	"github.com/kubev2v/hypervisor-collector/internal/store"
	"github.com/kubev2v/hypervisor-collector/pkg/scc"
)

// Version is set at build time.
var Version = "dev"

var (
	ErrRunAsRoot          = errors.New("refusing to run as root: use a dedicated unprivileged user")
	ErrMissingCredentials = errors.New("SCC credentials are required to upload")
)

func NewRunCommand(cfg *config.Configuration) *cobra.Command {
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Collect hypervisor details and upload them to SCC",
		Example: `  # Collect and upload using ~/.config/scc-hypervisor-collector.yaml
  hypervisor-collector run

  # Validate the configuration without contacting any backend
  hypervisor-collector run --check

  # Collect only and keep the results for a later upload
  hypervisor-collector run --mode retrieve-only --results-file ~/results.yaml

  # Upload previously collected results
  hypervisor-collector run --mode upload-only --results-file ~/results.yaml`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if os.Geteuid() == 0 {
				return ErrRunAsRoot
			}
			if err := validateConfiguration(cfg); err != nil {
				return err
			}

			zap.S().Infow("using configuration",
				"collector", helpers.Flatten(cfg.Collector.DebugMap()),
				"upload", helpers.Flatten(cfg.Upload.DebugMap()),
			)

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGHUP, syscall.SIGTERM, syscall.SIGQUIT)
			defer cancel()

			return run(ctx, cfg, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	registerFlags(runCmd, cfg)

	return runCmd
}

func run(ctx context.Context, cfg *config.Configuration, stdout, stderr io.Writer) error {
	mode := models.RunMode(cfg.Collector.Mode)
	registry := gatherers.DefaultRegistry()

	loader := sources.NewLoader(cfg.Collector.ConfigFile, cfg.Collector.ConfigDir,
		sources.WithPermissionCheck(!cfg.Collector.SkipPermissionCheck))
	manager := services.NewConfigManager(loader, registry, services.MergeOptions{
		// upload-only runs need the credentials, not the backends
		Strict:             !cfg.Collector.Check && mode.Collects(),
		RequireCredentials: mode.Uploads(),
	})

	data, err := manager.Load()
	if err != nil {
		return err
	}
	if cfg.Collector.Check {
		return reportConfiguration(data, stdout, stderr)
	}
	printErrors(stderr, "configuration", data.ErrorMessages())

	metrics := services.NewMetrics()
	resultsStore := store.NewResultsStore(!cfg.Collector.SkipPermissionCheck)

	var records []models.HypervisorRecord
	if mode.Collects() {
		sched := services.NewCollectionScheduler(data, registry,
			services.WithWorkers(cfg.Collector.Workers),
			services.WithBackendTimeout(cfg.Collector.BackendTimeout),
			services.WithMetrics(metrics),
		)
		if err := sched.Run(ctx); err != nil {
			return err
		}
		zap.S().Infow("collection finished", "run", sched.RunID(),
			"collected", len(sched.Hypervisors()), "failed", len(sched.Failures()))

		failures := make([]string, 0, len(sched.Failures()))
		for _, f := range sched.Failures() {
			failures = append(failures, fmt.Sprintf("[%s] %s", f.BackendID, f.Message))
		}
		printErrors(stderr, "collection", failures)

		records = sched.Hypervisors()
		if err := printRecords(stdout, records); err != nil {
			return err
		}

		if cfg.Collector.ResultsFile != "" {
			if err := resultsStore.Save(cfg.Collector.ResultsFile, sched.Results(), time.Now()); err != nil {
				return err
			}
		}
	} else {
		records, err = resultsStore.Load(cfg.Collector.ResultsFile)
		if err != nil {
			return err
		}
	}

	if mode.Uploads() {
		if err := upload(ctx, cfg, data.Credentials, metrics, records, stderr); err != nil {
			return err
		}
	}

	if cfg.Collector.MetricsFile != "" {
		if err := metrics.WriteToTextfile(cfg.Collector.MetricsFile); err != nil {
			zap.S().Errorw("failed to write metrics", "path", cfg.Collector.MetricsFile, "error", err)
		}
	}

	return nil
}

func upload(ctx context.Context, cfg *config.Configuration, creds *models.SccCredentials, metrics *services.Metrics,
	records []models.HypervisorRecord, stderr io.Writer) error {
	if len(records) == 0 {
		zap.S().Warn("nothing to upload")
		return nil
	}
	if !creds.Complete() {
		return ErrMissingCredentials
	}

	client, err := scc.NewClient(cfg.Upload.SccURL, creds.Username, creds.Password,
		scc.WithVersion(Version),
		scc.WithRetries(cfg.Upload.Retries, 0),
		scc.WithTimeout(cfg.Upload.Timeout),
	)
	if err != nil {
		return err
	}

	report, err := services.NewUploader(client, metrics).Upload(ctx, records)
	if err != nil {
		return err
	}

	failures := make([]string, 0, len(report.Failures))
	for _, f := range report.Failures {
		failures = append(failures, fmt.Sprintf("[%s] %s", f.BackendID, f.Message))
	}
	printErrors(stderr, "upload", failures)

	zap.S().Infow("upload completed", "uploaded", len(report.Uploaded), "failed", len(report.Failures))
	return nil
}

// reportConfiguration prints the recorded configuration errors. A check never
// fails on recoverable errors.
func reportConfiguration(data *models.ConfigData, stdout, stderr io.Writer) error {
	if !data.Valid() {
		printErrors(stderr, "configuration", data.ErrorMessages())
		return nil
	}
	fmt.Fprintf(stdout, "configuration is valid: %d backends (%d enabled) from %d sources\n",
		len(data.Backends), len(data.EnabledBackends()), len(data.Sources))
	for _, b := range data.Backends {
		fmt.Fprintf(stdout, "  %s\n", b)
	}
	return nil
}

func printRecords(w io.Writer, records []models.HypervisorRecord) error {
	for _, r := range records {
		out, err := yaml.Marshal(r.Details)
		if err != nil {
			return fmt.Errorf("failed to render details of %s: %w", r.Backend.ID, err)
		}
		fmt.Fprintf(w, "[%s] hosts: %s\n%s\n", r.Backend.ID, strings.Join(r.Details.Hosts(), ", "), out)
	}
	return nil
}

func printErrors(w io.Writer, stage string, msgs []string) {
	if len(msgs) == 0 {
		return
	}
	red := color.New(color.FgRed, color.Bold)
	red.Fprintf(w, "%d %s error(s):\n", len(msgs), stage)
	for _, m := range msgs {
		fmt.Fprintf(w, "  %s\n", m)
	}
}

func validateConfiguration(cfg *config.Configuration) error {
	mode, err := models.ParseRunMode(cfg.Collector.Mode)
	if err != nil {
		return err
	}

	if cfg.Collector.Workers < 1 {
		return fmt.Errorf("invalid workers %d: must be at least 1", cfg.Collector.Workers)
	}

	if cfg.Collector.BackendTimeout < 0 {
		return fmt.Errorf("invalid backend-timeout %s: must not be negative", cfg.Collector.BackendTimeout)
	}

	if mode == models.RunModeUploadOnly && cfg.Collector.ResultsFile == "" {
		return errors.New("results-file must be set when mode is upload-only")
	}

	if cfg.Upload.Retries < 0 {
		return fmt.Errorf("invalid scc-retries %d: must not be negative", cfg.Upload.Retries)
	}

	return nil
}

func registerFlags(cmd *cobra.Command, config *config.Configuration) {
	nfs := cobrautil.NewNamedFlagSets(cmd)

	configFlagSet := nfs.FlagSet(color.New(color.FgBlue, color.Bold).Sprint("Configuration"))
	registerConfigFlags(configFlagSet, config)

	collectorFlagSet := nfs.FlagSet(color.New(color.FgBlue, color.Bold).Sprint("Collector"))
	registerCollectorFlags(collectorFlagSet, config)

	uploadFlagSet := nfs.FlagSet(color.New(color.FgBlue, color.Bold).Sprint("Upload"))
	registerUploadFlags(uploadFlagSet, config)

	nfs.AddFlagSets(cmd)
}

func registerConfigFlags(flagSet *pflag.FlagSet, config *config.Configuration) {
	flagSet.StringVar(&config.Collector.ConfigFile, "config", config.Collector.ConfigFile, "Path to the main configuration file")
	flagSet.StringVar(&config.Collector.ConfigDir, "config-dir", config.Collector.ConfigDir, "Directory of additional .yaml, .yml or .json configuration files")
	flagSet.BoolVar(&config.Collector.Check, "check", config.Collector.Check, "Validate the configuration and exit")
	flagSet.BoolVar(&config.Collector.SkipPermissionCheck, "skip-permission-check", config.Collector.SkipPermissionCheck, "Do not enforce ownership and mode of configuration and results files")
}

func registerCollectorFlags(flagSet *pflag.FlagSet, config *config.Configuration) {
	flagSet.StringVar(&config.Collector.Mode, "mode", config.Collector.Mode, "Run mode: full, retrieve-only or upload-only")
	flagSet.StringVar(&config.Collector.ResultsFile, "results-file", config.Collector.ResultsFile, "File the collected results are saved to, or uploaded from in upload-only mode")
	flagSet.IntVar(&config.Collector.Workers, "workers", config.Collector.Workers, "Number of backends collected concurrently")
	flagSet.DurationVar(&config.Collector.BackendTimeout, "backend-timeout", config.Collector.BackendTimeout, "Maximum duration of a single backend collection, 0 disables it")
	flagSet.StringVar(&config.Collector.MetricsFile, "metrics-file", config.Collector.MetricsFile, "Write run metrics in Prometheus text format to this file")
}

func registerUploadFlags(flagSet *pflag.FlagSet, config *config.Configuration) {
	flagSet.StringVar(&config.Upload.SccURL, "scc-url", config.Upload.SccURL, "Base URL of the SUSE Customer Center API")
	flagSet.IntVar(&config.Upload.Retries, "scc-retries", config.Upload.Retries, "Retries of a throttled or failed upload")
	flagSet.DurationVar(&config.Upload.Timeout, "scc-timeout", config.Upload.Timeout, "Timeout of a single SCC request")
}
