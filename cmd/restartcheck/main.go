package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	cron "github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/restartcheck/restartcheck/internal/audit"
	"github.com/restartcheck/restartcheck/internal/cli"
	"github.com/restartcheck/restartcheck/internal/config"
	"github.com/restartcheck/restartcheck/internal/directory"
	"github.com/restartcheck/restartcheck/internal/history"
	"github.com/restartcheck/restartcheck/internal/notify"
	"github.com/restartcheck/restartcheck/internal/probe"
	"github.com/restartcheck/restartcheck/internal/report"
	"github.com/restartcheck/restartcheck/internal/targets"
)

var (
	version = "unreleased"

	clustersFile    string
	configFile      string
	consulAddr      string
	debug           bool
	detailed        bool
	directoryKind   string
	exporterMetric  string
	exporterPort    int
	historyDB       string
	logFile         string
	logFormat       string
	messageTemplate string
	metricsAddr     string
	notifyURLs      []string
	output          string
	password        string
	probeCommand    string
	probeKind       string
	probeTimeout    time.Duration
	schedule        string
	throttleLimit   int
	username        string
	winrmHTTPS      bool
	winrmHost       string
	winrmInsecure   bool
	winrmPort       int
)

func main() {
	if err := NewRootCommand().Execute(); err != nil {
		slog.Error("restartcheck failed", "error", err)
		os.Exit(1)
	}
}

// NewRootCommand builds the command tree and binds all flags.
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "restartcheck [flags] [cluster ...]",
		Short: "Audit clustered fleets for pending restarts",
		Long: "restartcheck walks a list of clusters, probes every member node for a\n" +
			"pending restart and writes one CSV row per node, plus one row per\n" +
			"cluster that could not be audited, so the report is always complete.",
		Args:         cobra.ArbitraryArgs,
		PreRunE:      preRun,
		RunE:         run,
		SilenceUsage: true,
	}

	flags := rootCmd.Flags()
	flags.StringVar(&clustersFile, "clusters-file", "",
		"CSV file with a Cluster column naming the clusters to audit")
	flags.StringVar(&configFile, "config", "",
		"YAML file supplying defaults for any flag not set explicitly")
	flags.StringVar(&consulAddr, "consul-addr", "",
		"consul address for the consul directory (default: consul env handling)")
	flags.BoolVar(&debug, "debug", false,
		"enable debug logging")
	flags.BoolVar(&detailed, "detailed", false,
		"add a Diagnostic column with failure descriptions to the report")
	flags.StringVar(&directoryKind, "directory", "winrm",
		"cluster discovery backend: winrm or consul")
	flags.StringVar(&exporterMetric, "exporter-metric", "node_reboot_required",
		"metric read by the exporter probe")
	flags.IntVar(&exporterPort, "exporter-port", 9100,
		"port scraped by the exporter probe")
	flags.StringVar(&historyDB, "history-db", "",
		"sqlite file recording run history (disabled when empty)")
	flags.StringVar(&logFile, "log-file", "",
		"write logs to this size-rotated file instead of stderr")
	flags.StringVar(&logFormat, "log-format", "text",
		"log format: text or json")
	flags.StringVar(&messageTemplate, "message-template", notify.DefaultTemplate,
		"notification text, formatted with pending, total and failed counts")
	flags.StringVar(&metricsAddr, "metrics-addr", "",
		"serve prometheus metrics on this address (disabled when empty)")
	flags.StringArrayVar(&notifyURLs, "notify-url", nil,
		"shoutrrr URL notified with the run summary, repeatable")
	flags.StringVar(&output, "output", "",
		"report file path, stdout when empty")
	flags.StringVar(&password, "password", "",
		"WinRM password, prefer the RESTARTCHECK_PASSWORD environment variable")
	flags.StringVar(&probeCommand, "probe-command", "",
		"command run per node by the command probe, {} is replaced by the node address")
	flags.StringVar(&probeKind, "probe", "winrm",
		"node probe backend: winrm, exporter or command")
	flags.DurationVar(&probeTimeout, "probe-timeout", audit.DefaultProbeTimeout,
		"timeout per node probe, between 5s and 300s")
	flags.StringVar(&schedule, "schedule", "",
		"cron expression for repeated audits, single run when empty")
	flags.IntVar(&throttleLimit, "throttle-limit", audit.DefaultThrottleLimit,
		"maximum probes in flight, between 1 and 50")
	flags.StringVar(&username, "username", "",
		"WinRM username")
	flags.BoolVar(&winrmHTTPS, "winrm-https", false,
		"use HTTPS for WinRM connections")
	flags.StringVar(&winrmHost, "winrm-host", "",
		"management host for cluster discovery, the cluster name is dialled when empty")
	flags.BoolVar(&winrmInsecure, "winrm-insecure", false,
		"skip TLS verification for WinRM connections")
	flags.IntVar(&winrmPort, "winrm-port", 0,
		"WinRM port, defaults to 5985 or 5986 depending on --winrm-https")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version and exit",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(version)
		},
	})

	return rootCmd
}

func preRun(cmd *cobra.Command, args []string) error {
	if err := cli.LoadFromEnv(cmd.Flags()); err != nil {
		return err
	}
	if configFile != "" {
		if err := config.Apply(cmd.Flags(), configFile); err != nil {
			return err
		}
	}
	return validate()
}

// validate rejects bad settings before anything is dialled.
func validate() error {
	if throttleLimit < audit.MinThrottleLimit || throttleLimit > audit.MaxThrottleLimit {
		return fmt.Errorf("throttle-limit %d out of range [%d, %d]",
			throttleLimit, audit.MinThrottleLimit, audit.MaxThrottleLimit)
	}
	if probeTimeout < audit.MinProbeTimeout || probeTimeout > audit.MaxProbeTimeout {
		return fmt.Errorf("probe-timeout %s out of range [%s, %s]",
			probeTimeout, audit.MinProbeTimeout, audit.MaxProbeTimeout)
	}
	switch directoryKind {
	case "winrm", "consul":
	default:
		return fmt.Errorf("unknown directory %q, want winrm or consul", directoryKind)
	}
	switch probeKind {
	case "winrm", "exporter":
	case "command":
		if probeCommand == "" {
			return errors.New("--probe-command is required with --probe command")
		}
	default:
		return fmt.Errorf("unknown probe %q, want winrm, exporter or command", probeKind)
	}
	return nil
}

func run(cmd *cobra.Command, args []string) error {
	logger := cli.NewLogger(cli.LogWriter(logFile), debug, logFormat)
	slog.SetDefault(logger)
	logger.Info("starting restartcheck", "version", version)

	clusters, err := targets.Load(args, clustersFile)
	if err != nil {
		return err
	}

	dir, err := buildDirectory()
	if err != nil {
		return err
	}
	prober, err := buildProber()
	if err != nil {
		return err
	}

	var store *history.Store
	if historyDB != "" {
		store, err = history.Open(historyDB)
		if err != nil {
			return err
		}
		defer store.Close()
	}
	notifier := notify.New(notifyURLs, messageTemplate, logger)

	if metricsAddr != "" {
		http.Handle("/metrics", promhttp.Handler())
		go func() {
			if err := http.ListenAndServe(metricsAddr, nil); err != nil { // #nosec G114
				logger.Error("metrics listener failed", "error", err)
			}
		}()
	}

	ctx := cli.SetupSignalHandler()

	if schedule == "" {
		return runOnce(ctx, logger, clusters, dir, prober, store, notifier, output)
	}

	c := cron.New(cron.WithLogger(&cli.CronSlogAdapter{Logger: logger}))
	_, err = c.AddFunc(schedule, func() {
		if err := runOnce(ctx, logger, clusters, dir, prober, store, notifier,
			timestampedPath(output, time.Now())); err != nil {
			logger.Error("scheduled audit failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("parsing schedule %q: %w", schedule, err)
	}
	logger.Info("running on schedule", "schedule", schedule)
	c.Start()
	<-ctx.Done()
	logger.Info("stopping scheduler")
	stopCtx := c.Stop()
	<-stopCtx.Done()
	return nil
}

func runOnce(ctx context.Context, logger *slog.Logger, clusters []audit.ClusterTarget,
	dir audit.Directory, prober probe.Prober, store *history.Store,
	notifier *notify.Notifier, outPath string) error {
	started := time.Now()
	dispatcher := audit.NewDispatcher(ctx, prober, throttleLimit, probeTimeout)
	orch := audit.NewOrchestrator(dir, dispatcher, logger)
	results := orch.Run(ctx, clusters)
	dispatcher.Shutdown()
	finished := time.Now()

	summary := audit.Summarize(results)
	logger.Info("audit finished",
		"clusters", len(clusters), "rows", summary.Total,
		"pendingRestart", summary.PendingRestart, "failed", summary.Failed,
		"elapsed", finished.Sub(started).Round(time.Millisecond),
		"peakProbes", dispatcher.Peak())

	if outPath == "" {
		if err := report.WriteCSV(os.Stdout, results, detailed); err != nil {
			return err
		}
	} else {
		if err := report.WriteFile(outPath, results, detailed); err != nil {
			return err
		}
		logger.Info("report written", "path", outPath, "rows", summary.Total)
	}

	if store != nil {
		if last, at, ok, err := store.LastSummary(); err != nil {
			logger.Warn("reading previous run failed", "error", err)
		} else if ok {
			logger.Info("change since previous run",
				"pendingRestartDelta", summary.PendingRestart-last.PendingRestart,
				"failedDelta", summary.Failed-last.Failed,
				"previousRun", at.Format(time.RFC3339))
		}
		if err := store.Record(started, finished, summary, results); err != nil {
			logger.Warn("recording run failed", "error", err)
		}
	}

	if err := notifier.Send(summary); err != nil {
		logger.Error("notifying failed", "error", err)
	}
	return nil
}

func buildDirectory() (audit.Directory, error) {
	switch directoryKind {
	case "consul":
		return directory.NewConsulDirectory(consulAddr)
	default:
		return directory.NewWinRMDirectory(directory.WinRMConfig{
			Host:     winrmHost,
			Port:     winrmPort,
			HTTPS:    winrmHTTPS,
			Insecure: winrmInsecure,
			Username: username,
			Password: password,
			Timeout:  probeTimeout,
		}), nil
	}
}

func buildProber() (probe.Prober, error) {
	switch probeKind {
	case "exporter":
		return probe.NewExporterProber(probe.ExporterConfig{
			Port:   exporterPort,
			Metric: exporterMetric,
		}), nil
	case "command":
		return probe.NewCommandProber(probeCommand)
	default:
		return probe.NewWinRMProber(probe.WinRMConfig{
			Port:     winrmPort,
			HTTPS:    winrmHTTPS,
			Insecure: winrmInsecure,
			Username: username,
			Password: password,
			Timeout:  probeTimeout,
		}), nil
	}
}

// timestampedPath inserts the run time before the extension so scheduled
// runs never overwrite each other.
func timestampedPath(path string, t time.Time) string {
	if path == "" {
		return ""
	}
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + "-" + t.Format("20060102T150405") + ext
}
