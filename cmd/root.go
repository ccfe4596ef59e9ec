package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/reconward/reconward/internal/config"
	"github.com/reconward/reconward/internal/httpclient"
	"github.com/reconward/reconward/internal/logger"
	"github.com/reconward/reconward/internal/orchestrator"
	"github.com/reconward/reconward/internal/plugins/browser"
	"github.com/reconward/reconward/internal/plugins/nmap"
	"github.com/reconward/reconward/internal/worker"
	"github.com/reconward/reconward/pkg/discovery/dnsenum"
	"github.com/reconward/reconward/pkg/discovery/portscan"
	"github.com/reconward/reconward/pkg/discovery/techstack"
	"github.com/reconward/reconward/pkg/profiles"
	"github.com/reconward/reconward/pkg/report"
	"github.com/reconward/reconward/pkg/types"
)

var rootCmd = &cobra.Command{
	Use:   "reconward [target]",
	Short: "Automated reconnaissance pipeline",
	Long: `reconward maps the attack surface of a target domain: it enumerates
subdomains, probes TCP ports with banner grabbing, fingerprints web
technologies, captures screenshots, and writes a consolidated report.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runScan(cmd.Context(), args[0])
	},
	SilenceUsage: true,
}

func init() {
	flags := rootCmd.Flags()

	flags.Int("workers", 10, "maximum concurrent probe tasks")
	flags.Duration("timeout", config.Default().Scan.TaskTimeout, "per-task timeout")
	flags.Duration("run-timeout", config.Default().Scan.RunTimeout, "whole-run timeout (0 disables)")
	flags.Int("rate-limit", 100, "port probes per second (0 disables)")
	flags.Bool("full", false, "probe the full 1-65535 port range")
	flags.Bool("permutations", false, "resolve permutations of discovered subdomains")
	flags.Bool("probe-http", false, "require an HTTP(S) answer for a host to count as active")
	flags.String("wordlist", "", "subdomain wordlist file (default: built-in list)")
	flags.String("profile", "", "scan profile name (quick, web, thorough, or from --profile-file)")
	flags.String("profile-file", "", "YAML file with additional scan profiles")
	flags.StringSlice("resolver", config.Default().Scan.Resolvers, "DNS resolver address (repeatable)")
	flags.String("output", "output", "report output directory")

	flags.Bool("skip-subdomains", false, "scan the bare target only")
	flags.Bool("skip-ports", false, "skip port probing")
	flags.Bool("skip-tech", false, "skip technology fingerprinting")
	flags.Bool("skip-screenshots", false, "skip screenshots")

	flags.Bool("nmap", false, "enrich open ports with nmap service detection")
	flags.String("nmap-path", "nmap", "nmap binary path")

	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	flags.String("log-format", "console", "log format (console, json)")

	for _, name := range []string{
		"workers", "timeout", "run-timeout", "rate-limit", "full", "permutations", "probe-http",
		"wordlist", "profile", "profile-file", "resolver", "output",
		"skip-subdomains", "skip-ports", "skip-tech", "skip-screenshots",
		"nmap", "nmap-path", "log-level", "log-format",
	} {
		_ = viper.BindPFlag(name, flags.Lookup(name))
		_ = viper.BindEnv(name, "RECONWARD_"+strings.ToUpper(strings.ReplaceAll(name, "-", "_")))
	}
}

// Execute is the entry point called from main.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func runScan(ctx context.Context, target string) error {
	cfg, err := buildConfig(target)
	if err != nil {
		return err
	}

	log, err := logger.New(cfg.Logger)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	scanID := uuid.NewString()[:8]
	log = log.WithScanID(scanID).WithTarget(cfg.Scan.Target)
	ctx = logger.WithLogger(ctx, log)

	log.Infow("Scan starting",
		"workers", cfg.Scan.Workers,
		"task_timeout", cfg.Scan.TaskTimeout,
		"skip_subdomains", cfg.Scan.SkipSubdomains,
		"skip_ports", cfg.Scan.SkipPorts)

	stages, err := buildStages(cfg, log)
	if err != nil {
		return err
	}

	result := types.NewScanResult(cfg.Scan.Target, scanID)
	pipeline := orchestrator.NewPipeline(stages, cfg.Scan.RunTimeout, log)
	runErr := pipeline.Run(ctx, result)

	report.PrintSummary(os.Stdout, result)

	if runErr != nil {
		return fmt.Errorf("scan failed: %w", runErr)
	}
	return nil
}

// buildConfig layers defaults, an optional profile, and flag/env overrides.
func buildConfig(target string) (*config.Config, error) {
	cfg := config.Default()
	cfg.Scan.Target = config.NormalizeTarget(target)

	cfg.Logger.Level = viper.GetString("log-level")
	cfg.Logger.Format = viper.GetString("log-format")

	cfg.Scan.Workers = viper.GetInt("workers")
	cfg.Scan.TaskTimeout = viper.GetDuration("timeout")
	cfg.Scan.RunTimeout = viper.GetDuration("run-timeout")
	cfg.Scan.RateLimit = viper.GetInt("rate-limit")
	cfg.Scan.FullRange = viper.GetBool("full")
	cfg.Scan.Permutations = viper.GetBool("permutations")
	cfg.Scan.ProbeHTTP = viper.GetBool("probe-http")
	cfg.Scan.WordlistPath = viper.GetString("wordlist")
	cfg.Scan.ProfilePath = viper.GetString("profile-file")
	cfg.Scan.Resolvers = viper.GetStringSlice("resolver")
	cfg.Scan.SkipSubdomains = viper.GetBool("skip-subdomains")
	cfg.Scan.SkipPorts = viper.GetBool("skip-ports")
	cfg.Scan.SkipTech = viper.GetBool("skip-tech")
	cfg.Scan.SkipScreenshots = viper.GetBool("skip-screenshots")

	cfg.Tools.Nmap.Enabled = viper.GetBool("nmap")
	cfg.Tools.Nmap.BinaryPath = viper.GetString("nmap-path")

	cfg.Report.OutputDir = viper.GetString("output")
	cfg.Report.ScreenshotDir = filepath.Join(cfg.Report.OutputDir, "screenshots")

	if name := viper.GetString("profile"); name != "" {
		if err := applyProfile(cfg, name); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyProfile(cfg *config.Config, name string) error {
	p, err := profiles.Resolve(name, cfg.Scan.ProfilePath)
	if err != nil {
		return err
	}
	if p.Workers > 0 {
		cfg.Scan.Workers = p.Workers
	}
	if p.TaskTimeout > 0 {
		cfg.Scan.TaskTimeout = p.TaskTimeout
	}
	if p.RateLimit > 0 {
		cfg.Scan.RateLimit = p.RateLimit
	}
	if p.FullRange {
		cfg.Scan.FullRange = true
	}
	if p.Permutations {
		cfg.Scan.Permutations = true
	}
	cfg.Scan.SkipSubdomains = cfg.Scan.SkipSubdomains || p.SkipSubdomains
	cfg.Scan.SkipPorts = cfg.Scan.SkipPorts || p.SkipPorts
	cfg.Scan.SkipTech = cfg.Scan.SkipTech || p.SkipTech
	cfg.Scan.SkipScreenshots = cfg.Scan.SkipScreenshots || p.SkipScreenshots
	if len(p.Ports) > 0 {
		profilePorts = p.Ports
	}
	if len(p.Wordlist) > 0 {
		profileWordlist = p.Wordlist
	}
	return nil
}

// Profile-selected port set and wordlist, applied during stage wiring.
var (
	profilePorts    []int
	profileWordlist []string
)

func buildStages(cfg *config.Config, log *logger.Logger) ([]orchestrator.Stage, error) {
	pool := worker.New(cfg.Scan.Workers, log)

	resolver := dnsenum.NewResolver(cfg.Scan.Resolvers, cfg.Scan.TaskTimeout)
	enum := dnsenum.NewEnumerator(resolver, pool, log)
	enum.TaskTimeout = cfg.Scan.TaskTimeout
	enum.Permutations = cfg.Scan.Permutations
	if cfg.Scan.ProbeHTTP {
		liveCfg := httpclient.DefaultConfig()
		liveCfg.Timeout = cfg.Scan.TaskTimeout
		enum.Liveness = dnsenum.HTTPLiveness(httpclient.New(liveCfg))
	}
	if len(profileWordlist) > 0 {
		enum.Wordlist = profileWordlist
	}
	if cfg.Scan.WordlistPath != "" {
		words, err := dnsenum.LoadWordlist(cfg.Scan.WordlistPath)
		if err != nil {
			return nil, err
		}
		enum.Wordlist = words
	}

	ports := portscan.CommonPorts
	if len(profilePorts) > 0 {
		ports = profilePorts
	}
	if cfg.Scan.FullRange {
		ports = portscan.FullRange()
	}
	prober := portscan.NewProber(pool, cfg.Scan.TaskTimeout, cfg.Scan.RateLimit, log)

	enrichment := &orchestrator.EnrichmentStage{
		WebPorts:        portscan.WebPorts,
		ScreenshotDir:   cfg.Report.ScreenshotDir,
		SkipTech:        cfg.Scan.SkipTech,
		SkipScreenshots: cfg.Scan.SkipScreenshots,
		Logger:          log,
	}
	if !cfg.Scan.SkipTech {
		client := httpclient.New(httpclient.DefaultConfig())
		fp, err := techstack.NewFingerprinter(client, log)
		if err != nil {
			return nil, err
		}
		enrichment.Fingerprinter = fp
	}
	if !cfg.Scan.SkipScreenshots {
		enrichment.Screenshotter = browser.NewScreenshotter(cfg.Tools.Browser, log)
	}
	if cfg.Tools.Nmap.Enabled {
		enrichment.Enricher = nmap.NewEnricher(cfg.Tools.Nmap.BinaryPath, cfg.Tools.Nmap.Timeout, log)
	}

	return []orchestrator.Stage{
		&orchestrator.SubdomainStage{Enumerator: enum, Skip: cfg.Scan.SkipSubdomains},
		&orchestrator.PortStage{Prober: prober, Ports: ports, Skip: cfg.Scan.SkipPorts, Logger: log},
		enrichment,
		&orchestrator.ReportStage{Writer: report.NewWriter(cfg.Report.OutputDir, log)},
	}, nil
}
