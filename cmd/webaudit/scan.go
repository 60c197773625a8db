package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/nao1215/webaudit/internal/audit"
	"github.com/nao1215/webaudit/internal/checks"
	"github.com/nao1215/webaudit/internal/config"
	"github.com/nao1215/webaudit/internal/crawler"
	"github.com/nao1215/webaudit/internal/database"
	"github.com/nao1215/webaudit/internal/httpclient"
	"github.com/nao1215/webaudit/internal/metrics"
	"github.com/nao1215/webaudit/internal/model"
	"github.com/nao1215/webaudit/internal/module"
	"github.com/nao1215/webaudit/internal/report"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// NewScanCmd creates the scan command.
func NewScanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scan [url]",
		Short: "Crawl a web application and audit every page",
		Long: `Scan crawls the site starting at the given URL and runs the selected
check modules against every page it discovers.

In immediate mode (the default) each page is audited as soon as it is
crawled. With --mods-run-last pages are buffered and audited once the crawl
is over.

Press Ctrl+C once to interrupt. In immediate mode the scan stops and the
findings gathered so far are reported. In deferred mode you are asked
whether the pages crawled so far should be audited. Press Ctrl+C again to
abort without a report.

Examples:
  # Audit links and forms with every module
  webaudit scan --links --forms -m '*' https://example.com

  # Audit cookies only, after the crawl, with a cookie jar
  webaudit scan --cookies -m insecure_cookies --mods-run-last \
    --cookie-jar cookies.txt https://example.com

  # Write a Markdown report and expose Prometheus metrics
  webaudit scan -l -m '*' --markdown -o report.md --metrics-addr :9090 https://example.com`,
		Args: cobra.MaximumNArgs(1),
		RunE: runScanCmd,
	}

	f := cmd.Flags()

	// Audit flags
	f.String("url", "", "Start URL (alternative to the positional argument)")
	f.IntP("threads", "t", config.DefaultThreads,
		"Number of modules run concurrently against a page")
	f.BoolP("links", "l", false, "Audit link query variables")
	f.BoolP("forms", "f", false, "Audit HTML forms")
	f.BoolP("cookies", "k", false, "Audit cookies")
	f.StringSliceP("modules", "m", nil,
		"Comma separated modules to load ('*' loads all)")
	f.String("cookie-jar", "", "Netscape cookie-jar file sent with every request")
	f.String("user-agent", "", "User-Agent header (default webaudit/<version>)")
	f.Bool("mods-run-last", false, "Run modules after the crawl instead of page by page")
	f.Bool("only-positives", false, "Only print findings in the text report")

	// Crawl flags
	f.IntP("depth", "d", config.DefaultMaxDepth, "Maximum crawl depth")
	f.IntP("max-pages", "p", config.DefaultMaxPages, "Maximum number of pages to crawl (0 = unlimited)")
	f.Duration("delay", config.DefaultDelay, "Minimum delay between requests")
	f.Duration("timeout", config.DefaultTimeout, "Timeout for each request")
	f.Bool("robots", false, "Honor robots.txt")
	f.StringSlice("ignore", nil, "Path globs never crawled")
	f.StringSlice("follow", nil, "Path globs the crawl is restricted to")

	// Transport flags
	f.String("proxy", "", "SOCKS5 proxy address (e.g., 127.0.0.1:9050)")
	f.Bool("tor", false, "Route traffic through an embedded Tor daemon")
	f.Duration("tor-timeout", config.DefaultTorStartupTimeout, "Timeout for embedded Tor startup")
	cmd.MarkFlagsMutuallyExclusive("proxy", "tor")

	// Configuration file
	f.StringP("config", "c", "",
		"Configuration file path (default: .webaudit.yaml or XDG config)")

	// Report flags
	f.BoolP("json", "j", false, "Output JSON report")
	f.Bool("markdown", false, "Output Markdown report")
	f.StringP("output", "o", "", "Write report to specified file path")
	cmd.MarkFlagsMutuallyExclusive("json", "markdown")
	f.String("metrics-addr", "", "Serve Prometheus metrics on this address during the scan")
	f.Bool("no-db", false, "Do not save the report to the history database")
	f.String("db-dir", "", "History database directory (default: XDG data directory)")

	return cmd
}

// scanOptions holds the scan flags that are not part of ScanConfig.
type scanOptions struct {
	format      string
	output      string
	metricsAddr string
	saveToDB    bool
	dbDir       string
}

// runScanCmd executes the scan command.
func runScanCmd(cmd *cobra.Command, args []string) error {
	cfg, err := buildConfig(cmd, args)
	if err != nil {
		return err
	}

	cfg.ApplySite()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	opts, err := buildScanOptions(cmd)
	if err != nil {
		return err
	}

	logger := newLogger(cmd, cfg.Verbose, cfg.Debug)
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	interrupt := audit.NewInterrupt()
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go watchSignals(ctx, sigCh, interrupt, cancel, logger, cmd.ErrOrStderr())

	return runScan(ctx, cmd, cfg, opts, interrupt, logger)
}

// watchSignals maps signals to the two abort levels. The first SIGINT
// raises the interrupt; a second one, or SIGTERM, cancels ctx.
func watchSignals(
	ctx context.Context,
	sigCh <-chan os.Signal,
	interrupt *audit.Interrupt,
	cancel context.CancelFunc,
	logger *slog.Logger,
	out io.Writer,
) {
	for {
		select {
		case <-ctx.Done():
			return
		case sig := <-sigCh:
			if sig == os.Interrupt && !interrupt.Raised() {
				fmt.Fprintln(out, "\nInterrupt received, stopping... (press Ctrl+C again to abort)")
				interrupt.Raise()
				continue
			}
			logger.Warn("received shutdown signal, cancelling...", "signal", sig.String())
			cancel()
			return
		}
	}
}

// buildConfig creates a ScanConfig from the configuration file and the
// flags. Flags override the file only when they were set explicitly.
func buildConfig(cmd *cobra.Command, args []string) (*config.ScanConfig, error) {
	flags := cmd.Flags()

	configPath, err := flags.GetString("config")
	if err != nil {
		return nil, err
	}

	// If user explicitly specified a config file path, error if not found.
	// If no path specified, silently use defaults if no file found.
	var cfg *config.ScanConfig
	switch found := config.FindConfigFile(configPath); {
	case found != "":
		cfg, err = config.LoadFile(found)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", found, err)
		}
	case configPath != "":
		return nil, fmt.Errorf("%w: %s", config.ErrConfigNotFound, configPath)
	default:
		cfg = config.NewScanConfig()
	}

	if err := overrideString(flags, "url", &cfg.URL); err != nil {
		return nil, err
	}
	if len(args) > 0 {
		cfg.URL = args[0]
	}

	for name, dst := range map[string]*bool{
		"links":          &cfg.AuditLinks,
		"forms":          &cfg.AuditForms,
		"cookies":        &cfg.AuditCookies,
		"mods-run-last":  &cfg.ModsRunLast,
		"only-positives": &cfg.OnlyPositives,
		"robots":         &cfg.RespectRobots,
		"tor":            &cfg.UseTor,
	} {
		if err := overrideBool(flags, name, dst); err != nil {
			return nil, err
		}
	}

	for name, dst := range map[string]*int{
		"threads":   &cfg.Threads,
		"depth":     &cfg.MaxDepth,
		"max-pages": &cfg.MaxPages,
	} {
		if err := overrideInt(flags, name, dst); err != nil {
			return nil, err
		}
	}

	for name, dst := range map[string]*time.Duration{
		"delay":       &cfg.Delay,
		"timeout":     &cfg.Timeout,
		"tor-timeout": &cfg.TorStartupTimeout,
	} {
		if err := overrideDuration(flags, name, dst); err != nil {
			return nil, err
		}
	}

	for name, dst := range map[string]*string{
		"cookie-jar": &cfg.CookieJar,
		"user-agent": &cfg.UserAgent,
		"proxy":      &cfg.Proxy,
	} {
		if err := overrideString(flags, name, dst); err != nil {
			return nil, err
		}
	}

	for name, dst := range map[string]*[]string{
		"modules": &cfg.Modules,
		"ignore":  &cfg.IgnorePatterns,
		"follow":  &cfg.FollowPatterns,
	} {
		if err := overrideStrings(flags, name, dst); err != nil {
			return nil, err
		}
	}

	cfg.Verbose = cfg.Verbose || getBoolFlag(cmd, "verbose")
	cfg.Debug = cfg.Debug || getBoolFlag(cmd, "debug")

	return cfg, nil
}

// buildScanOptions reads the report and persistence flags.
func buildScanOptions(cmd *cobra.Command) (scanOptions, error) {
	flags := cmd.Flags()
	opts := scanOptions{
		format:   report.FormatText,
		saveToDB: true,
		dbDir:    config.XDGDataDir(),
	}

	asJSON, err := flags.GetBool("json")
	if err != nil {
		return opts, err
	}
	asMarkdown, err := flags.GetBool("markdown")
	if err != nil {
		return opts, err
	}
	switch {
	case asJSON:
		opts.format = report.FormatJSON
	case asMarkdown:
		opts.format = report.FormatMarkdown
	}

	if opts.output, err = flags.GetString("output"); err != nil {
		return opts, err
	}
	if opts.metricsAddr, err = flags.GetString("metrics-addr"); err != nil {
		return opts, err
	}
	noDB, err := flags.GetBool("no-db")
	if err != nil {
		return opts, err
	}
	opts.saveToDB = !noDB
	if err := overrideString(flags, "db-dir", &opts.dbDir); err != nil {
		return opts, err
	}

	return opts, nil
}

func overrideBool(flags *pflag.FlagSet, name string, dst *bool) error {
	if !flags.Changed(name) {
		return nil
	}
	v, err := flags.GetBool(name)
	if err != nil {
		return err
	}
	*dst = v
	return nil
}

func overrideInt(flags *pflag.FlagSet, name string, dst *int) error {
	if !flags.Changed(name) {
		return nil
	}
	v, err := flags.GetInt(name)
	if err != nil {
		return err
	}
	*dst = v
	return nil
}

func overrideDuration(flags *pflag.FlagSet, name string, dst *time.Duration) error {
	if !flags.Changed(name) {
		return nil
	}
	v, err := flags.GetDuration(name)
	if err != nil {
		return err
	}
	*dst = v
	return nil
}

func overrideString(flags *pflag.FlagSet, name string, dst *string) error {
	if !flags.Changed(name) {
		return nil
	}
	v, err := flags.GetString(name)
	if err != nil {
		return err
	}
	*dst = v
	return nil
}

func overrideStrings(flags *pflag.FlagSet, name string, dst *[]string) error {
	if !flags.Changed(name) {
		return nil
	}
	v, err := flags.GetStringSlice(name)
	if err != nil {
		return err
	}
	*dst = v
	return nil
}

// runScan wires the components for a validated configuration and runs
// the audit.
func runScan(
	ctx context.Context,
	cmd *cobra.Command,
	cfg *config.ScanConfig,
	opts scanOptions,
	interrupt *audit.Interrupt,
	logger *slog.Logger,
) error {
	stderr := cmd.ErrOrStderr()

	client, stopTransport, err := newHTTPClient(ctx, cfg, logger, stderr)
	if err != nil {
		return err
	}
	defer stopTransport()

	collector, err := metrics.New()
	if err != nil {
		return fmt.Errorf("failed to create metrics: %w", err)
	}
	if opts.metricsAddr != "" {
		go func() {
			if err := collector.Serve(ctx, opts.metricsAddr, logger); err != nil {
				logger.Error("metrics server failed", "error", err)
			}
		}()
	}

	registry, err := newRegistry(cfg, logger)
	if err != nil {
		return err
	}

	orch := audit.NewOrchestrator(cfg, registry, newSpider(client, cfg, logger), crawler.NewAnalyzer(),
		audit.WithLogger(logger),
		audit.WithPrompter(audit.NewLinePrompter(cmd.InOrStdin(), stderr)),
		audit.WithMetrics(collector),
		audit.WithInterrupt(interrupt),
	)

	logger.Info("starting scan",
		"target", cfg.Target.String(),
		"mode", cfg.Mode(),
		"threads", cfg.Threads,
		"modules", cfg.Modules,
	)
	fmt.Fprintf(stderr, "Scanning %s (%s mode)...\n", cfg.Target, cfg.Mode())
	startTime := time.Now()

	scanReport, err := orch.Run(ctx)
	if errors.Is(err, audit.ErrAborted) {
		fmt.Fprintln(stderr, "Exiting...")
		return nil
	}
	if err != nil {
		return fmt.Errorf("scan failed: %w", err)
	}

	fmt.Fprintf(stderr, "Scan completed in %s\n\n", time.Since(startTime).Round(time.Millisecond))

	if err := outputReport(cmd.OutOrStdout(), cfg, opts, scanReport); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}

	if opts.saveToDB {
		if err := saveScanReport(ctx, opts.dbDir, scanReport, logger); err != nil {
			logger.Error("failed to save scan report", "target", scanReport.Target, "error", err)
		}
	}
	return nil
}

// newRegistry creates a registry holding the built-in modules.
func newRegistry(cfg *config.ScanConfig, logger *slog.Logger) (*module.MemoryRegistry, error) {
	registry := module.NewRegistry(module.WithLogger(logger))
	err := checks.Register(registry, checks.Options{
		Links:   cfg.AuditLinks,
		Forms:   cfg.AuditForms,
		Cookies: cfg.AuditCookies,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to register modules: %w", err)
	}
	return registry, nil
}

// newSpider creates the crawler for cfg.
func newSpider(client *http.Client, cfg *config.ScanConfig, logger *slog.Logger) *crawler.Spider {
	opts := []crawler.SpiderOption{
		crawler.WithMaxDepth(cfg.MaxDepth),
		crawler.WithMaxPages(cfg.MaxPages),
		crawler.WithDelay(cfg.Delay),
		crawler.WithUserAgent(cfg.UserAgent),
		crawler.WithHeaders(cfg.Headers),
		crawler.WithMaxBodySize(cfg.MaxBodySize),
		crawler.WithIgnorePatterns(cfg.IgnorePatterns),
		crawler.WithFollowPatterns(cfg.FollowPatterns),
		crawler.WithLogger(logger),
	}
	if cfg.RespectRobots {
		opts = append(opts, crawler.WithRobots(crawler.NewRobotsAgent(client, cfg.UserAgent)))
	}
	return crawler.NewSpider(client, cfg.Target.String(), opts...)
}

// newHTTPClient creates the HTTP client used by the crawler. The returned
// function releases the transport (the embedded Tor daemon) and is never nil.
func newHTTPClient(ctx context.Context, cfg *config.ScanConfig, logger *slog.Logger, out io.Writer) (*http.Client, func(), error) {
	noop := func() {}
	opts := []httpclient.Option{
		httpclient.WithTimeout(cfg.Timeout),
		httpclient.WithCookies(cfg.Target, cfg.Cookies),
	}

	switch {
	case cfg.UseTor:
		return startEmbeddedTor(ctx, cfg, logger, out, opts)
	case cfg.Proxy != "":
		if err := httpclient.CheckProxy(ctx, cfg.Proxy); err != nil {
			return nil, noop, fmt.Errorf("proxy check failed: %w (make sure a SOCKS5 proxy is running at %s)",
				err, cfg.Proxy)
		}
		logger.Info("SOCKS5 proxy connection verified", "address", cfg.Proxy)
		opts = append(opts, httpclient.WithSOCKS5(cfg.Proxy))
	}

	client, err := httpclient.New(opts...)
	if err != nil {
		return nil, noop, fmt.Errorf("failed to create HTTP client: %w", err)
	}
	return client, noop, nil
}

// startEmbeddedTor starts an embedded Tor daemon and returns a client
// routed through it.
func startEmbeddedTor(
	ctx context.Context,
	cfg *config.ScanConfig,
	logger *slog.Logger,
	out io.Writer,
	opts []httpclient.Option,
) (*http.Client, func(), error) {
	noop := func() {}

	fmt.Fprintln(out, "Starting embedded Tor daemon...")
	fmt.Fprintf(out, "This may take 1-3 minutes while Tor bootstraps and connects to the network.\n\n")

	embeddedTor := httpclient.NewEmbeddedTor(
		httpclient.WithStartupTimeout(cfg.TorStartupTimeout),
	)
	if err := embeddedTor.Start(ctx); err != nil {
		return nil, noop, fmt.Errorf("failed to start embedded Tor: %w", err)
	}
	stop := func() {
		logger.Info("stopping embedded Tor daemon...")
		if err := embeddedTor.Stop(); err != nil {
			logger.Error("failed to stop embedded Tor", "error", err)
		}
	}

	if err := httpclient.CheckProxy(ctx, embeddedTor.SocksAddr()); err != nil {
		stop()
		return nil, noop, fmt.Errorf("embedded Tor proxy check failed: %w", err)
	}

	client, err := embeddedTor.Client(opts...)
	if err != nil {
		stop()
		return nil, noop, fmt.Errorf("failed to create Tor client: %w", err)
	}

	logger.Info("embedded Tor daemon started", "socksAddr", embeddedTor.SocksAddr())
	fmt.Fprintf(out, "SOCKS proxy: %s\n\n", embeddedTor.SocksAddr())

	return client, stop, nil
}

// outputReport writes the report in the requested format to the output
// file, or to stdout when no file was given.
func outputReport(stdout io.Writer, cfg *config.ScanConfig, opts scanOptions, scanReport *model.Report) error {
	output := stdout
	if opts.output != "" {
		dir := filepath.Dir(opts.output)
		if dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0750); err != nil {
				return fmt.Errorf("failed to create output directory: %w", err)
			}
		}

		// Reports may contain sensitive information that should only be readable by the owner
		f, err := os.OpenFile(opts.output, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		output = f
	}

	var writer report.Writer
	if opts.format == report.FormatText {
		writer = report.NewSimpleWriter(output,
			report.WithOnlyFindings(cfg.OnlyPositives),
			report.WithVerbose(cfg.Verbose),
		)
	} else {
		var err error
		writer, err = report.New(opts.format, output, getVersion())
		if err != nil {
			return err
		}
	}

	_, err := writer.Write(scanReport)
	return err
}

// saveScanReport stores the report in the history database under dbDir.
func saveScanReport(ctx context.Context, dbDir string, scanReport *model.Report, logger *slog.Logger) error {
	store, err := database.Open(dbDir, database.DefaultOptions())
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer store.Close()

	if err := store.SaveReport(ctx, scanReport); err != nil {
		return fmt.Errorf("failed to save scan report: %w", err)
	}

	logger.Info("scan report saved to database", "id", scanReport.ID, "path", store.Path())
	return nil
}
