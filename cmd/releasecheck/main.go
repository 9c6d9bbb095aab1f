package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"go.uber.org/zap"

	"github.com/eugenenazirov/releasecheck/internal/application"
	"github.com/eugenenazirov/releasecheck/internal/checks"
	"github.com/eugenenazirov/releasecheck/internal/config"
	"github.com/eugenenazirov/releasecheck/internal/logging"
	"github.com/eugenenazirov/releasecheck/internal/prcontext"
	"github.com/eugenenazirov/releasecheck/internal/storage"
	"github.com/eugenenazirov/releasecheck/internal/watch"
)

const (
	exitOK        = 0
	exitViolation = 1
	exitUsage     = 2
)

var (
	signalNotify    = signal.Notify
	detectPRContext = prcontext.FromEnvironment
	newLogger       = func(cfg config.Config) (*zap.Logger, error) {
		return logging.New(logging.WithLevel(cfg.LogLevel), logging.WithEncoding(cfg.LogFormat))
	}
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	app := kingpin.New("releasecheck", "Validates release image configs before they are merged")
	app.UsageWriter(stderr)
	app.ErrorWriter(stderr)

	configFile := app.Flag("config", "Path to YAML configuration file").String()
	root := app.Flag("root", "Repository root holding the release image configs").String()
	logLevel := app.Flag("log-level", "Minimum log level (debug, info, warn, error)").String()
	logFormat := app.Flag("log-format", "Log encoding (json or console)").String()

	checkCmd := app.Command("check", "Run the release image checks").Default()
	checkNames := checkCmd.Flag("check", "Run only the named check (repeatable)").Strings()
	var checkForceSet bool
	checkForce := checkCmd.Flag("force", "Run even outside a pull request").IsSetByUser(&checkForceSet).Bool()

	listCmd := app.Command("list", "List the available checks")

	watchCmd := app.Command("watch", "Re-run the checks whenever a release image config changes")
	watchNames := watchCmd.Flag("check", "Run only the named check (repeatable)").Strings()

	serveCmd := app.Command("serve", "Serve the validation API")
	port := serveCmd.Flag("port", "HTTP port exposed by the service").String()
	rateLimitRPSFlag := serveCmd.Flag("rate-limit-rps", "Requests per second allowed (set 0 to disable)").Default("-1").Float64()
	rateLimitBurstFlag := serveCmd.Flag("rate-limit-burst", "Burst capacity for rate limiter (set 0 to disable)").Default("-1").Int()

	command, err := app.Parse(args)
	if err != nil {
		fmt.Fprintf(stderr, "releasecheck: %v\n", err)
		return exitUsage
	}

	overrides := &config.CLIOverrides{
		ConfigFile: *configFile,
	}
	if *root != "" {
		overrides.RepoRoot = root
	}
	if *logLevel != "" {
		overrides.LogLevel = logLevel
	}
	if *logFormat != "" {
		overrides.LogFormat = logFormat
	}
	if checkForceSet {
		overrides.Force = checkForce
	}
	if *port != "" {
		overrides.Port = port
	}
	if *rateLimitRPSFlag >= 0 {
		overrides.RateLimitRPS = rateLimitRPSFlag
	}
	if *rateLimitBurstFlag >= 0 {
		overrides.RateLimitBurst = rateLimitBurstFlag
	}

	cfg, err := config.Load(overrides)
	if err != nil {
		fmt.Fprintf(stderr, "releasecheck: failed to load configuration: %v\n", err)
		return exitUsage
	}

	logger, err := newLogger(cfg)
	if err != nil {
		fmt.Fprintf(stderr, "releasecheck: failed to initialize logger: %v\n", err)
		return exitUsage
	}
	defer func() {
		_ = logger.Sync()
	}()

	switch command {
	case listCmd.FullCommand():
		return runList(cfg, stdout)
	case watchCmd.FullCommand():
		return runWatch(cfg, *watchNames, stdout, logger)
	case serveCmd.FullCommand():
		return runServe(cfg, logger)
	default:
		return runCheck(cfg, *checkNames, stdout, logger)
	}
}

func runList(cfg config.Config, stdout io.Writer) int {
	suite := checks.NewSuite(nil, cfg.Files, nil, checks.WithForbiddenFlag(cfg.ForbiddenFlag))
	for _, c := range suite.Checks() {
		fmt.Fprintf(stdout, "%-28s %s\n", c.Name, strings.Join(c.Files, ", "))
		fmt.Fprintf(stdout, "%-28s %s\n", "", c.Description)
	}
	return exitOK
}

func runCheck(cfg config.Config, names []string, stdout io.Writer, logger *zap.Logger) int {
	prCtx, err := detectPRContext()
	if err != nil {
		if !cfg.Force {
			logger.Error("failed to detect pull request context", zap.Error(err))
			return exitUsage
		}
		logger.Warn("failed to detect pull request context, continuing because of --force", zap.Error(err))
	}
	if !prCtx.IsPR && !cfg.Force {
		logger.Info("not a pull request, skipping release image checks", zap.String("context", prCtx.String()))
		fmt.Fprintln(stdout, "skipped: release image checks only run for pull requests (use --force to run anyway)")
		return exitOK
	}
	logger.Info("running release image checks", zap.String("context", prCtx.String()), zap.Bool("forced", cfg.Force))

	suite, err := repoSuite(cfg, logger)
	if err != nil {
		logger.Error("failed to open repository", zap.Error(err))
		return exitUsage
	}

	report, err := suite.Run(names...)
	if err != nil {
		logger.Error("failed to run checks", zap.Error(err))
		return exitUsage
	}

	printReport(stdout, report)
	if !report.Passed() {
		return exitViolation
	}
	return exitOK
}

func runWatch(cfg config.Config, names []string, stdout io.Writer, logger *zap.Logger) int {
	dir, err := cfg.ResolveRepoRoot()
	if err != nil {
		logger.Error("failed to open repository", zap.Error(err))
		return exitUsage
	}
	suite := checks.NewSuite(storage.NewDirStorage(dir), cfg.Files, logger, checks.WithForbiddenFlag(cfg.ForbiddenFlag))

	runOnce := func() error {
		report, err := suite.Run(names...)
		if err != nil {
			return err
		}
		printReport(stdout, report)
		return nil
	}
	if err := runOnce(); err != nil {
		logger.Error("failed to run checks", zap.Error(err))
		return exitUsage
	}

	w, err := watch.New(dir, cfg.Files.All(), cfg.WatchCooldown, func(_ context.Context, changed []string) {
		logger.Info("release image configs changed", zap.Strings("files", changed))
		if err := runOnce(); err != nil {
			logger.Error("failed to run checks", zap.Error(err))
		}
	}, logger)
	if err != nil {
		logger.Error("failed to start watcher", zap.Error(err))
		return exitUsage
	}

	ctx, cancel := signalContext()
	defer cancel()

	logger.Info("watching release image configs", zap.String("dir", dir))
	if err := w.Run(ctx); err != nil {
		logger.Error("watcher stopped", zap.Error(err))
		return exitUsage
	}
	return exitOK
}

func runServe(cfg config.Config, logger *zap.Logger) int {
	app, err := application.New(cfg, logger)
	if err != nil {
		logger.Error("failed to initialize application", zap.Error(err))
		return exitUsage
	}

	if err := app.Start(); err != nil {
		logger.Error("failed to start server", zap.Error(err))
		return exitUsage
	}

	shutdown(app.Server(), cfg.ShutdownGracePeriod, logger)
	return exitOK
}

func repoSuite(cfg config.Config, logger *zap.Logger) (*checks.Suite, error) {
	dir, err := cfg.ResolveRepoRoot()
	if err != nil {
		return nil, err
	}
	return checks.NewSuite(storage.NewDirStorage(dir), cfg.Files, logger, checks.WithForbiddenFlag(cfg.ForbiddenFlag)), nil
}

func printReport(w io.Writer, report checks.Report) {
	for _, res := range report.Results {
		if res.Passed() {
			fmt.Fprintf(w, "PASS %s\n", res.Check)
			continue
		}
		fmt.Fprintf(w, "FAIL %s: %v\n", res.Check, res.Err)

		if v, ok := checks.AsViolation(res.Err); ok && v.Suggestion != "" {
			fmt.Fprintf(w, "     suggested numbering for %s:\n", v.File)
			for _, line := range strings.Split(strings.TrimRight(v.Suggestion, "\n"), "\n") {
				fmt.Fprintf(w, "       %s\n", line)
			}
		}
	}

	failed := len(report.Failed())
	fmt.Fprintf(w, "%d checks, %d passed, %d failed\n", len(report.Results), len(report.Results)-failed, failed)
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	quit := make(chan os.Signal, 1)
	signalNotify(quit, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-quit:
		case <-ctx.Done():
		}
		cancel()
	}()
	return ctx, cancel
}

func shutdown(server *http.Server, timeout time.Duration, logger *zap.Logger) {
	quit := make(chan os.Signal, 1)
	signalNotify(quit, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	<-quit
	logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Warn("graceful shutdown failed", zap.Error(err))
		if closeErr := server.Close(); closeErr != nil {
			logger.Error("forced close failed", zap.Error(closeErr))
		}
	}
}
