package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/mattjoyce/github-hook/internal/config"
	"github.com/mattjoyce/github-hook/internal/events"
	"github.com/mattjoyce/github-hook/internal/lock"
	"github.com/mattjoyce/github-hook/internal/log"
	"github.com/mattjoyce/github-hook/internal/runner"
	"github.com/mattjoyce/github-hook/internal/webhook"
)

// Set at build time with -ldflags "-X main.version=...".
var version = "dev"

const (
	defaultConfigPath = "config.yaml"
	defaultEnvFile    = ".env"
	eventBufferSize   = 256
)

var (
	loadDotEnv = godotenv.Load
	exit       = os.Exit
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) == 0 {
		return runStart(nil)
	}

	cmd := args[0]
	switch {
	case isHelpToken(cmd):
		printUsage()
		return 0
	case cmd == "start":
		return runStart(args[1:])
	case cmd == "config":
		return runConfigNoun(args[1:])
	case cmd == "version":
		fmt.Printf("github-hook version %s\n", version)
		return 0
	case len(cmd) > 0 && cmd[0] == '-':
		// Bare flags mean "start".
		return runStart(args)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		return 1
	}
}

func printUsage() {
	fmt.Print(`github-hook - run deploy scripts on signed GitHub push webhooks

Usage:
  github-hook [start] [flags]
  github-hook config <check|lock|get> [flags]

Commands:
  start           Serve webhooks in the foreground (default)
  config check    Validate configuration and integrity
  config lock     Write BLAKE3 checksums for the configuration
  config get PATH Print a config value, e.g. repositories.demo.branch (secrets redacted)
  version         Show version information
  help            Show this help message

Flags:
  --config PATH     Configuration file or directory (env: CONFIG, default: config.yaml)
  --port PORT       Listen port, overrides service.listen (env: PORT)
  --env-file PATH   Dotenv file loaded before reading the environment (default: .env)
`)
}

func runConfigNoun(args []string) int {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "Usage: github-hook config <check|lock|get> [flags]")
		return 1
	}
	if isHelpToken(args[0]) {
		printUsage()
		return 0
	}

	action := args[0]
	actionArgs := args[1:]

	switch action {
	case "check":
		return runConfigCheck(actionArgs)
	case "lock":
		return runConfigLock(actionArgs)
	case "get":
		return runConfigGet(actionArgs)
	default:
		fmt.Fprintf(os.Stderr, "Unknown config action: %s\n", action)
		return 1
	}
}

func isHelpToken(token string) bool {
	return token == "help" || token == "--help" || token == "-h"
}

// commonFlags are accepted by every command that reads configuration.
type commonFlags struct {
	configPath string
	envFile    string
}

func (c *commonFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&c.configPath, "config", "", "Path to configuration file or directory")
	fs.StringVar(&c.envFile, "env-file", "", "Dotenv file to load")
}

// resolve loads the dotenv file, then returns the configuration path from the
// flag, the CONFIG environment variable or the default, in that order.
func (c *commonFlags) resolve() (string, error) {
	if c.envFile != "" {
		if err := loadDotEnv(c.envFile); err != nil {
			return "", fmt.Errorf("load env file %s: %w", c.envFile, err)
		}
	} else if _, err := os.Stat(defaultEnvFile); err == nil {
		if err := loadDotEnv(defaultEnvFile); err != nil {
			return "", fmt.Errorf("load env file %s: %w", defaultEnvFile, err)
		}
	}

	if c.configPath != "" {
		return c.configPath, nil
	}
	if env := os.Getenv("CONFIG"); env != "" {
		return env, nil
	}
	return defaultConfigPath, nil
}

func runStart(args []string) int {
	var common commonFlags
	var port string

	fs := flag.NewFlagSet("start", flag.ContinueOnError)
	common.register(fs)
	fs.StringVar(&port, "port", "", "Listen port")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 1
	}

	configPath, err := common.resolve()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	if port == "" {
		port = os.Getenv("PORT")
	}

	log.Setup(cfg.Service.LogLevel, cfg.Service.LogFormat)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	stopped := make(chan struct{})
	defer close(stopped)
	go watchSignals(sigCh, cancel, stopped)

	return serve(ctx, cfg, port)
}

// watchSignals cancels the server on the first signal and exits the process
// on the second, so a stuck drain can be interrupted.
func watchSignals(sigCh <-chan os.Signal, cancel context.CancelFunc, stopped <-chan struct{}) {
	select {
	case sig := <-sigCh:
		log.Info("received shutdown signal", "signal", sig.String())
		cancel()
	case <-stopped:
		return
	}

	select {
	case sig := <-sigCh:
		log.Info("received second signal, exiting without waiting for tasks", "signal", sig.String())
		exit(1)
	case <-stopped:
	}
}

// serve runs the webhook server until ctx is cancelled, then waits up to
// service.drain_timeout for running tasks.
func serve(ctx context.Context, cfg *config.Config, port string) int {
	logger := log.WithComponent("main")
	logger.Info("github-hook starting",
		"version", version,
		"config", cfg.Path,
		"repositories", cfg.Registry().Len(),
	)

	if cfg.Service.PIDFile != "" {
		pidLock, err := lock.AcquirePIDLock(cfg.Service.PIDFile)
		if err != nil {
			logger.Error("failed to acquire PID lock", "path", cfg.Service.PIDFile, "error", err)
			return 1
		}
		defer func() { _ = pidLock.Release() }()
		logger.Info("acquired PID lock", "path", pidLock.Path())
	}

	webhookConfig, err := webhook.FromServiceConfig(cfg.Service, port, version)
	if err != nil {
		logger.Error("failed to configure webhook server", "error", err)
		return 1
	}

	hub := events.NewHub(eventBufferSize)
	eventsCh, unsubscribe := hub.Subscribe()
	defer unsubscribe()
	go logEvents(eventsCh, log.WithComponent("events"))

	taskRunner := runner.New(runner.Options{
		Shell:         cfg.Service.Shell,
		MaxConcurrent: cfg.Service.MaxConcurrentTasks,
	}, hub, log.WithComponent("runner"))

	for _, id := range cfg.Registry().IDs() {
		repo, _ := cfg.Registry().Lookup(id)
		logger.Info("repository registered", "repo_id", id, "branch", repo.Branch, "serialize", repo.Serialize)
	}

	server := webhook.New(webhookConfig, cfg.Registry(), taskRunner, log.WithComponent("webhook"))

	exitCode := 0
	if err := server.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("webhook server failed", "error", err)
		exitCode = 1
	}

	logger.Info("draining running tasks",
		"running", taskRunner.Running(),
		"timeout", cfg.Service.DrainTimeout.String(),
	)
	drainCtx, cancelDrain := context.WithTimeout(context.Background(), cfg.Service.DrainTimeout)
	defer cancelDrain()
	if err := taskRunner.Wait(drainCtx); err != nil {
		logger.Warn("drain timeout reached, tasks still running", "running", taskRunner.Running())
	}

	logger.Info("github-hook stopped")
	return exitCode
}

// logEvents writes task lifecycle events at debug level. Events dropped by
// the hub for a slow subscriber are simply not logged here.
func logEvents(ch <-chan events.Event, logger *slog.Logger) {
	for ev := range ch {
		logger.Debug("task event",
			"event_id", ev.ID,
			"type", ev.Type,
			"task_id", ev.TaskID,
			"repo_id", ev.Repository,
		)
	}
}

func runConfigCheck(args []string) int {
	var common commonFlags

	fs := flag.NewFlagSet("check", flag.ContinueOnError)
	common.register(fs)
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 1
	}

	configPath, err := common.resolve()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config load error: %v\n", err)
		return 1
	}

	fmt.Printf("Configuration OK: %s\n", cfg.Path)
	if _, err := config.LoadChecksums(filepath.Dir(cfg.Path)); err == nil {
		fmt.Println("  integrity: verified")
	} else {
		fmt.Println("  integrity: not locked (run 'github-hook config lock')")
	}
	fmt.Printf("  repositories: %d\n", cfg.Registry().Len())
	for _, id := range cfg.Registry().IDs() {
		repo, _ := cfg.Registry().Lookup(id)
		branch := repo.Branch
		if branch == "" {
			branch = "*"
		}
		fmt.Printf("  - %s (branch: %s)\n", id, branch)
	}
	return 0
}

func runConfigLock(args []string) int {
	var common commonFlags
	var verbose, verboseShort, dryRun bool

	fs := flag.NewFlagSet("lock", flag.ContinueOnError)
	common.register(fs)
	fs.BoolVar(&verbose, "verbose", false, "Verbose output")
	fs.BoolVar(&verboseShort, "v", false, "Verbose output")
	fs.BoolVar(&dryRun, "dry-run", false, "Dry run")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 1
	}
	isVerbose := verbose || verboseShort

	configPath, err := common.resolve()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	configFile, err := resolveConfigFile(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	// Validate without the integrity check; locking is how a changed file
	// gets re-authorized.
	data, err := os.ReadFile(configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read config: %v\n", err)
		return 1
	}
	if _, err := config.Parse(data); err != nil {
		fmt.Fprintf(os.Stderr, "Refusing to lock invalid config: %v\n", err)
		return 1
	}

	dir, name := filepath.Dir(configFile), filepath.Base(configFile)
	if dryRun {
		hash, err := config.ComputeBlake3Hash(configFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to hash config: %v\n", err)
			return 1
		}
		if isVerbose {
			fmt.Printf("  HASH %s: %s\n", name, hash)
		}
		fmt.Printf("Dry run completed (no files written): %s\n", dir)
		return 0
	}

	manifest, err := config.GenerateChecksums(dir, []string{name})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to lock config in %s: %v\n", dir, err)
		return 1
	}
	if isVerbose {
		fmt.Printf("  HASH %s: %s\n", name, manifest.Hashes[name])
		fmt.Printf("  WROTE .checksums: %s\n", filepath.Join(dir, ".checksums"))
	}
	fmt.Printf("Successfully locked configuration in %s\n", dir)
	return 0
}

func runConfigGet(args []string) int {
	var common commonFlags
	var jsonOut bool

	fs := flag.NewFlagSet("get", flag.ContinueOnError)
	common.register(fs)
	fs.BoolVar(&jsonOut, "json", false, "Output in JSON")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 1
	}

	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Usage: github-hook config get [--json] <path>")
		return 1
	}
	path := fs.Arg(0)

	// Flags may also follow the path.
	if err := fs.Parse(fs.Args()[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 1
	}
	if fs.NArg() != 0 {
		fmt.Fprintln(os.Stderr, "Usage: github-hook config get [--json] <path>")
		return 1
	}

	configPath, err := common.resolve()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Load error: %v\n", err)
		return 1
	}

	val, err := cfg.GetPath(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	if jsonOut {
		data, err := json.MarshalIndent(val, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "JSON format error: %v\n", err)
			return 1
		}
		fmt.Println(string(data))
		return 0
	}

	switch val.(type) {
	case map[string]any, []any, []string, config.RepositoryConfig:
		data, err := yaml.Marshal(val)
		if err != nil {
			fmt.Fprintf(os.Stderr, "YAML format error: %v\n", err)
			return 1
		}
		fmt.Print(string(data))
	default:
		fmt.Printf("%v\n", val)
	}
	return 0
}

// resolveConfigFile maps a directory to the config.yaml inside it.
func resolveConfigFile(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve config path %q: %w", path, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("config file not found: %s", abs)
	}
	if info.IsDir() {
		abs = filepath.Join(abs, "config.yaml")
	}
	return abs, nil
}
