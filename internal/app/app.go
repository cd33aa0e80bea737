package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	goredis "github.com/redis/go-redis/v9"

	"github.com/MrSnakeDoc/mlvd/internal/config"
	"github.com/MrSnakeDoc/mlvd/internal/domain"
	"github.com/MrSnakeDoc/mlvd/internal/logger"
	"github.com/MrSnakeDoc/mlvd/internal/tunnel"
	"github.com/MrSnakeDoc/mlvd/internal/utils"
	"github.com/MrSnakeDoc/mlvd/internal/version"
)

// ErrUsage reports a bad command line.
var ErrUsage = errors.New("usage")

type App struct {
	cfg    *config.Config
	logger logger.Logger
	stdout io.Writer
	stderr io.Writer

	runner    tunnel.Runner
	rng       domain.RandomSource
	preflight func(tunnel.Config) error

	redisClient *goredis.Client
}

type Option func(*App)

// WithConfig skips config.Load.
func WithConfig(cfg *config.Config) Option {
	return func(a *App) { a.cfg = cfg }
}

func WithLogger(l logger.Logger) Option {
	return func(a *App) { a.logger = l }
}

func WithOutput(stdout, stderr io.Writer) Option {
	return func(a *App) {
		a.stdout = stdout
		a.stderr = stderr
	}
}

// WithRunner replaces the wg / wg-quick process runner.
func WithRunner(r tunnel.Runner) Option {
	return func(a *App) { a.runner = r }
}

// WithRandomSource fixes the relay draw.
func WithRandomSource(rng domain.RandomSource) Option {
	return func(a *App) { a.rng = rng }
}

func WithPreflight(fn func(tunnel.Config) error) Option {
	return func(a *App) { a.preflight = fn }
}

func New(opts ...Option) *App {
	a := &App{
		stdout:    os.Stdout,
		stderr:    os.Stderr,
		runner:    tunnel.ExecRunner{},
		preflight: tunnel.Preflight,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Run parses args (without the program name) and executes one command.
func (a *App) Run(ctx context.Context, args []string) error {
	var verbose, showVersion bool
	fs := flag.NewFlagSet("mlvd", flag.ContinueOnError)
	fs.SetOutput(a.stderr)
	fs.BoolVar(&verbose, "verbose", false, "Enable debug logging")
	fs.BoolVar(&verbose, "v", false, "Shorthand for --verbose")
	fs.BoolVar(&showVersion, "version", false, "Print version and exit")
	fs.Usage = func() { a.usage(fs.Output()) }
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return fmt.Errorf("%w: %w", ErrUsage, err)
	}

	if showVersion {
		_, _ = fmt.Fprintln(a.stdout, version.String())
		return nil
	}
	if fs.NArg() == 0 {
		a.usage(a.stderr)
		return fmt.Errorf("%w: expected a command", ErrUsage)
	}

	cmd, rest := fs.Arg(0), fs.Args()[1:]
	if cmd == "help" {
		a.usage(a.stdout)
		return nil
	}

	run, ok := a.commands()[cmd]
	if !ok {
		a.usage(a.stderr)
		return fmt.Errorf("%w: unknown command %q", ErrUsage, cmd)
	}

	if err := a.setup(verbose || hasVerbose(rest)); err != nil {
		return err
	}
	defer a.close()

	return run(ctx, rest, &verbose)
}

// hasVerbose spots --verbose after the command so logging is configured
// before the command's own flags are parsed.
func hasVerbose(args []string) bool {
	for _, arg := range args {
		switch arg {
		case "--":
			return false
		case "-v", "--v", "-verbose", "--verbose", "-v=true", "--verbose=true":
			return true
		}
	}
	return false
}

func (a *App) setup(verbose bool) error {
	if a.cfg == nil {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		a.cfg = cfg
	}
	if verbose {
		a.cfg.LogLevel = "debug"
	}
	if a.logger == nil {
		a.logger = logger.New(a.cfg.LogLevel, a.cfg.PrettyLog)
	}

	if a.cfg.Source != "" {
		a.logger.Debug("config file applied", logger.String("path", a.cfg.Source))
	}
	a.logger.Debugf("cfg: %+v", a.cfg.Redacted())
	return nil
}

func (a *App) close() {
	if a.redisClient != nil {
		utils.MustClose(a.redisClient, a.logger, "redis client")
		a.redisClient = nil
	}
	_ = a.logger.Sync()
}

func (a *App) usage(w io.Writer) {
	_, _ = fmt.Fprint(w, `A minimal Mullvad WireGuard client

Usage:
  mlvd [--verbose] <command> [options]

Commands:
  connect <filter> [-p <provider filter>] [--dry-run]
                     Connect to a random active relay matching the filters
  disconnect         Disconnect from the current relay
  list-relays [<filter>] [-p <provider filter>]
                     List relays matching the filters

Filters are comma-separated regular expressions; a leading "!" negates a
clause ("\!" matches a literal "!"). <filter> is matched against the relay
location and hostname.

Global options:
  -v, --verbose      Enable debug logging
      --version      Print version and exit
`)
}
