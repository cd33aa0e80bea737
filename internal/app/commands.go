package app

import (
	"context"
	"errors"
	"flag"
	"fmt"

	"github.com/MrSnakeDoc/mlvd/internal/domain"
	"github.com/MrSnakeDoc/mlvd/internal/filter"
	"github.com/MrSnakeDoc/mlvd/internal/logger"
)

type command func(ctx context.Context, args []string, verbose *bool) error

func (a *App) commands() map[string]command {
	return map[string]command{
		"connect":     a.connect,
		"disconnect":  a.disconnect,
		"list-relays": a.listRelays,
	}
}

func (a *App) newFlagSet(name string, verbose *bool) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(a.stderr)
	// already applied by Run; defined so the flag parses after the command
	fs.BoolVar(verbose, "verbose", *verbose, "Enable debug logging")
	fs.BoolVar(verbose, "v", *verbose, "Shorthand for --verbose")
	return fs
}

func providerFlag(fs *flag.FlagSet) *string {
	provider := new(string)
	fs.StringVar(provider, "p", "", "Provider filter")
	fs.StringVar(provider, "provider", "", "Provider filter")
	return provider
}

// compileFilters compiles the location and provider filters. Both report
// filter.ErrInvalidPattern on a bad pattern.
func compileFilters(location, provider string) (*filter.Filter, *filter.Filter, error) {
	loc, err := filter.Compile(location)
	if err != nil {
		return nil, nil, fmt.Errorf("location filter: %w", err)
	}
	prov, err := filter.Compile(provider)
	if err != nil {
		return nil, nil, fmt.Errorf("provider filter: %w", err)
	}
	return loc, prov, nil
}

// parseInterleaved parses flags placed before, between or after positional
// arguments and returns the positionals.
func parseInterleaved(fs *flag.FlagSet, args []string) ([]string, error) {
	var positional []string
	for {
		if err := fs.Parse(args); err != nil {
			return nil, err
		}
		args = fs.Args()
		if len(args) == 0 {
			return positional, nil
		}
		positional = append(positional, args[0])
		args = args[1:]
	}
}

func parseCommand(fs *flag.FlagSet, args []string) ([]string, error) {
	positional, err := parseInterleaved(fs, args)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s: %w", ErrUsage, fs.Name(), err)
	}
	return positional, nil
}

func (a *App) connect(ctx context.Context, args []string, verbose *bool) error {
	fs := a.newFlagSet("connect", verbose)
	provider := providerFlag(fs)
	dryRun := fs.Bool("dry-run", false, "Print the WireGuard configuration instead of applying it")

	positional, err := parseCommand(fs, args)
	if errors.Is(err, flag.ErrHelp) {
		return nil
	}
	if err != nil {
		return err
	}
	if len(positional) != 1 {
		return fmt.Errorf("%w: connect takes exactly one location/hostname filter, got %d", ErrUsage, len(positional))
	}
	location, providerFilter, err := compileFilters(positional[0], *provider)
	if err != nil {
		return err
	}

	tcfg, err := a.tunnelConfig()
	if err != nil {
		return err
	}
	ctrl := a.newController(tcfg)
	if !*dryRun {
		if err := a.preflight(tcfg); err != nil {
			return err
		}
	}

	dir, err := a.newCache(ctx).Get(ctx)
	if err != nil {
		return err
	}

	candidates := dir.Filter(domain.Criteria{Location: location, Provider: providerFilter, RequireActive: true})
	a.logger.Infof("Found %d matching relays, picking one", len(candidates))

	relay, err := domain.NewSelector(a.rng).Choose(candidates)
	if err != nil {
		return err
	}
	a.logger.Debug("chosen relay",
		logger.String("hostname", relay.Hostname),
		logger.String("ip", relay.IP.String()),
		logger.Uint64("weight", relay.Weight))

	if *dryRun {
		conf, err := ctrl.Render(relay)
		if err != nil {
			return err
		}
		a.logger.Infof("Dry run, would connect to %s", a.describe(relay))
		_, err = fmt.Fprint(a.stdout, conf)
		return err
	}

	a.logger.Infof("Connecting to %s", a.describe(relay))
	state, err := ctrl.Connect(ctx, relay)
	if err != nil {
		return err
	}
	a.logger.Info("Connected successfully!", logger.String("interface_was", state.String()))
	return nil
}

func (a *App) disconnect(ctx context.Context, args []string, verbose *bool) error {
	fs := a.newFlagSet("disconnect", verbose)
	positional, err := parseCommand(fs, args)
	if errors.Is(err, flag.ErrHelp) {
		return nil
	}
	if err != nil {
		return err
	}
	if len(positional) != 0 {
		return fmt.Errorf("%w: disconnect takes no arguments", ErrUsage)
	}

	tcfg, err := a.tunnelConfig()
	if err != nil {
		return err
	}
	ctrl := a.newController(tcfg)
	if err := a.preflight(tcfg); err != nil {
		return err
	}

	a.logger.Info("Disconnecting...")
	if err := ctrl.Disconnect(ctx); err != nil {
		return err
	}
	a.logger.Info("Disconnected successfully!")
	return nil
}

func (a *App) listRelays(ctx context.Context, args []string, verbose *bool) error {
	fs := a.newFlagSet("list-relays", verbose)
	provider := providerFlag(fs)

	positional, err := parseCommand(fs, args)
	if errors.Is(err, flag.ErrHelp) {
		return nil
	}
	if err != nil {
		return err
	}
	if len(positional) > 1 {
		return fmt.Errorf("%w: list-relays takes at most one location/hostname filter, got %d", ErrUsage, len(positional))
	}
	locationText := ""
	if len(positional) == 1 {
		locationText = positional[0]
	}
	location, providerFilter, err := compileFilters(locationText, *provider)
	if err != nil {
		return err
	}

	dir, err := a.newCache(ctx).Get(ctx)
	if err != nil {
		return err
	}

	relays := dir.Filter(domain.Criteria{Location: location, Provider: providerFilter})
	return a.printRelays(relays)
}
