package tunnel

import (
	"fmt"
	"os/exec"

	"golang.org/x/sys/unix"
)

type preflightDeps struct {
	geteuid  func() int
	lookPath func(string) (string, error)
	access   func(string, uint32) error
}

func defaultPreflightDeps() preflightDeps {
	return preflightDeps{
		geteuid:  unix.Geteuid,
		lookPath: exec.LookPath,
		access:   unix.Access,
	}
}

// Preflight checks that the host can run Connect and Disconnect: root
// privileges, wg and wg-quick available, and a writable configuration dir.
func Preflight(cfg Config) error {
	return runPreflight(cfg, defaultPreflightDeps())
}

func runPreflight(cfg Config, deps preflightDeps) error {
	if cfg.Interface == "" {
		return fmt.Errorf("%w: interface name is required", ErrPreflight)
	}
	if deps.geteuid() != 0 {
		return fmt.Errorf("%w: must run as root", ErrPreflight)
	}
	for _, bin := range []string{orDefault(cfg.WgBin, "wg"), orDefault(cfg.WgQuickBin, "wg-quick")} {
		if _, err := deps.lookPath(bin); err != nil {
			return fmt.Errorf("%w: %s binary not found: %w", ErrPreflight, bin, err)
		}
	}
	if err := deps.access(cfg.WireGuardDir, unix.W_OK); err != nil {
		return fmt.Errorf("%w: %s is not writable: %w", ErrPreflight, cfg.WireGuardDir, err)
	}
	return nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
