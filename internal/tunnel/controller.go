// Package tunnel drives wg and wg-quick to bring the relay tunnel up, swap
// its peer in place, or take it down.
package tunnel

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/MrSnakeDoc/mlvd/internal/domain"
	"github.com/MrSnakeDoc/mlvd/internal/logger"
)

// State is whether the tunnel interface exists on the host.
type State int

const (
	Absent State = iota
	Present
)

func (s State) String() string {
	if s == Present {
		return "present"
	}
	return "absent"
}

// DefaultFwmark is the routing mark wg-quick assigns; setconf drops it.
const DefaultFwmark uint32 = 0xca6c

type Config struct {
	Interface    string // ex: mlvd
	WireGuardDir string // ex: /etc/wireguard
	TemplateFile string
	Fwmark       uint32
	WgBin        string
	WgQuickBin   string
	SysfsNetDir  string // ex: /sys/class/net
}

// Controller owns one named interface and its configuration file.
type Controller struct {
	cfg    Config
	runner Runner
	log    logger.Logger
}

func New(cfg Config, runner Runner, log logger.Logger) *Controller {
	if cfg.WgBin == "" {
		cfg.WgBin = "wg"
	}
	if cfg.WgQuickBin == "" {
		cfg.WgQuickBin = "wg-quick"
	}
	if cfg.SysfsNetDir == "" {
		cfg.SysfsNetDir = "/sys/class/net"
	}
	if cfg.Fwmark == 0 {
		cfg.Fwmark = DefaultFwmark
	}
	if runner == nil {
		runner = ExecRunner{}
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Controller{cfg: cfg, runner: runner, log: log.With(logger.String("interface", cfg.Interface))}
}

// ConfigPath is where wg-quick looks for the interface configuration.
func (c *Controller) ConfigPath() string {
	return filepath.Join(c.cfg.WireGuardDir, c.cfg.Interface+".conf")
}

// State reports whether the interface currently exists.
func (c *Controller) State() (State, error) {
	path := filepath.Join(c.cfg.SysfsNetDir, c.cfg.Interface)
	_, err := os.Stat(path)
	switch {
	case err == nil:
		return Present, nil
	case errors.Is(err, fs.ErrNotExist):
		return Absent, nil
	default:
		return Absent, fmt.Errorf("failed to inspect %s: %w", path, err)
	}
}

// Render returns the configuration for relay without writing it.
func (c *Controller) Render(relay domain.Relay) (string, error) {
	data, err := os.ReadFile(c.cfg.TemplateFile)
	if err != nil {
		return "", fmt.Errorf("%w: failed to read %s: %w", ErrTemplate, c.cfg.TemplateFile, err)
	}
	tpl := string(data)
	if missing := MissingPlaceholders(tpl); len(missing) > 0 {
		c.log.Warn("template is missing placeholders",
			logger.String("template", c.cfg.TemplateFile),
			logger.Strings("placeholders", missing))
	}
	return Render(tpl, relay.IP, relay.PublicKey), nil
}

// Connect writes the configuration for relay and brings the interface up,
// or swaps its peer in place when it already exists. It returns the state
// the interface was found in.
func (c *Controller) Connect(ctx context.Context, relay domain.Relay) (State, error) {
	conf, err := c.Render(relay)
	if err != nil {
		return Absent, err
	}
	if err := c.writeConfig(conf); err != nil {
		return Absent, err
	}

	state, err := c.State()
	if err != nil {
		return Absent, err
	}
	if state == Present {
		c.log.Info("reusing existing interface")
		return state, c.reuse(ctx)
	}

	c.log.Info("bringing interface up")
	_, err = c.run(ctx, StepUp, nil, c.cfg.WgQuickBin, "up", c.cfg.Interface)
	return state, err
}

// Disconnect takes the interface down.
func (c *Controller) Disconnect(ctx context.Context) error {
	c.log.Info("bringing interface down")
	_, err := c.run(ctx, StepDown, nil, c.cfg.WgQuickBin, "down", c.cfg.Interface)
	return err
}

// reuse replaces the peer of a live interface: strip, setconf, fwmark.
// strip output is buffered so its exit status is checked before apply runs.
func (c *Controller) reuse(ctx context.Context) error {
	stripped, err := c.run(ctx, StepStrip, nil, c.cfg.WgQuickBin, "strip", c.cfg.Interface)
	if err != nil {
		return err
	}
	if _, err := c.run(ctx, StepApply, bytes.NewReader(stripped), c.cfg.WgBin, "setconf", c.cfg.Interface, "/dev/stdin"); err != nil {
		return err
	}
	mark := fmt.Sprintf("0x%x", c.cfg.Fwmark)
	_, err = c.run(ctx, StepFwmark, nil, c.cfg.WgBin, "set", c.cfg.Interface, "fwmark", mark)
	return err
}

func (c *Controller) run(ctx context.Context, step string, stdin io.Reader, name string, args ...string) ([]byte, error) {
	command := append([]string{name}, args...)
	c.log.Debug("running", logger.String("step", step), logger.String("command", strings.Join(command, " ")))

	out, err := c.runner.Run(ctx, stdin, name, args...)
	if err != nil {
		return nil, newToolError(step, command, err)
	}
	return out, nil
}

// writeConfig replaces the configuration file with mode 0600.
func (c *Controller) writeConfig(conf string) error {
	path := c.ConfigPath()
	tmp, err := os.CreateTemp(c.cfg.WireGuardDir, "."+c.cfg.Interface+".conf-")
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("failed to chmod %s: %w", tmpName, err)
	}
	if _, err := tmp.WriteString(conf); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("failed to write %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("failed to write %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	c.log.Debug("wrote configuration", logger.String("path", path))
	return nil
}
