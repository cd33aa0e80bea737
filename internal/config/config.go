package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/MrSnakeDoc/mlvd/internal/logger"
	"github.com/MrSnakeDoc/mlvd/internal/utils"
)

const (
	BackendFile  = "file"
	BackendRedis = "redis"

	DefaultBaseDir   = "/var/lib/mlvd"
	DefaultRelaysURL = "https://api.mullvad.net/app/v1/relays"
	DefaultFwmark    = "0xca6c"
)

type Config struct {
	BaseDir         string        `yaml:"base_dir"`         // cache + template location (ex: /var/lib/mlvd)
	RelaysURL       string        `yaml:"relays_url"`       // remote relay directory endpoint
	FreshnessWindow time.Duration `yaml:"freshness_window"` // cached directory is reused while younger than this
	FetchTimeout    time.Duration `yaml:"fetch_timeout"`    // bound on the whole HTTP exchange

	Interface    string `yaml:"interface"`     // tunnel interface name (ex: mlvd)
	WireGuardDir string `yaml:"wireguard_dir"` // where wg-quick expects <iface>.conf
	TemplateFile string `yaml:"template_file"` // template with SERVER_IP / SERVER_PUBKEY
	Fwmark       string `yaml:"fwmark"`        // routing mark restored after setconf
	WgBin        string `yaml:"wg_bin"`
	WgQuickBin   string `yaml:"wg_quick_bin"`
	SysfsNetDir  string `yaml:"sysfs_net_dir"` // interface presence is checked here

	LogLevel  string `yaml:"log_level"`  // "debug" | "info" | "warn" | "error"
	PrettyLog bool   `yaml:"pretty_log"` // true => zap dev (color), false => zap prod (JSON)

	CacheBackend        string        `yaml:"cache_backend"` // "file" | "redis"
	RedisAddr           string        `yaml:"redis_addr"`
	RedisPassword       string        `yaml:"redis_password"`
	RedisDB             int           `yaml:"redis_db"`
	RedisKeyPrefix      string        `yaml:"redis_key_prefix"`
	RedisConnectTimeout time.Duration `yaml:"redis_connect_timeout"`

	// Path of the YAML file that was applied, empty when none was found.
	Source string `yaml:"-"`
}

func Default() *Config {
	return &Config{
		BaseDir:             DefaultBaseDir,
		RelaysURL:           DefaultRelaysURL,
		FreshnessWindow:     15 * time.Minute,
		FetchTimeout:        10 * time.Second,
		Interface:           "mlvd",
		WireGuardDir:        "/etc/wireguard",
		Fwmark:              DefaultFwmark,
		WgBin:               "wg",
		WgQuickBin:          "wg-quick",
		SysfsNetDir:         "/sys/class/net",
		LogLevel:            "info",
		PrettyLog:           true,
		CacheBackend:        BackendFile,
		RedisKeyPrefix:      "mlvd:relays:",
		RedisConnectTimeout: 3 * time.Second,
	}
}

// Load builds the configuration from defaults, the optional YAML file, then
// MLVD_* environment variables.
func Load() (*Config, error) {
	cfg := Default()
	cfg.BaseDir = getenv("MLVD_BASE_DIR", cfg.BaseDir)

	path := getenv("MLVD_CONFIG", filepath.Join(cfg.BaseDir, "config.yaml"))
	if err := cfg.overlayFile(path); err != nil {
		return nil, err
	}
	cfg.applyEnv()

	if cfg.TemplateFile == "" {
		cfg.TemplateFile = filepath.Join(cfg.BaseDir, "template.conf")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) overlayFile(path string) error {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("open config %s: %w", path, err)
	}
	defer utils.Close(file)

	decoder := yaml.NewDecoder(file)
	decoder.KnownFields(true) // Strict validation: reject unknown fields
	if err := decoder.Decode(c); err != nil {
		// an empty file decodes to io.EOF
		if errors.Is(err, io.EOF) {
			c.Source = path
			return nil
		}
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	c.Source = path
	return nil
}

func (c *Config) applyEnv() {
	c.BaseDir = getenv("MLVD_BASE_DIR", c.BaseDir)
	c.RelaysURL = getenv("MLVD_RELAYS_URL", c.RelaysURL)
	c.FreshnessWindow = mustDuration("MLVD_FRESHNESS_WINDOW", c.FreshnessWindow)
	c.FetchTimeout = mustDuration("MLVD_FETCH_TIMEOUT", c.FetchTimeout)

	c.Interface = getenv("MLVD_INTERFACE", c.Interface)
	c.WireGuardDir = getenv("MLVD_WIREGUARD_DIR", c.WireGuardDir)
	c.TemplateFile = getenv("MLVD_TEMPLATE_FILE", c.TemplateFile)
	c.Fwmark = getenv("MLVD_FWMARK", c.Fwmark)
	c.WgBin = getenv("MLVD_WG_BIN", c.WgBin)
	c.WgQuickBin = getenv("MLVD_WG_QUICK_BIN", c.WgQuickBin)
	c.SysfsNetDir = getenv("MLVD_SYSFS_NET_DIR", c.SysfsNetDir)

	c.LogLevel = getenv("MLVD_LOG_LEVEL", c.LogLevel)
	c.PrettyLog = mustBool("MLVD_PRETTY_LOG", c.PrettyLog)

	c.CacheBackend = getenv("MLVD_CACHE_BACKEND", c.CacheBackend)
	c.RedisAddr = getenv("MLVD_REDIS_ADDR", c.RedisAddr)
	c.RedisPassword = getenv("MLVD_REDIS_PASSWORD", c.RedisPassword)
	c.RedisDB = getenvInt("MLVD_REDIS_DB", c.RedisDB)
	c.RedisKeyPrefix = getenv("MLVD_REDIS_KEY_PREFIX", c.RedisKeyPrefix)
	c.RedisConnectTimeout = mustDuration("MLVD_REDIS_CONNECT_TIMEOUT", c.RedisConnectTimeout)
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.Interface) == "" {
		return fmt.Errorf("interface name is required")
	}
	if strings.ContainsAny(c.Interface, "/ ") {
		return fmt.Errorf("invalid interface name %q", c.Interface)
	}
	if c.BaseDir == "" {
		return fmt.Errorf("base_dir is required")
	}
	if c.RelaysURL == "" {
		return fmt.Errorf("relays_url is required")
	}
	if c.FreshnessWindow <= 0 {
		return fmt.Errorf("freshness_window must be > 0, got %v", c.FreshnessWindow)
	}
	if c.FetchTimeout <= 0 {
		return fmt.Errorf("fetch_timeout must be > 0, got %v", c.FetchTimeout)
	}
	if !logger.ValidLevel(c.LogLevel) {
		return fmt.Errorf("invalid log_level %q (want debug, info, warn or error)", c.LogLevel)
	}
	if _, err := c.FwmarkValue(); err != nil {
		return err
	}
	switch c.CacheBackend {
	case BackendFile:
	case BackendRedis:
		if c.RedisAddr == "" {
			return fmt.Errorf("redis_addr is required when cache_backend is %q", BackendRedis)
		}
		if c.RedisConnectTimeout <= 0 {
			return fmt.Errorf("redis_connect_timeout must be > 0, got %v", c.RedisConnectTimeout)
		}
	default:
		return fmt.Errorf("unknown cache_backend %q (want %q or %q)", c.CacheBackend, BackendFile, BackendRedis)
	}
	return nil
}

// FwmarkValue parses the routing mark, accepting decimal or 0x-prefixed hex.
func (c *Config) FwmarkValue() (uint32, error) {
	v, err := strconv.ParseUint(c.Fwmark, 0, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid fwmark %q: %w", c.Fwmark, err)
	}
	return uint32(v), nil
}

// Redacted returns a copy safe to log.
func (c *Config) Redacted() Config {
	cp := *c
	if cp.RedisPassword != "" {
		cp.RedisPassword = "***REDACTED***"
	}
	return cp
}

// helpers
func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func mustBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return def
}

func mustDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
