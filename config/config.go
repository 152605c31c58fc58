// Package config reads scanner settings from TOML or YAML files.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/blang/semver"
	"github.com/hashicorp/go-hclog"
	"github.com/sergev/fluxscan/geom"
	"github.com/sergev/fluxscan/scan"
	"gopkg.in/yaml.v3"
)

//go:embed fluxscan.toml
var defaultConfigData []byte

// ErrUnsupportedVersion is returned for config files written for another
// major version.
var ErrUnsupportedVersion = errors.New("config: unsupported version")

// supportedVersions is the range of config versions understood.
var supportedVersions = semver.MustParseRange(">=1.0.0 <2.0.0")

// Settings loaded by Initialize.
var (
	Options  scan.Options
	LogLevel Level
)

// Format is a config file syntax.
type Format int

const (
	TOML Format = iota
	YAML
)

// Config represents the whole configuration file.
type Config struct {
	Version  string `toml:"version" yaml:"version"`
	LogLevel Level  `toml:"log_level" yaml:"log_level"`
	Scan     Scan   `toml:"scan" yaml:"scan"`
}

// Scan holds the decoder settings.
type Scan struct {
	Encoding    string `toml:"encoding" yaml:"encoding"`
	DataRate    string `toml:"datarate" yaml:"datarate"`
	FM          bool   `toml:"fm" yaml:"fm"`
	Ace         bool   `toml:"ace" yaml:"ace"`
	GCR         bool   `toml:"gcr" yaml:"gcr"`
	IDCRC       bool   `toml:"id_crc" yaml:"id_crc"`
	Gaps        string `toml:"gaps" yaml:"gaps"`
	NoGap2      bool   `toml:"no_gap2" yaml:"no_gap2"`
	NoGap4b     bool   `toml:"no_gap4b" yaml:"no_gap4b"`
	KeepOverlap bool   `toml:"keep_overlap" yaml:"keep_overlap"`
	MaxSplice   int    `toml:"max_splice" yaml:"max_splice"`
	NoWobble    bool   `toml:"no_wobble" yaml:"no_wobble"`
	Verbose     bool   `toml:"verbose" yaml:"verbose"`
	MaxCopies   int    `toml:"max_copies" yaml:"max_copies"`
	NormalDisk  bool   `toml:"normal_disk" yaml:"normal_disk"`
	Fill        int    `toml:"fill" yaml:"fill"`
}

// formatOf picks the syntax from a file extension.
func formatOf(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return YAML, nil
	case ".toml", "":
		return TOML, nil
	}
	return TOML, fmt.Errorf("unknown config file type %q", path)
}

// decode layers data over cfg. Keys absent from data keep their values.
func decode(cfg *Config, data []byte, format Format) error {
	switch format {
	case YAML:
		return yaml.Unmarshal(data, cfg)
	default:
		_, err := toml.Decode(string(data), cfg)
		return err
	}
}

// Default returns the built-in configuration.
func Default() *Config {
	var cfg Config
	if err := decode(&cfg, defaultConfigData, TOML); err != nil {
		panic(fmt.Sprintf("config: embedded default is invalid: %v", err))
	}
	return &cfg
}

// Parse reads configuration content over the defaults and validates it.
func Parse(data []byte, format Format) (*Config, error) {
	cfg := Default()
	cfg.Version = ""
	if err := decode(cfg, data, format); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Load reads a .toml, .yaml or .yml file.
func Load(path string) (*Config, error) {
	format, err := formatOf(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	cfg, err := Parse(data, format)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the version and every scanner setting.
func (c *Config) Validate() error {
	if c.Version == "" {
		return fmt.Errorf("%w: version key is missing", ErrUnsupportedVersion)
	}
	v, err := semver.ParseTolerant(c.Version)
	if err != nil {
		return fmt.Errorf("%w: %q: %v", ErrUnsupportedVersion, c.Version, err)
	}
	if !supportedVersions(v) {
		return fmt.Errorf("%w: %s", ErrUnsupportedVersion, v)
	}

	_, err = c.Options()
	return err
}

// Options converts the scanner settings.
func (c *Config) Options() (scan.Options, error) {
	s := c.Scan
	opts := scan.DefaultOptions()

	var err error
	if !strings.EqualFold(s.Encoding, "auto") {
		if opts.Encoding, err = geom.ParseEncoding(s.Encoding); err != nil {
			return opts, err
		}
	}
	if !strings.EqualFold(s.DataRate, "auto") {
		if opts.DataRate, err = geom.ParseDataRate(s.DataRate); err != nil {
			return opts, err
		}
	}
	if opts.Gaps, err = scan.ParseGapMode(s.Gaps); err != nil {
		return opts, err
	}

	if s.MaxSplice < 0 {
		return opts, fmt.Errorf("max_splice must not be negative: %d", s.MaxSplice)
	}
	if s.MaxCopies < 1 {
		return opts, fmt.Errorf("max_copies must be at least 1: %d", s.MaxCopies)
	}
	if s.Fill < -1 || s.Fill > 0xff {
		return opts, fmt.Errorf("fill must be -1 or a byte value: %d", s.Fill)
	}

	opts.FM = s.FM
	opts.Ace = s.Ace
	opts.GCR = s.GCR
	opts.IDCRC = s.IDCRC
	opts.NoGap2 = s.NoGap2
	opts.NoGap4b = s.NoGap4b
	opts.KeepOverlap = s.KeepOverlap
	opts.MaxSplice = s.MaxSplice
	opts.NoWobble = s.NoWobble
	opts.Verbose = s.Verbose
	opts.Policy.MaxCopies = s.MaxCopies
	opts.Policy.NormalDisk = s.NormalDisk
	opts.Policy.Fill = s.Fill
	return opts, nil
}

// Logger returns a logger writing to w at the configured level.
func (c *Config) Logger(w io.Writer) hclog.Logger {
	return hclog.New(&hclog.LoggerOptions{
		Name:   "fluxscan",
		Level:  hclog.Level(c.LogLevel),
		Output: w,
	})
}

// configPath determines the config file path based on the operating system
func configPath() (string, error) {
	var configDir string
	var err error

	switch runtime.GOOS {
	case "windows":
		configDir, err = os.UserConfigDir()
		if err != nil {
			return "", fmt.Errorf("cannot determine user config directory: %w", err)
		}
		configDir = filepath.Join(configDir, "fluxscan")
	default:
		configDir, err = os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("cannot determine user home directory: %w", err)
		}
	}

	return filepath.Join(configDir, ".fluxscan"), nil
}

// Initialize loads and validates the user's configuration file, creating
// it from the embedded default if it doesn't exist.
func Initialize() error {
	path, err := configPath()
	if err != nil {
		return err
	}
	return initializeFrom(path)
}

func initializeFrom(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create config directory %s: %w", dir, err)
		}
		if err := os.WriteFile(path, defaultConfigData, 0644); err != nil {
			return fmt.Errorf("failed to create default config file at %s: %w", path, err)
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config: %w", err)
	}
	cfg, err := Parse(data, TOML)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	opts, err := cfg.Options()
	if err != nil {
		return err
	}
	Options = opts
	LogLevel = cfg.LogLevel
	return nil
}
