package config

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hashicorp/go-hclog"
	"github.com/sergev/fluxscan/geom"
	"github.com/sergev/fluxscan/scan"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("embedded default: %v", err)
	}
	if hclog.Level(cfg.LogLevel) != hclog.Warn {
		t.Errorf("LogLevel = %s", cfg.LogLevel)
	}

	opts, err := cfg.Options()
	if err != nil {
		t.Fatalf("Options: %v", err)
	}
	if opts != scan.DefaultOptions() {
		t.Errorf("default config options %+v, expected %+v", opts, scan.DefaultOptions())
	}
}

func TestParse(t *testing.T) {
	tests := []struct {
		name   string
		format Format
		data   string
		check  func(t *testing.T, cfg *Config, opts scan.Options)
	}{
		{
			name:   "toml",
			format: TOML,
			data: `version = "1.2"
log_level = "debug"
[scan]
encoding = "amiga"
gaps = "all"
max_copies = 5
`,
			check: func(t *testing.T, cfg *Config, opts scan.Options) {
				if hclog.Level(cfg.LogLevel) != hclog.Debug {
					t.Errorf("LogLevel = %s", cfg.LogLevel)
				}
				if opts.Encoding != geom.EncodingAmiga || opts.Gaps != scan.GapsAll || opts.Policy.MaxCopies != 5 {
					t.Errorf("options %+v", opts)
				}
				if !opts.FM || opts.MaxSplice != geom.DefaultMaxSplice {
					t.Errorf("unset keys lost their defaults: %+v", opts)
				}
			},
		},
		{
			name:   "yaml",
			format: YAML,
			data: `version: "1.0.0"
log_level: trace
scan:
  datarate: 500k
  fm: false
  fill: 229
  no_wobble: true
`,
			check: func(t *testing.T, cfg *Config, opts scan.Options) {
				if hclog.Level(cfg.LogLevel) != hclog.Trace {
					t.Errorf("LogLevel = %s", cfg.LogLevel)
				}
				if opts.DataRate != geom.DataRate500K || opts.FM || opts.Policy.Fill != 229 || !opts.NoWobble {
					t.Errorf("options %+v", opts)
				}
			},
		},
		{
			name:   "yaml numeric level",
			format: YAML,
			data:   "version: \"1.0.0\"\nlog_level: 2\n",
			check: func(t *testing.T, cfg *Config, opts scan.Options) {
				if hclog.Level(cfg.LogLevel) != hclog.Debug {
					t.Errorf("LogLevel = %s", cfg.LogLevel)
				}
			},
		},
		{
			name:   "auto detection",
			format: TOML,
			data:   "version = \"1.0.0\"\n[scan]\nencoding = \"auto\"\ndatarate = \"auto\"\n",
			check: func(t *testing.T, cfg *Config, opts scan.Options) {
				if opts.Encoding != geom.EncodingUnknown || opts.DataRate != geom.DataRateUnknown {
					t.Errorf("options %+v", opts)
				}
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Parse([]byte(tt.data), tt.format)
			if err != nil {
				t.Fatalf("Parse: %v", err)
			}
			opts, err := cfg.Options()
			if err != nil {
				t.Fatalf("Options: %v", err)
			}
			tt.check(t, cfg, opts)
		})
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		version bool // expect ErrUnsupportedVersion
	}{
		{"missing version", "log_level = \"info\"\n", true},
		{"newer major version", "version = \"2.0.0\"\n", true},
		{"older version", "version = \"0.9\"\n", true},
		{"bad version", "version = \"one\"\n", true},
		{"bad level", "version = \"1.0.0\"\nlog_level = \"loud\"\n", false},
		{"bad encoding", "version = \"1.0.0\"\n[scan]\nencoding = \"morse\"\n", false},
		{"bad data rate", "version = \"1.0.0\"\n[scan]\ndatarate = \"123k\"\n", false},
		{"bad gaps", "version = \"1.0.0\"\n[scan]\ngaps = \"some\"\n", false},
		{"no copies", "version = \"1.0.0\"\n[scan]\nmax_copies = 0\n", false},
		{"negative splice", "version = \"1.0.0\"\n[scan]\nmax_splice = -1\n", false},
		{"fill", "version = \"1.0.0\"\n[scan]\nfill = 256\n", false},
		{"syntax", "version = \n", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.data), TOML)
			if err == nil {
				t.Fatalf("Parse accepted %q", tt.data)
			}
			if errors.Is(err, ErrUnsupportedVersion) != tt.version {
				t.Errorf("error %v: version error %v, expected %v", err, !tt.version, tt.version)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	write := func(name, content string) string {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatalf("writing %s: %v", name, err)
		}
		return path
	}

	cfg, err := Load(write("a.yml", "version: \"1.1.0\"\nscan:\n  gcr: true\n"))
	if err != nil || !cfg.Scan.GCR {
		t.Errorf("Load yaml: %+v, %v", cfg, err)
	}
	cfg, err = Load(write("b.toml", "version = \"1.1.0\"\n[scan]\nace = true\n"))
	if err != nil || !cfg.Scan.Ace {
		t.Errorf("Load toml: %+v, %v", cfg, err)
	}

	if _, err := Load(write("c.json", "{}")); err == nil {
		t.Errorf("Load accepted a .json file")
	}
	if _, err := Load(filepath.Join(dir, "missing.toml")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Load of a missing file: %v", err)
	}
}

func TestInitialize(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", ".fluxscan")
	if err := initializeFrom(path); err != nil {
		t.Fatalf("initializeFrom: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("default config not written: %v", err)
	}
	if !bytes.Equal(data, defaultConfigData) {
		t.Errorf("written config differs from the embedded default")
	}
	if Options != scan.DefaultOptions() || hclog.Level(LogLevel) != hclog.Warn {
		t.Errorf("Options %+v, LogLevel %s", Options, LogLevel)
	}

	// An existing file is read, not replaced.
	if err := os.WriteFile(path, []byte("version = \"1.0.0\"\n[scan]\nno_gap2 = true\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := initializeFrom(path); err != nil {
		t.Fatalf("initializeFrom: %v", err)
	}
	if !Options.NoGap2 {
		t.Errorf("existing config ignored")
	}
	Options = scan.DefaultOptions()
}

func TestLogger(t *testing.T) {
	cfg := Default()
	cfg.LogLevel = Level(hclog.Debug)

	var buf bytes.Buffer
	logger := cfg.Logger(&buf)
	logger.Trace("hidden message")
	logger.Debug("visible message", "track", 3)

	out := buf.String()
	if strings.Contains(out, "hidden") || !strings.Contains(out, "visible message") {
		t.Errorf("log output %q", out)
	}
}
