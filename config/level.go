package config

import (
	"fmt"
	"strings"

	"github.com/hashicorp/go-hclog"
	"gopkg.in/yaml.v3"
)

// Level is a log level written by name in config files.
type Level hclog.Level

func parseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "warning":
		return Level(hclog.Warn), nil
	case "none":
		return Level(hclog.Off), nil
	}
	l := hclog.LevelFromString(s)
	if l == hclog.NoLevel {
		return Level(hclog.NoLevel), fmt.Errorf("log_level must be trace, debug, info, warn, error or off: %q", s)
	}
	return Level(l), nil
}

// UnmarshalText implements encoding.TextUnmarshaler for TOML.
func (l *Level) UnmarshalText(text []byte) error {
	v, err := parseLevel(string(text))
	if err != nil {
		return err
	}
	*l = v
	return nil
}

// UnmarshalYAML accepts a level name or its number.
func (l *Level) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err == nil {
		if v, err := parseLevel(s); err == nil {
			*l = v
			return nil
		}
	}

	var i int
	if err := value.Decode(&i); err != nil {
		return fmt.Errorf("log_level must be a name or a number: %q", value.Value)
	}
	if i < int(hclog.Trace) || i > int(hclog.Off) {
		return fmt.Errorf("log_level %d out of range", i)
	}
	*l = Level(i)
	return nil
}

func (l Level) String() string {
	return hclog.Level(l).String()
}
