package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/shinji-kodama/fmrepl/internal/model"
)

// Config holds every setting fmrepl reads from files and the environment.
type Config struct {
	// Backend selects how flamapy is reached: "exec" or "docker".
	Backend model.Backend `yaml:"backend" json:"backend"`

	Flamapy FlamapyConfig `yaml:"flamapy" json:"flamapy"`
	Docker  DockerConfig  `yaml:"docker" json:"docker"`
	Log     LogConfig     `yaml:"log" json:"log"`
	REPL    REPLConfig    `yaml:"repl" json:"repl"`
	Metrics MetricsConfig `yaml:"metrics" json:"metrics"`
}

// FlamapyConfig configures the exec backend.
type FlamapyConfig struct {
	// Command is the launcher argv, e.g. ["flamapy"] or
	// ["python3", "-m", "flamapy"].
	Command []string `yaml:"command" json:"command"`
}

// DockerConfig configures the docker backend.
type DockerConfig struct {
	// Image is an image whose PATH provides the flamapy launcher.
	Image string `yaml:"image" json:"image"`

	// Command is the launcher argv inside the image.
	Command []string `yaml:"command" json:"command"`

	// Pull pulls Image when it is missing locally.
	Pull bool `yaml:"pull" json:"pull"`

	// Host overrides DOCKER_HOST and socket auto-detection.
	Host string `yaml:"host" json:"host"`
}

// LogConfig configures the stderr logger.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level" json:"level"`

	// Format is "text" or "json".
	Format string `yaml:"format" json:"format"`
}

// REPLConfig configures interactive sessions. It has no effect when input
// is piped.
type REPLConfig struct {
	// Prompt is shown before each line on a terminal.
	Prompt string `yaml:"prompt" json:"prompt"`

	// HistoryFile persists interactive history; empty disables it.
	HistoryFile string `yaml:"history_file" json:"history_file"`
}

// MetricsConfig configures the Prometheus textfile output.
type MetricsConfig struct {
	// File receives operation metrics in the text exposition format when a
	// command finishes; empty disables metrics.
	File string `yaml:"file" json:"file"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Backend: model.BackendExec,
		Flamapy: FlamapyConfig{Command: []string{"flamapy"}},
		Docker: DockerConfig{
			Command: []string{"flamapy"},
			Pull:    true,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		REPL: REPLConfig{
			Prompt: "fm> ",
		},
	}
}

// SearchPaths lists the files Load tries when no explicit path is given,
// in order.
func SearchPaths() []string {
	paths := []string{"fmrepl.yaml", "fmrepl.yml", "fmrepl.jsonc", "fmrepl.json"}
	if dir, err := os.UserConfigDir(); err == nil {
		paths = append(paths,
			filepath.Join(dir, "fmrepl", "config.yaml"),
			filepath.Join(dir, "fmrepl", "config.jsonc"),
		)
	}
	return paths
}

// Load reads the configuration file at path on top of the defaults and
// returns it with the path that was used. An empty path searches
// SearchPaths and falls back to the defaults when none exists; an explicit
// path must exist.
func Load(path string) (Config, string, error) {
	if path != "" {
		cfg, err := LoadFile(path)
		return cfg, path, err
	}

	for _, candidate := range SearchPaths() {
		if _, err := os.Stat(candidate); err != nil {
			continue
		}
		cfg, err := LoadFile(candidate)
		return cfg, candidate, err
	}
	return Default(), "", nil
}

// LoadFile reads one configuration file. Files ending in .json or .jsonc
// are parsed as JSON with comments; everything else as YAML. Unknown keys
// are rejected.
func LoadFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Config{}, model.WrapCLIError(model.ExitConfigError,
				fmt.Sprintf("config file not found: %s", path), err)
		}
		return Config{}, model.WrapCLIError(model.ExitConfigError,
			fmt.Sprintf("failed to read config file %s", path), err)
	}

	cfg := Default()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".jsonc":
		err = decodeJSONC(data, &cfg)
	default:
		err = decodeYAML(data, &cfg)
	}
	if err != nil {
		return Config{}, model.WrapCLIError(model.ExitConfigError,
			fmt.Sprintf("failed to parse config file %s", path), err)
	}
	return cfg, nil
}

// decodeYAML decodes YAML into cfg, keeping defaults for absent keys.
func decodeYAML(data []byte, cfg *Config) error {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	return dec.Decode(cfg)
}

// decodeJSONC strips comments and trailing commas, then decodes the JSON
// into cfg, keeping defaults for absent keys.
func decodeJSONC(data []byte, cfg *Config) error {
	clean := jsonc.ToJSON(data)
	if len(bytes.TrimSpace(clean)) == 0 {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(clean))
	dec.DisallowUnknownFields()
	return dec.Decode(cfg)
}
