package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/google/shlex"
	"github.com/joho/godotenv"

	"github.com/shinji-kodama/fmrepl/internal/model"
)

// Environment variables read by ApplyEnv.
const (
	EnvBackend        = "FMREPL_BACKEND"
	EnvFlamapyCommand = "FMREPL_FLAMAPY_COMMAND"
	EnvDockerImage    = "FMREPL_DOCKER_IMAGE"
	EnvDockerPull     = "FMREPL_DOCKER_PULL"
	EnvDockerHost     = "FMREPL_DOCKER_HOST"
	EnvLogLevel       = "FMREPL_LOG_LEVEL"
	EnvLogFormat      = "FMREPL_LOG_FORMAT"
	EnvHistoryFile    = "FMREPL_HISTORY_FILE"
	EnvMetricsFile    = "FMREPL_METRICS_FILE"
)

// LoadDotEnv loads variables from the given .env files (".env" when none
// are given) without overriding variables already set. Missing files are
// ignored.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return model.WrapCLIError(model.ExitConfigError,
				fmt.Sprintf("failed to load environment file %s", f), err)
		}
	}
	return nil
}

// ApplyEnv overrides cfg with FMREPL_* variables found through lookup
// (os.LookupEnv in production). Values are parsed, not validated.
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	if lookup == nil {
		lookup = os.LookupEnv
	}

	if v, ok := lookup(EnvBackend); ok {
		cfg.Backend = model.Backend(strings.ToLower(strings.TrimSpace(v)))
	}
	if v, ok := lookup(EnvFlamapyCommand); ok {
		argv, err := shlex.Split(v)
		if err != nil {
			return model.WrapCLIError(model.ExitConfigError,
				fmt.Sprintf("invalid %s %q", EnvFlamapyCommand, v), err)
		}
		cfg.Flamapy.Command = argv
	}
	if v, ok := lookup(EnvDockerImage); ok {
		cfg.Docker.Image = strings.TrimSpace(v)
	}
	if v, ok := lookup(EnvDockerPull); ok {
		pull, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return model.WrapCLIError(model.ExitConfigError,
				fmt.Sprintf("invalid %s %q", EnvDockerPull, v), err)
		}
		cfg.Docker.Pull = pull
	}
	if v, ok := lookup(EnvDockerHost); ok {
		cfg.Docker.Host = strings.TrimSpace(v)
	}
	if v, ok := lookup(EnvLogLevel); ok {
		cfg.Log.Level = strings.TrimSpace(v)
	}
	if v, ok := lookup(EnvLogFormat); ok {
		cfg.Log.Format = strings.TrimSpace(v)
	}
	if v, ok := lookup(EnvHistoryFile); ok {
		cfg.REPL.HistoryFile = os.ExpandEnv(strings.TrimSpace(v))
	}
	if v, ok := lookup(EnvMetricsFile); ok {
		cfg.Metrics.File = os.ExpandEnv(strings.TrimSpace(v))
	}
	return nil
}
