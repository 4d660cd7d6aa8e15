package config

import (
	"fmt"
	"strings"

	"github.com/shinji-kodama/fmrepl/internal/model"
)

// ValidationError is one invalid setting.
type ValidationError struct {
	// Field is the dotted key of the setting, e.g. "docker.image".
	Field string

	// Message describes what's wrong with the value.
	Message string
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors collects every problem found by Validate.
type ValidationErrors []ValidationError

// Error joins all problems into one message.
func (errs ValidationErrors) Error() string {
	parts := make([]string, 0, len(errs))
	for _, e := range errs {
		parts = append(parts, e.Error())
	}
	return "invalid configuration: " + strings.Join(parts, "; ")
}

// Validate checks cfg and returns ValidationErrors wrapped in a CLIError
// with ExitConfigError, or nil.
func (c Config) Validate() error {
	var errs ValidationErrors

	if !c.Backend.IsValid() {
		errs = append(errs, ValidationError{
			Field:   "backend",
			Message: fmt.Sprintf("unknown backend %q (valid: exec, docker)", c.Backend),
		})
	}

	if c.Backend == model.BackendExec && emptyArgv(c.Flamapy.Command) {
		errs = append(errs, ValidationError{
			Field:   "flamapy.command",
			Message: "must name the flamapy launcher",
		})
	}

	if c.Backend == model.BackendDocker {
		if strings.TrimSpace(c.Docker.Image) == "" {
			errs = append(errs, ValidationError{
				Field:   "docker.image",
				Message: "is required when backend is docker",
			})
		}
		if emptyArgv(c.Docker.Command) {
			errs = append(errs, ValidationError{
				Field:   "docker.command",
				Message: "must name the flamapy launcher inside the image",
			})
		}
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, ValidationError{
			Field:   "log.level",
			Message: fmt.Sprintf("unknown level %q (valid: debug, info, warn, error)", c.Log.Level),
		})
	}

	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		errs = append(errs, ValidationError{
			Field:   "log.format",
			Message: fmt.Sprintf("unknown format %q (valid: text, json)", c.Log.Format),
		})
	}

	if len(errs) == 0 {
		return nil
	}
	return model.WrapCLIError(model.ExitConfigError, "configuration rejected", errs)
}

// emptyArgv reports whether argv has no usable program name.
func emptyArgv(argv []string) bool {
	return len(argv) == 0 || strings.TrimSpace(argv[0]) == ""
}
