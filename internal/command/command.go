package command

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/shlex"
)

// Kind identifies a command of the line protocol.
type Kind int

const (
	// KindUnknown is any first word that is not a known command.
	KindUnknown Kind = iota

	// KindSetModel loads a feature model: `set_model <path>`.
	KindSetModel

	// KindEstimatedNumberOfConfigurations asks for the approximate
	// configuration count of the loaded model.
	KindEstimatedNumberOfConfigurations

	// KindConfigurationsNumber asks for the exact configuration count.
	KindConfigurationsNumber

	// KindSatisfiableConfiguration checks a configuration file against the
	// loaded model: `satisfiable_configuration <path>`.
	KindSatisfiableConfiguration
)

// kindNames maps each known kind to its wire keyword.
var kindNames = map[Kind]string{
	KindSetModel:                        "set_model",
	KindEstimatedNumberOfConfigurations: "estimated_number_of_configurations",
	KindConfigurationsNumber:            "configurations_number",
	KindSatisfiableConfiguration:        "satisfiable_configuration",
}

// String returns the wire keyword of the kind, or "unknown".
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// ParseKind maps a wire keyword to its Kind. Matching is exact (the protocol
// is case-sensitive); anything else is KindUnknown.
func ParseKind(name string) Kind {
	for kind, keyword := range kindNames {
		if keyword == name {
			return kind
		}
	}
	return KindUnknown
}

// RequiresModel reports whether the command needs a loaded model.
func (k Kind) RequiresModel() bool {
	switch k {
	case KindEstimatedNumberOfConfigurations, KindConfigurationsNumber, KindSatisfiableConfiguration:
		return true
	default:
		return false
	}
}

// Arity is the number of arguments the command reads. Extra arguments are
// ignored.
func (k Kind) Arity() int {
	switch k {
	case KindSetModel, KindSatisfiableConfiguration:
		return 1
	default:
		return 0
	}
}

// Names returns the keywords of all known commands in protocol order.
// The interactive prompt uses it for completion.
func Names() []string {
	return []string{
		KindSetModel.String(),
		KindEstimatedNumberOfConfigurations.String(),
		KindConfigurationsNumber.String(),
		KindSatisfiableConfiguration.String(),
	}
}

// Command is one parsed input line.
type Command struct {
	// Kind is the command selected by the first word.
	Kind Kind

	// Name is the first word exactly as typed. For KindUnknown it is the
	// only record of what was sent.
	Name string

	// Args holds the remaining words after shell unquoting.
	Args []string
}

// HasRequiredArgs reports whether enough arguments were supplied for the
// command's arity.
func (c Command) HasRequiredArgs() bool {
	return len(c.Args) >= c.Kind.Arity()
}

// ErrEmpty is returned by Parse for a line with no words.
var ErrEmpty = errors.New("empty command line")

// Parse splits a line into words and classifies the first one.
// Unbalanced quotes and trailing escapes are reported as errors.
func Parse(line string) (Command, error) {
	words, err := shlex.Split(line)
	if err != nil {
		return Command{}, fmt.Errorf("failed to split command line: %w", err)
	}
	if len(words) == 0 {
		return Command{}, ErrEmpty
	}

	return Command{
		Kind: ParseKind(words[0]),
		Name: words[0],
		Args: words[1:],
	}, nil
}

// safeChars are the characters that never need quoting.
const safeChars = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789@%+=:,./_-"

// Quote returns a shell-escaped version of s that Parse reads back as a
// single word equal to s.
func Quote(s string) string {
	if s == "" {
		return "''"
	}
	if strings.Trim(s, safeChars) == "" {
		return s
	}
	// Close the single-quoted run, emit the quote inside double quotes,
	// then reopen.
	return "'" + strings.ReplaceAll(s, "'", `'"'"'`) + "'"
}

// Format builds a protocol line (without trailing newline) for kind with
// the given arguments quoted.
func Format(kind Kind, args ...string) string {
	var b strings.Builder
	b.WriteString(kind.String())
	for _, arg := range args {
		b.WriteByte(' ')
		b.WriteString(Quote(arg))
	}
	return b.String()
}
