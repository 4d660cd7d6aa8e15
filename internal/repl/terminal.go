package repl

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/chzyer/readline"

	"github.com/shinji-kodama/fmrepl/internal/command"
)

// TerminalConfig configures the interactive line editor.
type TerminalConfig struct {
	// Prompt is printed before each line, e.g. "fm> ".
	Prompt string

	// HistoryFile persists entered commands across sessions. Empty disables
	// history persistence.
	HistoryFile string
}

// TerminalReader reads lines from an interactive terminal with line
// editing, history and completion of command keywords and file names.
type TerminalReader struct {
	rl *readline.Instance
}

// IsTerminal reports whether f is attached to a terminal.
func IsTerminal(f *os.File) bool {
	return readline.IsTerminal(int(f.Fd()))
}

// NewTerminalReader creates a line editor on the process terminal.
// The caller must Close it to restore the terminal state.
func NewTerminalReader(cfg TerminalConfig) (*TerminalReader, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          cfg.Prompt,
		HistoryFile:     cfg.HistoryFile,
		HistoryLimit:    1000,
		AutoComplete:    newCompleter(),
		InterruptPrompt: "^C",
		EOFPrompt:       "",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create line editor: %w", err)
	}
	return &TerminalReader{rl: rl}, nil
}

// ReadLine implements LineReader. Ctrl+C discards the current line and
// prompts again; Ctrl+D ends input.
func (t *TerminalReader) ReadLine() (string, error) {
	for {
		line, err := t.rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) {
				continue
			}
			if errors.Is(err, io.EOF) {
				return "", io.EOF
			}
			return "", err
		}
		return line, nil
	}
}

// Close restores the terminal.
func (t *TerminalReader) Close() error {
	return t.rl.Close()
}

// newCompleter completes command keywords, and file names after the
// commands that take a path.
func newCompleter() readline.AutoCompleter {
	items := make([]readline.PrefixCompleterInterface, 0, len(command.Names()))
	for _, name := range command.Names() {
		if command.ParseKind(name).Arity() > 0 {
			items = append(items, readline.PcItem(name, readline.PcItemDynamic(listFiles)))
			continue
		}
		items = append(items, readline.PcItem(name))
	}
	return readline.NewPrefixCompleter(items...)
}

// listFiles returns the entries of the working directory, directories
// with a trailing separator.
func listFiles(string) []string {
	entries, err := os.ReadDir(".")
	if err != nil {
		return nil
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() {
			name += string(filepath.Separator)
		}
		names = append(names, command.Quote(name))
	}
	sort.Strings(names)
	return names
}
