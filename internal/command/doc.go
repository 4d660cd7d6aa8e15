// Package command parses and formats the line protocol spoken by the fmrepl
// command loop.
//
// A line is split into words with POSIX shell rules (github.com/google/shlex),
// so arguments may be single- or double-quoted and may contain escaped
// characters. The first word names the command; the rest are its arguments.
// Quote and Format produce lines that Parse reads back unchanged, which is how
// the pipe client sends file paths containing spaces or quotes.
package command
