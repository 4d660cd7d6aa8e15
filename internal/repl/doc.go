// Package repl implements the fmrepl command loop.
//
// The loop reads one shell-quoted command per line, dispatches it to the
// feature model currently loaded in its Session, and prints either flamapy's
// answer or one of two inline errors:
//
//	Error: Model not assigned
//	Error: Command invalid
//
// A failure reported by flamapy ends the session after a two-line
// diagnostic:
//
//	Error with model <path>:
//	<flamapy's error text>
//
// End of input ends the loop cleanly. Logging goes through the context
// logger and never to the protocol output.
package repl
