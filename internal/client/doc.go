// Package client drives a running command loop over its standard streams.
//
// The server may be a spawned process (`fmrepl serve`, or the Python
// flamapy server started with the interpreter named in the flamapy
// launcher's shebang) or a loop running in-process over pipes. Either way
// the client writes one command per line and reads one response line for
// each analysis command. set_model produces no output on success, so a
// model failure is only observed on the next read. An analysis that yields
// no result also prints nothing, so queries should carry a deadline.
package client
