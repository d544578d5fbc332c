package monitoring

import "log"

// Logf is the package-level diagnostic logger. It defaults to log.Printf but may
// be replaced by SetLogger. Tests or production code can redirect or mute it.
var Logf func(format string, v ...interface{}) = log.Printf

var verbose bool

// SetLogger replaces the package logger. Passing nil will set a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// SetVerbose enables or disables Verbosef output.
func SetVerbose(on bool) {
	verbose = on
}

// Verbosef logs through Logf only when verbose output is enabled. Use it
// for per-frame diagnostics that would flood the log at tracking rate.
func Verbosef(format string, v ...interface{}) {
	if verbose {
		Logf(format, v...)
	}
}
