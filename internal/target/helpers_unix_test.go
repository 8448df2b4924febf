//go:build darwin || linux || freebsd

package target

// longRunningCommand never exits on its own.
func longRunningCommand() string {
	return "while true; do sleep 1; done"
}

// termIgnoringCommand only dies to SIGKILL.
func termIgnoringCommand() string {
	return "trap '' TERM; while true; do sleep 1; done"
}
