package utils

import "os"

func EnvDefault(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

// TUICIMode reports whether CONFORM_TUI_CI_MODE=1, which renders the live
// view regardless of terminal size so it can be driven in CI.
func TUICIMode() bool {
	return os.Getenv("CONFORM_TUI_CI_MODE") == "1"
}
