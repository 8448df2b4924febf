package utils

import (
	"os"
	"path/filepath"
)

const (
	ConformDirName = ".conform"
	LogsSubDir     = "logs"
	ResultsSubDir  = "results"
	ConfigFileName = "config.yaml"
)

// GetConformDir returns the .conform directory, preferring one in the
// working directory over the one in the home directory.
func GetConformDir() string {
	if _, err := os.Stat(ConformDirName); err == nil {
		return ConformDirName
	}

	if homeDir, err := os.UserHomeDir(); err == nil {
		return filepath.Join(homeDir, ConformDirName)
	}

	return ConformDirName
}

// GetLogsDir returns the directory receiving target service logs
func GetLogsDir() string {
	return filepath.Join(GetConformDir(), LogsSubDir)
}

// GetResultsDir returns the default directory for run artifacts
func GetResultsDir() string {
	return filepath.Join(GetConformDir(), ResultsSubDir)
}

// EnsureDir creates a directory if it doesn't exist
func EnsureDir(dir string) error {
	return os.MkdirAll(dir, 0o750)
}

// FileExists reports whether path exists and is not a directory.
func FileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
