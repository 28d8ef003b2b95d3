package internal

import (
	"fmt"
	"runtime"
)

var (
	version   = "dev"
	gitCommit string
	buildTime string
)

// FormatVersion returns the version string with optional git commit
func FormatVersion() string {
	v := version
	if gitCommit != "" {
		v += fmt.Sprintf(" (git: %s)", gitCommit)
	}
	return v
}

// FormatBuildInfo returns build time and go version info
func FormatBuildInfo() (string, string) {
	return buildTime, runtime.Version()
}

// GetVersion returns the version string
func GetVersion() string {
	return version
}
