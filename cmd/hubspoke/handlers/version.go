package handlers

import (
	"fmt"
	"runtime"
)

// BuildInfo identifies the running binary.
type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	Date      string `json:"date"`
	GoVersion string `json:"go_version"`
}

// build is stamped by SetBuild and reported by Version and tracing.
var build = BuildInfo{Version: "dev", Commit: "none", Date: "unknown"}

// SetBuild records the build information.
func SetBuild(b BuildInfo) {
	build = b
}

// Version prints the build information. An empty format prints one line.
func Version(format string) error {
	info := build
	info.GoVersion = runtime.Version()
	if format == "" {
		_, err := fmt.Fprintf(stdout, "hubspoke %s (commit %s, built %s, %s)\n",
			info.Version, info.Commit, info.Date, info.GoVersion)
		return err
	}
	return printValue(stdout, info, format)
}
