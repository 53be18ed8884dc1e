package app

import (
	"fmt"
	"runtime/debug"
)

// Build metadata, stamped by the release build:
//
//	go build -ldflags "-X github.com/heartmarshall/treecleaner/internal/app.Version=1.4.0" ./cmd/dq-server
//
// Commit and BuildTime fall back to the VCS data the Go toolchain embeds.
var (
	Version   = "dev"
	Commit    = ""
	BuildTime = ""
)

// BuildVersion returns the version line printed by dqctl version and
// logged at server start.
func BuildVersion() string {
	commit, built := Commit, BuildTime
	if info, ok := debug.ReadBuildInfo(); ok {
		for _, s := range info.Settings {
			switch {
			case s.Key == "vcs.revision" && commit == "":
				commit = s.Value
			case s.Key == "vcs.time" && built == "":
				built = s.Value
			}
		}
	}
	if commit == "" {
		commit = "unknown"
	}
	if built == "" {
		built = "unknown"
	}
	return fmt.Sprintf("%s (commit: %s, built: %s)", Version, commit, built)
}
