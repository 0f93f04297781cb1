package buildtime

import (
	"runtime/debug"
	"strings"
)

// set by -ldflags "-X github.com/amrdata/amrportal/pkg/buildtime.version=... -X ...revision=..."
var (
	version  = "dev"
	revision = ""
)

func init() {
	version = strings.TrimSpace(version)
	revision = strings.TrimSpace(revision)
	if revision != "" {
		return
	}
	if info, ok := debug.ReadBuildInfo(); ok {
		for _, s := range info.Settings {
			if s.Key == "vcs.revision" {
				revision = s.Value
			}
		}
	}
	if revision == "" {
		revision = "unknown"
	}
}

// version string when this portal has been built.
func VERSION() string {
	return version
}

func GIT_REVISION() string {
	return revision
}

func VersionString() string {
	return version + " (commit: " + revision + ")"
}
