// Package version exposes the build identity stamped into the recast
// binary at link time:
//
//	go build -ldflags "\
//	  -X github.com/jmylchreest/recast/internal/version.Version=1.4.0 \
//	  -X github.com/jmylchreest/recast/internal/version.Commit=$(git rev-parse HEAD) \
//	  -X github.com/jmylchreest/recast/internal/version.Date=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
package version

import (
	"fmt"
	"runtime"
	"strings"
)

// ApplicationName is the canonical binary name.
const ApplicationName = "recast"

// Stamped via ldflags at release time. An unstamped binary reports "dev".
var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)

// Info is the structured form served by the version endpoint and the
// version subcommand.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	Date      string `json:"date"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

// GetInfo collects the stamped values plus runtime facts.
func GetInfo() Info {
	return Info{
		Version:   Version,
		Commit:    Commit,
		Date:      Date,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
}

// shortCommit returns the eight-character commit prefix, or "" for an
// unstamped binary.
func shortCommit() string {
	if Commit == "unknown" || len(Commit) < 8 {
		return ""
	}
	return Commit[:8]
}

// String renders the full banner printed by the version subcommand.
func String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s version %s", ApplicationName, Version)
	if sc := shortCommit(); sc != "" {
		fmt.Fprintf(&b, " (commit: %s, built: %s, %s, %s/%s)",
			sc, Date, runtime.Version(), runtime.GOOS, runtime.GOARCH)
	} else {
		fmt.Fprintf(&b, " (%s, %s/%s)", runtime.Version(), runtime.GOOS, runtime.GOARCH)
	}
	return b.String()
}

// Short renders the one-line form cobra prints for --version.
func Short() string {
	if sc := shortCommit(); sc != "" {
		return fmt.Sprintf("%s %s (%s)", ApplicationName, Version, sc)
	}
	return fmt.Sprintf("%s %s", ApplicationName, Version)
}

// UserAgent identifies this binary on outbound HTTP requests.
func UserAgent() string {
	return ApplicationName + "/" + Version
}
