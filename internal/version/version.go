// Package version reports which uptimebot build is running.
package version

// Overridden at build time, e.g.
//
//	go build -ldflags "-X github.com/hazz-dev/uptimebot/internal/version.Version=v1.2.0"
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// String formats the build info for the version command and the startup log.
func String() string {
	return Version + " (commit " + Commit + ", built " + Date + ")"
}
