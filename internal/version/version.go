// Package version provides build-time version information for the mbtool
// daemon and the mbctl client.
// Version, Commit, and BuildTime are populated via ldflags during the build process.
// For development builds, default values are used.
package version

import "strings"

// Build information variables, set via ldflags at build time:
//
//	go build -ldflags "-X github.com/Anik1199/DualBootPatcher/internal/version.Version=9.3.0-r42 \
//	                   -X github.com/Anik1199/DualBootPatcher/internal/version.Commit=abc123 \
//	                   -X github.com/Anik1199/DualBootPatcher/internal/version.BuildTime=2025-01-29T12:00:00Z"
var (
	// Version is the full version of the toolkit (e.g., "9.3.0-r42-gabc123", "dev").
	Version = "dev"

	// Commit is the git commit hash from which the binary was built.
	Commit = "unknown"

	// BuildTime is the timestamp when the binary was built (RFC3339 format).
	BuildTime = "unknown"
)

// Info returns a formatted string with all version information for the named binary.
func Info(binary string) string {
	return binary + " " + Version + " (commit: " + Commit + ", built: " + BuildTime + ")"
}

// Token returns the release portion of a version string: everything before
// the first '-', so pre-release and build suffixes do not change it.
// "9.3.0-r42-gabc123" and "9.3.0" both yield "9.3.0".
func Token(v string) string {
	v = strings.TrimSpace(v)
	if i := strings.IndexByte(v, '-'); i >= 0 {
		return v[:i]
	}
	return v
}
