// Package version carries build identification injected at link time via
// -ldflags "-X github.com/handcast-data/handcast/internal/version.Version=...".
package version

var (
	// Version is the release tag, or "dev" for local builds.
	Version = "dev"
	// GitSHA is the commit the binary was built from.
	GitSHA = "unknown"
	// BuildTime is the UTC build timestamp.
	BuildTime = "unknown"
)

// String renders the build identification in one line, suitable for
// -version flags and the health endpoint.
func String() string {
	s := Version
	if GitSHA != "unknown" {
		s += " (" + GitSHA + ")"
	}
	if BuildTime != "unknown" {
		s += " built " + BuildTime
	}
	return s
}
