// Package version carries build metadata, set at link time with
// -ldflags "-X github.com/banshee-data/sandtable/internal/version.Version=...".
package version

import "fmt"

var (
	Version   = "dev"
	GitSHA    = "unknown"
	BuildTime = "unknown"
)

// String formats the build metadata for logs.
func String() string {
	return fmt.Sprintf("sandtable %s (%s, built %s)", Version, GitSHA, BuildTime)
}
