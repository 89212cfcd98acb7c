package config

import "fmt"

// The following vars are set during build time via ldflags, e.g.
// go build -ldflags="-X github/chapool/automated-fund-transfer/internal/config.Commit=$(git rev-parse HEAD)"
var (
	ModuleName = "automated-fund-transfer"
	Commit     = "< 40 chars git commit hash via ldflags >"
	BuildDate  = "1970-01-01-00:00:00"
)

// GetFormattedBuildArgs returns the build args as a single line
func GetFormattedBuildArgs() string {
	return fmt.Sprintf("%v @ %v (%v)", ModuleName, Commit, BuildDate)
}
