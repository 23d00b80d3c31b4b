package config

// Set with -ldflags at release time:
//
//	go build -ldflags "-X upkeep/internal/config.version=1.4.0 -X upkeep/internal/config.commit=$(git rev-parse --short HEAD)" ./cmd/api
var (
	version   = "dev"
	commit    = "none"
	buildTime = "unknown"
)

// NewBuildInfo reports the linked-in build metadata. Local builds see the
// placeholders above.
func NewBuildInfo() BuildInfo {
	return BuildInfo{Version: version, Commit: commit, BuildTime: buildTime}
}
