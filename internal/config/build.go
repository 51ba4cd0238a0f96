package config

import "log/slog"

// Set with -ldflags, for example:
//
//	go build -ldflags "-X recaps/internal/config.version=1.4.0 \
//	    -X recaps/internal/config.commit=$(git rev-parse --short HEAD)"
var (
	version   = "dev"
	commit    = "none"
	buildTime = "unknown"
)

// NewBuildInfo returns the linker-injected build metadata.
func NewBuildInfo() BuildInfo {
	return BuildInfo{
		Version:   version,
		Commit:    commit,
		BuildTime: buildTime,
	}
}

// LogValue renders the build info as a slog group.
func (b BuildInfo) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("version", b.Version),
		slog.String("commit", b.Commit),
		slog.String("build_time", b.BuildTime),
	)
}
