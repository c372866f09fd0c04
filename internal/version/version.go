// Package version holds build information injected with ldflags:
//
//	go build -ldflags "-X github.com/rickgao/barvault/internal/version.Version=1.2.0 \
//	                   -X github.com/rickgao/barvault/internal/version.Commit=$(git rev-parse --short HEAD)" ./cmd/...
package version

import "log/slog"

var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

// UserAgent identifies this build to the vendor gateway.
func UserAgent() string {
	return "barvault/" + Version + " (" + Commit + ")"
}

// Attrs returns the build information as log attributes.
func Attrs() slog.Attr {
	return slog.Group("build",
		slog.String("version", Version),
		slog.String("commit", Commit),
		slog.String("time", BuildTime),
	)
}
