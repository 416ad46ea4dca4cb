// Package version reports build metadata injected at link time:
//
//	go build -ldflags "-X github.com/wanops/outagewatch/internal/version.Version=v1.2.0 \
//	  -X github.com/wanops/outagewatch/internal/version.GitCommit=$(git rev-parse --short HEAD) \
//	  -X github.com/wanops/outagewatch/internal/version.BuildDate=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Short returns the bare version string.
func Short() string {
	if Version != "dev" {
		return Version
	}
	if bi, ok := debug.ReadBuildInfo(); ok && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
		return bi.Main.Version
	}
	return Version
}

// Info returns a one-line description of the build.
func Info() string {
	return fmt.Sprintf("outagewatch %s (commit %s, built %s, %s %s/%s)",
		Short(), GitCommit, BuildDate, runtime.Version(), runtime.GOOS, runtime.GOARCH)
}

// Map returns the build metadata as key/value pairs for JSON responses.
func Map() map[string]string {
	return map[string]string{
		"version":    Short(),
		"git_commit": GitCommit,
		"build_date": BuildDate,
		"go_version": runtime.Version(),
	}
}
