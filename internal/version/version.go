// Package version exposes build metadata injected at link time.
package version

import "time"

var (
	// Version is the release version (set via -ldflags).
	Version = ""
	// Commit is the git commit hash (set via -ldflags).
	Commit = ""
	// BuildTime is the build timestamp (set via -ldflags).
	BuildTime = ""
)

type Info struct {
	Version   string
	Commit    string
	BuildTime string
}

// Resolve fills a usable version string even for untagged dev builds.
func Resolve() Info {
	info := Info{Version: Version, Commit: Commit, BuildTime: BuildTime}
	if info.Version == "" {
		if info.BuildTime != "" {
			info.Version = info.BuildTime
		} else {
			info.Version = "dev-" + time.Now().UTC().Format("20060102")
		}
	}
	return info
}

// String renders "version (commit)" with the commit truncated to 12 chars.
func String() string {
	info := Resolve()
	if info.Commit == "" {
		return info.Version
	}
	c := info.Commit
	if len(c) > 12 {
		c = c[:12]
	}
	return info.Version + " (" + c + ")"
}
