// Package version reports docquery build information.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"
)

// Build-time variables injected via ldflags
var (
	// Version is the semantic version, injected at build time
	Version = "dev"

	// GitCommit is the git commit hash, injected at build time
	GitCommit = "unknown"

	// GitTag is the git tag, injected at build time
	GitTag = ""

	// BuildDate is the build date, injected at build time
	BuildDate = "unknown"

	// GoVersion is the Go version used to build
	GoVersion = runtime.Version()

	// GitDirty indicates if the working tree was dirty during build
	GitDirty = ""
)

// Info returns the version string: the git tag when present, else Version,
// with a "-dirty" suffix for dirty trees.
func Info() string {
	version := Version
	if GitTag != "" && GitTag != "unknown" {
		version = GitTag
	}

	if GitDirty == "true" && !strings.HasSuffix(version, "-dirty") {
		version += "-dirty"
	}
	return version
}

// Full returns Info plus the short commit hash.
func Full() string {
	info := Info()
	commit := commit()
	if commit == "" {
		return info
	}
	short := commit
	if len(short) > 7 {
		short = short[:7]
	}
	if strings.Contains(info, short) {
		return info
	}
	return fmt.Sprintf("%s (%s)", info, short)
}

// commit prefers the ldflags value and falls back to the vcs revision the
// go tool embeds in module builds.
func commit() string {
	if GitCommit != "" && GitCommit != "unknown" {
		return GitCommit
	}
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	for _, s := range bi.Settings {
		if s.Key == "vcs.revision" {
			return s.Value
		}
	}
	return ""
}

// BuildInfo returns detailed build information
type BuildInfo struct {
	Version   string `json:"version"`
	GitCommit string `json:"git_commit"`
	GitTag    string `json:"git_tag"`
	GitDirty  bool   `json:"git_dirty"`
	BuildDate string `json:"build_date"`
	GoVersion string `json:"go_version"`
}

// GetBuildInfo returns structured build information
func GetBuildInfo() BuildInfo {
	c := commit()
	if c == "" {
		c = "unknown"
	}
	return BuildInfo{
		Version:   Info(),
		GitCommit: c,
		GitTag:    GitTag,
		GitDirty:  GitDirty == "true",
		BuildDate: BuildDate,
		GoVersion: GoVersion,
	}
}

// UserAgent returns a user agent string for outbound HTTP clients.
func UserAgent() string {
	return fmt.Sprintf("docquery/%s", Info())
}
