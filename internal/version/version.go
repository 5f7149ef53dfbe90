// Package version reports the build identity of the tsdist binary.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"
	"time"
)

// Set at build time with -ldflags "-X".
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

// Info describes one build of the binary.
type Info struct {
	Version   string    `json:"version" yaml:"version"`
	GitCommit string    `json:"git_commit" yaml:"git_commit"`
	BuildTime time.Time `json:"build_time,omitzero" yaml:"build_time,omitempty"`
	Modified  bool      `json:"modified,omitempty" yaml:"modified,omitempty"`
	GoVersion string    `json:"go_version" yaml:"go_version"`
	Platform  string    `json:"platform" yaml:"platform"`
}

// Get combines the link-time variables with the module build information
// embedded by the Go toolchain.
func Get() Info {
	info := Info{
		Version:   Version,
		GitCommit: GitCommit,
		BuildTime: parseTime(BuildTime),
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}

	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return info
	}
	if info.Version == "" || info.Version == "dev" {
		if v := bi.Main.Version; v != "" && v != "(devel)" {
			info.Version = v
		}
	}
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			if info.GitCommit == "" || info.GitCommit == "unknown" {
				info.GitCommit = s.Value
			}
		case "vcs.time":
			if info.BuildTime.IsZero() {
				info.BuildTime = parseTime(s.Value)
			}
		case "vcs.modified":
			info.Modified = s.Value == "true"
		}
	}
	return info
}

// Short renders the version with an abbreviated commit.
func (i Info) Short() string {
	if len(i.GitCommit) < 7 || i.GitCommit == "unknown" {
		return i.Version
	}
	commit := i.GitCommit[:7]
	if i.Modified {
		commit += "-dirty"
	}
	if i.Version == "dev" {
		return "dev-" + commit
	}
	return fmt.Sprintf("%s (%s)", i.Version, commit)
}

// Detailed renders every known field, one per line.
func (i Info) Detailed() string {
	parts := []string{"Version: " + i.Version}
	if i.GitCommit != "unknown" && i.GitCommit != "" {
		parts = append(parts, "Commit: "+i.GitCommit)
	}
	if !i.BuildTime.IsZero() {
		parts = append(parts, "Built: "+i.BuildTime.Format(time.RFC3339))
	}
	parts = append(parts, "Go: "+i.GoVersion, "Platform: "+i.Platform)
	return strings.Join(parts, "\n")
}

// IsRelease reports whether the version names a release rather than a
// development build.
func (i Info) IsRelease() bool {
	return i.Version != "dev" && !strings.HasPrefix(i.Version, "dev-")
}

func parseTime(s string) time.Time {
	if s == "" || s == "unknown" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
