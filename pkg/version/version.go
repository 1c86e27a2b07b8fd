package version

import (
	"fmt"
	"runtime"
	"strings"
)

var (
	// These values are set at build time via -ldflags
	Version   = "dev"
	GitCommit = "unknown"
	GitTag    = "unknown"
	BuildDate = "unknown"
)

const component = "ovdbridge"

type BuildInfo struct {
	Version      string `json:"version"`
	GitCommit    string `json:"git_commit"`
	GitTag       string `json:"git_tag"`
	BuildDate    string `json:"build_date"`
	GoVersion    string `json:"go_version"`
	Platform     string `json:"platform"`
	Architecture string `json:"architecture"`
}

func GetBuildInfo() BuildInfo {
	return BuildInfo{
		Version:      Version,
		GitCommit:    GitCommit,
		GitTag:       GitTag,
		BuildDate:    BuildDate,
		GoVersion:    runtime.Version(),
		Platform:     runtime.GOOS,
		Architecture: runtime.GOARCH,
	}
}

// GetVersion prefers the release version, then the git tag.
func GetVersion() string {
	if Version != "dev" {
		return Version
	}
	if GitTag != "unknown" && GitTag != "" {
		return GitTag
	}
	return fmt.Sprintf("dev-%s", GitCommit)
}

func GetShortVersion() string {
	v := GetVersion()
	if GitCommit != "unknown" && len(GitCommit) >= 7 {
		return fmt.Sprintf("%s (%s)", v, GitCommit[:7])
	}
	return v
}

// GetLongVersion is the text printed by the version command.
func GetLongVersion() string {
	info := GetBuildInfo()

	var b strings.Builder
	fmt.Fprintf(&b, "%s version %s\n", component, GetShortVersion())
	if info.BuildDate != "unknown" {
		fmt.Fprintf(&b, "Built: %s\n", info.BuildDate)
	}
	fmt.Fprintf(&b, "Go: %s\n", info.GoVersion)
	fmt.Fprintf(&b, "Platform: %s/%s\n", info.Platform, info.Architecture)
	return b.String()
}
