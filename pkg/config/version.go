// Package config exposes build information shared by the server and ivvctl.
package config

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"sync"
)

// Set with -ldflags "-X github.com/good-yellow-bee/ivvboard/pkg/config.Version=...".
// Unset values are filled from the module build info embedded by go build.
var (
	Version   = ""
	Commit    = ""
	BuildTime = ""
)

// BuildInfo describes the running binary.
type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
	Modified  bool   `json:"modified,omitempty"`
	GoVersion string `json:"go_version"`
	OS        string `json:"os"`
	Arch      string `json:"arch"`
}

var (
	buildOnce sync.Once
	build     BuildInfo
)

// GetBuildInfo returns the build information, resolved once per process.
func GetBuildInfo() BuildInfo {
	buildOnce.Do(func() {
		info, _ := debug.ReadBuildInfo()
		build = resolve(Version, Commit, BuildTime, info)
	})
	return build
}

func resolve(version, commit, buildTime string, info *debug.BuildInfo) BuildInfo {
	b := BuildInfo{
		Version:   version,
		Commit:    commit,
		BuildTime: buildTime,
		GoVersion: runtime.Version(),
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
	}
	if info != nil {
		if b.Version == "" && info.Main.Version != "" && info.Main.Version != "(devel)" {
			b.Version = info.Main.Version
		}
		for _, s := range info.Settings {
			switch s.Key {
			case "vcs.revision":
				if b.Commit == "" {
					b.Commit = s.Value
				}
			case "vcs.time":
				if b.BuildTime == "" {
					b.BuildTime = s.Value
				}
			case "vcs.modified":
				b.Modified = s.Value == "true"
			}
		}
	}
	if len(b.Commit) > 12 {
		b.Commit = b.Commit[:12]
	}
	if b.Version == "" {
		b.Version = "dev"
	}
	if b.Commit == "" {
		b.Commit = "unknown"
	}
	if b.BuildTime == "" {
		b.BuildTime = "unknown"
	}
	return b
}

// VersionString returns a one-line version banner for program.
func VersionString(program string) string {
	b := GetBuildInfo()
	commit := b.Commit
	if b.Modified {
		commit += "-dirty"
	}
	return fmt.Sprintf("%s %s (%s) built at %s with %s",
		program, b.Version, commit, b.BuildTime, b.GoVersion)
}
