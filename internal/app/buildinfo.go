package app

import (
	"runtime"
	"runtime/debug"
	"strings"
	"time"
)

// 由 -ldflags "-X" 注入。
var (
	BuildVersion = "dev"
	BuildCommit  = "unknown"
	BuildTime    = ""
)

// BuildInfo 构建信息。
type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"buildTime"`
	Runtime   string `json:"runtime"`
}

// String 单行展示。
func (b BuildInfo) String() string {
	return b.Version + " (" + b.Commit + ", " + b.BuildTime + ", " + b.Runtime + ")"
}

func readGoBuildVCS() (revision, vcsTime string, modified bool) {
	info, ok := debug.ReadBuildInfo()
	if !ok || info == nil {
		return "", "", false
	}
	for _, setting := range info.Settings {
		switch setting.Key {
		case "vcs.revision":
			revision = strings.TrimSpace(setting.Value)
		case "vcs.time":
			vcsTime = strings.TrimSpace(setting.Value)
		case "vcs.modified":
			modified = strings.TrimSpace(setting.Value) == "true"
		}
	}
	return revision, vcsTime, modified
}

func shortCommit(revision string) string {
	revision = strings.TrimSpace(revision)
	if len(revision) > 12 {
		return revision[:12]
	}
	return revision
}

// CurrentBuildInfo 合并 ldflags 注入值与 go build 记录的 VCS 信息。
func CurrentBuildInfo() BuildInfo {
	rev, vcsTime, modified := readGoBuildVCS()
	return resolveBuildInfo(BuildVersion, BuildCommit, BuildTime, rev, vcsTime, modified)
}

func resolveBuildInfo(version, commit, builtAt, rev, vcsTime string, modified bool) BuildInfo {
	dirty := ""
	if modified {
		dirty = "-dirty"
	}

	version = strings.TrimSpace(version)
	if version == "" || version == "dev" {
		version = "dev"
		if rev != "" {
			version = "dev+" + shortCommit(rev) + dirty
		}
	}

	commit = strings.TrimSpace(commit)
	if commit == "" || commit == "unknown" {
		commit = "unknown"
		if rev != "" {
			commit = shortCommit(rev) + dirty
		}
	}

	builtAt = strings.TrimSpace(builtAt)
	if builtAt == "" || builtAt == "unknown" {
		builtAt = vcsTime
	}
	if builtAt == "" {
		builtAt = "unknown"
	} else if t, err := time.Parse(time.RFC3339, builtAt); err == nil {
		builtAt = t.UTC().Format("2006-01-02 15:04:05 MST")
	}

	return BuildInfo{
		Version:   version,
		Commit:    commit,
		BuildTime: builtAt,
		Runtime:   runtime.GOOS + "/" + runtime.GOARCH,
	}
}
