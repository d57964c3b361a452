// Package version describes the running gatekeeper build. The variables below
// are stamped in with -ldflags, for example:
//
//	-ldflags "-X github.com/adoneabiilesh/mustiapp-sub002/internal/version.Version=v1.4.0"
package version

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/Masterminds/semver/v3"
	"github.com/google/uuid"
)

// Unknown marks build metadata that was not stamped.
const Unknown = "unknown"

// Development is reported in place of a missing version.
const Development = "dev"

var (
	// Version is a release tag ("v1.4.0") or a bare commit hash.
	Version = Development
	// GitCommit is the commit SHA the binary was built from.
	GitCommit = Unknown
	// BuildDate is the UTC build timestamp in ISO 8601.
	BuildDate = Unknown
)

// Info identifies a build and the process running it. It is attached to
// every log line, the telemetry resource, health output and the User-Agent
// of outbound calls.
type Info struct {
	Version    string `json:"version"`
	GitCommit  string `json:"git_commit,omitempty"`
	BuildDate  string `json:"build_date,omitempty"`
	InstanceID string `json:"instance_id"`
}

var (
	instanceOnce sync.Once
	instanceID   string
)

// GetInfo returns the stamped build metadata with the version normalized by
// Release. The instance ID is generated once per process.
func GetInfo() Info {
	instanceOnce.Do(func() {
		instanceID = uuid.NewString()
	})
	return Info{
		Version:    Release(Version),
		GitCommit:  GitCommit,
		BuildDate:  BuildDate,
		InstanceID: instanceID,
	}
}

// Release normalizes a stamped version so that "v1.4.0" and "1.4.0" report
// alike. Values that are not semantic versions, such as a commit hash, are
// kept; an empty or unknown value means a development build.
func Release(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == Unknown {
		return Development
	}
	v, err := semver.NewVersion(raw)
	if err != nil {
		return raw
	}
	return v.String()
}

// IsRelease reports whether the build carries a semantic version.
func (i Info) IsRelease() bool {
	_, err := semver.StrictNewVersion(i.Version)
	return err == nil
}

// UserAgent identifies this build in outbound requests.
func (i Info) UserAgent() string {
	return "gatekeeper/" + i.Version
}

// LogValue groups the build fields under one attribute, leaving out
// metadata that was never stamped.
func (i Info) LogValue() slog.Value {
	attrs := []slog.Attr{slog.String("version", i.Version)}
	if stamped(i.GitCommit) {
		attrs = append(attrs, slog.String("git_commit", i.GitCommit))
	}
	if stamped(i.BuildDate) {
		attrs = append(attrs, slog.String("build_date", i.BuildDate))
	}
	if i.InstanceID != "" {
		attrs = append(attrs, slog.String("instance_id", i.InstanceID))
	}
	return slog.GroupValue(attrs...)
}

// String formats version info for CLI display.
func (i Info) String() string {
	var meta []string
	if stamped(i.GitCommit) {
		meta = append(meta, "commit "+i.GitCommit)
	}
	if stamped(i.BuildDate) {
		meta = append(meta, "built "+i.BuildDate)
	}
	if len(meta) == 0 {
		return "gatekeeper " + i.Version
	}
	return fmt.Sprintf("gatekeeper %s (%s)", i.Version, strings.Join(meta, ", "))
}

func stamped(s string) bool {
	return s != "" && s != Unknown
}
