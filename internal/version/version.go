// Package version exposes the build version baked into the binary.
package version

import (
	_ "embed"
	"runtime/debug"
	"strings"
)

//go:embed VERSION
var raw string

// Get returns the release version.
func Get() string {
	return strings.TrimSpace(raw)
}

// Revision returns the VCS revision the binary was built from, or ""
// when build info is unavailable (e.g. go run from a non-repo dir).
func Revision() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	for _, s := range info.Settings {
		if s.Key == "vcs.revision" {
			if len(s.Value) > 12 {
				return s.Value[:12]
			}
			return s.Value
		}
	}
	return ""
}
