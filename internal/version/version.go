// Package version carries the build identity of the kestrel binary.
package version

import (
	"runtime"
	"runtime/debug"
	"strings"

	"github.com/fatih/color"
)

// Overridable at link time via -ldflags.
var (
	// Version is the semantic version of the CLI.
	Version = "0.1.0-dev"

	// Commit is an optional git commit hash.
	Commit = ""

	// Date is an optional build date in ISO-8601.
	Date = ""
)

// Info is the resolved build fingerprint.
type Info struct {
	Version string `json:"version"`
	Commit  string `json:"commit"`
	Date    string `json:"date"`
	Runtime string `json:"runtime"`
}

// Collect resolves the fingerprint, filling commit and date from the
// VCS stamp the toolchain embeds when the linker did not provide them.
func Collect() Info {
	info := Info{
		Version: strings.TrimSpace(Version),
		Commit:  strings.TrimSpace(Commit),
		Date:    strings.TrimSpace(Date),
		Runtime: runtime.Version(),
	}
	if info.Version == "" {
		info.Version = "dev"
	}
	if bi, ok := debug.ReadBuildInfo(); ok {
		for _, s := range bi.Settings {
			switch s.Key {
			case "vcs.revision":
				if info.Commit == "" {
					info.Commit = s.Value
				}
			case "vcs.time":
				if info.Date == "" {
					info.Date = s.Value
				}
			}
		}
	}
	if info.Commit == "" {
		info.Commit = "unknown"
	}
	if info.Date == "" {
		info.Date = "unknown"
	}
	return info
}

// Styled renders the version with each release digit colored, for banner
// output. A version that is not three dotted parts passes through as is.
func Styled() string {
	v := strings.TrimSpace(Version)
	parts := strings.SplitN(v, ".", 3)
	if len(parts) != 3 {
		return v
	}
	return color.YellowString(parts[0]) + "." +
		color.GreenString(parts[1]) + "." +
		color.BlueString(parts[2])
}
