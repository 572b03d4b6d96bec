package version

import "runtime/debug"

// Set at build time with -ldflags "-X townsquare/internal/app/version.buildVersion=...".
var (
	buildVersion = "dev"
	builtAt      = ""
)

type Info struct {
	Version   string `json:"version"`
	BuiltAt   string `json:"built_at,omitempty"`
	GoVersion string `json:"go_version,omitempty"`
}

// Get falls back to the module version recorded by the toolchain when no
// ldflags were given.
func Get() Info {
	info := Info{Version: buildVersion, BuiltAt: builtAt}
	if bi, ok := debug.ReadBuildInfo(); ok {
		info.GoVersion = bi.GoVersion
		if info.Version == "dev" && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
			info.Version = bi.Main.Version
		}
	}
	return info
}
