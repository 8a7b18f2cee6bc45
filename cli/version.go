package cli

import "runtime/debug"

// version can be set by the linker.
var version string

// Version returns the linker-provided version or, failing that, the module
// version from the build information.
func Version() string {
	if version != "" {
		return version
	}
	if info, ok := debug.ReadBuildInfo(); ok {
		// "(devel)" for binaries not built by "go install PACKAGE@VERSION".
		return info.Main.Version
	}
	return "unknown"
}
