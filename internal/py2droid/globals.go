package py2droid

import (
	"github.com/gookit/color"
)

// Project layout. All paths are relative to the repository root; RunCLI
// changes into the project root before any pipeline work starts.
var (
	ConfigFile = "build.toml"
	BuildDir   = "build"
	DistDir    = "dist"
	ModuleDir  = "module"
	PatchesDir = "patches"
)

// Global flags and version info
var (
	Debug bool

	version   = "dev"
	buildDate = "unknown"
)

// Tools that must be present on PATH before the build pipeline starts.
var requiredBuildTools = []string{"curl", "patch"}

// Tools required by the release workflow.
var requiredReleaseTools = []string{"git", "git-cliff"}

// color helpers
var (
	colInfo    = color.Info // style provided by gookit/color
	colWarn    = color.Warn
	colError   = color.Error
	colSuccess = color.HEX("#1976D2")
	colArrow   = color.HEX("#FFEB3B")
	colNote    = color.Tag("notice")
)

// SetVersionInfo records the binary version injected by the build.
func SetVersionInfo(v, date string) {
	version = v
	buildDate = date
}
