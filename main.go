package main

import (
	"os"

	"py2droid/internal/py2droid"
)

var (
	version   = "0.2.0"
	buildDate = "unknown" // overridden at build time
)

func main() {
	py2droid.SetVersionInfo(version, buildDate)
	os.Exit(py2droid.RunCLI(os.Args[1:]))
}
