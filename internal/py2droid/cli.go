package py2droid

import (
	"flag"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/gookit/color"
)

// printHelp prints the commands table
func printHelp() {
	colSuccess.Println("Usage: py2droid <command> [arguments]")
	colSuccess.Println("Builds CPython for Android and packages it as a Magisk module")
	fmt.Println()
	colInfo.Println("Available Commands:")

	type cmdInfo struct {
		Cmd  string
		Args string
		Desc string
	}
	cmds := []cmdInfo{
		{"build, b", "[-c] [-C file]", "Build CPython and package the Magisk module (default)"},
		{"release", "<tag> [options]", "Update version metadata and changelog for a release"},
		{"publish", "", "Upload release artifacts to R2"},
		{"version, --version", "", "Version information"},
		{"help", "", "Show this help"},
	}

	maxLen := 0
	for _, c := range cmds {
		length := len(c.Cmd) + len(c.Args)
		if c.Args != "" {
			length++
		}
		if length > maxLen {
			maxLen = length
		}
	}
	columnWidth := maxLen + 4

	for _, c := range cmds {
		var usageString string
		if c.Args != "" {
			usageString = fmt.Sprintf("  %s %s", c.Cmd, c.Args)
		} else {
			usageString = fmt.Sprintf("  %s", c.Cmd)
		}

		fmt.Print("  ")
		color.Bold.Print(c.Cmd)
		if c.Args != "" {
			fmt.Print(" ")
			color.Cyan.Print(c.Args)
		}

		pad := columnWidth - len(usageString)
		if pad < 1 {
			pad = 1
		}
		fmt.Print(strings.Repeat(" ", pad))
		colInfo.Println(c.Desc)
	}

	fmt.Println()
	colInfo.Println("Build options:")
	fmt.Println("    -c, --clean     remove build and dist artifacts before building")
	fmt.Println("    -C file         path to the build configuration (default: build.toml)")
	fmt.Println()
	colInfo.Println("Release options:")
	fmt.Println("    -c, --cpython-tag STR   CPython version tag to pin for the build")
	fmt.Println("    --commit                commit and tag the updated files in git")
	fmt.Println()
}

// RunCLI dispatches the command line and returns the process exit code.
func RunCLI(args []string) int {
	if os.Getenv("PY2DROID_DEBUG") == "1" {
		Debug = true
	}

	command := "build"
	if len(args) > 0 {
		command = args[0]
		args = args[1:]
	}

	var err error
	switch command {
	case "build", "b":
		err = handleBuild(args)
	case "release":
		err = handleRelease(args)
	case "publish":
		err = handlePublish()
	case "version", "--version", "-v":
		fmt.Printf("py2droid %s (built %s)\n", version, buildDate)
	case "help", "--help", "-h":
		printHelp()
	default:
		colArrow.Print("-> ")
		colError.Printf("Unknown command: %s\n", command)
		printHelp()
		return 1
	}

	if err != nil {
		colArrow.Print("-> ")
		colError.Printf("Error: %v\n", err)
		return 1
	}
	return 0
}

// handleBuild runs the full pipeline: source build per host, then module
// packaging.
func handleBuild(args []string) error {
	fs := flag.NewFlagSet("build", flag.ContinueOnError)
	var clean bool
	fs.BoolVar(&clean, "c", false, "remove build and dist artifacts before building")
	fs.BoolVar(&clean, "clean", false, "remove build and dist artifacts before building")
	configPath := fs.String("C", ConfigFile, "path to the build configuration")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if err := checkBuildEnvironment(*configPath); err != nil {
		return err
	}
	if clean {
		if err := cleanWorkspace(); err != nil {
			return err
		}
	}

	cfg, err := LoadConfig(*configPath)
	if err != nil {
		return err
	}

	for _, dir := range []string{BuildDir, DistDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}

	execr := &Executor{}

	builder := &CPythonBuilder{Config: &cfg.CPython, Exec: execr}
	res, err := builder.Build()
	if err != nil {
		return err
	}

	mb := NewModuleBuilder(&cfg.Module, res.Toolchain, cfg.CPython.Version, cfg.CPython.BuildHosts, execr)
	zipPath, err := mb.Build(res.SourceDir)
	if err != nil {
		return err
	}

	colArrow.Print("-> ")
	colSuccess.Printf("Done: %s\n", zipPath)
	return nil
}

// handleRelease updates version metadata for a new module release. The tag
// may come before or after the flags.
func handleRelease(args []string) error {
	var opts ReleaseOptions
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		opts.Tag = args[0]
		args = args[1:]
	}

	fs := flag.NewFlagSet("release", flag.ContinueOnError)
	fs.StringVar(&opts.CPythonTag, "c", "", "CPython version tag to pin for the build")
	fs.StringVar(&opts.CPythonTag, "cpython-tag", "", "CPython version tag to pin for the build")
	fs.BoolVar(&opts.Commit, "commit", false, "commit and tag the updated files in git")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if opts.Tag == "" {
		opts.Tag = fs.Arg(0)
	}
	if opts.Tag == "" {
		return fmt.Errorf("release requires a version tag")
	}

	if err := checkTools(requiredReleaseTools); err != nil {
		return err
	}
	return PrepareRelease(opts, &Executor{})
}

// checkBuildEnvironment verifies everything the build pipeline needs before
// any work starts: the external tools, the Android SDK location and the
// project files.
func checkBuildEnvironment(configPath string) error {
	if err := checkTools(requiredBuildTools); err != nil {
		return err
	}
	if os.Getenv("ANDROID_HOME") == "" {
		return fmt.Errorf("ANDROID_HOME is not set, point it at your Android SDK")
	}
	if !pathExists(configPath) {
		return fmt.Errorf("configuration file not found: %s", configPath)
	}
	if !pathExists(filepath.Join(ModuleDir, modulePropName)) {
		return fmt.Errorf("module template not found: %s", filepath.Join(ModuleDir, modulePropName))
	}
	return nil
}

func checkTools(tools []string) error {
	for _, tool := range tools {
		if _, err := exec.LookPath(tool); err != nil {
			return fmt.Errorf("required tool not found in PATH: %s", tool)
		}
	}
	return nil
}

// cleanWorkspace removes everything under the build and dist directories,
// keeping the directories themselves.
func cleanWorkspace() error {
	colArrow.Print("-> ")
	colSuccess.Println("Cleaning build and dist directories")

	for _, dir := range []string{BuildDir, DistDir} {
		entries, err := os.ReadDir(dir)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return fmt.Errorf("failed to list %s: %w", dir, err)
		}
		for _, entry := range entries {
			if err := os.RemoveAll(filepath.Join(dir, entry.Name())); err != nil {
				return fmt.Errorf("failed to remove %s: %w", filepath.Join(dir, entry.Name()), err)
			}
		}
	}
	return nil
}
