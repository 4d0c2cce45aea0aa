package py2droid

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// sourceArchiveURL is where versioned CPython source tarballs live.
const sourceArchiveURL = "https://github.com/python/cpython/archive/refs/tags/"

// androidEnvScript is the upstream build-environment script that pins the
// NDK release the source tree expects.
const androidEnvScript = "Android/android-env.sh"

var ndkVersionRe = regexp.MustCompile(`(?m)^ndk_version=(.+)$`)

// patchReversedMarker is what patch(1) prints when a diff is already in the
// tree; treated as success so re-runs are idempotent.
const patchReversedMarker = "Reversed (or previously applied) patch detected!"

var (
	// ErrNDKVersionNotFound means android-env.sh carried no ndk_version line.
	ErrNDKVersionNotFound = errors.New("failed to parse NDK version")
	// ErrToolchainNotFound means no toolchain install exists for the pinned version.
	ErrToolchainNotFound = errors.New("NDK toolchain not found")
)

// BuildResult is the handoff from the source pipeline to the packaging
// pipeline: where the extracted tree lives and which toolchain built it.
type BuildResult struct {
	SourceDir string
	Toolchain string
}

// CPythonBuilder handles the download, patching and cross-compilation of
// CPython for Android.
type CPythonBuilder struct {
	Config *CPythonConfig
	Exec   *Executor
}

// Build executes the whole source pipeline: download, extract, patch,
// toolchain discovery, build-environment construction and the per-host
// cross-compile. Every stage skips itself when its output already exists,
// so an interrupted run resumes where it stopped.
func (b *CPythonBuilder) Build() (*BuildResult, error) {
	tarball, err := b.download()
	if err != nil {
		return nil, err
	}

	sourceDir, err := b.extract(tarball)
	if err != nil {
		return nil, err
	}

	if b.Config.ApplyPatches {
		if err := b.applyPatches(sourceDir); err != nil {
			return nil, err
		}
	}

	toolchain, err := findNDKToolchain(sourceDir)
	if err != nil {
		return nil, err
	}

	env := b.createEnv(toolchain)
	if err := b.buildHosts(sourceDir, env); err != nil {
		return nil, err
	}

	return &BuildResult{SourceDir: sourceDir, Toolchain: toolchain}, nil
}

// download fetches the source tarball for the configured version into the
// build directory, skipping when it is already there.
func (b *CPythonBuilder) download() (string, error) {
	tarballName := fmt.Sprintf("v%s.tar.gz", b.Config.Version)
	tarballPath := filepath.Join(BuildDir, tarballName)

	if pathExists(tarballPath) {
		colArrow.Print("-> ")
		colSuccess.Printf("Skipping download (source tarball already exists): %s\n", tarballPath)
		return tarballPath, nil
	}

	colArrow.Print("-> ")
	colSuccess.Printf("Downloading CPython %s source\n", b.Config.Version)
	if err := downloadFile(b.Exec, sourceArchiveURL+tarballName, tarballPath); err != nil {
		return "", fmt.Errorf("failed to download CPython source: %w", err)
	}
	return tarballPath, nil
}

// extract unpacks the source tarball next to it. The source directory name
// comes from the archive's first entry; if it exists, extraction is skipped.
func (b *CPythonBuilder) extract(tarball string) (string, error) {
	topDir, err := archiveTopLevelDir(tarball)
	if err != nil {
		return "", err
	}
	sourceDir := filepath.Join(BuildDir, topDir)

	if pathExists(sourceDir) {
		colArrow.Print("-> ")
		colSuccess.Printf("Skipping extraction (source directory already exists): %s\n", sourceDir)
		return sourceDir, nil
	}

	colArrow.Print("-> ")
	colSuccess.Printf("Extracting %s\n", tarball)
	if err := extractTar(tarball, BuildDir); err != nil {
		return "", fmt.Errorf("failed to extract %s: %w", tarball, err)
	}
	return sourceDir, nil
}

// applyPatches applies every patches/*.patch to the source tree in listing
// order, strip-1 and fuzz-free. A patch the tree already carries is fine;
// any other failure aborts with the tool output attached.
func (b *CPythonBuilder) applyPatches(sourceDir string) error {
	colArrow.Print("-> ")
	colSuccess.Printf("Applying patches to %s\n", sourceDir)

	entries, err := os.ReadDir(PatchesDir)
	if err != nil {
		if os.IsNotExist(err) {
			debugf("No patches directory, nothing to apply\n")
			return nil
		}
		return fmt.Errorf("failed to list %s: %w", PatchesDir, err)
	}

	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".patch" {
			continue
		}
		patchPath, err := filepath.Abs(filepath.Join(PatchesDir, entry.Name()))
		if err != nil {
			return err
		}

		res, err := b.Exec.Run("patch",
			[]string{"-Np1", "-sr", "-", "-i", patchPath},
			RunOptions{Dir: sourceDir, Capture: true, NoCheck: true})
		if err != nil {
			return fmt.Errorf("failed to apply %s: %w", entry.Name(), err)
		}
		fmt.Print(res.Stdout)

		if !patchSucceeded(res) {
			return fmt.Errorf("failed to apply %s: %w", entry.Name(), &CommandError{
				Command:  "patch -Np1 -sr - -i " + patchPath,
				ExitCode: res.ExitCode,
				Stdout:   res.Stdout,
				Stderr:   res.Stderr,
			})
		}
	}
	return nil
}

// patchSucceeded decides whether a patch invocation counts as applied: a
// clean exit, or the tool reporting the diff is already in the tree. The
// latter also covers a patch that no longer applies because the source
// drifted, which is why the tool output is echoed above.
func patchSucceeded(res *CmdResult) bool {
	if res.ExitCode == 0 {
		return true
	}
	return strings.Contains(res.Stdout, patchReversedMarker)
}

// findNDKToolchain parses the pinned NDK version out of the source tree's
// android-env.sh and locates the matching prebuilt toolchain under
// $ANDROID_HOME.
func findNDKToolchain(sourceDir string) (string, error) {
	envScript := filepath.Join(sourceDir, filepath.FromSlash(androidEnvScript))
	content, err := os.ReadFile(envScript)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", envScript, err)
	}

	match := ndkVersionRe.FindSubmatch(content)
	if match == nil {
		return "", fmt.Errorf("%w from file: %s", ErrNDKVersionNotFound, envScript)
	}
	ndkVersion := string(match[1])

	androidHome := os.Getenv("ANDROID_HOME")
	prebuilt := filepath.Join(androidHome, "ndk", ndkVersion, "toolchains", "llvm", "prebuilt")

	entries, err := os.ReadDir(prebuilt)
	if err != nil || len(entries) == 0 {
		return "", fmt.Errorf("%w in %s", ErrToolchainNotFound, prebuilt)
	}
	toolchain := filepath.Join(prebuilt, entries[0].Name())

	colArrow.Print("-> ")
	colSuccess.Printf("Using NDK toolchain: %s\n", toolchain)
	return toolchain, nil
}

// createEnv builds the cross-compile environment: process environment,
// configured overrides, then the toolchain's bin and lib directories
// prepended to PATH and LIBRARY_PATH so build scripts find the NDK tools
// first.
func (b *CPythonBuilder) createEnv(toolchain string) []string {
	env := environOverlay(b.Config.ConfigureEnv)
	env = prependEnvPath(env, "PATH", filepath.Join(toolchain, "bin"))
	env = prependEnvPath(env, "LIBRARY_PATH", filepath.Join(toolchain, "lib"))
	return env
}

// buildHosts drives the upstream Android/android.py build script: a
// one-time build-python setup, then configure-host/make-host per target.
// Hosts build in configured order; the first failure stops the run.
func (b *CPythonBuilder) buildHosts(sourceDir string, env []string) error {
	android := filepath.Join(sourceDir, "Android")
	crossBuild := filepath.Join(sourceDir, "cross-build")

	if !pathExists(filepath.Join(crossBuild, "build")) {
		if _, err := b.Exec.Run("./android.py", []string{"configure-build"}, RunOptions{Dir: android}); err != nil {
			return fmt.Errorf("configure-build failed: %w", err)
		}
		if _, err := b.Exec.Run("./android.py", []string{"make-build"}, RunOptions{Dir: android}); err != nil {
			return fmt.Errorf("make-build failed: %w", err)
		}
	} else {
		colArrow.Print("-> ")
		colSuccess.Println("Skipping initial setup (build artifacts found).")
	}

	for _, host := range b.Config.BuildHosts {
		if pathExists(filepath.Join(crossBuild, host, "prefix")) {
			colArrow.Print("-> ")
			colSuccess.Printf("Skipping host %s (build artifacts found).\n", host)
			continue
		}

		configureArgs := append([]string{"configure-host", host, "--"}, b.Config.ConfigureArgs...)
		if _, err := b.Exec.Run("./android.py", configureArgs, RunOptions{Dir: android, Env: env}); err != nil {
			return fmt.Errorf("configure-host failed for %s: %w", host, err)
		}
		if _, err := b.Exec.Run("./android.py", []string{"make-host", host}, RunOptions{Dir: android, Env: env}); err != nil {
			return fmt.Errorf("make-host failed for %s: %w", host, err)
		}
	}
	return nil
}
