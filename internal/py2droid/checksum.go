package py2droid

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"lukechampine.com/blake3"
)

// checksumSuffix names the sidecar written next to each release artifact.
const checksumSuffix = ".b3"

func hasB3sum() bool {
	_, err := exec.LookPath("b3sum")
	return err == nil
}

// computeBlake3 hashes a file with BLAKE3, preferring system b3sum and
// falling back to the pure Go implementation.
func computeBlake3(path string) (string, error) {
	if hasB3sum() {
		cmd := exec.Command("b3sum", "--no-names", path)
		out, err := cmd.Output()
		if err == nil {
			if fields := strings.Fields(string(out)); len(fields) > 0 {
				return fields[0], nil
			}
		}
		debugf("b3sum failed for %s, using internal hasher\n", path)
	}

	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open %s for hashing: %w", path, err)
	}
	defer f.Close()

	h := blake3.New(32, nil)
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("failed to hash %s: %w", path, err)
	}
	return fmt.Sprintf("%x", h.Sum(nil)), nil
}

// writeChecksumFile computes the BLAKE3 checksum of artifactPath and writes
// it next to the artifact in b3sum's two-space format, returning the
// sidecar path.
func writeChecksumFile(artifactPath string) (string, error) {
	hash, err := computeBlake3(artifactPath)
	if err != nil {
		return "", err
	}

	sidecar := artifactPath + checksumSuffix
	line := fmt.Sprintf("%s  %s\n", hash, filepath.Base(artifactPath))
	if err := os.WriteFile(sidecar, []byte(line), 0o644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", sidecar, err)
	}

	colArrow.Print("-> ")
	colSuccess.Printf("Checksum (blake3): %s\n", hash)
	return sidecar, nil
}
