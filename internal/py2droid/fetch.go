package py2droid

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/schollz/progressbar/v3"
	"golang.org/x/term"
)

const downloadRetries = 5

// downloadFile fetches url into destPath. It prefers curl (retries handled
// by the tool), falls back to wget, then to the native HTTP client. The
// download lands in a .part file that is renamed into place only on
// success, so a killed download can never be mistaken for a complete one
// by the skip-if-exists checks.
func downloadFile(execr *Executor, url, destPath string) error {
	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return fmt.Errorf("failed to create parent directory for %s: %w", destPath, err)
	}
	partPath := destPath + ".part"
	defer os.Remove(partPath)

	debugf("Downloading %s -> %s\n", url, destPath)

	// --- Primary choice: curl ---
	if _, err := exec.LookPath("curl"); err == nil {
		args := []string{"-Lf", "--retry", fmt.Sprint(downloadRetries), "--retry-all-errors", "-o", partPath, url}
		if _, err := execr.Run("curl", args, RunOptions{}); err == nil {
			return os.Rename(partPath, destPath)
		}
		debugf("curl failed, falling back to wget\n")
	} else {
		debugf("curl not found, trying wget\n")
	}

	// --- Fallback 1: wget ---
	if _, err := exec.LookPath("wget"); err == nil {
		if _, err := execr.Run("wget", []string{"-nv", "-O", partPath, url}, RunOptions{}); err == nil {
			return os.Rename(partPath, destPath)
		}
		debugf("wget failed, falling back to native Go HTTP client\n")
	} else {
		debugf("wget not found, using native Go HTTP client\n")
	}

	// --- Fallback 2: native Go HTTP client ---
	var lastErr error
	for attempt := 1; attempt <= downloadRetries; attempt++ {
		if attempt > 1 {
			debugf("Retrying download (%d/%d): %s\n", attempt, downloadRetries, url)
			time.Sleep(time.Duration(attempt) * time.Second)
		}
		if lastErr = httpDownload(url, partPath); lastErr == nil {
			return os.Rename(partPath, destPath)
		}
	}
	return fmt.Errorf("download of %s failed after %d attempts: %w", url, downloadRetries, lastErr)
}

func httpDownload(url, destPath string) error {
	client := &http.Client{Timeout: 300 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("native http get failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download failed with status: %s", resp.Status)
	}

	out, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("failed to create destination file %s: %w", destPath, err)
	}
	defer out.Close()

	bar := newDownloadBar(resp.ContentLength, filepath.Base(destPath))
	if _, err := io.Copy(io.MultiWriter(out, bar), resp.Body); err != nil {
		return fmt.Errorf("failed to write to destination file: %w", err)
	}
	return out.Close()
}

// newDownloadBar returns a byte progress bar, silenced when stderr is not
// a terminal.
func newDownloadBar(size int64, label string) *progressbar.ProgressBar {
	if !term.IsTerminal(int(os.Stderr.Fd())) {
		return progressbar.DefaultBytesSilent(size, label)
	}
	return progressbar.DefaultBytes(size, label)
}
