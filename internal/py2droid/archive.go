package py2droid

import (
	"archive/tar"
	"compress/bzip2"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/klauspost/pgzip"
	"github.com/ulikunitz/xz"
	"golang.org/x/sys/unix"
)

// openTarReader opens archivePath and wraps it in the right decompressor,
// chosen by file extension. The caller closes the returned closer.
func openTarReader(archivePath string) (*tar.Reader, io.Closer, error) {
	f, err := os.Open(archivePath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open archive %s: %w", archivePath, err)
	}

	var r io.Reader = f
	switch {
	case strings.HasSuffix(archivePath, ".tar.gz") || strings.HasSuffix(archivePath, ".tgz"):
		gz, err := pgzip.NewReader(f)
		if err != nil {
			f.Close()
			return nil, nil, fmt.Errorf("failed to create gzip reader for %s: %w", archivePath, err)
		}
		r = gz
	case strings.HasSuffix(archivePath, ".tar.bz2"):
		r = bzip2.NewReader(f)
	case strings.HasSuffix(archivePath, ".tar.xz"):
		xzr, err := xz.NewReader(f)
		if err != nil {
			f.Close()
			return nil, nil, fmt.Errorf("failed to create xz reader for %s: %w", archivePath, err)
		}
		r = xzr
	case strings.HasSuffix(archivePath, ".tar.zst"):
		zst, err := zstd.NewReader(f)
		if err != nil {
			f.Close()
			return nil, nil, fmt.Errorf("failed to create zstd reader for %s: %w", archivePath, err)
		}
		r = zst.IOReadCloser()
	case strings.HasSuffix(archivePath, ".tar"):
		// No compression
	default:
		f.Close()
		return nil, nil, fmt.Errorf("unsupported archive format: %s", archivePath)
	}

	return tar.NewReader(r), f, nil
}

// archiveTopLevelDir returns the first path segment of the archive's first
// content entry, e.g. "cpython-3.13.7" for a GitHub release tarball.
func archiveTopLevelDir(archivePath string) (string, error) {
	tr, closer, err := openTarReader(archivePath)
	if err != nil {
		return "", err
	}
	defer closer.Close()

	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return "", fmt.Errorf("archive %s is empty", archivePath)
		}
		if err != nil {
			return "", fmt.Errorf("error reading archive %s: %w", archivePath, err)
		}
		if hdr.Typeflag == tar.TypeXHeader || hdr.Typeflag == tar.TypeXGlobalHeader {
			continue
		}
		name := strings.TrimPrefix(hdr.Name, "./")
		if top, _, found := strings.Cut(name, "/"); found && top != "" {
			return top, nil
		} else if name != "" {
			return strings.TrimSuffix(name, "/"), nil
		}
	}
}

// secureJoin resolves an archive entry name below dest, rejecting absolute
// names and anything that escapes the destination. Upstream tarballs are
// first-party, but a poisoned archive must not be able to write outside the
// build directory.
func secureJoin(dest, name string) (string, error) {
	if filepath.IsAbs(name) {
		return "", fmt.Errorf("illegal absolute path in archive: %s", name)
	}
	target := filepath.Join(dest, name)
	if target != dest && !strings.HasPrefix(target, dest+string(os.PathSeparator)) {
		return "", fmt.Errorf("illegal file path in archive: %s", name)
	}
	return target, nil
}

// extractTar extracts archivePath into destDir, preserving modes and
// timestamps. Setuid/setgid bits are dropped and path-traversing entries
// are rejected.
func extractTar(archivePath, destDir string) error {
	tr, closer, err := openTarReader(archivePath)
	if err != nil {
		return err
	}
	defer closer.Close()

	dest, err := filepath.Abs(destDir)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return fmt.Errorf("failed to create destination %s: %w", dest, err)
	}

	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("error reading tar header in %s: %w", archivePath, err)
		}

		if hdr.Typeflag == tar.TypeXHeader || hdr.Typeflag == tar.TypeXGlobalHeader {
			if _, err := io.Copy(io.Discard, tr); err != nil {
				return fmt.Errorf("error skipping extended header data in %s: %w", archivePath, err)
			}
			continue
		}

		targetPath, err := secureJoin(dest, hdr.Name)
		if err != nil {
			return err
		}
		mode := os.FileMode(hdr.Mode).Perm() // no setuid/setgid/sticky from archives

		if err := os.MkdirAll(filepath.Dir(targetPath), 0o755); err != nil {
			return fmt.Errorf("failed to create parent dir for %s: %w", targetPath, err)
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(targetPath, mode); err != nil {
				return fmt.Errorf("failed to create dir %s: %w", targetPath, err)
			}
			if err := os.Chmod(targetPath, mode); err != nil {
				return fmt.Errorf("failed to chmod dir %s: %w", targetPath, err)
			}
		case tar.TypeReg:
			outFile, err := os.OpenFile(targetPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
			if err != nil {
				return fmt.Errorf("failed to create file %s: %w", targetPath, err)
			}
			if _, err := io.Copy(outFile, tr); err != nil {
				outFile.Close()
				return fmt.Errorf("failed to write file %s: %w", targetPath, err)
			}
			outFile.Close()
			if err := os.Chtimes(targetPath, hdr.AccessTime, hdr.ModTime); err != nil {
				return fmt.Errorf("failed to set times for file %s: %w", targetPath, err)
			}
		case tar.TypeSymlink:
			// The link target may point anywhere as a string; it is never
			// followed during extraction, so only the entry path is checked.
			_ = os.Remove(targetPath)
			if err := os.Symlink(hdr.Linkname, targetPath); err != nil {
				return fmt.Errorf("failed to create symlink %s -> %s: %w", targetPath, hdr.Linkname, err)
			}
			atime := unix.Timeval{Sec: hdr.AccessTime.Unix(), Usec: int64(hdr.AccessTime.Nanosecond() / 1000)}
			mtime := unix.Timeval{Sec: hdr.ModTime.Unix(), Usec: int64(hdr.ModTime.Nanosecond() / 1000)}
			if err := unix.Lutimes(targetPath, []unix.Timeval{atime, mtime}); err != nil {
				debugf("Warning: failed to set times for symlink %s: %v (continuing)\n", targetPath, err)
			}
		case tar.TypeLink:
			linkTarget, err := secureJoin(dest, hdr.Linkname)
			if err != nil {
				return err
			}
			_ = os.Remove(targetPath)
			if err := os.Link(linkTarget, targetPath); err != nil {
				return fmt.Errorf("failed to create hard link %s -> %s: %w", targetPath, hdr.Linkname, err)
			}
		default:
			debugf("Skipping unsupported tar entry type %c: %s\n", hdr.Typeflag, hdr.Name)
		}
	}

	return nil
}

// createTarXZ archives srcDir into destPath as a .tar.xz, with every entry
// placed under rootName/ the way `tar -C parent srcDir` would. Entries are
// written root-owned so the module extracts cleanly on device.
func createTarXZ(srcDir, rootName, destPath string) error {
	outFile, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("failed to create tarball file %s: %w", destPath, err)
	}
	defer outFile.Close()

	xzWriter, err := xz.NewWriter(outFile)
	if err != nil {
		return fmt.Errorf("failed to create xz writer: %w", err)
	}

	tw := tar.NewWriter(xzWriter)

	err = filepath.Walk(srcDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(srcDir, path)
		if err != nil {
			return err
		}

		var linkTarget string
		if info.Mode()&os.ModeSymlink != 0 {
			linkTarget, err = os.Readlink(path)
			if err != nil {
				return fmt.Errorf("readlink %s: %w", path, err)
			}
		}

		hdr, err := tar.FileInfoHeader(info, linkTarget)
		if err != nil {
			return err
		}
		if rel == "." {
			hdr.Name = rootName + "/"
		} else {
			hdr.Name = rootName + "/" + filepath.ToSlash(rel)
			if info.IsDir() {
				hdr.Name += "/"
			}
		}
		hdr.Uid, hdr.Gid = 0, 0
		hdr.Uname, hdr.Gname = "root", "root"

		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		if !info.Mode().IsRegular() {
			return nil
		}

		f, err := os.Open(path)
		if err != nil {
			return err
		}
		if _, err := io.Copy(tw, f); err != nil {
			f.Close()
			return err
		}
		return f.Close()
	})
	if err != nil {
		return fmt.Errorf("failed to add files to %s: %w", destPath, err)
	}

	if err := tw.Close(); err != nil {
		return fmt.Errorf("failed to finalize tar stream: %w", err)
	}
	if err := xzWriter.Close(); err != nil {
		return fmt.Errorf("failed to finalize xz stream: %w", err)
	}
	return outFile.Close()
}
