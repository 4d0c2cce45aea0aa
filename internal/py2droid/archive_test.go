package py2droid

import (
	"archive/tar"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/klauspost/pgzip"
)

// writeTarGz builds a small .tar.gz fixture from name/content pairs. A nil
// content with a trailing slash in the name makes a directory entry.
func writeTarGz(t *testing.T, path string, entries []struct {
	name    string
	content string
}) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	gz := pgzip.NewWriter(f)
	tw := tar.NewWriter(gz)
	for _, e := range entries {
		hdr := &tar.Header{
			Name:    e.name,
			Mode:    0o644,
			Size:    int64(len(e.content)),
			ModTime: time.Unix(1700000000, 0),
		}
		if e.name[len(e.name)-1] == '/' {
			hdr.Typeflag = tar.TypeDir
			hdr.Mode = 0o755
			hdr.Size = 0
		}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatal(err)
		}
		if hdr.Typeflag != tar.TypeDir {
			if _, err := tw.Write([]byte(e.content)); err != nil {
				t.Fatal(err)
			}
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := gz.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestArchiveTopLevelDir(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "src.tar.gz")
	writeTarGz(t, archive, []struct {
		name    string
		content string
	}{
		{"cpython-3.13.7/", ""},
		{"cpython-3.13.7/README.rst", "readme"},
	})

	top, err := archiveTopLevelDir(archive)
	if err != nil {
		t.Fatal(err)
	}
	if top != "cpython-3.13.7" {
		t.Errorf("archiveTopLevelDir = %q, want %q", top, "cpython-3.13.7")
	}
}

func TestExtractTar(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "src.tar.gz")
	writeTarGz(t, archive, []struct {
		name    string
		content string
	}{
		{"top/", ""},
		{"top/a.txt", "hello"},
		{"top/sub/b.txt", "world"},
	})

	dest := filepath.Join(dir, "out")
	if err := extractTar(archive, dest); err != nil {
		t.Fatal(err)
	}

	got, err := os.ReadFile(filepath.Join(dest, "top", "sub", "b.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "world" {
		t.Errorf("b.txt = %q", got)
	}
}

func TestExtractTarRejectsTraversal(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "evil.tar.gz")
	writeTarGz(t, archive, []struct {
		name    string
		content string
	}{
		{"../escape.txt", "pwned"},
	})

	dest := filepath.Join(dir, "out")
	if err := extractTar(archive, dest); err == nil {
		t.Fatal("extractTar accepted a path-traversing entry")
	}
	if pathExists(filepath.Join(dir, "escape.txt")) {
		t.Error("traversal entry was written outside the destination")
	}
}

func TestSecureJoin(t *testing.T) {
	tests := []struct {
		name    string
		entry   string
		wantErr bool
	}{
		{"plain", "a/b.txt", false},
		{"dot segments resolved inside", "a/./b.txt", false},
		{"absolute", "/etc/passwd", true},
		{"parent escape", "../x", true},
		{"nested escape", "a/../../x", true},
	}
	dest := filepath.Join(t.TempDir(), "dest")
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := secureJoin(dest, tt.entry)
			if (err != nil) != tt.wantErr {
				t.Errorf("secureJoin(%q) err = %v, wantErr %v", tt.entry, err, tt.wantErr)
			}
		})
	}
}

func TestCreateTarXZRoundTrip(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "prefix")
	if err := os.MkdirAll(filepath.Join(src, "bin"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(src, "bin", "python3"), []byte("elf"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink("python3", filepath.Join(src, "bin", "python")); err != nil {
		t.Fatal(err)
	}

	tarball := filepath.Join(dir, "cpython-x64.tar.xz")
	if err := createTarXZ(src, "prefix", tarball); err != nil {
		t.Fatal(err)
	}

	dest := filepath.Join(dir, "out")
	if err := extractTar(tarball, dest); err != nil {
		t.Fatal(err)
	}

	content, err := os.ReadFile(filepath.Join(dest, "prefix", "bin", "python3"))
	if err != nil {
		t.Fatal(err)
	}
	if string(content) != "elf" {
		t.Errorf("python3 content = %q", content)
	}

	info, err := os.Lstat(filepath.Join(dest, "prefix", "bin", "python"))
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode()&os.ModeSymlink == 0 {
		t.Error("symlink not preserved through the round trip")
	}
	target, err := os.Readlink(filepath.Join(dest, "prefix", "bin", "python"))
	if err != nil {
		t.Fatal(err)
	}
	if target != "python3" {
		t.Errorf("symlink target = %q", target)
	}

	mode, err := os.Stat(filepath.Join(dest, "prefix", "bin", "python3"))
	if err != nil {
		t.Fatal(err)
	}
	if mode.Mode().Perm() != 0o755 {
		t.Errorf("executable mode = %v, want 0755", mode.Mode().Perm())
	}
}
