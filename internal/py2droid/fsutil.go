package py2droid

import (
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// textChars marks bytes that may appear in text: BEL, BS, TAB, LF, FF, CR,
// ESC and the extended printable range minus DEL.
var textChars = func() [256]bool {
	var t [256]bool
	for _, b := range []byte{7, 8, 9, 10, 12, 13, 27} {
		t[b] = true
	}
	for b := 0x20; b < 0x100; b++ {
		t[b] = true
	}
	t[0x7F] = false
	return t
}()

// isBinary reports whether data looks like binary content. Simple heuristic:
// any byte outside the text set means binary.
func isBinary(data []byte) bool {
	for _, b := range data {
		if !textChars[b] {
			return true
		}
	}
	return false
}

// readFirstLine reads the first line of r, up to max bytes. The trailing
// newline is included when it fits inside the limit.
func readFirstLine(r io.Reader, max int) ([]byte, error) {
	buf := make([]byte, 0, max)
	one := make([]byte, 1)
	for len(buf) < max {
		n, err := r.Read(one)
		if n > 0 {
			buf = append(buf, one[0])
			if one[0] == '\n' {
				break
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return buf, err
		}
	}
	return buf, nil
}

// entryKindOf classifies a directory entry by its lstat mode.
func entryKindOf(mode fs.FileMode) (file, dir, symlink bool) {
	switch {
	case mode&fs.ModeSymlink != 0:
		return false, false, true
	case mode.IsDir():
		return false, true, false
	default:
		return true, false, false
	}
}

// removeEntry deletes path: subtree removal for real directories, a single
// unlink for everything else (symlinks to directories included).
func removeEntry(path string) error {
	info, err := os.Lstat(path)
	if err != nil {
		return err
	}
	if info.IsDir() && info.Mode()&fs.ModeSymlink == 0 {
		return os.RemoveAll(path)
	}
	return os.Remove(path)
}

// walkRegularFiles calls fn for every regular, non-symlink file below root,
// with paths relative to root.
func walkRegularFiles(root string, fn func(rel string) error) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		return fn(rel)
	})
}
