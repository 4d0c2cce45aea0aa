package py2droid

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestIsBinary(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want bool
	}{
		{"shell script", []byte("#!/bin/sh\n"), false},
		{"utf8-ish high bytes", []byte("caf\xc3\xa9\n"), false},
		{"tabs and carriage returns", []byte("a\tb\r\n"), false},
		{"nul byte", []byte("#!/bin/sh\x00"), true},
		{"elf header", []byte("\x7fELF\x02\x01\x01"), true},
		{"del byte", []byte{0x7F}, true},
		{"empty", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isBinary(tt.data); got != tt.want {
				t.Errorf("isBinary(%q) = %v, want %v", tt.data, got, tt.want)
			}
		})
	}
}

func TestReadFirstLine(t *testing.T) {
	tests := []struct {
		name string
		in   string
		max  int
		want string
	}{
		{"stops at newline", "first\nsecond\n", 1024, "first\n"},
		{"no newline", "only", 1024, "only"},
		{"respects limit", strings.Repeat("x", 2000), 1024, strings.Repeat("x", 1024)},
		{"empty input", "", 1024, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := readFirstLine(strings.NewReader(tt.in), tt.max)
			if err != nil {
				t.Fatal(err)
			}
			if string(got) != tt.want {
				t.Errorf("readFirstLine = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRemoveEntry(t *testing.T) {
	dir := t.TempDir()

	sub := filepath.Join(dir, "sub")
	if err := os.MkdirAll(filepath.Join(sub, "deep"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(sub, "deep", "f"), nil, 0o644); err != nil {
		t.Fatal(err)
	}
	if err := removeEntry(sub); err != nil {
		t.Fatal(err)
	}
	if pathExists(sub) {
		t.Error("directory subtree not removed")
	}

	target := filepath.Join(dir, "target")
	if err := os.Mkdir(target, 0o755); err != nil {
		t.Fatal(err)
	}
	link := filepath.Join(dir, "link")
	if err := os.Symlink(target, link); err != nil {
		t.Fatal(err)
	}
	if err := removeEntry(link); err != nil {
		t.Fatal(err)
	}
	if pathExists(link) {
		t.Error("symlink not removed")
	}
	if !pathExists(target) {
		t.Error("symlink removal followed the link")
	}
}

func TestEntryKindOf(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "f"), nil, 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink("f", filepath.Join(dir, "l")); err != nil {
		t.Fatal(err)
	}

	cases := []struct {
		path                string
		file, dirk, symlink bool
	}{
		{filepath.Join(dir, "f"), true, false, false},
		{dir, false, true, false},
		{filepath.Join(dir, "l"), false, false, true},
	}
	for _, c := range cases {
		info, err := os.Lstat(c.path)
		if err != nil {
			t.Fatal(err)
		}
		file, dirk, symlink := entryKindOf(info.Mode())
		if file != c.file || dirk != c.dirk || symlink != c.symlink {
			t.Errorf("entryKindOf(%s) = %v/%v/%v", c.path, file, dirk, symlink)
		}
	}
}
