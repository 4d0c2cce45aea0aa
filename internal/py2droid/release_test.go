package py2droid

import (
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
)

func TestNormalizeTag(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"v0.2.0", "v0.2.0", false},
		{"0.2.0", "v0.2.0", false},
		{"3.13.7", "v3.13.7", false},
		{"", "", true},
		{"latest", "", true},
		{"v1.2", "", true},
	}
	for _, tt := range tests {
		got, err := normalizeTag(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("normalizeTag(%q) err = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("normalizeTag(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestVersionCodeFormat(t *testing.T) {
	code := versionCode()
	if !regexp.MustCompile(`^\d{8}$`).MatchString(code) {
		t.Errorf("versionCode() = %q, want yyyymmdd", code)
	}
}

func TestReplaceFirst(t *testing.T) {
	got := replaceFirst(versionTagRe, "Py2Droid v0.1.0 (was v0.0.9)", "v0.2.0")
	want := "Py2Droid v0.2.0 (was v0.0.9)"
	if got != want {
		t.Errorf("replaceFirst = %q, want %q", got, want)
	}

	if got := replaceFirst(versionTagRe, "no tag here", "v0.2.0"); got != "no tag here" {
		t.Errorf("no-match input changed: %q", got)
	}
}

func TestReplaceFirstGroupTomlVersion(t *testing.T) {
	in := "[cpython]\nversion = \"3.13.7\"\napply_patches = true\n"
	got := replaceFirstGroup(tomlVersionRe, in, "v3.13.8")
	want := "[cpython]\nversion = \"v3.13.8\"\napply_patches = true\n"
	if got != want {
		t.Errorf("toml rewrite = %q, want %q", got, want)
	}
}

func TestReplaceFirstGroupReadmeBadge(t *testing.T) {
	in := "![Python](https://img.shields.io/badge/Python-v3.13.7-blue)"
	got := replaceFirstGroup(readmeBadgeRe, in, "v3.13.8")
	want := "![Python](https://img.shields.io/badge/Python-v3.13.8-blue)"
	if got != want {
		t.Errorf("badge rewrite = %q, want %q", got, want)
	}
}

func TestProcessModuleProp(t *testing.T) {
	path := filepath.Join(t.TempDir(), "module.prop")
	in := "id=py2droid\nversion=v0.1.0\nversionCode=20240101\nauthor=Mrakorez\n"
	if err := os.WriteFile(path, []byte(in), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := processModuleProp(path, "v0.2.0"); err != nil {
		t.Fatal(err)
	}

	props, err := parseModuleProp(path)
	if err != nil {
		t.Fatal(err)
	}
	if got := props.Get("version"); got != "v0.2.0" {
		t.Errorf("version = %q", got)
	}
	if got := props.Get("versionCode"); got != versionCode() {
		t.Errorf("versionCode = %q, want %q", got, versionCode())
	}
	if got := props.Format(); !strings.HasPrefix(got, "id=py2droid\nversion=") {
		t.Errorf("key order not preserved:\n%s", got)
	}
}

func TestProcessUpdateJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "update.json")
	in := UpdateJSON{
		Version:     "v0.1.0",
		VersionCode: 20240101,
		ZipURL:      "https://example.com/releases/download/v0.1.0/py2droid-v0.1.0.zip",
		Changelog:   "https://example.com/CHANGELOG.md",
	}
	raw, err := json.MarshalIndent(&in, "", "    ")
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		t.Fatal(err)
	}

	if err := processUpdateJSON(path, "v0.2.0"); err != nil {
		t.Fatal(err)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var out UpdateJSON
	if err := json.Unmarshal(content, &out); err != nil {
		t.Fatal(err)
	}

	if out.Version != "v0.2.0" {
		t.Errorf("version = %q", out.Version)
	}
	if out.ZipURL != "https://example.com/releases/download/v0.2.0/py2droid-v0.2.0.zip" {
		t.Errorf("zipUrl = %q, want both embedded tags bumped", out.ZipURL)
	}
	if got := out.VersionCode; got < 20250101 {
		t.Errorf("versionCode = %d", got)
	}
	if out.Changelog != in.Changelog {
		t.Errorf("changelog changed: %q", out.Changelog)
	}
}
