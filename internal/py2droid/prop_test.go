package py2droid

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const sampleProp = `id=py2droid
name=Py2Droid
version=v0.2.0
versionCode=20250825
author=Mrakorez
description=CPython for Android
updateJson=https://example.com/update.json
`

func TestPropsRoundTrip(t *testing.T) {
	props, err := parseProps(strings.NewReader(sampleProp))
	if err != nil {
		t.Fatal(err)
	}
	if got := props.Format(); got != sampleProp {
		t.Errorf("round trip changed content:\ngot:\n%s\nwant:\n%s", got, sampleProp)
	}
}

func TestPropsCommentsAndBlanksDropped(t *testing.T) {
	in := "# header comment\n\nid=py2droid\n\n# trailing\nname=Py2Droid\n"
	props, err := parseProps(strings.NewReader(in))
	if err != nil {
		t.Fatal(err)
	}
	want := "id=py2droid\nname=Py2Droid\n"
	if got := props.Format(); got != want {
		t.Errorf("Format() = %q, want %q", got, want)
	}
}

func TestPropsSetPreservesOrder(t *testing.T) {
	props, err := parseProps(strings.NewReader(sampleProp))
	if err != nil {
		t.Fatal(err)
	}

	props.Set("description", "CPython 3.13.7 for Android")
	props.Set("minMagisk", "20400")

	got := props.Format()
	lines := strings.Split(strings.TrimSuffix(got, "\n"), "\n")
	if lines[5] != "description=CPython 3.13.7 for Android" {
		t.Errorf("overwritten key moved: line 5 = %q", lines[5])
	}
	if lines[len(lines)-1] != "minMagisk=20400" {
		t.Errorf("new key not appended last: %q", lines[len(lines)-1])
	}
}

func TestPropsDuplicateKeepsFirstPosition(t *testing.T) {
	in := "a=1\nb=2\na=3\n"
	props, err := parseProps(strings.NewReader(in))
	if err != nil {
		t.Fatal(err)
	}
	if got := props.Format(); got != "a=3\nb=2\n" {
		t.Errorf("Format() = %q, want %q", got, "a=3\nb=2\n")
	}
}

func TestPropsValueMayContainEquals(t *testing.T) {
	props, err := parseProps(strings.NewReader("updateJson=https://e.com/u?v=1\n"))
	if err != nil {
		t.Fatal(err)
	}
	if got := props.Get("updateJson"); got != "https://e.com/u?v=1" {
		t.Errorf("Get(updateJson) = %q", got)
	}
}

func TestPropsWriteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "module.prop")
	if err := os.WriteFile(path, []byte(sampleProp), 0o644); err != nil {
		t.Fatal(err)
	}

	props, err := parseModuleProp(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := props.WriteFile(path); err != nil {
		t.Fatal(err)
	}

	out, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(out) != sampleProp {
		t.Errorf("file round trip changed content:\n%s", out)
	}
}
