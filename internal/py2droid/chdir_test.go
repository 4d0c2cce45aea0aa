package py2droid

import (
	"os"
	"testing"
)

// chdir changes the working directory for the duration of the test,
// matching the behavior of testing.T.Chdir (added in Go 1.24), which is
// unavailable on the Go toolchain used to build this module.
func chdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(old); err != nil {
			t.Fatal(err)
		}
	})
}
