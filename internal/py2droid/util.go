package py2droid

import (
	"fmt"
	"os"
	"strings"
)

type colorPrinter interface {
	Printf(format string, a ...any)
	Println(a ...any)
}

// debugf prints debug messages when Debug is true
func debugf(format string, args ...any) {
	if Debug {
		fmt.Printf(format, args...)
	}
}

// shellQuote quotes a single argument for human-readable command logging.
func shellQuote(s string) string {
	if s == "" {
		return "''"
	}
	if !strings.ContainsAny(s, " \t\n\"'\\$&|;<>()*?[]{}~#") {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// shellJoin renders a command line the way a shell user would type it.
func shellJoin(args []string) string {
	quoted := make([]string, len(args))
	for i, a := range args {
		quoted[i] = shellQuote(a)
	}
	return strings.Join(quoted, " ")
}

// pathExists reports whether path exists (without following a final symlink).
func pathExists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}
