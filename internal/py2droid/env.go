package py2droid

import (
	"os"
	"sort"
	"strings"
)

// Environment handling for the build pipeline. The build environment is a
// value constructed once per run (process env + config overrides + toolchain
// paths) and passed explicitly into every command; os.Setenv is never used.

// environOverlay returns a copy of the process environment with overrides
// applied. Override keys not present in the environment are appended in
// sorted order so the result is deterministic.
func environOverlay(overrides map[string]string) []string {
	env := os.Environ()
	if len(overrides) == 0 {
		return env
	}

	seen := make(map[string]bool, len(overrides))
	for i, kv := range env {
		key, _, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		if val, exists := overrides[key]; exists {
			env[i] = key + "=" + val
			seen[key] = true
		}
	}

	var missing []string
	for key := range overrides {
		if !seen[key] {
			missing = append(missing, key)
		}
	}
	sort.Strings(missing)
	for _, key := range missing {
		env = append(env, key+"="+overrides[key])
	}
	return env
}

// prependEnvPath prepends values to the path-list variable key, keeping any
// existing entries after the new ones. The variable is created if absent.
func prependEnvPath(env []string, key string, values ...string) []string {
	joined := strings.Join(values, string(os.PathListSeparator))
	for i, kv := range env {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k != key {
			continue
		}
		if v == "" {
			env[i] = key + "=" + joined
		} else {
			env[i] = key + "=" + joined + string(os.PathListSeparator) + v
		}
		return env
	}
	return append(env, key+"="+joined)
}

// lookupEnv finds key in an environment slice.
func lookupEnv(env []string, key string) (string, bool) {
	for _, kv := range env {
		if k, v, ok := strings.Cut(kv, "="); ok && k == key {
			return v, true
		}
	}
	return "", false
}
