package py2droid

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"time"
)

const (
	changelogFile  = "CHANGELOG.md"
	readmeFile     = "README.md"
	updateJSONName = "update.json"
)

// versionTagRe matches version tags like "v0.2.0" or "1.0.0", anchored so a
// tag must start with one. The unanchored form also rewrites tags embedded
// in longer strings (module.prop values, zip URLs).
var (
	versionTagRe         = regexp.MustCompile(`v?\d+\.\d+\.\d+`)
	anchoredVersionTagRe = regexp.MustCompile(`^v?\d+\.\d+\.\d+`)
)

// Capture-group rewrites for the CPython references: group 2 is the value
// that gets replaced.
var (
	tomlVersionRe = regexp.MustCompile(`(version\s=\s")([^"]+)`)
	readmeBadgeRe = regexp.MustCompile(`(badge/Python-)(v?[\d.]+)(-)`)
)

// ReleaseOptions carries the release command's arguments.
type ReleaseOptions struct {
	Tag        string
	CPythonTag string
	Commit     bool
}

// UpdateJSON mirrors module/update.json, the metadata Magisk polls for
// module updates.
type UpdateJSON struct {
	Version     string `json:"version"`
	VersionCode int    `json:"versionCode"`
	ZipURL      string `json:"zipUrl"`
	Changelog   string `json:"changelog,omitempty"`
}

// normalizeTag ensures the tag carries a leading "v" and looks like a
// version.
func normalizeTag(tag string) (string, error) {
	if tag == "" {
		return "", fmt.Errorf("empty version tag")
	}
	if tag[0] != 'v' {
		tag = "v" + tag
	}
	if !anchoredVersionTagRe.MatchString(tag) {
		return "", fmt.Errorf("invalid version tag: %s", tag)
	}
	return tag, nil
}

// versionCode derives the module's versionCode from today's UTC date.
func versionCode() string {
	return time.Now().UTC().Format("20060102")
}

// PrepareRelease updates version metadata and the changelog for a new
// module release, optionally committing and tagging the result.
func PrepareRelease(opts ReleaseOptions, execr *Executor) error {
	tag, err := normalizeTag(opts.Tag)
	if err != nil {
		return err
	}

	var cpythonTag string
	if opts.CPythonTag != "" {
		cpythonTag, err = normalizeTag(opts.CPythonTag)
		if err != nil {
			return err
		}
	}

	if cpythonTag != "" {
		colArrow.Print("-> ")
		colSuccess.Printf("Updating CPython version references to %s\n", cpythonTag)

		files, err := updateCPythonRefs(cpythonTag)
		if err != nil {
			return err
		}
		if opts.Commit {
			if err := gitCommit(execr, files, "build(cpython): bump to "+cpythonTag); err != nil {
				return err
			}
		}
	}

	colArrow.Print("-> ")
	colSuccess.Printf("Preparing release %s\n", tag)

	files, err := updateModuleMetadata(tag)
	if err != nil {
		return err
	}
	if err := generateChangelog(execr, tag); err != nil {
		return err
	}
	files = append(files, changelogFile)

	if opts.Commit {
		if err := gitCommit(execr, files, "chore(release): prepare for "+tag); err != nil {
			return err
		}
		if _, err := execr.Run("git", []string{"tag", tag}, RunOptions{}); err != nil {
			return fmt.Errorf("git tag failed: %w", err)
		}
	}
	return nil
}

// updateModuleMetadata rewrites module.prop and update.json for the given
// release tag and returns the touched paths.
func updateModuleMetadata(tag string) ([]string, error) {
	propPath := filepath.Join(ModuleDir, modulePropName)
	if err := processModuleProp(propPath, tag); err != nil {
		return nil, err
	}

	jsonPath := filepath.Join(ModuleDir, updateJSONName)
	if err := processUpdateJSON(jsonPath, tag); err != nil {
		return nil, err
	}
	return []string{propPath, jsonPath}, nil
}

// processModuleProp bumps the version tag embedded in the version value and
// stamps versionCode with today's date.
func processModuleProp(path, tag string) error {
	props, err := parseModuleProp(path)
	if err != nil {
		return err
	}
	props.Set("version", replaceFirst(versionTagRe, props.Get("version"), tag))
	props.Set("versionCode", versionCode())
	return props.WriteFile(path)
}

// processUpdateJSON bumps every version tag in update.json (the version
// field and the release asset URL both carry one) and the versionCode.
func processUpdateJSON(path, tag string) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}

	var data UpdateJSON
	if err := json.Unmarshal(content, &data); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}

	code, err := strconv.Atoi(versionCode())
	if err != nil {
		return err
	}
	data.Version = versionTagRe.ReplaceAllString(data.Version, tag)
	data.VersionCode = code
	data.ZipURL = versionTagRe.ReplaceAllString(data.ZipURL, tag)

	out, err := json.MarshalIndent(&data, "", "    ")
	if err != nil {
		return err
	}
	out = append(out, '\n')

	if err := os.WriteFile(path, out, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// generateChangelog regenerates CHANGELOG.md with git-cliff as if tag were
// already cut.
func generateChangelog(execr *Executor, tag string) error {
	if _, err := execr.Run("git-cliff", []string{"-t", tag, "-o", changelogFile}, RunOptions{}); err != nil {
		return fmt.Errorf("changelog generation failed: %w", err)
	}
	return nil
}

// updateCPythonRefs pins a new CPython tag in build.toml and the README
// version badge, returning the touched paths.
func updateCPythonRefs(cpythonTag string) ([]string, error) {
	targets := []struct {
		path string
		re   *regexp.Regexp
	}{
		{ConfigFile, tomlVersionRe},
		{readmeFile, readmeBadgeRe},
	}

	for _, t := range targets {
		content, err := os.ReadFile(t.path)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", t.path, err)
		}
		updated := replaceFirstGroup(t.re, string(content), cpythonTag)
		if err := os.WriteFile(t.path, []byte(updated), 0o644); err != nil {
			return nil, fmt.Errorf("failed to write %s: %w", t.path, err)
		}
	}
	return []string{ConfigFile, readmeFile}, nil
}

func gitCommit(execr *Executor, files []string, message string) error {
	if _, err := execr.Run("git", append([]string{"add"}, files...), RunOptions{}); err != nil {
		return fmt.Errorf("git add failed: %w", err)
	}
	if _, err := execr.Run("git", []string{"commit", "-m", message}, RunOptions{}); err != nil {
		return fmt.Errorf("git commit failed: %w", err)
	}
	return nil
}

// replaceFirst substitutes the first match of re in s with repl.
func replaceFirst(re *regexp.Regexp, s, repl string) string {
	loc := re.FindStringIndex(s)
	if loc == nil {
		return s
	}
	return s[:loc[0]] + repl + s[loc[1]:]
}

// replaceFirstGroup substitutes capture group 2 of the first match of re in
// s with repl, leaving the surrounding groups in place.
func replaceFirstGroup(re *regexp.Regexp, s, repl string) string {
	m := re.FindStringSubmatchIndex(s)
	if m == nil || len(m) < 6 || m[4] < 0 {
		return s
	}
	return s[:m[4]] + repl + s[m[5]:]
}
