package py2droid

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"

	"github.com/klauspost/compress/zip"
)

// archMapping converts a build triplet to Magisk's $ARCH value.
var archMapping = map[string]string{
	"aarch64-linux-android":    "arm64",
	"arm-linux-androideabi":    "arm",
	"armv7a-linux-androideabi": "arm",
	"i686-linux-android":       "x86",
	"x86_64-linux-android":     "x64",
}

const (
	// moduleDescription overrides description in module.prop, formatted
	// with the CPython version.
	moduleDescription = "CPython %s for Android"

	// compressedName is the per-host tarball name inside the module,
	// formatted with the Magisk-converted architecture.
	compressedName = "cpython-%s.tar.xz"

	modulePropName = "module.prop"

	cacertURL = "https://curl.se/ca/cacert.pem"
)

// Shebang rewriting. The regexes cover absolute /bin and /sbin paths, the
// /usr and /usr/local variants, an env indirection and a version suffix.
var (
	shellShebang   = []byte("#!/system/bin/sh\n")
	shellShebangRe = regexp.MustCompile(`^#!\s*/(?:usr/(?:local/)?|)(?:bin|sbin)/(?:env\s+)?(?:sh|bash|dash)`)

	pythonShebang   = []byte("#!/system/bin/python3\n")
	pythonShebangRe = regexp.MustCompile(`^#!\s*/(?:usr/(?:local/)?|)(?:bin|sbin)/(?:env\s+)?python[0-9]*(?:\.[0-9]+)*`)
)

// stripPatterns selects the files handed to llvm-strip: everything in bin/
// plus shared and static libraries anywhere under lib/.
var stripPatterns = []string{"bin/*", "lib/**/*.{so,a}"}

// ModuleBuilder packages the compiled prefixes into a flashable Magisk
// module: debloat, shebang fixes, stripping, per-host compression and the
// final zip assembly.
type ModuleBuilder struct {
	Config    *ModuleConfig
	Toolchain string
	Hosts     []string
	Exec      *Executor

	description string
	include     []string
}

// NewModuleBuilder wires a packaging run for the given build outputs.
func NewModuleBuilder(cfg *ModuleConfig, toolchain, cpythonVersion string, hosts []string, execr *Executor) *ModuleBuilder {
	return &ModuleBuilder{
		Config:      cfg,
		Toolchain:   toolchain,
		Hosts:       hosts,
		Exec:        execr,
		description: fmt.Sprintf(moduleDescription, cpythonVersion),
		include:     slices.Clone(cfg.Include),
	}
}

// Build runs the packaging pipeline over every host prefix produced by the
// source pipeline and assembles the final module zip plus its checksum.
func (m *ModuleBuilder) Build(sourceDir string) (string, error) {
	if err := m.downloadCacert(); err != nil {
		return "", err
	}

	var tarballs []string
	for _, host := range m.Hosts {
		prefix := filepath.Join(sourceDir, "cross-build", host, "prefix")

		if m.Config.Debloat {
			if _, err := m.debloat(prefix); err != nil {
				return "", fmt.Errorf("debloat failed for %s: %w", host, err)
			}
		}
		if m.Config.FixShebangs {
			if _, err := m.fixShebangs(prefix); err != nil {
				return "", fmt.Errorf("shebang fixing failed for %s: %w", host, err)
			}
		}
		if m.Config.Strip {
			if err := m.strip(prefix); err != nil {
				return "", fmt.Errorf("strip failed for %s: %w", host, err)
			}
		}

		tarball, err := m.compress(prefix, host)
		if err != nil {
			return "", err
		}
		tarballs = append(tarballs, tarball)
	}

	zipPath, err := m.packageModule(tarballs)
	if err != nil {
		return "", err
	}

	if _, err := writeChecksumFile(zipPath); err != nil {
		return "", err
	}
	return zipPath, nil
}

// downloadCacert fetches the curl CA bundle into the build directory and
// adds it to the include set. Python on Android cannot see the system
// certificate store, so the module ships its own bundle.
func (m *ModuleBuilder) downloadCacert() error {
	cacertPath := filepath.Join(BuildDir, "cacert.pem")

	if pathExists(cacertPath) {
		colArrow.Print("-> ")
		colSuccess.Printf("Skipping download (cacert.pem already exists): %s\n", cacertPath)
		m.include = append(m.include, cacertPath)
		return nil
	}

	colArrow.Print("-> ")
	colSuccess.Printf("Downloading cacert.pem to: %s\n", cacertPath)
	if err := downloadFile(m.Exec, cacertURL, cacertPath); err != nil {
		return fmt.Errorf("failed to download cacert.pem: %w", err)
	}
	m.include = append(m.include, cacertPath)
	return nil
}

// debloat removes unneeded files from the prefix per the configured rules.
// Unconditional patterns are matched as one set (so negations apply across
// them); conditional rules then run in declaration order, each removing
// only entries whose kind is in its rm_if set. Returns the removed paths,
// prefix-relative.
func (m *ModuleBuilder) debloat(prefix string) ([]string, error) {
	colArrow.Print("-> ")
	colSuccess.Printf("Debloating: %s\n", prefix)

	var patterns []string
	var conditional []DebloatRule
	for _, rule := range m.Config.DebloatPatterns {
		if rule.Conditional {
			conditional = append(conditional, rule)
		} else {
			patterns = append(patterns, rule.Pattern)
		}
	}

	var removed []string
	if len(patterns) > 0 {
		matches, err := globTree(prefix, patterns)
		if err != nil {
			return removed, err
		}
		for _, rel := range matches {
			path := filepath.Join(prefix, rel)
			if !pathExists(path) {
				continue // parent already removed
			}
			if err := removeEntry(path); err != nil {
				return removed, err
			}
			removed = append(removed, rel)
			colNote.Printf("  - Removed: %s\n", rel)
		}
	}

	for _, rule := range conditional {
		matches, err := globTree(prefix, []string{rule.Pattern})
		if err != nil {
			return removed, err
		}
		for _, rel := range matches {
			path := filepath.Join(prefix, rel)
			info, err := os.Lstat(path)
			if err != nil {
				if os.IsNotExist(err) {
					continue
				}
				return removed, err
			}

			file, dir, symlink := entryKindOf(info.Mode())
			switch {
			case dir && rule.RemoveIf.Dir:
				err = os.RemoveAll(path)
			case symlink && rule.RemoveIf.Symlink:
				err = os.Remove(path)
			case file && rule.RemoveIf.File:
				err = os.Remove(path)
			default:
				continue
			}
			if err != nil {
				return removed, err
			}
			removed = append(removed, rel)
			colNote.Printf("  - Removed: %s\n", rel)
		}
	}
	return removed, nil
}

// fixShebangs rewrites interpreter lines in prefix/bin scripts to their
// Android locations. Only direct children that are regular files are
// considered; anything that looks binary in its first 1024 bytes is left
// alone, and all content after the interpreter line survives byte for
// byte. Returns the patched paths, prefix-relative.
func (m *ModuleBuilder) fixShebangs(prefix string) ([]string, error) {
	binDir := filepath.Join(prefix, "bin")

	colArrow.Print("-> ")
	colSuccess.Printf("Fixing shebangs in: %s\n", binDir)

	entries, err := os.ReadDir(binDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list %s: %w", binDir, err)
	}

	var patched []string
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		path := filepath.Join(binDir, entry.Name())

		changed, err := rewriteShebang(path)
		if err != nil {
			return patched, err
		}
		if changed {
			rel := filepath.Join("bin", entry.Name())
			patched = append(patched, rel)
			colNote.Printf("  - Patched: %s\n", rel)
		}
	}
	return patched, nil
}

func rewriteShebang(path string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer f.Close()

	line, err := readFirstLine(f, 1024)
	if err != nil {
		return false, fmt.Errorf("failed to read %s: %w", path, err)
	}
	if isBinary(line) {
		return false, nil
	}

	var newShebang []byte
	switch {
	case shellShebangRe.Match(line):
		newShebang = shellShebang
	case pythonShebangRe.Match(line):
		newShebang = pythonShebang
	default:
		return false, nil
	}

	rest, err := io.ReadAll(f)
	if err != nil {
		return false, fmt.Errorf("failed to read %s: %w", path, err)
	}
	content := append(slices.Clone(newShebang), rest...)

	info, err := f.Stat()
	if err != nil {
		return false, err
	}
	if err := os.WriteFile(path, content, info.Mode().Perm()); err != nil {
		return false, fmt.Errorf("failed to rewrite %s: %w", path, err)
	}
	return true, nil
}

// strip runs llvm-strip over binaries and libraries in the prefix. The
// toolchain bin directory is prepended to PATH so the bare tool name works.
// The per-file invocations run quiet, one log line per prefix is enough.
// Per-file failures are ignored; prebuilt dependencies sometimes ship files
// the tool rejects.
func (m *ModuleBuilder) strip(prefix string) error {
	colArrow.Print("-> ")
	colSuccess.Printf("Stripping debug symbols in: %s\n", prefix)

	env := prependEnvPath(environOverlay(nil), "PATH", filepath.Join(m.Toolchain, "bin"))

	matches, err := globTree(prefix, stripPatterns)
	if err != nil {
		return err
	}
	for _, rel := range matches {
		info, err := os.Lstat(filepath.Join(prefix, rel))
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		args := append(slices.Clone(m.Config.StripArgs), rel)
		if _, err := m.Exec.Run("llvm-strip", args, RunOptions{Dir: prefix, Env: env, NoCheck: true, Quiet: true}); err != nil {
			debugf("Warning: llvm-strip failed on %s: %v (continuing)\n", rel, err)
		}
	}
	return nil
}

// compress archives the whole prefix into the per-host tar.xz. The tarball
// name carries the Magisk architecture; a host triplet missing from the
// mapping is a configuration error caught before anything is written.
func (m *ModuleBuilder) compress(prefix, host string) (string, error) {
	arch, ok := archMapping[host]
	if !ok {
		return "", fmt.Errorf("no Magisk arch mapping for host triplet %q", host)
	}

	tarballPath := filepath.Join(BuildDir, fmt.Sprintf(compressedName, arch))
	colArrow.Print("-> ")
	colSuccess.Printf("Compressing %s to %s\n", prefix, tarballPath)

	if err := createTarXZ(prefix, filepath.Base(prefix), tarballPath); err != nil {
		return "", fmt.Errorf("failed to compress prefix for %s: %w", host, err)
	}
	return tarballPath, nil
}

// packageModule assembles the final module zip: the rewritten module.prop
// first, then the per-host tarballs, then the static module directory and
// every include. Nested module.prop files inside included directories are
// skipped so the generated one stays authoritative.
func (m *ModuleBuilder) packageModule(tarballs []string) (string, error) {
	props, err := parseModuleProp(filepath.Join(ModuleDir, modulePropName))
	if err != nil {
		return "", err
	}
	props.Set("description", m.description)

	name, err := expandTemplate(m.Config.Name, props.Map())
	if err != nil {
		return "", err
	}
	zipPath := filepath.Join(DistDir, name)

	colArrow.Print("-> ")
	colSuccess.Printf("Packaging Magisk module: %s\n", zipPath)

	zipFile, err := os.Create(zipPath)
	if err != nil {
		return "", fmt.Errorf("failed to create %s: %w", zipPath, err)
	}
	defer zipFile.Close()
	zw := zip.NewWriter(zipFile)

	colNote.Printf("  - Writing %s\n", modulePropName)
	w, err := zw.Create(modulePropName)
	if err != nil {
		return "", err
	}
	if _, err := io.WriteString(w, props.Format()); err != nil {
		return "", err
	}

	for _, tarball := range tarballs {
		colNote.Printf("  - Adding file: %s\n", tarball)
		if err := addZipFile(zw, tarball, filepath.Base(tarball)); err != nil {
			return "", err
		}
	}

	entries := append([]string{ModuleDir}, m.include...)
	for _, entry := range entries {
		info, err := os.Stat(entry)
		if err != nil {
			return "", fmt.Errorf("include %s: %w", entry, err)
		}

		if !info.IsDir() {
			colNote.Printf("  - Adding file: %s\n", entry)
			if err := addZipFile(zw, entry, filepath.Base(entry)); err != nil {
				return "", err
			}
			continue
		}

		colNote.Printf("  - Adding directory: %s\n", entry)
		err = walkRegularFiles(entry, func(rel string) error {
			if filepath.Base(rel) == modulePropName {
				return nil
			}
			return addZipFile(zw, filepath.Join(entry, rel), filepath.ToSlash(rel))
		})
		if err != nil {
			return "", err
		}
	}

	if err := zw.Close(); err != nil {
		return "", fmt.Errorf("failed to finalize %s: %w", zipPath, err)
	}
	if err := zipFile.Close(); err != nil {
		return "", err
	}
	return zipPath, nil
}

func addZipFile(zw *zip.Writer, path, name string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	hdr, err := zip.FileInfoHeader(info)
	if err != nil {
		return err
	}
	hdr.Name = name
	hdr.Method = zip.Deflate

	w, err := zw.CreateHeader(hdr)
	if err != nil {
		return err
	}
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.Copy(w, f)
	return err
}

// expandTemplate substitutes $field and ${field} placeholders from vars,
// with $$ as a literal dollar. An unknown or malformed placeholder is an
// error rather than an empty substitution.
func expandTemplate(tmpl string, vars map[string]string) (string, error) {
	var sb strings.Builder
	for i := 0; i < len(tmpl); i++ {
		c := tmpl[i]
		if c != '$' {
			sb.WriteByte(c)
			continue
		}
		if i+1 < len(tmpl) && tmpl[i+1] == '$' {
			sb.WriteByte('$')
			i++
			continue
		}

		var field string
		if i+1 < len(tmpl) && tmpl[i+1] == '{' {
			end := strings.IndexByte(tmpl[i+2:], '}')
			if end < 0 {
				return "", fmt.Errorf("unterminated placeholder in name template %q", tmpl)
			}
			field = tmpl[i+2 : i+2+end]
			i += 2 + end
		} else {
			j := i + 1
			for j < len(tmpl) && isIdentByte(tmpl[j]) {
				j++
			}
			field = tmpl[i+1 : j]
			i = j - 1
		}

		if field == "" {
			return "", fmt.Errorf("invalid placeholder in name template %q", tmpl)
		}
		value, ok := vars[field]
		if !ok {
			return "", fmt.Errorf("name template references unknown field %q", field)
		}
		sb.WriteString(value)
	}
	return sb.String(), nil
}

func isIdentByte(c byte) bool {
	return c == '_' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9'
}
