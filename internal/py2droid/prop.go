package py2droid

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// ModuleProps holds module.prop keys in file order so a rewrite preserves
// the layout. Keys this tool does not know about pass through untouched.
type ModuleProps struct {
	keys   []string
	values map[string]string
}

// parseModuleProp reads a properties file from disk.
func parseModuleProp(path string) (*ModuleProps, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	props, err := parseProps(f)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return props, nil
}

// parseProps parses line-oriented key=value content. Comment lines starting
// with # and blank lines are dropped; a later duplicate key overwrites the
// value but keeps the first position.
func parseProps(r io.Reader) (*ModuleProps, error) {
	props := &ModuleProps{values: make(map[string]string)}

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, _ := strings.Cut(line, "=")
		props.Set(key, value)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return props, nil
}

// Get returns the value for key, or "".
func (p *ModuleProps) Get(key string) string {
	return p.values[key]
}

// Set overwrites key's value, appending the key when it is new.
func (p *ModuleProps) Set(key, value string) {
	if _, exists := p.values[key]; !exists {
		p.keys = append(p.keys, key)
	}
	p.values[key] = value
}

// Map returns a copy of the values for template substitution.
func (p *ModuleProps) Map() map[string]string {
	m := make(map[string]string, len(p.values))
	for k, v := range p.values {
		m[k] = v
	}
	return m
}

// Format serializes the properties in parse order.
func (p *ModuleProps) Format() string {
	var sb strings.Builder
	for _, key := range p.keys {
		sb.WriteString(key)
		sb.WriteByte('=')
		sb.WriteString(p.values[key])
		sb.WriteByte('\n')
	}
	return sb.String()
}

// WriteFile serializes the properties back to path.
func (p *ModuleProps) WriteFile(path string) error {
	if err := os.WriteFile(path, []byte(p.Format()), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
