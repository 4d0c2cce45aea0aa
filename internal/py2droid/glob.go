package py2droid

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Debloat pattern matching. Patterns are matched against prefix-relative
// slash-separated paths and support globstar (**), brace groups, extglob
// groups (?(..), *(..), +(..), @(..) and a full-segment !(..)), and
// leading-! negation. Negative patterns subtract from the combined matches
// of the positive patterns in the same rule set.

type compiledPattern struct {
	negate bool
	glob   string   // doublestar pattern, used when segments is nil
	segs   []string // segment matcher, used when the pattern carries extglob groups
}

var extglobRe = regexp.MustCompile(`[?*+@!]\(`)

func compilePattern(pattern string) (*compiledPattern, error) {
	p := &compiledPattern{}
	if strings.HasPrefix(pattern, "!") && !strings.HasPrefix(pattern, "!(") {
		p.negate = true
		pattern = pattern[1:]
	}
	if pattern == "" {
		return nil, fmt.Errorf("empty glob pattern")
	}
	if extglobRe.MatchString(pattern) {
		p.segs = strings.Split(pattern, "/")
		for _, seg := range p.segs {
			if seg != "**" {
				if _, err := segmentMatcher(seg); err != nil {
					return nil, fmt.Errorf("invalid pattern %q: %w", pattern, err)
				}
			}
		}
		return p, nil
	}
	if !doublestar.ValidatePattern(pattern) {
		return nil, fmt.Errorf("invalid glob pattern %q", pattern)
	}
	p.glob = pattern
	return p, nil
}

func (p *compiledPattern) match(rel string) bool {
	if p.segs != nil {
		return matchSegments(p.segs, strings.Split(rel, "/"))
	}
	ok, err := doublestar.Match(p.glob, rel)
	return err == nil && ok
}

// matchSegments matches pattern segments against path segments, letting a
// "**" segment absorb zero or more path segments.
func matchSegments(pat, path []string) bool {
	if len(pat) == 0 {
		return len(path) == 0
	}
	if pat[0] == "**" {
		// Zero segments, or consume one and retry.
		if matchSegments(pat[1:], path) {
			return true
		}
		return len(path) > 0 && matchSegments(pat, path[1:])
	}
	if len(path) == 0 {
		return false
	}
	m, err := segmentMatcher(pat[0])
	if err != nil || !m(path[0]) {
		return false
	}
	return matchSegments(pat[1:], path[1:])
}

// segmentMatcher compiles one slash-free pattern segment. A segment that is
// exactly "!(alt|alt)" matches any segment NOT matching the alternatives;
// other extglob groups translate to regexp quantifiers.
func segmentMatcher(seg string) (func(string) bool, error) {
	if strings.HasPrefix(seg, "!(") && strings.HasSuffix(seg, ")") && balancedGroup(seg[1:]) {
		inner := seg[2 : len(seg)-1]
		alts, err := altRegexp(inner)
		if err != nil {
			return nil, err
		}
		return func(s string) bool { return !alts.MatchString(s) }, nil
	}
	re, err := segmentRegexp(seg)
	if err != nil {
		return nil, err
	}
	return re.MatchString, nil
}

// balancedGroup reports whether s is a single parenthesized group, i.e. the
// opening "(" closes at the final byte.
func balancedGroup(s string) bool {
	depth := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return i == len(s)-1
			}
		}
	}
	return false
}

// altRegexp compiles a |-separated extglob alternative list.
func altRegexp(inner string) (*regexp.Regexp, error) {
	var alts []string
	for _, alt := range strings.Split(inner, "|") {
		expr, err := translateSegment(alt)
		if err != nil {
			return nil, err
		}
		alts = append(alts, expr)
	}
	return regexp.Compile("^(?:" + strings.Join(alts, "|") + ")$")
}

func segmentRegexp(seg string) (*regexp.Regexp, error) {
	expr, err := translateSegment(seg)
	if err != nil {
		return nil, err
	}
	return regexp.Compile("^" + expr + "$")
}

// translateSegment converts a slash-free glob segment into a regexp body.
func translateSegment(seg string) (string, error) {
	var sb strings.Builder
	for i := 0; i < len(seg); i++ {
		c := seg[i]
		switch {
		case strings.ContainsRune("?*+@", rune(c)) && i+1 < len(seg) && seg[i+1] == '(':
			group, rest, err := splitGroup(seg[i+1:])
			if err != nil {
				return "", err
			}
			alts, err := altBody(group)
			if err != nil {
				return "", err
			}
			switch c {
			case '?':
				sb.WriteString("(?:" + alts + ")?")
			case '*':
				sb.WriteString("(?:" + alts + ")*")
			case '+':
				sb.WriteString("(?:" + alts + ")+")
			case '@':
				sb.WriteString("(?:" + alts + ")")
			}
			i = len(seg) - len(rest) - 1
		case c == '!' && i+1 < len(seg) && seg[i+1] == '(':
			return "", fmt.Errorf("!(...) is only supported as a full path segment")
		case c == '*':
			sb.WriteString("[^/]*")
		case c == '?':
			sb.WriteString("[^/]")
		case c == '[':
			end := strings.IndexByte(seg[i:], ']')
			if end <= 1 {
				return "", fmt.Errorf("unterminated character class in %q", seg)
			}
			class := seg[i : i+end+1]
			if strings.HasPrefix(class, "[!") {
				class = "[^" + class[2:]
			}
			sb.WriteString(class)
			i += end
		default:
			sb.WriteString(regexp.QuoteMeta(string(c)))
		}
	}
	return sb.String(), nil
}

// splitGroup consumes "(...)" from the head of s, returning the group body
// and the remainder after the closing parenthesis.
func splitGroup(s string) (body, rest string, err error) {
	depth := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return s[1:i], s[i+1:], nil
			}
		}
	}
	return "", "", fmt.Errorf("unterminated group in pattern %q", s)
}

func altBody(group string) (string, error) {
	var alts []string
	for _, alt := range strings.Split(group, "|") {
		expr, err := translateSegment(alt)
		if err != nil {
			return "", err
		}
		alts = append(alts, expr)
	}
	return strings.Join(alts, "|"), nil
}

// globTree walks root and returns the relative paths of all entries matched
// by the pattern set: anything matching a positive pattern and no negative
// pattern. With only negative patterns, every non-excluded entry matches,
// mirroring how wcmatch treats a negated glob list. Paths come back in
// lexical walk order, so directories precede their contents.
func globTree(root string, patterns []string) ([]string, error) {
	var positive, negative []*compiledPattern
	for _, pattern := range patterns {
		p, err := compilePattern(pattern)
		if err != nil {
			return nil, err
		}
		if p.negate {
			negative = append(negative, p)
		} else {
			positive = append(positive, p)
		}
	}

	var matches []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == root {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		matched := len(positive) == 0
		for _, p := range positive {
			if p.match(rel) {
				matched = true
				break
			}
		}
		if !matched {
			return nil
		}
		for _, p := range negative {
			if p.match(rel) {
				return nil
			}
		}
		matches = append(matches, rel)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("glob walk of %s failed: %w", root, err)
	}
	return matches, nil
}
