package discovery

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// DefaultPattern matches .resha.yml and .resha.yaml
const DefaultPattern = `^\.resha\.ya?ml$`

// globPrefix selects doublestar glob matching instead of a regular expression
const globPrefix = "glob:"

// Matcher decides whether a file is a manifest. name is the base name and
// rel the slash-separated path relative to the discovery root.
type Matcher interface {
	Match(name, rel string) bool
	String() string
}

// ParsePattern compiles a manifest pattern. Patterns starting with "glob:"
// are doublestar globs; globs containing a slash match the path relative to
// the root, others match the file name. Anything else is a regular
// expression matched against the file name.
func ParsePattern(pattern string) (Matcher, error) {
	if pattern == "" {
		pattern = DefaultPattern
	}

	if glob, ok := strings.CutPrefix(pattern, globPrefix); ok {
		if !doublestar.ValidatePattern(glob) {
			return nil, fmt.Errorf("invalid glob pattern %q", glob)
		}
		return globMatcher(glob), nil
	}

	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid pattern %q: %w", pattern, err)
	}
	return regexpMatcher{re: re}, nil
}

type regexpMatcher struct {
	re *regexp.Regexp
}

func (m regexpMatcher) Match(name, _ string) bool {
	return m.re.MatchString(name)
}

func (m regexpMatcher) String() string {
	return m.re.String()
}

type globMatcher string

func (m globMatcher) Match(name, rel string) bool {
	target := name
	if strings.Contains(string(m), "/") {
		target = filepath.ToSlash(rel)
	}
	ok, err := doublestar.Match(string(m), target)
	return err == nil && ok
}

func (m globMatcher) String() string {
	return globPrefix + string(m)
}
