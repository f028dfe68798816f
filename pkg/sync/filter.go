package sync

import (
	"regexp"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/sidkik/labsync/pkg/errors"
)

// Filter decides which paths are synced.
type Filter struct {
	include []string
	exclude []string
	ignore  []*regexp.Regexp
}

// NewFilter compiles the configured patterns. An empty `include` list
// includes every path.
func NewFilter(include, exclude, ignoreRe []string) (*Filter, error) {
	for _, pattern := range append(append([]string{}, include...), exclude...) {
		if !doublestar.ValidatePattern(pattern) {
			return nil, errors.InvalidPatternError{Pattern: pattern, Reason: "malformed glob"}
		}
	}

	f := &Filter{include: include, exclude: exclude}
	for _, pattern := range ignoreRe {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, errors.InvalidPatternError{Pattern: pattern, Reason: err.Error()}
		}
		f.ignore = append(f.ignore, re)
	}
	return f, nil
}

// Accepts returns whether the path should be synced. `fullPath` is the path
// as reported by the watcher, and `rel` is its normalized form.
//
// Include patterns only apply to files. Directories must always be created
// remotely so that the included files inside them have somewhere to go.
// Ignore regexes are searched for in the full path, the relative path, and
// the relative path prefixed with `./`, so patterns anchored like `^\./logs/`
// work too.
func (f *Filter) Accepts(fullPath, rel string, isDir bool) bool {
	if !isDir && len(f.include) != 0 && !matchesAny(f.include, rel) {
		return false
	}
	if matchesAny(f.exclude, rel) {
		return false
	}

	dotRel := "./" + rel
	for _, re := range f.ignore {
		if re.MatchString(fullPath) || re.MatchString(rel) || re.MatchString(dotRel) {
			return false
		}
	}
	return true
}

// matchesAny returns whether any of the patterns match `rel`. A pattern
// matches if it matches the whole path, the base name, or the name of any
// ancestor directory. This way, `__pycache__` excludes everything inside a
// `__pycache__` directory, and `*.py` includes Python files at any depth.
func matchesAny(patterns []string, rel string) bool {
	candidates := append([]string{rel}, strings.Split(rel, "/")...)
	for _, pattern := range patterns {
		for _, candidate := range candidates {
			// Patterns are validated in NewFilter, so the error is always nil.
			if ok, _ := doublestar.Match(pattern, candidate); ok {
				return true
			}
		}
	}
	return false
}
