package filemanager

import (
	"fmt"
	"path"
	"slices"
	"strings"

	"github.com/gobwas/glob"
)

// Policy selects how a restriction list is applied.
type Policy string

const (
	// AllowList permits only the listed values.
	AllowList Policy = "ALLOW_LIST"
	// DisallowList permits everything except the listed values.
	DisallowList Policy = "DISALLOW_LIST"
)

// RestrictionRules configures one restriction policy.
type RestrictionRules struct {
	Policy       Policy   `mapstructure:"policy" json:"policy" yaml:"policy"`
	IgnoreCase   bool     `mapstructure:"ignoreCase" json:"ignoreCase" yaml:"ignoreCase"`
	Restrictions []string `mapstructure:"restrictions" json:"restrictions" yaml:"restrictions"`
}

// RestrictionEngine evaluates the extension and pattern policies of a
// storage. Any policy other than AllowList or DisallowList denies.
type RestrictionEngine struct {
	extensions RestrictionRules
	patterns   RestrictionRules
	globs      []glob.Glob
}

// NewRestrictionEngine compiles the pattern list. An invalid pattern is a
// configuration error.
func NewRestrictionEngine(extensions, patterns RestrictionRules) (*RestrictionEngine, error) {
	e := &RestrictionEngine{
		extensions: extensions,
		patterns:   patterns,
	}

	if extensions.IgnoreCase {
		e.extensions.Restrictions = lowerAll(extensions.Restrictions)
	}

	for _, p := range patterns.Restrictions {
		if patterns.IgnoreCase {
			p = strings.ToLower(p)
		}
		g, err := glob.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid restriction pattern %q: %v", ErrConfiguration, p, err)
		}
		e.globs = append(e.globs, g)
	}

	return e, nil
}

// Extension returns the extension of the last path element without the
// leading dot.
func Extension(p string) string {
	ext := path.Ext(strings.TrimRight(p, "/"))
	return strings.TrimPrefix(ext, ".")
}

// IsAllowedExtension applies the extension policy to p. Directories are not
// special-cased here; IsUnrestricted skips this check for them.
func (e *RestrictionEngine) IsAllowedExtension(p string) bool {
	ext := Extension(p)
	if e.extensions.IgnoreCase {
		ext = strings.ToLower(ext)
	}
	listed := slices.Contains(e.extensions.Restrictions, ext)

	switch e.extensions.Policy {
	case AllowList:
		return listed
	case DisallowList:
		return !listed
	default:
		return false
	}
}

// IsAllowedPattern applies the pattern policy to the original relative path
// of an item.
func (e *RestrictionEngine) IsAllowedPattern(originalPath string) bool {
	if e.patterns.IgnoreCase {
		originalPath = strings.ToLower(originalPath)
	}
	matched := false
	for _, g := range e.globs {
		if g.Match(originalPath) {
			matched = true
			break
		}
	}

	switch e.patterns.Policy {
	case AllowList:
		return matched
	case DisallowList:
		return !matched
	default:
		return false
	}
}

// IsUnrestricted combines both policies. The extension policy only applies
// to files.
func (e *RestrictionEngine) IsUnrestricted(p, originalPath string, isDir bool) bool {
	if !isDir && !e.IsAllowedExtension(p) {
		return false
	}
	return e.IsAllowedPattern(originalPath)
}

// ThumbnailPattern returns the glob hiding the thumbnail folder.
func ThumbnailPattern(dir string) string {
	return CleanPath("*/" + dir + "/*")
}

func lowerAll(values []string) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = strings.ToLower(v)
	}
	return out
}
