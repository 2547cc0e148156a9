package filemanager

import (
	"path"
	"regexp"
	"strings"
)

var multiSlash = regexp.MustCompile(`/+`)

// CleanPath converts backslashes to forward slashes and collapses runs of
// slashes. It never resolves "." or ".." segments; those are rejected by
// Resolver.IsValid instead.
func CleanPath(p string) string {
	p = strings.ReplaceAll(p, `\`, "/")
	return multiSlash.ReplaceAllString(p, "/")
}

// NormalizeRelative returns the canonical relative form of p: cleaned and
// starting with a slash. A trailing slash is kept, so callers decide whether
// the path names a directory.
func NormalizeRelative(p string) string {
	return CleanPath("/" + p)
}

// SubtractPath removes prefix from full. The prefix must match at position
// zero; otherwise the result is empty.
func SubtractPath(full, prefix string) string {
	if prefix == "" || !strings.HasPrefix(full, prefix) {
		return ""
	}
	rest := full[len(prefix):]
	if rest == "" {
		return ""
	}
	return CleanPath("/" + rest)
}

// Resolver derives absolute and dynamic forms of relative paths for one
// storage root.
type Resolver struct {
	root        string
	dynamicRoot string
}

// NewResolver returns a resolver for root. The root is cleaned and always
// ends with a slash.
func NewResolver(root, dynamicRoot string) Resolver {
	return Resolver{
		root:        cleanRoot(root),
		dynamicRoot: dynamicRoot,
	}
}

// Root returns the slash terminated storage root.
func (r Resolver) Root() string { return r.root }

// DynamicRoot returns the root as seen from the public base path.
func (r Resolver) DynamicRoot() string { return r.dynamicRoot }

// Absolute joins the root and a relative path.
func (r Resolver) Absolute(rel string) string {
	return strings.TrimRight(r.root, "/") + NormalizeRelative(rel)
}

// Relative strips the root from an absolute path.
func (r Resolver) Relative(abs string) string {
	return SubtractPath(abs, r.root)
}

// Dynamic returns rel re-rooted under the dynamic root. The result is meant
// for building public URLs only.
func (r Resolver) Dynamic(rel string) string {
	return CleanPath(r.dynamicRoot + "/" + rel)
}

// IsRoot reports whether abs names the root itself.
func (r Resolver) IsRoot(abs string) bool {
	return strings.TrimRight(r.root, "/") == strings.TrimRight(abs, "/")
}

// IsValid reports whether abs stays under the root and carries no traversal
// sequence.
func (r Resolver) IsValid(abs string) bool {
	if !strings.HasPrefix(abs, r.root) && !r.IsRoot(abs) {
		return false
	}
	for _, needle := range []string{"..", "./"} {
		if strings.Contains(abs, needle) {
			return false
		}
	}
	return true
}

// Sub returns a resolver rooted at dir below the current root.
func (r Resolver) Sub(dir string) Resolver {
	return Resolver{
		root:        cleanRoot(r.root + "/" + dir),
		dynamicRoot: CleanPath(r.dynamicRoot + "/" + dir),
	}
}

// Dir returns the parent of a relative path, slash terminated.
func Dir(rel string) string {
	trimmed := strings.TrimRight(rel, "/")
	if trimmed == "" {
		return "/"
	}
	parent := path.Dir(trimmed)
	return CleanPath(parent + "/")
}

// Base returns the last element of a relative or absolute path without any
// trailing slash.
func Base(p string) string {
	trimmed := strings.TrimRight(p, "/")
	if trimmed == "" {
		return ""
	}
	return path.Base(trimmed)
}

// Join appends name to a directory path.
func Join(dir, name string) string {
	return CleanPath(dir + "/" + name)
}

func cleanRoot(root string) string {
	if scheme, rest, ok := strings.Cut(root, "://"); ok {
		root = scheme + "://" + strings.TrimPrefix(CleanPath(rest), "/")
	} else {
		root = CleanPath(root)
	}
	if !strings.HasSuffix(root, "/") {
		root += "/"
	}
	return root
}
