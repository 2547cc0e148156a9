package filemanager

import (
	"path"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var nameReplacer = strings.NewReplacer(" ", "_", "'", "_", "/", "", `\`, "")

// NormalizeName cleans a user supplied file or folder name according to the
// security.normalizeFilename and options.charsLatinOnly settings. Runes in
// allowed survive the latin-only filter.
func NormalizeName(cfg *Config, name string, allowed ...rune) string {
	if cfg.Security.NormalizeFilename {
		name = path.Base(strings.ReplaceAll(name, `\`, "/"))
		name = strings.TrimFunc(name, func(r rune) bool {
			return r == '.' || r <= 0x20
		})
		name = nameReplacer.Replace(name)
	}

	if cfg.Options.CharsLatinOnly {
		name = toLatin(name)
		name = strings.Map(func(r rune) rune {
			if r == '_' || r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
				return r
			}
			for _, a := range allowed {
				if r == a {
					return r
				}
			}
			return -1
		}, name)
	}

	return name
}

// NormalizeFilename keeps dots and dashes so extensions survive.
func NormalizeFilename(cfg *Config, name string) string {
	return NormalizeName(cfg, name, '.', '-')
}

// toLatin decomposes the string and drops combining marks, so "é" becomes
// "e".
func toLatin(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}
