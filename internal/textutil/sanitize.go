package textutil

import (
	"path/filepath"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// fileNameReplacer replaces filesystem-unsafe characters with safe alternatives.
var fileNameReplacer = strings.NewReplacer(
	"/", "-",
	"\\", "-",
	":", "-",
	"*", "-",
	"?", "",
	"\"", "",
	"<", "",
	">", "",
	"|", "",
)

// SanitizeFileName NFC-normalizes a file name and replaces filesystem-unsafe
// characters. Slashes, backslashes, colons, and asterisks become dashes;
// other unsafe characters and control characters are removed. Leading dots
// are dropped so entries never become hidden or relative. The result is
// trimmed of surrounding whitespace.
func SanitizeFileName(name string) string {
	name = strings.TrimSpace(norm.NFC.String(name))
	if name == "" {
		return ""
	}
	name = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, fileNameReplacer.Replace(name))
	return strings.TrimSpace(strings.TrimLeft(name, ". "))
}

// SplitExt separates name into its stem and extension (with the dot). A name
// that is only an extension, such as ".png", has no stem.
func SplitExt(name string) (stem, ext string) {
	ext = filepath.Ext(name)
	if ext == name {
		return "", ext
	}
	return strings.TrimSuffix(name, ext), ext
}
