// sanitize.go - Filename and display-name normalisation.
package security

import (
	"fmt"
	"html"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
)

// maxNameLength caps the name part of a sanitized filename. The extension
// is appended afterwards and is not counted.
const maxNameLength = 200

// maxDisplayNameLength caps project display names, in runes.
const maxDisplayNameLength = 120

var (
	reservedChars   = regexp.MustCompile(`[<>:"/\\|?*]`)
	controlChars    = regexp.MustCompile(`[\x{00}-\x{1f}\x{80}-\x{9f}]`)
	nonWordChars    = regexp.MustCompile(`[^A-Za-z0-9_\-]`)
	repeatedUnders  = regexp.MustCompile(`_{2,}`)
	plainExtension  = regexp.MustCompile(`^\.[A-Za-z0-9]+$`)

	displayNamePolicy = bluemonday.StrictPolicy()
)

// now is swapped in tests to make the fallback name deterministic.
var now = time.Now

// SanitizeFilename turns an arbitrary user-supplied filename into a single
// storage-safe path segment. The name part is restricted to ASCII word
// characters and hyphens; the extension (from the last dot, when that dot is
// not the first character) is kept as-is.
//
// Only ASCII letters and digits make a real extension. Anything else, such
// as separators, control characters or trailing blanks, is folded back into
// the name part.
//
// When nothing survives, a time-based fallback like "file_1700000000000" is
// used, so that one case is not idempotent.
func SanitizeFilename(filename string) string {
	name, ext := filename, ""
	if i := strings.LastIndex(filename, "."); i > 0 {
		name, ext = filename[:i], filename[i:]
		if !plainExtension.MatchString(ext) {
			name, ext = filename, ""
		}
	}

	clean := reservedChars.ReplaceAllString(name, "_")
	clean = controlChars.ReplaceAllString(clean, "")
	clean = nonWordChars.ReplaceAllString(clean, "_")
	clean = repeatedUnders.ReplaceAllString(clean, "_")
	clean = strings.TrimPrefix(clean, "_")
	clean = strings.TrimSuffix(clean, "_")
	clean = strings.TrimSpace(clean)
	if len(clean) > maxNameLength {
		clean = clean[:maxNameLength]
	}

	if clean == "" {
		clean = fmt.Sprintf("file_%d", now().UnixMilli())
	}
	return clean + ext
}

// CleanDisplayName strips markup from a user-supplied project name and caps
// its length. It returns "" when nothing printable is left.
func CleanDisplayName(s string) string {
	s = html.UnescapeString(displayNamePolicy.Sanitize(s))
	s = controlChars.ReplaceAllString(s, "")
	s = strings.Join(strings.Fields(s), " ")
	if utf8.RuneCountInString(s) > maxDisplayNameLength {
		s = string([]rune(s)[:maxDisplayNameLength])
	}
	return strings.TrimSpace(s)
}
