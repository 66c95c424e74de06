// policy.go - Upload admission rules: blocked types, size and count ceilings.
package security

import (
	"strings"
	"unicode"
)

const (
	// DefaultMaxFiles is the largest number of files accepted in one project.
	DefaultMaxFiles = 100
	// DefaultMaxFileSize is the per-file ceiling (1 GiB).
	DefaultMaxFileSize int64 = 1 << 30
	// DefaultMaxProjectSize is the per-project ceiling (2 GiB).
	DefaultMaxProjectSize int64 = 2 << 30
)

// blockedExtensions lists executable and script formats that are never accepted.
var blockedExtensions = map[string]bool{
	".exe":    true,
	".bat":    true,
	".cmd":    true,
	".scr":    true,
	".vbs":    true,
	".js":     true,
	".jar":    true,
	".com":    true,
	".pif":    true,
	".app":    true,
	".gadget": true,
	".msi":    true,
	".msp":    true,
	".hta":    true,
	".ps1":    true,
	".sh":     true,
	".deb":    true,
	".rpm":    true,
	".dmg":    true,
	".pkg":    true,
}

// blockedMimeTypes lists declared content types that are never accepted.
var blockedMimeTypes = map[string]bool{
	"application/x-msdownload":        true,
	"application/x-executable":        true,
	"application/x-winexe":            true,
	"application/x-ms-dos-executable": true,
	"text/javascript":                 true,
	"application/javascript":          true,
}

// Policy holds the tunable admission limits. The zero value rejects
// everything by size, so build one with DefaultPolicy.
type Policy struct {
	MaxFiles       int
	MaxFileSize    int64
	MaxProjectSize int64
}

// DefaultPolicy returns the stock limits.
func DefaultPolicy() Policy {
	return Policy{
		MaxFiles:       DefaultMaxFiles,
		MaxFileSize:    DefaultMaxFileSize,
		MaxProjectSize: DefaultMaxProjectSize,
	}
}

// IsFileAllowed reports whether neither the extension nor the declared MIME
// type is on the denylist. Everything else is allowed.
func (p Policy) IsFileAllowed(filename, mimeType string) bool {
	// Trailing dots and blanks are dropped by browsers and Windows when the
	// file is saved, so "evil.exe " lands as "evil.exe".
	lower := strings.ToLower(strings.TrimRightFunc(filename, droppedOnSave))
	ext := lower
	if i := strings.LastIndex(lower, "."); i >= 0 {
		ext = lower[i:]
	}
	if blockedExtensions[ext] {
		return false
	}

	if mimeType != "" && blockedMimeTypes[normaliseMimeType(mimeType)] {
		return false
	}
	return true
}

// IsFileSizeAllowed reports whether 0 < size <= MaxFileSize.
func (p Policy) IsFileSizeAllowed(size int64) bool {
	return size > 0 && size <= p.MaxFileSize
}

// IsProjectSizeAllowed reports whether adding incoming bytes to a project
// already holding currentTotal stays within MaxProjectSize.
func (p Policy) IsProjectSizeAllowed(currentTotal, incoming int64) bool {
	return currentTotal+incoming <= p.MaxProjectSize
}

// IsFileCountAllowed reports whether a batch of n files may form a project.
func (p Policy) IsFileCountAllowed(n int) bool {
	return n > 0 && n <= p.MaxFiles
}

func droppedOnSave(r rune) bool {
	return r == '.' || unicode.IsSpace(r) || unicode.In(r, unicode.Z, unicode.Cf)
}

// normaliseMimeType lowercases a content type and drops any parameters.
func normaliseMimeType(v string) string {
	v = strings.ToLower(strings.TrimSpace(v))
	if i := strings.Index(v, ";"); i >= 0 {
		v = v[:i]
	}
	return strings.TrimSpace(v)
}
