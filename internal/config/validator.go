package config

import (
	"fmt"
	"net/netip"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// FieldError is one failed configuration check.
type FieldError struct {
	Field   string
	Message string
}

func (e FieldError) Error() string {
	return fmt.Sprintf("config validation failed for %s: %s", e.Field, e.Message)
}

// Validator collects field errors so startup can report all of them at once.
type Validator struct {
	errors []FieldError
}

// AddError records a validation error.
func (v *Validator) AddError(field, message string) {
	v.errors = append(v.errors, FieldError{Field: field, Message: message})
}

// HasErrors returns true if any check failed.
func (v *Validator) HasErrors() bool {
	return len(v.errors) > 0
}

// Errors returns all recorded errors.
func (v *Validator) Errors() []FieldError {
	return v.errors
}

// Err folds the recorded errors into one error, or nil.
func (v *Validator) Err() error {
	if !v.HasErrors() {
		return nil
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "configuration validation failed with %d error(s):", len(v.errors))
	for i, err := range v.errors {
		fmt.Fprintf(&sb, "\n  %d. %s", i+1, err.Error())
	}
	return fmt.Errorf("%s", sb.String())
}

// Required flags an empty value.
func (v *Validator) Required(key, value string) {
	if value == "" {
		v.AddError(key, "required environment variable not set")
	}
}

// URL validates an http(s) URL when a value is present.
func (v *Validator) URL(key, value string) {
	if value == "" {
		return
	}
	parsed, err := url.Parse(value)
	if err != nil {
		v.AddError(key, fmt.Sprintf("invalid URL format: %v", err))
		return
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		v.AddError(key, "URL must use http or https scheme")
	}
}

// MinLength validates a minimum length when a value is present.
func (v *Validator) MinLength(key, value string, minLen int) {
	if value == "" {
		return
	}
	if len(value) < minLen {
		v.AddError(key, fmt.Sprintf("must be at least %d characters long (got %d)", minLen, len(value)))
	}
}

// Enum validates that value is one of allowed.
func (v *Validator) Enum(key, value string, allowed []string) {
	for _, opt := range allowed {
		if value == opt {
			return
		}
	}
	v.AddError(key, fmt.Sprintf("must be one of: %s (got: %s)", strings.Join(allowed, ", "), value))
}

// Positive flags a non-positive number.
func (v *Validator) Positive(key string, n int64) {
	if n <= 0 {
		v.AddError(key, "must be a positive number")
	}
}

// PositiveDuration flags a non-positive duration.
func (v *Validator) PositiveDuration(key string, d time.Duration) {
	if d <= 0 {
		v.AddError(key, "must be a positive duration")
	}
}

// String reads key from the environment, falling back to def.
func (v *Validator) String(key, def string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return def
}

// Int reads an integer, recording a parse failure.
func (v *Validator) Int(key string, def int) int {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		v.AddError(key, "must be a valid integer")
		return def
	}
	return n
}

// Int64 reads a 64-bit integer, recording a parse failure.
func (v *Validator) Int64(key string, def int64) int64 {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		v.AddError(key, "must be a valid integer")
		return def
	}
	return n
}

// Bool reads a boolean, recording a parse failure.
func (v *Validator) Bool(key string, def bool) bool {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		v.AddError(key, "must be true or false")
		return def
	}
	return b
}

// Duration reads a Go duration string (e.g. 168h, 15m), recording a parse
// failure.
func (v *Validator) Duration(key string, def time.Duration) time.Duration {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		v.AddError(key, "must be a valid duration (e.g., 24h, 15m)")
		return def
	}
	return d
}

// Prefixes reads a comma-separated list of CIDR ranges or single addresses,
// recording every entry that does not parse.
func (v *Validator) Prefixes(key string) []netip.Prefix {
	s := os.Getenv(key)
	if s == "" {
		return nil
	}
	var out []netip.Prefix
	for _, item := range strings.Split(s, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		if p, err := netip.ParsePrefix(item); err == nil {
			out = append(out, p.Masked())
			continue
		}
		addr, err := netip.ParseAddr(item)
		if err != nil {
			v.AddError(key, fmt.Sprintf("invalid address or CIDR %q", item))
			continue
		}
		addr = addr.Unmap()
		out = append(out, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return out
}
