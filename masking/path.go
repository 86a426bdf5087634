package masking

import (
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// DefaultReplacement is the token substituted for masked path segments.
const DefaultReplacement = ":id"

var defaultSegmentMasks = []*regexp.Regexp{
	// integers, optionally signed
	regexp.MustCompile(`^-?\d+$`),
	// dates such as 2024-01-31 or 24-01-31
	regexp.MustCompile(`^(\d{2}|\d{4})-\d\d-\d\d$`),
	// hex identifiers: hashes, object ids
	regexp.MustCompile(`^[0-9a-fA-F]{7,}$`),
}

// SanitizePath strips the query string and fragment from a raw request URI.
// An empty result becomes "/".
func SanitizePath(raw string) string {
	if i := strings.IndexAny(raw, "?#"); i >= 0 {
		raw = raw[:i]
	}
	if raw == "" {
		return "/"
	}
	return raw
}

// MaskPath replaces every path segment that looks like a value (number, date,
// hex id, UUID, or a match for one of extra) with replacement. An empty
// replacement means DefaultReplacement.
//
// Example:
//
//	MaskPath("/api/router/17", "")                                   // "/api/router/:id"
//	MaskPath("/files/9b2d5c1e-6a0f-4c8e-9a77-0a5e3f2c1b4d/raw", "")  // "/files/:id/raw"
func MaskPath(path, replacement string, extra ...*regexp.Regexp) string {
	if replacement == "" {
		replacement = DefaultReplacement
	}
	segments := strings.Split(path, "/")
	for i, segment := range segments {
		if segment == "" {
			continue
		}
		if isValueSegment(segment, extra) {
			segments[i] = replacement
		}
	}
	return strings.Join(segments, "/")
}

func isValueSegment(segment string, extra []*regexp.Regexp) bool {
	for _, re := range defaultSegmentMasks {
		if re.MatchString(segment) {
			// hex runs need at least one digit to count as an id
			if re == defaultSegmentMasks[2] && !strings.ContainsAny(segment, "0123456789") {
				continue
			}
			return true
		}
	}
	if len(segment) == 36 || len(segment) == 32 {
		if _, err := uuid.Parse(segment); err == nil {
			return true
		}
	}
	for _, re := range extra {
		if re != nil && re.MatchString(segment) {
			return true
		}
	}
	return false
}
