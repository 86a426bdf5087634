package masking

import "strings"

// RouteTemplate converts a net/http ServeMux pattern into the colon form used
// for path labels. The method and host parts of the pattern are dropped.
//
//	RouteTemplate("GET /api/router/{id}")          // "/api/router/:id"
//	RouteTemplate("example.com/static/{path...}")  // "/static/:path"
//	RouteTemplate("/{$}")                          // "/"
//
// An empty pattern yields "".
func RouteTemplate(pattern string) string {
	if pattern == "" {
		return ""
	}
	if i := strings.IndexByte(pattern, ' '); i >= 0 {
		pattern = strings.TrimLeft(pattern[i+1:], " \t")
	}
	if !strings.HasPrefix(pattern, "/") {
		i := strings.IndexByte(pattern, '/')
		if i < 0 {
			return "/"
		}
		pattern = pattern[i:]
	}

	var b strings.Builder
	b.Grow(len(pattern))
	for len(pattern) > 0 {
		open := strings.IndexByte(pattern, '{')
		if open < 0 {
			b.WriteString(pattern)
			break
		}
		end := strings.IndexByte(pattern[open:], '}')
		if end < 0 {
			b.WriteString(pattern)
			break
		}
		b.WriteString(pattern[:open])
		name := pattern[open+1 : open+end]
		pattern = pattern[open+end+1:]

		if name == "$" {
			continue
		}
		name = strings.TrimSuffix(name, "...")
		b.WriteByte(':')
		b.WriteString(name)
	}

	out := b.String()
	if out == "" {
		return "/"
	}
	return out
}
