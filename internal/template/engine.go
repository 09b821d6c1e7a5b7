// Package template implements placeholder substitution for notification
// templates. Placeholders use the {{name}} form. Substitution is pure:
// the same pattern and variables always render the same output.
package template

import (
	"fmt"
	"regexp"
	"strings"
)

var placeholderPattern = regexp.MustCompile(`\{\{\s*([a-zA-Z0-9_.]+)\s*\}\}`)

// Render replaces every {{name}} placeholder in pattern with the string form
// of the matching variable. Placeholders without a matching key are left as
// literal text rather than blanked, so a rendering gap stays visible in the
// output instead of silently producing misleading content.
func Render(pattern string, vars map[string]any) string {
	if pattern == "" {
		return ""
	}
	return placeholderPattern.ReplaceAllStringFunc(pattern, func(match string) string {
		name := placeholderPattern.FindStringSubmatch(match)[1]
		value, ok := vars[name]
		if !ok || value == nil {
			return match
		}
		return stringify(value)
	})
}

// Validate reports whether every placeholder referenced in body has a
// corresponding key in vars. Callers use the result for a warning only;
// rendering proceeds either way.
func Validate(body string, vars map[string]any) bool {
	for _, name := range Placeholders(body) {
		if _, ok := vars[name]; !ok {
			return false
		}
	}
	return true
}

// Placeholders returns the distinct placeholder names referenced in body,
// in order of first appearance.
func Placeholders(body string) []string {
	var names []string
	seen := map[string]bool{}
	for _, m := range placeholderPattern.FindAllStringSubmatch(body, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			names = append(names, m[1])
		}
	}
	return names
}

func stringify(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case fmt.Stringer:
		return s.String()
	case float64:
		// Trim the ".000000" default formatting for whole numbers.
		formatted := fmt.Sprintf("%g", s)
		return formatted
	default:
		return strings.TrimSpace(fmt.Sprintf("%v", v))
	}
}
