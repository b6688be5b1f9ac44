package services

import (
	"html"
	"regexp"
	"strings"
)

var (
	// conditionalRegex matches {{#if variable}}...{{/if}} blocks. Blocks do not nest.
	conditionalRegex = regexp.MustCompile(`(?s)\{\{#if\s+([a-zA-Z0-9_.]+)\s*\}\}(.*?)\{\{/if\}\}`)
	// variableRegex matches {{{variable}}} (group 1, inserted without escaping)
	// or {{variable}} (group 2). One pass; substituted values are not rescanned.
	variableRegex = regexp.MustCompile(`\{\{\{\s*([a-zA-Z0-9_.]+)\s*\}\}\}|\{\{\s*([a-zA-Z0-9_.]+)\s*\}\}`)
)

// RenderTemplate replaces placeholders with values from vars, without escaping.
// Used for subjects and plain text. Missing variables render as empty strings.
func RenderTemplate(content string, vars map[string]string) string {
	return render(content, vars, false)
}

// RenderHTML is RenderTemplate for HTML bodies: {{variable}} values are
// HTML-escaped, {{{variable}}} values are inserted as is.
func RenderHTML(content string, vars map[string]string) string {
	return render(content, vars, true)
}

func render(content string, vars map[string]string, escape bool) string {
	out := conditionalRegex.ReplaceAllStringFunc(content, func(match string) string {
		groups := conditionalRegex.FindStringSubmatch(match)
		if !isTruthy(vars[groups[1]]) {
			return ""
		}
		return groups[2]
	})

	return variableRegex.ReplaceAllStringFunc(out, func(match string) string {
		groups := variableRegex.FindStringSubmatch(match)
		if groups[1] != "" {
			return vars[groups[1]]
		}
		value := vars[groups[2]]
		if escape {
			return html.EscapeString(value)
		}
		return value
	})
}

// isTruthy treats "", "false" and "0" as false
func isTruthy(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "false", "0":
		return false
	}
	return true
}
