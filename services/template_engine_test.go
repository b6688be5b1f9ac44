package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRenderTemplate(t *testing.T) {
	vars := map[string]string{
		"name":        "Ana",
		"case_number": "2026-CIV-0001",
		"lawyer_name": "Luis",
		"flag":        "false",
		"markup":      "<b>bold</b>",
	}

	tests := []struct {
		name     string
		content  string
		expected string
	}{
		{
			name:     "Single variable",
			content:  "Hello {{name}}",
			expected: "Hello Ana",
		},
		{
			name:     "Multiple variables",
			content:  "Hello {{name}}, case {{case_number}}",
			expected: "Hello Ana, case 2026-CIV-0001",
		},
		{
			name:     "Whitespace inside braces",
			content:  "Hello {{ name }}",
			expected: "Hello Ana",
		},
		{
			name:     "Missing variable renders blank",
			content:  "Hello {{unknown}}!",
			expected: "Hello !",
		},
		{
			name:     "Conditional kept when set",
			content:  "{{#if lawyer_name}}Lawyer: {{lawyer_name}}{{/if}}",
			expected: "Lawyer: Luis",
		},
		{
			name:     "Conditional dropped when missing",
			content:  "A{{#if missing}}hidden{{/if}}B",
			expected: "AB",
		},
		{
			name:     "Conditional dropped when false",
			content:  "A{{#if flag}}hidden{{/if}}B",
			expected: "AB",
		},
		{
			name:     "Conditional spanning lines",
			content:  "{{#if name}}line one\nline two{{/if}}",
			expected: "line one\nline two",
		},
		{
			name:     "Plain text is not escaped",
			content:  "{{markup}}",
			expected: "<b>bold</b>",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, RenderTemplate(tt.content, vars))
		})
	}
}

func TestRenderHTML(t *testing.T) {
	vars := map[string]string{
		"name": `Ana <script>alert("x")</script>`,
		"rows": "<tr><td>1</td></tr>",
	}

	t.Run("Escapes variables", func(t *testing.T) {
		out := RenderHTML("<p>{{name}}</p>", vars)
		assert.NotContains(t, out, "<script>")
		assert.Contains(t, out, "&lt;script&gt;")
	})

	t.Run("Triple braces insert raw", func(t *testing.T) {
		assert.Equal(t, "<table><tr><td>1</td></tr></table>", RenderHTML("<table>{{{rows}}}</table>", vars))
	})

	t.Run("Placeholders inside values are left alone", func(t *testing.T) {
		vars := map[string]string{
			"rows":   "<td>{{secret}}</td>",
			"title":  "{{{secret}}}",
			"secret": "LEAK",
		}
		assert.Equal(t, "<table><td>{{secret}}</td></table>", RenderHTML("<table>{{{rows}}}</table>", vars))
		assert.Equal(t, "<p>{{{secret}}}</p>", RenderHTML("<p>{{title}}</p>", vars))
		assert.Equal(t, "Case {{secret}}", RenderTemplate("Case {{rows}}", map[string]string{"rows": "{{secret}}", "secret": "LEAK"}))
	})
}

func TestIsTruthy(t *testing.T) {
	assert.False(t, isTruthy(""))
	assert.False(t, isTruthy(" 0 "))
	assert.False(t, isTruthy("FALSE"))
	assert.True(t, isTruthy("yes"))
	assert.True(t, isTruthy("3"))
}
