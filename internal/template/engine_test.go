package template

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRender(t *testing.T) {
	t.Run("substitutes all placeholders", func(t *testing.T) {
		out := Render("Hello {{firstName}} {{lastName}}!", map[string]any{
			"firstName": "John",
			"lastName":  "Doe",
		})
		assert.Equal(t, "Hello John Doe!", out)
	})

	t.Run("repeated placeholder substituted everywhere", func(t *testing.T) {
		out := Render("{{name}}, yes you, {{name}}", map[string]any{"name": "Ada"})
		assert.Equal(t, "Ada, yes you, Ada", out)
	})

	t.Run("unresolved placeholder left as literal text", func(t *testing.T) {
		out := Render("Score: {{score}}, Rank: {{rank}}", map[string]any{"score": 97.5})
		assert.Equal(t, "Score: 97.5, Rank: {{rank}}", out)
	})

	t.Run("missing variable map does not panic", func(t *testing.T) {
		assert.NotPanics(t, func() {
			out := Render("Hello {{name}}", nil)
			assert.Equal(t, "Hello {{name}}", out)
		})
	})

	t.Run("rendering is idempotent", func(t *testing.T) {
		vars := map[string]any{"assessmentName": "Algebra I", "dueDate": "2025-06-01"}
		pattern := "{{assessmentName}} is due {{dueDate}}"
		first := Render(pattern, vars)
		second := Render(pattern, vars)
		assert.Equal(t, first, second)
	})

	t.Run("whitespace inside delimiters tolerated", func(t *testing.T) {
		out := Render("Hi {{ username }}", map[string]any{"username": "jdoe"})
		assert.Equal(t, "Hi jdoe", out)
	})

	t.Run("non-string values stringified", func(t *testing.T) {
		out := Render("{{count}} new, {{done}}", map[string]any{"count": 3, "done": true})
		assert.Equal(t, "3 new, true", out)
	})

	t.Run("nil value treated as missing", func(t *testing.T) {
		out := Render("Hi {{name}}", map[string]any{"name": nil})
		assert.Equal(t, "Hi {{name}}", out)
	})

	t.Run("empty pattern renders empty", func(t *testing.T) {
		assert.Equal(t, "", Render("", map[string]any{"a": "b"}))
	})
}

func TestValidate(t *testing.T) {
	t.Run("true when all placeholders covered", func(t *testing.T) {
		ok := Validate("Hi {{a}} and {{b}}", map[string]any{"a": 1, "b": 2})
		assert.True(t, ok)
	})

	t.Run("false when a placeholder is missing", func(t *testing.T) {
		ok := Validate("Hi {{a}} and {{b}}", map[string]any{"a": 1})
		assert.False(t, ok)
	})

	t.Run("true for body without placeholders", func(t *testing.T) {
		assert.True(t, Validate("plain text", nil))
	})
}

func TestPlaceholders(t *testing.T) {
	names := Placeholders("{{a}} {{b}} {{a}} {{c}}")
	assert.Equal(t, []string{"a", "b", "c"}, names)
}
