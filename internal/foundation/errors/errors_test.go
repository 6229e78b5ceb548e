package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifiedError(t *testing.T) {
	t.Run("Basic error creation", func(t *testing.T) {
		err := NewError(CategoryConfig, "invalid configuration").
			WithSeverity(SeverityFatal).
			WithContext("file", "site.yaml").
			Build()

		assert.Equal(t, CategoryConfig, err.Category())
		assert.Equal(t, SeverityFatal, err.Severity())
		assert.Equal(t, "invalid configuration", err.Message())
		file, ok := err.Context().GetString("file")
		require.True(t, ok)
		assert.Equal(t, "site.yaml", file)
	})

	t.Run("Error detection through wrapping", func(t *testing.T) {
		base := ReferenceError("duplicate label").Build()
		wrapped := fmt.Errorf("collect labels: %w", base)

		assert.True(t, IsClassified(wrapped))
		assert.True(t, HasCategory(wrapped, CategoryReference))
		assert.Equal(t, SeverityFatal, GetSeverity(wrapped))
		assert.Equal(t, CategoryInternal, GetCategory(stderrors.New("plain")))
	})

	t.Run("WithContext copies", func(t *testing.T) {
		base := ParseError("bad").Build()
		derived := base.WithContext("line", 3)
		_, inBase := base.Context().Get("line")
		assert.False(t, inBase)
		line, _ := derived.Context().Get("line")
		assert.Equal(t, 3, line)
	})
}

func TestErrorBuilder(t *testing.T) {
	t.Run("Fluent API", func(t *testing.T) {
		original := stderrors.New("connection reset")
		err := WrapError(original, CategoryNetwork, "upload failed").
			Warning().
			Retryable().
			WithContext("bucket", "site").
			Build()

		assert.Equal(t, CategoryNetwork, err.Category())
		assert.Equal(t, SeverityWarning, err.Severity())
		assert.True(t, err.CanRetry())
		assert.ErrorIs(t, err, original)
	})

	t.Run("Convenience constructors", func(t *testing.T) {
		tests := []struct {
			name     string
			builder  *ErrorBuilder
			category ErrorCategory
			severity ErrorSeverity
		}{
			{"ConfigError", ConfigError("x"), CategoryConfig, SeverityFatal},
			{"ParseError", ParseError("x"), CategoryParse, SeverityError},
			{"ReferenceError", ReferenceError("x"), CategoryReference, SeverityFatal},
			{"EmbedError", EmbedError("x"), CategoryEmbed, SeverityWarning},
			{"RenderError", RenderError("x"), CategoryRender, SeverityFatal},
			{"ThemeError", ThemeError("x"), CategoryTheme, SeverityFatal},
			{"BuildError", BuildError("x"), CategoryBuild, SeverityFatal},
			{"NetworkError", NetworkError("x"), CategoryNetwork, SeverityError},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				err := tt.builder.Build()
				assert.Equal(t, tt.category, err.Category())
				assert.Equal(t, tt.severity, err.Severity())
			})
		}
	})
}

func TestErrorContext_Merge(t *testing.T) {
	a := ErrorContext{}.Set("k1", "v1").Set("shared", "original")
	b := ErrorContext{}.Set("k2", "v2").Set("shared", "overridden")
	merged := a.Merge(b)

	v1, _ := merged.GetString("k1")
	v2, _ := merged.GetString("k2")
	shared, _ := merged.GetString("shared")
	assert.Equal(t, "v1", v1)
	assert.Equal(t, "v2", v2)
	assert.Equal(t, "overridden", shared)
}
