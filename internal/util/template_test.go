package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderTemplate(t *testing.T) {
	out, err := RenderTemplate("You work for {{.brand}}. Caller: {{default \"unknown\" .caller}}.", map[string]any{"brand": "Acme"})
	require.NoError(t, err)
	assert.Equal(t, "You work for Acme. Caller: unknown.", out)

	out, err = RenderTemplate("plain", nil)
	require.NoError(t, err)
	assert.Equal(t, "plain", out)

	_, err = RenderTemplate("{{.broken", nil)
	assert.Error(t, err)
}
