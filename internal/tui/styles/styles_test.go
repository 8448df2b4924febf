package styles

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewPalette(t *testing.T) {
	light := newPalette(false)
	dark := newPalette(true)

	assert.Equal(t, "53", light.Brand)
	assert.Equal(t, "213", dark.Brand)
	assert.NotEqual(t, light.Ok, dark.Ok)
	assert.Equal(t, light.Fail, dark.Fail)
}

func TestDetectDarkHonoursOverride(t *testing.T) {
	t.Setenv("CONFORM_DARK_MODE", "true")
	assert.True(t, detectDark())
	t.Setenv("CONFORM_DARK_MODE", "0")
	assert.False(t, detectDark())
}
