package components

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSizeGuard(t *testing.T) {
	t.Setenv("CONFORM_TUI_CI_MODE", "")
	g := NewSizeGuard()

	g.Resize(120, 40)
	assert.False(t, g.Active())

	g.Resize(50, 40)
	assert.True(t, g.Active())
	assert.Contains(t, g.View(50, 40), "Now 50 × 40")

	g.Dismiss()
	assert.False(t, g.Active())

	g.Resize(55, 40)
	assert.False(t, g.Active(), "still small, stays dismissed")

	g.Resize(120, 40)
	g.Resize(120, 10)
	assert.True(t, g.Active(), "shrinking again re-arms the prompt")
}

func TestSizeGuardCIMode(t *testing.T) {
	t.Setenv("CONFORM_TUI_CI_MODE", "1")
	g := NewSizeGuard()
	g.Resize(10, 10)
	assert.False(t, g.Active())
}
