package components

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestChoiceOptions(t *testing.T) {
	choices := []Choice{{Key: "running", Label: "Already running"}, {Key: "managed", Label: "Start it"}}

	opts, selected := choiceOptions(choices, "managed")
	assert.Len(t, opts, 2)
	assert.Equal(t, "managed", selected)

	_, selected = choiceOptions(choices, "nope")
	assert.Equal(t, "running", selected)

	opts, selected = choiceOptions(nil, "x")
	assert.Empty(t, opts)
	assert.Empty(t, selected)
}
