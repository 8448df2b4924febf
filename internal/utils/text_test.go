package utils

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapLine_NoWrap(t *testing.T) {
	assert.Equal(t, []string{"hello"}, WrapLine("hello", 10))
}

func TestWrapLine_WrapsAtSpaces(t *testing.T) {
	assert.Equal(t, []string{"abc", "def", "ghi"}, WrapLine("abc def ghi", 5))
}

func TestWrapLine_LongWordSplitsWithinLimit(t *testing.T) {
	got := WrapLine("supercalifragilisticexpialidocious", 10)
	require.GreaterOrEqual(t, len(got), 2)
	for _, line := range got {
		assert.LessOrEqual(t, len(line), 10, "line exceeds maxWidth: %q", line)
	}
}

func TestWrapLine_KeepsNonWrappableLines(t *testing.T) {
	long := strings.Repeat("-", 30)
	assert.Equal(t, []string{long}, WrapLine(MarkNonWrappable(long), 10))
}

func TestWrapLine_IgnoresANSIWidth(t *testing.T) {
	colored := "\033[31mred\033[0m"
	assert.Equal(t, []string{colored}, WrapLine(colored, 3))
}

func TestWrapText_PreservesEmptyLines(t *testing.T) {
	assert.Equal(t, "a\n\nb", WrapText("a\n\nb", 1))
}

func TestTruncateWithEllipsis(t *testing.T) {
	assert.Equal(t, "short", TruncateWithEllipsis("short", 10))
	assert.Equal(t, "idemp...", TruncateWithEllipsis("idempotent create replay", 8))
	assert.Equal(t, "...", TruncateWithEllipsis("anything", 2))
}

func TestFormatJSONDiff(t *testing.T) {
	out := FormatJSONDiff(map[string]any{"amount": 2420}, map[string]any{"amount": 2410})
	plain := StripNoWrapMarker(StripANSI(out))
	assert.Contains(t, plain, "--- Expected")
	assert.Contains(t, plain, "+++ Actual")
	assert.Contains(t, plain, `-  "amount": 2420`)
	assert.Contains(t, plain, `+  "amount": 2410`)

	assert.Equal(t, "No differences found", FormatJSONDiff(`{"a":1}`, map[string]any{"a": 1}))
}
