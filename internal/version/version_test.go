package version

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPrintVersion(t *testing.T) {
	origVersion, origBuild, origCommit := Version, BuildTime, GitCommit
	t.Cleanup(func() { Version, BuildTime, GitCommit = origVersion, origBuild, origCommit })

	var buf bytes.Buffer
	PrintVersion(&buf)
	assert.Equal(t, "conform (version: dev)\n", buf.String())

	Version, BuildTime, GitCommit = "1.4.0", "2025-10-01T09:30:00Z", "3f2c1ab"
	buf.Reset()
	PrintVersion(&buf)
	assert.Equal(t, "conform (version: 1.4.0)\nBuild Time: 2025-10-01T09:30:00Z\nGit Commit: 3f2c1ab\n", buf.String())
}
