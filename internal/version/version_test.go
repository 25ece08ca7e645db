package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestString(t *testing.T) {
	assert.Equal(t, Version, String())

	old := GitCommit
	t.Cleanup(func() { GitCommit = old })
	GitCommit = "0123456789abcdef"
	assert.Equal(t, Version+" (0123456, built "+BuildTime+")", String())
}
