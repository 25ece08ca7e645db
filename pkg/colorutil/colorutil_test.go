package colorutil

import (
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseHex(t *testing.T) {
	c, err := ParseHex("#2563eb")
	require.NoError(t, err)
	assert.Equal(t, color.RGBA{R: 0x25, G: 0x63, B: 0xeb, A: 255}, c)

	c, err = ParseHex("fff")
	require.NoError(t, err)
	assert.Equal(t, White, c)

	for _, bad := range []string{"", "#12", "#gggggg", "#1234567"} {
		_, err := ParseHex(bad)
		assert.Error(t, err, bad)
	}
}

func TestBlend(t *testing.T) {
	assert.Equal(t, White, Blend(White, Black, 0))
	assert.Equal(t, Black, Blend(White, Black, 1))
	assert.Equal(t, color.RGBA{R: 128, G: 128, B: 128, A: 255}, Blend(White, Black, 0.5))
}
