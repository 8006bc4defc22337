package imagegen

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseAspectRatio(t *testing.T) {
	r, err := ParseAspectRatio("16:9")
	assert.NoError(t, err)
	assert.InDelta(t, 1.777, r, 0.001)

	for _, bad := range []string{"", "16", "0:9", "a:b", "16:-9"} {
		_, err := ParseAspectRatio(bad)
		assert.Error(t, err, bad)
	}
}

func TestNearestSize(t *testing.T) {
	tests := []struct {
		ratio string
		want  string
	}{
		{"1:1", "1024x1024"},
		{"16:9", "1792x1024"},
		{"21:9", "1792x1024"},
		{"9:16", "1024x1792"},
		{"2:3", "1024x1792"},
		{"5:4", "1024x1024"},
		{"4:3", "1792x1024"},
		{"invalid", "1024x1024"},
	}

	for _, tt := range tests {
		t.Run(tt.ratio, func(t *testing.T) {
			assert.Equal(t, tt.want, NearestSize(tt.ratio, DalleSizes).String())
		})
	}
}

func TestNearestRatio(t *testing.T) {
	assert.Equal(t, "16:9", NearestRatio("21:9", ImagenAspectRatios))
	assert.Equal(t, "3:4", NearestRatio("2:3", ImagenAspectRatios))
	assert.Equal(t, "1:1", NearestRatio("1:1", ImagenAspectRatios))
	assert.Equal(t, DefaultAspectRatio, NearestRatio("bogus", ImagenAspectRatios))
}
