package geometry

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDataToPixel(t *testing.T) {
	data := NewRect(0, -10, 0.5, 10)
	pixels := NewRect(50, 20, 500, 200)
	tr := DataToPixel(data, pixels)

	p := tr.Apply(NewPoint2D(0, -10))
	assert.InDelta(t, 50, p.X, 1e-9)
	assert.InDelta(t, 220, p.Y, 1e-9, "data minimum sits at the bottom")

	p = tr.Apply(NewPoint2D(0.5, 0))
	assert.InDelta(t, 550, p.X, 1e-9)
	assert.InDelta(t, 20, p.Y, 1e-9)
}

func TestBoundingBoxSkipsNonFinite(t *testing.T) {
	box := BoundingBox([]Point2D{
		{X: math.NaN(), Y: 1},
		{X: 1, Y: 2},
		{X: 3, Y: math.Inf(-1)},
		{X: -1, Y: 5},
	})
	assert.Equal(t, Rect{X: -1, Y: 2, Width: 2, Height: 3}, box)
	assert.Equal(t, Rect{}, BoundingBox(nil))
}

func TestRectHelpers(t *testing.T) {
	r := NewRect(0, 0, 10, 4)
	assert.Equal(t, Rect{X: 1, Y: 2, Width: 7, Height: 1}, r.Inset(1, 2, 2, 1))
	assert.Equal(t, Rect{X: -1, Y: -0.4, Width: 12, Height: 4.8}, r.Pad(0.1))
	assert.Equal(t, Rect{X: 2, Y: 2.5, Width: 1, Height: 1}, NewRect(2, 3, 1, 0).Pad(0).Union(NewRect(2, 2.5, 1, 1)))
	assert.True(t, r.Contains(NewPoint2D(10, 4)))
	assert.False(t, r.Contains(NewPoint2D(10.1, 4)))
}

func TestCompose(t *testing.T) {
	// Scale first, then translate.
	tr := Translation(1, 2).Compose(Scale(3, -1))
	assert.Equal(t, NewPoint2D(7, 0), tr.Apply(NewPoint2D(2, 2)))
}
