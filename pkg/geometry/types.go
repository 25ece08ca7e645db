// Package geometry provides the 2D types used to lay out plots: points in
// data or pixel space, rectangles and the affine maps between them.
package geometry

import (
	"math"
)

// Point2D is a point in data or pixel coordinates.
type Point2D struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// NewPoint2D creates a new Point2D.
func NewPoint2D(x, y float64) Point2D {
	return Point2D{X: x, Y: y}
}

// IsFinite reports whether both coordinates are finite.
func (p Point2D) IsFinite() bool {
	return !math.IsNaN(p.X) && !math.IsInf(p.X, 0) && !math.IsNaN(p.Y) && !math.IsInf(p.Y, 0)
}

// Rect is an axis-aligned rectangle. Y grows downwards in pixel space and
// upwards in data space; Rect itself does not care.
type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// NewRect creates a new Rect.
func NewRect(x, y, width, height float64) Rect {
	return Rect{X: x, Y: y, Width: width, Height: height}
}

// Contains returns true if the point is inside the rectangle.
func (r Rect) Contains(p Point2D) bool {
	return p.X >= r.X && p.X <= r.X+r.Width &&
		p.Y >= r.Y && p.Y <= r.Y+r.Height
}

// MaxX returns the right edge.
func (r Rect) MaxX() float64 { return r.X + r.Width }

// MaxY returns the far edge along Y.
func (r Rect) MaxY() float64 { return r.Y + r.Height }

// Union returns the smallest rectangle containing both rectangles.
func (r Rect) Union(other Rect) Rect {
	x := math.Min(r.X, other.X)
	y := math.Min(r.Y, other.Y)
	x2 := math.Max(r.MaxX(), other.MaxX())
	y2 := math.Max(r.MaxY(), other.MaxY())
	return Rect{X: x, Y: y, Width: x2 - x, Height: y2 - y}
}

// Inset shrinks the rectangle by the given margins.
func (r Rect) Inset(left, top, right, bottom float64) Rect {
	return Rect{
		X:      r.X + left,
		Y:      r.Y + top,
		Width:  math.Max(0, r.Width-left-right),
		Height: math.Max(0, r.Height-top-bottom),
	}
}

// Pad grows the rectangle by a fraction of its size on every side. A
// degenerate side is widened to one unit so it can still be mapped.
func (r Rect) Pad(fraction float64) Rect {
	if r.Width == 0 {
		r.X -= 0.5
		r.Width = 1
	}
	if r.Height == 0 {
		r.Y -= 0.5
		r.Height = 1
	}
	dx, dy := r.Width*fraction, r.Height*fraction
	return Rect{X: r.X - dx, Y: r.Y - dy, Width: r.Width + 2*dx, Height: r.Height + 2*dy}
}

// AffineTransform represents a 2x3 affine transformation matrix.
// [a b tx]
// [c d ty]
type AffineTransform struct {
	A, B, TX float64
	C, D, TY float64
}

// Translation returns a translation transform.
func Translation(tx, ty float64) AffineTransform {
	return AffineTransform{A: 1, D: 1, TX: tx, TY: ty}
}

// Scale returns a scaling transform.
func Scale(sx, sy float64) AffineTransform {
	return AffineTransform{A: sx, D: sy}
}

// Apply applies the transform to a point.
func (t AffineTransform) Apply(p Point2D) Point2D {
	return Point2D{
		X: t.A*p.X + t.B*p.Y + t.TX,
		Y: t.C*p.X + t.D*p.Y + t.TY,
	}
}

// Compose returns this transform composed with another (this * other), so
// that other is applied first.
func (t AffineTransform) Compose(other AffineTransform) AffineTransform {
	return AffineTransform{
		A:  t.A*other.A + t.B*other.C,
		B:  t.A*other.B + t.B*other.D,
		TX: t.A*other.TX + t.B*other.TY + t.TX,
		C:  t.C*other.A + t.D*other.C,
		D:  t.C*other.B + t.D*other.D,
		TY: t.C*other.TX + t.D*other.TY + t.TY,
	}
}

// DataToPixel maps the data rectangle onto the pixel rectangle with the data
// Y axis pointing up.
func DataToPixel(data, pixels Rect) AffineTransform {
	sx := pixels.Width / data.Width
	sy := pixels.Height / data.Height
	// Move the data origin to 0, scale with a flipped Y, then move to the
	// bottom-left pixel corner.
	return Translation(pixels.X, pixels.MaxY()).
		Compose(Scale(sx, -sy)).
		Compose(Translation(-data.X, -data.Y))
}

// BoundingBox computes the axis-aligned bounding box of the finite points.
func BoundingBox(points []Point2D) Rect {
	first := true
	var minX, minY, maxX, maxY float64
	for _, p := range points {
		if !p.IsFinite() {
			continue
		}
		if first {
			minX, maxX, minY, maxY = p.X, p.X, p.Y, p.Y
			first = false
			continue
		}
		minX = math.Min(minX, p.X)
		maxX = math.Max(maxX, p.X)
		minY = math.Min(minY, p.Y)
		maxY = math.Max(maxY, p.Y)
	}
	return Rect{X: minX, Y: minY, Width: maxX - minX, Height: maxY - minY}
}
