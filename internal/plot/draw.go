package plot

import (
	"image"
	"image/color"
	"math"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"xrr-analyzer/pkg/colorutil"
)

var face = basicfont.Face7x13

// fillCircle draws a filled disc.
func fillCircle(img *image.RGBA, cx, cy, r int, c color.RGBA) {
	bounds := img.Bounds()

	for y := cy - r; y <= cy+r; y++ {
		if y < bounds.Min.Y || y >= bounds.Max.Y {
			continue
		}
		for x := cx - r; x <= cx+r; x++ {
			if x < bounds.Min.X || x >= bounds.Max.X {
				continue
			}
			dx, dy := x-cx, y-cy
			if dx*dx+dy*dy <= r*r {
				img.SetRGBA(x, y, c)
			}
		}
	}
}

// drawCircle draws a circle outline using Bresenham's algorithm.
func drawCircle(img *image.RGBA, cx, cy, r int, c color.RGBA) {
	bounds := img.Bounds()

	setPixel := func(x, y int) {
		if (image.Point{X: x, Y: y}).In(bounds) {
			img.SetRGBA(x, y, c)
		}
	}

	x := r
	y := 0
	err := 0

	for x >= y {
		setPixel(cx+x, cy+y)
		setPixel(cx+y, cy+x)
		setPixel(cx-y, cy+x)
		setPixel(cx-x, cy+y)
		setPixel(cx-x, cy-y)
		setPixel(cx-y, cy-x)
		setPixel(cx+y, cy-x)
		setPixel(cx+x, cy-y)

		y++
		if err <= 0 {
			err += 2*y + 1
		}
		if err > 0 {
			x--
			err -= 2*x + 1
		}
	}
}

// drawThickLine draws a line with the given width by stroking parallel
// offsets.
func drawThickLine(img *image.RGBA, x1, y1, x2, y2 float64, width int, c color.RGBA) {
	if width <= 1 {
		drawLine(img, round(x1), round(y1), round(x2), round(y2), c, 0)
		return
	}
	dx := x2 - x1
	dy := y2 - y1
	length := math.Hypot(dx, dy)
	if length == 0 {
		return
	}
	px := -dy / length
	py := dx / length

	half := float64(width-1) / 2
	for t := -half; t <= half; t += 1.0 {
		drawLine(img, round(x1+px*t), round(y1+py*t), round(x2+px*t), round(y2+py*t), c, 0)
	}
}

// drawLine draws a line using Bresenham's algorithm. A positive dash length
// alternates equal runs of drawn and skipped pixels.
func drawLine(img *image.RGBA, x1, y1, x2, y2 int, c color.RGBA, dash int) {
	bounds := img.Bounds()
	dx := abs(x2 - x1)
	dy := abs(y2 - y1)

	sx, sy := 1, 1
	if x1 > x2 {
		sx = -1
	}
	if y1 > y2 {
		sy = -1
	}

	err := dx - dy
	for step := 0; ; step++ {
		on := dash <= 0 || (step/dash)%2 == 0
		if on && (image.Point{X: x1, Y: y1}).In(bounds) {
			img.SetRGBA(x1, y1, c)
		}

		if x1 == x2 && y1 == y2 {
			break
		}

		e2 := 2 * err
		if e2 > -dy {
			err -= dy
			x1 += sx
		}
		if e2 < dx {
			err += dx
			y1 += sy
		}
	}
}

// drawRect draws a rectangle outline.
func drawRect(img *image.RGBA, r image.Rectangle, c color.RGBA) {
	drawLine(img, r.Min.X, r.Min.Y, r.Max.X, r.Min.Y, c, 0)
	drawLine(img, r.Min.X, r.Max.Y, r.Max.X, r.Max.Y, c, 0)
	drawLine(img, r.Min.X, r.Min.Y, r.Min.X, r.Max.Y, c, 0)
	drawLine(img, r.Max.X, r.Min.Y, r.Max.X, r.Max.Y, c, 0)
}

// shadeColumn blends c into the pixels of column x between y1 and y2.
func shadeColumn(img *image.RGBA, x, y1, y2 int, c color.RGBA, opacity float64) {
	if y1 > y2 {
		y1, y2 = y2, y1
	}
	bounds := img.Bounds()
	if x < bounds.Min.X || x >= bounds.Max.X {
		return
	}
	for y := max(y1, bounds.Min.Y); y <= min(y2, bounds.Max.Y-1); y++ {
		img.SetRGBA(x, y, colorutil.Blend(img.RGBAAt(x, y), c, opacity))
	}
}

// drawText writes s with its baseline at y.
func drawText(img *image.RGBA, x, y int, s string, c color.RGBA) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(c),
		Face: face,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(s)
}

// textWidth returns the advance of s in pixels.
func textWidth(s string) int {
	return font.MeasureString(face, s).Ceil()
}

func round(v float64) int { return int(math.Round(v)) }

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
