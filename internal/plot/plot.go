// Package plot renders reflectivity, residual and Fourier panels to raster
// images.
package plot

import (
	"image"
	"image/color"
	"image/draw"
	"math"
	"strconv"

	"xrr-analyzer/pkg/colorutil"
	"xrr-analyzer/pkg/geometry"
)

// Style selects how a series is drawn.
type Style int

const (
	Line Style = iota
	Markers
	// Area is a line with the region down to y=0 shaded.
	Area
)

// Series is one named data set.
type Series struct {
	Name  string
	X, Y  []float64
	Color color.RGBA
	Style Style
	Width int
}

// Panel is one set of axes.
type Panel struct {
	Title  string
	XLabel string
	YLabel string
	LogY   bool
	// XMin/XMax fix the x range when XMax > XMin.
	XMin, XMax float64
	// ZeroLine draws a dashed line at y=0.
	ZeroLine bool
	Series   []Series
}

// Margins around the plotting area, in pixels.
const (
	marginLeft   = 72
	marginRight  = 16
	marginTop    = 24
	marginBottom = 40
)

// Render draws the panels stacked vertically, each given an equal share of
// height.
func Render(width, height int, panels ...Panel) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), image.NewUniform(colorutil.White), image.Point{}, draw.Src)
	if len(panels) == 0 {
		return img
	}
	h := height / len(panels)
	for i, p := range panels {
		p.draw(img, image.Rect(0, i*h, width, (i+1)*h))
	}
	return img
}

// points converts a series to data-space points, taking log10 of y when
// requested and dropping what cannot be shown.
func (p Panel) points(s Series) []geometry.Point2D {
	n := min(len(s.X), len(s.Y))
	pts := make([]geometry.Point2D, 0, n)
	for i := 0; i < n; i++ {
		y := s.Y[i]
		if p.LogY {
			if y <= 0 {
				continue
			}
			y = math.Log10(y)
		}
		pt := geometry.NewPoint2D(s.X[i], y)
		if pt.IsFinite() {
			pts = append(pts, pt)
		}
	}
	return pts
}

// inside drops points outside a fixed axis range.
func inside(pts []geometry.Point2D, box geometry.Rect) []geometry.Point2D {
	out := pts[:0]
	for _, pt := range pts {
		if box.Contains(pt) {
			out = append(out, pt)
		}
	}
	return out
}

func (p Panel) dataBounds(series [][]geometry.Point2D) geometry.Rect {
	var all []geometry.Point2D
	for _, pts := range series {
		all = append(all, pts...)
	}
	box := geometry.BoundingBox(all)
	if p.ZeroLine {
		box = box.Union(geometry.NewRect(box.X, 0, box.Width, 0))
	}
	box = box.Pad(0.03)
	if p.XMax > p.XMin {
		box.X, box.Width = p.XMin, p.XMax-p.XMin
	}
	return box
}

func (p Panel) draw(img *image.RGBA, frame image.Rectangle) {
	outer := geometry.NewRect(float64(frame.Min.X), float64(frame.Min.Y), float64(frame.Dx()), float64(frame.Dy()))
	area := outer.Inset(marginLeft, marginTop, marginRight, marginBottom)
	areaPx := image.Rect(int(area.X), int(area.Y), int(area.MaxX()), int(area.MaxY()))

	series := make([][]geometry.Point2D, len(p.Series))
	for i, s := range p.Series {
		series[i] = p.points(s)
	}
	data := p.dataBounds(series)
	for i, pts := range series {
		series[i] = inside(pts, data)
	}
	toPx := geometry.DataToPixel(data, area)

	p.drawAxes(img, areaPx, data, toPx)

	clip := img.SubImage(areaPx.Inset(1)).(*image.RGBA)
	if p.ZeroLine {
		y := round(toPx.Apply(geometry.NewPoint2D(0, 0)).Y)
		drawLine(clip, areaPx.Min.X, y, areaPx.Max.X, y, colorutil.Axis, 4)
	}
	for i, s := range p.Series {
		drawSeries(clip, s, series[i], toPx)
	}

	drawText(img, frame.Min.X+marginLeft, frame.Min.Y+16, p.Title, colorutil.Axis)
	p.drawLegend(img, areaPx)
}

func drawSeries(img *image.RGBA, s Series, pts []geometry.Point2D, toPx geometry.AffineTransform) {
	width := s.Width
	if width <= 0 {
		width = 1
	}
	switch s.Style {
	case Markers:
		for _, pt := range pts {
			px := toPx.Apply(pt)
			drawCircle(img, round(px.X), round(px.Y), 2, s.Color)
		}
	default:
		if s.Style == Area {
			base := toPx.Apply(geometry.NewPoint2D(0, 0)).Y
			for i := 1; i < len(pts); i++ {
				a, b := toPx.Apply(pts[i-1]), toPx.Apply(pts[i])
				for x := round(a.X); x <= round(b.X); x++ {
					t := 0.0
					if b.X != a.X {
						t = (float64(x) - a.X) / (b.X - a.X)
					}
					y := a.Y + t*(b.Y-a.Y)
					shadeColumn(img, x, round(y), round(base), s.Color, 0.15)
				}
			}
		}
		for i := 1; i < len(pts); i++ {
			a, b := toPx.Apply(pts[i-1]), toPx.Apply(pts[i])
			drawThickLine(img, a.X, a.Y, b.X, b.Y, width, s.Color)
		}
	}
}

func (p Panel) drawAxes(img *image.RGBA, area image.Rectangle, data geometry.Rect, toPx geometry.AffineTransform) {
	for _, x := range niceTicks(data.X, data.MaxX(), 6) {
		px := round(toPx.Apply(geometry.NewPoint2D(x, data.Y)).X)
		drawLine(img, px, area.Min.Y, px, area.Max.Y, colorutil.Grid, 0)
		label := formatTick(x)
		drawText(img, px-textWidth(label)/2, area.Max.Y+14, label, colorutil.Axis)
	}

	var yticks []float64
	if p.LogY {
		yticks = decadeTicks(data.Y, data.MaxY())
	} else {
		yticks = niceTicks(data.Y, data.MaxY(), 5)
	}
	for _, y := range yticks {
		py := round(toPx.Apply(geometry.NewPoint2D(data.X, y)).Y)
		drawLine(img, area.Min.X, py, area.Max.X, py, colorutil.Grid, 0)
		label := formatTick(y)
		if p.LogY {
			label = "1e" + strconv.Itoa(int(math.Round(y)))
		}
		drawText(img, area.Min.X-6-textWidth(label), py+4, label, colorutil.Axis)
	}

	drawRect(img, area, colorutil.Axis)
	drawText(img, area.Min.X+(area.Dx()-textWidth(p.XLabel))/2, area.Max.Y+32, p.XLabel, colorutil.Axis)
	drawText(img, area.Min.X-marginLeft+4, area.Min.Y-6, p.YLabel, colorutil.Axis)
}

func (p Panel) drawLegend(img *image.RGBA, area image.Rectangle) {
	y := area.Min.Y + 16
	for _, s := range p.Series {
		if s.Name == "" {
			continue
		}
		x := area.Max.X - 12 - textWidth(s.Name)
		fillCircle(img, x-10, y-4, 3, s.Color)
		drawText(img, x, y, s.Name, s.Color)
		y += 16
	}
}

// niceTicks returns roughly n round tick values inside [lo, hi].
func niceTicks(lo, hi float64, n int) []float64 {
	if !(hi > lo) || n < 1 {
		return nil
	}
	raw := (hi - lo) / float64(n)
	mag := math.Pow(10, math.Floor(math.Log10(raw)))
	step := mag
	for _, m := range []float64{1, 2, 5, 10} {
		step = m * mag
		if step >= raw {
			break
		}
	}
	var ticks []float64
	start := math.Ceil(lo/step - 1e-9)
	for i := start; i*step <= hi+step*1e-9; i++ {
		ticks = append(ticks, i*step)
	}
	return ticks
}

// decadeTicks returns the integer exponents inside [lo, hi], thinned so that
// at most eight remain.
func decadeTicks(lo, hi float64) []float64 {
	first, last := math.Ceil(lo), math.Floor(hi)
	if last < first {
		return nil
	}
	every := math.Max(1, math.Ceil((last-first+1)/8))
	var ticks []float64
	for v := first; v <= last; v += every {
		ticks = append(ticks, v)
	}
	return ticks
}

func formatTick(v float64) string {
	return strconv.FormatFloat(v, 'g', 4, 64)
}
