package render

import (
	"image"
	"image/color"
	"math"

	"golang.org/x/image/draw"
)

// roundRect is an anti-aliased rounded rectangle usable as a draw mask.
// A positive stroke turns it into an outline of that width centred on the
// edge.
type roundRect struct {
	x, y, w, h, r float64
	stroke        float64
}

func (s roundRect) translate(dx, dy float64) roundRect {
	s.x += dx
	s.y += dy
	return s
}

func (s roundRect) outline(width float64) roundRect {
	s.stroke = width
	return s
}

func (s roundRect) ColorModel() color.Model { return color.AlphaModel }

func (s roundRect) Bounds() image.Rectangle {
	pad := s.stroke + 1
	return image.Rect(
		int(math.Floor(s.x-pad)), int(math.Floor(s.y-pad)),
		int(math.Ceil(s.x+s.w+pad)), int(math.Ceil(s.y+s.h+pad)),
	)
}

func (s roundRect) At(x, y int) color.Color {
	return color.Alpha{A: uint8(s.coverage(float64(x)+0.5, float64(y)+0.5)*255 + 0.5)}
}

// dist is the signed distance from (px, py) to the edge, negative inside.
func (s roundRect) dist(px, py float64) float64 {
	r := min(s.r, s.w/2, s.h/2)
	qx := math.Abs(px-(s.x+s.w/2)) - (s.w/2 - r)
	qy := math.Abs(py-(s.y+s.h/2)) - (s.h/2 - r)
	return math.Hypot(math.Max(qx, 0), math.Max(qy, 0)) + math.Min(math.Max(qx, qy), 0) - r
}

func (s roundRect) coverage(px, py float64) float64 {
	d := s.dist(px, py)
	if s.stroke > 0 {
		d = math.Abs(d) - s.stroke/2
	}
	return clamp01(0.5 - d)
}

func fill(dst draw.Image, s roundRect, c color.Color) {
	b := s.Bounds()
	draw.DrawMask(dst, b, image.NewUniform(c), image.Point{}, s, b.Min, draw.Over)
}

func fillRect(dst draw.Image, x, y, w, h float64, c color.Color) {
	r := image.Rect(int(math.Round(x)), int(math.Round(y)), int(math.Round(x+w)), int(math.Round(y+h)))
	draw.Draw(dst, r, image.NewUniform(c), image.Point{}, draw.Over)
}

var shadowColor = color.NRGBA{A: 64}

// dropShadow paints a blurred shadow of s shifted down by offsetY. The blur
// is three box passes, which approximates a gaussian with sigma blur/2.
func dropShadow(dst draw.Image, s roundRect, offsetY, blur float64) {
	sh := s.translate(0, offsetY)
	radius := int(blur / 2)
	b := sh.Bounds().Inset(-3 * radius)

	mask := image.NewAlpha(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			mask.SetAlpha(x, y, sh.At(x, y).(color.Alpha))
		}
	}
	for range 3 {
		boxBlur(mask, radius)
	}
	draw.DrawMask(dst, b, image.NewUniform(shadowColor), image.Point{}, mask, b.Min, draw.Over)
}

func boxBlur(m *image.Alpha, r int) {
	if r < 1 {
		return
	}
	w, h := m.Rect.Dx(), m.Rect.Dy()
	buf := make([]int, max(w, h))
	for y := range h {
		blurLine(m.Pix, y*m.Stride, w, 1, r, buf)
	}
	for x := range w {
		blurLine(m.Pix, x, h, m.Stride, r, buf)
	}
}

// blurLine averages n values spaced step apart starting at off over a window
// of 2r+1. Values outside the line count as zero.
func blurLine(pix []uint8, off, n, step, r int, buf []int) {
	for i := range n {
		buf[i] = int(pix[off+i*step])
	}
	sum := 0
	for i := 0; i <= r && i < n; i++ {
		sum += buf[i]
	}
	div := 2*r + 1
	for i := range n {
		pix[off+i*step] = uint8(sum / div)
		if j := i + r + 1; j < n {
			sum += buf[j]
		}
		if j := i - r; j >= 0 {
			sum -= buf[j]
		}
	}
}

// drawContain scales img to fit inside the box, centred, keeping its aspect
// ratio.
func drawContain(dst draw.Image, img image.Image, x, y, w, h float64) {
	b := img.Bounds()
	ir := float64(b.Dx()) / float64(b.Dy())
	dw, dh := w, h
	if ir > w/h {
		dh = w / ir
		y += (h - dh) / 2
	} else {
		dw = h * ir
		x += (w - dw) / 2
	}
	r := image.Rect(int(math.Round(x)), int(math.Round(y)), int(math.Round(x+dw)), int(math.Round(y+dh)))
	draw.CatmullRom.Scale(dst, r, img, b, draw.Over, nil)
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

func lerp(a, b color.RGBA, t float64) color.RGBA {
	mix := func(x, y uint8) uint8 {
		return uint8(float64(x) + (float64(y)-float64(x))*t + 0.5)
	}
	return color.RGBA{R: mix(a.R, b.R), G: mix(a.G, b.G), B: mix(a.B, b.B), A: mix(a.A, b.A)}
}
