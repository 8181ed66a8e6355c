// Package render draws flat book mockups around a cover image.
package render

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"io"
	"math"
	"strings"
	"sync"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/f64"
	"golang.org/x/image/math/fixed"
	_ "golang.org/x/image/webp"
)

// Canvas size of every mockup. The bottom band holds the caption.
const (
	Width  = 1400
	Height = 980

	sceneHeight     = Height - 120
	titleY          = Height - 100
	authorY         = titleY + 34
	maxCaptionWidth = 1200
)

type Template string

const (
	PaperbackFront  Template = "paperbackFront"
	HardcoverAngled Template = "hardcoverAngled"
	StackTop        Template = "stackTop"
)

var ErrUnknownTemplate = errors.New("unknown mockup template")

// Templates lists the supported templates in display order.
func Templates() []Template {
	return []Template{PaperbackFront, HardcoverAngled, StackTop}
}

// ParseTemplate maps a name to a Template. The empty string selects
// PaperbackFront.
func ParseTemplate(name string) (Template, error) {
	if name == "" {
		return PaperbackFront, nil
	}
	for _, t := range Templates() {
		if string(t) == name {
			return t, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownTemplate, name)
}

type Options struct {
	Template Template
	Title    string
	Author   string
}

var (
	baseColor     = color.RGBA{0xf4, 0xf4, 0xf5, 0xff}
	gradientInner = color.RGBA{0xff, 0xff, 0xff, 0xff}
	gradientOuter = color.RGBA{0xe5, 0xe7, 0xeb, 0xff}
	borderColor   = color.NRGBA{A: 20}
	spineColor    = color.RGBA{0xe5, 0xe7, 0xeb, 0xff}
	slabColor     = color.RGBA{0xf1, 0xf5, 0xf9, 0xff}
	titleColor    = color.RGBA{0x11, 0x18, 0x27, 0xff}
	authorColor   = color.RGBA{0x37, 0x41, 0x51, 0xff}
)

// MaxPixels bounds the declared size of a cover accepted by Decode.
const MaxPixels = 40_000_000

var ErrImageTooLarge = errors.New("cover image is too large")

// Decode reads a png, jpeg, gif or webp image. The header is checked
// against MaxPixels before any pixel data is allocated.
func Decode(r io.Reader) (image.Image, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading cover image: %w", err)
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decoding cover image: %w", err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, errors.New("cover image is empty")
	}
	if int64(cfg.Width)*int64(cfg.Height) > MaxPixels {
		return nil, fmt.Errorf("%w: %dx%d exceeds %d pixels", ErrImageTooLarge, cfg.Width, cfg.Height, MaxPixels)
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decoding cover image: %w", err)
	}
	return img, nil
}

// Render draws cover into the template described by opts.
func Render(cover image.Image, opts Options) (*image.RGBA, error) {
	if b := cover.Bounds(); b.Dx() == 0 || b.Dy() == 0 {
		return nil, errors.New("cover image is empty")
	}
	tmpl := opts.Template
	if tmpl == "" {
		tmpl = PaperbackFront
	}

	dst := image.NewRGBA(image.Rect(0, 0, Width, Height))
	background(dst)

	switch tmpl {
	case PaperbackFront:
		paperbackFront(dst, cover, Width, sceneHeight)
	case HardcoverAngled:
		hardcoverAngled(dst, cover, Width, sceneHeight)
	case StackTop:
		stackTop(dst, cover, Width, sceneHeight)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownTemplate, tmpl)
	}

	if opts.Title != "" || opts.Author != "" {
		if err := captions(dst, opts.Title, opts.Author); err != nil {
			return nil, err
		}
	}
	return dst, nil
}

// RenderPNG renders and encodes the mockup as PNG.
func RenderPNG(w io.Writer, cover image.Image, opts Options) error {
	img, err := Render(cover, opts)
	if err != nil {
		return err
	}
	return png.Encode(w, img)
}

func background(dst *image.RGBA) {
	draw.Draw(dst, dst.Bounds(), image.NewUniform(baseColor), image.Point{}, draw.Src)

	cx, cy := 0.6*Width, 0.35*Height
	r0, r1 := 50.0, math.Max(Width, Height)
	for y := 0; y < Height; y++ {
		for x := 0; x < Width; x++ {
			d := math.Hypot(float64(x)+0.5-cx, float64(y)+0.5-cy)
			dst.SetRGBA(x, y, lerp(gradientInner, gradientOuter, clamp01((d-r0)/(r1-r0))))
		}
	}
}

func paperbackFront(dst *image.RGBA, cover image.Image, w, h float64) {
	const bookW, bookH = 480.0, 720.0
	book := roundRect{x: (w - bookW) / 2, y: (h - bookH) / 2, w: bookW, h: bookH, r: 8}

	dropShadow(dst, book, 20, 30)
	fill(dst, book, color.White)
	drawContain(dst, cover, book.x+10, book.y+10, bookW-20, bookH-20)
	fill(dst, book.outline(2), borderColor)
}

func hardcoverAngled(dst *image.RGBA, cover image.Image, w, h float64) {
	const (
		bookW, bookH = 420.0, 640.0
		pad          = 60.0
	)
	cx, cy := w*0.45, h*0.52

	// The book is drawn upright on a transparent layer, then sheared onto
	// the canvas so the layer centre lands on (cx, cy).
	layer := image.NewRGBA(image.Rect(0, 0, int(bookW+2*pad), int(bookH+2*pad)))
	book := roundRect{x: pad, y: pad, w: bookW, h: bookH, r: 10}
	dropShadow(layer, book, 16, 24)
	fill(layer, book, color.White)
	drawContain(layer, cover, pad+10, pad+10, bookW-20, bookH-20)
	fill(layer, book.outline(2), borderColor)

	ox, oy := bookW/2+pad, bookH/2+pad
	s2d := f64.Aff3{
		1, 0.2, cx - ox - 0.2*oy,
		-0.2, 1, cy + 0.2*ox - oy,
	}
	draw.BiLinear.Transform(dst, s2d, layer, layer.Bounds(), draw.Over, nil)

	fillRect(dst, cx+230, cy-300, 26, 600, spineColor)
}

func stackTop(dst *image.RGBA, cover image.Image, w, h float64) {
	sx, sy := w*0.2, h*0.35
	base := roundRect{x: sx, y: sy, w: 520, h: 60, r: 8}

	dropShadow(dst, base, 20, 30)
	fill(dst, base, color.White)
	fill(dst, base.translate(20, -40), slabColor)
	fill(dst, base.translate(40, -120), color.White)
	drawContain(dst, cover, sx+50, sy-115, 500, 50)
}

var fonts = sync.OnceValues(func() ([2]*opentype.Font, error) {
	bold, err := opentype.Parse(gobold.TTF)
	if err != nil {
		return [2]*opentype.Font{}, err
	}
	regular, err := opentype.Parse(goregular.TTF)
	if err != nil {
		return [2]*opentype.Font{}, err
	}
	return [2]*opentype.Font{bold, regular}, nil
})

// captions draws the title and author lines. Faces are created per call
// because opentype faces are not safe for concurrent use.
func captions(dst *image.RGBA, title, author string) error {
	f, err := fonts()
	if err != nil {
		return fmt.Errorf("loading caption fonts: %w", err)
	}
	if title != "" {
		face, err := opentype.NewFace(f[0], &opentype.FaceOptions{Size: 28, DPI: 72, Hinting: font.HintingFull})
		if err != nil {
			return err
		}
		defer face.Close()
		centredText(dst, face, title, titleY, titleColor)
	}
	if author != "" {
		face, err := opentype.NewFace(f[1], &opentype.FaceOptions{Size: 22, DPI: 72, Hinting: font.HintingFull})
		if err != nil {
			return err
		}
		defer face.Close()
		centredText(dst, face, author, authorY, authorColor)
	}
	return nil
}

// centredText draws text horizontally centred with its middle on y.
func centredText(dst *image.RGBA, face font.Face, text string, y int, c color.Color) {
	text = ellipsize(face, text, maxCaptionWidth)
	width := font.MeasureString(face, text)
	m := face.Metrics()
	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(c),
		Face: face,
		Dot: fixed.Point26_6{
			X: fixed.I(Width/2) - width/2,
			Y: fixed.I(y) + (m.Ascent-m.Descent)/2,
		},
	}
	d.DrawString(text)
}

func ellipsize(face font.Face, text string, maxWidth int) string {
	limit := fixed.I(maxWidth)
	if font.MeasureString(face, text) <= limit {
		return text
	}
	r := []rune(text)
	for len(r) > 0 {
		r = r[:len(r)-1]
		s := strings.TrimSpace(string(r)) + "…"
		if font.MeasureString(face, s) <= limit {
			return s
		}
	}
	return ""
}
