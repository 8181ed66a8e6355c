//go:build !notesseract

package ocr

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"os/exec"
	"testing"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

func ensureTesseractAvailable(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("tesseract"); err != nil {
		t.Skip("tesseract not installed in PATH")
	}
}

func renderPNG(t *testing.T, text string) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 240, 80))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: color.White}, image.Point{}, draw.Src)
	if text != "" {
		d := &font.Drawer{Dst: img, Src: image.Black, Face: basicfont.Face7x13, Dot: fixed.P(10, 50)}
		d.DrawString(text)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func TestTesseract_DetectsLettering(t *testing.T) {
	ensureTesseractAvailable(t)

	d := NewTesseract("eng")
	got, err := d.HasText(context.Background(), renderPNG(t, "THE LAST LIGHTHOUSE"))
	if err != nil {
		t.Fatalf("HasText: %v", err)
	}
	if !got {
		t.Error("expected lettering to be detected")
	}
}

func TestTesseract_BlankImage(t *testing.T) {
	ensureTesseractAvailable(t)

	got, err := NewTesseract().HasText(context.Background(), renderPNG(t, ""))
	if err != nil {
		t.Fatalf("HasText: %v", err)
	}
	if got {
		t.Error("blank image reported as containing text")
	}
}

func TestTesseract_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewTesseract().HasText(ctx, nil); err == nil {
		t.Error("expected context error")
	}
}
