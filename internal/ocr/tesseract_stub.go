//go:build notesseract

package ocr

import (
	"context"
	"errors"
)

// ErrUnavailable is returned when the binary was built without tesseract.
var ErrUnavailable = errors.New("ocr: built without tesseract support")

// Tesseract is a placeholder in builds tagged notesseract.
type Tesseract struct{}

func NewTesseract(...string) *Tesseract { return &Tesseract{} }

// Available reports whether this build includes the tesseract engine.
func Available() bool { return false }

func (*Tesseract) HasText(context.Context, []byte) (bool, error) {
	return false, ErrUnavailable
}
