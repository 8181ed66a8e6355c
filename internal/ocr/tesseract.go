//go:build !notesseract

package ocr

import (
	"context"
	"fmt"

	"github.com/otiai10/gosseract/v2"
)

// Tesseract finds text with the tesseract engine. A client is created per
// image; gosseract clients are not safe for concurrent use.
type Tesseract struct {
	languages     []string
	clientFactory func() *gosseract.Client
}

// NewTesseract returns a detector for the given tesseract languages,
// "eng" and "fra" when none are given.
func NewTesseract(languages ...string) *Tesseract {
	if len(languages) == 0 {
		languages = []string{"eng", "fra"}
	}
	return &Tesseract{languages: languages, clientFactory: gosseract.NewClient}
}

// Available reports whether this build includes the tesseract engine.
func Available() bool { return true }

func (t *Tesseract) HasText(ctx context.Context, image []byte) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	c := t.clientFactory()
	defer c.Close()

	if err := c.SetLanguage(t.languages...); err != nil {
		return false, fmt.Errorf("set languages: %w", err)
	}
	if err := c.SetImageFromBytes(image); err != nil {
		return false, fmt.Errorf("set image: %w", err)
	}
	text, err := c.Text()
	if err != nil {
		return false, fmt.Errorf("recognize text: %w", err)
	}
	return hasVisibleText(text), nil
}
