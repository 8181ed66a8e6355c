// Package ocr detects lettering in generated images.
package ocr

import (
	"context"
	"strings"
	"unicode"
)

// Detector reports whether an encoded image contains readable text.
type Detector interface {
	HasText(ctx context.Context, image []byte) (bool, error)
}

// hasVisibleText reports whether s has anything left once whitespace is removed.
func hasVisibleText(s string) bool {
	return strings.IndexFunc(s, func(r rune) bool { return !unicode.IsSpace(r) }) >= 0
}
