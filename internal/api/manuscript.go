package api

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/mamette/mamette/internal/media"
)

// ManuscriptText extracts the plain text of a base64 PDF. A data URL is
// accepted too.
func ManuscriptText(encoded string) (string, error) {
	var data []byte
	if strings.HasPrefix(encoded, "data:") {
		_, d, err := media.ParseDataURL(encoded)
		if err != nil {
			return "", err
		}
		data = d
	} else {
		d, err := base64.StdEncoding.DecodeString(strings.TrimSpace(encoded))
		if err != nil {
			return "", fmt.Errorf("decoding pdf: %w", err)
		}
		data = d
	}
	return PDFText(data)
}

// PDFText returns the plain text of every page in data.
func PDFText(data []byte) (text string, err error) {
	// The parser panics on some malformed files.
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("parsing pdf: %v", p)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("opening pdf: %w", err)
	}
	plain, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("extracting pdf text: %w", err)
	}
	b, err := io.ReadAll(plain)
	if err != nil {
		return "", fmt.Errorf("reading pdf text: %w", err)
	}
	return strings.TrimSpace(string(b)), nil
}
