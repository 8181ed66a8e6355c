// Package media handles image payloads: data URLs, remote fetches,
// content types and download filenames.
package media

import (
	"encoding/base64"
	"errors"
	"strings"
)

// ErrInvalidDataURL is returned for data URLs that are not base64 encoded.
var ErrInvalidDataURL = errors.New("invalid data URL")

const defaultContentType = "image/png"

// IsDataURL reports whether s is an inline image data URL.
func IsDataURL(s string) bool {
	return strings.HasPrefix(s, "data:image/")
}

// IsRawBase64 reports whether s looks like an unprefixed base64 image.
func IsRawBase64(s string) bool {
	if len(s) <= 1000 {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z', c >= '0' && c <= '9', c == '+', c == '/', c == '=':
		default:
			return false
		}
	}
	return true
}

// DataURL encodes data as a base64 data URL.
func DataURL(contentType string, data []byte) string {
	if contentType == "" {
		contentType = defaultContentType
	}
	return "data:" + contentType + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// ParseDataURL decodes a "data:<type>;base64,<payload>" URL.
func ParseDataURL(s string) (contentType string, data []byte, err error) {
	rest, ok := strings.CutPrefix(s, "data:")
	if !ok {
		return "", nil, ErrInvalidDataURL
	}
	meta, payload, ok := strings.Cut(rest, ";base64,")
	if !ok {
		return "", nil, ErrInvalidDataURL
	}
	contentType = meta
	if contentType == "" {
		contentType = defaultContentType
	}
	data, err = base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, errors.Join(ErrInvalidDataURL, err)
	}
	return contentType, data, nil
}
