package media

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/idna"
)

const (
	defaultMaxBytes = 25 << 20
	defaultTimeout  = 60 * time.Second
)

// ErrUnsupportedURL is returned for anything but http(s) URLs and inline images.
var ErrUnsupportedURL = errors.New("unsupported image URL")

// ErrTooLarge is returned when a body exceeds the fetcher's limit.
var ErrTooLarge = errors.New("image too large")

// StatusError reports a non-2xx upstream response.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("fetch failed: %d", e.Code)
}

// Blob is a fetched image.
type Blob struct {
	ContentType string
	Data        []byte
}

// Fetcher resolves image references: data URLs, raw base64 or remote URLs.
type Fetcher struct {
	client   *http.Client
	maxBytes int64
}

// NewFetcher returns a Fetcher using client, or a default client when nil.
func NewFetcher(client *http.Client) *Fetcher {
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}
	return &Fetcher{client: client, maxBytes: defaultMaxBytes}
}

// WithMaxBytes returns a copy of f that caps bodies at n bytes.
func (f *Fetcher) WithMaxBytes(n int64) *Fetcher {
	c := *f
	c.maxBytes = n
	return &c
}

// Fetch returns the image bytes behind ref.
func (f *Fetcher) Fetch(ctx context.Context, ref string) (Blob, error) {
	ref = strings.TrimSpace(ref)
	switch {
	case IsDataURL(ref):
		ct, data, err := ParseDataURL(ref)
		if err != nil {
			return Blob{}, err
		}
		return Blob{ContentType: ct, Data: data}, nil
	case IsRawBase64(ref):
		data, err := base64.StdEncoding.DecodeString(ref)
		if err != nil {
			return Blob{}, errors.Join(ErrInvalidDataURL, err)
		}
		return Blob{ContentType: defaultContentType, Data: data}, nil
	}

	u, err := NormalizeURL(ref)
	if err != nil {
		return Blob{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return Blob{}, fmt.Errorf("creating request: %w", err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return Blob{}, fmt.Errorf("fetching image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Blob{}, &StatusError{Code: resp.StatusCode}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return Blob{}, fmt.Errorf("reading image: %w", err)
	}
	if int64(len(data)) > f.maxBytes {
		return Blob{}, ErrTooLarge
	}

	ct := resp.Header.Get("Content-Type")
	if ct == "" {
		ct = defaultContentType
	}
	return Blob{ContentType: ct, Data: data}, nil
}

// NormalizeURL checks that raw is an http(s) URL and converts an
// internationalised host to its ASCII form.
func NormalizeURL(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnsupportedURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("%w: scheme %q", ErrUnsupportedURL, u.Scheme)
	}
	host := u.Hostname()
	if host == "" {
		return "", fmt.Errorf("%w: missing host", ErrUnsupportedURL)
	}
	if net.ParseIP(host) == nil {
		ascii, err := idna.Lookup.ToASCII(host)
		if err != nil {
			return "", fmt.Errorf("%w: host %q: %v", ErrUnsupportedURL, host, err)
		}
		if port := u.Port(); port != "" {
			u.Host = net.JoinHostPort(ascii, port)
		} else {
			u.Host = ascii
		}
	}
	return u.String(), nil
}
