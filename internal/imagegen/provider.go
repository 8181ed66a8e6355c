// Package imagegen talks to the hosted image generation APIs.
package imagegen

import (
	"context"
	"errors"
)

// ErrNotConfigured is returned when a provider is used without credentials.
var ErrNotConfigured = errors.New("image provider not configured")

// Provider generates images for a prompt. Results are http(s) URLs or
// base64 data URLs.
type Provider interface {
	Name() string
	Generate(ctx context.Context, prompt string) ([]string, error)
}

// Provider names as stored on generation records.
const (
	ProviderDalle     = "dalle"
	ProviderReplicate = "replicate"
)
