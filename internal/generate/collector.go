// Package generate runs cover generations: the bounded loop that collects
// text-free images and the service that records each run.
package generate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/mamette/mamette/internal/imagegen"
	"github.com/mamette/mamette/internal/media"
	"github.com/mamette/mamette/internal/ocr"
)

// ErrNoImages is returned when a run ends without a single usable image.
var ErrNoImages = errors.New("failed to generate any images")

const (
	defaultWant        = 4
	defaultConcurrency = 4
)

// Observer receives per-attempt events. Implementations must be safe for
// concurrent use.
type Observer interface {
	AttemptFinished(provider string, err error)
	ImageRejected(provider string)
	GenerationFinished(provider, status string)
}

type nopObserver struct{}

func (nopObserver) AttemptFinished(string, error)     {}
func (nopObserver) ImageRejected(string)              {}
func (nopObserver) GenerationFinished(string, string) {}

// Collector calls a provider until Want clean images are collected or
// MaxAttempts calls have been made.
type Collector struct {
	Provider    imagegen.Provider
	Detector    ocr.Detector // nil skips the lettering check
	Fetcher     *media.Fetcher
	Want        int
	MaxAttempts int
	Concurrency int
	Observer    Observer
	Logger      *slog.Logger
}

// Outcome summarises a collection run.
type Outcome struct {
	Images   []string
	Attempts int
	Rejected int
	Errors   []error
}

type attemptResult struct {
	clean    []string
	rejected int
	err      error
}

// Collect runs rounds of parallel generation calls. Each round launches one
// call per missing image, bounded by the remaining attempt budget, and waits
// for all of them to settle. Clean images are kept in launch order.
// A round with no images that saw imagegen.ErrNotConfigured ends the run with
// that error.
func (c *Collector) Collect(ctx context.Context, prompt string) (Outcome, error) {
	want := c.Want
	if want <= 0 {
		want = defaultWant
	}
	maxAttempts := c.MaxAttempts
	if maxAttempts < want {
		maxAttempts = want
	}
	concurrency := c.Concurrency
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	obs := c.Observer
	if obs == nil {
		obs = nopObserver{}
	}
	logger := c.Logger
	if logger == nil {
		logger = slog.Default()
	}
	name := c.Provider.Name()

	var out Outcome
	for len(out.Images) < want && out.Attempts < maxAttempts {
		if err := ctx.Err(); err != nil {
			out.Errors = append(out.Errors, err)
			break
		}

		n := min(want-len(out.Images), maxAttempts-out.Attempts)
		results := make([]attemptResult, n)

		g := new(errgroup.Group)
		g.SetLimit(concurrency)
		for i := range n {
			g.Go(func() error {
				results[i] = c.attempt(ctx, prompt)
				return nil
			})
		}
		g.Wait()
		out.Attempts += n

		var fatal error
		for _, r := range results {
			obs.AttemptFinished(name, r.err)
			if errors.Is(r.err, imagegen.ErrNotConfigured) {
				fatal = r.err
			}
			if r.err != nil {
				logger.Warn("image generation attempt failed", "provider", name, "error", r.err)
				out.Errors = append(out.Errors, r.err)
				continue
			}
			for range r.rejected {
				obs.ImageRejected(name)
			}
			out.Rejected += r.rejected
			for _, img := range r.clean {
				if len(out.Images) < want {
					out.Images = append(out.Images, img)
				}
			}
		}
		logger.Debug("generation round finished",
			"provider", name, "collected", len(out.Images), "attempts", out.Attempts, "rejected", out.Rejected)

		// Missing credentials fail every call the same way.
		if fatal != nil && len(out.Images) == 0 {
			return out, fatal
		}
	}

	if len(out.Images) == 0 {
		if len(out.Errors) > 0 {
			return out, fmt.Errorf("%w: %w", ErrNoImages, errors.Join(out.Errors...))
		}
		return out, ErrNoImages
	}
	return out, nil
}

func (c *Collector) attempt(ctx context.Context, prompt string) attemptResult {
	images, err := c.Provider.Generate(ctx, prompt)
	if err != nil {
		return attemptResult{err: err}
	}
	var r attemptResult
	for _, img := range images {
		if c.hasText(ctx, img) {
			r.rejected++
			continue
		}
		r.clean = append(r.clean, img)
	}
	return r
}

// hasText treats every OCR or fetch failure as "no text".
func (c *Collector) hasText(ctx context.Context, ref string) bool {
	if c.Detector == nil {
		return false
	}
	fetcher := c.Fetcher
	if fetcher == nil {
		fetcher = media.NewFetcher(nil)
	}
	blob, err := fetcher.Fetch(ctx, ref)
	if err != nil {
		return false
	}
	found, err := c.Detector.HasText(ctx, blob.Data)
	if err != nil {
		return false
	}
	return found
}
