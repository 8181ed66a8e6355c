package imagegen

import (
	"bytes"
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/mamette/mamette/internal/media"
	"github.com/mamette/mamette/internal/prompt"
)

const (
	defaultReplicateBaseURL = "https://api.replicate.com/v1"
	defaultPollInterval     = 1500 * time.Millisecond
	defaultPredictTimeout   = 180 * time.Second
	replicateRequestTimeout = 30 * time.Second

	defaultNegativePrompt = "text, letters, words, characters, typography, captions, logos, watermarks, glyphs, scripts, symbols, UI"
)

// ErrTimeout is returned when a prediction does not finish in time.
var ErrTimeout = errors.New("replicate generation timed out")

// ReplicateOptions configures the Replicate predictions client.
type ReplicateOptions struct {
	APIToken string
	BaseURL  string
	// Model is an "owner/name" slug used to resolve the latest version when
	// Version is empty.
	Model         string
	Version       string
	MockupModel   string
	MockupVersion string
}

// Replicate runs predictions on Replicate models.
type Replicate struct {
	opts         ReplicateOptions
	httpClient   *http.Client
	pollInterval time.Duration
	timeout      time.Duration
}

// NewReplicate creates a Replicate client.
func NewReplicate(opts ReplicateOptions) *Replicate {
	if opts.BaseURL == "" {
		opts.BaseURL = defaultReplicateBaseURL
	}
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	return &Replicate{
		opts:         opts,
		httpClient:   &http.Client{Timeout: replicateRequestTimeout},
		pollInterval: defaultPollInterval,
		timeout:      defaultPredictTimeout,
	}
}

// WithPolling overrides the poll interval and overall prediction timeout.
func (c *Replicate) WithPolling(interval, timeout time.Duration) *Replicate {
	c.pollInterval = interval
	c.timeout = timeout
	return c
}

func (c *Replicate) Name() string { return ProviderReplicate }

// Prediction describes one text-to-image run. Zero values take the cover
// defaults; Extra inputs are merged last and win over everything else.
type Prediction struct {
	Prompt         string
	NegativePrompt string
	Width          int
	Height         int
	Steps          int
	Guidance       float64
	Model          string
	Version        string
	Extra          map[string]any
}

func (p Prediction) input() map[string]any {
	in := map[string]any{
		"prompt":              p.Prompt,
		"negative_prompt":     cmp.Or(p.NegativePrompt, defaultNegativePrompt),
		"width":               cmp.Or(p.Width, 1024),
		"height":              cmp.Or(p.Height, 1792),
		"num_outputs":         1,
		"num_inference_steps": cmp.Or(p.Steps, 28),
		"guidance_scale":      cmp.Or(p.Guidance, 3.5),
	}
	maps.Copy(in, p.Extra)
	return in
}

// Generate runs the configured model on prompt with the cover defaults.
func (c *Replicate) Generate(ctx context.Context, text string) ([]string, error) {
	return c.Predict(ctx, Prediction{Prompt: text})
}

// MockupConfigured reports whether a mockup model is set.
func (c *Replicate) MockupConfigured() bool {
	return c.opts.MockupModel != ""
}

// ErrMockupNotConfigured is returned by Mockup without a mockup model.
var ErrMockupNotConfigured = errors.New("AI mockup model not configured. Set replicate.mockup_model (REPLICATE_MOCKUP_MODEL) and optionally replicate.mockup_version (REPLICATE_MOCKUP_VERSION)")

// Mockup renders a photoreal scene of a book wearing the cover at imageURL.
// It returns the first output image.
func (c *Replicate) Mockup(ctx context.Context, imageURL, style string) (string, error) {
	if !c.MockupConfigured() {
		return "", ErrMockupNotConfigured
	}
	outputs, err := c.Predict(ctx, Prediction{
		Prompt:         prompt.Mockup(style),
		NegativePrompt: prompt.MockupNegative,
		Width:          1536,
		Height:         1024,
		Guidance:       3.0,
		Steps:          26,
		Model:          c.opts.MockupModel,
		Version:        c.opts.MockupVersion,
		Extra: map[string]any{
			"image":              imageURL,
			"image_url":          imageURL,
			"image_prompt":       imageURL,
			"input_image":        imageURL,
			"ip_adapter_image":   imageURL,
			"control_image":      imageURL,
			"strength":           0.2,
			"conditioning_scale": 0.95,
		},
	})
	if err != nil {
		return "", err
	}
	if len(outputs) == 0 {
		return "", nil
	}
	return outputs[0], nil
}

type predictionResponse struct {
	ID     string          `json:"id"`
	Status string          `json:"status"`
	Output json.RawMessage `json:"output"`
	Error  any             `json:"error"`
	URLs   struct {
		Get string `json:"get"`
	} `json:"urls"`
}

// Predict creates a prediction and polls it until it settles.
func (c *Replicate) Predict(ctx context.Context, p Prediction) ([]string, error) {
	if c.opts.APIToken == "" {
		return nil, fmt.Errorf("%w: missing Replicate API token", ErrNotConfigured)
	}

	model, version := p.Model, p.Version
	if model == "" && version == "" {
		model, version = c.opts.Model, c.opts.Version
	}
	if version == "" {
		if model == "" {
			return nil, fmt.Errorf("%w: set replicate.version or replicate.model", ErrNotConfigured)
		}
		v, err := c.LatestVersion(ctx, model)
		if err != nil {
			return nil, err
		}
		version = v
	}

	body, err := json.Marshal(map[string]any{"version": version, "input": p.input()})
	if err != nil {
		return nil, fmt.Errorf("marshaling prediction: %w", err)
	}

	var created predictionResponse
	if err := c.do(ctx, http.MethodPost, c.opts.BaseURL+"/predictions", body, &created); err != nil {
		return nil, fmt.Errorf("replicate create failed: %w", err)
	}
	if created.URLs.Get == "" {
		return nil, errors.New("replicate create: missing prediction URL")
	}

	deadline := time.NewTimer(c.timeout)
	defer deadline.Stop()
	for {
		var pred predictionResponse
		if err := c.do(ctx, http.MethodGet, created.URLs.Get, nil, &pred); err != nil {
			return nil, fmt.Errorf("replicate poll failed: %w", err)
		}
		switch pred.Status {
		case "succeeded":
			return ExtractImages(pred.Output), nil
		case "failed", "canceled":
			msg := pred.Status
			if pred.Error != nil {
				msg = fmt.Sprint(pred.Error)
			}
			return nil, fmt.Errorf("replicate status: %s", msg)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-deadline.C:
			return nil, ErrTimeout
		case <-time.After(c.pollInterval):
		}
	}
}

// LatestVersion resolves the latest version ID of an "owner/name" model.
func (c *Replicate) LatestVersion(ctx context.Context, model string) (string, error) {
	var out struct {
		LatestVersion *struct {
			ID string `json:"id"`
		} `json:"latest_version"`
	}
	if err := c.do(ctx, http.MethodGet, c.opts.BaseURL+"/models/"+model, nil, &out); err != nil {
		return "", fmt.Errorf("replicate model lookup failed: %w", err)
	}
	if out.LatestVersion == nil || out.LatestVersion.ID == "" {
		return "", fmt.Errorf("replicate: could not determine latest version for model %s", model)
	}
	return out.LatestVersion.ID, nil
}

func (c *Replicate) do(ctx context.Context, method, url string, body []byte, out any) error {
	var rdr io.Reader
	if body != nil {
		rdr = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, rdr)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Token "+c.opts.APIToken)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// ExtractImages collects image references from a prediction output of any
// shape: strings, arrays, or objects (url, image and data keys first, then
// the rest in key order). Duplicates are dropped.
func ExtractImages(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}
	var node any
	if err := json.Unmarshal(raw, &node); err != nil {
		return nil
	}

	var out []string
	seen := make(map[string]bool)
	add := func(s string) {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}

	var visit func(n any)
	visit = func(n any) {
		switch v := n.(type) {
		case string:
			s := strings.TrimSpace(v)
			switch {
			case media.IsDataURL(s):
				add(s)
			case hasHTTPScheme(s):
				add(s)
			case media.IsRawBase64(s):
				add("data:image/png;base64," + s)
			}
		case []any:
			for _, item := range v {
				visit(item)
			}
		case map[string]any:
			for _, k := range []string{"url", "image", "data"} {
				if s, ok := v[k].(string); ok {
					visit(s)
				}
			}
			for _, k := range slices.Sorted(maps.Keys(v)) {
				visit(v[k])
			}
		}
	}
	visit(node)
	return out
}

func hasHTTPScheme(s string) bool {
	l := strings.ToLower(s)
	return strings.HasPrefix(l, "http://") || strings.HasPrefix(l, "https://")
}

var _ Provider = (*Replicate)(nil)
