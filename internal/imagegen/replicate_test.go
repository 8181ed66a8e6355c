package imagegen

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

// fakeReplicate serves the model lookup, prediction creation and polling
// endpoints. The prediction succeeds after pendingPolls polls.
type fakeReplicate struct {
	srv          *httptest.Server
	pendingPolls int32
	finalStatus  string
	output       string
	polls        atomic.Int32
	created      map[string]any
	auth         string
}

func newFakeReplicate(t *testing.T, pendingPolls int32, finalStatus, output string) *fakeReplicate {
	t.Helper()
	f := &fakeReplicate{pendingPolls: pendingPolls, finalStatus: finalStatus, output: output}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /models/acme/covers", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"latest_version":{"id":"v-latest"}}`)
	})
	mux.HandleFunc("GET /models/acme/empty", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"latest_version":null}`)
	})
	mux.HandleFunc("POST /predictions", func(w http.ResponseWriter, r *http.Request) {
		f.auth = r.Header.Get("Authorization")
		json.NewDecoder(r.Body).Decode(&f.created)
		w.WriteHeader(http.StatusCreated)
		fmt.Fprintf(w, `{"id":"p1","status":"starting","urls":{"get":%q}}`, f.srv.URL+"/predictions/p1")
	})
	mux.HandleFunc("GET /predictions/p1", func(w http.ResponseWriter, r *http.Request) {
		if f.polls.Add(1) <= f.pendingPolls {
			fmt.Fprint(w, `{"id":"p1","status":"processing"}`)
			return
		}
		fmt.Fprintf(w, `{"id":"p1","status":%q,"output":%s,"error":"NSFW content detected"}`, f.finalStatus, f.output)
	})
	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeReplicate) client(opts ReplicateOptions) *Replicate {
	opts.BaseURL = f.srv.URL
	if opts.APIToken == "" {
		opts.APIToken = "r8-test"
	}
	return NewReplicate(opts).WithPolling(5*time.Millisecond, 2*time.Second)
}

func TestReplicate_GenerateResolvesLatestVersion(t *testing.T) {
	f := newFakeReplicate(t, 2, "succeeded", `["https://replicate.delivery/a.png"]`)
	c := f.client(ReplicateOptions{Model: "acme/covers"})

	images, err := c.Generate(context.Background(), "a cover")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(images) != 1 || images[0] != "https://replicate.delivery/a.png" {
		t.Errorf("images = %v", images)
	}
	if f.polls.Load() != 3 {
		t.Errorf("polls = %d, want 3", f.polls.Load())
	}
	if f.auth != "Token r8-test" {
		t.Errorf("Authorization = %q", f.auth)
	}
	if f.created["version"] != "v-latest" {
		t.Errorf("version = %v", f.created["version"])
	}
	input := f.created["input"].(map[string]any)
	if input["prompt"] != "a cover" || input["width"] != float64(1024) || input["height"] != float64(1792) ||
		input["num_inference_steps"] != float64(28) || input["guidance_scale"] != 3.5 || input["num_outputs"] != float64(1) {
		t.Errorf("input = %v", input)
	}
	if !strings.Contains(input["negative_prompt"].(string), "typography") {
		t.Errorf("negative_prompt = %v", input["negative_prompt"])
	}
}

func TestReplicate_ExplicitVersion(t *testing.T) {
	f := newFakeReplicate(t, 0, "succeeded", `"https://replicate.delivery/b.png"`)
	c := f.client(ReplicateOptions{Version: "v-pinned", Model: "acme/covers"})

	if _, err := c.Generate(context.Background(), "p"); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if f.created["version"] != "v-pinned" {
		t.Errorf("version = %v", f.created["version"])
	}
}

func TestReplicate_Failed(t *testing.T) {
	f := newFakeReplicate(t, 0, "failed", `null`)
	_, err := f.client(ReplicateOptions{Version: "v"}).Generate(context.Background(), "p")
	if err == nil || !strings.Contains(err.Error(), "NSFW content detected") {
		t.Errorf("err = %v", err)
	}
}

func TestReplicate_Timeout(t *testing.T) {
	f := newFakeReplicate(t, 1000, "succeeded", `[]`)
	c := f.client(ReplicateOptions{Version: "v"}).WithPolling(5*time.Millisecond, 30*time.Millisecond)
	_, err := c.Generate(context.Background(), "p")
	if !errors.Is(err, ErrTimeout) {
		t.Errorf("err = %v, want ErrTimeout", err)
	}
}

func TestReplicate_NotConfigured(t *testing.T) {
	_, err := NewReplicate(ReplicateOptions{Version: "v"}).Generate(context.Background(), "p")
	if !errors.Is(err, ErrNotConfigured) {
		t.Errorf("missing token: %v", err)
	}
	_, err = NewReplicate(ReplicateOptions{APIToken: "t"}).Generate(context.Background(), "p")
	if !errors.Is(err, ErrNotConfigured) {
		t.Errorf("missing model and version: %v", err)
	}
}

func TestReplicate_NoLatestVersion(t *testing.T) {
	f := newFakeReplicate(t, 0, "succeeded", `[]`)
	_, err := f.client(ReplicateOptions{Model: "acme/empty"}).Generate(context.Background(), "p")
	if err == nil || !strings.Contains(err.Error(), "could not determine latest version") {
		t.Errorf("err = %v", err)
	}
}

func TestReplicate_Mockup(t *testing.T) {
	f := newFakeReplicate(t, 0, "succeeded", `{"images":["https://replicate.delivery/mock.png"]}`)
	c := f.client(ReplicateOptions{Version: "v-covers", MockupModel: "acme/covers"})

	url, err := c.Mockup(context.Background(), "https://cdn.example/cover.png", "desk")
	if err != nil {
		t.Fatalf("Mockup: %v", err)
	}
	if url != "https://replicate.delivery/mock.png" {
		t.Errorf("url = %q", url)
	}
	if f.created["version"] != "v-latest" {
		t.Errorf("mockup should resolve its own model version, got %v", f.created["version"])
	}
	input := f.created["input"].(map[string]any)
	if input["width"] != float64(1536) || input["height"] != float64(1024) || input["strength"] != 0.2 ||
		input["control_image"] != "https://cdn.example/cover.png" || input["guidance_scale"] != 3.0 {
		t.Errorf("input = %v", input)
	}
	if !strings.Contains(input["prompt"].(string), "wooden desk") {
		t.Errorf("prompt = %v", input["prompt"])
	}
}

func TestReplicate_MockupNotConfigured(t *testing.T) {
	_, err := NewReplicate(ReplicateOptions{APIToken: "t", Version: "v"}).Mockup(context.Background(), "u", "")
	if !errors.Is(err, ErrMockupNotConfigured) {
		t.Errorf("err = %v", err)
	}
}

func TestExtractImages(t *testing.T) {
	b64 := strings.Repeat("QUJD", 300)
	tests := []struct {
		name string
		raw  string
		want []string
	}{
		{"string", `" https://x/a.png "`, []string{"https://x/a.png"}},
		{"array", `["https://x/a.png","HTTP://x/b.png","not-a-url"]`, []string{"https://x/a.png", "HTTP://x/b.png"}},
		{"object keys first", `{"z":"https://x/z.png","url":"https://x/u.png","a":"https://x/a.png"}`,
			[]string{"https://x/u.png", "https://x/a.png", "https://x/z.png"}},
		{"dedup", `[{"image":"https://x/i.png"},"https://x/i.png"]`, []string{"https://x/i.png"}},
		{"data url", `["data:image/webp;base64,AAAA"]`, []string{"data:image/webp;base64,AAAA"}},
		{"raw base64", `"` + b64 + `"`, []string{"data:image/png;base64," + b64}},
		{"null", `null`, nil},
		{"empty", ``, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractImages(json.RawMessage(tt.raw))
			if fmt.Sprint(got) != fmt.Sprint(tt.want) {
				t.Errorf("ExtractImages = %v, want %v", got, tt.want)
			}
		})
	}
}
