package generate

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/mamette/mamette/internal/imagegen"
	"github.com/mamette/mamette/internal/prompt"
	"github.com/mamette/mamette/internal/storage"
)

func openTestStore(t *testing.T) *storage.Store {
	t.Helper()
	s, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("storage.Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

type fakeUploader struct {
	mu    sync.Mutex
	names []string
	fail  bool
}

func (u *fakeUploader) Upload(_ context.Context, name string, data []byte, contentType string) (string, error) {
	if u.fail {
		return "", errors.New("bucket unavailable")
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	u.names = append(u.names, name)
	return "https://cdn.example.com/" + name, nil
}

func newTestService(t *testing.T, p imagegen.Provider) (*Service, *storage.Store) {
	t.Helper()
	st := openTestStore(t)
	svc := NewService(st, []imagegen.Provider{p}, Options{
		Variations:    2,
		MaxAttempts:   4,
		Concurrency:   1,
		DefaultUserID: "default-user",
	})
	return svc, st
}

func TestGenerate_CompletesAndRecordsPrompt(t *testing.T) {
	svc, st := newTestService(t, &fakeProvider{})
	ctx := context.Background()

	project, err := st.CreateProject(ctx, storage.Project{UserID: "u1", Title: "Tides", Genre: "fiction"})
	if err != nil {
		t.Fatal(err)
	}

	res, err := svc.Generate(ctx, Request{ProjectID: project.ID, Prompt: "a quiet harbour"})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if res.Generation.Status != storage.StatusCompleted || len(res.Generation.Images) != 2 {
		t.Errorf("unexpected generation: %+v", res.Generation)
	}

	saved, err := st.GetGeneration(ctx, res.Generation.ID)
	if err != nil {
		t.Fatalf("GetGeneration: %v", err)
	}
	if saved.Status != storage.StatusCompleted || saved.Attempts != 2 || len(saved.Images) != 2 {
		t.Errorf("saved generation = %+v", saved)
	}
	if saved.Provider != "fake" {
		t.Errorf("provider = %q, want fake", saved.Provider)
	}
	if saved.Directive != prompt.SystemDirective {
		t.Errorf("directive = %q", saved.Directive)
	}

	got, err := st.GetProject(ctx, project.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Prompt != "a quiet harbour" {
		t.Errorf("project prompt = %q", got.Prompt)
	}
}

func TestGenerate_WithoutProject(t *testing.T) {
	svc, _ := newTestService(t, &fakeProvider{})

	res, err := svc.Generate(context.Background(), Request{Prompt: "loose prompt"})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if res.Generation.ProjectID != "" {
		t.Errorf("ProjectID = %q, want empty", res.Generation.ProjectID)
	}
}

func TestStart_UnknownProject(t *testing.T) {
	svc, _ := newTestService(t, &fakeProvider{})

	_, err := svc.Start(context.Background(), Request{ProjectID: "missing", Prompt: "x"})
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestStart_UnknownProvider(t *testing.T) {
	svc, _ := newTestService(t, &fakeProvider{})

	_, err := svc.Start(context.Background(), Request{Prompt: "x", Provider: "midjourney"})
	if !errors.Is(err, imagegen.ErrNotConfigured) {
		t.Errorf("err = %v, want ErrNotConfigured", err)
	}
}

func TestGenerate_FailureMarksGenerationFailed(t *testing.T) {
	fail := map[int]bool{1: true, 2: true, 3: true, 4: true}
	svc, st := newTestService(t, &fakeProvider{fail: fail})
	obs := &countingObserver{}
	svc.WithObserver(obs)
	ctx := context.Background()

	res, err := svc.Generate(ctx, Request{Prompt: "doomed"})
	if !errors.Is(err, ErrNoImages) {
		t.Fatalf("err = %v, want ErrNoImages", err)
	}

	saved, err := st.GetGeneration(ctx, res.Generation.ID)
	if err != nil {
		t.Fatal(err)
	}
	if saved.Status != storage.StatusFailed {
		t.Errorf("status = %q, want failed", saved.Status)
	}
	if saved.Attempts != 4 || !strings.Contains(saved.LastError, "failed to generate any images") {
		t.Errorf("saved = %+v", saved)
	}
	if len(obs.finished) != 1 || obs.finished[0] != storage.StatusFailed {
		t.Errorf("observer finished = %v", obs.finished)
	}
}

func TestGenerate_UploadsToBucket(t *testing.T) {
	svc, st := newTestService(t, &fakeProvider{})
	up := &fakeUploader{}
	svc.WithUploader(up)
	ctx := context.Background()

	project, _ := st.CreateProject(ctx, storage.Project{UserID: "u1", Title: "Tides", Genre: "fiction"})
	res, err := svc.Generate(ctx, Request{ProjectID: project.ID, Prompt: "harbour"})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	if len(up.names) != 2 {
		t.Fatalf("uploads = %v", up.names)
	}
	for i, name := range up.names {
		if !strings.HasPrefix(name, project.ID+"/") || !strings.HasSuffix(name, ".png") {
			t.Errorf("object name %q", name)
		}
		if res.Generation.Images[i] != "https://cdn.example.com/"+name {
			t.Errorf("image %d = %q", i, res.Generation.Images[i])
		}
	}
}

func TestGenerate_UploadFailureKeepsProviderURL(t *testing.T) {
	svc, _ := newTestService(t, &fakeProvider{})
	svc.WithUploader(&fakeUploader{fail: true})

	res, err := svc.Generate(context.Background(), Request{Prompt: "harbour"})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	for _, img := range res.Generation.Images {
		if !strings.HasPrefix(img, "data:image/png;base64,") {
			t.Errorf("image = %q, want the original data URL", img)
		}
	}
}

func TestEnqueue_QueuesJob(t *testing.T) {
	svc, st := newTestService(t, &fakeProvider{})
	ctx := context.Background()

	g, err := svc.Enqueue(ctx, Request{Prompt: "later"})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if g.Status != storage.StatusGenerating {
		t.Errorf("status = %q", g.Status)
	}

	job, err := st.ClaimNextJob(ctx, []string{JobType})
	if err != nil {
		t.Fatalf("ClaimNextJob: %v", err)
	}
	if job == nil {
		t.Fatal("expected a queued job")
	}
	var payload JobPayload
	if err := json.Unmarshal([]byte(job.PayloadJSON), &payload); err != nil {
		t.Fatal(err)
	}
	if payload.GenerationID != g.ID {
		t.Errorf("payload generation = %q, want %q", payload.GenerationID, g.ID)
	}

	res, err := svc.Run(ctx, payload.GenerationID)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Generation.Status != storage.StatusCompleted {
		t.Errorf("status after run = %q", res.Generation.Status)
	}
}

func TestCover_BuildsGenrePrompt(t *testing.T) {
	svc, _ := newTestService(t, &fakeProvider{})

	res, err := svc.Cover(context.Background(), CoverRequest{Genre: "sci-fi", Vibe: "neon rain", Color: "cool"})
	if err != nil {
		t.Fatalf("Cover: %v", err)
	}
	if !strings.Contains(res.Generation.Prompt, "neon rain") {
		t.Errorf("prompt = %q", res.Generation.Prompt)
	}
}

func TestQuick_TextTooShort(t *testing.T) {
	svc, _ := newTestService(t, &fakeProvider{})

	if _, err := svc.Quick(context.Background(), "", "  short  "); !errors.Is(err, ErrTextTooShort) {
		t.Errorf("err = %v, want ErrTextTooShort", err)
	}
}

func TestQuick_CreatesPoetryProject(t *testing.T) {
	svc, st := newTestService(t, &fakeProvider{})
	ctx := context.Background()

	text := "Salt Hymns\nby Maren Ode\n\nthe sea keeps its counsel\nwhere the gulls forget their names"
	res, err := svc.Quick(ctx, "", text)
	if err != nil {
		t.Fatalf("Quick: %v", err)
	}
	if res.Project.Genre != "poetry" || res.Project.UserID != "default-user" {
		t.Errorf("project = %+v", res.Project)
	}
	if res.Generation.ProjectID != res.Project.ID || len(res.Generation.Images) != 2 {
		t.Errorf("generation = %+v", res.Generation)
	}

	got, err := st.GetProject(ctx, res.Project.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Generations) != 1 {
		t.Errorf("generations = %d, want 1", len(got.Generations))
	}
}

func TestQuick_KeepsProjectWhenGenerationFails(t *testing.T) {
	fail := map[int]bool{1: true, 2: true, 3: true, 4: true}
	svc, st := newTestService(t, &fakeProvider{fail: fail})
	ctx := context.Background()

	res, err := svc.Quick(ctx, "u1", "a long enough manuscript about nothing in particular")
	if !errors.Is(err, ErrNoImages) {
		t.Fatalf("err = %v, want ErrNoImages", err)
	}
	if _, err := st.GetProject(ctx, res.Project.ID); err != nil {
		t.Errorf("project should persist: %v", err)
	}
}
