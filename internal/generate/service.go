package generate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mamette/mamette/internal/imagegen"
	"github.com/mamette/mamette/internal/media"
	"github.com/mamette/mamette/internal/ocr"
	"github.com/mamette/mamette/internal/prompt"
	"github.com/mamette/mamette/internal/storage"
)

// JobType is the queue job type for asynchronous generations.
const JobType = "generate_covers"

// JobPayload is the JSON payload of a JobType job.
type JobPayload struct {
	GenerationID string `json:"generation_id"`
}

// Store is the persistence the service needs.
type Store interface {
	CreateProject(ctx context.Context, p storage.Project) (storage.Project, error)
	ProjectExists(ctx context.Context, id string) (bool, error)
	SetProjectPrompt(ctx context.Context, id, prompt string) error
	CreateGeneration(ctx context.Context, g storage.Generation) (storage.Generation, error)
	GetGeneration(ctx context.Context, id string) (storage.Generation, error)
	FinishGeneration(ctx context.Context, id string, r storage.GenerationResult) error
	EnqueueJob(ctx context.Context, job storage.Job) error
}

// Uploader copies generated images to durable storage and returns their URL.
type Uploader interface {
	Upload(ctx context.Context, name string, data []byte, contentType string) (string, error)
}

// Options tune the service.
type Options struct {
	DefaultProvider string
	Variations      int
	MaxAttempts     int
	Concurrency     int
	// DefaultUserID owns projects created without a user.
	DefaultUserID string
}

// Service creates generation records and fills them with images.
type Service struct {
	store     Store
	providers map[string]imagegen.Provider
	opts      Options
	detector  ocr.Detector
	fetcher   *media.Fetcher
	uploader  Uploader
	observer  Observer
	logger    *slog.Logger
}

// NewService wires a service. The first provider is the default unless
// opts.DefaultProvider names another.
func NewService(store Store, providers []imagegen.Provider, opts Options) *Service {
	s := &Service{
		store:     store,
		providers: make(map[string]imagegen.Provider, len(providers)),
		opts:      opts,
		fetcher:   media.NewFetcher(nil),
		observer:  nopObserver{},
		logger:    slog.Default(),
	}
	for _, p := range providers {
		s.providers[p.Name()] = p
		if s.opts.DefaultProvider == "" {
			s.opts.DefaultProvider = p.Name()
		}
	}
	return s
}

// WithDetector enables the lettering check on every generated image.
func (s *Service) WithDetector(d ocr.Detector) *Service {
	s.detector = d
	return s
}

// WithUploader copies every collected image to u.
func (s *Service) WithUploader(u Uploader) *Service {
	s.uploader = u
	return s
}

func (s *Service) WithFetcher(f *media.Fetcher) *Service {
	s.fetcher = f
	return s
}

func (s *Service) WithObserver(o Observer) *Service {
	s.observer = o
	return s
}

func (s *Service) WithLogger(l *slog.Logger) *Service {
	s.logger = l
	return s
}

// Request starts a generation. ProjectID may be empty; Provider defaults to
// the service default.
type Request struct {
	ProjectID string
	Prompt    string
	Provider  string
}

// Result is a finished generation.
type Result struct {
	Generation storage.Generation
	Outcome    Outcome
}

func (s *Service) provider(name string) (imagegen.Provider, error) {
	if name == "" {
		name = s.opts.DefaultProvider
	}
	p, ok := s.providers[name]
	if !ok {
		return nil, fmt.Errorf("%w: unknown provider %q", imagegen.ErrNotConfigured, name)
	}
	return p, nil
}

// Start validates req and records a generation in the generating state.
// An unknown ProjectID yields storage.ErrNotFound.
func (s *Service) Start(ctx context.Context, req Request) (storage.Generation, error) {
	p, err := s.provider(req.Provider)
	if err != nil {
		return storage.Generation{}, err
	}
	if req.ProjectID != "" {
		ok, err := s.store.ProjectExists(ctx, req.ProjectID)
		if err != nil {
			return storage.Generation{}, fmt.Errorf("checking project: %w", err)
		}
		if !ok {
			return storage.Generation{}, storage.ErrNotFound
		}
	}
	g, err := s.store.CreateGeneration(ctx, storage.Generation{
		ProjectID: req.ProjectID,
		Provider:  p.Name(),
		Prompt:    req.Prompt,
		Directive: prompt.SystemDirective,
		Status:    storage.StatusGenerating,
	})
	if err != nil {
		return storage.Generation{}, fmt.Errorf("creating generation record: %w", err)
	}
	return g, nil
}

// Run collects images for a started generation and stores the outcome.
// A run without images marks the generation failed and returns ErrNoImages.
func (s *Service) Run(ctx context.Context, id string) (Result, error) {
	g, err := s.store.GetGeneration(ctx, id)
	if err != nil {
		return Result{}, err
	}
	p, err := s.provider(g.Provider)
	if err != nil {
		return Result{Generation: g}, s.fail(ctx, g, Outcome{}, err)
	}

	c := &Collector{
		Provider:    p,
		Detector:    s.detector,
		Fetcher:     s.fetcher,
		Want:        s.opts.Variations,
		MaxAttempts: s.opts.MaxAttempts,
		Concurrency: s.opts.Concurrency,
		Observer:    s.observer,
		Logger:      s.logger,
	}
	start := time.Now()
	out, err := c.Collect(ctx, g.Prompt)
	if err != nil {
		return Result{Generation: g, Outcome: out}, s.fail(ctx, g, out, err)
	}

	images := s.persist(ctx, g.ProjectID, out.Images)

	// A cancelled request must not leave the record in the generating state.
	saveCtx := context.WithoutCancel(ctx)
	res := storage.GenerationResult{
		Status:   storage.StatusCompleted,
		Images:   images,
		Attempts: out.Attempts,
		Rejected: out.Rejected,
	}
	if err := s.store.FinishGeneration(saveCtx, g.ID, res); err != nil {
		return Result{Generation: g, Outcome: out}, fmt.Errorf("saving generation: %w", err)
	}
	if g.ProjectID != "" {
		if err := s.store.SetProjectPrompt(saveCtx, g.ProjectID, g.Prompt); err != nil {
			s.logger.Warn("failed to record prompt on project", "project_id", g.ProjectID, "error", err)
		}
	}
	s.observer.GenerationFinished(p.Name(), storage.StatusCompleted)
	s.logger.Info("generation completed",
		"generation_id", g.ID, "provider", p.Name(), "images", len(images),
		"attempts", out.Attempts, "rejected", out.Rejected, "duration_ms", time.Since(start).Milliseconds())

	g.Status = res.Status
	g.Images = res.Images
	g.Attempts = res.Attempts
	g.Rejected = res.Rejected
	return Result{Generation: g, Outcome: out}, nil
}

func (s *Service) fail(ctx context.Context, g storage.Generation, out Outcome, cause error) error {
	saveCtx := context.WithoutCancel(ctx)
	err := s.store.FinishGeneration(saveCtx, g.ID, storage.GenerationResult{
		Status:    storage.StatusFailed,
		Attempts:  out.Attempts,
		Rejected:  out.Rejected,
		LastError: cause.Error(),
	})
	if err != nil {
		s.logger.Error("failed to mark generation failed", "generation_id", g.ID, "error", err)
	}
	s.observer.GenerationFinished(g.Provider, storage.StatusFailed)
	s.logger.Error("generation failed", "generation_id", g.ID, "provider", g.Provider, "error", cause)
	return cause
}

// persist copies images to the bucket. Images that cannot be copied keep
// their provider URL.
func (s *Service) persist(ctx context.Context, projectID string, images []string) []string {
	if s.uploader == nil {
		return images
	}
	folder := projectID
	if folder == "" {
		folder = "unassigned"
	}
	out := make([]string, len(images))
	for i, img := range images {
		out[i] = img
		blob, err := s.fetcher.Fetch(ctx, img)
		if err != nil {
			s.logger.Warn("failed to fetch image for upload", "error", err)
			continue
		}
		name := fmt.Sprintf("%s/%d-%s.%s", folder, time.Now().UnixMilli(),
			strings.ReplaceAll(uuid.NewString(), "-", "")[:6], media.Extension(blob.ContentType))
		url, err := s.uploader.Upload(ctx, name, blob.Data, blob.ContentType)
		if err != nil {
			s.logger.Warn("failed to upload image", "name", name, "error", err)
			continue
		}
		out[i] = url
	}
	return out
}

// Generate starts and runs a generation synchronously.
func (s *Service) Generate(ctx context.Context, req Request) (Result, error) {
	g, err := s.Start(ctx, req)
	if err != nil {
		return Result{}, err
	}
	return s.Run(ctx, g.ID)
}

// Enqueue starts a generation and queues it for the background worker.
func (s *Service) Enqueue(ctx context.Context, req Request) (storage.Generation, error) {
	g, err := s.Start(ctx, req)
	if err != nil {
		return storage.Generation{}, err
	}
	payload, err := json.Marshal(JobPayload{GenerationID: g.ID})
	if err != nil {
		return storage.Generation{}, err
	}
	if err := s.store.EnqueueJob(ctx, storage.Job{Type: JobType, PayloadJSON: string(payload)}); err != nil {
		return storage.Generation{}, fmt.Errorf("enqueueing generation: %w", err)
	}
	return g, nil
}

// CoverRequest describes a book to generate covers for.
type CoverRequest struct {
	ProjectID string
	Genre     string
	Vibe      string
	Color     string
	Provider  string
}

// Cover builds the cover prompt for req and generates synchronously.
func (s *Service) Cover(ctx context.Context, req CoverRequest) (Result, error) {
	return s.Generate(ctx, req.request())
}

// EnqueueCover builds the cover prompt for req and queues the generation.
func (s *Service) EnqueueCover(ctx context.Context, req CoverRequest) (storage.Generation, error) {
	return s.Enqueue(ctx, req.request())
}

func (r CoverRequest) request() Request {
	return Request{
		ProjectID: r.ProjectID,
		Prompt:    prompt.Cover(r.Genre, r.Vibe, r.Color),
		Provider:  r.Provider,
	}
}

// QuickResult is the outcome of a quick generation.
type QuickResult struct {
	Project storage.Project
	Result
}

// ErrTextTooShort is returned by Quick for text under ten characters.
var ErrTextTooShort = errors.New("please provide some text")

// Quick creates a poetry project from free text and generates covers for it.
// The project is kept even when generation fails.
func (s *Service) Quick(ctx context.Context, userID, text string) (QuickResult, error) {
	if len([]rune(strings.TrimSpace(text))) < 10 {
		return QuickResult{}, ErrTextTooShort
	}
	if userID == "" {
		userID = s.opts.DefaultUserID
	}
	inferred := prompt.Infer(text)
	project, err := s.store.CreateProject(ctx, storage.Project{
		UserID: userID,
		Title:  inferred.Title,
		Author: inferred.Author,
		Genre:  "poetry",
		Vibe:   inferred.Vibe,
	})
	if err != nil {
		return QuickResult{}, fmt.Errorf("creating project: %w", err)
	}

	lang := prompt.DetectLanguage(text)
	res, err := s.Generate(ctx, Request{
		ProjectID: project.ID,
		Prompt:    prompt.Quick(inferred.Title, inferred.Vibe, "", lang),
	})
	return QuickResult{Project: project, Result: res}, err
}
