package api

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/mamette/mamette/internal/generate"
	"github.com/mamette/mamette/internal/storage"
)

// --- mocks ---

// mockGenerator records requests and persists generations so handlers can
// read them back from the store.
type mockGenerator struct {
	store *storage.Store

	mu     sync.Mutex
	covers []generate.CoverRequest
	queued []generate.CoverRequest
	images []string
	err    error
}

func (m *mockGenerator) Cover(ctx context.Context, req generate.CoverRequest) (generate.Result, error) {
	m.mu.Lock()
	m.covers = append(m.covers, req)
	m.mu.Unlock()
	if m.err != nil {
		return generate.Result{}, m.err
	}
	g, err := m.store.CreateGeneration(ctx, storage.Generation{ProjectID: req.ProjectID, Provider: "fake", Prompt: req.Genre})
	if err != nil {
		return generate.Result{}, err
	}
	g.Status = storage.StatusCompleted
	g.Images = m.images
	g.Attempts = len(m.images)
	return generate.Result{Generation: g}, nil
}

func (m *mockGenerator) EnqueueCover(ctx context.Context, req generate.CoverRequest) (storage.Generation, error) {
	m.mu.Lock()
	m.queued = append(m.queued, req)
	m.mu.Unlock()
	if m.err != nil {
		return storage.Generation{}, m.err
	}
	return m.store.CreateGeneration(ctx, storage.Generation{ProjectID: req.ProjectID, Provider: "fake", Status: storage.StatusGenerating})
}

func (m *mockGenerator) Quick(ctx context.Context, userID, text string) (generate.QuickResult, error) {
	if len(strings.TrimSpace(text)) < 10 {
		return generate.QuickResult{}, generate.ErrTextTooShort
	}
	p, err := m.store.CreateProject(ctx, storage.Project{UserID: userID, Title: "Quick", Author: "Unknown", Genre: "poetry"})
	if err != nil {
		return generate.QuickResult{}, err
	}
	res := generate.QuickResult{Project: p}
	if m.err != nil {
		return res, m.err
	}
	res.Generation = storage.Generation{ID: "gen-quick", ProjectID: p.ID, Status: storage.StatusCompleted, Images: m.images}
	return res, nil
}

// --- helpers ---

func newTestMCPDeps(t *testing.T) (MCPDeps, *storage.Store, *mockGenerator) {
	t.Helper()
	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	gen := &mockGenerator{store: store, images: []string{"https://img.example.com/1.png", "https://img.example.com/2.png"}}
	return MCPDeps{
		Store:         store,
		Generator:     gen,
		DefaultUserID: "default-user",
	}, store, gen
}

func toolText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if len(result.Content) == 0 {
		t.Fatal("no content in result")
	}
	tc, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("expected TextContent, got %T", result.Content[0])
	}
	return tc.Text
}

func makeCallToolRequest(name string, args map[string]interface{}) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

func makeReadResourceRequest(uri string) mcp.ReadResourceRequest {
	return mcp.ReadResourceRequest{
		Params: mcp.ReadResourceParams{
			URI: uri,
		},
	}
}

func seedProject(t *testing.T, store *storage.Store, userID string) storage.Project {
	t.Helper()
	p, err := store.CreateProject(context.Background(), storage.Project{
		UserID: userID, Title: "Salt Roads", Author: "A. Reyes", Genre: "fiction", Vibe: "sea voyage", Color: "cool",
	})
	if err != nil {
		t.Fatalf("CreateProject: %v", err)
	}
	return p
}

// --- tests ---

func TestMCPTool_CreateProject(t *testing.T) {
	deps, store, _ := newTestMCPDeps(t)
	handler := mcpCreateProject(deps)

	req := makeCallToolRequest("create_project", map[string]interface{}{
		"title":  "Night Orchard",
		"author": "M. Lune",
		"genre":  "poetry",
		"vibe":   "moonlit, quiet",
	})
	result, err := handler(context.Background(), req)
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error: %s", toolText(t, result))
	}

	var p storage.Project
	if err := json.Unmarshal([]byte(toolText(t, result)), &p); err != nil {
		t.Fatalf("decoding result: %v", err)
	}
	if p.ID == "" || p.UserID != "default-user" {
		t.Errorf("project = %+v", p)
	}

	stored, err := store.GetProject(context.Background(), p.ID)
	if err != nil {
		t.Fatalf("GetProject: %v", err)
	}
	if stored.Title != "Night Orchard" || stored.Vibe != "moonlit, quiet" {
		t.Errorf("stored project = %+v", stored)
	}
}

func TestMCPTool_CreateProject_MissingFields(t *testing.T) {
	deps, _, _ := newTestMCPDeps(t)
	handler := mcpCreateProject(deps)

	result, err := handler(context.Background(), makeCallToolRequest("create_project", map[string]interface{}{
		"title": "No Author",
	}))
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected error result")
	}
	if got := toolText(t, result); got != "Title, author, and genre are required" {
		t.Errorf("text = %q", got)
	}
}

func TestMCPTool_ListProjects(t *testing.T) {
	deps, store, _ := newTestMCPDeps(t)
	seedProject(t, store, "default-user")
	seedProject(t, store, "default-user")
	seedProject(t, store, "someone-else")

	result, err := mcpListProjects(deps)(context.Background(), makeCallToolRequest("list_projects", nil))
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error: %s", toolText(t, result))
	}

	var got []projectSummary
	if err := json.Unmarshal([]byte(toolText(t, result)), &got); err != nil {
		t.Fatalf("decoding result: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d projects, want 2", len(got))
	}
}

func TestMCPTool_ListProjects_Empty(t *testing.T) {
	deps, _, _ := newTestMCPDeps(t)

	result, err := mcpListProjects(deps)(context.Background(), makeCallToolRequest("list_projects", map[string]interface{}{
		"user_id": "nobody",
	}))
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if got := toolText(t, result); got != "[]" {
		t.Errorf("text = %q, want []", got)
	}
}

func TestMCPTool_GetProject_NotFound(t *testing.T) {
	deps, _, _ := newTestMCPDeps(t)

	result, err := mcpGetProject(deps)(context.Background(), makeCallToolRequest("get_project", map[string]interface{}{
		"project_id": "missing",
	}))
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if !result.IsError || !strings.Contains(toolText(t, result), "not found") {
		t.Errorf("result = %+v", result)
	}
}

func TestMCPTool_GenerateCovers_UsesProjectDefaults(t *testing.T) {
	deps, store, gen := newTestMCPDeps(t)
	p := seedProject(t, store, "default-user")

	result, err := mcpGenerateCovers(deps)(context.Background(), makeCallToolRequest("generate_covers", map[string]interface{}{
		"project_id": p.ID,
		"color":      "warm",
	}))
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error: %s", toolText(t, result))
	}

	if len(gen.covers) != 1 {
		t.Fatalf("Cover called %d times, want 1", len(gen.covers))
	}
	got := gen.covers[0]
	if got.ProjectID != p.ID || got.Genre != "fiction" || got.Vibe != "sea voyage" || got.Color != "warm" {
		t.Errorf("cover request = %+v", got)
	}

	text := toolText(t, result)
	if !strings.Contains(text, "https://img.example.com/1.png") {
		t.Errorf("result missing images: %s", text)
	}
}

func TestMCPTool_GenerateCovers_Async(t *testing.T) {
	deps, store, gen := newTestMCPDeps(t)
	p := seedProject(t, store, "default-user")

	result, err := mcpGenerateCovers(deps)(context.Background(), makeCallToolRequest("generate_covers", map[string]interface{}{
		"project_id": p.ID,
		"async":      true,
	}))
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error: %s", toolText(t, result))
	}
	if len(gen.queued) != 1 || len(gen.covers) != 0 {
		t.Errorf("queued=%d covers=%d, want 1 and 0", len(gen.queued), len(gen.covers))
	}
	if !strings.HasPrefix(toolText(t, result), "Queued generation ") {
		t.Errorf("text = %q", toolText(t, result))
	}
}

func TestMCPTool_GenerateCovers_NoImages(t *testing.T) {
	deps, store, gen := newTestMCPDeps(t)
	gen.err = generate.ErrNoImages
	p := seedProject(t, store, "default-user")

	result, err := mcpGenerateCovers(deps)(context.Background(), makeCallToolRequest("generate_covers", map[string]interface{}{
		"project_id": p.ID,
	}))
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if !result.IsError || toolText(t, result) != "Failed to generate any images" {
		t.Errorf("result = %q (error=%v)", toolText(t, result), result.IsError)
	}
}

func TestMCPTool_QuickGenerate(t *testing.T) {
	deps, _, _ := newTestMCPDeps(t)

	result, err := mcpQuickGenerate(deps)(context.Background(), makeCallToolRequest("quick_generate", map[string]interface{}{
		"text": "The Lantern\nlight in the window\nby Ines Moreau",
	}))
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error: %s", toolText(t, result))
	}

	var got map[string]any
	if err := json.Unmarshal([]byte(toolText(t, result)), &got); err != nil {
		t.Fatalf("decoding result: %v", err)
	}
	if got["project_id"] == "" || got["generation_id"] != "gen-quick" {
		t.Errorf("result = %v", got)
	}
}

func TestMCPTool_QuickGenerate_TooShort(t *testing.T) {
	deps, _, _ := newTestMCPDeps(t)

	result, err := mcpQuickGenerate(deps)(context.Background(), makeCallToolRequest("quick_generate", map[string]interface{}{
		"text": "hi",
	}))
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if !result.IsError || toolText(t, result) != "Please provide some text" {
		t.Errorf("result = %q", toolText(t, result))
	}
}

func TestMCPTool_SetFavorite(t *testing.T) {
	deps, store, _ := newTestMCPDeps(t)
	p := seedProject(t, store, "default-user")

	result, err := mcpSetFavorite(deps)(context.Background(), makeCallToolRequest("set_favorite", map[string]interface{}{
		"project_id": p.ID,
		"url":        "https://img.example.com/2.png",
	}))
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error: %s", toolText(t, result))
	}

	got, err := store.GetProject(context.Background(), p.ID)
	if err != nil {
		t.Fatalf("GetProject: %v", err)
	}
	if got.FavoriteAssetURL != "https://img.example.com/2.png" {
		t.Errorf("favorite = %q", got.FavoriteAssetURL)
	}
}

func TestMCPTool_SetFavorite_Missing(t *testing.T) {
	deps, _, _ := newTestMCPDeps(t)

	result, err := mcpSetFavorite(deps)(context.Background(), makeCallToolRequest("set_favorite", map[string]interface{}{
		"project_id": "nope",
		"url":        "https://img.example.com/2.png",
	}))
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected error result")
	}
}

func TestMCPResource_Recent(t *testing.T) {
	deps, store, _ := newTestMCPDeps(t)
	for i := 0; i < 12; i++ {
		seedProject(t, store, "default-user")
	}

	contents, err := mcpResourceRecent(deps)(context.Background(), makeReadResourceRequest("mamette://projects/recent"))
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if len(contents) != 1 {
		t.Fatalf("got %d contents, want 1", len(contents))
	}
	trc, ok := contents[0].(mcp.TextResourceContents)
	if !ok {
		t.Fatalf("expected TextResourceContents, got %T", contents[0])
	}
	if trc.MIMEType != "application/json" {
		t.Errorf("MIMEType = %q", trc.MIMEType)
	}

	var got []projectSummary
	if err := json.Unmarshal([]byte(trc.Text), &got); err != nil {
		t.Fatalf("decoding resource: %v", err)
	}
	if len(got) != 10 {
		t.Errorf("got %d projects, want 10", len(got))
	}
}

func TestMCPServer_ConcurrentCalls(t *testing.T) {
	deps, store, _ := newTestMCPDeps(t)
	p := seedProject(t, store, "default-user")

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			res, err := mcpGetProject(deps)(context.Background(), makeCallToolRequest("get_project", map[string]interface{}{
				"project_id": p.ID,
			}))
			if err != nil || res.IsError {
				errs <- errors.New("get_project failed")
			}
		}()
		go func() {
			defer wg.Done()
			res, err := mcpListProjects(deps)(context.Background(), makeCallToolRequest("list_projects", nil))
			if err != nil || res.IsError {
				errs <- errors.New("list_projects failed")
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}

func TestNewMCPServer_ListsTools(t *testing.T) {
	deps, _, _ := newTestMCPDeps(t)
	s := NewMCPServer(deps, "test")

	resp := s.HandleMessage(context.Background(), json.RawMessage(`{"jsonrpc":"2.0","id":1,"method":"tools/list"}`))
	b, err := json.Marshal(resp)
	if err != nil {
		t.Fatalf("marshal response: %v", err)
	}
	for _, name := range []string{"create_project", "list_projects", "get_project", "generate_covers", "quick_generate", "set_favorite"} {
		if !strings.Contains(string(b), `"`+name+`"`) {
			t.Errorf("tool %q not listed in %s", name, b)
		}
	}
	if !strings.Contains(string(b), `"enum":["warm","cool","dark","bright","earthy","vibrant","muted","monochrome"]`) {
		t.Errorf("color enum missing from %s", b)
	}
	if !strings.Contains(string(b), "sci-fi, non-fiction") {
		t.Errorf("genre hint missing from %s", b)
	}
}
