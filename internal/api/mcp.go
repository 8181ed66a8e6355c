package api

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/mamette/mamette/internal/generate"
	"github.com/mamette/mamette/internal/prompt"
	"github.com/mamette/mamette/internal/storage"
)

var genreHint = "Genre; styled genres are " + strings.Join(prompt.Genres, ", ")

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Store         ProjectStore
	Generator     Generator
	DefaultUserID string
}

// NewMCPServer creates an MCP server with all Mamette tools and resources registered.
func NewMCPServer(deps MCPDeps, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"mamette",
		version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("Mamette designs text-free book cover artwork. Create a project for a book, then generate cover concepts for it."),
		server.WithRecovery(),
	)

	// Tools
	s.AddTool(
		mcp.NewTool("create_project",
			mcp.WithDescription("Create a book project to generate covers for."),
			mcp.WithString("title", mcp.Description("Book title"), mcp.Required()),
			mcp.WithString("author", mcp.Description("Author name"), mcp.Required()),
			mcp.WithString("genre", mcp.Description(genreHint), mcp.Required()),
			mcp.WithString("vibe", mcp.Description("Themes and mood of the book")),
			mcp.WithString("color", mcp.Description("Color palette"), mcp.Enum(prompt.Colors...)),
			mcp.WithString("user_id", mcp.Description("Owner of the project")),
		),
		mcpCreateProject(deps),
	)

	s.AddTool(
		mcp.NewTool("list_projects",
			mcp.WithDescription("List a user's book projects, newest first."),
			mcp.WithString("user_id", mcp.Description("Owner of the projects")),
			mcp.WithNumber("limit", mcp.Description("Maximum number of projects (default 20)")),
		),
		mcpListProjects(deps),
	)

	s.AddTool(
		mcp.NewTool("get_project",
			mcp.WithDescription("Get a project with all of its generations."),
			mcp.WithString("project_id", mcp.Description("Project ID"), mcp.Required()),
		),
		mcpGetProject(deps),
	)

	s.AddTool(
		mcp.NewTool("generate_covers",
			mcp.WithDescription("Generate cover concepts for a project. Genre, vibe and color default to the project's."),
			mcp.WithString("project_id", mcp.Description("Project ID"), mcp.Required()),
			mcp.WithString("genre", mcp.Description("Override the project genre. "+genreHint)),
			mcp.WithString("vibe", mcp.Description("Override the project vibe")),
			mcp.WithString("color", mcp.Description("Override the project palette"), mcp.Enum(prompt.Colors...)),
			mcp.WithString("provider", mcp.Description("dalle or replicate")),
			mcp.WithBoolean("async", mcp.Description("Queue the generation and return immediately")),
		),
		mcpGenerateCovers(deps),
	)

	s.AddTool(
		mcp.NewTool("quick_generate",
			mcp.WithDescription("Create a poetry project from pasted text and generate covers for it."),
			mcp.WithString("text", mcp.Description("Poem or manuscript excerpt; first line is the title, a trailing 'by ...' line the author"), mcp.Required()),
			mcp.WithString("user_id", mcp.Description("Owner of the project")),
		),
		mcpQuickGenerate(deps),
	)

	s.AddTool(
		mcp.NewTool("set_favorite",
			mcp.WithDescription("Mark one generated image as the project's chosen cover."),
			mcp.WithString("project_id", mcp.Description("Project ID"), mcp.Required()),
			mcp.WithString("url", mcp.Description("Image URL"), mcp.Required()),
		),
		mcpSetFavorite(deps),
	)

	// Resources
	s.AddResource(
		mcp.NewResource(
			"mamette://projects/recent",
			"Recent Projects",
			mcp.WithResourceDescription("Last 10 projects of the default user (summaries only)"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceRecent(deps),
	)

	return s
}

func mcpCreateProject(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		title := req.GetString("title", "")
		author := req.GetString("author", "")
		genre := req.GetString("genre", "")
		if title == "" || author == "" || genre == "" {
			return mcpError("Title, author, and genre are required"), nil
		}

		p, err := deps.Store.CreateProject(ctx, storage.Project{
			UserID: cmp.Or(req.GetString("user_id", ""), deps.DefaultUserID),
			Title:  title,
			Author: author,
			Genre:  genre,
			Vibe:   req.GetString("vibe", ""),
			Color:  req.GetString("color", ""),
		})
		if err != nil {
			return mcpError(fmt.Sprintf("failed to create project: %v", err)), nil
		}
		return mcpJSON(p)
	}
}

func mcpListProjects(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		limit := req.GetInt("limit", 20)
		if limit <= 0 {
			limit = 20
		}
		if limit > 100 {
			limit = 100
		}

		projects, err := deps.Store.ListProjects(ctx, cmp.Or(req.GetString("user_id", ""), deps.DefaultUserID), limit)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to list projects: %v", err)), nil
		}
		if len(projects) == 0 {
			return mcpText("[]"), nil
		}
		return mcpJSON(summarize(projects))
	}
}

func mcpGetProject(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireString("project_id")
		if err != nil {
			return mcpError("project_id is required"), nil
		}
		p, err := deps.Store.GetProject(ctx, id)
		if errors.Is(err, storage.ErrNotFound) {
			return mcpError(fmt.Sprintf("project %s not found", id)), nil
		}
		if err != nil {
			return mcpError(fmt.Sprintf("failed to get project: %v", err)), nil
		}
		return mcpJSON(p)
	}
}

func mcpGenerateCovers(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireString("project_id")
		if err != nil {
			return mcpError("project_id is required"), nil
		}
		p, err := deps.Store.GetProject(ctx, id)
		if errors.Is(err, storage.ErrNotFound) {
			return mcpError(fmt.Sprintf("project %s not found", id)), nil
		}
		if err != nil {
			return mcpError(fmt.Sprintf("failed to get project: %v", err)), nil
		}

		cover := generate.CoverRequest{
			ProjectID: p.ID,
			Genre:     cmp.Or(req.GetString("genre", ""), p.Genre),
			Vibe:      cmp.Or(req.GetString("vibe", ""), p.Vibe),
			Color:     cmp.Or(req.GetString("color", ""), p.Color),
			Provider:  req.GetString("provider", ""),
		}

		if req.GetBool("async", false) {
			g, err := deps.Generator.EnqueueCover(ctx, cover)
			if err != nil {
				return mcpError(fmt.Sprintf("failed to queue generation: %v", err)), nil
			}
			return mcpText(fmt.Sprintf("Queued generation %s; read it with get_project %s", g.ID, p.ID)), nil
		}

		res, err := deps.Generator.Cover(ctx, cover)
		if errors.Is(err, generate.ErrNoImages) {
			return mcpError("Failed to generate any images"), nil
		}
		if err != nil {
			return mcpError(fmt.Sprintf("generation failed: %v", err)), nil
		}
		return mcpJSON(map[string]any{
			"generation_id": res.Generation.ID,
			"images":        res.Generation.Images,
			"attempts":      res.Generation.Attempts,
			"rejected":      res.Generation.Rejected,
		})
	}
}

func mcpQuickGenerate(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		text, err := req.RequireString("text")
		if err != nil {
			return mcpError("text is required"), nil
		}

		res, err := deps.Generator.Quick(ctx, cmp.Or(req.GetString("user_id", ""), deps.DefaultUserID), text)
		switch {
		case errors.Is(err, generate.ErrTextTooShort):
			return mcpError("Please provide some text"), nil
		case errors.Is(err, generate.ErrNoImages):
			return mcpError(fmt.Sprintf("Created project %s but failed to generate any images", res.Project.ID)), nil
		case err != nil:
			return mcpError(fmt.Sprintf("quick generation failed: %v", err)), nil
		}
		return mcpJSON(map[string]any{
			"project_id":    res.Project.ID,
			"title":         res.Project.Title,
			"author":        res.Project.Author,
			"generation_id": res.Generation.ID,
			"images":        res.Generation.Images,
		})
	}
}

func mcpSetFavorite(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireString("project_id")
		if err != nil {
			return mcpError("project_id is required"), nil
		}
		url, err := req.RequireString("url")
		if err != nil {
			return mcpError("url is required"), nil
		}

		err = deps.Store.SetFavorite(ctx, id, url)
		if errors.Is(err, storage.ErrNotFound) {
			return mcpError(fmt.Sprintf("project %s not found", id)), nil
		}
		if err != nil {
			return mcpError(fmt.Sprintf("failed to set favorite: %v", err)), nil
		}
		return mcpText(fmt.Sprintf("Set favorite cover of %s", id)), nil
	}
}

type projectSummary struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Author      string `json:"author"`
	Genre       string `json:"genre"`
	Favorite    string `json:"favorite_asset_url,omitempty"`
	Generations int    `json:"generations"`
	CreatedAt   string `json:"created_at"`
}

func summarize(projects []storage.Project) []projectSummary {
	out := make([]projectSummary, len(projects))
	for i, p := range projects {
		title := p.Title
		if utf8.RuneCountInString(title) > 200 {
			title = string([]rune(title)[:200]) + "..."
		}
		out[i] = projectSummary{
			ID:          p.ID,
			Title:       title,
			Author:      p.Author,
			Genre:       p.Genre,
			Favorite:    p.FavoriteAssetURL,
			Generations: len(p.Generations),
			CreatedAt:   p.CreatedAt.Format(time.RFC3339),
		}
	}
	return out
}

func mcpResourceRecent(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		projects, err := deps.Store.ListProjects(ctx, deps.DefaultUserID, 10)
		if err != nil {
			return nil, fmt.Errorf("failed to get recent projects: %w", err)
		}

		b, err := json.Marshal(summarize(projects))
		if err != nil {
			return nil, fmt.Errorf("failed to marshal projects: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpJSON(v any) (*mcp.CallToolResult, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return mcpError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcpText(string(b)), nil
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
