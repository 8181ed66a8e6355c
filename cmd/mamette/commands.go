package main

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/mamette/mamette/internal/config"
	"github.com/mamette/mamette/internal/media"
	"github.com/mamette/mamette/internal/render"
)

type project struct {
	ID               string       `json:"id"`
	UserID           string       `json:"user_id"`
	Title            string       `json:"title"`
	Author           string       `json:"author"`
	Genre            string       `json:"genre"`
	Vibe             string       `json:"vibe"`
	Color            string       `json:"color"`
	FavoriteAssetURL string       `json:"favorite_asset_url"`
	CreatedAt        string       `json:"created_at"`
	Generations      []generation `json:"generations"`
}

type generation struct {
	ID       string   `json:"id"`
	Provider string   `json:"provider"`
	Status   string   `json:"status"`
	Images   []string `json:"images"`
	Attempts int      `json:"attempts"`
	Rejected int      `json:"rejected"`
}

// --- project ---

var projectCmd = &cobra.Command{
	Use:   "project",
	Short: "Manage book projects",
}

var projectCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a book project",
	Long: `Create a book project.

Examples:
  mamette project create --title "Salt Roads" --author "A. Reyes" --genre fiction
  mamette project create --title "Night Orchard" --author "M. Lune" --genre poetry --vibe "moonlit" --color cool`,
	RunE: func(cmd *cobra.Command, args []string) error {
		title, _ := cmd.Flags().GetString("title")
		author, _ := cmd.Flags().GetString("author")
		genre, _ := cmd.Flags().GetString("genre")
		vibe, _ := cmd.Flags().GetString("vibe")
		color, _ := cmd.Flags().GetString("color")
		user, _ := cmd.Flags().GetString("user")

		if title == "" || author == "" || genre == "" {
			return fmt.Errorf("--title, --author and --genre are required")
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		p, err := createProject(cmd.Context(), client, map[string]any{
			"title": title, "author": author, "genre": genre,
			"vibe": vibe, "color": color, "userId": user,
		})
		if err != nil {
			return err
		}
		printSuccess("Created project %s", p.ID)
		return nil
	},
}

func createProject(ctx context.Context, c *apiClient, body map[string]any) (project, error) {
	resp, err := c.post(ctx, "/api/projects", body)
	if err != nil {
		return project{}, err
	}
	var result struct {
		Project project `json:"project"`
	}
	if err := decodeJSON(resp, &result); err != nil {
		return project{}, err
	}
	return result.Project, nil
}

var projectListCmd = &cobra.Command{
	Use:   "list",
	Short: "List projects, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		user, _ := cmd.Flags().GetString("user")
		limit, _ := cmd.Flags().GetInt("limit")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		projects, err := listProjects(cmd.Context(), client, user, limit)
		if err != nil {
			return err
		}
		if len(projects) == 0 {
			fmt.Println("No projects found.")
			return nil
		}
		writeProjectList(os.Stdout, projects)
		return nil
	},
}

func listProjects(ctx context.Context, c *apiClient, user string, limit int) ([]project, error) {
	q := url.Values{}
	if user != "" {
		q.Set("userId", user)
	}
	if limit > 0 {
		q.Set("limit", fmt.Sprint(limit))
	}
	path := "/api/projects"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	resp, err := c.get(ctx, path)
	if err != nil {
		return nil, err
	}
	var result struct {
		Projects []project `json:"projects"`
	}
	if err := decodeJSON(resp, &result); err != nil {
		return nil, err
	}
	return result.Projects, nil
}

func writeProjectList(w io.Writer, projects []project) {
	for _, p := range projects {
		id := p.ID
		if len(id) > 8 {
			id = id[:8]
		}
		star := " "
		if p.FavoriteAssetURL != "" {
			star = colorize(colorYellow, "★")
		}
		fmt.Fprintf(w, "%s %s  %s by %s (%s, %d generations)\n",
			colorize(colorCyan, id), star, colorize(colorBold, p.Title), p.Author, p.Genre, len(p.Generations))
	}
}

var projectShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a project and its generations as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), "/api/projects/"+url.PathEscape(args[0]))
		if err != nil {
			return err
		}
		var result struct {
			Project any `json:"project"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}
		return printJSON(os.Stdout, result.Project)
	},
}

var projectFavoriteCmd = &cobra.Command{
	Use:   "favorite <id> <image-url>",
	Short: "Mark an image as the project's chosen cover",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.patch(cmd.Context(), "/api/projects/"+url.PathEscape(args[0]),
			map[string]any{"favorite_asset_url": args[1]})
		if err != nil {
			return err
		}
		var result map[string]any
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}
		printSuccess("Favorite set for %s", args[0])
		return nil
	},
}

var projectDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a project and its generations",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.delete(cmd.Context(), "/api/projects/"+url.PathEscape(args[0]))
		if err != nil {
			return err
		}
		var result map[string]any
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}
		printSuccess("Deleted project %s", args[0])
		return nil
	},
}

func init() {
	projectCreateCmd.Flags().String("title", "", "book title")
	projectCreateCmd.Flags().String("author", "", "author name")
	projectCreateCmd.Flags().String("genre", "", "genre, e.g. fiction, mystery, poetry")
	projectCreateCmd.Flags().String("vibe", "", "themes and mood")
	projectCreateCmd.Flags().String("color", "", "palette: warm, cool, dark, bright, earthy, vibrant, muted, monochrome")
	projectCreateCmd.Flags().String("user", "", "owner user ID (default: the configured default user)")

	projectListCmd.Flags().String("user", "", "owner user ID (default: the configured default user)")
	projectListCmd.Flags().Int("limit", 20, "maximum number of projects to list")

	projectCmd.AddCommand(projectCreateCmd)
	projectCmd.AddCommand(projectListCmd)
	projectCmd.AddCommand(projectShowCmd)
	projectCmd.AddCommand(projectFavoriteCmd)
	projectCmd.AddCommand(projectDeleteCmd)
}

// --- generate ---

type generateResponse struct {
	ProjectID    string   `json:"projectId"`
	GenerationID string   `json:"generationId"`
	Status       string   `json:"status"`
	Images       []string `json:"images"`
}

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate cover concepts",
	Long: `Generate cover concepts.

With --project the generation is attached to that project. With --async the
request returns at once; follow it with "mamette project show".

Examples:
  mamette generate --title "Salt Roads" --genre fiction --vibe "storm at sea" --color dark
  mamette generate --project 6f1c... --title "Salt Roads" --genre fiction --async`,
	RunE: func(cmd *cobra.Command, args []string) error {
		body := map[string]any{}
		for _, f := range []struct{ flag, field string }{
			{"title", "title"}, {"author", "author"}, {"genre", "genre"}, {"vibe", "vibe"},
			{"color", "color"}, {"project", "projectId"}, {"provider", "provider"},
		} {
			if v, _ := cmd.Flags().GetString(f.flag); v != "" {
				body[f.field] = v
			}
		}
		if body["title"] == nil || body["genre"] == nil {
			return fmt.Errorf("--title and --genre are required")
		}
		async, _ := cmd.Flags().GetBool("async")
		body["async"] = async

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		if !async {
			printStep("Generating covers, this can take a minute...")
		}
		res, err := postGenerate(cmd.Context(), client, "/api/generate", body)
		if err != nil {
			return err
		}
		if async {
			printSuccess("Queued generation %s (%s)", res.GenerationID, res.Status)
			return nil
		}
		printSuccess("Generation %s: %d images", res.GenerationID, len(res.Images))
		printImages(os.Stdout, res.Images)
		return nil
	},
}

func postGenerate(ctx context.Context, c *apiClient, path string, body map[string]any) (generateResponse, error) {
	resp, err := c.post(ctx, path, body)
	if err != nil {
		return generateResponse{}, err
	}
	var res generateResponse
	if err := decodeJSON(resp, &res); err != nil {
		return generateResponse{}, err
	}
	return res, nil
}

func init() {
	generateCmd.Flags().String("title", "", "book title")
	generateCmd.Flags().String("author", "", "author name")
	generateCmd.Flags().String("genre", "", "genre")
	generateCmd.Flags().String("vibe", "", "themes and mood")
	generateCmd.Flags().String("color", "", "palette")
	generateCmd.Flags().String("project", "", "attach to this project ID")
	generateCmd.Flags().String("provider", "", "dalle or replicate (default: generation.provider)")
	generateCmd.Flags().Bool("async", false, "queue the generation and return immediately")
}

// --- quick ---

var quickCmd = &cobra.Command{
	Use:   "quick",
	Short: "Create a poetry project from text and generate covers",
	Long: `Create a poetry project from text and generate covers.

The first line becomes the title; a trailing "by ..." line the author. A .pdf
file is sent as a manuscript and its text extracted by the server.

Examples:
  mamette quick --text "$(cat poem.txt)"
  mamette quick --file manuscript.pdf`,
	RunE: func(cmd *cobra.Command, args []string) error {
		text, _ := cmd.Flags().GetString("text")
		file, _ := cmd.Flags().GetString("file")
		user, _ := cmd.Flags().GetString("user")

		if text == "" && file == "" {
			return fmt.Errorf("one of --text or --file is required")
		}
		body, err := quickBody(text, file)
		if err != nil {
			return err
		}
		if user != "" {
			body["userId"] = user
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		printStep("Generating covers, this can take a minute...")
		res, err := postGenerate(cmd.Context(), client, "/api/quick-generate", body)
		if err != nil {
			return err
		}
		if len(res.Images) == 0 {
			printWarning("Created project %s but no images were generated", res.ProjectID)
			return nil
		}
		printSuccess("Project %s: %d images", res.ProjectID, len(res.Images))
		printImages(os.Stdout, res.Images)
		return nil
	},
}

func quickBody(text, file string) (map[string]any, error) {
	if text != "" {
		return map[string]any{"text": text}, nil
	}
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("reading file: %w", err)
	}
	if strings.EqualFold(filepath.Ext(file), ".pdf") {
		return map[string]any{"pdf": base64.StdEncoding.EncodeToString(data)}, nil
	}
	return map[string]any{"text": string(data)}, nil
}

func init() {
	quickCmd.Flags().String("text", "", "poem or excerpt")
	quickCmd.Flags().String("file", "", "text or PDF file")
	quickCmd.Flags().String("user", "", "owner user ID (default: the configured default user)")
}

// --- mockup ---

var mockupCmd = &cobra.Command{
	Use:   "mockup",
	Short: "Book mockups of a cover",
}

var mockupRenderCmd = &cobra.Command{
	Use:   "render <image>",
	Short: "Render a book mockup locally and write it as PNG",
	Long: `Render a book mockup locally and write it as PNG.

<image> is a file path, an http(s) URL or a data URL.

Examples:
  mamette mockup render cover.png --template hardcoverAngled --title "Salt Roads" --author "A. Reyes"
  mamette mockup render https://example.com/cover.png --out mockup.png`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name, _ := cmd.Flags().GetString("template")
		title, _ := cmd.Flags().GetString("title")
		author, _ := cmd.Flags().GetString("author")
		out, _ := cmd.Flags().GetString("out")

		tmpl, err := render.ParseTemplate(name)
		if err != nil {
			return err
		}
		if out == "" {
			out = fmt.Sprintf("mamette-mockup-%s.png", tmpl)
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
		defer cancel()
		data, err := loadImage(ctx, args[0])
		if err != nil {
			return err
		}
		if err := renderMockupFile(out, data, render.Options{Template: tmpl, Title: title, Author: author}); err != nil {
			return err
		}
		printSuccess("Wrote %s", out)
		return nil
	},
}

// loadImage reads ref from disk when it names a file, otherwise fetches it.
func loadImage(ctx context.Context, ref string) ([]byte, error) {
	if _, err := os.Stat(ref); err == nil {
		return os.ReadFile(ref)
	}
	blob, err := media.NewFetcher(nil).Fetch(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", ref, err)
	}
	return blob.Data, nil
}

func renderMockupFile(out string, data []byte, opts render.Options) error {
	cover, err := render.Decode(bytes.NewReader(data))
	if err != nil {
		return err
	}
	f, err := os.Create(out)
	if err != nil {
		return fmt.Errorf("creating output file: %w", err)
	}
	if err := render.RenderPNG(f, cover, opts); err != nil {
		f.Close()
		os.Remove(out)
		return err
	}
	return f.Close()
}

func init() {
	var names []string
	for _, t := range render.Templates() {
		names = append(names, string(t))
	}
	mockupRenderCmd.Flags().String("template", string(render.PaperbackFront), "one of "+strings.Join(names, ", "))
	mockupRenderCmd.Flags().String("title", "", "caption title")
	mockupRenderCmd.Flags().String("author", "", "caption author")
	mockupRenderCmd.Flags().String("out", "", "output file (default: mamette-mockup-<template>.png)")
	mockupCmd.AddCommand(mockupRenderCmd)
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		for _, k := range config.ShowAll(cfg) {
			line := fmt.Sprintf("  %s = %s", colorize(colorBold, k.Key), k.Value)
			if k.FromEnv {
				line += colorize(colorYellow, " (from "+k.EnvVar+")")
			}
			fmt.Println(line)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

var configUnsetCmd = &cobra.Command{
	Use:   "unset <key>",
	Short: "Remove a configuration value so its default applies",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.UnsetKey(args[0]); err != nil {
			return err
		}
		printSuccess("Unset %s", args[0])
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configUnsetCmd)
}
