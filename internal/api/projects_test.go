package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"testing"

	"github.com/mamette/mamette/internal/storage"
)

func TestCreateProject(t *testing.T) {
	env := setupHandler(t, testToken)

	body := `{"title":"Salt Roads","author":"A. Reyes","genre":"fiction","vibe":"sea voyage","color":"cool"}`
	rr := serve(env.handler, authReq(http.MethodPost, "/api/projects", body, testToken))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body = %s", rr.Code, rr.Body.String())
	}

	resp := decodeBody(t, rr)
	if resp["success"] != true {
		t.Errorf("success = %v", resp["success"])
	}
	project := resp["project"].(map[string]any)
	id, _ := project["id"].(string)
	if id == "" {
		t.Fatal("response missing project id")
	}
	if project["user_id"] != "default-user" {
		t.Errorf("user_id = %v, want default-user", project["user_id"])
	}

	stored, err := env.store.GetProject(context.Background(), id)
	if err != nil {
		t.Fatalf("GetProject: %v", err)
	}
	if stored.Vibe != "sea voyage" || stored.Color != "cool" {
		t.Errorf("stored = %+v", stored)
	}
}

func TestCreateProject_MissingFields(t *testing.T) {
	env := setupHandler(t, testToken)

	for _, body := range []string{
		`{"author":"A","genre":"fiction"}`,
		`{"title":"T","genre":"fiction"}`,
		`{"title":"T","author":"A"}`,
	} {
		rr := serve(env.handler, authReq(http.MethodPost, "/api/projects", body, testToken))
		if rr.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", body, rr.Code)
			continue
		}
		if msg := errorMessage(t, rr); msg != "Title, author, and genre are required" {
			t.Errorf("%s: error = %q", body, msg)
		}
	}
}

func TestCreateProject_InvalidJSON(t *testing.T) {
	env := setupHandler(t, testToken)

	rr := serve(env.handler, authReq(http.MethodPost, "/api/projects", `{not json`, testToken))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}
}

func TestListProjects_FiltersByUser(t *testing.T) {
	env := setupHandler(t, testToken)
	ctx := context.Background()
	for _, user := range []string{"u1", "u1", "u2"} {
		if _, err := env.store.CreateProject(ctx, storage.Project{UserID: user, Title: "T", Author: "A", Genre: "fiction"}); err != nil {
			t.Fatal(err)
		}
	}

	rr := serve(env.handler, authReq(http.MethodGet, "/api/projects?userId=u1", "", testToken))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	projects := decodeBody(t, rr)["projects"].([]any)
	if len(projects) != 2 {
		t.Errorf("got %d projects, want 2", len(projects))
	}
}

func TestListProjects_EmptyIsArray(t *testing.T) {
	env := setupHandler(t, testToken)

	rr := serve(env.handler, authReq(http.MethodGet, "/api/projects", "", testToken))
	if !strings.Contains(rr.Body.String(), `"projects":[]`) {
		t.Errorf("body = %s, want empty array", rr.Body.String())
	}
}

func TestListProjects_Limit(t *testing.T) {
	env := setupHandler(t, testToken)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		if _, err := env.store.CreateProject(ctx, storage.Project{UserID: "default-user", Title: fmt.Sprint("T", i), Author: "A", Genre: "fiction"}); err != nil {
			t.Fatal(err)
		}
	}

	rr := serve(env.handler, authReq(http.MethodGet, "/api/projects?limit=3", "", testToken))
	projects := decodeBody(t, rr)["projects"].([]any)
	if len(projects) != 3 {
		t.Errorf("got %d projects, want 3", len(projects))
	}
}

func TestGetProject(t *testing.T) {
	env := setupHandler(t, testToken)
	p := seedProject(t, env.store, "default-user")

	rr := serve(env.handler, authReq(http.MethodGet, "/api/projects/"+p.ID, "", testToken))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	project := decodeBody(t, rr)["project"].(map[string]any)
	if project["title"] != "Salt Roads" {
		t.Errorf("title = %v", project["title"])
	}
	if _, ok := project["generations"].([]any); !ok {
		t.Errorf("generations = %v, want array", project["generations"])
	}
}

func TestGetProject_NotFound(t *testing.T) {
	env := setupHandler(t, testToken)

	rr := serve(env.handler, authReq(http.MethodGet, "/api/projects/missing", "", testToken))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rr.Code)
	}
	if msg := errorMessage(t, rr); msg != "Not found" {
		t.Errorf("error = %q", msg)
	}
}

func TestPatchProject_SetsFavorite(t *testing.T) {
	env := setupHandler(t, testToken)
	p := seedProject(t, env.store, "default-user")

	body := `{"favorite_asset_url":"https://img.example.com/a.png"}`
	rr := serve(env.handler, authReq(http.MethodPatch, "/api/projects/"+p.ID, body, testToken))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body = %s", rr.Code, rr.Body.String())
	}
	project := decodeBody(t, rr)["project"].(map[string]any)
	if project["favorite_asset_url"] != "https://img.example.com/a.png" {
		t.Errorf("favorite_asset_url = %v", project["favorite_asset_url"])
	}
}

func TestPatchProject_NotFound(t *testing.T) {
	env := setupHandler(t, testToken)

	rr := serve(env.handler, authReq(http.MethodPatch, "/api/projects/missing", `{"favorite_asset_url":"x"}`, testToken))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rr.Code)
	}
}

func TestDeleteProject(t *testing.T) {
	env := setupHandler(t, testToken)
	p := seedProject(t, env.store, "default-user")

	rr := serve(env.handler, authReq(http.MethodDelete, "/api/projects/"+p.ID, "", testToken))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	if decodeBody(t, rr)["success"] != true {
		t.Error("expected success")
	}

	rr = serve(env.handler, authReq(http.MethodDelete, "/api/projects/"+p.ID, "", testToken))
	if rr.Code != http.StatusNotFound {
		t.Errorf("second delete status = %d, want 404", rr.Code)
	}
}

func TestParseIntParam(t *testing.T) {
	cases := []struct {
		query string
		want  int
	}{
		{"", 7},
		{"limit=3", 3},
		{"limit=-1", 7},
		{"limit=abc", 7},
		{"limit=500", 200},
	}
	for _, c := range cases {
		req := authReq(http.MethodGet, "/api/projects?"+c.query, "", "")
		if got := parseIntParam(req, "limit", 7, 200); got != c.want {
			t.Errorf("parseIntParam(%q) = %d, want %d", c.query, got, c.want)
		}
	}
}
