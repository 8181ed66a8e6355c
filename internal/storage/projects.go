package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const projectColumns = `id, user_id, title, author, genre, vibe, color, prompt, favorite_asset_url, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProject(r rowScanner) (Project, error) {
	var p Project
	var createdAt, updatedAt string
	if err := r.Scan(&p.ID, &p.UserID, &p.Title, &p.Author, &p.Genre, &p.Vibe, &p.Color,
		&p.Prompt, &p.FavoriteAssetURL, &createdAt, &updatedAt); err != nil {
		return Project{}, err
	}
	var err error
	if p.CreatedAt, err = parseTime(createdAt); err != nil {
		return Project{}, fmt.Errorf("parsing created_at: %w", err)
	}
	if p.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return Project{}, fmt.Errorf("parsing updated_at: %w", err)
	}
	p.Generations = []Generation{}
	return p, nil
}

// CreateProject inserts p, assigning an ID and timestamps when unset.
func (s *Store) CreateProject(ctx context.Context, p Project) (Project, error) {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	ts := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = ts
	}
	p.UpdatedAt = p.CreatedAt
	_, err := s.db.ExecContext(ctx, s.q(`
		INSERT INTO projects (`+projectColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		p.ID, p.UserID, p.Title, p.Author, p.Genre, p.Vibe, p.Color, p.Prompt, p.FavoriteAssetURL,
		formatTime(p.CreatedAt), formatTime(p.UpdatedAt),
	)
	if err != nil {
		return Project{}, fmt.Errorf("inserting project: %w", err)
	}
	// Round-trip through the stored layout so callers see what a read returns.
	p.CreatedAt, _ = parseTime(formatTime(p.CreatedAt))
	p.UpdatedAt = p.CreatedAt
	if p.Generations == nil {
		p.Generations = []Generation{}
	}
	return p, nil
}

// GetProject returns the project with its generations, newest first.
func (s *Store) GetProject(ctx context.Context, id string) (Project, error) {
	p, err := scanProject(s.db.QueryRowContext(ctx, s.q(`SELECT `+projectColumns+` FROM projects WHERE id = ?`), id))
	if errors.Is(err, sql.ErrNoRows) {
		return Project{}, ErrNotFound
	}
	if err != nil {
		return Project{}, err
	}
	if p.Generations, err = s.ListGenerations(ctx, p.ID); err != nil {
		return Project{}, err
	}
	return p, nil
}

// ProjectExists reports whether a project with id is stored.
func (s *Store) ProjectExists(ctx context.Context, id string) (bool, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, s.q(`SELECT COUNT(*) FROM projects WHERE id = ?`), id).Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}

// ListProjects returns a user's projects, newest first, each with its generations.
// A limit <= 0 means no limit.
func (s *Store) ListProjects(ctx context.Context, userID string, limit int) ([]Project, error) {
	query := `SELECT ` + projectColumns + ` FROM projects WHERE user_id = ? ORDER BY created_at DESC`
	args := []any{userID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, s.q(query), args...)
	if err != nil {
		return nil, err
	}

	projects := []Project{}
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		projects = append(projects, p)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	// Generations are loaded after the cursor is closed; sqlite runs on one connection.
	for i := range projects {
		if projects[i].Generations, err = s.ListGenerations(ctx, projects[i].ID); err != nil {
			return nil, err
		}
	}
	return projects, nil
}

// SetFavorite records the project's chosen cover URL.
func (s *Store) SetFavorite(ctx context.Context, id, url string) error {
	return s.updateProjectField(ctx, id, "favorite_asset_url", url)
}

// SetProjectPrompt records the last prompt used for the project.
func (s *Store) SetProjectPrompt(ctx context.Context, id, prompt string) error {
	return s.updateProjectField(ctx, id, "prompt", prompt)
}

func (s *Store) updateProjectField(ctx context.Context, id, column, value string) error {
	res, err := s.db.ExecContext(ctx, s.q(`UPDATE projects SET `+column+` = ?, updated_at = ? WHERE id = ?`), value, now(), id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteProject removes the project and all of its generations.
func (s *Store) DeleteProject(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning delete transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, s.q(`DELETE FROM generations WHERE project_id = ?`), id); err != nil {
		return fmt.Errorf("deleting generations: %w", err)
	}
	res, err := tx.ExecContext(ctx, s.q(`DELETE FROM projects WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("deleting project: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return tx.Commit()
}
