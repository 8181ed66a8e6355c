package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const generationColumns = `id, project_id, provider, prompt, status, images, attempts, rejected, last_error, directive, created_at, updated_at`

func scanGeneration(r rowScanner) (Generation, error) {
	var g Generation
	var images, createdAt, updatedAt string
	if err := r.Scan(&g.ID, &g.ProjectID, &g.Provider, &g.Prompt, &g.Status, &images,
		&g.Attempts, &g.Rejected, &g.LastError, &g.Directive, &createdAt, &updatedAt); err != nil {
		return Generation{}, err
	}
	if err := json.Unmarshal([]byte(images), &g.Images); err != nil {
		return Generation{}, fmt.Errorf("decoding images of generation %s: %w", g.ID, err)
	}
	if g.Images == nil {
		g.Images = []string{}
	}
	var err error
	if g.CreatedAt, err = parseTime(createdAt); err != nil {
		return Generation{}, fmt.Errorf("parsing created_at: %w", err)
	}
	if g.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return Generation{}, fmt.Errorf("parsing updated_at: %w", err)
	}
	return g, nil
}

func encodeImages(images []string) (string, error) {
	if images == nil {
		images = []string{}
	}
	b, err := json.Marshal(images)
	if err != nil {
		return "", fmt.Errorf("encoding images: %w", err)
	}
	return string(b), nil
}

// CreateGeneration inserts g, assigning an ID, a pending status and
// timestamps when unset.
func (s *Store) CreateGeneration(ctx context.Context, g Generation) (Generation, error) {
	if g.ID == "" {
		g.ID = uuid.New().String()
	}
	if g.Status == "" {
		g.Status = StatusPending
	}
	if g.Images == nil {
		g.Images = []string{}
	}
	images, err := encodeImages(g.Images)
	if err != nil {
		return Generation{}, err
	}
	g.CreatedAt, _ = parseTime(formatTime(time.Now()))
	g.UpdatedAt = g.CreatedAt
	_, err = s.db.ExecContext(ctx, s.q(`
		INSERT INTO generations (`+generationColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		g.ID, g.ProjectID, g.Provider, g.Prompt, g.Status, images, g.Attempts, g.Rejected, g.LastError, g.Directive,
		formatTime(g.CreatedAt), formatTime(g.UpdatedAt),
	)
	if err != nil {
		return Generation{}, fmt.Errorf("inserting generation: %w", err)
	}
	return g, nil
}

func (s *Store) GetGeneration(ctx context.Context, id string) (Generation, error) {
	g, err := scanGeneration(s.db.QueryRowContext(ctx, s.q(`SELECT `+generationColumns+` FROM generations WHERE id = ?`), id))
	if errors.Is(err, sql.ErrNoRows) {
		return Generation{}, ErrNotFound
	}
	return g, err
}

// ListGenerations returns the project's generations, newest first.
func (s *Store) ListGenerations(ctx context.Context, projectID string) ([]Generation, error) {
	rows, err := s.db.QueryContext(ctx, s.q(`SELECT `+generationColumns+` FROM generations
		WHERE project_id = ? ORDER BY created_at DESC`), projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	gens := []Generation{}
	for rows.Next() {
		g, err := scanGeneration(rows)
		if err != nil {
			return nil, err
		}
		gens = append(gens, g)
	}
	return gens, rows.Err()
}

// GenerationResult is the final state written by FinishGeneration.
type GenerationResult struct {
	Status    string
	Images    []string
	Attempts  int
	Rejected  int
	LastError string
}

// FinishGeneration stores the outcome of a generation run.
func (s *Store) FinishGeneration(ctx context.Context, id string, r GenerationResult) error {
	images, err := encodeImages(r.Images)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, s.q(`UPDATE generations
		SET status = ?, images = ?, attempts = ?, rejected = ?, last_error = ?, updated_at = ?
		WHERE id = ?`),
		r.Status, images, r.Attempts, r.Rejected, r.LastError, now(), id)
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
