package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Generation statuses.
const (
	StatusPending    = "pending"
	StatusGenerating = "generating"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

type Project struct {
	ID               string       `json:"id"`
	UserID           string       `json:"user_id"`
	Title            string       `json:"title"`
	Author           string       `json:"author"`
	Genre            string       `json:"genre"`
	Vibe             string       `json:"vibe"`
	Color            string       `json:"color"`
	Prompt           string       `json:"prompt"`
	FavoriteAssetURL string       `json:"favorite_asset_url"`
	CreatedAt        time.Time    `json:"created_at"`
	UpdatedAt        time.Time    `json:"updated_at"`
	Generations      []Generation `json:"generations"`
}

type Generation struct {
	ID        string    `json:"id"`
	ProjectID string    `json:"project_id"`
	Provider  string    `json:"provider"`
	Prompt    string    `json:"prompt"`
	Status    string    `json:"status"`
	Images    []string  `json:"images"`
	Attempts  int       `json:"attempts"`
	Rejected  int       `json:"rejected"`
	LastError string    `json:"last_error,omitempty"`
	Directive string    `json:"directive,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Job struct {
	ID          string
	Type        string
	PayloadJSON string
	Status      string // "pending", "running", "completed", "failed"
	Attempts    int
	MaxAttempts int
	RunAfter    time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
	LastError   string
}
