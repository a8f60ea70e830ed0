package jobs

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

type Kind string

const (
	KindVideo Kind = "video"
	KindAudio Kind = "audio"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusComplete   Status = "complete"
	StatusFailed     Status = "failed"
)

var ErrUnknownKind = errors.New("unknown job kind")

// IsTerminal reports whether no further transition is allowed.
func (s Status) IsTerminal() bool {
	return s == StatusComplete || s == StatusFailed
}

func (s Status) rank() int {
	switch s {
	case StatusPending:
		return 0
	case StatusProcessing:
		return 1
	case StatusComplete, StatusFailed:
		return 2
	default:
		return -1
	}
}

// Job is one fetch request's lifecycle record. Resolution is set for video
// jobs and Quality (kbps) for audio jobs.
type Job struct {
	ID          string    `json:"request_id"`
	Status      Status    `json:"status"`
	Kind        Kind      `json:"type"`
	SourceID    string    `json:"video_id"`
	Title       string    `json:"title"`
	Resolution  int       `json:"resolution,omitempty"`
	Quality     int       `json:"quality,omitempty"`
	Message     string    `json:"message"`
	DownloadURL *string   `json:"download_url"`
	SizeMB      *float64  `json:"file_size_mb"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Attrs are the immutable request attributes of a job.
type Attrs struct {
	SourceID   string
	Title      string
	Resolution int
	Quality    int
}

func (j *Job) clone() Job {
	c := *j
	if j.DownloadURL != nil {
		u := *j.DownloadURL
		c.DownloadURL = &u
	}
	if j.SizeMB != nil {
		m := *j.SizeMB
		c.SizeMB = &m
	}
	return c
}

func NewID() string {
	return uuid.NewString()
}
