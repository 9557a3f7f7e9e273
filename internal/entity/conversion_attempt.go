package entity

import (
	"time"

	"github.com/google/uuid"
)

// ConversionAttempt represents one pipeline run for data transfer between layers.
// It is a diagnostic record; cache status is always decided from the artifact store.
type ConversionAttempt struct {
	ID           uuid.UUID  `json:"id"`
	CacheKey     string     `json:"cache_key"`
	Format       string     `json:"format"`
	SourcePath   string     `json:"source_path"`
	Status       string     `json:"status"`
	Stage        *string    `json:"stage,omitempty"`
	Reason       *string    `json:"reason,omitempty"`
	ErrorMessage *string    `json:"error_message,omitempty"`
	Pages        int        `json:"pages"`
	StartedAt    time.Time  `json:"started_at"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
}

// Duration returns the wall time of a finished attempt, or zero.
func (a *ConversionAttempt) Duration() time.Duration {
	if a.FinishedAt == nil {
		return 0
	}
	return a.FinishedAt.Sub(a.StartedAt)
}
