package domain

import (
	"time"

	"github.com/google/uuid"
)

// DownloadStatus represents the current status of a download
type DownloadStatus string

const (
	StatusQueued     DownloadStatus = "queued"
	StatusProcessing DownloadStatus = "processing"
	StatusCompleted  DownloadStatus = "completed"
	StatusFailed     DownloadStatus = "failed"
	StatusCancelled  DownloadStatus = "cancelled"
)

// DownloadRecord is the persisted history of one transfer attempt
type DownloadRecord struct {
	ID              string         `json:"id" gorm:"primaryKey"`
	EpisodeID       string         `json:"episode_id" gorm:"not null;index"`
	Title           string         `json:"title" gorm:"not null"`
	SeriesTitle     string         `json:"series_title" gorm:"index"`
	SeasonEpisodeID string         `json:"season_episode_id"`
	Locator         string         `json:"locator"`
	Provider        string         `json:"provider"`
	Directory       string         `json:"directory"`
	Status          DownloadStatus `json:"status" gorm:"not null;index"`
	ErrorMessage    string         `json:"error_message,omitempty"`
	CreatedAt       time.Time      `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt       time.Time      `json:"updated_at" gorm:"autoUpdateTime"`
	StartedAt       *time.Time     `json:"started_at,omitempty"`
	CompletedAt     *time.Time     `json:"completed_at,omitempty"`
}

// NewDownloadRecord creates a queued history record for an episode
func NewDownloadRecord(episode *Episode, provider string) *DownloadRecord {
	now := time.Now()
	return &DownloadRecord{
		ID:              uuid.New().String(),
		EpisodeID:       episode.ID,
		Title:           episode.Title,
		SeriesTitle:     episode.SeriesTitle,
		SeasonEpisodeID: episode.Identifier(),
		Locator:         episode.Locator,
		Provider:        provider,
		Directory:       episode.DownloadDirectory(),
		Status:          StatusQueued,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// MarkProcessing marks the download as processing
func (d *DownloadRecord) MarkProcessing() {
	d.Status = StatusProcessing
	now := time.Now()
	d.StartedAt = &now
	d.UpdatedAt = now
}

// MarkCompleted marks the download as completed
func (d *DownloadRecord) MarkCompleted() {
	d.Status = StatusCompleted
	now := time.Now()
	d.CompletedAt = &now
	d.UpdatedAt = now
}

// MarkFailed marks the download as failed with a summarized reason
func (d *DownloadRecord) MarkFailed(reason string) {
	d.Status = StatusFailed
	d.ErrorMessage = reason
	now := time.Now()
	d.CompletedAt = &now
	d.UpdatedAt = now
}

// MarkCancelled marks the download as cancelled
func (d *DownloadRecord) MarkCancelled() {
	d.Status = StatusCancelled
	now := time.Now()
	d.CompletedAt = &now
	d.UpdatedAt = now
}

// IsTerminal checks if the download is in a terminal state
func (d *DownloadRecord) IsTerminal() bool {
	return d.Status == StatusCompleted || d.Status == StatusFailed || d.Status == StatusCancelled
}

// Duration returns how long the transfer ran, or zero if it never finished
func (d *DownloadRecord) Duration() time.Duration {
	if d.StartedAt == nil || d.CompletedAt == nil {
		return 0
	}
	return d.CompletedAt.Sub(*d.StartedAt)
}

// ValidateStatus checks if a status filter value is valid
func ValidateStatus(status DownloadStatus) bool {
	switch status {
	case StatusQueued, StatusProcessing, StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}
