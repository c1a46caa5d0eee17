package api

import (
	"time"

	"github.com/starford/mnemo/internal/models"
	"github.com/starford/mnemo/internal/noteservice"
)

// NoteRequest is the request body for creating or updating a note.
type NoteRequest = noteservice.NoteInput

// TagRequest is the request body for creating a tag.
type TagRequest = noteservice.TagInput

// RateRequest is the request body for rating a note. Rating is declared
// loose so a non-numeric value degrades to 0 instead of failing decode.
type RateRequest struct {
	Rating any `json:"rating" example:"4"`
}

// NoteListResponse wraps note listings.
type NoteListResponse struct {
	Notes []models.Note `json:"notes" validate:"required"`
	Total int           `json:"total" example:"42" validate:"required"`
}

// TagListResponse wraps tag listings.
type TagListResponse struct {
	Tags  []models.Tag `json:"tags" validate:"required"`
	Total int          `json:"total" example:"7" validate:"required"`
}

// SyncResponse is returned after a manual synchronization.
type SyncResponse struct {
	Status   string    `json:"status" example:"ok" validate:"required"`
	LastSync time.Time `json:"lastSync,omitempty"`
}

// SettingsRequest is the request body for updating settings.
type SettingsRequest struct {
	CardsPerSession int `json:"cardsPerSession" example:"20"`
}
