package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Event field names usable in store filters.
const (
	FieldEventState = "state"
)

// RecordingFile is one file from the recording.completed payload.
type RecordingFile struct {
	ID            string `json:"id,omitempty"`
	FileType      string `json:"file_type"`
	FileExtension string `json:"file_extension"`
	Status        string `json:"status"`
	DownloadURL   string `json:"download_url"`
	RecordingType string `json:"recording_type,omitempty"`
}

// Eligible reports whether the file is a completed MP4 that can be downloaded.
func (f RecordingFile) Eligible() bool {
	return strings.EqualFold(f.FileType, "MP4") &&
		strings.EqualFold(f.Status, "completed") &&
		f.DownloadURL != ""
}

// RecordingPayload is the normalized part of the webhook that the pipeline consumes.
type RecordingPayload struct {
	Topic         string          `json:"topic"`
	Duration      int             `json:"duration"` // minutes
	StartTime     time.Time       `json:"start_time"`
	AccountID     string          `json:"account_id"`
	DownloadToken string          `json:"download_token,omitempty"`
	Files         []RecordingFile `json:"recording_files"`
}

// EligibleFiles returns the files that get a Record each, in payload order.
func (p RecordingPayload) EligibleFiles() []RecordingFile {
	var out []RecordingFile
	for _, f := range p.Files {
		if f.Eligible() {
			out = append(out, f)
		}
	}
	return out
}

// Event is one recording-completed notification.
type Event struct {
	ID           uuid.UUID        `json:"id"`
	State        EventState       `json:"state"`
	Payload      RecordingPayload `json:"payload"`
	RejectReason string           `json:"reject_reason,omitempty"`
	CreatedAt    time.Time        `json:"created_at"`
	UpdatedAt    time.Time        `json:"updated_at"`
}

// Key returns the store identifier.
func (e *Event) Key() uuid.UUID { return e.ID }

// SetKey assigns the store identifier.
func (e *Event) SetKey(id uuid.UUID) { e.ID = id }

// FieldValue returns the filterable value of a named field.
func (e *Event) FieldValue(name string) (string, bool) {
	switch name {
	case FieldEventState:
		return string(e.State), true
	case "id":
		return e.ID.String(), true
	}
	return "", false
}

// Reject moves a ready event to rejected.
func (e *Event) Reject(reason string) error {
	if !e.State.CanTransition(EventRejected) {
		return illegal(e.State, EventRejected)
	}
	e.State = EventRejected
	e.RejectReason = reason
	return nil
}

// MarkProcessed moves a ready event to processed once all its records exist.
func (e *Event) MarkProcessed() error {
	if !e.State.CanTransition(EventProcessed) {
		return illegal(e.State, EventProcessed)
	}
	e.State = EventProcessed
	return nil
}

// StampCreated sets both timestamps on insert.
func (e *Event) StampCreated(t time.Time) {
	e.CreatedAt = t
	e.UpdatedAt = t
}

// StampUpdated sets the modification time.
func (e *Event) StampUpdated(t time.Time) { e.UpdatedAt = t }
