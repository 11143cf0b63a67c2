package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Record field names usable in store filters.
const (
	FieldEventID       = "event_id"
	FieldDownloadState = "load_from_zoom_state"
	FieldUploadState   = "load_to_youtube_state"
	FieldCategory      = "category"
)

// Record is one downloadable file of an event, tracked through the download and upload stages.
type Record struct {
	ID        uuid.UUID `json:"id"`
	EventID   uuid.UUID `json:"event_id"`
	FileIndex int       `json:"file_index"`

	DownloadState    DownloadState `json:"load_from_zoom_state"`
	UploadState      UploadState   `json:"load_to_youtube_state"`
	DownloadAttempts int           `json:"download_attempts"`
	UploadAttempts   int           `json:"upload_attempts"`
	Error            string        `json:"error,omitempty"`
	VideoURL         string        `json:"video_url,omitempty"`

	TopicName   string `json:"topic_name"`
	Filename    string `json:"filename"`
	FilePath    string `json:"filepath"`
	Category    string `json:"category"`
	Playlist    string `json:"playlist"`
	Description string `json:"description"`
	Date        string `json:"date"`

	DownloadURL   string `json:"download_url"`
	DownloadToken string `json:"-"`
	FileType      string `json:"file_type"`
	FileExtension string `json:"file_extension"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Key returns the store identifier.
func (r *Record) Key() uuid.UUID { return r.ID }

// SetKey assigns the store identifier.
func (r *Record) SetKey(id uuid.UUID) { r.ID = id }

// FieldValue returns the filterable value of a named field.
func (r *Record) FieldValue(name string) (string, bool) {
	switch name {
	case "id":
		return r.ID.String(), true
	case FieldEventID:
		return r.EventID.String(), true
	case FieldDownloadState:
		return string(r.DownloadState), true
	case FieldUploadState:
		return string(r.UploadState), true
	case FieldCategory:
		return r.Category, true
	}
	return "", false
}

func (r *Record) setDownload(to DownloadState) error {
	if !r.DownloadState.CanTransition(to) {
		return illegal(r.DownloadState, to)
	}
	r.DownloadState = to
	return nil
}

func (r *Record) setUpload(to UploadState) error {
	if r.DownloadState != DownloadSuccess {
		return fmt.Errorf("%w: upload requires download success, have %s", ErrIllegalTransition, r.DownloadState)
	}
	if !r.UploadState.CanTransition(to) {
		return illegal(r.UploadState, to)
	}
	r.UploadState = to
	return nil
}

// StartDownload marks the record as loading.
func (r *Record) StartDownload() error {
	return r.setDownload(DownloadLoading)
}

// CompleteDownload marks the download as finished after the given number of transport attempts.
func (r *Record) CompleteDownload(attempts int) error {
	if err := r.setDownload(DownloadSuccess); err != nil {
		return err
	}
	r.DownloadAttempts += attempts
	r.Error = ""
	return nil
}

// FailDownload marks the download as failed and keeps the message.
func (r *Record) FailDownload(msg string, attempts int) error {
	if err := r.setDownload(DownloadFailed); err != nil {
		return err
	}
	r.DownloadAttempts += attempts
	r.Error = msg
	return nil
}

// Interrupt fails a download that was left loading by a process that went away.
func (r *Record) Interrupt(msg string) error {
	if r.DownloadState != DownloadLoading {
		return illegal(r.DownloadState, DownloadFailed)
	}
	return r.FailDownload(msg, 0)
}

// RetryDownload re-arms a failed download.
func (r *Record) RetryDownload() error {
	if err := r.setDownload(DownloadReady); err != nil {
		return err
	}
	r.Error = ""
	return nil
}

// CompleteUpload marks the upload as finished and stores the platform URL.
func (r *Record) CompleteUpload(url string, attempts int) error {
	if err := r.setUpload(UploadSuccess); err != nil {
		return err
	}
	r.UploadAttempts += attempts
	r.VideoURL = url
	r.Error = ""
	return nil
}

// FailUpload marks the upload as failed and keeps the message.
func (r *Record) FailUpload(msg string, attempts int) error {
	if err := r.setUpload(UploadFailed); err != nil {
		return err
	}
	r.UploadAttempts += attempts
	r.Error = msg
	return nil
}

// RetryUpload re-arms a failed upload.
func (r *Record) RetryUpload() error {
	if err := r.setUpload(UploadReady); err != nil {
		return err
	}
	r.Error = ""
	return nil
}

// StampCreated sets both timestamps on insert.
func (r *Record) StampCreated(t time.Time) {
	r.CreatedAt = t
	r.UpdatedAt = t
}

// StampUpdated sets the modification time.
func (r *Record) StampUpdated(t time.Time) { r.UpdatedAt = t }

// UploadMetadata is what an upload transport needs to publish a file.
type UploadMetadata struct {
	Title       string
	Description string
	Playlist    string
	Category    string
	Filename    string
}

// UploadMetadata returns the publishing metadata derived at ingestion.
func (r *Record) UploadMetadata() UploadMetadata {
	return UploadMetadata{
		Title:       r.TopicName,
		Description: r.Description,
		Playlist:    r.Playlist,
		Category:    r.Category,
		Filename:    r.Filename,
	}
}
