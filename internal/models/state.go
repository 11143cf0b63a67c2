package models

import (
	"errors"
	"fmt"
)

// ErrIllegalTransition is returned when a state change is not allowed by the state machine.
var ErrIllegalTransition = errors.New("illegal state transition")

// EventState is the overall processing state of a webhook event.
type EventState string

const (
	EventReady     EventState = "ready"
	EventProcessed EventState = "processed"
	EventRejected  EventState = "rejected"
)

// IsTerminal reports whether the event can no longer change state.
func (s EventState) IsTerminal() bool {
	return s == EventProcessed || s == EventRejected
}

// CanTransition reports whether s -> to is a legal event transition.
func (s EventState) CanTransition(to EventState) bool {
	return s == EventReady && (to == EventProcessed || to == EventRejected)
}

// Valid reports whether s is a known event state.
func (s EventState) Valid() bool {
	switch s {
	case EventReady, EventProcessed, EventRejected:
		return true
	}
	return false
}

// DownloadState tracks the download-from-Zoom stage of a record.
type DownloadState string

const (
	DownloadReady   DownloadState = "ready"
	DownloadLoading DownloadState = "loading"
	DownloadSuccess DownloadState = "success"
	DownloadFailed  DownloadState = "failed"
)

// CanTransition reports whether s -> to is a legal download transition.
// failed -> ready is only reachable through an explicit operator retry.
func (s DownloadState) CanTransition(to DownloadState) bool {
	switch s {
	case DownloadReady:
		return to == DownloadLoading
	case DownloadLoading:
		return to == DownloadSuccess || to == DownloadFailed
	case DownloadFailed:
		return to == DownloadReady
	}
	return false
}

// Valid reports whether s is a known download state.
func (s DownloadState) Valid() bool {
	switch s {
	case DownloadReady, DownloadLoading, DownloadSuccess, DownloadFailed:
		return true
	}
	return false
}

// UploadState tracks the upload-to-hosting stage of a record.
type UploadState string

const (
	UploadReady   UploadState = "ready"
	UploadSuccess UploadState = "success"
	UploadFailed  UploadState = "failed"
)

// CanTransition reports whether s -> to is a legal upload transition.
func (s UploadState) CanTransition(to UploadState) bool {
	switch s {
	case UploadReady:
		return to == UploadSuccess || to == UploadFailed
	case UploadFailed:
		return to == UploadReady
	}
	return false
}

// Valid reports whether s is a known upload state.
func (s UploadState) Valid() bool {
	switch s {
	case UploadReady, UploadSuccess, UploadFailed:
		return true
	}
	return false
}

func illegal[S ~string](from, to S) error {
	return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, from, to)
}
