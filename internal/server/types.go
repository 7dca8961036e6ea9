// Package server provides the HTTP server for episode-drop.
// It includes handlers, middleware, routes, HTML pages and DTOs separated from domain types.
package server

import (
	"time"

	"github.com/maauso/episode-drop/internal/episode"
)

// GetUploadURLRequest is the body of POST /api/get-upload-url. A non-empty
// EpisodeNumber selects folder resolution; otherwise the file fields are
// required and an upload authorization is issued.
type GetUploadURLRequest struct {
	// EpisodeNumber selects folder resolution when present.
	EpisodeNumber string `json:"episodeNumber,omitempty"`
	// FileName is the name of the file about to be uploaded.
	FileName string `json:"fileName,omitempty"`
	// MimeType is the content type of the file.
	MimeType string `json:"mimeType,omitempty"`
	// FolderID is the folder returned by a previous folder request.
	FolderID string `json:"folderId,omitempty"`
}

// UploadTargetRequest holds the validated file fields of a GetUploadURLRequest.
type UploadTargetRequest struct {
	FileName string `validate:"required,max=1024"`
	MimeType string `validate:"required,max=255"`
	FolderID string `validate:"required"`
}

// FolderResponse is returned for a folder resolution request.
type FolderResponse struct {
	// FolderID identifies the episode folder.
	FolderID string `json:"folderId"`
}

// UploadURLResponse is returned for an upload authorization request.
type UploadURLResponse struct {
	// UploadURL receives the file bytes directly.
	UploadURL string `json:"uploadUrl"`
	// FileID is the placeholder object the bytes land in.
	FileID string `json:"fileId"`
	// AccessToken is sent as a bearer token when non-empty.
	AccessToken string `json:"accessToken"`
	// UploadMethod is the HTTP method to upload with.
	UploadMethod string `json:"uploadMethod"`
	// UploadHeaders lists extra headers the upload must carry.
	UploadHeaders map[string]string `json:"uploadHeaders,omitempty"`
}

// RecordRequest is the body of POST /api/upload.
type RecordRequest struct {
	EpisodeNumber string  `json:"episodeNumber"`
	EditingNotes  string  `json:"editingNotes" validate:"max=10000"`
	AudioFileID   *string `json:"audioFileId"`
	VideoFileID   *string `json:"videoFileId"`
}

// RecordResponse is returned after a metadata descriptor is written.
type RecordResponse struct {
	Success       bool    `json:"success"`
	Message       string  `json:"message"`
	EpisodeNumber string  `json:"episodeNumber"`
	AudioURL      *string `json:"audioUrl"`
	VideoURL      *string `json:"videoUrl"`
}

// SubmissionsResponse is returned by GET /api/submissions.
type SubmissionsResponse struct {
	Submissions []episode.Submission `json:"submissions"`
	Errors      []episode.ItemError  `json:"errors"`
	Total       int                  `json:"total"`
}

// TokenResponse is returned by GET /api/auth/get-token.
type TokenResponse struct {
	RefreshToken string `json:"refreshToken"`
	AccessToken  string `json:"accessToken,omitempty"`
	Instructions string `json:"instructions"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	// Error is the human-readable error message.
	Error string `json:"error"`
	// Code is the error code for programmatic handling.
	Code string `json:"code"`
}

// HealthResponse is the HTTP response for the health check endpoint.
type HealthResponse struct {
	// Status is the health status of the service.
	Status string `json:"status"`
	// Configured reports whether a storage credential is available.
	Configured bool `json:"configured"`
	// Time is the server time.
	Time time.Time `json:"time"`
}
