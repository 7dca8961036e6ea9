// Package episode provides the episode submission use cases: resolving the
// per-episode folder, authorizing direct uploads, recording metadata
// descriptors and listing them back for review.
package episode

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
)

// Static errors for episode operations.
var (
	// ErrEpisodeNumberRequired is returned when the episode number is empty after trimming.
	ErrEpisodeNumberRequired = errors.New("episode number is required")
	// ErrNotConfigured is returned when no storage credential is available.
	ErrNotConfigured = errors.New("server not configured")
	// ErrUploadTargetRequired is returned when an upload request lacks a file name, MIME type or folder.
	ErrUploadTargetRequired = errors.New("fileName, mimeType and folderId are required")
)

const (
	// MetadataFileName is the object name of every submission descriptor.
	MetadataFileName = "metadata.json"
	// MetadataMimeType is the content type descriptors are stored with.
	MetadataMimeType = "application/json"

	folderPrefix = "Episode "
)

// Submission is the metadata descriptor stored next to an episode's media.
type Submission struct {
	EpisodeNumber string    `json:"episodeNumber"`
	EditingNotes  string    `json:"editingNotes"`
	AudioURL      *string   `json:"audioUrl"`
	VideoURL      *string   `json:"videoUrl"`
	UploadedAt    time.Time `json:"uploadedAt"`
}

// Encode serializes s with two-space indentation.
func (s Submission) Encode() ([]byte, error) {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode submission: %w", err)
	}
	return data, nil
}

// DecodeSubmission parses a descriptor.
func DecodeSubmission(r io.Reader) (Submission, error) {
	var s Submission
	if err := json.NewDecoder(r).Decode(&s); err != nil {
		return Submission{}, fmt.Errorf("decode submission: %w", err)
	}
	return s, nil
}

// NormalizeEpisodeNumber trims n and rejects empty values.
func NormalizeEpisodeNumber(n string) (string, error) {
	n = strings.TrimSpace(n)
	if n == "" {
		return "", ErrEpisodeNumberRequired
	}
	return n, nil
}

// FolderName returns the folder name for episode n.
func FolderName(n string) string {
	return folderPrefix + n
}

// IsDescriptorName reports whether an object name denotes a submission descriptor.
func IsDescriptorName(name string) bool {
	return strings.Contains(name, MetadataFileName)
}
