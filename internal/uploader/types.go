package uploader

import (
	"io"

	"github.com/maauso/episode-drop/internal/episode"
)

// File is one media file to upload.
type File struct {
	// Name is the file name stored in the episode folder.
	Name string
	// MimeType is sent as the upload content type.
	MimeType string
	// Size is the byte length of Body; zero disables percentage progress.
	Size int64
	// Body supplies the file bytes.
	Body io.Reader
}

// Submission is the input of Client.Submit.
type Submission struct {
	EpisodeNumber string
	EditingNotes  string
	Audio         *File
	Video         *File
}

// Result describes a completed submission.
type Result struct {
	EpisodeNumber string
	FolderID      string
	AudioFileID   string
	VideoFileID   string
	AudioURL      *string
	VideoURL      *string
}

// Slot names the file being uploaded.
type Slot string

const (
	// SlotAudio is the audio file.
	SlotAudio Slot = "audio"
	// SlotVideo is the video file.
	SlotVideo Slot = "video"
)

// Progress reports upload progress of the current file only.
type Progress struct {
	Slot     Slot
	FileName string
	// Percent is 0-100.
	Percent int
}

// Listing is the server's submission listing.
type Listing struct {
	Submissions []episode.Submission `json:"submissions"`
	Errors      []episode.ItemError  `json:"errors"`
	Total       int                  `json:"total"`
}

type folderRequest struct {
	EpisodeNumber string `json:"episodeNumber"`
}

type folderResponse struct {
	FolderID string `json:"folderId"`
}

type uploadURLRequest struct {
	FileName string `json:"fileName"`
	MimeType string `json:"mimeType"`
	FolderID string `json:"folderId"`
}

type uploadURLResponse struct {
	UploadURL     string            `json:"uploadUrl"`
	FileID        string            `json:"fileId"`
	AccessToken   string            `json:"accessToken"`
	UploadMethod  string            `json:"uploadMethod"`
	UploadHeaders map[string]string `json:"uploadHeaders"`
}

type recordRequest struct {
	EpisodeNumber string  `json:"episodeNumber"`
	EditingNotes  string  `json:"editingNotes"`
	AudioFileID   *string `json:"audioFileId"`
	VideoFileID   *string `json:"videoFileId"`
}

type recordResponse struct {
	Success       bool    `json:"success"`
	EpisodeNumber string  `json:"episodeNumber"`
	AudioURL      *string `json:"audioUrl"`
	VideoURL      *string `json:"videoUrl"`
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}
