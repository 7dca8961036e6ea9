// Package mediainfo inspects local media files before they are uploaded.
package mediainfo

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dhowden/tag"
	"github.com/gabriel-vasile/mimetype"
	"github.com/tcolgate/mp3"
)

// ErrNotAFile is returned when the probed path is a directory.
var ErrNotAFile = errors.New("mediainfo: path is not a regular file")

const genericMimeType = "application/octet-stream"

// extensionTypes covers media extensions that the platform MIME table often lacks.
var extensionTypes = map[string]string{
	".mp3":  "audio/mpeg",
	".m4a":  "audio/mp4",
	".aac":  "audio/aac",
	".wav":  "audio/wav",
	".flac": "audio/flac",
	".ogg":  "audio/ogg",
	".opus": "audio/opus",
	".mp4":  "video/mp4",
	".m4v":  "video/x-m4v",
	".mov":  "video/quicktime",
	".mkv":  "video/x-matroska",
	".webm": "video/webm",
}

// Info describes a media file.
type Info struct {
	Name     string
	Size     int64
	MimeType string
	// Title falls back to the file name without extension.
	Title  string
	Artist string
	Album  string
	// Duration is only computed for MP3 files; zero when unknown.
	Duration    time.Duration
	BitrateKbps int
}

// IsAudio reports whether the file has an audio MIME type.
func (i Info) IsAudio() bool {
	return strings.HasPrefix(i.MimeType, "audio/")
}

// IsVideo reports whether the file has a video MIME type.
func (i Info) IsVideo() bool {
	return strings.HasPrefix(i.MimeType, "video/")
}

// Probe inspects the file at path. Unreadable tags or frames leave the
// matching fields empty; only a missing or non-regular file is an error.
func Probe(path string) (Info, error) {
	st, err := os.Stat(path)
	if err != nil {
		return Info{}, fmt.Errorf("stat media file: %w", err)
	}
	if st.IsDir() {
		return Info{}, fmt.Errorf("%w: %s", ErrNotAFile, path)
	}

	name := filepath.Base(path)
	info := Info{
		Name:     name,
		Size:     st.Size(),
		MimeType: DetectMimeType(path),
	}

	info.Title, info.Artist, info.Album = readTags(path)
	if info.Title == "" {
		info.Title = strings.TrimSuffix(name, filepath.Ext(name))
	}

	if info.MimeType == "audio/mpeg" {
		if d, err := mp3Duration(path); err == nil && d > 0 {
			info.Duration = d
			if kbps := int(float64(st.Size()) * 8 / d.Seconds() / 1000); kbps > 0 {
				info.BitrateKbps = kbps
			}
		}
	}
	return info, nil
}

// DetectMimeType sniffs the file content and falls back to the extension
// when the content is not recognised as media.
func DetectMimeType(path string) string {
	byExt := TypeByExtension(path)

	m, err := mimetype.DetectFile(path)
	if err != nil {
		return byExt
	}
	detected, _, _ := strings.Cut(m.String(), ";")
	if isMedia(detected) {
		return detected
	}
	if byExt != genericMimeType {
		return byExt
	}
	return detected
}

// TypeByExtension returns the MIME type for the file extension of name.
func TypeByExtension(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	if t, ok := extensionTypes[ext]; ok {
		return t
	}
	if t := mime.TypeByExtension(ext); t != "" {
		t, _, _ = strings.Cut(t, ";")
		return t
	}
	return genericMimeType
}

func isMedia(mimeType string) bool {
	return strings.HasPrefix(mimeType, "audio/") || strings.HasPrefix(mimeType, "video/")
}

func readTags(path string) (title, artist, album string) {
	f, err := os.Open(path)
	if err != nil {
		return "", "", ""
	}
	defer func() { _ = f.Close() }()

	meta, err := tag.ReadFrom(f)
	if err != nil {
		return "", "", ""
	}
	return strings.TrimSpace(meta.Title()), strings.TrimSpace(meta.Artist()), strings.TrimSpace(meta.Album())
}

func mp3Duration(path string) (time.Duration, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer func() { _ = f.Close() }()

	decoder := mp3.NewDecoder(f)
	var (
		frame   mp3.Frame
		skipped int
		total   time.Duration
	)
	for {
		if err := decoder.Decode(&frame, &skipped); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return 0, err
		}
		total += frame.Duration()
	}
	return total, nil
}
