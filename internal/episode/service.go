package episode

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/maauso/episode-drop/internal/storage"
)

// ListingMode controls how ListSubmissions treats per-item failures.
type ListingMode string

const (
	// ListingPartial returns every descriptor that could be read and
	// reports the rest as ItemErrors.
	ListingPartial ListingMode = "partial"
	// ListingStrict returns an empty listing as soon as any step fails.
	ListingStrict ListingMode = "strict"
)

// AuthorizeInput names the file a client is about to upload.
type AuthorizeInput struct {
	FileName string
	MimeType string
	FolderID string
}

// RecordInput contains the fields of a submission sent by the client.
type RecordInput struct {
	EpisodeNumber string
	EditingNotes  string
	AudioFileID   string
	VideoFileID   string
}

// ItemError describes a descriptor or folder that could not be read.
type ItemError struct {
	ObjectID string `json:"objectId"`
	Name     string `json:"name"`
	Error    string `json:"error"`
}

// Listing is the result of ListSubmissions.
type Listing struct {
	Submissions []Submission
	Errors      []ItemError
}

// Service implements the episode use cases over a storage.Provider.
type Service struct {
	provider storage.Provider
	logger   *slog.Logger
	now      func() time.Time
	mode     ListingMode

	mu        sync.Mutex
	lastStamp time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source used for uploadedAt stamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithListingMode sets how listing failures are reported.
func WithListingMode(mode ListingMode) Option {
	return func(s *Service) {
		if mode == ListingPartial || mode == ListingStrict {
			s.mode = mode
		}
	}
}

// NewService creates a new Service. A nil provider yields a service whose
// operations fail with ErrNotConfigured.
func NewService(provider storage.Provider, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		provider: provider,
		logger:   logger,
		now:      time.Now,
		mode:     ListingPartial,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Ready returns ErrNotConfigured when no provider is available.
func (s *Service) Ready() error {
	if s.provider == nil {
		return ErrNotConfigured
	}
	return nil
}

// ListingMode returns the configured listing mode.
func (s *Service) ListingMode() ListingMode {
	return s.mode
}

// ResolveFolder returns the folder for episodeNumber, creating it if needed.
func (s *Service) ResolveFolder(ctx context.Context, episodeNumber string) (string, error) {
	if err := s.Ready(); err != nil {
		return "", err
	}

	n, err := NormalizeEpisodeNumber(episodeNumber)
	if err != nil {
		return "", err
	}

	folderID, err := s.provider.ResolveOrCreateFolder(ctx, FolderName(n))
	if err != nil {
		return "", fmt.Errorf("resolve episode folder: %w", err)
	}

	s.logger.Info("episode folder resolved",
		slog.String("episode", n),
		slog.String("folder_id", folderID),
	)
	return folderID, nil
}

// AuthorizeUpload creates a placeholder for the file and issues a direct
// upload authorization for it.
func (s *Service) AuthorizeUpload(ctx context.Context, in AuthorizeInput) (storage.UploadAuthorization, error) {
	if err := s.Ready(); err != nil {
		return storage.UploadAuthorization{}, err
	}
	if in.FileName == "" || in.MimeType == "" || in.FolderID == "" {
		return storage.UploadAuthorization{}, ErrUploadTargetRequired
	}

	objectID, err := s.provider.CreatePlaceholder(ctx, in.FileName, in.MimeType, in.FolderID)
	if err != nil {
		return storage.UploadAuthorization{}, fmt.Errorf("create placeholder: %w", err)
	}

	auth, err := s.provider.MintUploadAuthorization(ctx, objectID)
	if err != nil {
		return storage.UploadAuthorization{}, fmt.Errorf("mint upload authorization: %w", err)
	}

	s.logger.Info("upload authorized",
		slog.String("file_id", objectID),
		slog.String("file_name", in.FileName),
		slog.String("mime_type", in.MimeType),
	)
	return auth, nil
}

// RecordSubmission writes a new metadata descriptor into the episode folder.
// Object ids are turned into view URLs without checking that the uploads
// actually landed.
func (s *Service) RecordSubmission(ctx context.Context, in RecordInput) (Submission, error) {
	if err := s.Ready(); err != nil {
		return Submission{}, err
	}

	n, err := NormalizeEpisodeNumber(in.EpisodeNumber)
	if err != nil {
		return Submission{}, err
	}

	folderID, err := s.provider.ResolveOrCreateFolder(ctx, FolderName(n))
	if err != nil {
		return Submission{}, fmt.Errorf("resolve episode folder: %w", err)
	}

	sub := Submission{
		EpisodeNumber: n,
		EditingNotes:  in.EditingNotes,
		AudioURL:      s.viewURL(in.AudioFileID),
		VideoURL:      s.viewURL(in.VideoFileID),
		UploadedAt:    s.stamp(),
	}

	data, err := sub.Encode()
	if err != nil {
		return Submission{}, err
	}

	obj, err := s.provider.PutObject(ctx, MetadataFileName, MetadataMimeType, folderID, bytes.NewReader(data))
	if err != nil {
		return Submission{}, fmt.Errorf("write metadata: %w", err)
	}

	s.logger.Info("submission recorded",
		slog.String("episode", n),
		slog.String("folder_id", folderID),
		slog.String("metadata_id", obj.ID),
	)
	return sub, nil
}

// ListSubmissions collects every descriptor in the root and in each folder
// directly below it, newest first.
func (s *Service) ListSubmissions(ctx context.Context) (Listing, error) {
	if err := s.Ready(); err != nil {
		return Listing{}, err
	}

	root, err := s.provider.ListObjects(ctx, s.provider.RootFolderID())
	if err != nil {
		return Listing{}, fmt.Errorf("list root folder: %w", err)
	}

	var (
		descriptors []storage.Object
		itemErrs    []ItemError
	)
	for _, obj := range root {
		if !obj.IsFolder {
			if IsDescriptorName(obj.Name) {
				descriptors = append(descriptors, obj)
			}
			continue
		}

		children, err := s.provider.ListObjects(ctx, obj.ID)
		if err != nil {
			if s.mode == ListingStrict {
				return Listing{}, fmt.Errorf("list folder %q: %w", obj.Name, err)
			}
			itemErrs = append(itemErrs, s.itemError(obj, err))
			continue
		}
		for _, child := range children {
			if !child.IsFolder && IsDescriptorName(child.Name) {
				descriptors = append(descriptors, child)
			}
		}
	}

	submissions := make([]Submission, 0, len(descriptors))
	for _, obj := range descriptors {
		sub, err := s.fetch(ctx, obj.ID)
		if err != nil {
			if s.mode == ListingStrict {
				return Listing{}, fmt.Errorf("read descriptor %q: %w", obj.ID, err)
			}
			itemErrs = append(itemErrs, s.itemError(obj, err))
			continue
		}
		submissions = append(submissions, sub)
	}

	sort.SliceStable(submissions, func(i, j int) bool {
		return submissions[i].UploadedAt.After(submissions[j].UploadedAt)
	})

	return Listing{Submissions: submissions, Errors: itemErrs}, nil
}

func (s *Service) fetch(ctx context.Context, objectID string) (Submission, error) {
	rc, err := s.provider.Download(ctx, objectID)
	if err != nil {
		return Submission{}, err
	}
	defer func() { _ = rc.Close() }()

	return DecodeSubmission(rc)
}

func (s *Service) itemError(obj storage.Object, err error) ItemError {
	s.logger.Warn("skipping unreadable listing item",
		slog.String("object_id", obj.ID),
		slog.String("name", obj.Name),
		slog.String("error", err.Error()),
	)
	return ItemError{ObjectID: obj.ID, Name: obj.Name, Error: err.Error()}
}

func (s *Service) viewURL(objectID string) *string {
	objectID = strings.TrimSpace(objectID)
	if objectID == "" {
		return nil
	}
	u := s.provider.ViewURL(objectID)
	return &u
}

// stamp returns the current time truncated to milliseconds, never earlier
// than a stamp issued before.
func (s *Service) stamp() time.Time {
	now := s.now().UTC().Truncate(time.Millisecond)

	s.mu.Lock()
	defer s.mu.Unlock()
	if now.Before(s.lastStamp) {
		now = s.lastStamp
	}
	s.lastStamp = now
	return now
}
