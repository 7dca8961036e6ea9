package server

import (
	"context"
	"encoding/json"
	"errors"
	"html/template"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/oauth2"

	"github.com/maauso/episode-drop/internal/episode"
)

const (
	msgServerNotConfigured  = "Server not configured"
	msgMissingRefreshToken  = "Server not configured. Missing GOOGLE_REFRESH_TOKEN."
	msgEpisodeRequired      = "Episode number is required"
	msgUploadSucceeded      = "Files uploaded successfully to Google Drive"
	codeServerNotConfigured = "SERVER_NOT_CONFIGURED"
	codeValidation          = "VALIDATION_ERROR"
	codeInvalidJSON         = "INVALID_JSON"
	maxJSONBodyBytes        = 1 << 20
)

// OAuthClient runs the consent flow used to obtain the operator credential.
type OAuthClient interface {
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (*oauth2.Token, error)
}

// Handlers contains the HTTP handlers for the API and pages.
type Handlers struct {
	service      *episode.Service
	oauth        OAuthClient
	validator    *validator.Validate
	logger       *slog.Logger
	pages        *template.Template
	cookieSecure bool
	now          func() time.Time
}

// HandlerOption is a function that configures a Handlers instance.
type HandlerOption func(*Handlers)

// WithOAuth enables the OAuth bootstrap endpoints.
func WithOAuth(client OAuthClient) HandlerOption {
	return func(h *Handlers) {
		h.oauth = client
	}
}

// WithCookieSecure marks OAuth cookies Secure.
func WithCookieSecure(secure bool) HandlerOption {
	return func(h *Handlers) {
		h.cookieSecure = secure
	}
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(service *episode.Service, logger *slog.Logger, opts ...HandlerOption) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handlers{
		service:   service,
		validator: validator.New(),
		logger:    logger,
		pages:     parsePages(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Health handles GET /health requests.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:     "ok",
		Configured: h.service.Ready() == nil,
		Time:       h.now().UTC(),
	})
}

// GetUploadURL handles POST /api/get-upload-url requests. It either resolves
// the episode folder or issues a direct upload authorization for one file.
func (h *Handlers) GetUploadURL(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Ready(); err != nil {
		writeError(w, http.StatusInternalServerError, msgServerNotConfigured, codeServerNotConfigured)
		return
	}

	var req GetUploadURLRequest
	if !h.decode(w, r, &req) {
		return
	}

	if req.EpisodeNumber != "" {
		h.resolveFolder(w, r, req.EpisodeNumber)
		return
	}

	target := UploadTargetRequest{FileName: req.FileName, MimeType: req.MimeType, FolderID: req.FolderID}
	if err := h.validator.Struct(target); err != nil {
		h.logger.Warn("request validation failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadRequest, err.Error(), codeValidation)
		return
	}

	auth, err := h.service.AuthorizeUpload(r.Context(), episode.AuthorizeInput{
		FileName: target.FileName,
		MimeType: target.MimeType,
		FolderID: target.FolderID,
	})
	if err != nil {
		h.logger.Error("failed to create upload URL",
			slog.String("folder_id", target.FolderID),
			slog.String("file_name", target.FileName),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "Failed to create upload URL", "UPLOAD_URL_FAILED")
		return
	}

	resp := UploadURLResponse{
		UploadURL:    auth.UploadURL,
		FileID:       auth.ObjectID,
		AccessToken:  auth.BearerToken,
		UploadMethod: auth.Method,
	}
	if len(auth.Headers) > 0 {
		resp.UploadHeaders = auth.Headers
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handlers) resolveFolder(w http.ResponseWriter, r *http.Request, episodeNumber string) {
	folderID, err := h.service.ResolveFolder(r.Context(), episodeNumber)
	if err != nil {
		if errors.Is(err, episode.ErrEpisodeNumberRequired) {
			writeError(w, http.StatusBadRequest, msgEpisodeRequired, codeValidation)
			return
		}
		h.logger.Error("failed to resolve episode folder",
			slog.String("episode", episodeNumber),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "Failed to create upload URL", "UPLOAD_URL_FAILED")
		return
	}

	writeJSON(w, http.StatusOK, FolderResponse{FolderID: folderID})
}

// Upload handles POST /api/upload requests by recording a metadata descriptor
// for an episode whose files were uploaded directly to storage.
func (h *Handlers) Upload(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Ready(); err != nil {
		writeError(w, http.StatusInternalServerError, msgMissingRefreshToken, codeServerNotConfigured)
		return
	}

	var req RecordRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.validator.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), codeValidation)
		return
	}

	sub, err := h.service.RecordSubmission(r.Context(), episode.RecordInput{
		EpisodeNumber: req.EpisodeNumber,
		EditingNotes:  req.EditingNotes,
		AudioFileID:   deref(req.AudioFileID),
		VideoFileID:   deref(req.VideoFileID),
	})
	if err != nil {
		if errors.Is(err, episode.ErrEpisodeNumberRequired) {
			writeError(w, http.StatusBadRequest, msgEpisodeRequired, codeValidation)
			return
		}
		h.logger.Error("failed to record submission",
			slog.String("episode", req.EpisodeNumber),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "Upload failed", "UPLOAD_FAILED")
		return
	}

	writeJSON(w, http.StatusOK, RecordResponse{
		Success:       true,
		Message:       msgUploadSucceeded,
		EpisodeNumber: sub.EpisodeNumber,
		AudioURL:      sub.AudioURL,
		VideoURL:      sub.VideoURL,
	})
}

// Submissions handles GET /api/submissions requests.
func (h *Handlers) Submissions(w http.ResponseWriter, r *http.Request) {
	listing := h.listSubmissions(r.Context())
	writeJSON(w, http.StatusOK, SubmissionsResponse{
		Submissions: listing.Submissions,
		Errors:      listing.Errors,
		Total:       len(listing.Submissions),
	})
}

// listSubmissions never fails: an unconfigured service or a listing error
// yields an empty listing.
func (h *Handlers) listSubmissions(ctx context.Context) episode.Listing {
	listing, err := h.service.ListSubmissions(ctx)
	if err != nil {
		if !errors.Is(err, episode.ErrNotConfigured) {
			h.logger.Error("error fetching submissions",
				slog.String("error", err.Error()),
			)
		}
		listing = episode.Listing{}
	}
	if listing.Submissions == nil {
		listing.Submissions = []episode.Submission{}
	}
	if listing.Errors == nil {
		listing.Errors = []episode.ItemError{}
	}
	return listing
}

// decode reads a JSON body into v, writing a 400 response on failure.
func (h *Handlers) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		h.logger.Warn("failed to decode request body",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadRequest, "invalid JSON body", codeInvalidJSON)
		return false
	}
	return true
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
	}
}

// writeError writes an error response in the standard format.
func writeError(w http.ResponseWriter, status int, message, code string) {
	writeJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}
