package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maauso/episode-drop/internal/episode"
	"github.com/maauso/episode-drop/internal/storage"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type testEnv struct {
	local   *storage.LocalStorage
	service *episode.Service
	router  http.Handler
}

func setupTestEnv(t *testing.T, opts ...HandlerOption) *testEnv {
	t.Helper()

	local, err := storage.NewLocalStorage(t.TempDir(), "http://localhost:8080", time.Minute)
	require.NoError(t, err)

	svc := episode.NewService(local, testLogger())
	h := NewHandlers(svc, testLogger(), opts...)

	cfg := DefaultConfig()
	cfg.StorageObjects = local.Handler()
	return &testEnv{
		local:   local,
		service: svc,
		router:  NewRouter(h, testLogger(), cfg),
	}
}

func unconfiguredRouter(opts ...HandlerOption) http.Handler {
	h := NewHandlers(episode.NewService(nil, testLogger()), testLogger(), opts...)
	return NewRouter(h, testLogger(), DefaultConfig())
}

func doJSON(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = strings.NewReader(b)
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp
}

func TestHealth(t *testing.T) {
	env := setupTestEnv(t)

	rec := doJSON(t, env.router, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp HealthResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "ok", resp.Status)
	assert.True(t, resp.Configured)

	rec = doJSON(t, unconfiguredRouter(), http.MethodGet, "/health", nil)
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.False(t, resp.Configured)
}

func TestGetUploadURL_ResolveFolder(t *testing.T) {
	env := setupTestEnv(t)

	rec := doJSON(t, env.router, http.MethodPost, "/api/get-upload-url", GetUploadURLRequest{EpisodeNumber: "42"})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp FolderResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "Episode 42", resp.FolderID)

	// Same episode resolves to the same folder.
	rec = doJSON(t, env.router, http.MethodPost, "/api/get-upload-url", GetUploadURLRequest{EpisodeNumber: "42"})
	var again FolderResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&again))
	assert.Equal(t, resp.FolderID, again.FolderID)
}

func TestGetUploadURL_Authorize(t *testing.T) {
	env := setupTestEnv(t)

	rec := doJSON(t, env.router, http.MethodPost, "/api/get-upload-url", GetUploadURLRequest{EpisodeNumber: "7"})
	var folder FolderResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&folder))

	rec = doJSON(t, env.router, http.MethodPost, "/api/get-upload-url", GetUploadURLRequest{
		FileName: "ep7.mp3",
		MimeType: "audio/mpeg",
		FolderID: folder.FolderID,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp UploadURLResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.True(t, strings.HasPrefix(resp.FileID, "Episode 7/"))
	assert.True(t, strings.HasSuffix(resp.FileID, "_ep7.mp3"))
	assert.NotEmpty(t, resp.AccessToken)
	assert.Equal(t, http.MethodPut, resp.UploadMethod)
	assert.Contains(t, resp.UploadURL, "/storage/objects?id=")
	assert.Nil(t, resp.UploadHeaders)
}

func TestGetUploadURL_Errors(t *testing.T) {
	env := setupTestEnv(t)

	tests := []struct {
		name       string
		router     http.Handler
		body       any
		wantStatus int
		wantCode   string
	}{
		{
			name:       "not configured",
			router:     unconfiguredRouter(),
			body:       GetUploadURLRequest{EpisodeNumber: "1"},
			wantStatus: http.StatusInternalServerError,
			wantCode:   codeServerNotConfigured,
		},
		{
			name:       "not configured beats invalid json",
			router:     unconfiguredRouter(),
			body:       "{broken",
			wantStatus: http.StatusInternalServerError,
			wantCode:   codeServerNotConfigured,
		},
		{
			name:       "invalid json",
			router:     env.router,
			body:       "{broken",
			wantStatus: http.StatusBadRequest,
			wantCode:   codeInvalidJSON,
		},
		{
			name:       "missing file fields",
			router:     env.router,
			body:       GetUploadURLRequest{FileName: "a.mp3"},
			wantStatus: http.StatusBadRequest,
			wantCode:   codeValidation,
		},
		{
			name:       "blank episode number",
			router:     env.router,
			body:       GetUploadURLRequest{EpisodeNumber: "   "},
			wantStatus: http.StatusBadRequest,
			wantCode:   codeValidation,
		},
		{
			name:       "unknown folder",
			router:     env.router,
			body:       GetUploadURLRequest{FileName: "a.mp3", MimeType: "audio/mpeg", FolderID: "Episode 999"},
			wantStatus: http.StatusInternalServerError,
			wantCode:   "UPLOAD_URL_FAILED",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doJSON(t, tt.router, http.MethodPost, "/api/get-upload-url", tt.body)
			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantCode, decodeError(t, rec).Code)
		})
	}
}

func TestGetUploadURL_NotConfiguredMessage(t *testing.T) {
	rec := doJSON(t, unconfiguredRouter(), http.MethodPost, "/api/get-upload-url", GetUploadURLRequest{EpisodeNumber: "1"})
	assert.Equal(t, "Server not configured", decodeError(t, rec).Error)
}

func TestUpload_RecordsMetadata(t *testing.T) {
	env := setupTestEnv(t)
	audio := "Episode 5/abc_ep5.mp3"

	rec := doJSON(t, env.router, http.MethodPost, "/api/upload", RecordRequest{
		EpisodeNumber: "5",
		EditingNotes:  "trim silence",
		AudioFileID:   &audio,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp RecordResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.True(t, resp.Success)
	assert.Equal(t, "Files uploaded successfully to Google Drive", resp.Message)
	assert.Equal(t, "5", resp.EpisodeNumber)
	require.NotNil(t, resp.AudioURL)
	assert.Equal(t, env.local.ViewURL(audio), *resp.AudioURL)
	assert.Nil(t, resp.VideoURL)

	listing, err := env.service.ListSubmissions(context.Background())
	require.NoError(t, err)
	require.Len(t, listing.Submissions, 1)
	assert.Equal(t, "trim silence", listing.Submissions[0].EditingNotes)
}

func TestUpload_NullsSerialized(t *testing.T) {
	env := setupTestEnv(t)

	rec := doJSON(t, env.router, http.MethodPost, "/api/upload",
		`{"episodeNumber":"3","editingNotes":"","audioFileId":null,"videoFileId":null}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"audioUrl":null`)
	assert.Contains(t, rec.Body.String(), `"videoUrl":null`)
}

func TestUpload_Errors(t *testing.T) {
	env := setupTestEnv(t)

	t.Run("not configured", func(t *testing.T) {
		rec := doJSON(t, unconfiguredRouter(), http.MethodPost, "/api/upload", RecordRequest{})
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		resp := decodeError(t, rec)
		assert.Equal(t, codeServerNotConfigured, resp.Code)
		assert.Equal(t, "Server not configured. Missing GOOGLE_REFRESH_TOKEN.", resp.Error)
	})

	t.Run("missing episode number", func(t *testing.T) {
		rec := doJSON(t, env.router, http.MethodPost, "/api/upload", RecordRequest{EditingNotes: "x"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		resp := decodeError(t, rec)
		assert.Equal(t, "Episode number is required", resp.Error)
		assert.Equal(t, codeValidation, resp.Code)
	})

	t.Run("invalid json", func(t *testing.T) {
		rec := doJSON(t, env.router, http.MethodPost, "/api/upload", "not json")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, codeInvalidJSON, decodeError(t, rec).Code)
	})
}

func TestUpload_AppendsDescriptors(t *testing.T) {
	env := setupTestEnv(t)

	for i := 0; i < 2; i++ {
		rec := doJSON(t, env.router, http.MethodPost, "/api/upload", RecordRequest{EpisodeNumber: "8"})
		require.Equal(t, http.StatusOK, rec.Code)
	}

	listing, err := env.service.ListSubmissions(context.Background())
	require.NoError(t, err)
	assert.Len(t, listing.Submissions, 2)
}

func TestSubmissions(t *testing.T) {
	env := setupTestEnv(t)

	doJSON(t, env.router, http.MethodPost, "/api/upload", RecordRequest{EpisodeNumber: "1"})
	doJSON(t, env.router, http.MethodPost, "/api/upload", RecordRequest{EpisodeNumber: "2"})

	rec := doJSON(t, env.router, http.MethodGet, "/api/submissions", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp SubmissionsResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, 2, resp.Total)
	require.Len(t, resp.Submissions, 2)
	assert.Equal(t, "2", resp.Submissions[0].EpisodeNumber)
	assert.Empty(t, resp.Errors)
}

func TestSubmissions_NotConfigured(t *testing.T) {
	rec := doJSON(t, unconfiguredRouter(), http.MethodGet, "/api/submissions", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"submissions":[],"errors":[],"total":0}`, rec.Body.String())
}

func TestAdminPage(t *testing.T) {
	env := setupTestEnv(t)

	rec := doJSON(t, env.router, http.MethodGet, "/admin", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rec.Body.String(), "No episodes uploaded yet")
	assert.Contains(t, rec.Body.String(), "(0 total)")

	video := "Episode 11/v_ep.mp4"
	doJSON(t, env.router, http.MethodPost, "/api/upload", RecordRequest{
		EpisodeNumber: "11",
		EditingNotes:  "<b>keep the outro</b>",
		VideoFileID:   &video,
	})

	rec = doJSON(t, env.router, http.MethodGet, "/admin", nil)
	body := rec.Body.String()
	assert.Contains(t, body, "Episode 11")
	assert.Contains(t, body, "(1 total)")
	assert.Contains(t, body, "Download Video")
	assert.NotContains(t, body, "Download Audio")
	assert.Contains(t, body, "&lt;b&gt;keep the outro&lt;/b&gt;")
}

func TestAdminPage_NotConfigured(t *testing.T) {
	rec := doJSON(t, unconfiguredRouter(), http.MethodGet, "/admin", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "No episodes uploaded yet")
}

func TestIndexPage(t *testing.T) {
	env := setupTestEnv(t)

	rec := doJSON(t, env.router, http.MethodGet, "/", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Upload Podcast Episode")
	assert.Contains(t, rec.Body.String(), "/api/get-upload-url")

	rec = doJSON(t, env.router, http.MethodGet, "/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDirectUploadThroughRouter(t *testing.T) {
	env := setupTestEnv(t)

	rec := doJSON(t, env.router, http.MethodPost, "/api/get-upload-url", GetUploadURLRequest{EpisodeNumber: "9"})
	var folder FolderResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&folder))

	rec = doJSON(t, env.router, http.MethodPost, "/api/get-upload-url", GetUploadURLRequest{
		FileName: "ep9.mp3", MimeType: "audio/mpeg", FolderID: folder.FolderID,
	})
	var auth UploadURLResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&auth))

	path := strings.TrimPrefix(auth.UploadURL, "http://localhost:8080")
	req := httptest.NewRequest(auth.UploadMethod, path, strings.NewReader("mp3-bytes"))
	req.Header.Set("Authorization", "Bearer "+auth.AccessToken)
	up := httptest.NewRecorder()
	env.router.ServeHTTP(up, req)
	require.Equal(t, http.StatusOK, up.Code)

	rc, err := env.local.Download(context.Background(), auth.FileID)
	require.NoError(t, err)
	defer func() { _ = rc.Close() }()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "mp3-bytes", string(data))
}

func TestWriteError(t *testing.T) {
	rec := httptest.NewRecorder()
	writeError(rec, http.StatusTeapot, "short and stout", "TEAPOT")

	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"error":"short and stout","code":"TEAPOT"}`, rec.Body.String())
}
