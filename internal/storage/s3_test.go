package storage

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestS3(t *testing.T, endpoint, prefix string) *S3Storage {
	t.Helper()

	storage, err := NewS3Storage(S3Config{
		Bucket:          "test-bucket",
		Region:          "us-east-1",
		Endpoint:        endpoint,
		AccessKeyID:     "test-access-key",
		SecretAccessKey: "test-secret-key",
		Prefix:          prefix,
		UploadTTL:       10 * time.Minute,
	})
	require.NoError(t, err)
	return storage
}

func TestNewS3Storage(t *testing.T) {
	storage := newTestS3(t, "http://localhost:4566", "/podcast/")

	assert.Equal(t, "test-bucket", storage.bucket)
	assert.Equal(t, "us-east-1", storage.region)
	assert.Equal(t, "podcast/", storage.RootFolderID())
	assert.Equal(t, 10*time.Minute, storage.ttl)
}

func TestS3Storage_RootWithoutPrefix(t *testing.T) {
	storage := newTestS3(t, "", "")
	assert.Equal(t, "/", storage.RootFolderID())
}

func TestS3Storage_MintUploadAuthorization(t *testing.T) {
	// Presigning is local; no server is contacted.
	storage := newTestS3(t, "http://localhost:4566", "podcast")

	auth, err := storage.MintUploadAuthorization(context.Background(), "podcast/Episode 1/abc_ep1.mp3")
	require.NoError(t, err)

	assert.Equal(t, http.MethodPut, auth.Method)
	assert.Empty(t, auth.BearerToken)
	assert.Equal(t, "podcast/Episode 1/abc_ep1.mp3", auth.ObjectID)
	assert.True(t, auth.ExpiresAt.After(time.Now()))

	u, err := url.Parse(auth.UploadURL)
	require.NoError(t, err)
	assert.Equal(t, "/test-bucket/podcast/Episode%201/abc_ep1.mp3", u.EscapedPath())
	assert.NotEmpty(t, u.Query().Get("X-Amz-Signature"))
	assert.Equal(t, "600", u.Query().Get("X-Amz-Expires"))
	_, hasHost := auth.Headers["Host"]
	assert.False(t, hasHost)
}

func TestS3Storage_MintUploadAuthorization_RejectsForeignKeys(t *testing.T) {
	storage := newTestS3(t, "http://localhost:4566", "podcast")
	ctx := context.Background()

	for _, key := range []string{"", "other/file.mp3", "podcast/../secret", "podcast/Episode 1/"} {
		_, err := storage.MintUploadAuthorization(ctx, key)
		assert.ErrorIs(t, err, ErrInvalidObjectID, key)
	}
}

func TestS3Storage_CreatePlaceholder_MockServer(t *testing.T) {
	var (
		mu   sync.Mutex
		puts []string
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			t.Errorf("expected PUT method, got %s", r.Method)
		}
		mu.Lock()
		puts = append(puts, r.URL.Path+"|"+r.Header.Get("Content-Type"))
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	storage := newTestS3(t, server.URL, "podcast")

	key, err := storage.CreatePlaceholder(context.Background(), "ep1.mp3", "audio/mpeg", "podcast/Episode 1/")
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(key, "podcast/Episode 1/"))
	assert.True(t, strings.HasSuffix(key, "_ep1.mp3"))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, puts, 1)
	assert.Equal(t, "/test-bucket/"+key+"|audio/mpeg", puts[0])
}

func TestS3Storage_CreatePlaceholder_Validation(t *testing.T) {
	storage := newTestS3(t, "http://localhost:4566", "podcast")
	ctx := context.Background()

	_, err := storage.CreatePlaceholder(ctx, "  ", "audio/mpeg", "podcast/")
	assert.ErrorIs(t, err, ErrNameRequired)

	_, err = storage.CreatePlaceholder(ctx, "a.mp3", "audio/mpeg", "elsewhere/")
	assert.ErrorIs(t, err, ErrInvalidObjectID)
}

func TestS3Storage_ResolveOrCreateFolder_MockServer(t *testing.T) {
	t.Run("existing prefix", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodGet {
				t.Errorf("unexpected %s request", r.Method)
			}
			assert.Equal(t, "podcast/Episode 5/", r.URL.Query().Get("prefix"))
			w.Header().Set("Content-Type", "application/xml")
			_, _ = io.WriteString(w, `<?xml version="1.0" encoding="UTF-8"?>
<ListBucketResult xmlns="http://s3.amazonaws.com/doc/2006-03-01/">
  <Name>test-bucket</Name><Prefix>podcast/Episode 5/</Prefix><KeyCount>1</KeyCount><MaxKeys>1</MaxKeys><IsTruncated>false</IsTruncated>
  <Contents><Key>podcast/Episode 5/</Key><LastModified>2024-01-01T00:00:00.000Z</LastModified><Size>0</Size></Contents>
</ListBucketResult>`)
		}))
		defer server.Close()

		storage := newTestS3(t, server.URL, "podcast")
		id, err := storage.ResolveOrCreateFolder(context.Background(), "Episode 5")
		require.NoError(t, err)
		assert.Equal(t, "podcast/Episode 5/", id)
	})

	t.Run("creates marker", func(t *testing.T) {
		var putPath string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodPut {
				putPath = r.URL.Path
				w.WriteHeader(http.StatusOK)
				return
			}
			w.Header().Set("Content-Type", "application/xml")
			_, _ = io.WriteString(w, `<?xml version="1.0" encoding="UTF-8"?>
<ListBucketResult xmlns="http://s3.amazonaws.com/doc/2006-03-01/">
  <Name>test-bucket</Name><Prefix>podcast/Episode 6/</Prefix><KeyCount>0</KeyCount><MaxKeys>1</MaxKeys><IsTruncated>false</IsTruncated>
</ListBucketResult>`)
		}))
		defer server.Close()

		storage := newTestS3(t, server.URL, "podcast")
		id, err := storage.ResolveOrCreateFolder(context.Background(), "Episode 6")
		require.NoError(t, err)
		assert.Equal(t, "podcast/Episode 6/", id)
		assert.Equal(t, "/test-bucket/podcast/Episode 6/", putPath)
	})
}

func TestS3Storage_ListObjects_MockServer(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/", r.URL.Query().Get("delimiter"))
		w.Header().Set("Content-Type", "application/xml")
		_, _ = io.WriteString(w, `<?xml version="1.0" encoding="UTF-8"?>
<ListBucketResult xmlns="http://s3.amazonaws.com/doc/2006-03-01/">
  <Name>test-bucket</Name><Prefix>podcast/</Prefix><Delimiter>/</Delimiter><KeyCount>4</KeyCount><MaxKeys>1000</MaxKeys><IsTruncated>false</IsTruncated>
  <Contents><Key>podcast/</Key><LastModified>2023-12-01T00:00:00.000Z</LastModified><Size>0</Size></Contents>
  <Contents><Key>podcast/a_metadata.json</Key><LastModified>2024-01-01T00:00:00.000Z</LastModified><Size>10</Size></Contents>
  <Contents><Key>podcast/b_metadata.json</Key><LastModified>2024-02-01T00:00:00.000Z</LastModified><Size>10</Size></Contents>
  <CommonPrefixes><Prefix>podcast/Episode 1/</Prefix></CommonPrefixes>
</ListBucketResult>`)
	}))
	defer server.Close()

	storage := newTestS3(t, server.URL, "podcast")
	objects, err := storage.ListObjects(context.Background(), "podcast/")
	require.NoError(t, err)
	require.Len(t, objects, 3)

	assert.Equal(t, "b_metadata.json", objects[0].Name)
	assert.Equal(t, "application/json", objects[0].MimeType)
	assert.Equal(t, "a_metadata.json", objects[1].Name)
	assert.Equal(t, "podcast/Episode 1/", objects[2].ID)
	assert.Equal(t, "Episode 1", objects[2].Name)
	assert.True(t, objects[2].IsFolder)
}

func TestS3Storage_DownloadNotFound_MockServer(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/xml")
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `<?xml version="1.0" encoding="UTF-8"?>
<Error><Code>NoSuchKey</Code><Message>The specified key does not exist.</Message></Error>`)
	}))
	defer server.Close()

	storage := newTestS3(t, server.URL, "podcast")
	_, err := storage.Download(context.Background(), "podcast/missing.json")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestS3Storage_ViewURL(t *testing.T) {
	aws := newTestS3(t, "", "")
	assert.Equal(t,
		"https://test-bucket.s3.us-east-1.amazonaws.com/Episode%201/abc_ep1.mp3",
		aws.ViewURL("Episode 1/abc_ep1.mp3"))

	custom := newTestS3(t, "http://localhost:4566/", "")
	assert.Equal(t, "http://localhost:4566/test-bucket/key.json", custom.ViewURL("key.json"))
}

func TestSanitizeName(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"ep1.mp3", "ep1.mp3"},
		{"  ep1.mp3 ", "ep1.mp3"},
		{"a/b.mp3", "a-b.mp3"},
		{`a\b.mp3`, "a-b.mp3"},
		{"..", ""},
		{".", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, sanitizeName(tt.input))
		})
	}
}
