package storage

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	localRootID        = "."
	defaultLocalTTL    = 15 * time.Minute
	localObjectsRoute  = "/storage/objects"
	localDirPermission = 0750
)

// ErrUploadDenied is returned when a direct upload presents a missing,
// wrong, expired or already used token.
var ErrUploadDenied = errors.New("storage: upload not authorized")

type uploadGrant struct {
	token   string
	expires time.Time
}

// LocalStorage implements Provider on local disk. Folders are directories,
// object ids are slash-separated paths relative to the base directory.
// Direct uploads go to Handler, which must be mounted at /storage/objects
// under publicURL.
type LocalStorage struct {
	baseDir   string
	publicURL string
	ttl       time.Duration
	now       func() time.Time

	mu     sync.Mutex
	grants map[string]uploadGrant
}

var _ Provider = (*LocalStorage)(nil)

// NewLocalStorage creates a new LocalStorage instance.
// The baseDir parameter is created if it doesn't exist; if empty,
// a directory under os.TempDir() is used.
func NewLocalStorage(baseDir, publicURL string, ttl time.Duration) (*LocalStorage, error) {
	if baseDir == "" {
		baseDir = filepath.Join(os.TempDir(), "episode-drop")
	}

	if err := os.MkdirAll(baseDir, localDirPermission); err != nil {
		return nil, fmt.Errorf("create storage directory: %w", err)
	}

	abs, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, fmt.Errorf("resolve storage directory: %w", err)
	}

	if ttl <= 0 {
		ttl = defaultLocalTTL
	}

	return &LocalStorage{
		baseDir:   abs,
		publicURL: strings.TrimRight(publicURL, "/"),
		ttl:       ttl,
		now:       time.Now,
		grants:    make(map[string]uploadGrant),
	}, nil
}

// BaseDir returns the directory backing the root folder.
func (s *LocalStorage) BaseDir() string {
	return s.baseDir
}

// RootFolderID returns the id of the base directory.
func (s *LocalStorage) RootFolderID() string {
	return localRootID
}

// ResolveOrCreateFolder creates the directory for name under the base
// directory when missing.
func (s *LocalStorage) ResolveOrCreateFolder(ctx context.Context, name string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("context cancelled: %w", err)
	}

	name = sanitizeName(name)
	if name == "" {
		return "", ErrNameRequired
	}

	dir := filepath.Join(s.baseDir, name)
	if err := os.MkdirAll(dir, localDirPermission); err != nil {
		return "", fmt.Errorf("create folder: %w", err)
	}
	return name, nil
}

// CreatePlaceholder creates an empty file in parentID.
func (s *LocalStorage) CreatePlaceholder(ctx context.Context, name, _ string, parentID string) (string, error) {
	id, f, err := s.create(ctx, name, parentID)
	if err != nil {
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close placeholder: %w", err)
	}
	return id, nil
}

// MintUploadAuthorization issues a random single-use token for objectID.
// Tokens live in memory only.
func (s *LocalStorage) MintUploadAuthorization(ctx context.Context, objectID string) (UploadAuthorization, error) {
	if err := ctx.Err(); err != nil {
		return UploadAuthorization{}, fmt.Errorf("context cancelled: %w", err)
	}

	p, err := s.resolve(objectID)
	if err != nil {
		return UploadAuthorization{}, err
	}
	if info, err := os.Stat(p); err != nil || info.IsDir() {
		return UploadAuthorization{}, fmt.Errorf("%w: %s", ErrNotFound, objectID)
	}

	raw := make([]byte, 16)
	if _, err := rand.Read(raw); err != nil {
		return UploadAuthorization{}, fmt.Errorf("generate upload token: %w", err)
	}
	token := hex.EncodeToString(raw)
	expires := s.now().Add(s.ttl)

	s.mu.Lock()
	s.grants[objectID] = uploadGrant{token: token, expires: expires}
	s.mu.Unlock()

	return UploadAuthorization{
		ObjectID:    objectID,
		UploadURL:   s.objectURL(objectID),
		Method:      http.MethodPut,
		BearerToken: token,
		ExpiresAt:   expires,
	}, nil
}

// ListObjects lists the entries of folderID, newest first.
func (s *LocalStorage) ListObjects(ctx context.Context, folderID string) ([]Object, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context cancelled: %w", err)
	}

	dir, err := s.resolve(folderID)
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, folderID)
		}
		return nil, fmt.Errorf("read folder: %w", err)
	}

	objects := make([]Object, 0, len(entries))
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}

		id := e.Name()
		if folderID != localRootID {
			id = path.Join(folderID, e.Name())
		}

		obj := Object{
			ID:          id,
			Name:        e.Name(),
			CreatedTime: info.ModTime().UTC(),
			IsFolder:    e.IsDir(),
		}
		if e.IsDir() {
			obj.MimeType = FolderMimeType
		} else {
			obj.MimeType = mime.TypeByExtension(filepath.Ext(e.Name()))
			obj.ViewLink = s.ViewURL(id)
			obj.ContentLink = obj.ViewLink
		}
		objects = append(objects, obj)
	}

	sortNewestFirst(objects)
	return objects, nil
}

// PutObject writes body to a new file in parentID.
func (s *LocalStorage) PutObject(ctx context.Context, name, mimeType, parentID string, body io.Reader) (Object, error) {
	id, f, err := s.create(ctx, name, parentID)
	if err != nil {
		return Object{}, err
	}

	if _, err := io.Copy(f, body); err != nil {
		_ = f.Close()
		_ = os.Remove(f.Name())
		return Object{}, fmt.Errorf("write file: %w", err)
	}

	if err := f.Close(); err != nil {
		_ = os.Remove(f.Name())
		return Object{}, fmt.Errorf("close file: %w", err)
	}

	return Object{
		ID:          id,
		Name:        path.Base(id),
		MimeType:    mimeType,
		ViewLink:    s.ViewURL(id),
		ContentLink: s.ViewURL(id),
		CreatedTime: s.now().UTC(),
	}, nil
}

// Download opens objectID.
func (s *LocalStorage) Download(ctx context.Context, objectID string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context cancelled: %w", err)
	}

	p, err := s.resolve(objectID)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(p) // #nosec G304 - path is confined to baseDir by resolve
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, objectID)
		}
		return nil, fmt.Errorf("open file: %w", err)
	}
	return f, nil
}

// ViewURL returns the URL Handler serves objectID at.
func (s *LocalStorage) ViewURL(objectID string) string {
	return s.objectURL(objectID)
}

// Handler serves direct uploads (PUT, PATCH) and downloads (GET) of objects
// addressed by the "id" query parameter.
func (s *LocalStorage) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.URL.Query().Get("id")
		switch r.Method {
		case http.MethodPut, http.MethodPatch:
			s.serveUpload(w, r, id)
		case http.MethodGet, http.MethodHead:
			s.serveDownload(w, r, id)
		default:
			w.Header().Set("Allow", "GET, HEAD, PUT, PATCH")
			writeStorageError(w, http.StatusMethodNotAllowed, "method not allowed")
		}
	})
}

func (s *LocalStorage) serveUpload(w http.ResponseWriter, r *http.Request, id string) {
	if err := s.consumeGrant(id, bearerToken(r)); err != nil {
		writeStorageError(w, http.StatusUnauthorized, err.Error())
		return
	}

	p, err := s.resolve(id)
	if err != nil {
		writeStorageError(w, http.StatusBadRequest, err.Error())
		return
	}

	// Write next to the placeholder and rename so readers never see a partial file.
	tmp, err := os.CreateTemp(filepath.Dir(p), ".upload_*")
	if err != nil {
		writeStorageError(w, http.StatusInternalServerError, "create temp file")
		return
	}
	if _, err := io.Copy(tmp, r.Body); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		writeStorageError(w, http.StatusBadRequest, "read upload body")
		return
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		writeStorageError(w, http.StatusInternalServerError, "close temp file")
		return
	}
	if err := os.Rename(tmp.Name(), p); err != nil {
		_ = os.Remove(tmp.Name())
		writeStorageError(w, http.StatusInternalServerError, "store upload")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"id": id})
}

func (s *LocalStorage) serveDownload(w http.ResponseWriter, r *http.Request, id string) {
	p, err := s.resolve(id)
	if err != nil {
		writeStorageError(w, http.StatusBadRequest, err.Error())
		return
	}

	f, err := os.Open(p) // #nosec G304 - path is confined to baseDir by resolve
	if err != nil {
		writeStorageError(w, http.StatusNotFound, "object not found")
		return
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil || info.IsDir() {
		writeStorageError(w, http.StatusNotFound, "object not found")
		return
	}

	if ct := mime.TypeByExtension(filepath.Ext(p)); ct != "" {
		w.Header().Set("Content-Type", ct)
	}
	http.ServeContent(w, r, info.Name(), info.ModTime(), f)
}

// consumeGrant checks token against the grant for id and removes it on success.
func (s *LocalStorage) consumeGrant(id, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	g, ok := s.grants[id]
	if !ok || token == "" {
		return ErrUploadDenied
	}
	if subtle.ConstantTimeCompare([]byte(g.token), []byte(token)) != 1 {
		return ErrUploadDenied
	}
	delete(s.grants, id)
	if s.now().After(g.expires) {
		return ErrUploadDenied
	}
	return nil
}

func (s *LocalStorage) create(ctx context.Context, name, parentID string) (string, *os.File, error) {
	if err := ctx.Err(); err != nil {
		return "", nil, fmt.Errorf("context cancelled: %w", err)
	}

	name = sanitizeName(name)
	if name == "" {
		return "", nil, ErrNameRequired
	}

	dir, err := s.resolve(parentID)
	if err != nil {
		return "", nil, err
	}
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return "", nil, fmt.Errorf("%w: %s", ErrNotFound, parentID)
	}

	fileName := uuid.NewString() + "_" + name
	f, err := os.OpenFile(filepath.Join(dir, fileName), os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0640)
	if err != nil {
		return "", nil, fmt.Errorf("create file: %w", err)
	}

	id := fileName
	if parentID != localRootID {
		id = path.Join(parentID, fileName)
	}
	return id, f, nil
}

// resolve maps an object id to a path inside baseDir, rejecting anything
// that would escape it.
func (s *LocalStorage) resolve(id string) (string, error) {
	if id == localRootID {
		return s.baseDir, nil
	}
	if id == "" || strings.Contains(id, `\`) || path.IsAbs(id) {
		return "", ErrInvalidObjectID
	}
	clean := path.Clean(id)
	if clean != id || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", ErrInvalidObjectID
	}
	return filepath.Join(s.baseDir, filepath.FromSlash(clean)), nil
}

func (s *LocalStorage) objectURL(id string) string {
	return s.publicURL + localObjectsRoute + "?id=" + url.QueryEscape(id)
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

func writeStorageError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
