// Package storage provides the hierarchical object-storage port used by the
// episode flow, with Google Drive, S3 and local-disk implementations.
//
// Every backend models the same shape: a fixed root container holding folders,
// folders holding objects. Objects can be reserved empty (placeholders) and
// filled later by a client holding an UploadAuthorization, bypassing this
// process entirely.
package storage

import (
	"context"
	"errors"
	"io"
	"sort"
	"time"
)

// Static errors for storage operations.
var (
	// ErrNotFound is returned when an object does not exist.
	ErrNotFound = errors.New("storage: object not found")
	// ErrInvalidObjectID is returned for identifiers that do not address an object.
	ErrInvalidObjectID = errors.New("storage: invalid object id")
	// ErrNameRequired is returned when creating an object or folder without a name.
	ErrNameRequired = errors.New("storage: name is required")
)

// FolderMimeType marks folder objects in listings.
const FolderMimeType = "application/vnd.google-apps.folder"

// Object describes a folder or file in the provider namespace.
type Object struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	MimeType    string    `json:"mimeType"`
	ViewLink    string    `json:"webViewLink,omitempty"`
	ContentLink string    `json:"webContentLink,omitempty"`
	CreatedTime time.Time `json:"createdTime"`
	IsFolder    bool      `json:"isFolder"`
}

// UploadAuthorization permits a single direct upload of one object.
type UploadAuthorization struct {
	// ObjectID is the placeholder the bytes land in.
	ObjectID string
	// UploadURL receives the raw bytes.
	UploadURL string
	// Method is the HTTP method for the upload (PATCH for Drive, PUT otherwise).
	Method string
	// BearerToken goes in the Authorization header when non-empty.
	BearerToken string
	// Headers lists extra headers the upload request must carry.
	Headers map[string]string
	// ExpiresAt is when the authorization stops working, zero if unknown.
	ExpiresAt time.Time
}

// Provider is the storage port. Implementations do not retry; provider
// errors are wrapped and returned to the caller.
type Provider interface {
	// RootFolderID returns the container all episode folders live under.
	RootFolderID() string

	// ResolveOrCreateFolder returns the first folder under the root named
	// exactly name, creating it when none exists. Concurrent calls for a new
	// name may each create a folder.
	ResolveOrCreateFolder(ctx context.Context, name string) (folderID string, err error)

	// CreatePlaceholder creates an empty object in parentID and returns its id.
	CreatePlaceholder(ctx context.Context, name, mimeType, parentID string) (objectID string, err error)

	// MintUploadAuthorization issues a short-lived direct-upload grant for objectID.
	MintUploadAuthorization(ctx context.Context, objectID string) (UploadAuthorization, error)

	// ListObjects returns the non-trashed direct children of folderID, newest first.
	ListObjects(ctx context.Context, folderID string) ([]Object, error)

	// PutObject uploads body as a new object in parentID.
	PutObject(ctx context.Context, name, mimeType, parentID string, body io.Reader) (Object, error)

	// Download opens the content of objectID.
	// The caller is responsible for closing the returned ReadCloser.
	Download(ctx context.Context, objectID string) (io.ReadCloser, error)

	// ViewURL returns the public view URL for objectID without contacting the provider.
	ViewURL(objectID string) string
}

// sortNewestFirst orders objects by creation time, newest first.
func sortNewestFirst(objects []Object) {
	sort.SliceStable(objects, func(i, j int) bool {
		return objects[i].CreatedTime.After(objects[j].CreatedTime)
	})
}
