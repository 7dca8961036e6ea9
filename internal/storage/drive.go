package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const (
	defaultDriveUploadBase = "https://www.googleapis.com"
	driveViewURLFormat     = "https://drive.google.com/file/d/%s/view"
	driveListFields        = "nextPageToken, files(id, name, mimeType, webViewLink, webContentLink, createdTime)"
	driveObjectFields      = "id, name, mimeType, webViewLink, webContentLink, createdTime"
	driveListPageSize      = 100
)

// Static errors for the Drive backend.
var (
	// ErrDriveRootRequired is returned when no root folder id is configured.
	ErrDriveRootRequired = errors.New("storage: drive root folder id is required")
	// ErrTokenFuncRequired is returned when no token minting function is configured.
	ErrTokenFuncRequired = errors.New("storage: drive token function is required")
)

// TokenFunc mints a short-lived access token. It is called once per operation.
type TokenFunc func(ctx context.Context) (*oauth2.Token, error)

// DriveConfig holds the configuration for Drive storage.
type DriveConfig struct {
	RootFolderID string
	Token        TokenFunc
	Endpoint     string // Optional: Drive API base URL (tests, emulators)
	UploadBase   string // Optional: host for direct media uploads
}

// DriveStorage implements Provider on top of the Drive v3 API, restricted to
// the drive.file scope.
type DriveStorage struct {
	root       string
	token      TokenFunc
	endpoint   string
	uploadBase string
}

var _ Provider = (*DriveStorage)(nil)

// NewDriveStorage creates a new DriveStorage instance.
func NewDriveStorage(cfg DriveConfig) (*DriveStorage, error) {
	if cfg.RootFolderID == "" {
		return nil, ErrDriveRootRequired
	}
	if cfg.Token == nil {
		return nil, ErrTokenFuncRequired
	}

	uploadBase := cfg.UploadBase
	if uploadBase == "" {
		uploadBase = defaultDriveUploadBase
	}

	return &DriveStorage{
		root:       cfg.RootFolderID,
		token:      cfg.Token,
		endpoint:   cfg.Endpoint,
		uploadBase: strings.TrimRight(uploadBase, "/"),
	}, nil
}

// RootFolderID returns the configured root folder.
func (d *DriveStorage) RootFolderID() string {
	return d.root
}

// service mints a token and builds a Drive client bound to it. No client
// state outlives the call.
func (d *DriveStorage) service(ctx context.Context) (*drive.Service, *oauth2.Token, error) {
	tok, err := d.token(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("mint drive token: %w", err)
	}

	opts := []option.ClientOption{option.WithTokenSource(oauth2.StaticTokenSource(tok))}
	if d.endpoint != "" {
		opts = append(opts, option.WithEndpoint(strings.TrimRight(d.endpoint, "/")+"/"))
	}

	svc, err := drive.NewService(ctx, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("create drive service: %w", err)
	}
	return svc, tok, nil
}

// ResolveOrCreateFolder searches the root for a folder named name and
// creates one when the search comes back empty.
func (d *DriveStorage) ResolveOrCreateFolder(ctx context.Context, name string) (string, error) {
	if name == "" {
		return "", ErrNameRequired
	}

	svc, _, err := d.service(ctx)
	if err != nil {
		return "", err
	}

	q := fmt.Sprintf("name='%s' and '%s' in parents and mimeType='%s' and trashed=false",
		escapeDriveQuery(name), escapeDriveQuery(d.root), FolderMimeType)
	found, err := svc.Files.List().
		Q(q).
		Fields("files(id, name)").
		PageSize(1).
		Context(ctx).
		Do()
	if err != nil {
		return "", fmt.Errorf("search drive folder: %w", err)
	}
	if len(found.Files) > 0 && found.Files[0].Id != "" {
		return found.Files[0].Id, nil
	}

	created, err := svc.Files.Create(&drive.File{
		Name:     name,
		MimeType: FolderMimeType,
		Parents:  []string{d.root},
	}).Fields("id").Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("create drive folder: %w", err)
	}
	return created.Id, nil
}

// CreatePlaceholder creates an empty file record in parentID.
func (d *DriveStorage) CreatePlaceholder(ctx context.Context, name, mimeType, parentID string) (string, error) {
	if name == "" {
		return "", ErrNameRequired
	}

	svc, _, err := d.service(ctx)
	if err != nil {
		return "", err
	}

	created, err := svc.Files.Create(&drive.File{
		Name:     name,
		MimeType: mimeType,
		Parents:  []string{parentID},
	}).Fields("id").Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("create drive placeholder: %w", err)
	}
	return created.Id, nil
}

// MintUploadAuthorization refreshes the credential into an access token and
// points it at the media upload endpoint of objectID.
func (d *DriveStorage) MintUploadAuthorization(ctx context.Context, objectID string) (UploadAuthorization, error) {
	if objectID == "" {
		return UploadAuthorization{}, ErrInvalidObjectID
	}

	tok, err := d.token(ctx)
	if err != nil {
		return UploadAuthorization{}, fmt.Errorf("mint drive token: %w", err)
	}

	return UploadAuthorization{
		ObjectID:    objectID,
		UploadURL:   fmt.Sprintf("%s/upload/drive/v3/files/%s?uploadType=media", d.uploadBase, url.PathEscape(objectID)),
		Method:      http.MethodPatch,
		BearerToken: tok.AccessToken,
		ExpiresAt:   tok.Expiry,
	}, nil
}

// ListObjects lists the non-trashed children of folderID, following page tokens.
func (d *DriveStorage) ListObjects(ctx context.Context, folderID string) ([]Object, error) {
	svc, _, err := d.service(ctx)
	if err != nil {
		return nil, err
	}

	q := fmt.Sprintf("'%s' in parents and trashed=false", escapeDriveQuery(folderID))
	var objects []Object
	pageToken := ""
	for {
		call := svc.Files.List().
			Q(q).
			Fields(driveListFields).
			OrderBy("createdTime desc").
			PageSize(driveListPageSize).
			Context(ctx)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}

		page, err := call.Do()
		if err != nil {
			return nil, fmt.Errorf("list drive folder: %w", err)
		}
		for _, f := range page.Files {
			objects = append(objects, driveObject(f))
		}

		if page.NextPageToken == "" {
			break
		}
		pageToken = page.NextPageToken
	}

	sortNewestFirst(objects)
	return objects, nil
}

// PutObject uploads body as a new file in parentID.
func (d *DriveStorage) PutObject(ctx context.Context, name, mimeType, parentID string, body io.Reader) (Object, error) {
	if name == "" {
		return Object{}, ErrNameRequired
	}

	svc, _, err := d.service(ctx)
	if err != nil {
		return Object{}, err
	}

	created, err := svc.Files.Create(&drive.File{
		Name:     name,
		MimeType: mimeType,
		Parents:  []string{parentID},
	}).
		Media(body, googleapi.ContentType(mimeType)).
		Fields(driveObjectFields).
		Context(ctx).
		Do()
	if err != nil {
		return Object{}, fmt.Errorf("upload drive file: %w", err)
	}
	return driveObject(created), nil
}

// Download opens the media content of objectID.
func (d *DriveStorage) Download(ctx context.Context, objectID string) (io.ReadCloser, error) {
	if objectID == "" {
		return nil, ErrInvalidObjectID
	}

	svc, _, err := d.service(ctx)
	if err != nil {
		return nil, err
	}

	resp, err := svc.Files.Get(objectID).Context(ctx).Download()
	if err != nil {
		var gerr *googleapi.Error
		if errors.As(err, &gerr) && gerr.Code == http.StatusNotFound {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, objectID)
		}
		return nil, fmt.Errorf("download drive file: %w", err)
	}
	return resp.Body, nil
}

// ViewURL returns the Drive web viewer URL for objectID.
func (d *DriveStorage) ViewURL(objectID string) string {
	return fmt.Sprintf(driveViewURLFormat, objectID)
}

func driveObject(f *drive.File) Object {
	created, _ := time.Parse(time.RFC3339, f.CreatedTime)
	return Object{
		ID:          f.Id,
		Name:        f.Name,
		MimeType:    f.MimeType,
		ViewLink:    f.WebViewLink,
		ContentLink: f.WebContentLink,
		CreatedTime: created,
		IsFolder:    f.MimeType == FolderMimeType,
	}
}

// escapeDriveQuery escapes a literal for use inside a single-quoted Drive query string.
func escapeDriveQuery(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `'`, `\'`)
}
