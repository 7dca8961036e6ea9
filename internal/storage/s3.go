package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/google/uuid"
)

const (
	defaultS3UploadTTL  = 15 * time.Minute
	s3FolderContentType = "application/x-directory"
)

// S3Config holds the configuration for S3 storage.
type S3Config struct {
	Bucket          string
	Region          string
	Endpoint        string        // Optional: for custom S3-compatible endpoints
	AccessKeyID     string        // Optional: AWS access key ID
	SecretAccessKey string        // Optional: AWS secret access key
	Prefix          string        // Optional: key prefix acting as the root folder
	UploadTTL       time.Duration // Optional: lifetime of presigned upload URLs
}

// S3Storage implements Provider on an S3 bucket. Folders are key prefixes
// ending in "/", marked by an empty object; object ids are full keys.
// Upload authorizations are presigned PUT URLs, so no bearer token is issued.
type S3Storage struct {
	client   *s3.Client
	presign  *s3.PresignClient
	bucket   string
	region   string
	endpoint string
	root     string
	ttl      time.Duration
}

var _ Provider = (*S3Storage)(nil)

// NewS3Storage creates a new S3Storage instance.
func NewS3Storage(cfg S3Config) (*S3Storage, error) {
	var configOpts []func(*config.LoadOptions) error
	configOpts = append(configOpts, config.WithRegion(cfg.Region))

	// Use static credentials if provided
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		configOpts = append(configOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(context.Background(), configOpts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	var clientOpts []func(*s3.Options)
	if cfg.Endpoint != "" {
		clientOpts = append(clientOpts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		})
	}

	client := s3.NewFromConfig(awsCfg, clientOpts...)

	ttl := cfg.UploadTTL
	if ttl <= 0 {
		ttl = defaultS3UploadTTL
	}

	root := strings.Trim(cfg.Prefix, "/")
	if root != "" {
		root += "/"
	}

	return &S3Storage{
		client:   client,
		presign:  s3.NewPresignClient(client),
		bucket:   cfg.Bucket,
		region:   cfg.Region,
		endpoint: strings.TrimRight(cfg.Endpoint, "/"),
		root:     root,
		ttl:      ttl,
	}, nil
}

// RootFolderID returns the root key prefix. An empty prefix is reported as "/".
func (s *S3Storage) RootFolderID() string {
	if s.root == "" {
		return "/"
	}
	return s.root
}

// ResolveOrCreateFolder returns the prefix for name, writing a marker object
// when nothing exists under it yet.
func (s *S3Storage) ResolveOrCreateFolder(ctx context.Context, name string) (string, error) {
	name = sanitizeName(name)
	if name == "" {
		return "", ErrNameRequired
	}
	prefix := s.root + name + "/"

	out, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:  aws.String(s.bucket),
		Prefix:  aws.String(prefix),
		MaxKeys: aws.Int32(1),
	})
	if err != nil {
		return "", fmt.Errorf("search S3 folder: %w", err)
	}
	if len(out.Contents) > 0 {
		return prefix, nil
	}

	if err := s.put(ctx, prefix, s3FolderContentType, bytes.NewReader(nil)); err != nil {
		return "", fmt.Errorf("create S3 folder: %w", err)
	}
	return prefix, nil
}

// CreatePlaceholder writes an empty object under parentID. The key carries a
// random prefix so identical names never collide.
func (s *S3Storage) CreatePlaceholder(ctx context.Context, name, mimeType, parentID string) (string, error) {
	key, err := s.newKey(name, parentID)
	if err != nil {
		return "", err
	}
	if err := s.put(ctx, key, mimeType, bytes.NewReader(nil)); err != nil {
		return "", fmt.Errorf("create S3 placeholder: %w", err)
	}
	return key, nil
}

// MintUploadAuthorization presigns a PUT of objectID.
func (s *S3Storage) MintUploadAuthorization(ctx context.Context, objectID string) (UploadAuthorization, error) {
	if !s.ownsKey(objectID) || strings.HasSuffix(objectID, "/") {
		return UploadAuthorization{}, ErrInvalidObjectID
	}

	req, err := s.presign.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objectID),
	}, s3.WithPresignExpires(s.ttl))
	if err != nil {
		return UploadAuthorization{}, fmt.Errorf("presign S3 upload: %w", err)
	}

	headers := make(map[string]string)
	for k, v := range req.SignedHeader {
		if strings.EqualFold(k, "Host") || len(v) == 0 {
			continue
		}
		headers[k] = v[0]
	}

	return UploadAuthorization{
		ObjectID:  objectID,
		UploadURL: req.URL,
		Method:    req.Method,
		Headers:   headers,
		ExpiresAt: time.Now().Add(s.ttl),
	}, nil
}

// ListObjects lists keys directly under folderID, folders included.
func (s *S3Storage) ListObjects(ctx context.Context, folderID string) ([]Object, error) {
	prefix := folderID
	if prefix == "/" {
		prefix = ""
	}
	if prefix != "" && (!s.ownsKey(prefix) || !strings.HasSuffix(prefix, "/")) {
		return nil, ErrInvalidObjectID
	}

	var objects []Object
	pager := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket:    aws.String(s.bucket),
		Prefix:    aws.String(prefix),
		Delimiter: aws.String("/"),
	})
	for pager.HasMorePages() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list S3 folder: %w", err)
		}
		for _, cp := range page.CommonPrefixes {
			p := aws.ToString(cp.Prefix)
			objects = append(objects, Object{
				ID:       p,
				Name:     path.Base(strings.TrimSuffix(p, "/")),
				MimeType: FolderMimeType,
				IsFolder: true,
			})
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if key == prefix {
				continue
			}
			objects = append(objects, Object{
				ID:          key,
				Name:        path.Base(key),
				MimeType:    mime.TypeByExtension(path.Ext(key)),
				ViewLink:    s.ViewURL(key),
				CreatedTime: aws.ToTime(obj.LastModified),
			})
		}
	}

	sortNewestFirst(objects)
	return objects, nil
}

// PutObject uploads body as a new object under parentID.
func (s *S3Storage) PutObject(ctx context.Context, name, mimeType, parentID string, body io.Reader) (Object, error) {
	key, err := s.newKey(name, parentID)
	if err != nil {
		return Object{}, err
	}

	// The SDK signs the payload, which needs a seekable body.
	seeker, ok := body.(io.ReadSeeker)
	if !ok {
		data, err := io.ReadAll(body)
		if err != nil {
			return Object{}, fmt.Errorf("read upload body: %w", err)
		}
		seeker = bytes.NewReader(data)
	}

	if err := s.put(ctx, key, mimeType, seeker); err != nil {
		return Object{}, fmt.Errorf("upload to S3: %w", err)
	}

	return Object{
		ID:          key,
		Name:        path.Base(key),
		MimeType:    mimeType,
		ViewLink:    s.ViewURL(key),
		CreatedTime: time.Now().UTC(),
	}, nil
}

// Download opens objectID.
func (s *S3Storage) Download(ctx context.Context, objectID string) (io.ReadCloser, error) {
	if !s.ownsKey(objectID) {
		return nil, ErrInvalidObjectID
	}

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objectID),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, objectID)
		}
		return nil, fmt.Errorf("download from S3: %w", err)
	}
	return out.Body, nil
}

// ViewURL returns the public URL of objectID.
func (s *S3Storage) ViewURL(objectID string) string {
	segments := strings.Split(objectID, "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	escaped := strings.Join(segments, "/")

	if s.endpoint != "" {
		return fmt.Sprintf("%s/%s/%s", s.endpoint, s.bucket, escaped)
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.bucket, s.region, escaped)
}

func (s *S3Storage) put(ctx context.Context, key, contentType string, body io.ReadSeeker) error {
	input := &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   body,
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}
	_, err := s.client.PutObject(ctx, input)
	return err
}

func (s *S3Storage) newKey(name, parentID string) (string, error) {
	name = sanitizeName(name)
	if name == "" {
		return "", ErrNameRequired
	}
	parent := parentID
	if parent == "/" {
		parent = ""
	}
	if parent != "" && (!s.ownsKey(parent) || !strings.HasSuffix(parent, "/")) {
		return "", ErrInvalidObjectID
	}
	return parent + uuid.NewString() + "_" + name, nil
}

// ownsKey reports whether key lives under the root prefix and has no
// relative segments.
func (s *S3Storage) ownsKey(key string) bool {
	if key == "" || !strings.HasPrefix(key, s.root) {
		return false
	}
	for _, seg := range strings.Split(key, "/") {
		if seg == "." || seg == ".." {
			return false
		}
	}
	return true
}

// sanitizeName makes name usable as a single key or path segment.
func sanitizeName(name string) string {
	name = strings.TrimSpace(name)
	name = strings.ReplaceAll(name, "/", "-")
	name = strings.ReplaceAll(name, `\`, "-")
	if name == "." || name == ".." {
		return ""
	}
	return name
}

