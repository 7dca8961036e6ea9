package uploader

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
)

// Static errors for uploader operations.
var (
	// ErrBaseURLRequired is returned when the server URL is not provided.
	ErrBaseURLRequired = errors.New("uploader: base URL is required")
	// ErrEpisodeNumberRequired is returned when a submission has no episode number.
	ErrEpisodeNumberRequired = errors.New("uploader: episode number is required")
	// ErrNoFiles is returned when a submission carries neither audio nor video.
	ErrNoFiles = errors.New("uploader: at least one file is required")
	// ErrFileBodyRequired is returned when a file has no body.
	ErrFileBodyRequired = errors.New("uploader: file body is required")
	// ErrBusy is returned when a submission is started while another is in flight
	// or a finished one has not been reset.
	ErrBusy = errors.New("uploader: submission already in progress")
	// ErrUploadFailed wraps every failure that moves the client to FAILED.
	ErrUploadFailed = errors.New("uploader: upload failed")
	// ErrRequestFailed is returned when a request fails with a non-2xx status code.
	ErrRequestFailed = errors.New("uploader: request failed")
	// ErrNoUploadURL is returned when the server authorizes an upload without a URL.
	ErrNoUploadURL = errors.New("uploader: no upload URL returned")
)

const defaultUploadMethod = http.MethodPatch

// Client drives one submission at a time through the upload flow.
// It is safe for concurrent use; concurrent Submit calls fail with ErrBusy.
type Client struct {
	baseURL    string
	httpClient *http.Client
	onProgress func(Progress)
	onState    func(State)

	mu       sync.Mutex
	state    State
	progress Progress
}

// ClientOption is a function that configures a Client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(cl *Client) {
		cl.httpClient = c
	}
}

// WithProgress registers a callback invoked as file bytes are sent.
func WithProgress(fn func(Progress)) ClientOption {
	return func(cl *Client) {
		cl.onProgress = fn
	}
}

// WithStateListener registers a callback invoked after every state change.
func WithStateListener(fn func(State)) ClientOption {
	return func(cl *Client) {
		cl.onState = fn
	}
}

// NewClient creates a Client for the server at baseURL.
func NewClient(baseURL string, opts ...ClientOption) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, ErrBaseURLRequired
	}

	c := &Client{
		baseURL: baseURL,
		// No client timeout: large uploads are bounded by the caller's context.
		httpClient: &http.Client{},
		state:      StateIdle,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// State returns the current state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Progress returns the progress of the file currently being uploaded.
func (c *Client) Progress() Progress {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.progress
}

// Reset returns a finished client to IDLE. It is a no-op when already idle.
func (c *Client) Reset() error {
	c.mu.Lock()
	switch {
	case c.state == StateIdle:
		c.mu.Unlock()
		return nil
	case !c.state.IsTerminal():
		c.mu.Unlock()
		return ErrBusy
	}
	c.state = StateIdle
	c.progress = Progress{}
	c.mu.Unlock()

	c.notifyState(StateIdle)
	return nil
}

// Submit uploads the submission's files and records its metadata.
// Validation errors leave the state unchanged. Any later failure moves the
// client to FAILED and is returned wrapped in ErrUploadFailed. Nothing is retried.
func (c *Client) Submit(ctx context.Context, sub Submission) (Result, error) {
	if err := validate(sub); err != nil {
		return Result{}, err
	}
	number := strings.TrimSpace(sub.EpisodeNumber)

	c.mu.Lock()
	if c.state != StateIdle {
		c.mu.Unlock()
		return Result{}, ErrBusy
	}
	c.state = StateRequestingFolder
	c.progress = Progress{}
	c.mu.Unlock()
	c.notifyState(StateRequestingFolder)

	res, err := c.run(ctx, number, sub)
	if err != nil {
		c.fail()
		return Result{}, fmt.Errorf("%w: %w", ErrUploadFailed, err)
	}
	return res, nil
}

func validate(sub Submission) error {
	if strings.TrimSpace(sub.EpisodeNumber) == "" {
		return ErrEpisodeNumberRequired
	}
	if sub.Audio == nil && sub.Video == nil {
		return ErrNoFiles
	}
	for _, f := range []*File{sub.Audio, sub.Video} {
		if f != nil && f.Body == nil {
			return ErrFileBodyRequired
		}
	}
	return nil
}

func (c *Client) run(ctx context.Context, number string, sub Submission) (Result, error) {
	var folder folderResponse
	if err := c.postJSON(ctx, "/api/get-upload-url", folderRequest{EpisodeNumber: number}, &folder); err != nil {
		return Result{}, fmt.Errorf("resolve folder: %w", err)
	}

	res := Result{EpisodeNumber: number, FolderID: folder.FolderID}
	record := recordRequest{EpisodeNumber: number, EditingNotes: sub.EditingNotes}

	if sub.Audio != nil {
		if err := c.transition(StateUploadingAudio); err != nil {
			return Result{}, err
		}
		id, err := c.uploadFile(ctx, SlotAudio, folder.FolderID, sub.Audio)
		if err != nil {
			return Result{}, fmt.Errorf("upload audio: %w", err)
		}
		res.AudioFileID = id
		record.AudioFileID = &id
	}

	if sub.Video != nil {
		if err := c.transition(StateUploadingVideo); err != nil {
			return Result{}, err
		}
		id, err := c.uploadFile(ctx, SlotVideo, folder.FolderID, sub.Video)
		if err != nil {
			return Result{}, fmt.Errorf("upload video: %w", err)
		}
		res.VideoFileID = id
		record.VideoFileID = &id
	}

	if err := c.transition(StateRecordingMetadata); err != nil {
		return Result{}, err
	}
	var recorded recordResponse
	if err := c.postJSON(ctx, "/api/upload", record, &recorded); err != nil {
		return Result{}, fmt.Errorf("record submission: %w", err)
	}
	res.AudioURL = recorded.AudioURL
	res.VideoURL = recorded.VideoURL

	if err := c.transition(StateSuccess); err != nil {
		return Result{}, err
	}
	return res, nil
}

// uploadFile authorizes and streams one file, returning its object ID.
func (c *Client) uploadFile(ctx context.Context, slot Slot, folderID string, f *File) (string, error) {
	var auth uploadURLResponse
	err := c.postJSON(ctx, "/api/get-upload-url", uploadURLRequest{
		FileName: f.Name,
		MimeType: f.MimeType,
		FolderID: folderID,
	}, &auth)
	if err != nil {
		return "", fmt.Errorf("authorize: %w", err)
	}
	if auth.UploadURL == "" {
		return "", ErrNoUploadURL
	}

	method := auth.UploadMethod
	if method == "" {
		method = defaultUploadMethod
	}

	c.setProgress(Progress{Slot: slot, FileName: f.Name})
	body := &progressReader{r: f.Body, size: f.Size, report: func(pct int) {
		c.setProgress(Progress{Slot: slot, FileName: f.Name, Percent: pct})
	}}

	req, err := http.NewRequestWithContext(ctx, method, auth.UploadURL, body)
	if err != nil {
		return "", fmt.Errorf("create upload request: %w", err)
	}
	if f.Size > 0 {
		req.ContentLength = f.Size
	}
	if f.MimeType != "" {
		req.Header.Set("Content-Type", f.MimeType)
	}
	if auth.AccessToken != "" {
		req.Header.Set("Authorization", "Bearer "+auth.AccessToken)
	}
	for k, v := range auth.UploadHeaders {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("send file: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("%w with status %d: %s", ErrRequestFailed, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)

	c.setProgress(Progress{Slot: slot, FileName: f.Name, Percent: 100})
	return auth.FileID, nil
}

// Submissions fetches the submission listing from the server.
// It does not touch the upload state.
func (c *Client) Submissions(ctx context.Context) (Listing, error) {
	var listing Listing
	if err := c.doJSON(ctx, http.MethodGet, "/api/submissions", nil, &listing); err != nil {
		return Listing{}, err
	}
	return listing, nil
}

func (c *Client) postJSON(ctx context.Context, path string, in, out any) error {
	return c.doJSON(ctx, http.MethodPost, path, in, out)
}

func (c *Client) doJSON(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr errorResponse
		if err := json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&apiErr); err != nil || apiErr.Error == "" {
			return fmt.Errorf("%w with status %d", ErrRequestFailed, resp.StatusCode)
		}
		return fmt.Errorf("%w with status %d: %s (%s)", ErrRequestFailed, resp.StatusCode, apiErr.Error, apiErr.Code)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) transition(to State) error {
	c.mu.Lock()
	if !canTransition(c.state, to) {
		from := c.state
		c.mu.Unlock()
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	c.state = to
	c.mu.Unlock()

	c.notifyState(to)
	return nil
}

func (c *Client) fail() {
	c.mu.Lock()
	c.progress = Progress{}
	if !canTransition(c.state, StateFailed) {
		c.mu.Unlock()
		return
	}
	c.state = StateFailed
	c.mu.Unlock()

	c.notifyState(StateFailed)
}

func (c *Client) setProgress(p Progress) {
	c.mu.Lock()
	c.progress = p
	c.mu.Unlock()

	if c.onProgress != nil {
		c.onProgress(p)
	}
}

func (c *Client) notifyState(s State) {
	if c.onState != nil {
		c.onState(s)
	}
}

// progressReader reports whole-percent changes while the body is read.
type progressReader struct {
	r      io.Reader
	size   int64
	read   int64
	last   int
	report func(int)
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	p.read += int64(n)
	if p.size > 0 && n > 0 {
		pct := int(p.read * 100 / p.size)
		if pct > 100 {
			pct = 100
		}
		// 100 is reported once the storage acknowledges the upload.
		if pct > p.last && pct < 100 {
			p.last = pct
			p.report(pct)
		}
	}
	return n, err
}
