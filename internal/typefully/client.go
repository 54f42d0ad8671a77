// internal/typefully/client.go
package typefully

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/rovshanmuradov/hyperfeed/internal/thread"
)

const (
	DefaultBaseURL           = "https://api.typefully.com/v2"
	DefaultTimeout           = 30 * time.Second
	DefaultUploadTimeout     = 120 * time.Second
	DefaultMediaPollAttempts = 10
	DefaultMediaPollInterval = time.Second

	pingTimeout = 10 * time.Second
	timeLayout  = "2006-01-02T15:04:05Z"

	mediaReady  = "ready"
	mediaFailed = "failed"
)

var (
	// ErrNoPosts is returned when there is nothing to publish.
	ErrNoPosts = errors.New("no posts to publish")
	// ErrNoSocialSets is returned when the account has no connected social sets.
	ErrNoSocialSets = errors.New("no social sets found, connect an account at typefully.com")
)

// APIError carries the remote status and body verbatim.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("typefully http %d: %s", e.StatusCode, e.Body)
}

// SocialSet is a connected publishing account.
type SocialSet struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
}

// ID accepts both numeric and string identifiers.
type ID string

func (d *ID) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*d = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*d = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("decode id: %w", err)
	}
	*d = ID(n.String())
	return nil
}

// Draft describes a created draft. Fields the API adds are kept in Raw.
type Draft struct {
	ID         ID              `json:"id"`
	Status     string          `json:"status,omitempty"`
	PostsCount int             `json:"posts_count,omitempty"`
	ShareURL   string          `json:"share_url,omitempty"`
	PublishAt  string          `json:"publish_at,omitempty"`
	Raw        json.RawMessage `json:"-"`
}

// MarshalJSON prints the remote response unchanged when one was received.
func (d Draft) MarshalJSON() ([]byte, error) {
	if len(d.Raw) > 0 {
		return d.Raw, nil
	}
	type plain Draft
	return json.Marshal(plain(d))
}

// Options configures the client.
type Options struct {
	BaseURL           string
	APIKey            string
	Platforms         []string
	Timeout           time.Duration
	UploadTimeout     time.Duration
	MediaPollAttempts int
	MediaPollInterval time.Duration
	Now               func() time.Time
}

// PublishOptions controls a single publish call.
type PublishOptions struct {
	// ScheduleMinutes > 0 sets publish_at that many minutes from now.
	ScheduleMinutes int
	// DryRun skips the network call entirely.
	DryRun bool
}

// Client talks to the Typefully v2 API.
type Client struct {
	opts   Options
	http   *http.Client
	upload *http.Client
	logger *zap.Logger
}

// NewClient creates a client, filling unset options with defaults.
func NewClient(opts Options, logger *zap.Logger) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	if len(opts.Platforms) == 0 {
		opts.Platforms = []string{"x"}
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.UploadTimeout <= 0 {
		opts.UploadTimeout = DefaultUploadTimeout
	}
	if opts.MediaPollAttempts <= 0 {
		opts.MediaPollAttempts = DefaultMediaPollAttempts
	}
	if opts.MediaPollInterval <= 0 {
		opts.MediaPollInterval = DefaultMediaPollInterval
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Client{
		opts:   opts,
		http:   &http.Client{Timeout: opts.Timeout},
		upload: &http.Client{Timeout: opts.UploadTimeout},
		logger: logger.Named("typefully"),
	}
}

// SocialSets lists the connected social sets.
func (c *Client) SocialSets(ctx context.Context) ([]SocialSet, error) {
	var resp struct {
		Results []SocialSet `json:"results"`
	}
	if err := c.doJSON(ctx, c.http, http.MethodGet, "/social-sets", nil, &resp); err != nil {
		return nil, fmt.Errorf("list social sets: %w", err)
	}
	return resp.Results, nil
}

// DiscoverSocialSet returns the first connected social set.
func (c *Client) DiscoverSocialSet(ctx context.Context) (SocialSet, error) {
	sets, err := c.SocialSets(ctx)
	if err != nil {
		return SocialSet{}, err
	}
	if len(sets) == 0 {
		return SocialSet{}, ErrNoSocialSets
	}
	set := sets[0]
	username := set.Username
	if username == "" {
		username = "unknown"
	}
	c.logger.Info("Using social set", zap.String("username", username), zap.Int64("id", set.ID))
	return set, nil
}

// Ping checks that the API accepts the configured key.
func (c *Client) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	return c.doJSON(ctx, c.http, http.MethodGet, "/social-sets", nil, nil)
}

// UploadMedia uploads a file and returns its media ID. Upload is a three
// step flow: request a presigned target, PUT the bytes, poll until processed.
func (c *Client) UploadMedia(ctx context.Context, setID string, path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	name := filepath.Base(path)

	var target struct {
		UploadURL string `json:"upload_url"`
		MediaID   ID     `json:"media_id"`
	}
	req := map[string]string{"file_name": name}
	if err := c.doJSON(ctx, c.http, http.MethodPost, "/social-sets/"+setID+"/media/upload", req, &target); err != nil {
		return "", fmt.Errorf("request upload for %s: %w", name, err)
	}
	if target.UploadURL == "" || target.MediaID == "" {
		return "", fmt.Errorf("invalid upload response for %s", name)
	}

	if err := c.put(ctx, target.UploadURL, data); err != nil {
		return "", fmt.Errorf("upload %s: %w", name, err)
	}

	mediaID := string(target.MediaID)
	if err := c.waitMedia(ctx, setID, mediaID); err != nil {
		return "", err
	}

	c.logger.Info("Uploaded media", zap.String("file", name), zap.String("media_id", mediaID))
	return mediaID, nil
}

func (c *Client) put(ctx context.Context, url string, data []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(data))
	if err != nil {
		return err
	}
	resp, err := c.upload.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(body)}
	}
	return nil
}

// waitMedia polls processing status. Running out of attempts is not an
// error; the media ID is usually accepted once processing finishes.
func (c *Client) waitMedia(ctx context.Context, setID, mediaID string) error {
	for i := 0; i < c.opts.MediaPollAttempts; i++ {
		var status struct {
			Status string `json:"status"`
		}
		err := c.doJSON(ctx, c.http, http.MethodGet, "/social-sets/"+setID+"/media/"+mediaID, nil, &status)
		switch {
		case err == nil && status.Status == mediaReady:
			return nil
		case err == nil && status.Status == mediaFailed:
			return fmt.Errorf("media %s processing failed", mediaID)
		case err != nil:
			c.logger.Debug("Media status check failed", zap.String("media_id", mediaID), zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.opts.MediaPollInterval):
		}
	}
	c.logger.Warn("Media still processing", zap.String("media_id", mediaID), zap.Int("attempts", c.opts.MediaPollAttempts))
	return nil
}

type platformPayload struct {
	Enabled bool          `json:"enabled"`
	Posts   []thread.Post `json:"posts"`
}

type draftPayload struct {
	Platforms  map[string]platformPayload `json:"platforms"`
	DraftTitle string                     `json:"draft_title"`
	Share      bool                       `json:"share"`
	PublishAt  string                     `json:"publish_at,omitempty"`
}

// Publish creates one draft holding the whole thread. It is never retried.
func (c *Client) Publish(ctx context.Context, setID string, posts []thread.Post, opts PublishOptions) (Draft, error) {
	if len(posts) == 0 {
		return Draft{}, ErrNoPosts
	}

	payload := c.payload(posts, opts.ScheduleMinutes)

	if opts.DryRun {
		c.logger.Info("Dry run, draft not created", zap.Int("posts", len(posts)))
		return Draft{ID: "dry_run", Status: "draft", PostsCount: len(posts)}, nil
	}

	fields := []zap.Field{zap.Int("posts", len(posts)), zap.String("social_set", setID)}
	if payload.PublishAt != "" {
		fields = append(fields, zap.String("publish_at", payload.PublishAt))
		c.logger.Info("Scheduling draft", fields...)
	} else {
		c.logger.Info("Creating draft", fields...)
	}

	var raw json.RawMessage
	if err := c.doJSON(ctx, c.http, http.MethodPost, "/social-sets/"+setID+"/drafts", payload, &raw); err != nil {
		return Draft{}, err
	}

	var draft Draft
	if err := json.Unmarshal(raw, &draft); err != nil {
		return Draft{}, fmt.Errorf("decode draft: %w", err)
	}
	draft.Raw = raw
	c.logger.Info("Draft created", zap.String("id", string(draft.ID)))
	return draft, nil
}

func (c *Client) payload(posts []thread.Post, scheduleMinutes int) draftPayload {
	now := c.opts.Now()
	p := draftPayload{
		Platforms:  make(map[string]platformPayload, len(c.opts.Platforms)),
		DraftTitle: "Hyperliquid Daily Positions - " + now.Format("2006-01-02"),
		Share:      true,
	}
	for _, name := range c.opts.Platforms {
		p.Platforms[name] = platformPayload{Enabled: true, Posts: posts}
	}
	if scheduleMinutes > 0 {
		p.PublishAt = now.UTC().Add(time.Duration(scheduleMinutes) * time.Minute).Format(timeLayout)
	}
	return p
}

func (c *Client) doJSON(ctx context.Context, client *http.Client, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.opts.BaseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.opts.APIKey)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{StatusCode: resp.StatusCode, Body: string(data)}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// FormatSetID renders a social set ID for URL paths.
func FormatSetID(id int64) string {
	return strconv.FormatInt(id, 10)
}
