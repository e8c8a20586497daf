package readarr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/drallgood/bookrequest/internal/config"
	"github.com/drallgood/bookrequest/internal/logger"
	"github.com/drallgood/bookrequest/internal/metrics"
	"github.com/drallgood/bookrequest/internal/models"
	"github.com/drallgood/bookrequest/internal/util"
)

const (
	apiPath = "/api/v1"

	// SearchCommand is the command name that starts an indexer search for books
	SearchCommand = "BookSearch"
)

// Operation names used in errors, logs and metrics
const (
	OpLookup          = "lookup"
	OpListOwned       = "list_owned"
	OpGetBook         = "get_book"
	OpCreateBook      = "create_book"
	OpUpdateBook      = "update_book"
	OpMonitor         = "monitor"
	OpSearch          = "search_command"
	OpRootFolders     = "root_folders"
	OpQualityProfiles = "quality_profiles"
	OpStatus          = "status"
)

// Client talks to one backend instance
type Client struct {
	name     string
	baseURL  string
	apiKey   string
	client   *http.Client
	limiter  *util.RateLimiter
	defaults *DefaultsResolver
	logger   *logger.Logger
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the HTTP client; its timeout is used as-is
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.client = hc
		}
	}
}

// WithTimeout sets the per-call timeout
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.client.Timeout = d
		}
	}
}

// WithRateLimiter throttles outbound calls
func WithRateLimiter(l *util.RateLimiter) Option {
	return func(c *Client) { c.limiter = l }
}

// WithDefaultsResolver shares a defaults cache between clients
func WithDefaultsResolver(r *DefaultsResolver) Option {
	return func(c *Client) { c.defaults = r }
}

// WithLogger sets the logger
func WithLogger(l *logger.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// NewClient creates a client for the instance called name
func NewClient(name string, inst config.Instance, opts ...Option) *Client {
	inst = inst.Normalize()
	c := &Client{
		name:    name,
		baseURL: inst.BaseURL,
		apiKey:  inst.APIKey,
		client:  &http.Client{Timeout: config.DefaultBackendTimeout},
		logger:  logger.Get(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.WithFields(map[string]interface{}{
		"component": "readarr_client",
		"instance":  name,
	})
	return c
}

// Name returns the instance name
func (c *Client) Name() string { return c.name }

// BaseURL returns the normalized base URL
func (c *Client) BaseURL() string { return c.baseURL }

// do performs one call and returns the response body of a 2xx answer
func (c *Client) do(ctx context.Context, op, method, path string, query url.Values, payload any) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, &RemoteError{Instance: c.name, Op: op, Err: err}
		}
	}

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to encode %s request: %w", op, err)
		}
		body = bytes.NewReader(data)
	}

	u := c.baseURL + apiPath + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("X-Api-Key", c.apiKey)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		metrics.ObserveRemote(c.name, op, 0, time.Since(start))
		c.logger.Warn("Backend request failed", map[string]interface{}{
			"operation": op,
			"error":     err.Error(),
		})
		return nil, &RemoteError{Instance: c.name, Op: op, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	metrics.ObserveRemote(c.name, op, resp.StatusCode, time.Since(start))
	if err != nil {
		return nil, &RemoteError{Instance: c.name, Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("failed to read response: %w", err)}
	}

	c.logger.Debug("Backend request", map[string]interface{}{
		"operation": op,
		"method":    method,
		"path":      path,
		"status":    resp.StatusCode,
		"duration":  time.Since(start).String(),
	})

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if resp.StatusCode == http.StatusTooManyRequests && c.limiter != nil {
			retryAfter, _ := strconv.Atoi(resp.Header.Get("Retry-After"))
			c.limiter.OnRateLimit(time.Duration(retryAfter) * time.Second)
		}
		return nil, &RemoteError{
			Instance:   c.name,
			Op:         op,
			StatusCode: resp.StatusCode,
			Message:    remoteMessage(respBody),
		}
	}
	if c.limiter != nil {
		c.limiter.ResetRate()
	}
	return respBody, nil
}

func (c *Client) decodeList(op string, body []byte) ([]models.BookRecord, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, nil
	}
	records, err := models.DecodeRecords(bytes.NewReader(body))
	if err != nil {
		return nil, &RemoteError{Instance: c.name, Op: op, Err: fmt.Errorf("failed to decode response: %w", err)}
	}
	return records, nil
}

// LookupBooks pages the remote search until limit distinct books are collected or a
// page brings nothing new. Records without an identity are dropped.
func (c *Client) LookupBooks(ctx context.Context, term string, limit int) ([]models.LookupRecord, error) {
	if limit <= 0 {
		limit = config.DefaultSearchLimit
	}

	seen := make(map[string]struct{}, limit)
	results := make([]models.LookupRecord, 0, limit)

	for page := 1; ; page++ {
		query := url.Values{}
		query.Set("term", term)
		query.Set("limit", strconv.Itoa(limit))
		query.Set("pageSize", strconv.Itoa(limit))
		query.Set("page", strconv.Itoa(page))

		body, err := c.do(ctx, OpLookup, http.MethodGet, "/book/lookup", query, nil)
		if err != nil {
			return nil, err
		}
		records, err := c.decodeList(OpLookup, body)
		if err != nil {
			return nil, err
		}
		if len(records) == 0 {
			break
		}

		added := 0
		for _, raw := range records {
			rec := models.NewLookupRecord(raw)
			key := rec.Identity()
			if key == "" {
				continue
			}
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			results = append(results, rec)
			added++
			if len(results) >= limit {
				return results, nil
			}
		}
		if added == 0 {
			break
		}
	}

	c.logger.Debug("Lookup finished", map[string]interface{}{
		"term":  term,
		"count": len(results),
	})
	return results, nil
}

// ListOwned returns the instance's whole catalog
func (c *Client) ListOwned(ctx context.Context) ([]models.OwnedRecord, error) {
	body, err := c.do(ctx, OpListOwned, http.MethodGet, "/book", nil, nil)
	if err != nil {
		return nil, err
	}
	records, err := c.decodeList(OpListOwned, body)
	if err != nil {
		return nil, err
	}
	owned := make([]models.OwnedRecord, 0, len(records))
	for _, raw := range records {
		owned = append(owned, models.NewOwnedRecord(raw))
	}
	return owned, nil
}

// GetBook fetches the full catalog record for id
func (c *Client) GetBook(ctx context.Context, id int) (models.BookRecord, error) {
	body, err := c.do(ctx, OpGetBook, http.MethodGet, "/book/"+strconv.Itoa(id), nil, nil)
	if err != nil {
		return nil, err
	}
	rec, err := models.DecodeRecord(bytes.NewReader(body))
	if err != nil {
		return nil, &RemoteError{Instance: c.name, Op: OpGetBook, Err: fmt.Errorf("failed to decode response: %w", err)}
	}
	return rec, nil
}

// CreateBook adds a new book to the catalog
func (c *Client) CreateBook(ctx context.Context, payload models.BookRecord) (models.BookRecord, error) {
	body, err := c.do(ctx, OpCreateBook, http.MethodPost, "/book", nil, payload)
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return models.BookRecord{}, nil
	}
	created, err := models.DecodeRecord(bytes.NewReader(body))
	if err != nil {
		// the book was created, the answer just isn't an object
		return models.BookRecord{}, nil
	}
	return created, nil
}

// UpdateBook submits a full record
func (c *Client) UpdateBook(ctx context.Context, book models.BookRecord) error {
	_, err := c.do(ctx, OpUpdateBook, http.MethodPut, "/book", nil, book)
	return err
}

// MonitorBooks sets the monitored flag for the given ids
func (c *Client) MonitorBooks(ctx context.Context, ids []int, monitored bool) error {
	_, err := c.do(ctx, OpMonitor, http.MethodPost, "/book/monitor", nil, map[string]any{
		"bookIds":   ids,
		"monitored": monitored,
	})
	return err
}

// SearchBooks asks the backend to search its indexers for the given ids
func (c *Client) SearchBooks(ctx context.Context, ids []int) error {
	_, err := c.do(ctx, OpSearch, http.MethodPost, "/command", nil, map[string]any{
		"name":    SearchCommand,
		"bookIds": ids,
	})
	return err
}

// RootFolder is a library location on the backend
type RootFolder struct {
	ID      int    `json:"id"`
	Path    string `json:"path"`
	Default bool   `json:"default"`
}

// QualityProfile is a backend quality profile
type QualityProfile struct {
	ID      int    `json:"id"`
	Name    string `json:"name"`
	Default bool   `json:"default"`
}

func isDefault(r models.BookRecord) bool {
	return r.Bool("isDefault") || r.Bool("default")
}

// RootFolders lists the backend's root folders
func (c *Client) RootFolders(ctx context.Context) ([]RootFolder, error) {
	body, err := c.do(ctx, OpRootFolders, http.MethodGet, "/rootfolder", nil, nil)
	if err != nil {
		return nil, err
	}
	records, err := c.decodeList(OpRootFolders, body)
	if err != nil {
		return nil, err
	}
	folders := make([]RootFolder, 0, len(records))
	for _, r := range records {
		folders = append(folders, RootFolder{ID: r.Int("id"), Path: r.String("path"), Default: isDefault(r)})
	}
	return folders, nil
}

// QualityProfiles lists the backend's quality profiles
func (c *Client) QualityProfiles(ctx context.Context) ([]QualityProfile, error) {
	body, err := c.do(ctx, OpQualityProfiles, http.MethodGet, "/qualityprofile", nil, nil)
	if err != nil {
		return nil, err
	}
	records, err := c.decodeList(OpQualityProfiles, body)
	if err != nil {
		return nil, err
	}
	profiles := make([]QualityProfile, 0, len(records))
	for _, r := range records {
		profiles = append(profiles, QualityProfile{ID: r.Int("id"), Name: r.String("name"), Default: isDefault(r)})
	}
	return profiles, nil
}

// SystemStatus is the subset of the status endpoint shown to users
type SystemStatus struct {
	AppName string `json:"appName,omitempty"`
	Version string `json:"version,omitempty"`
}

// TestConnectivity probes the status endpoint; the remote error is returned as-is
func (c *Client) TestConnectivity(ctx context.Context) (*SystemStatus, error) {
	body, err := c.do(ctx, OpStatus, http.MethodGet, "/system/status", nil, nil)
	if err != nil {
		return nil, err
	}
	status := &SystemStatus{}
	if err := json.Unmarshal(body, status); err != nil {
		c.logger.Debug("Status response was not JSON", map[string]interface{}{"error": err.Error()})
	}
	return status, nil
}
