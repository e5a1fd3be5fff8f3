// Package remote is the HTTP client for the remote folder service.
package remote

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

	"github.com/tildaslashalef/reposync/internal/auth"
	"github.com/tildaslashalef/reposync/internal/loggy"
)

// Options tunes the HTTP client
type Options struct {
	Timeout         time.Duration
	ClientName      string
	MaxIdleConns    int
	IdleConnTimeout time.Duration
}

// Client handles HTTP communication with the remote folder service
type Client struct {
	baseURL    string
	tokens     auth.TokenProvider
	timeout    time.Duration
	clientName string
	httpClient *http.Client
	logger     *loggy.Logger
}

// NewClient creates a new client. The token is fetched from tokens on every call.
func NewClient(baseURL string, tokens auth.TokenProvider, opts Options, logger *loggy.Logger) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.MaxIdleConns <= 0 {
		opts.MaxIdleConns = 10
	}
	if opts.IdleConnTimeout <= 0 {
		opts.IdleConnTimeout = 90 * time.Second
	}

	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        opts.MaxIdleConns,
		MaxIdleConnsPerHost: opts.MaxIdleConns,
		IdleConnTimeout:     opts.IdleConnTimeout,
	}

	return &Client{
		baseURL:    baseURL,
		tokens:     tokens,
		timeout:    opts.Timeout,
		clientName: opts.ClientName,
		httpClient: &http.Client{
			Timeout:   opts.Timeout,
			Transport: transport,
		},
		logger: logger,
	}
}

// ListFolders returns one page of folders. Pages start at 1.
func (c *Client) ListFolders(ctx context.Context, page, size int) (*Page, error) {
	var out Page
	if err := c.do(ctx, http.MethodGet, "/api/v1/folders"+pageQuery(page, size), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetFolder fetches a folder by id; a missing folder yields an error matching ErrNotFound
func (c *Client) GetFolder(ctx context.Context, id string) (*Entity, error) {
	var out Entity
	if err := c.do(ctx, http.MethodGet, "/api/v1/folders/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) CreateFolder(ctx context.Context, req *EntityRequest) (*Entity, error) {
	var out Entity
	if err := c.do(ctx, http.MethodPost, "/api/v1/folders", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UpdateFolder(ctx context.Context, id string, req *EntityRequest) (*Entity, error) {
	var out Entity
	if err := c.do(ctx, http.MethodPut, "/api/v1/folders/"+url.PathEscape(id), req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DeleteFolder(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/v1/folders/"+url.PathEscape(id), nil, nil)
}

// ListFiles returns one page of the files held by folderID
func (c *Client) ListFiles(ctx context.Context, folderID string, page, size int) (*Page, error) {
	var out Page
	if err := c.do(ctx, http.MethodGet, filesPath(folderID)+pageQuery(page, size), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) GetFile(ctx context.Context, folderID, id string) (*Entity, error) {
	var out Entity
	if err := c.do(ctx, http.MethodGet, filesPath(folderID)+"/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) CreateFile(ctx context.Context, folderID string, req *EntityRequest) (*Entity, error) {
	var out Entity
	if err := c.do(ctx, http.MethodPost, filesPath(folderID), req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DeleteFile(ctx context.Context, folderID, id string) error {
	return c.do(ctx, http.MethodDelete, filesPath(folderID)+"/"+url.PathEscape(id), nil, nil)
}

func filesPath(folderID string) string {
	return "/api/v1/folders/" + url.PathEscape(folderID) + "/files"
}

func pageQuery(page, size int) string {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("size", strconv.Itoa(size))
	return "?" + q.Encode()
}

// do sends a request and decodes a JSON response into out (when non-nil).
// Non-2xx responses are returned as *APIError.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	token, err := auth.Available(ctx, c.tokens)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var bodyReader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request body: %w", err)
		}
		bodyReader = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.clientName != "" {
		req.Header.Set("X-Client-Name", c.clientName)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	c.logger.Debug("Remote call",
		"method", method,
		"path", path,
		"status", resp.StatusCode,
		"duration", time.Since(start),
	)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{}
		if err := json.NewDecoder(resp.Body).Decode(apiErr); err != nil || apiErr.Message == "" {
			apiErr.Message = http.StatusText(resp.StatusCode)
		}
		// The body may carry its own status_code; the transport status wins
		apiErr.StatusCode = resp.StatusCode
		return apiErr
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
