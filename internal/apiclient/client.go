// Package apiclient is the thin transport wrapper the reconciler uses to
// reach the annotation API across the process boundary. Calls are plain
// request/response; a failure surfaces once as a typed error and is never
// retried here — retry is a user-initiated re-action.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/docannex/annosync/internal/annotation"
)

// CSRFCookieName is the anti-forgery cookie the API issues; every mutating
// call echoes its value in the CSRFHeaderName header (double submit).
const (
	CSRFCookieName = "csrftoken"
	CSRFHeaderName = "X-CSRFToken"
)

var ErrNoSession = errors.New("apiclient: no session cookie set")

// APIError carries the HTTP status and body text of a failed call.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	body := e.Body
	if len(body) > 200 {
		body = body[:200] + "..."
	}
	return fmt.Sprintf("annotation api: status=%d body=%s", e.StatusCode, body)
}

type Options struct {
	BaseURL    string
	HTTPClient *http.Client
	Logger     zerolog.Logger
}

type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	logger     zerolog.Logger
}

func New(opts Options) (*Client, error) {
	raw := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if raw == "" {
		raw = "http://127.0.0.1:8090"
	}
	base, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	if httpClient.Jar == nil {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, err
		}
		httpClient.Jar = jar
	}
	return &Client{baseURL: base, httpClient: httpClient, logger: opts.Logger}, nil
}

// SetCookies seeds the client's jar, typically with the session cookie and
// the anti-forgery cookie obtained at login.
func (c *Client) SetCookies(cookies ...*http.Cookie) {
	c.httpClient.Jar.SetCookies(c.baseURL, cookies)
}

func (c *Client) ListAnnotations(ctx context.Context, docID int64, page *int) ([]annotation.Fields, error) {
	path := fmt.Sprintf("/api/documents/%d/annotations", docID)
	if page != nil {
		path += fmt.Sprintf("?page=%d", *page)
	}
	var out []annotation.Fields
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CreateAnnotation persists a new annotation; the response carries the
// assigned persistent id.
func (c *Client) CreateAnnotation(ctx context.Context, docID int64, fields annotation.Fields) (annotation.Fields, error) {
	path := fmt.Sprintf("/api/documents/%d/annotations", docID)
	var out annotation.Fields
	if err := c.doJSON(ctx, http.MethodPost, path, fields, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) UpdateAnnotation(ctx context.Context, docID, persistentID int64, patch annotation.Fields) (annotation.Fields, error) {
	path := fmt.Sprintf("/api/documents/%d/annotations/%d", docID, persistentID)
	var out annotation.Fields
	if err := c.doJSON(ctx, http.MethodPatch, path, patch, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) DeleteAnnotation(ctx context.Context, docID, persistentID int64) (bool, error) {
	path := fmt.Sprintf("/api/documents/%d/annotations/%d", docID, persistentID)
	var out struct {
		Deleted bool `json:"deleted"`
	}
	if err := c.doJSON(ctx, http.MethodDelete, path, nil, &out); err != nil {
		return false, err
	}
	return out.Deleted, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, body, out any) error {
	var bodyReader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		bodyReader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL.String()+path, bodyReader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if method != http.MethodGet && method != http.MethodHead {
		token := c.csrfToken()
		if token == "" {
			return ErrNoSession
		}
		req.Header.Set(CSRFHeaderName, token)
	}
	c.logger.Debug().Str("method", method).Str("path", path).Msg("annotation api request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	payload, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return readErr
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{StatusCode: resp.StatusCode, Body: string(payload)}
	}
	if out == nil || len(payload) == 0 {
		return nil
	}
	return json.Unmarshal(payload, out)
}

// csrfToken reads the anti-forgery token from the cookie jar.
func (c *Client) csrfToken() string {
	for _, cookie := range c.httpClient.Jar.Cookies(c.baseURL) {
		if cookie.Name == CSRFCookieName {
			return cookie.Value
		}
	}
	return ""
}
