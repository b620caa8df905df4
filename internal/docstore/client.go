// Package docstore is the HTTP client for the host document-management
// platform: document metadata and downloads, the per-document notes
// facility, and custom fields. It is the only component that talks to the
// host system directly.
package docstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

var ErrTokenRequired = errors.New("docstore: api token is required")

// APIError carries the HTTP status and response body of a failed call.
// Calls are never retried here; a failure surfaces once to the caller.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	body := e.Body
	if len(body) > 200 {
		body = body[:200] + "..."
	}
	return fmt.Sprintf("docstore: status=%d body=%s", e.StatusCode, body)
}

type Options struct {
	BaseURL    string
	APIToken   string
	HTTPClient *http.Client
	Logger     zerolog.Logger
}

type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     zerolog.Logger
}

func NewClient(opts Options) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = "http://127.0.0.1:8000"
	}
	token := strings.TrimSpace(opts.APIToken)
	if token == "" {
		return nil, ErrTokenRequired
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{
		baseURL:    baseURL,
		token:      token,
		httpClient: httpClient,
		logger:     opts.Logger,
	}, nil
}

// Document returns metadata for a single document.
func (c *Client) Document(ctx context.Context, docID int64) (Document, error) {
	var doc Document
	err := c.doJSON(ctx, http.MethodGet, fmt.Sprintf("/api/documents/%d/", docID), nil, &doc)
	return doc, err
}

// Documents returns one page of the paginated document listing.
func (c *Client) Documents(ctx context.Context, page int) (DocumentPage, error) {
	q := url.Values{}
	if page > 0 {
		q.Set("page", fmt.Sprintf("%d", page))
	}
	var out DocumentPage
	err := c.doJSON(ctx, http.MethodGet, "/api/documents/?"+q.Encode(), nil, &out)
	return out, err
}

// AllDocuments walks every page of the document listing.
func (c *Client) AllDocuments(ctx context.Context) ([]Document, error) {
	return c.collectDocuments(ctx, func(page int) (DocumentPage, error) {
		return c.Documents(ctx, page)
	})
}

// DocumentsByCustomField walks every page of documents matching a custom
// field query, e.g. ["Field", "exists", true].
func (c *Client) DocumentsByCustomField(ctx context.Context, query any) ([]Document, error) {
	raw, err := json.Marshal(query)
	if err != nil {
		return nil, err
	}
	return c.collectDocuments(ctx, func(page int) (DocumentPage, error) {
		q := url.Values{}
		q.Set("page", fmt.Sprintf("%d", page))
		q.Set("custom_field_query", string(raw))
		var out DocumentPage
		err := c.doJSON(ctx, http.MethodGet, "/api/documents/?"+q.Encode(), nil, &out)
		return out, err
	})
}

func (c *Client) collectDocuments(ctx context.Context, fetch func(page int) (DocumentPage, error)) ([]Document, error) {
	var docs []Document
	for page := 1; ; page++ {
		feed, err := fetch(page)
		if err != nil {
			return nil, err
		}
		docs = append(docs, feed.Results...)
		if feed.Next == nil || *feed.Next == "" {
			return docs, nil
		}
	}
}

// Download returns the raw PDF bytes of a document.
func (c *Client) Download(ctx context.Context, docID int64) ([]byte, error) {
	resp, err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/documents/%d/download/", docID), nil)
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// Notes lists all notes attached to a document.
func (c *Client) Notes(ctx context.Context, docID int64) ([]Note, error) {
	var notes []Note
	err := c.doJSON(ctx, http.MethodGet, fmt.Sprintf("/api/documents/%d/notes/", docID), nil, &notes)
	return notes, err
}

// AddNote attaches a note to a document and returns the created note. The
// host API responds with the full note list; the newest entry is last.
func (c *Client) AddNote(ctx context.Context, docID int64, text string) (Note, error) {
	var notes []Note
	err := c.doJSON(ctx, http.MethodPost, fmt.Sprintf("/api/documents/%d/notes/", docID), map[string]any{"note": text}, &notes)
	if err != nil {
		return Note{}, err
	}
	if len(notes) == 0 {
		return Note{}, &APIError{StatusCode: http.StatusOK, Body: "empty note list in response"}
	}
	return notes[len(notes)-1], nil
}

// DeleteNote removes a note from a document.
func (c *Client) DeleteNote(ctx context.Context, docID, noteID int64) error {
	path := fmt.Sprintf("/api/documents/%d/notes/?id=%d", docID, noteID)
	return c.doJSON(ctx, http.MethodDelete, path, nil, nil)
}

// CustomFields walks every page of the global custom field listing.
func (c *Client) CustomFields(ctx context.Context) ([]CustomField, error) {
	var fields []CustomField
	for page := 1; ; page++ {
		q := url.Values{}
		q.Set("page", fmt.Sprintf("%d", page))
		var feed CustomFieldPage
		if err := c.doJSON(ctx, http.MethodGet, "/api/custom_fields/?"+q.Encode(), nil, &feed); err != nil {
			return nil, err
		}
		fields = append(fields, feed.Results...)
		if feed.Next == nil || *feed.Next == "" {
			return fields, nil
		}
	}
}

// CustomFieldByName returns the first custom field with the given name, or
// nil when none exists.
func (c *Client) CustomFieldByName(ctx context.Context, name string) (*CustomField, error) {
	fields, err := c.CustomFields(ctx)
	if err != nil {
		return nil, err
	}
	for i := range fields {
		if fields[i].Name == name {
			return &fields[i], nil
		}
	}
	return nil, nil
}

// CreateCustomField registers a new global custom field.
func (c *Client) CreateCustomField(ctx context.Context, name, dataType string) (CustomField, error) {
	var field CustomField
	err := c.doJSON(ctx, http.MethodPost, "/api/custom_fields/", map[string]any{
		"name":      name,
		"data_type": dataType,
	}, &field)
	return field, err
}

// SetCustomField adds or updates one custom field value on a document.
func (c *Client) SetCustomField(ctx context.Context, doc Document, fieldID int64, value string) (Document, error) {
	values := append([]CustomFieldValue(nil), doc.CustomFields...)
	updated := false
	for i := range values {
		if values[i].Field == fieldID {
			values[i].Value = value
			updated = true
			break
		}
	}
	if !updated {
		values = append(values, CustomFieldValue{Field: fieldID, Value: value})
	}
	return c.patchCustomFields(ctx, doc.ID, values)
}

// RemoveCustomField deletes one custom field value from a document. A
// document without the field passes through unchanged.
func (c *Client) RemoveCustomField(ctx context.Context, doc Document, fieldID int64) (Document, error) {
	values := make([]CustomFieldValue, 0, len(doc.CustomFields))
	for _, v := range doc.CustomFields {
		if v.Field != fieldID {
			values = append(values, v)
		}
	}
	if len(values) == len(doc.CustomFields) {
		return doc, nil
	}
	return c.patchCustomFields(ctx, doc.ID, values)
}

func (c *Client) patchCustomFields(ctx context.Context, docID int64, values []CustomFieldValue) (Document, error) {
	var doc Document
	err := c.doJSON(ctx, http.MethodPatch, fmt.Sprintf("/api/documents/%d/", docID), map[string]any{
		"custom_fields": values,
	}, &doc)
	return doc, err
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
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Token "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.logger.Debug().Str("method", method).Str("path", path).Msg("docstore request")

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

func (c *Client) do(ctx context.Context, method, path string, body io.Reader) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Token "+c.token)
	c.logger.Debug().Str("method", method).Str("path", path).Msg("docstore request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	payload, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return nil, readErr
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(payload)}
	}
	return payload, nil
}
