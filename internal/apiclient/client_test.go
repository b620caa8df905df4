package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/docannex/annosync/internal/annotation"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client, err := New(Options{BaseURL: srv.URL})
	if err != nil {
		t.Fatal(err)
	}
	return client
}

func seedSession(client *Client) {
	client.SetCookies(
		&http.Cookie{Name: "annosync_session", Value: "opaque-session", Path: "/"},
		&http.Cookie{Name: CSRFCookieName, Value: "tok-123", Path: "/"},
	)
}

func TestListAnnotations(t *testing.T) {
	var gotPath, gotQuery string
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		json.NewEncoder(w).Encode([]annotation.Fields{{"db_id": float64(4)}})
	}))
	page := 2
	fields, err := client.ListAnnotations(context.Background(), 9, &page)
	if err != nil {
		t.Fatal(err)
	}
	if gotPath != "/api/documents/9/annotations" || gotQuery != "page=2" {
		t.Errorf("request was %s?%s", gotPath, gotQuery)
	}
	if len(fields) != 1 || fields[0]["db_id"] != float64(4) {
		t.Errorf("fields = %v", fields)
	}
}

func TestMutationsCarryCSRFToken(t *testing.T) {
	var gotHeader, gotCookie string
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeader = r.Header.Get(CSRFHeaderName)
		if c, err := r.Cookie("annosync_session"); err == nil {
			gotCookie = c.Value
		}
		json.NewEncoder(w).Encode(annotation.Fields{"db_id": float64(17)})
	}))
	seedSession(client)

	created, err := client.CreateAnnotation(context.Background(), 9, annotation.Fields{"pageIndex": 0})
	if err != nil {
		t.Fatal(err)
	}
	if gotHeader != "tok-123" {
		t.Errorf("%s = %q, want the cookie token", CSRFHeaderName, gotHeader)
	}
	if gotCookie != "opaque-session" {
		t.Errorf("session cookie = %q", gotCookie)
	}
	if created["db_id"] != float64(17) {
		t.Errorf("created = %v", created)
	}
}

func TestMutationWithoutSessionFailsEarly(t *testing.T) {
	requests := 0
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
	}))
	_, err := client.CreateAnnotation(context.Background(), 9, annotation.Fields{"pageIndex": 0})
	if !errors.Is(err, ErrNoSession) {
		t.Fatalf("error = %v, want ErrNoSession", err)
	}
	if requests != 0 {
		t.Errorf("no request should leave the client without a token, got %d", requests)
	}
}

func TestUpdateAnnotation(t *testing.T) {
	var gotMethod, gotPath string
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		json.NewEncoder(w).Encode(annotation.Fields{"db_id": float64(21), "contents": "v2"})
	}))
	seedSession(client)

	updated, err := client.UpdateAnnotation(context.Background(), 9, 21, annotation.Fields{"contents": "v2"})
	if err != nil {
		t.Fatal(err)
	}
	if gotMethod != http.MethodPatch || gotPath != "/api/documents/9/annotations/21" {
		t.Errorf("request was %s %s", gotMethod, gotPath)
	}
	if updated["contents"] != "v2" {
		t.Errorf("updated = %v", updated)
	}
}

func TestDeleteAnnotation(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete {
			t.Errorf("method = %s", r.Method)
		}
		json.NewEncoder(w).Encode(map[string]bool{"deleted": true})
	}))
	seedSession(client)

	deleted, err := client.DeleteAnnotation(context.Background(), 9, 21)
	if err != nil {
		t.Fatal(err)
	}
	if !deleted {
		t.Error("deleted = false, want true")
	}
}

func TestAPIErrorCarriesStatus(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"annotation not found"}`, http.StatusNotFound)
	}))
	seedSession(client)

	_, err := client.UpdateAnnotation(context.Background(), 9, 404, annotation.Fields{"contents": "x"})
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %v, want *APIError", err)
	}
	if apiErr.StatusCode != http.StatusNotFound {
		t.Errorf("StatusCode = %d", apiErr.StatusCode)
	}
}
