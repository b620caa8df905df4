package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client, err := NewClient(Options{BaseURL: srv.URL, APIToken: "secret"})
	if err != nil {
		t.Fatal(err)
	}
	return client
}

func TestNewClientRequiresToken(t *testing.T) {
	if _, err := NewClient(Options{BaseURL: "http://example.test"}); !errors.Is(err, ErrTokenRequired) {
		t.Fatalf("error = %v, want ErrTokenRequired", err)
	}
}

func TestAuthorizationHeader(t *testing.T) {
	var gotAuth string
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		json.NewEncoder(w).Encode(Document{ID: 3})
	}))
	if _, err := client.Document(context.Background(), 3); err != nil {
		t.Fatal(err)
	}
	if gotAuth != "Token secret" {
		t.Errorf("Authorization = %q", gotAuth)
	}
}

func TestAPIError(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no such document", http.StatusNotFound)
	}))
	_, err := client.Document(context.Background(), 404)
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %v, want *APIError", err)
	}
	if apiErr.StatusCode != http.StatusNotFound {
		t.Errorf("StatusCode = %d", apiErr.StatusCode)
	}
}

func TestAddNoteReturnsNewest(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/documents/5/notes/" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Error(err)
		}
		if body["note"] != "the text" {
			t.Errorf("note body = %q", body["note"])
		}
		json.NewEncoder(w).Encode([]Note{{ID: 1, Note: "old"}, {ID: 9, Note: "the text"}})
	}))
	note, err := client.AddNote(context.Background(), 5, "the text")
	if err != nil {
		t.Fatal(err)
	}
	if note.ID != 9 {
		t.Errorf("note.ID = %d, want the newest entry", note.ID)
	}
}

func TestDeleteNoteUsesQueryParameter(t *testing.T) {
	var gotQuery string
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete || r.URL.Path != "/api/documents/5/notes/" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		gotQuery = r.URL.Query().Get("id")
		w.WriteHeader(http.StatusNoContent)
	}))
	if err := client.DeleteNote(context.Background(), 5, 42); err != nil {
		t.Fatal(err)
	}
	if gotQuery != "42" {
		t.Errorf("id query = %q", gotQuery)
	}
}

func TestAllDocumentsWalksPages(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next := "more"
		switch r.URL.Query().Get("page") {
		case "", "1":
			json.NewEncoder(w).Encode(DocumentPage{
				Results: []Document{{ID: 1}, {ID: 2}},
				Next:    &next,
			})
		case "2":
			json.NewEncoder(w).Encode(DocumentPage{Results: []Document{{ID: 3}}})
		default:
			t.Errorf("unexpected page %q", r.URL.Query().Get("page"))
		}
	}))
	docs, err := client.AllDocuments(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(docs) != 3 {
		t.Fatalf("got %d documents, want 3", len(docs))
	}
}

func TestDocumentsByCustomFieldSendsQuery(t *testing.T) {
	var gotQuery string
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("custom_field_query")
		json.NewEncoder(w).Encode(DocumentPage{Results: []Document{{ID: 7}}})
	}))
	docs, err := client.DocumentsByCustomField(context.Background(), []any{"Links", "exists", true})
	if err != nil {
		t.Fatal(err)
	}
	if len(docs) != 1 || docs[0].ID != 7 {
		t.Errorf("docs = %v", docs)
	}
	if gotQuery != `["Links","exists",true]` {
		t.Errorf("custom_field_query = %q", gotQuery)
	}
}

func TestCustomFieldByName(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(CustomFieldPage{Results: []CustomField{
			{ID: 1, Name: "Other"},
			{ID: 2, Name: "Links", DataType: "url"},
		}})
	}))
	field, err := client.CustomFieldByName(context.Background(), "Links")
	if err != nil {
		t.Fatal(err)
	}
	if field == nil || field.ID != 2 {
		t.Fatalf("field = %v", field)
	}
	missing, err := client.CustomFieldByName(context.Background(), "Absent")
	if err != nil {
		t.Fatal(err)
	}
	if missing != nil {
		t.Errorf("expected nil for a name with no field, got %v", missing)
	}
}

func TestSetCustomFieldMergesExistingValues(t *testing.T) {
	var patched map[string][]CustomFieldValue
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPatch {
			t.Errorf("method = %s", r.Method)
		}
		if err := json.NewDecoder(r.Body).Decode(&patched); err != nil {
			t.Error(err)
		}
		json.NewEncoder(w).Encode(Document{ID: 5})
	}))
	doc := Document{ID: 5, CustomFields: []CustomFieldValue{{Field: 1, Value: "keep"}, {Field: 2, Value: "old"}}}
	if _, err := client.SetCustomField(context.Background(), doc, 2, "new"); err != nil {
		t.Fatal(err)
	}
	want := []CustomFieldValue{{Field: 1, Value: "keep"}, {Field: 2, Value: "new"}}
	if fmt.Sprint(patched["custom_fields"]) != fmt.Sprint(want) {
		t.Errorf("patched = %v, want %v", patched["custom_fields"], want)
	}
}

func TestRemoveCustomFieldSkipsPatchWhenAbsent(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected when the field is absent")
	}))
	doc := Document{ID: 5, CustomFields: []CustomFieldValue{{Field: 1, Value: "keep"}}}
	out, err := client.RemoveCustomField(context.Background(), doc, 99)
	if err != nil {
		t.Fatal(err)
	}
	if out.ID != 5 {
		t.Errorf("document should pass through unchanged, got %v", out)
	}
}

func TestDownload(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/documents/8/download/" {
			t.Errorf("path = %s", r.URL.Path)
		}
		w.Write([]byte("%PDF-1.7 fake"))
	}))
	data, err := client.Download(context.Background(), 8)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "%PDF-1.7 fake" {
		t.Errorf("data = %q", data)
	}
}
