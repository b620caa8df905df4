package linkmaint

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/docannex/annosync/internal/docstore"
)

// fakeFieldHost emulates the host's custom field endpoints and the
// custom-field document query.
type fakeFieldHost struct {
	nextFieldID  int64
	fields       []docstore.CustomField
	fieldCreates int

	// canned query results keyed by the query's middle operator
	missing  []docstore.Document
	outdated []docstore.Document
	linked   []docstore.Document

	patched map[int64][]docstore.CustomFieldValue
}

func newFakeFieldHost() *fakeFieldHost {
	return &fakeFieldHost{patched: map[int64][]docstore.CustomFieldValue{}}
}

func (h *fakeFieldHost) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.URL.Path == "/api/custom_fields/" && r.Method == http.MethodGet:
		json.NewEncoder(w).Encode(docstore.CustomFieldPage{Results: h.fields})
	case r.URL.Path == "/api/custom_fields/" && r.Method == http.MethodPost:
		var body struct {
			Name     string `json:"name"`
			DataType string `json:"data_type"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		h.nextFieldID++
		h.fieldCreates++
		field := docstore.CustomField{ID: h.nextFieldID, Name: body.Name, DataType: body.DataType}
		h.fields = append(h.fields, field)
		json.NewEncoder(w).Encode(field)
	case r.URL.Path == "/api/documents/" && r.Method == http.MethodGet:
		query := r.URL.Query().Get("custom_field_query")
		page := docstore.DocumentPage{}
		switch {
		case strings.Contains(query, `"exists",false`):
			page.Results = h.missing
		case strings.Contains(query, `"NOT"`):
			page.Results = h.outdated
		case strings.Contains(query, `"exists",true`):
			page.Results = h.linked
		}
		json.NewEncoder(w).Encode(page)
	case strings.HasPrefix(r.URL.Path, "/api/documents/") && r.Method == http.MethodPatch:
		id, _ := strconv.ParseInt(strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/documents/"), "/"), 10, 64)
		var body struct {
			CustomFields []docstore.CustomFieldValue `json:"custom_fields"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		h.patched[id] = body.CustomFields
		json.NewEncoder(w).Encode(docstore.Document{ID: id, CustomFields: body.CustomFields})
	default:
		http.NotFound(w, r)
	}
}

func newMaintainer(t *testing.T, host *fakeFieldHost) *Maintainer {
	t.Helper()
	srv := httptest.NewServer(host)
	t.Cleanup(srv.Close)
	docs, err := docstore.NewClient(docstore.Options{BaseURL: srv.URL, APIToken: "t"})
	if err != nil {
		t.Fatal(err)
	}
	return New(docs, Options{
		FieldName: "Annotations",
		BaseURL:   "https://viewer.example/",
		Logger:    zerolog.Nop(),
	})
}

func TestEnsureFieldCreatesOnceAndCaches(t *testing.T) {
	ctx := context.Background()
	host := newFakeFieldHost()
	m := newMaintainer(t, host)

	field, err := m.EnsureField(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if field.Name != "Annotations" || field.DataType != "url" {
		t.Errorf("field = %+v", field)
	}
	if _, err := m.EnsureField(ctx); err != nil {
		t.Fatal(err)
	}
	if host.fieldCreates != 1 {
		t.Errorf("field created %d times, want 1", host.fieldCreates)
	}
}

func TestEnsureFieldReusesExisting(t *testing.T) {
	host := newFakeFieldHost()
	host.fields = []docstore.CustomField{{ID: 8, Name: "Annotations", DataType: "url"}}
	m := newMaintainer(t, host)

	field, err := m.EnsureField(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if field.ID != 8 {
		t.Errorf("field.ID = %d, want the existing field", field.ID)
	}
	if host.fieldCreates != 0 {
		t.Errorf("existing field must not be recreated")
	}
}

func TestViewerURL(t *testing.T) {
	m := newMaintainer(t, newFakeFieldHost())
	if got := m.ViewerURL(42); got != "https://viewer.example/view/42" {
		t.Errorf("ViewerURL = %q", got)
	}
}

func TestUpdateLinksWritesMissingAndOutdated(t *testing.T) {
	ctx := context.Background()
	host := newFakeFieldHost()
	host.missing = []docstore.Document{{ID: 1}, {ID: 2}}
	host.outdated = []docstore.Document{{ID: 3, CustomFields: []docstore.CustomFieldValue{{Field: 1, Value: "http://old.example/view/3"}}}}
	m := newMaintainer(t, host)

	updated, err := m.UpdateLinks(ctx, map[int64]bool{2: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(updated) != 2 {
		t.Fatalf("updated = %v, want docs 1 and 3", updated)
	}
	if _, ok := host.patched[2]; ok {
		t.Error("skipped document was patched")
	}
	values := host.patched[3]
	if len(values) != 1 || values[0].Value != "https://viewer.example/view/3" {
		t.Errorf("document 3 values = %v", values)
	}
}

func TestDeleteLinks(t *testing.T) {
	ctx := context.Background()
	host := newFakeFieldHost()
	host.fields = []docstore.CustomField{{ID: 4, Name: "Annotations", DataType: "url"}}
	host.linked = []docstore.Document{
		{ID: 1, CustomFields: []docstore.CustomFieldValue{{Field: 4, Value: "x"}, {Field: 9, Value: "keep"}}},
		{ID: 2, CustomFields: []docstore.CustomFieldValue{{Field: 4, Value: "y"}}},
	}
	m := newMaintainer(t, host)

	removed, err := m.DeleteLinks(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if removed != 2 {
		t.Errorf("removed = %d, want 2", removed)
	}
	if len(host.patched[1]) != 1 || host.patched[1][0].Field != 9 {
		t.Errorf("document 1 should keep its other field, got %v", host.patched[1])
	}
	if len(host.patched[2]) != 0 {
		t.Errorf("document 2 should end with no field values, got %v", host.patched[2])
	}
}
