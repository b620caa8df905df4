package annotation

import (
	"errors"
	"testing"
)

func TestAccessors(t *testing.T) {
	rec := New(7, Fields{
		KeyLocalID:   "local-1",
		KeyAuthor:    "ada",
		KeyCreated:   "2026-04-01T10:00:00Z",
		KeyType:      float64(3),
		KeyPageIndex: float64(2),
		KeyContents:  "a remark",
		KeyInReplyTo: "local-0",
	})
	if rec.LocalID() != "local-1" {
		t.Errorf("LocalID = %q", rec.LocalID())
	}
	if rec.Author() != "ada" {
		t.Errorf("Author = %q", rec.Author())
	}
	if rec.PageIndex() != 2 {
		t.Errorf("PageIndex = %d", rec.PageIndex())
	}
	if rec.Type() != 3 {
		t.Errorf("Type = %d", rec.Type())
	}
	if rec.Contents() != "a remark" {
		t.Errorf("Contents = %q", rec.Contents())
	}
	if rec.InReplyTo() != "local-0" {
		t.Errorf("InReplyTo = %q", rec.InReplyTo())
	}
	if rec.PersistentID() != 0 {
		t.Errorf("PersistentID before create = %d", rec.PersistentID())
	}
	rec.SetPersistentID(41)
	if rec.PersistentID() != 41 {
		t.Errorf("PersistentID = %d", rec.PersistentID())
	}
	if rec.Origin != OriginLocal {
		t.Errorf("New should produce a local-origin record")
	}
	if Hydrated(7, nil).Origin != OriginRemote {
		t.Errorf("Hydrated should produce a remote-origin record")
	}
}

func TestPersistentIDAcceptsJSONNumbers(t *testing.T) {
	// Field bags round-trip through encoding/json, which decodes numbers
	// as float64.
	for _, value := range []any{int64(12), float64(12), 12} {
		rec := Hydrated(1, Fields{KeyPersistentID: value})
		if rec.PersistentID() != 12 {
			t.Errorf("PersistentID(%T) = %d, want 12", value, rec.PersistentID())
		}
	}
}

func TestCloneIsDeep(t *testing.T) {
	rec := New(1, Fields{
		"custom": map[string]any{"text": "inner"},
		"rects":  []any{[]any{1.0, 2.0}},
	})
	clone := rec.Clone()
	clone.Fields["custom"].(map[string]any)["text"] = "changed"
	clone.Fields["rects"].([]any)[0].([]any)[0] = 9.0
	if rec.Fields["custom"].(map[string]any)["text"] != "inner" {
		t.Errorf("clone shares nested map with original")
	}
	if rec.Fields["rects"].([]any)[0].([]any)[0] != 1.0 {
		t.Errorf("clone shares nested slice with original")
	}
}

func TestChanged(t *testing.T) {
	rec := New(1, Fields{
		KeyPageIndex: float64(1),
		KeyContents:  "hello",
		KeyCreated:   "2026-04-01T10:00:00Z",
	})
	tests := []struct {
		name  string
		patch Fields
		want  []string
	}{
		{
			name:  "identical values",
			patch: Fields{KeyContents: "hello"},
			want:  nil,
		},
		{
			name:  "changed value",
			patch: Fields{KeyContents: "goodbye"},
			want:  []string{KeyContents},
		},
		{
			name:  "new key",
			patch: Fields{"color": "#ff0000"},
			want:  []string{"color"},
		},
		{
			name:  "numeric type difference is not a change",
			patch: Fields{KeyPageIndex: int64(1)},
			want:  nil,
		},
		{
			name:  "equivalent timestamp spelling is not a change",
			patch: Fields{KeyCreated: "2026-04-01T12:00:00+02:00"},
			want:  nil,
		},
		{
			name:  "different instant is a change",
			patch: Fields{KeyCreated: "2026-04-01T11:00:00Z"},
			want:  []string{KeyCreated},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			changed := rec.Changed(tt.patch)
			if len(changed) != len(tt.want) {
				t.Fatalf("Changed = %v, want keys %v", changed, tt.want)
			}
			for _, key := range tt.want {
				if _, ok := changed[key]; !ok {
					t.Errorf("Changed is missing key %q", key)
				}
			}
		})
	}
}

func TestMergeOverwritesPerKey(t *testing.T) {
	rec := New(1, Fields{KeyContents: "old", KeyPageIndex: float64(0)})
	rec.Merge(Fields{KeyContents: "new", "color": "#00ff00"})
	if rec.Fields[KeyContents] != "new" {
		t.Errorf("Contents = %v", rec.Fields[KeyContents])
	}
	if rec.Fields["color"] != "#00ff00" {
		t.Errorf("color = %v", rec.Fields["color"])
	}
	if rec.Fields[KeyPageIndex] != float64(0) {
		t.Errorf("untouched key changed: %v", rec.Fields[KeyPageIndex])
	}
}

func TestIsWriteBackEcho(t *testing.T) {
	tests := []struct {
		name  string
		patch Fields
		want  bool
	}{
		{"id and author only", Fields{KeyPersistentID: int64(4), KeyAuthor: "ada"}, true},
		{"extra key", Fields{KeyPersistentID: int64(4), KeyAuthor: "ada", KeyContents: "x"}, false},
		{"id only", Fields{KeyPersistentID: int64(4)}, false},
		{"two unrelated keys", Fields{KeyContents: "x", KeyAuthor: "ada"}, false},
		{"empty", Fields{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsWriteBackEcho(tt.patch); got != tt.want {
				t.Errorf("IsWriteBackEcho(%v) = %v, want %v", tt.patch, got, tt.want)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		rec     *Record
		wantErr bool
	}{
		{"valid", New(1, Fields{KeyPageIndex: float64(0), KeyCreated: "2026-04-01T10:00:00Z"}), false},
		{"missing page index", New(1, Fields{KeyCreated: "2026-04-01T10:00:00Z"}), true},
		{"blank created", New(1, Fields{KeyPageIndex: float64(0), KeyCreated: "  "}), true},
		{"empty bag", New(1, Fields{}), true},
		{"nil record", nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.rec.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidRecord) {
				t.Errorf("error %v should wrap ErrInvalidRecord", err)
			}
		})
	}
}
