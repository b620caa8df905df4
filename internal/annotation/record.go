package annotation

import (
	"errors"
	"sort"
	"strings"
)

var ErrInvalidRecord = errors.New("invalid annotation record")

// Origin marks where a record's last observed state came from. It is held
// in memory only and never serialized.
type Origin int

const (
	OriginLocal Origin = iota
	OriginRemote
)

func (o Origin) String() string {
	if o == OriginRemote {
		return "remote"
	}
	return "local"
}

// Well-known field bag keys. Everything else in the bag (geometry, style,
// viewer-specific state) is opaque to the sync core.
const (
	KeyLocalID      = "id"
	KeyPersistentID = "db_id"
	KeyCreated      = "created"
	KeyAuthor       = "author"
	KeyType         = "type"
	KeyPageIndex    = "pageIndex"
	KeyContents     = "contents"
	KeyInReplyTo    = "inReplyToId"
)

// Fields is the dynamic annotation payload: a mapping from field name to a
// JSON-shaped value (string, number, bool, nested map, slice).
type Fields map[string]any

// Record is the unit of persistence and sync: one positioned annotation on
// one page of one document.
type Record struct {
	DocumentID int64
	Fields     Fields

	// Origin is transient sync state, reset whenever a record with the same
	// local id is created fresh.
	Origin Origin
}

// New builds a local-origin record over a copy of the given field bag.
func New(documentID int64, fields Fields) *Record {
	return &Record{
		DocumentID: documentID,
		Fields:     CloneFields(fields),
		Origin:     OriginLocal,
	}
}

// Hydrated builds a remote-origin record, as loaded from the backend on
// document open.
func Hydrated(documentID int64, fields Fields) *Record {
	rec := New(documentID, fields)
	rec.Origin = OriginRemote
	return rec
}

// LocalID is the client-assigned identifier, stable for the viewer session
// but not across sessions.
func (r *Record) LocalID() string {
	if r == nil || r.Fields == nil {
		return ""
	}
	s, _ := r.Fields[KeyLocalID].(string)
	return s
}

// PersistentID is the server-assigned identifier, zero until the first
// successful create.
func (r *Record) PersistentID() int64 {
	if r == nil || r.Fields == nil {
		return 0
	}
	return asInt64(r.Fields[KeyPersistentID])
}

func (r *Record) SetPersistentID(id int64) {
	if r.Fields == nil {
		r.Fields = Fields{}
	}
	r.Fields[KeyPersistentID] = id
}

func (r *Record) PageIndex() int {
	if r == nil || r.Fields == nil {
		return 0
	}
	return int(asInt64(r.Fields[KeyPageIndex]))
}

func (r *Record) Author() string {
	if r == nil || r.Fields == nil {
		return ""
	}
	s, _ := r.Fields[KeyAuthor].(string)
	return s
}

func (r *Record) Created() string {
	if r == nil || r.Fields == nil {
		return ""
	}
	s, _ := r.Fields[KeyCreated].(string)
	return s
}

func (r *Record) Contents() string {
	if r == nil || r.Fields == nil {
		return ""
	}
	s, _ := r.Fields[KeyContents].(string)
	return s
}

// InReplyTo returns the local id of the parent annotation for reply-style
// annotations, or "" when this is a top-level annotation.
func (r *Record) InReplyTo() string {
	if r == nil || r.Fields == nil {
		return ""
	}
	switch v := r.Fields[KeyInReplyTo].(type) {
	case string:
		return v
	default:
		return ""
	}
}

// Type returns the viewer's numeric annotation type code.
func (r *Record) Type() int {
	if r == nil || r.Fields == nil {
		return 0
	}
	return int(asInt64(r.Fields[KeyType]))
}

// Clone deep-copies the record. Transient flags carry over.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	return &Record{
		DocumentID: r.DocumentID,
		Fields:     CloneFields(r.Fields),
		Origin:     r.Origin,
	}
}

// Merge applies the patch into the record's field bag, overwriting
// per key (last write wins per field).
func (r *Record) Merge(patch Fields) {
	if r.Fields == nil {
		r.Fields = Fields{}
	}
	for key, value := range patch {
		r.Fields[key] = cloneValue(value)
	}
}

// Changed computes the effective change set of a patch against the record's
// current value, restricted to the patch's own keys. A key is changed when
// its normalized value differs from the record's normalized value for that
// key, or when the record has no such key.
func (r *Record) Changed(patch Fields) Fields {
	changed := Fields{}
	for key, value := range patch {
		current, ok := r.Fields[key]
		if !ok || !Equal(current, value) {
			changed[key] = value
		}
	}
	return changed
}

// IsWriteBackEcho reports whether a patch touches exactly the persistent id
// and author fields and nothing else. That pair is the signature of the
// reconciler's own write-back after a create/update response.
func IsWriteBackEcho(patch Fields) bool {
	if len(patch) != 2 {
		return false
	}
	_, hasID := patch[KeyPersistentID]
	_, hasAuthor := patch[KeyAuthor]
	return hasID && hasAuthor
}

// CloneFields deep-copies a field bag.
func CloneFields(fields Fields) Fields {
	if fields == nil {
		return Fields{}
	}
	out := make(Fields, len(fields))
	for key, value := range fields {
		out[key] = cloneValue(value)
	}
	return out
}

func cloneValue(value any) any {
	switch v := value.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for key, item := range v {
			out[key] = cloneValue(item)
		}
		return out
	case Fields:
		out := make(map[string]any, len(v))
		for key, item := range v {
			out[key] = cloneValue(item)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return v
	}
}

// Keys returns the sorted field names, mostly for stable logging.
func (f Fields) Keys() []string {
	keys := make([]string, 0, len(f))
	for key := range f {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Validate checks the minimal shape the sync core relies on.
func (r *Record) Validate() error {
	if r == nil || len(r.Fields) == 0 {
		return ErrInvalidRecord
	}
	if _, ok := r.Fields[KeyPageIndex]; !ok {
		return ErrInvalidRecord
	}
	if created, ok := r.Fields[KeyCreated].(string); ok && strings.TrimSpace(created) == "" {
		return ErrInvalidRecord
	}
	return nil
}
