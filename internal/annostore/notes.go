package annostore

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/docannex/annosync/internal/annotation"
	"github.com/docannex/annosync/internal/docstore"
	"github.com/docannex/annosync/internal/notefmt"
)

// NotesStore persists each annotation as one opaque note on the parent
// document. The notes facility supports no partial update, so every
// mutation is a delete of the old note followed by a recreate, which
// reassigns the persistent id and resets the note's own revision history.
// That cost is accepted; do not add in-place update here even if the host
// gains one, since persistent-id reassignment semantics depend on the
// recreate.
type NotesStore struct {
	docs      *docstore.Client
	formatter *notefmt.Formatter
	logger    zerolog.Logger
}

func NewNotesStore(docs *docstore.Client, formatter *notefmt.Formatter, logger zerolog.Logger) (*NotesStore, error) {
	if docs == nil {
		return nil, fmt.Errorf("%w: notes store requires a docstore client", ErrInvalidInput)
	}
	if formatter == nil {
		return nil, fmt.Errorf("%w: notes store requires a note formatter", ErrInvalidInput)
	}
	return &NotesStore{docs: docs, formatter: formatter, logger: logger}, nil
}

// List fetches every note of the document and keeps the ones that parse as
// annotations. Plain user notes are expected in the mix and skip silently.
func (s *NotesStore) List(ctx context.Context, docID int64, page *int) ([]*annotation.Record, error) {
	notes, err := s.docs.Notes(ctx, docID)
	if err != nil {
		return nil, err
	}
	var records []*annotation.Record
	for _, note := range notes {
		serializer, fields, err := notefmt.Parse(note.Note)
		if err != nil {
			s.logger.Debug().Int64("doc", docID).Int64("note", note.ID).Str("serializer", serializer).Err(err).
				Msg("note did not parse as an annotation, skipping")
			continue
		}
		rec := annotation.Hydrated(docID, fields)
		rec.SetPersistentID(note.ID)
		if page != nil && rec.PageIndex() != *page {
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

func (s *NotesStore) Create(ctx context.Context, docID int64, rec *annotation.Record) (*annotation.Record, error) {
	if err := rec.Validate(); err != nil {
		return nil, err
	}
	text, err := s.formatter.Format(rec)
	if err != nil {
		return nil, err
	}
	note, err := s.docs.AddNote(ctx, docID, text)
	if err != nil {
		return nil, err
	}
	out := rec.Clone()
	out.SetPersistentID(note.ID)
	return out, nil
}

func (s *NotesStore) Update(ctx context.Context, docID int64, rec *annotation.Record) (*annotation.Record, error) {
	oldID := rec.PersistentID()
	if oldID == 0 {
		return nil, ErrMissingPersistentID
	}
	deleted, err := s.Delete(ctx, docID, oldID)
	if err != nil {
		return nil, err
	}
	if !deleted {
		return nil, fmt.Errorf("%w: note %d", ErrNotFound, oldID)
	}
	return s.Create(ctx, docID, rec)
}

func (s *NotesStore) Delete(ctx context.Context, docID, persistentID int64) (bool, error) {
	err := s.docs.DeleteNote(ctx, docID, persistentID)
	if err != nil {
		var apiErr *docstore.APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (s *NotesStore) Close() error { return nil }
