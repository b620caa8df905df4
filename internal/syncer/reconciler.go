// Package syncer reconciles the viewer's annotation events with the
// backend. It decides which create/update/delete events must be propagated,
// suppresses echoes of its own write-backs, and applies backend responses
// (assigned persistent ids) back into viewer state.
package syncer

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/docannex/annosync/internal/annotation"
)

type EventType string

const (
	EventCreate EventType = "create"
	EventUpdate EventType = "update"
	EventDelete EventType = "delete"
)

// Event is one viewer-side change. Committed marks a synthetic echo of a
// change the reconciler itself just applied; committed events never reach
// the backend.
type Event struct {
	Type      EventType
	Record    *annotation.Record
	Patch     annotation.Fields
	Committed bool
}

// Backend is the transport surface the reconciler propagates through.
// *apiclient.Client satisfies it.
type Backend interface {
	ListAnnotations(ctx context.Context, docID int64, page *int) ([]annotation.Fields, error)
	CreateAnnotation(ctx context.Context, docID int64, fields annotation.Fields) (annotation.Fields, error)
	UpdateAnnotation(ctx context.Context, docID, persistentID int64, patch annotation.Fields) (annotation.Fields, error)
	DeleteAnnotation(ctx context.Context, docID, persistentID int64) (bool, error)
}

// Viewer is the write-back surface. ApplyUpdate pushes a server-confirmed
// patch into the viewer, which re-emits the same change as a committed
// event. Notify surfaces a failed backend call to the user.
type Viewer interface {
	ApplyUpdate(rec *annotation.Record, patch annotation.Fields)
	Notify(message string, err error)
}

// Reconciler holds no state between events; per-record state lives in the
// transient flags of each record. One reconciler serves one viewer session.
type Reconciler struct {
	backend Backend
	viewer  Viewer
	logger  zerolog.Logger
}

func New(backend Backend, viewer Viewer, logger zerolog.Logger) *Reconciler {
	return &Reconciler{backend: backend, viewer: viewer, logger: logger}
}

// Run drains the event channel until it closes or ctx is done. Events are
// handled one at a time in channel order, which guarantees per-record
// ordering; a failed event is surfaced and does not stop the loop.
func (r *Reconciler) Run(ctx context.Context, events <-chan Event) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if err := r.Handle(ctx, ev); err != nil {
				r.logger.Warn().Str("type", string(ev.Type)).Err(err).Msg("annotation event failed")
			}
		}
	}
}

// Handle processes a single viewer event.
func (r *Reconciler) Handle(ctx context.Context, ev Event) error {
	if ev.Committed {
		// Echo of a change this reconciler just applied; going back to the
		// backend here would loop forever.
		return nil
	}
	if ev.Record == nil {
		return fmt.Errorf("event without a record")
	}
	switch ev.Type {
	case EventCreate:
		return r.handleCreate(ctx, ev.Record)
	case EventUpdate:
		return r.handleUpdate(ctx, ev.Record, ev.Patch)
	case EventDelete:
		return r.handleDelete(ctx, ev.Record)
	default:
		return fmt.Errorf("unknown event type %q", ev.Type)
	}
}

func (r *Reconciler) handleCreate(ctx context.Context, rec *annotation.Record) error {
	if rec.Origin == annotation.OriginRemote {
		// Hydrated from the backend at load time; it already exists
		// server-side and must never be created twice.
		r.logger.Debug().Str("local", rec.LocalID()).Msg("skipping create of remote-origin annotation")
		return nil
	}
	created, err := r.backend.CreateAnnotation(ctx, rec.DocumentID, rec.Fields)
	if err != nil {
		r.viewer.Notify("creating the annotation on the server failed", err)
		return err
	}
	persistentID := persistentIDOf(created)
	rec.SetPersistentID(persistentID)
	rec.Origin = annotation.OriginRemote
	r.logger.Info().Int64("doc", rec.DocumentID).Int64("id", persistentID).Msg("annotation created")

	// Write the assigned id back so future diffs match. The viewer re-emits
	// this as a committed event, which Handle drops on sight.
	r.viewer.ApplyUpdate(rec, annotation.Fields{
		annotation.KeyPersistentID: persistentID,
		annotation.KeyAuthor:       rec.Author(),
	})
	return nil
}

func (r *Reconciler) handleUpdate(ctx context.Context, rec *annotation.Record, patch annotation.Fields) error {
	if annotation.IsWriteBackEcho(patch) {
		// {db_id, author} and nothing else is the signature of our own
		// write-back from a prior create/update response.
		return nil
	}
	changed := rec.Changed(patch)
	if len(changed) == 0 {
		// No field in the patch differs from the record; nothing to write.
		return nil
	}
	rec.Merge(patch)
	updated, err := r.backend.UpdateAnnotation(ctx, rec.DocumentID, rec.PersistentID(), rec.Fields)
	if err != nil {
		r.viewer.Notify("updating the annotation on the server failed", err)
		return err
	}
	// The notes-backed strategy recreates on update, so the persistent id
	// can change here.
	persistentID := persistentIDOf(updated)
	rec.SetPersistentID(persistentID)
	r.logger.Info().Int64("doc", rec.DocumentID).Int64("id", persistentID).Strs("fields", changed.Keys()).Msg("annotation updated")

	r.viewer.ApplyUpdate(rec, annotation.Fields{
		annotation.KeyPersistentID: persistentID,
		annotation.KeyAuthor:       rec.Author(),
	})
	return nil
}

func (r *Reconciler) handleDelete(ctx context.Context, rec *annotation.Record) error {
	if rec.Origin != annotation.OriginRemote {
		// Never successfully created server-side; this session is not
		// authoritative for anything the backend might hold under that id.
		r.logger.Debug().Str("local", rec.LocalID()).Msg("discarding local-only annotation without backend delete")
		return nil
	}
	deleted, err := r.backend.DeleteAnnotation(ctx, rec.DocumentID, rec.PersistentID())
	if err != nil {
		// The viewer-side object is already gone; deletion is not
		// transactional with the backend, so only warn.
		r.viewer.Notify("deleting the annotation on the server failed", err)
		return err
	}
	if !deleted {
		r.logger.Debug().Int64("doc", rec.DocumentID).Int64("id", rec.PersistentID()).Msg("annotation was already gone server-side")
	}
	return nil
}

func persistentIDOf(fields annotation.Fields) int64 {
	rec := annotation.Record{Fields: fields}
	return rec.PersistentID()
}
