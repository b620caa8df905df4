// Package annotator is the service facade over annotation storage and the
// host document system: the operations the HTTP API exposes, plus the bulk
// maintenance operations behind the admin actions.
package annotator

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/docannex/annosync/internal/annostore"
	"github.com/docannex/annosync/internal/annotation"
	"github.com/docannex/annosync/internal/docstore"
)

type Annotator struct {
	store  annostore.Store
	docs   *docstore.Client
	logger zerolog.Logger
}

func New(store annostore.Store, docs *docstore.Client, logger zerolog.Logger) *Annotator {
	return &Annotator{store: store, docs: docs, logger: logger}
}

// Download returns the raw PDF for a document.
func (a *Annotator) Download(ctx context.Context, docID int64) ([]byte, error) {
	a.logger.Debug().Int64("doc", docID).Msg("downloading document")
	return a.docs.Download(ctx, docID)
}

// PageAnnotations lists a document's annotations, optionally restricted to
// one page.
func (a *Annotator) PageAnnotations(ctx context.Context, docID int64, page *int) ([]*annotation.Record, error) {
	return a.store.List(ctx, docID, page)
}

func (a *Annotator) Create(ctx context.Context, docID int64, rec *annotation.Record) (*annotation.Record, error) {
	a.logger.Info().Int64("doc", docID).Int("page", rec.PageIndex()).Msg("creating annotation")
	return a.store.Create(ctx, docID, rec)
}

func (a *Annotator) Update(ctx context.Context, docID int64, rec *annotation.Record) (*annotation.Record, error) {
	a.logger.Info().Int64("doc", docID).Int64("id", rec.PersistentID()).Msg("updating annotation")
	return a.store.Update(ctx, docID, rec)
}

// Delete removes an annotation together with its replies.
func (a *Annotator) Delete(ctx context.Context, docID int64, rec *annotation.Record) (bool, error) {
	a.logger.Info().Int64("doc", docID).Int64("id", rec.PersistentID()).Msg("deleting annotation")

	page := rec.PageIndex()
	siblings, err := a.store.List(ctx, docID, &page)
	if err != nil {
		return false, err
	}
	for _, other := range siblings {
		if other.PersistentID() == rec.PersistentID() {
			continue
		}
		if other.InReplyTo() == "" || other.InReplyTo() != rec.LocalID() {
			continue
		}
		a.logger.Debug().Int64("id", other.PersistentID()).Msg("deleting reply annotation")
		if _, err := a.store.Delete(ctx, docID, other.PersistentID()); err != nil {
			return false, err
		}
	}
	return a.store.Delete(ctx, docID, rec.PersistentID())
}

// DocumentsWithAnnotations returns every host document that carries at
// least one annotation, except those in skip.
func (a *Annotator) DocumentsWithAnnotations(ctx context.Context, skip map[int64]bool) ([]docstore.Document, error) {
	docs, err := a.docs.AllDocuments(ctx)
	if err != nil {
		return nil, err
	}
	var out []docstore.Document
	for _, doc := range docs {
		if skip[doc.ID] {
			continue
		}
		records, err := a.store.List(ctx, doc.ID, nil)
		if err != nil {
			return nil, err
		}
		if len(records) > 0 {
			out = append(out, doc)
		}
	}
	return out, nil
}

// DeleteAll removes every annotation from every document except those in
// skip, returning the ids of the documents touched.
func (a *Annotator) DeleteAll(ctx context.Context, skip map[int64]bool) ([]int64, error) {
	a.logger.Info().Msg("starting deletion of all annotations")
	docs, err := a.DocumentsWithAnnotations(ctx, skip)
	if err != nil {
		return nil, err
	}
	var processed []int64
	for _, doc := range docs {
		records, err := a.store.List(ctx, doc.ID, nil)
		if err != nil {
			return processed, err
		}
		for _, rec := range records {
			if _, err := a.store.Delete(ctx, doc.ID, rec.PersistentID()); err != nil {
				return processed, err
			}
		}
		processed = append(processed, doc.ID)
	}
	a.logger.Info().Int("docs", len(processed)).Msg("deleted annotations")
	return processed, nil
}
