package linkmaint

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/docannex/annosync/internal/docstore"
)

// Maintainer keeps a url-typed custom field on host documents pointing at
// the viewer page for that document. It runs outside the annotation write
// path; a failed scan is logged and retried on the next interval.
type Maintainer struct {
	docs      *docstore.Client
	fieldName string
	baseURL   string
	interval  time.Duration
	logger    zerolog.Logger

	mu    sync.Mutex
	field *docstore.CustomField
}

type Options struct {
	FieldName string
	BaseURL   string
	Interval  time.Duration
	Logger    zerolog.Logger
}

func New(docs *docstore.Client, opts Options) *Maintainer {
	if opts.FieldName == "" {
		opts.FieldName = "Annotations"
	}
	if opts.Interval <= 0 {
		opts.Interval = 30 * time.Minute
	}
	return &Maintainer{
		docs:      docs,
		fieldName: opts.FieldName,
		baseURL:   strings.TrimRight(opts.BaseURL, "/"),
		interval:  opts.Interval,
		logger:    opts.Logger,
	}
}

// ViewerURL is the link written into the custom field.
func (m *Maintainer) ViewerURL(docID int64) string {
	return fmt.Sprintf("%s/view/%d", m.baseURL, docID)
}

// EnsureField returns the link custom field, creating it on first use.
// The resolved field is cached for the lifetime of the maintainer.
func (m *Maintainer) EnsureField(ctx context.Context) (docstore.CustomField, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.field != nil {
		return *m.field, nil
	}
	field, err := m.docs.CustomFieldByName(ctx, m.fieldName)
	if err != nil {
		return docstore.CustomField{}, fmt.Errorf("look up custom field %q: %w", m.fieldName, err)
	}
	if field != nil {
		m.logger.Debug().Str("field", m.fieldName).Msg("found existing custom field")
		m.field = field
		return *field, nil
	}
	m.logger.Info().Str("field", m.fieldName).Msg("creating custom field")
	created, err := m.docs.CreateCustomField(ctx, m.fieldName, "url")
	if err != nil {
		return docstore.CustomField{}, fmt.Errorf("create custom field %q: %w", m.fieldName, err)
	}
	m.field = &created
	return created, nil
}

// UpdateLinks adds the viewer link to documents missing it and rewrites
// links that no longer point under the configured base URL. Returns the ids
// of documents touched.
func (m *Maintainer) UpdateLinks(ctx context.Context, skip map[int64]bool) ([]int64, error) {
	field, err := m.EnsureField(ctx)
	if err != nil {
		return nil, err
	}

	var updated []int64
	touch := func(doc docstore.Document, reason string) error {
		if skip[doc.ID] {
			return nil
		}
		m.logger.Info().Int64("doc", doc.ID).Str("reason", reason).Msg("writing document link")
		if _, err := m.docs.SetCustomField(ctx, doc, field.ID, m.ViewerURL(doc.ID)); err != nil {
			return fmt.Errorf("set link on document %d: %w", doc.ID, err)
		}
		updated = append(updated, doc.ID)
		return nil
	}

	missing, err := m.docs.DocumentsByCustomField(ctx, []any{m.fieldName, "exists", false})
	if err != nil {
		return updated, fmt.Errorf("query documents without links: %w", err)
	}
	for _, doc := range missing {
		if err := touch(doc, "missing"); err != nil {
			return updated, err
		}
	}

	outdated, err := m.docs.DocumentsByCustomField(ctx, []any{
		"NOT", []any{m.fieldName, "istartswith", m.baseURL + "/view/"},
	})
	if err != nil {
		return updated, fmt.Errorf("query documents with outdated links: %w", err)
	}
	for _, doc := range outdated {
		if err := touch(doc, "outdated"); err != nil {
			return updated, err
		}
	}
	return updated, nil
}

// DeleteLinks removes the link field value from every document that has one.
func (m *Maintainer) DeleteLinks(ctx context.Context) (int, error) {
	field, err := m.EnsureField(ctx)
	if err != nil {
		return 0, err
	}
	docs, err := m.docs.DocumentsByCustomField(ctx, []any{m.fieldName, "exists", true})
	if err != nil {
		return 0, fmt.Errorf("query linked documents: %w", err)
	}
	removed := 0
	for _, doc := range docs {
		if _, err := m.docs.RemoveCustomField(ctx, doc, field.ID); err != nil {
			return removed, fmt.Errorf("remove link from document %d: %w", doc.ID, err)
		}
		removed++
	}
	return removed, nil
}

// Loop scans on the configured interval until the context is cancelled.
func (m *Maintainer) Loop(ctx context.Context) error {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		m.logger.Info().Msg("starting link update scan")
		if _, err := m.UpdateLinks(ctx, nil); err != nil {
			m.logger.Error().Err(err).Msg("link update scan failed")
		} else {
			m.logger.Info().Msg("link update scan completed")
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
