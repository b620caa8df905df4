// Package annostore persists annotation records. Two interchangeable
// strategies exist: structured rows in Postgres, and notes encoded into the
// host document system's free-text note field. The strategy is fixed per
// deployment by configuration, never per record.
package annostore

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/docannex/annosync/internal/annotation"
	"github.com/docannex/annosync/internal/docstore"
	"github.com/docannex/annosync/internal/notefmt"
)

var (
	ErrNotFound            = errors.New("annotation not found")
	ErrInvalidInput        = errors.New("invalid input")
	ErrMissingPersistentID = errors.New("annotation has no persistent id")
)

// Store is CRUD over annotation records keyed by (document, persistent id).
type Store interface {
	// List returns all annotations of a document, optionally filtered to
	// one page (0-based).
	List(ctx context.Context, docID int64, page *int) ([]*annotation.Record, error)
	// Create persists a new record and returns it with the assigned
	// persistent id.
	Create(ctx context.Context, docID int64, rec *annotation.Record) (*annotation.Record, error)
	// Update persists a changed record. Depending on the strategy this is a
	// partial row update or a delete-then-recreate that reassigns the
	// persistent id.
	Update(ctx context.Context, docID int64, rec *annotation.Record) (*annotation.Record, error)
	// Delete removes a record; the boolean reports whether it existed.
	Delete(ctx context.Context, docID, persistentID int64) (bool, error)
	Close() error
}

// Deps carries the collaborators a strategy may need. The notes strategy
// requires Docs and Formatter; the others ignore them.
type Deps struct {
	Docs      *docstore.Client
	Formatter *notefmt.Formatter
	Logger    zerolog.Logger
}

type Factory func(dsn string, deps Deps) (Store, error)

var factoryRegistry = struct {
	mu        sync.RWMutex
	factories map[string]Factory
}{factories: map[string]Factory{}}

// RegisterFactory installs a store factory for a DSN scheme, overriding the
// built-in strategies when the scheme collides.
func RegisterFactory(scheme string, factory Factory) {
	scheme = strings.ToLower(strings.TrimSpace(scheme))
	if scheme == "" || factory == nil {
		return
	}
	factoryRegistry.mu.Lock()
	defer factoryRegistry.mu.Unlock()
	factoryRegistry.factories[scheme] = factory
}

func lookupFactory(scheme string) (Factory, bool) {
	factoryRegistry.mu.RLock()
	defer factoryRegistry.mu.RUnlock()
	factory, ok := factoryRegistry.factories[scheme]
	return factory, ok
}

// OpenFromDSN builds the configured storage strategy from a DSN:
// postgres:// for structured rows, notes:// for the document-notes
// strategy, memory:// for the in-process store.
func OpenFromDSN(dsn string, deps Deps) (Store, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, fmt.Errorf("%w: empty store dsn", ErrInvalidInput)
	}
	parsed, err := url.Parse(dsn)
	if err != nil {
		return nil, err
	}
	scheme := strings.ToLower(strings.TrimSpace(parsed.Scheme))
	if factory, ok := lookupFactory(scheme); ok {
		return factory(dsn, deps)
	}
	switch scheme {
	case "postgres", "postgresql":
		return NewPostgresStore(dsn, deps.Logger)
	case "notes", "docnotes":
		return NewNotesStore(deps.Docs, deps.Formatter, deps.Logger)
	case "memory", "mem", "inmem":
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unsupported annotation store scheme: %s", scheme)
	}
}
