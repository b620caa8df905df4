package annostore

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"github.com/docannex/annosync/internal/annotation"
)

func TestNewPostgresStoreIsLazy(t *testing.T) {
	// Construction must not touch the database; the first operation does.
	store, err := NewPostgresStore("postgres://nobody@nowhere.invalid:5432/annosync", zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	if err := store.Close(); err != nil {
		t.Errorf("Close before first use: %v", err)
	}
}

func TestNewPostgresStoreRejectsEmptyDSN(t *testing.T) {
	if _, err := NewPostgresStore("   ", zerolog.Nop()); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("error = %v, want ErrInvalidInput", err)
	}
}

func TestPostgresStoreInitFailureIsSticky(t *testing.T) {
	store, err := NewPostgresStore("postgres://localhost/annosync", zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	openErr := errors.New("connection refused")
	opens := 0
	store.openDB = func(driverName, dsn string) (*sql.DB, error) {
		opens++
		return nil, openErr
	}

	ctx := context.Background()
	rec := annotation.New(1, annotation.Fields{
		annotation.KeyPageIndex: float64(0),
		annotation.KeyCreated:   "2026-04-01T10:00:00Z",
	})
	if _, err := store.Create(ctx, 1, rec); !errors.Is(err, openErr) {
		t.Fatalf("Create error = %v, want the open failure", err)
	}
	if _, err := store.List(ctx, 1, nil); !errors.Is(err, openErr) {
		t.Fatalf("List error = %v, want the open failure", err)
	}
	if opens != 1 {
		t.Errorf("openDB called %d times, want 1", opens)
	}
}

func TestPostgresStoreUpdateRequiresPersistentID(t *testing.T) {
	store, err := NewPostgresStore("postgres://localhost/annosync", zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	rec := annotation.New(1, annotation.Fields{
		annotation.KeyPageIndex: float64(0),
		annotation.KeyCreated:   "2026-04-01T10:00:00Z",
	})
	if _, err := store.Update(context.Background(), 1, rec); !errors.Is(err, ErrMissingPersistentID) {
		t.Errorf("error = %v, want ErrMissingPersistentID", err)
	}
}
