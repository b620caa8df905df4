package syncer

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/docannex/annosync/internal/annotation"
)

// wireEvent is a frame the viewer sends over the websocket.
type wireEvent struct {
	Type       string            `json:"type"`
	Annotation annotation.Fields `json:"annotation"`
	Patch      annotation.Fields `json:"patch,omitempty"`
	Committed  bool              `json:"committed"`
}

// wireCommand is a frame pushed back to the viewer. "load" seeds hydrated
// annotations on open, "apply" instructs the viewer to apply a patch and
// re-emit it with committed=true, "notice" surfaces an error message.
type wireCommand struct {
	Kind       string            `json:"kind"`
	LocalID    string            `json:"localId,omitempty"`
	Annotation annotation.Fields `json:"annotation,omitempty"`
	Patch      annotation.Fields `json:"patch,omitempty"`
	Message    string            `json:"message,omitempty"`
	Error      string            `json:"error,omitempty"`
}

// Bridge adapts one viewer websocket connection to the reconciler: it
// decodes viewer frames into Events and implements Viewer by pushing
// command frames back. It also tracks the session's records by local id so
// the transient origin flag survives across events.
type Bridge struct {
	conn   *websocket.Conn
	docID  int64
	logger zerolog.Logger

	events chan Event

	mu      sync.Mutex
	records map[string]*annotation.Record
}

func NewBridge(conn *websocket.Conn, docID int64, logger zerolog.Logger) *Bridge {
	return &Bridge{
		conn:    conn,
		docID:   docID,
		logger:  logger,
		events:  make(chan Event, 16),
		records: map[string]*annotation.Record{},
	}
}

// Events is the channel handed to Reconciler.Run.
func (b *Bridge) Events() <-chan Event { return b.events }

// Hydrate loads the document's annotations from the backend, registers
// them as remote-origin session records and seeds the viewer.
func (b *Bridge) Hydrate(ctx context.Context, backend Backend) error {
	existing, err := backend.ListAnnotations(ctx, b.docID, nil)
	if err != nil {
		return err
	}
	for _, fields := range existing {
		rec := annotation.Hydrated(b.docID, fields)
		b.mu.Lock()
		if localID := rec.LocalID(); localID != "" {
			b.records[localID] = rec
		}
		b.mu.Unlock()
		if err := b.write(ctx, wireCommand{Kind: "load", LocalID: rec.LocalID(), Annotation: rec.Fields}); err != nil {
			return err
		}
	}
	b.logger.Debug().Int64("doc", b.docID).Int("count", len(existing)).Msg("viewer hydrated")
	return nil
}

// ReadLoop decodes viewer frames into the event channel until the
// connection closes. The channel closes with it.
func (b *Bridge) ReadLoop(ctx context.Context) error {
	defer close(b.events)
	for {
		var frame wireEvent
		if err := wsjson.Read(ctx, b.conn, &frame); err != nil {
			if websocket.CloseStatus(err) != -1 || errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
		ev, ok := b.toEvent(frame)
		if !ok {
			b.logger.Warn().Str("type", frame.Type).Msg("dropping malformed viewer frame")
			continue
		}
		select {
		case b.events <- ev:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (b *Bridge) toEvent(frame wireEvent) (Event, bool) {
	eventType := EventType(frame.Type)
	switch eventType {
	case EventCreate, EventUpdate, EventDelete:
	default:
		return Event{}, false
	}
	if frame.Annotation == nil {
		return Event{}, false
	}
	localID, _ := frame.Annotation[annotation.KeyLocalID].(string)

	b.mu.Lock()
	defer b.mu.Unlock()
	rec := b.records[localID]
	switch eventType {
	case EventCreate:
		// A fresh create under a known local id resets the transient
		// flags implicitly.
		rec = annotation.New(b.docID, frame.Annotation)
		if localID != "" {
			b.records[localID] = rec
		}
	case EventUpdate:
		if rec == nil {
			rec = annotation.New(b.docID, frame.Annotation)
			if localID != "" {
				b.records[localID] = rec
			}
		}
	case EventDelete:
		if rec == nil {
			rec = annotation.New(b.docID, frame.Annotation)
		}
		delete(b.records, localID)
	}
	return Event{Type: eventType, Record: rec, Patch: frame.Patch, Committed: frame.Committed}, true
}

// ApplyUpdate implements Viewer. The viewer applies the patch and re-emits
// the change with committed=true.
func (b *Bridge) ApplyUpdate(rec *annotation.Record, patch annotation.Fields) {
	err := b.write(context.Background(), wireCommand{
		Kind:    "apply",
		LocalID: rec.LocalID(),
		Patch:   patch,
	})
	if err != nil {
		b.logger.Warn().Err(err).Msg("pushing write-back to viewer failed")
	}
}

// Notify implements Viewer.
func (b *Bridge) Notify(message string, err error) {
	cmd := wireCommand{Kind: "notice", Message: message}
	if err != nil {
		cmd.Error = err.Error()
	}
	if writeErr := b.write(context.Background(), cmd); writeErr != nil {
		b.logger.Warn().Err(writeErr).Msg("pushing notice to viewer failed")
	}
}

func (b *Bridge) write(ctx context.Context, cmd wireCommand) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return wsjson.Write(ctx, b.conn, cmd)
}
