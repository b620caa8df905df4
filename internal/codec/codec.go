// Package codec turns an annotation field bag into the compact wire text
// stored inside a document note, and back. Encodings are named by a short
// identifier recorded per note, so a corpus written under different
// configurations over time stays individually readable.
package codec

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/docannex/annosync/internal/annotation"
)

var ErrUnknownCodec = errors.New("unknown serializer")

type Codec interface {
	Name() string
	Encode(fields annotation.Fields) (string, error)
	Decode(payload string) (annotation.Fields, error)
}

var registry = struct {
	mu     sync.RWMutex
	codecs map[string]Codec
}{codecs: map[string]Codec{}}

func Register(c Codec) {
	name := strings.TrimSpace(c.Name())
	if name == "" {
		return
	}
	registry.mu.Lock()
	defer registry.mu.Unlock()
	registry.codecs[name] = c
}

// ByName resolves a codec by its identifier token.
func ByName(name string) (Codec, error) {
	registry.mu.RLock()
	defer registry.mu.RUnlock()
	if c, ok := registry.codecs[strings.TrimSpace(name)]; ok {
		return c, nil
	}
	known := make([]string, 0, len(registry.codecs))
	for n := range registry.codecs {
		known = append(known, n)
	}
	sort.Strings(known)
	return nil, fmt.Errorf("%w: %q (known: %s)", ErrUnknownCodec, name, strings.Join(known, ", "))
}

func init() {
	Register(Base85GzipJSON{})
	Register(IndentedJSON{})
}

// Base85GzipJSON compresses the canonical JSON form and encodes the result
// with the base85 text alphabet. Opaque and compact; not human-readable and
// not full-text-searchable.
type Base85GzipJSON struct{}

func (Base85GzipJSON) Name() string { return "85gj" }

func (Base85GzipJSON) Encode(fields annotation.Fields) (string, error) {
	raw, err := json.Marshal(fields)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(raw); err != nil {
		return "", err
	}
	if err := zw.Close(); err != nil {
		return "", err
	}
	return encode85(buf.Bytes()), nil
}

func (Base85GzipJSON) Decode(payload string) (annotation.Fields, error) {
	compressed, err := decode85(strings.TrimSpace(payload))
	if err != nil {
		return nil, err
	}
	zr, err := gzip.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, err
	}
	raw, err := io.ReadAll(zr)
	if err != nil {
		return nil, err
	}
	if err := zr.Close(); err != nil {
		return nil, err
	}
	return unmarshalFields(raw)
}

// IndentedJSON stores the field bag as pretty-printed JSON, verbatim.
// Larger, human-readable, and it may contribute to full-text search matches
// on annotation content.
type IndentedJSON struct{}

func (IndentedJSON) Name() string { return "ji2" }

func (IndentedJSON) Encode(fields annotation.Fields) (string, error) {
	raw, err := json.MarshalIndent(fields, "", "  ")
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func (IndentedJSON) Decode(payload string) (annotation.Fields, error) {
	return unmarshalFields([]byte(payload))
}

func unmarshalFields(raw []byte) (annotation.Fields, error) {
	var fields annotation.Fields
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, err
	}
	if fields == nil {
		return nil, errors.New("payload is not an annotation object")
	}
	return fields, nil
}
