// Package notefmt renders an annotation into the single text blob stored as
// a document note, and parses such blobs back. The blob carries three
// segments: a human-readable header, a dash delimiter line followed by the
// serializer identifier, and the codec payload. Only the payload is
// authoritative; the header is a derived projection discarded on parse.
package notefmt

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/docannex/annosync/internal/annotation"
	"github.com/docannex/annosync/internal/codec"
)

// ErrNotAnnotation marks note text that was not produced by this system:
// no delimiter, no identifier token, or an identifier naming no known
// codec. Callers listing notes skip these silently.
var ErrNotAnnotation = errors.New("note is not an annotation")

const (
	delimiterLine    = "----------"
	createdLayout    = "2006.01.02 15:04"
	minDelimiterRuns = 3
)

// DefaultTemplate is the header shown to users reading the raw note.
const DefaultTemplate = `Author: {{.Author}}
Page: {{.Page}}
Date: {{.Created}}
{{if .Comment}}Comment: {{.Comment}}{{end}}
{{if .Text}}Text: {{.Text}}{{end}}`

// HeaderContext is the data a header template renders against. Page is
// 1-based for human reading; PageIndex keeps the 0-based form available.
type HeaderContext struct {
	Author     string
	Page       int
	PageIndex  int
	Created    string
	Comment    string
	Text       string
	Type       int
	Annotation annotation.Fields
}

type Formatter struct {
	codec    codec.Codec
	template *Source
}

// New builds a formatter writing with the given codec and header template
// source. A nil source falls back to the default template.
func New(c codec.Codec, source *Source) *Formatter {
	if source == nil {
		source = mustDefaultSource()
	}
	return &Formatter{codec: c, template: source}
}

// Format renders the three-segment note text for a record.
func (f *Formatter) Format(rec *annotation.Record) (string, error) {
	payload, err := f.codec.Encode(rec.Fields)
	if err != nil {
		return "", err
	}
	header, err := f.renderHeader(rec)
	if err != nil {
		return "", err
	}
	if containsDelimiter(header) {
		return "", fmt.Errorf("header contains the reserved dash delimiter")
	}
	if containsDelimiter(payload) {
		return "", fmt.Errorf("serialized payload contains the reserved dash delimiter")
	}

	var b strings.Builder
	b.WriteString(header)
	if !strings.HasSuffix(header, "\n") {
		b.WriteString("\n")
	}
	b.WriteString(delimiterLine)
	b.WriteString("\n")
	b.WriteString(f.codec.Name())
	b.WriteString("\n")
	b.WriteString(payload)
	b.WriteString("\n")
	return b.String(), nil
}

// Parse splits a note blob on its dash delimiter, reads the serializer
// identifier and decodes the payload with the matching codec.
func Parse(note string) (serializer string, fields annotation.Fields, err error) {
	lines := strings.Split(note, "\n")
	start := -1
	for i, line := range lines {
		if isDelimiterLine(line) {
			start = i
			break
		}
	}
	if start < 0 {
		return "", nil, fmt.Errorf("%w: no delimiter", ErrNotAnnotation)
	}

	rest := lines[start+1:]
	idx := 0
	for idx < len(rest) && strings.TrimSpace(rest[idx]) == "" {
		idx++
	}
	if idx == len(rest) {
		return "", nil, fmt.Errorf("%w: missing serializer identifier", ErrNotAnnotation)
	}
	serializer = strings.TrimSpace(rest[idx])

	payloadLines := rest[idx+1:]
	// A trailing delimiter-only line is tolerated for notes written with an
	// end marker.
	for len(payloadLines) > 0 {
		last := payloadLines[len(payloadLines)-1]
		if strings.TrimSpace(last) == "" || isDelimiterLine(last) {
			payloadLines = payloadLines[:len(payloadLines)-1]
			continue
		}
		break
	}

	c, err := codec.ByName(serializer)
	if err != nil {
		return serializer, nil, fmt.Errorf("%w: %v", ErrNotAnnotation, err)
	}
	fields, err = c.Decode(strings.Join(payloadLines, "\n"))
	if err != nil {
		return serializer, nil, err
	}
	return serializer, fields, nil
}

func (f *Formatter) renderHeader(rec *annotation.Record) (string, error) {
	ctx := HeaderContext{
		Author:     rec.Author(),
		Page:       rec.PageIndex() + 1,
		PageIndex:  rec.PageIndex(),
		Created:    formatCreated(rec.Created()),
		Comment:    rec.Contents(),
		Text:       customText(rec.Fields),
		Type:       rec.Type(),
		Annotation: rec.Fields,
	}
	var b strings.Builder
	if err := f.template.Template().Execute(&b, ctx); err != nil {
		return "", err
	}
	return collapseBlankLines(b.String()), nil
}

// formatCreated renders an RFC 3339 creation timestamp compactly, keeping
// the original string when it does not parse.
func formatCreated(created string) string {
	if created == "" {
		return ""
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, created); err == nil {
			return t.Format(createdLayout)
		}
	}
	return created
}

// customText digs the selected page text out of the viewer's nested custom
// field, when present.
func customText(fields annotation.Fields) string {
	custom, ok := fields["custom"].(map[string]any)
	if !ok {
		return ""
	}
	text, _ := custom["text"].(string)
	return text
}

// collapseBlankLines squeezes runs of blank lines left behind by template
// conditionals.
func collapseBlankLines(s string) string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			if len(out) == 0 || out[len(out)-1] == "" {
				continue
			}
			out = append(out, "")
			continue
		}
		out = append(out, line)
	}
	for len(out) > 0 && out[len(out)-1] == "" {
		out = out[:len(out)-1]
	}
	return strings.Join(out, "\n")
}

func isDelimiterLine(line string) bool {
	line = strings.TrimSpace(line)
	if len(line) < minDelimiterRuns {
		return false
	}
	for i := 0; i < len(line); i++ {
		if line[i] != '-' {
			return false
		}
	}
	return true
}

func containsDelimiter(s string) bool {
	for _, line := range strings.Split(s, "\n") {
		if isDelimiterLine(line) {
			return true
		}
	}
	return false
}

func mustDefaultSource() *Source {
	source, err := NewSource("")
	if err != nil {
		panic(err)
	}
	return source
}
