package httpapi

import (
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// annotationSchema is the shape contract on incoming annotation bodies.
// Geometry and style keys are deliberately unconstrained; the sync core
// treats them as an opaque field bag.
const annotationSchema = `{
	"$schema": "https://json-schema.org/draft/2020-12/schema",
	"type": "object",
	"properties": {
		"id": {"type": "string"},
		"db_id": {"type": ["integer", "null"]},
		"created": {"type": "string", "minLength": 1},
		"author": {"type": "string"},
		"type": {"type": "integer"},
		"pageIndex": {"type": "integer", "minimum": 0},
		"contents": {"type": ["string", "null"]},
		"inReplyToId": {"type": ["string", "null"]},
		"custom": {"type": "object"}
	},
	"required": ["created", "type", "pageIndex"]
}`

func compileAnnotationSchema() (*jsonschema.Schema, error) {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(annotationSchema))
	if err != nil {
		return nil, fmt.Errorf("parse annotation schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("annotation.json", doc); err != nil {
		return nil, err
	}
	return compiler.Compile("annotation.json")
}
