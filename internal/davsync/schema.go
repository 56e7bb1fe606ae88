package davsync

import (
	"bytes"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

const documentSchemaURL = "https://taskfuchs.app/schema/sync-document.json"

const documentSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["tasks", "notes", "version", "timestamp"],
  "properties": {
    "version": {"type": "string"},
    "timestamp": {"type": "string"},
    "tasks": {
      "type": "array",
      "items": {"type": "object", "required": ["id", "title"]}
    },
    "archivedTasks": {"type": "array"},
    "notes": {
      "type": "array",
      "items": {"type": "object", "required": ["id"]}
    },
    "metadata": {"type": "object"}
  }
}`

var documentSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(documentSchemaJSON))
	if err != nil {
		return nil, err
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource(documentSchemaURL, doc); err != nil {
		return nil, err
	}
	return c.Compile(documentSchemaURL)
})

// validateDocument checks the shape of a downloaded sync document.
func validateDocument(data []byte) error {
	sch, err := documentSchema()
	if err != nil {
		return fmt.Errorf("compile document schema: %w", err)
	}
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("parse document: %w", err)
	}
	if err := sch.Validate(inst); err != nil {
		return fmt.Errorf("invalid sync document: %w", err)
	}
	return nil
}
