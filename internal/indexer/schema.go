package indexer

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const schemaURL = "crawler_message.schema.json"

// messageSchema is the structural contract of an inbound crawl result. The url
// and timestamp formats are left unasserted on purpose: only presence and type
// are enforced here.
const messageSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "title": "CrawlerMessage",
  "type": "object",
  "properties": {
    "url": { "type": "string" },
    "text": { "type": "string" },
    "metadata": {
      "type": "object",
      "properties": {
        "title": { "type": "string" },
        "description": { "type": "string" },
        "timestamp": { "type": "string" },
        "status_code": { "type": "integer" }
      },
      "required": ["title", "timestamp", "status_code"]
    }
  },
  "required": ["url", "text", "metadata"]
}`

// SchemaValidator checks parsed payloads against the crawl result schema.
// It is immutable once built and safe for concurrent use.
type SchemaValidator struct {
	schema *jsonschema.Schema
}

// NewSchemaValidator compiles the message schema.
func NewSchemaValidator() (*SchemaValidator, error) {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft7
	if err := c.AddResource(schemaURL, strings.NewReader(messageSchema)); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	s, err := c.Compile(schemaURL)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return &SchemaValidator{schema: s}, nil
}

// MustSchemaValidator is like NewSchemaValidator but panics on error. The
// schema is a constant, so a failure here is a programming error.
func MustSchemaValidator() *SchemaValidator {
	v, err := NewSchemaValidator()
	if err != nil {
		panic(err)
	}
	return v
}

// Validate reports whether v has the shape of a crawl result. v must be a value
// produced by ParsePayload (or an equivalent encoding/json decode).
func (v *SchemaValidator) Validate(value any) error {
	if err := v.schema.Validate(value); err != nil {
		var verr *jsonschema.ValidationError
		if errors.As(err, &verr) {
			return fmt.Errorf("%w: message doesn't follow schema rules: %s", ErrInvalidMessage, verr.Error())
		}
		return fmt.Errorf("%w: message doesn't follow schema rules: %v", ErrInvalidMessage, err)
	}
	return nil
}

// ParsePayload decodes raw delivery bytes into a generic JSON value. Numbers
// are kept as json.Number so integer checks are exact.
func ParsePayload(body []byte) (any, error) {
	if !utf8.Valid(body) {
		return nil, fmt.Errorf("%w: payload is not valid UTF-8", ErrDecode)
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var value any
	if err := dec.Decode(&value); err != nil {
		return nil, fmt.Errorf("%w: payload is not valid JSON: %v", ErrParse, err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: payload has trailing data after JSON value", ErrParse)
	}
	return value, nil
}

// DecodeMessage converts a schema-valid JSON value into a Message. Values that
// pass the schema but do not fit the model (a status code outside uint16, for
// instance) fail with ErrParse.
func DecodeMessage(value any) (Message, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return Message{}, fmt.Errorf("%w: re-encode payload: %v", ErrParse, err)
	}
	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		return Message{}, fmt.Errorf("%w: deserialize into message: %v", ErrParse, err)
	}
	return msg, nil
}
