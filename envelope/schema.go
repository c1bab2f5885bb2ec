package envelope

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/c360/requeue/errors"
)

// wireSchema validates tagged envelope bodies before they are trusted.
// Tagged bodies arrive from the engine's own publisher, but the queue is
// writable by anything holding credentials, so malformed or adversarial
// bodies are rejected here rather than misparsed downstream.
const wireSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["kind", "payload", "originalBindingData", "publishCount"],
  "properties": {
    "kind": {"type": "string", "enum": ["retry"]},
    "publishCount": {"type": "integer", "minimum": 1},
    "originalBindingData": {
      "type": "object",
      "properties": {
        "messageId": {"type": "string"},
        "enqueuedAt": {"type": "string"},
        "expiresAt": {"type": "string"},
        "sessionId": {"type": "string"},
        "sequenceNumber": {"type": "integer"}
      },
      "additionalProperties": false
    }
  }
}`

var schemaLoader = gojsonschema.NewStringLoader(wireSchema)

func validateSchema(body []byte) error {
	result, err := gojsonschema.Validate(schemaLoader, gojsonschema.NewBytesLoader(body))
	if err != nil {
		return errors.WrapInvalid(errors.ErrInvalidEnvelope, "Envelope", "Parse")
	}
	if !result.Valid() {
		var fields []string
		for _, desc := range result.Errors() {
			fields = append(fields, desc.String())
		}
		return errors.WrapInvalid(
			fmt.Errorf("%w: %s", errors.ErrInvalidEnvelope, strings.Join(fields, "; ")),
			"Envelope", "Parse")
	}
	return nil
}
