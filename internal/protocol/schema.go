package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// actionSchema validates submitted queue entries before they reach the
// simulation. Unknown action types are rejected here rather than ignored.
const actionSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "properties": {
    "id": {"type": "string"},
    "type": {"enum": ["dispatch", "restock", "forecast", "hold"]},
    "truck_id": {"type": "string", "minLength": 1},
    "target_zone": {"type": "string", "minLength": 1},
    "zone_id": {"type": "string", "minLength": 1},
    "hours_ahead": {"type": "integer", "minimum": 1, "maximum": 3},
    "reasoning": {"type": "string"}
  },
  "required": ["type"],
  "allOf": [
    {
      "if": {"properties": {"type": {"const": "dispatch"}}},
      "then": {"required": ["truck_id", "target_zone"]}
    },
    {
      "if": {"properties": {"type": {"const": "restock"}}},
      "then": {"required": ["truck_id"]}
    },
    {
      "if": {"properties": {"type": {"const": "forecast"}}},
      "then": {"required": ["zone_id"]}
    }
  ],
  "additionalProperties": false
}`

var compiledActionSchema = jsonschema.MustCompileString("action.schema.json", actionSchema)

// ValidateAction checks a raw submission against the action schema.
func ValidateAction(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return fmt.Errorf("%s: %w", ErrProtoBadRequest, err)
	}
	if err := compiledActionSchema.Validate(v); err != nil {
		return fmt.Errorf("%s: %w", ErrProtoBadRequest, err)
	}
	return nil
}
