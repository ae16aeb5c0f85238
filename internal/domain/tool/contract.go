package tool

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// ReadOnlyQueryName is the one capability declared to the model.
const ReadOnlyQueryName = "run_readonly_query"

const readOnlyQueryDescription = "Runs a single read-only SQL statement (SELECT, WITH, SHOW, DESCRIBE, EXPLAIN) " +
	"against the movie database and returns the rows as JSON objects. Mutating statements are rejected. " +
	"If a query fails or returns no rows you may call this tool again with a corrected query; " +
	"it can be called several times before you answer."

const readOnlyQuerySchema = `{
  "type": "object",
  "properties": {
    "sql": {
      "type": "string",
      "minLength": 1,
      "description": "The read-only SQL statement to execute."
    },
    "limit": {
      "type": "integer",
      "minimum": 1,
      "maximum": 1000,
      "description": "Optional maximum number of rows to return (1-1000, default 100)."
    }
  },
  "required": ["sql"],
  "additionalProperties": false
}`

// Definition is a capability declaration as handed to the model.
type Definition struct {
	Name        string
	Description string
	Parameters  json.RawMessage // JSON Schema object
}

// ReadOnlyQueryDefinition returns the run_readonly_query declaration.
// Each call returns a fresh copy so callers cannot alter the contract.
func ReadOnlyQueryDefinition() Definition {
	return Definition{
		Name:        ReadOnlyQueryName,
		Description: readOnlyQueryDescription,
		Parameters:  json.RawMessage(readOnlyQuerySchema),
	}
}

var readOnlyQueryValidator = mustCompileSchema(readOnlyQuerySchema)

func mustCompileSchema(schema string) *gojsonschema.Schema {
	s, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(schema))
	if err != nil {
		panic(fmt.Sprintf("tool: invalid built-in schema: %v", err))
	}
	return s
}

// validateArgs checks args against schema and lists every violation.
func validateArgs(schema *gojsonschema.Schema, args json.RawMessage) error {
	if len(args) == 0 {
		args = json.RawMessage(`{}`)
	}
	result, err := schema.Validate(gojsonschema.NewBytesLoader(args))
	if err != nil {
		return fmt.Errorf("%w: arguments must be a JSON object: %v", ErrToolValidationFailed, err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return fmt.Errorf("%w: %s", ErrToolValidationFailed, strings.Join(msgs, "; "))
	}
	return nil
}
