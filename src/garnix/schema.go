package garnix

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"garnix-insights/src/failure"
)

var nullableString = `{"type": ["string", "null"]}`

var buildStatusSchema = gojsonschema.NewStringLoader(`{
  "type": "object",
  "required": ["builds"],
  "properties": {
    "summary": {
      "type": ["object", "null"],
      "properties": {
        "repo_owner": ` + nullableString + `,
        "repo_name": ` + nullableString + `,
        "git_commit": ` + nullableString + `,
        "branch": ` + nullableString + `,
        "succeeded": {"type": "integer", "minimum": 0},
        "failed": {"type": "integer", "minimum": 0},
        "pending": {"type": "integer", "minimum": 0},
        "cancelled": {"type": "integer", "minimum": 0}
      }
    },
    "builds": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["id", "package", "status"],
        "properties": {
          "id": {"type": "string"},
          "package": {"type": "string", "minLength": 1},
          "status": {"type": "string"},
          "system": ` + nullableString + `,
          "start_time": ` + nullableString + `,
          "end_time": ` + nullableString + `,
          "drv_path": ` + nullableString + `
        }
      }
    }
  }
}`)

var buildLogsSchema = gojsonschema.NewStringLoader(`{
  "type": "object",
  "required": ["finished", "logs"],
  "properties": {
    "finished": {"type": "boolean"},
    "logs": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["log_message"],
        "properties": {
          "timestamp": ` + nullableString + `,
          "log_message": {"type": "string"}
        }
      }
    }
  }
}`)

// validate checks body against schema and reports the first violation as a
// parse error naming the offending field path.
func validate(schema gojsonschema.JSONLoader, body []byte, what string) error {
	result, err := gojsonschema.Validate(schema, gojsonschema.NewBytesLoader(body))
	if err != nil {
		// The schemas are constant, so this is a body that is not JSON at all.
		return failure.Parse("", fmt.Sprintf("%s response is not valid JSON", what))
	}
	if result.Valid() {
		return nil
	}
	first := result.Errors()[0]
	return failure.Parse(fieldPath(first), fmt.Sprintf("%s response: %s", what, first.Description()))
}

// fieldPath returns the dotted path of a schema violation. For missing
// required properties gojsonschema reports the parent, so the property name
// is appended.
func fieldPath(e gojsonschema.ResultError) string {
	field := e.Field()
	if e.Type() != "required" {
		return field
	}
	prop, _ := e.Details()["property"].(string)
	if prop == "" {
		return field
	}
	if field == "" || field == "(root)" {
		return prop
	}
	return strings.Join([]string{field, prop}, ".")
}
