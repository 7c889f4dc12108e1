package tools

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/invopop/jsonschema"
)

// ErrInvalidArguments marks malformed or incomplete tool parameters from the
// model. It is distinct from store-level not-found errors so the audit trail
// can tell "bad request" from "missing task".
var ErrInvalidArguments = errors.New("invalid tool arguments")

// ToolDefinition binds a tool name to its input schema and handler.
// The handler receives the raw JSON input exactly as the model produced it.
type ToolDefinition struct {
	Name        string
	Description string
	InputSchema anthropic.ToolInputSchemaParam
	Function    func(ctx context.Context, input json.RawMessage) (string, error)
}

// GenerateSchema derives the JSON Schema for a tool input struct from its
// jsonschema tags.
func GenerateSchema[T any]() anthropic.ToolInputSchemaParam {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	var v T
	schema := reflector.Reflect(v)
	return anthropic.ToolInputSchemaParam{
		Properties: schema.Properties,
	}
}
