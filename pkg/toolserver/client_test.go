package toolserver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// schemaDoc marshals like the SDK's jsonschema type, which is what Handles
// receives from a live server.
type schemaDoc struct {
	Type       string                 `json:"type,omitempty"`
	Properties map[string]interface{} `json:"properties,omitempty"`
	Required   []string               `json:"required,omitempty"`
}

func TestInputSchemaMap_PreservesProperties(t *testing.T) {
	schema := inputSchemaMap(&schemaDoc{
		Type: "object",
		Properties: map[string]interface{}{
			"path":      map[string]interface{}{"type": "string"},
			"recursive": map[string]interface{}{"type": "boolean"},
		},
		Required: []string{"path"},
	})

	assert.Equal(t, "object", schema["type"])

	props, ok := schema["properties"].(map[string]interface{})
	require.True(t, ok, "properties must survive the conversion")
	assert.Contains(t, props, "path")
	assert.Contains(t, props, "recursive")

	required, ok := schema["required"].([]interface{})
	require.True(t, ok)
	assert.Equal(t, []interface{}{"path"}, required)
}

func TestInputSchemaMap_NoSchemaFallsBack(t *testing.T) {
	bare := map[string]interface{}{"type": "object"}

	assert.Equal(t, bare, inputSchemaMap(nil))

	var typed *schemaDoc
	assert.Equal(t, bare, inputSchemaMap(typed))

	assert.Equal(t, bare, inputSchemaMap(&schemaDoc{}))
}

func TestInputSchemaMap_FillsMissingType(t *testing.T) {
	schema := inputSchemaMap(map[string]interface{}{
		"properties": map[string]interface{}{
			"query": map[string]interface{}{"type": "string"},
		},
	})

	assert.Equal(t, "object", schema["type"])
	assert.Contains(t, schema, "properties")
}
