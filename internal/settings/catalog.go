package settings

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/xeipuuv/gojsonschema"

	"github.com/hanif/warden/pkg/toolserver"
)

// catalogSchema validates the on-disk tool-server catalog document.
const catalogSchema = `{
	"type": "object",
	"required": ["tool_servers"],
	"properties": {
		"tool_servers": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["id", "command"],
				"properties": {
					"id": {"type": "string", "minLength": 1},
					"name": {"type": "string"},
					"transport": {"type": "string", "enum": ["stdio"]},
					"command": {"type": "string", "minLength": 1},
					"args": {"type": "array", "items": {"type": "string"}},
					"env": {"type": "object", "additionalProperties": {"type": "string"}}
				}
			}
		}
	}
}`

type catalogDocument struct {
	ToolServers []toolserver.Descriptor `json:"tool_servers"`
}

// LoadCatalogFile reads and validates a tool-server catalog JSON file.
func LoadCatalogFile(path string) ([]toolserver.Descriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog file: %w", err)
	}

	schemaLoader := gojsonschema.NewStringLoader(catalogSchema)
	docLoader := gojsonschema.NewBytesLoader(data)

	result, err := gojsonschema.Validate(schemaLoader, docLoader)
	if err != nil {
		return nil, fmt.Errorf("failed to validate catalog: %w", err)
	}
	if !result.Valid() {
		msgs := ""
		for _, e := range result.Errors() {
			if msgs != "" {
				msgs += "; "
			}
			msgs += e.String()
		}
		return nil, fmt.Errorf("invalid catalog file: %s", msgs)
	}

	var doc catalogDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse catalog file: %w", err)
	}

	seen := make(map[string]bool, len(doc.ToolServers))
	for _, desc := range doc.ToolServers {
		if seen[desc.ID] {
			return nil, fmt.Errorf("duplicate tool server id in catalog: %s", desc.ID)
		}
		seen[desc.ID] = true
		if err := desc.Validate(); err != nil {
			return nil, err
		}
	}

	return doc.ToolServers, nil
}
