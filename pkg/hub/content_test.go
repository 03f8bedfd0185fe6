package hub

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeContent(t *testing.T) {
	tests := []struct {
		name string
		in   interface{}
		want string
	}{
		{"plain string", "hello", "hello"},
		{"nil", nil, ""},
		{"number stringified", 42, "42"},
		{
			"list of strings",
			[]interface{}{"first", "second"},
			"first\nsecond",
		},
		{
			"nested list",
			[]interface{}{"outer", []interface{}{"inner-a", "inner-b"}},
			"outer\ninner-a\ninner-b",
		},
		{
			"structured with text payload",
			map[string]interface{}{"text": "the answer", "annotations": []interface{}{}},
			"the answer",
		},
		{
			"structured without text payload",
			map[string]interface{}{"status": "done"},
			`{"status":"done"}`,
		},
		{
			"mixed list with structured part",
			[]interface{}{
				"intro",
				map[string]interface{}{"text": "body"},
			},
			"intro\nbody",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeContent(tt.in).Render())
		})
	}
}

func TestContent_Kind(t *testing.T) {
	assert.Equal(t, KindText, TextContent("x").Kind())
	assert.Equal(t, KindParts, PartsContent(TextContent("a")).Kind())
	assert.Equal(t, KindStructured, StructuredContent(map[string]interface{}{}).Kind())
}

func TestRender_SkipsEmptyParts(t *testing.T) {
	c := PartsContent(TextContent("a"), TextContent(""), TextContent("b"))
	assert.Equal(t, "a\nb", c.Render())
}
