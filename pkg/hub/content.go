package hub

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ContentKind discriminates the Content union.
type ContentKind int

const (
	KindText ContentKind = iota
	KindParts
	KindStructured
)

// Content models message content that may arrive as a plain string, a list
// of parts, or a structured object. Render reduces any shape to display text.
type Content struct {
	kind       ContentKind
	text       string
	parts      []Content
	structured map[string]interface{}
}

// TextContent wraps a plain string.
func TextContent(s string) Content {
	return Content{kind: KindText, text: s}
}

// PartsContent wraps an ordered list of parts.
func PartsContent(parts ...Content) Content {
	return Content{kind: KindParts, parts: parts}
}

// StructuredContent wraps a structured object.
func StructuredContent(m map[string]interface{}) Content {
	return Content{kind: KindStructured, structured: m}
}

// Kind returns the union tag.
func (c Content) Kind() ContentKind {
	return c.kind
}

// NormalizeContent converts a dynamically typed content value into the
// Content union. Unrecognized types are stringified.
func NormalizeContent(v interface{}) Content {
	switch t := v.(type) {
	case nil:
		return TextContent("")
	case string:
		return TextContent(t)
	case Content:
		return t
	case []interface{}:
		parts := make([]Content, 0, len(t))
		for _, p := range t {
			parts = append(parts, NormalizeContent(p))
		}
		return Content{kind: KindParts, parts: parts}
	case []string:
		parts := make([]Content, 0, len(t))
		for _, p := range t {
			parts = append(parts, TextContent(p))
		}
		return Content{kind: KindParts, parts: parts}
	case map[string]interface{}:
		return StructuredContent(t)
	default:
		return TextContent(fmt.Sprintf("%v", t))
	}
}

// Render reduces the content to its display string. Parts are joined with
// newlines. Structured content renders its "text" payload when present,
// otherwise its JSON encoding.
func (c Content) Render() string {
	switch c.kind {
	case KindText:
		return c.text
	case KindParts:
		rendered := make([]string, 0, len(c.parts))
		for _, p := range c.parts {
			if s := p.Render(); s != "" {
				rendered = append(rendered, s)
			}
		}
		return strings.Join(rendered, "\n")
	case KindStructured:
		if text, ok := c.structured["text"].(string); ok {
			return text
		}
		data, err := json.Marshal(c.structured)
		if err != nil {
			return fmt.Sprintf("%v", c.structured)
		}
		return string(data)
	default:
		return ""
	}
}
