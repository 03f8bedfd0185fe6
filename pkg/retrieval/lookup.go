package retrieval

import (
	"context"
	"fmt"
	"strings"
)

const (
	// DefaultContextBudget caps how many characters of retrieved context are
	// injected into a query.
	DefaultContextBudget = 4000

	truncationMarker = "\n[context truncated]"
)

// Result is the outcome of a retrieval lookup.
type Result struct {
	Success bool   `json:"success"`
	Context string `json:"context,omitempty"`
}

// Lookup resolves context text for a retrieval identifier.
type Lookup interface {
	Query(ctx context.Context, text, identifier string) (Result, error)
}

// Augment prepends retrieved context to a query as a framed block. The
// context is truncated to budget characters with a marker when cut; budget
// <= 0 uses DefaultContextBudget.
func Augment(query, contextText string, budget int) string {
	if contextText == "" {
		return query
	}
	if budget <= 0 {
		budget = DefaultContextBudget
	}

	if runes := []rune(contextText); len(runes) > budget {
		contextText = string(runes[:budget]) + truncationMarker
	}

	var b strings.Builder
	b.WriteString("Use the following context to answer the question.\n\n")
	b.WriteString("--- context ---\n")
	b.WriteString(contextText)
	b.WriteString("\n--- end context ---\n\n")
	b.WriteString(fmt.Sprintf("Question: %s", query))
	return b.String()
}
