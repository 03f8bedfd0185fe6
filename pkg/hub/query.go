package hub

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hanif/warden/internal/observability"
	"github.com/hanif/warden/pkg/agent"
	"github.com/hanif/warden/pkg/retrieval"
)

// ExecuteQuery runs one conversational turn against the session's agent,
// optionally augmenting the prompt from the retrieval lookup. Errors are
// returned inside the QueryResult; the call never panics past this boundary.
func (r *Registry) ExecuteQuery(ctx context.Context, id, text string, opts QueryOptions) (result QueryResult) {
	start := time.Now()

	defer func() {
		if rec := recover(); rec != nil {
			r.deps.Logger.Error().
				Str("session_id", id).
				Interface("panic", rec).
				Msg("Query execution panicked")
			result = QueryResult{Success: false, Error: fmt.Sprintf("internal error: %v", rec)}
		}
		observability.RecordQuery(r.opts.Type, time.Since(start), result.Success)
	}()

	if strings.TrimSpace(text) == "" {
		return QueryResult{Success: false, Error: "query text cannot be empty"}
	}

	s := r.GetSession(id)
	if s == nil {
		return QueryResult{Success: false, Error: fmt.Sprintf("%v: %s", ErrSessionNotFound, id)}
	}

	if !s.tryAcquire() {
		return QueryResult{Success: false, Error: fmt.Sprintf("%v: %s", ErrSessionBusy, id)}
	}
	defer s.release()

	prompt := r.augment(ctx, text, opts)

	// Conversation id partitions memory; without one all traffic on the
	// session shares a single thread keyed by the session id.
	threadID := opts.ConversationID
	if threadID == "" {
		threadID = id
	}

	turn := s.currentAgent().RunTurn(ctx, threadID, prompt)

	var events []agent.Event
	var answer strings.Builder
	for ev := range turn.Events() {
		events = append(events, ev)
		if ev.Type == agent.EventToken {
			answer.WriteString(ev.Text)
		}
	}

	turnResult, err := turn.Wait()
	if err != nil {
		r.deps.Logger.Warn().
			Err(err).
			Str("session_id", id).
			Str("thread_id", threadID).
			Msg("Query failed")
		return QueryResult{Success: false, Events: events, Error: err.Error()}
	}

	final := turnResult.Response
	if final == "" {
		final = answer.String()
	}

	messages := make([]TranscriptMessage, 0, len(turnResult.Transcript))
	for _, m := range turnResult.Transcript {
		messages = append(messages, TranscriptMessage{
			Role:      m.Role,
			Content:   NormalizeContent(m.Content).Render(),
			Timestamp: m.Timestamp,
		})
	}

	s.appendMessage("user", TextContent(text))
	s.appendMessage("assistant", NormalizeContent(final))

	return QueryResult{
		Success:  true,
		Result:   NormalizeContent(final).Render(),
		Messages: messages,
		Events:   events,
	}
}

// augment injects retrieved context into the prompt when requested. Lookup
// failures degrade to the bare query.
func (r *Registry) augment(ctx context.Context, text string, opts QueryOptions) string {
	if !opts.UseRetrieval || opts.RetrievalID == "" || r.deps.Retrieval == nil {
		return text
	}

	res, err := r.deps.Retrieval.Query(ctx, text, opts.RetrievalID)
	if err != nil {
		r.deps.Logger.Warn().
			Err(err).
			Str("retrieval_id", opts.RetrievalID).
			Msg("Retrieval lookup failed, running query without context")
		return text
	}
	if !res.Success {
		return text
	}

	return retrieval.Augment(text, res.Context, retrieval.DefaultContextBudget)
}
