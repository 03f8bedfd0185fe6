package hub

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hanif/warden/pkg/agent"
	"github.com/hanif/warden/pkg/retrieval"
)

func TestExecuteQuery_MissingSession(t *testing.T) {
	h := setupRegistry(t)

	result := h.registry.ExecuteQuery(context.Background(), "missing", "hello", QueryOptions{})

	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "session not found")
}

func TestExecuteQuery_EmptyText(t *testing.T) {
	h := setupRegistry(t)

	result := h.registry.ExecuteQuery(context.Background(), "sess-1", "   ", QueryOptions{})
	assert.False(t, result.Success)
}

func TestExecuteQuery_Success(t *testing.T) {
	h := setupRegistry(t)
	ctx := context.Background()

	require.NoError(t, h.registry.CreateSession(ctx, "sess-1", testConfig()))

	result := h.registry.ExecuteQuery(ctx, "sess-1", "what is the capital of France?", QueryOptions{})

	require.True(t, result.Success, result.Error)
	assert.Equal(t, "ok", result.Result)

	// One token event carrying the answer
	var tokens []agent.Event
	for _, ev := range result.Events {
		if ev.Type == agent.EventToken {
			tokens = append(tokens, ev)
		}
	}
	require.NotEmpty(t, tokens)
	assert.Equal(t, "ok", tokens[len(tokens)-1].Text)

	// Transcript mapped to the caller-facing shape
	require.Len(t, result.Messages, 2)
	assert.Equal(t, "user", result.Messages[0].Role)
	assert.Equal(t, "assistant", result.Messages[1].Role)
	assert.False(t, result.Messages[1].Timestamp.IsZero())

	// Session message log grew by one user and one assistant entry
	msgs := h.registry.GetSession("sess-1").Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "what is the capital of France?", msgs[0].Content)
	assert.Equal(t, "ok", msgs[1].Content)
}

func TestExecuteQuery_BackendErrorSurfaces(t *testing.T) {
	h := setupRegistry(t)
	ctx := context.Background()

	require.NoError(t, h.registry.CreateSession(ctx, "sess-1", testConfig()))
	h.factory.backends[0].errs = []error{fmt.Errorf("401 unauthorized")}

	result := h.registry.ExecuteQuery(ctx, "sess-1", "hello", QueryOptions{})

	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "401")

	// Session survives a failed query
	assert.True(t, h.registry.HasSession("sess-1"))
}

func TestExecuteQuery_Busy(t *testing.T) {
	h := setupRegistry(t)
	ctx := context.Background()

	require.NoError(t, h.registry.CreateSession(ctx, "sess-1", testConfig()))

	s := h.registry.GetSession("sess-1")
	require.True(t, s.tryAcquire())
	defer s.release()

	result := h.registry.ExecuteQuery(ctx, "sess-1", "hello", QueryOptions{})

	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "session busy")
}

func TestExecuteQuery_ConversationIsolation(t *testing.T) {
	h := setupRegistry(t)
	ctx := context.Background()

	require.NoError(t, h.registry.CreateSession(ctx, "sess-1", testConfig()))

	r1 := h.registry.ExecuteQuery(ctx, "sess-1", "first topic", QueryOptions{ConversationID: "conv-a"})
	r2 := h.registry.ExecuteQuery(ctx, "sess-1", "second topic", QueryOptions{ConversationID: "conv-b"})
	require.True(t, r1.Success)
	require.True(t, r2.Success)

	// Each conversation has its own memory partition
	threads := h.registry.GetSession("sess-1").currentAgent().Threads()
	assert.Equal(t, 2, threads.Len("conv-a"))
	assert.Equal(t, 2, threads.Len("conv-b"))

	// Neither transcript leaks into the other
	require.Len(t, r2.Messages, 2)
	assert.Equal(t, "second topic", r2.Messages[0].Content)

	// The session log saw both queries
	assert.Len(t, h.registry.GetSession("sess-1").Messages(), 4)
}

func TestExecuteQuery_DefaultThreadIsSessionID(t *testing.T) {
	h := setupRegistry(t)
	ctx := context.Background()

	require.NoError(t, h.registry.CreateSession(ctx, "sess-1", testConfig()))

	result := h.registry.ExecuteQuery(ctx, "sess-1", "hello", QueryOptions{})
	require.True(t, result.Success)

	threads := h.registry.GetSession("sess-1").currentAgent().Threads()
	assert.Equal(t, 2, threads.Len("sess-1"))
}

func TestExecuteQuery_RetrievalAugmentation(t *testing.T) {
	h := setupRegistry(t)
	ctx := context.Background()

	h.lookup.result = retrieval.Result{Success: true, Context: "Paris is the capital of France."}

	require.NoError(t, h.registry.CreateSession(ctx, "sess-1", testConfig()))

	result := h.registry.ExecuteQuery(ctx, "sess-1", "capital of France?", QueryOptions{
		UseRetrieval: true,
		RetrievalID:  "kb-1",
	})
	require.True(t, result.Success)

	req := h.factory.backends[0].lastRequest()
	prompt := req.Messages[len(req.Messages)-1].Content
	assert.Contains(t, prompt, "--- context ---")
	assert.Contains(t, prompt, "Paris is the capital of France.")
	assert.True(t, strings.HasSuffix(prompt, "Question: capital of France?"))
}

func TestExecuteQuery_RetrievalMissDegrades(t *testing.T) {
	h := setupRegistry(t)
	ctx := context.Background()

	h.lookup.result = retrieval.Result{Success: false}

	require.NoError(t, h.registry.CreateSession(ctx, "sess-1", testConfig()))

	result := h.registry.ExecuteQuery(ctx, "sess-1", "hello", QueryOptions{
		UseRetrieval: true,
		RetrievalID:  "kb-1",
	})
	require.True(t, result.Success)

	req := h.factory.backends[0].lastRequest()
	assert.Equal(t, "hello", req.Messages[len(req.Messages)-1].Content)
}

func TestExecuteQuery_RetrievalErrorDegrades(t *testing.T) {
	h := setupRegistry(t)
	ctx := context.Background()

	h.lookup.err = fmt.Errorf("vector store offline")

	require.NoError(t, h.registry.CreateSession(ctx, "sess-1", testConfig()))

	result := h.registry.ExecuteQuery(ctx, "sess-1", "hello", QueryOptions{
		UseRetrieval: true,
		RetrievalID:  "kb-1",
	})
	assert.True(t, result.Success)
}
