package agent

import (
	"context"
	"fmt"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"

	"github.com/hanif/warden/pkg/backend"
	"github.com/hanif/warden/pkg/toolserver"
)

const (
	defaultMaxTurns   = 10
	defaultMaxRetries = 3
	toolCallTimeout   = 30 * time.Second
	eventBuffer       = 64
)

// Config holds agent construction parameters.
type Config struct {
	Backend    backend.Backend
	Tools      []toolserver.Handle
	Threads    *ThreadStore
	Preamble   string // system preamble prepended to every turn
	Logger     zerolog.Logger
	MaxTurns   int
	MaxRetries int
}

// Agent executes turns against one backend and one tool set.
type Agent struct {
	backend    backend.Backend
	tools      []toolserver.Handle
	toolIndex  map[string]toolserver.Handle
	threads    *ThreadStore
	preamble   string
	logger     zerolog.Logger
	maxTurns   int
	maxRetries int
}

// New creates an agent. A nil Threads gets a fresh store.
func New(cfg Config) (*Agent, error) {
	if cfg.Backend == nil {
		return nil, fmt.Errorf("backend is required")
	}
	if cfg.Threads == nil {
		cfg.Threads = NewThreadStore()
	}
	if cfg.MaxTurns <= 0 {
		cfg.MaxTurns = defaultMaxTurns
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = defaultMaxRetries
	}

	index := make(map[string]toolserver.Handle, len(cfg.Tools))
	for _, h := range cfg.Tools {
		index[h.Name] = h
	}

	return &Agent{
		backend:    cfg.Backend,
		tools:      cfg.Tools,
		toolIndex:  index,
		threads:    cfg.Threads,
		preamble:   cfg.Preamble,
		logger:     cfg.Logger,
		maxTurns:   cfg.MaxTurns,
		maxRetries: cfg.MaxRetries,
	}, nil
}

// Backend returns the bound backend.
func (a *Agent) Backend() backend.Backend {
	return a.backend
}

// Tools returns the bound tool handles.
func (a *Agent) Tools() []toolserver.Handle {
	return a.tools
}

// Threads returns the conversation store.
func (a *Agent) Threads() *ThreadStore {
	return a.threads
}

// WithBackend returns a new agent bound to b but sharing this agent's tool
// handles and thread store. Used by model hot-swap: conversations and tool
// connections survive, only the backend changes.
func (a *Agent) WithBackend(b backend.Backend) *Agent {
	return &Agent{
		backend:    b,
		tools:      a.tools,
		toolIndex:  a.toolIndex,
		threads:    a.threads,
		preamble:   a.preamble,
		logger:     a.logger,
		maxTurns:   a.maxTurns,
		maxRetries: a.maxRetries,
	}
}

// Turn is one in-flight conversational turn. Callers must drain Events
// before (or while) calling Wait.
type Turn struct {
	events chan Event
	done   chan struct{}
	result TurnResult
	err    error
}

// Events returns the turn's finite event stream. The channel is closed when
// the turn finishes.
func (t *Turn) Events() <-chan Event {
	return t.events
}

// Wait blocks until the turn completes and returns its result.
func (t *Turn) Wait() (TurnResult, error) {
	<-t.done
	return t.result, t.err
}

// RunTurn executes one conversational turn on the given thread.
func (a *Agent) RunTurn(ctx context.Context, threadID, prompt string) *Turn {
	turn := &Turn{
		events: make(chan Event, eventBuffer),
		done:   make(chan struct{}),
	}

	go func() {
		defer close(turn.done)
		defer close(turn.events)

		result, err := a.runTurn(ctx, threadID, prompt, turn.events)
		turn.result = result
		turn.err = err
	}()

	return turn
}

func (a *Agent) runTurn(ctx context.Context, threadID, prompt string, events chan<- Event) (TurnResult, error) {
	turnID, _ := gonanoid.New()
	logger := a.logger.With().Str("thread_id", threadID).Str("turn_id", turnID).Logger()

	// The prompt joins the thread only once the turn succeeds; a failed turn
	// must not leave a stray user message that reappears on retry.
	promptAt := time.Now()
	messages := append(a.buildMessages(threadID), backend.Message{Role: "user", Content: prompt})
	specs := a.toolSpecs()

	var (
		allToolCalls []backend.ToolCall
		usage        backend.TokenUsage
		finalContent string
	)

	for turn := 0; turn < a.maxTurns; turn++ {
		resp, err := a.completeWithRetry(ctx, backend.Request{
			Messages:     messages,
			Tools:        specs,
			SystemPrompt: a.preamble,
		}, logger)
		if err != nil {
			return TurnResult{}, err
		}

		if resp.Usage != nil {
			usage.InputTokens += resp.Usage.InputTokens
			usage.OutputTokens += resp.Usage.OutputTokens
		}

		if resp.Content != "" {
			events <- Event{Type: EventToken, Text: resp.Content, At: time.Now()}
			finalContent = resp.Content
		}

		if len(resp.ToolCalls) == 0 {
			a.threads.Append(threadID, ThreadMessage{Role: "user", Content: prompt, Timestamp: promptAt})
			a.threads.Append(threadID, ThreadMessage{Role: "assistant", Content: finalContent, Timestamp: time.Now()})

			return TurnResult{
				Response:   finalContent,
				Transcript: a.threads.History(threadID),
				ToolCalls:  allToolCalls,
				Usage:      &usage,
			}, nil
		}

		messages = append(messages, backend.Message{
			Role:      "assistant",
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})

		for _, call := range resp.ToolCalls {
			events <- Event{Type: EventToolStart, Tool: call.Name, CallID: call.ID, At: time.Now()}

			output, err := a.invokeTool(ctx, call)
			errMsg := ""
			if err != nil {
				errMsg = err.Error()
				output = errMsg
				logger.Warn().Str("tool", call.Name).Err(err).Msg("Tool invocation failed")
			}

			events <- Event{Type: EventToolEnd, Tool: call.Name, CallID: call.ID, Error: errMsg, At: time.Now()}

			messages = append(messages, backend.Message{
				Role:       "tool",
				Content:    output,
				ToolCallID: call.ID,
			})
		}

		allToolCalls = append(allToolCalls, resp.ToolCalls...)
	}

	return TurnResult{}, fmt.Errorf("maximum tool execution turns exceeded")
}

// buildMessages converts thread history into backend wire shape.
func (a *Agent) buildMessages(threadID string) []backend.Message {
	history := a.threads.History(threadID)

	messages := make([]backend.Message, 0, len(history))
	for _, msg := range history {
		messages = append(messages, backend.Message{
			Role:    msg.Role,
			Content: msg.Content,
		})
	}
	return messages
}

func (a *Agent) toolSpecs() []backend.ToolSpec {
	if len(a.tools) == 0 {
		return nil
	}

	specs := make([]backend.ToolSpec, 0, len(a.tools))
	for _, h := range a.tools {
		specs = append(specs, backend.ToolSpec{
			Name:        h.Name,
			Description: h.Description,
			InputSchema: h.InputSchema,
		})
	}
	return specs
}

func (a *Agent) invokeTool(ctx context.Context, call backend.ToolCall) (string, error) {
	handle, ok := a.toolIndex[call.Name]
	if !ok {
		return "", fmt.Errorf("tool not found: %s", call.Name)
	}

	callCtx, cancel := context.WithTimeout(ctx, toolCallTimeout)
	defer cancel()

	return handle.Call(callCtx, call.Parameters)
}

// completeWithRetry calls the backend with exponential backoff on retryable
// errors: 1s, 2s, 4s.
func (a *Agent) completeWithRetry(ctx context.Context, req backend.Request, logger zerolog.Logger) (*backend.Response, error) {
	var lastErr error

	for attempt := 0; attempt < a.maxRetries; attempt++ {
		resp, err := a.backend.Complete(ctx, req)
		if err == nil {
			return resp, nil
		}

		lastErr = err

		if !IsRetryableError(err) {
			return nil, err
		}

		if attempt == a.maxRetries-1 {
			break
		}

		delay := time.Duration(1<<attempt) * time.Second
		logger.Info().
			Int("attempt", attempt+1).
			Dur("delay", delay).
			Msg("Retrying after backend error")

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}

	return nil, fmt.Errorf("max retries (%d) exceeded: %w", a.maxRetries, lastErr)
}
