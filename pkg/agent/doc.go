// Package agent executes conversational turns against a language-model
// backend and a set of bound tool handles. Conversation state is partitioned
// by thread identifier, so one agent can serve several independent
// conversations. Each turn emits a finite stream of typed events (tokens and
// tool invocations) that the caller consumes.
package agent
