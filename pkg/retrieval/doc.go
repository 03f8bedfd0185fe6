// Package retrieval provides the optional context-injection lookup used to
// enrich queries. Documents are indexed per retrieval identifier in sqlite
// with vector search via sqlite-vec; lookups return the closest chunks as a
// single context string, which Augment frames into the prompt under a fixed
// character budget.
package retrieval
