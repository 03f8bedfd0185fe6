// Package hub owns the live agent sessions of the process. A Registry keyed
// by session id handles creation, lookup, model hot-swap, and destruction;
// a Sweeper evicts idle sessions on a fixed interval; a Coordinator drains
// everything exactly once at shutdown. All three share one destruction path
// so a session's cleanup runs at most once no matter who retires it.
package hub
