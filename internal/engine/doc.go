// Package engine provides the concurrency harness for the orchestration
// controllers: a bounded worker pool that executes state transitions off the
// request path, and a periodic poller that re-checks running jobs against the
// batch scheduler until they reach a terminal state.
package engine
