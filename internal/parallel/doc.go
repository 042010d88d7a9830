// Package parallel implements the bounded-concurrency execution core of fanout.
//
// It provides:
//   - WorkUnit: one fully bound invocation request (target plus parameter bindings)
//   - WorkerPool: a queue-then-drain pool running at most N units at a time
//   - Outcome and Result: per-unit outcomes and their aggregate
//
// Units are queued with Submit and executed by RunToCompletion. A failing
// unit never cancels its siblings; failures are collected and reported once
// every unit has reached a terminal state.
package parallel
