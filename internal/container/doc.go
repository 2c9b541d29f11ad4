// Package container implements the Orbit container core.
//
// A container owns one state value and exposes two output streams (state and
// side effects) plus one input entry point (Submit). Views observe the
// streams; business logic is submitted as operations.
//
// ARCHITECTURE:
//
// Admission Loop:
// Submit appends the operation to an unbounded FIFO queue and returns
// immediately. A single admission goroutine dequeues operations in
// submission order and launches each in its own goroutine, so an operation
// waiting on I/O or background work never holds up the ones behind it.
//
// Serialized Reduction:
// Many operations may be in flight, but only one reduction (read-modify-write
// of state) runs at any instant. Syntax.Reduce takes the reduction mutex for
// the duration of the reducer call and publishes the result before releasing
// it, so state subscribers observe values in commit order.
//
// Streams:
//   - State is a replay-latest broadcast cell: every subscriber first receives
//     the current state, then each later state. Subscribers are multicast.
//   - Side effects travel through one bounded channel shared by all
//     consumers. Each effect is received by exactly one consumer; effects
//     posted while nobody reads are buffered. A full buffer applies the
//     configured OverflowPolicy (default: suspend the poster).
//
// Lifecycle:
// The container lives until its parent context is cancelled or Close is
// called. Teardown cancels in-flight operations, waits for them, closes the
// side-effect channel after the last poster has exited, closes state streams
// and releases the idling resource. Submit then fails with CLOSED.
//
// Failures:
// An operation error is not retried. Under FailFast (default) it cancels the
// whole container, the same way a failed child cancels a structured scope.
// Under Isolate it is passed to the error handler and siblings keep running.
// Panics are not recovered.
package container
