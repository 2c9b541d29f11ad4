// Package flow provides the stream primitives the container is built on.
//
// Queue is an unbounded FIFO used for operation admission and for
// per-subscriber delivery. Cell is a replay-latest broadcast value used for
// the state stream and for the subscription signal.
//
// Neither type ever blocks a producer. Backpressure, where it exists, is
// applied by the caller (see the side-effect channel in package container).
package flow
