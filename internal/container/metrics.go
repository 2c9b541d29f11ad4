package container

// Metrics receives container events. Implementations must be safe for
// concurrent use and must not block.
//
// See package metrics for the Prometheus implementation.
type Metrics interface {
	OperationSubmitted()
	OperationCompleted()
	OperationFailed()
	// OperationDropped counts operations skipped by IsolateFirstOperation.
	OperationDropped()
	PendingOperations(n int)
	Reduced()
	SideEffectPosted()
	SideEffectDropped()
	// SubscribersChanged reports a change of +1 or -1 in active state subscribers.
	SubscribersChanged(delta int)
}

// NopMetrics discards all events.
type NopMetrics struct{}

func (NopMetrics) OperationSubmitted()    {}
func (NopMetrics) OperationCompleted()    {}
func (NopMetrics) OperationFailed()       {}
func (NopMetrics) OperationDropped()      {}
func (NopMetrics) PendingOperations(int)  {}
func (NopMetrics) Reduced()               {}
func (NopMetrics) SideEffectPosted()      {}
func (NopMetrics) SideEffectDropped()     {}
func (NopMetrics) SubscribersChanged(int) {}
