package pubsub

// ClosedError is returned by a PubSub that has been closed.
type ClosedError struct {
	Op string
}

func (e ClosedError) Error() string {
	return "pubsub closed: " + e.Op
}

var (
	ErrPublisherClosed  = ClosedError{Op: "publish"}
	ErrSubscriberClosed = ClosedError{Op: "subscribe"}
)
