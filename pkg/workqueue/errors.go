package workqueue

import "errors"

// Queue errors.
var (
	// ErrClosed is returned when an operation is attempted on a closed queue.
	ErrClosed = errors.New("workqueue: closed")

	// ErrQueueFull is returned when Schedule is called on a queue at capacity.
	ErrQueueFull = errors.New("workqueue: queue full")

	// ErrAlreadyStarted is returned when Start is called on an already running queue.
	ErrAlreadyStarted = errors.New("workqueue: already started")
)
