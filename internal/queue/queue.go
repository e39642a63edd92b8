package queue

import (
	"context"
	"errors"
)

// Publisher publishes send jobs to a queue.
type Publisher interface {
	Publish(ctx context.Context, queue string, job SendJob) error
	Close() error
}

// MessageHandler handles a consumed send job. A plain error is
// redelivered; an error wrapped with Terminal dead-letters the job.
type MessageHandler func(ctx context.Context, job SendJob) error

// Consumer consumes send jobs from a queue.
type Consumer interface {
	Consume(ctx context.Context, queue string, handler MessageHandler) error
	Close() error
}

const (
	// SendQueue is the work queue relay workers consume from.
	SendQueue = "fcm.send"
	// SendDLQ receives jobs that failed terminally.
	SendDLQ = "fcm.send.dead"

	// queueMaxPriority is the RabbitMQ x-max-priority value for the work queue.
	queueMaxPriority int32 = 3
)

// PriorityValue maps job priority to RabbitMQ message priority.
func PriorityValue(priority Priority) uint8 {
	switch priority {
	case PriorityHigh:
		return 3
	case PriorityNormal:
		return 2
	case PriorityLow:
		return 1
	default:
		return 0
	}
}

type terminalError struct {
	err error
}

func (e *terminalError) Error() string {
	if e == nil || e.err == nil {
		return "terminal handler failure"
	}
	return e.err.Error()
}

func (e *terminalError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.err
}

// Terminal marks a handler failure that must not be redelivered.
func Terminal(err error) error {
	if err == nil {
		return nil
	}
	return &terminalError{err: err}
}

// IsTerminal reports whether a handler failure should dead-letter the
// delivery instead of requeueing it.
func IsTerminal(err error) bool {
	var terminal *terminalError
	return errors.As(err, &terminal)
}
