// Package queue implements the bounded inter-thread job queue that
// couples the Dispatcher to the worker pool: a Go channel standing in for
// the original daemon's POSIX message queue.
package queue

import (
	"os"
	"strconv"
	"strings"

	"github.com/rteval-org/parserd/internal/domain"
)

// defaultCapacity is used when /proc/sys/fs/mqueue/msg_max is unreadable or
// unparseable, matching the spec's stated fallback.
const defaultCapacity = 5

// mqueueMsgMaxPath is the Linux sysctl file the original daemon's POSIX
// message queue capacity was implicitly bounded by.
const mqueueMsgMaxPath = "/proc/sys/fs/mqueue/msg_max"

// Queue is a bounded, multi-producer-safe channel of Job Descriptors.
type Queue struct {
	ch chan domain.JobDescriptor
}

// New creates a Queue sized per DefaultCapacity.
func New() *Queue {
	return &Queue{ch: make(chan domain.JobDescriptor, DefaultCapacity())}
}

// NewWithCapacity creates a Queue with an explicit capacity, primarily for
// tests.
func NewWithCapacity(capacity int) *Queue {
	if capacity < 1 {
		capacity = 1
	}
	return &Queue{ch: make(chan domain.JobDescriptor, capacity)}
}

// DefaultCapacity reads /proc/sys/fs/mqueue/msg_max and returns its value,
// falling back to defaultCapacity when the file is missing or unparseable
// (true on every non-Linux host, and on some container runtimes).
func DefaultCapacity() int {
	data, err := os.ReadFile(mqueueMsgMaxPath)
	if err != nil {
		return defaultCapacity
	}
	n, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || n < 1 {
		return defaultCapacity
	}
	return n
}

// TrySend attempts a non-blocking send, reporting whether the queue
// accepted it immediately. Callers implementing the Dispatcher's
// backpressure rule use this to detect saturation without blocking
// indefinitely.
func (q *Queue) TrySend(job domain.JobDescriptor) bool {
	select {
	case q.ch <- job:
		return true
	default:
		return false
	}
}

// SendBlocking sends job, blocking until the queue has room.
func (q *Queue) SendBlocking(job domain.JobDescriptor) {
	q.ch <- job
}

// Receive blocks until a Job Descriptor is available.
func (q *Queue) Receive() domain.JobDescriptor {
	return <-q.ch
}

// Len reports the queue's current depth, for the queue-depth gauge.
func (q *Queue) Len() int {
	return len(q.ch)
}
