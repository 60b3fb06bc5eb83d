// Package events provides an unbounded FIFO queue drained by a single
// goroutine. Producers never block on slow consumers, and jobs run in the
// order they were enqueued.
package events

import (
	"fmt"
	"sync"

	"github.com/core-tools/hsu-watcher/pkg/logging"
)

// Job is a unit of delivery work.
type Job func()

// Queue delivers jobs asynchronously in FIFO order.
type Queue struct {
	name    string
	logger  logging.Logger
	mutex   sync.Mutex
	cond    *sync.Cond
	pending []Job
	closed  bool
	done    chan struct{}
}

// NewQueue starts the dispatch goroutine. Close must be called to stop it.
func NewQueue(name string, logger logging.Logger) *Queue {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	q := &Queue{
		name:   name,
		logger: logger,
		done:   make(chan struct{}),
	}
	q.cond = sync.NewCond(&q.mutex)
	go q.loop()
	return q
}

// Enqueue adds a job. It returns false once the queue is closed.
func (q *Queue) Enqueue(job Job) bool {
	if job == nil {
		return false
	}

	q.mutex.Lock()
	defer q.mutex.Unlock()

	if q.closed {
		return false
	}
	q.pending = append(q.pending, job)
	q.cond.Signal()
	return true
}

// Len returns the number of jobs waiting for delivery.
func (q *Queue) Len() int {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	return len(q.pending)
}

// Close stops accepting jobs, delivers everything already queued and waits
// for the dispatch goroutine to exit. Safe to call more than once.
func (q *Queue) Close() {
	q.mutex.Lock()
	if !q.closed {
		q.closed = true
		q.cond.Broadcast()
	}
	q.mutex.Unlock()

	<-q.done
}

func (q *Queue) loop() {
	defer close(q.done)

	for {
		q.mutex.Lock()
		for len(q.pending) == 0 && !q.closed {
			q.cond.Wait()
		}
		if len(q.pending) == 0 && q.closed {
			q.mutex.Unlock()
			return
		}
		batch := q.pending
		q.pending = nil
		q.mutex.Unlock()

		for _, job := range batch {
			q.run(job)
		}
	}
}

func (q *Queue) run(job Job) {
	defer func() {
		if r := recover(); r != nil {
			q.logger.Errorf("Event handler panicked, queue: %s, panic: %v", q.name, fmt.Sprint(r))
		}
	}()
	job()
}
