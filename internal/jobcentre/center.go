// Package jobcentre implements a JSON-line priority job queue: put, get
// (optionally blocking until a job is available), delete, and abort.
package jobcentre

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
)

// Center holds every queue and every outstanding job across all
// connections.
type Center struct {
	mu       sync.Mutex
	queues   map[string]*priorityQueue
	allJobs  map[int64]*Job
	nextID   atomic.Int64
	newJobCh chan struct{} // closed and replaced whenever a job becomes available
}

// NewCenter returns an empty job centre.
func NewCenter() *Center {
	return &Center{
		queues:   make(map[string]*priorityQueue),
		allJobs:  make(map[int64]*Job),
		newJobCh: make(chan struct{}),
	}
}

var (
	errMissingFields = errors.New("missing one or more of queue, job, or pri")
	errBadPriority   = errors.New("pri must be non-negative")
)

// Put adds job to queue at priority pri and returns its assigned ID.
func (c *Center) Put(queue string, job json.RawMessage, pri int) (int64, error) {
	if queue == "" || job == nil {
		return 0, errMissingFields
	}
	if pri < 0 {
		return 0, errBadPriority
	}
	id := c.nextID.Add(1)

	c.mu.Lock()
	q, ok := c.queues[queue]
	if !ok {
		q = &priorityQueue{}
		c.queues[queue] = q
	}
	j := &Job{Priority: pri, ID: id, Val: job, Queue: queue}
	q.push(j)
	c.allJobs[id] = j
	c.wake()
	c.mu.Unlock()
	return id, nil
}

// Get returns the highest-priority job across queues, assigning it to
// clientID. If wait is true and ctx is not cancelled first, Get blocks
// until a job becomes available.
func (c *Center) Get(ctx context.Context, queues []string, wait bool, clientID int64) (*Job, bool, error) {
	if len(queues) == 0 {
		return nil, false, errors.New("missing field queues")
	}
	for {
		c.mu.Lock()
		job, queue := c.bestJob(queues)
		if job != nil {
			queue.pop()
			job.Assignee = clientID
			c.mu.Unlock()
			return job, true, nil
		}
		ch := c.newJobCh
		c.mu.Unlock()

		if !wait {
			return nil, false, nil
		}
		select {
		case <-ch:
		case <-ctx.Done():
			return nil, false, nil
		}
	}
}

// bestJob returns the highest-priority job across queues and the
// queue it came from, without removing it. Must be called with mu held.
func (c *Center) bestJob(queues []string) (*Job, *priorityQueue) {
	var best *Job
	var bestQueue *priorityQueue
	for _, name := range queues {
		q, ok := c.queues[name]
		if !ok {
			continue
		}
		j, ok := q.Max()
		if !ok {
			continue
		}
		if best == nil || j.Priority > best.Priority {
			best = j
			bestQueue = q
		}
	}
	return best, bestQueue
}

// Delete permanently removes a job, whether queued or assigned.
func (c *Center) Delete(id int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	job, ok := c.allJobs[id]
	if !ok {
		return false
	}
	if job.Assignee == 0 {
		if q, ok := c.queues[job.Queue]; ok {
			q.delete(job)
		}
	}
	delete(c.allJobs, id)
	return true
}

// Abort returns a job held by clientID back to its queue. It reports
// whether the job exists at all (for "no-job" vs. ownership-error
// responses) and whether clientID actually held it.
func (c *Center) Abort(id, clientID int64) (exists bool, owned bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	job, ok := c.allJobs[id]
	if !ok {
		return false, false
	}
	if job.Assignee != clientID {
		return true, false
	}
	job.Assignee = 0
	if q, ok := c.queues[job.Queue]; ok {
		q.push(job)
	}
	c.wake()
	return true, true
}

// ReleaseClient returns every job still assigned to clientID back to
// its queue. Called when a connection disconnects.
func (c *Center) ReleaseClient(clientID int64, jobIDs []int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range jobIDs {
		job, ok := c.allJobs[id]
		if !ok || job.Assignee != clientID {
			continue
		}
		job.Assignee = 0
		if q, ok := c.queues[job.Queue]; ok {
			q.push(job)
		}
	}
	c.wake()
}

// wake unblocks every goroutine waiting in Get. Must be called with mu held.
func (c *Center) wake() {
	close(c.newJobCh)
	c.newJobCh = make(chan struct{})
}
