package clock

import (
	"container/heap"
	"sync"
	"time"
)

// Virtual is a manually-advanced Clock for deterministic tests of the room
// actor's timer-driven transitions (question expiry, organizer grace, TTL).
// Advance moves time forward and fires any callback whose deadline has
// passed, in deadline order.
type Virtual struct {
	mu   sync.Mutex
	now  time.Time
	jobs virtualJobQueue
	seq  int
}

// NewVirtual returns a Virtual clock starting at the given instant.
func NewVirtual(start time.Time) *Virtual {
	return &Virtual{now: start}
}

type virtualJob struct {
	deadline time.Time
	interval time.Duration // zero for one-shot
	f        func()
	cancelled bool
	index    int
	seq      int
}

type virtualJobQueue []*virtualJob

func (q virtualJobQueue) Len() int { return len(q) }
func (q virtualJobQueue) Less(i, j int) bool {
	if q[i].deadline.Equal(q[j].deadline) {
		return q[i].seq < q[j].seq
	}
	return q[i].deadline.Before(q[j].deadline)
}
func (q virtualJobQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index, q[j].index = i, j
}
func (q *virtualJobQueue) Push(x any) {
	job := x.(*virtualJob)
	job.index = len(*q)
	*q = append(*q, job)
}
func (q *virtualJobQueue) Pop() any {
	old := *q
	n := len(old)
	job := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return job
}

func (c *Virtual) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Virtual) After(d time.Duration, f func()) Cancel {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.seq++
	job := &virtualJob{deadline: c.now.Add(d), f: f, seq: c.seq}
	heap.Push(&c.jobs, job)

	return func() (stopped bool) {
		c.mu.Lock()
		defer c.mu.Unlock()
		if job.cancelled {
			return false
		}
		job.cancelled = true
		return true
	}
}

func (c *Virtual) Every(d time.Duration, f func()) Cancel {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.seq++
	job := &virtualJob{deadline: c.now.Add(d), interval: d, f: f, seq: c.seq}
	heap.Push(&c.jobs, job)

	return func() (stopped bool) {
		c.mu.Lock()
		defer c.mu.Unlock()
		if job.cancelled {
			return false
		}
		job.cancelled = true
		return true
	}
}

// Advance moves the virtual clock forward by d, running every callback
// whose deadline falls at or before the new time, in deadline order.
// Periodic jobs are rescheduled for their next interval after firing.
func (c *Virtual) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	target := c.now

	var due []*virtualJob
	for c.jobs.Len() > 0 && !c.jobs[0].deadline.After(target) {
		job := heap.Pop(&c.jobs).(*virtualJob)
		if job.cancelled {
			continue
		}
		due = append(due, job)
		if job.interval > 0 {
			job.deadline = job.deadline.Add(job.interval)
			heap.Push(&c.jobs, job)
		}
	}
	c.mu.Unlock()

	for _, job := range due {
		job.f()
	}
}
