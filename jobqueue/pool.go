package jobqueue

import (
	"sync"
	"time"
)

// PoolConfig configures a Pool.
type PoolConfig struct {
	Name        string
	MinSize     int
	MaxSize     int
	IdleTimeout time.Duration
	// QueueConfig is used as the template for queues the pool creates on
	// demand; its Name is ignored in favor of a generated per-queue id.
	QueueConfig Config
}

// Pool is a bag of JobQueues lent out on demand, with min/max/idle-reap
// policy.
type Pool struct {
	cfg PoolConfig

	mu     sync.Mutex
	idle   []*pooledQueue
	inUse  map[*JobQueue]*pooledQueue
	total  int
	closed bool
}

type pooledQueue struct {
	queue     *JobQueue
	idleSince time.Time
	reapTimer *time.Timer
}

// NewPool constructs an empty Pool; queues are created lazily by GetQueue.
func NewPool(cfg PoolConfig) *Pool {
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = 1
	}
	return &Pool{
		cfg:   cfg,
		inUse: make(map[*JobQueue]*pooledQueue),
	}
}

// GetQueue returns an available queue, retrying up to retryCount times
// (waiting retryBackoff between attempts) if none is immediately available
// and the pool is already at MaxSize. Returns nil if retries are
// exhausted.
func (p *Pool) GetQueue(retryCount int, retryBackoff time.Duration) *JobQueue {
	for attempt := 0; ; attempt++ {
		if q := p.tryGetQueue(); q != nil {
			return q
		}
		if attempt >= retryCount {
			return nil
		}
		time.Sleep(retryBackoff)
	}
}

func (p *Pool) tryGetQueue() *JobQueue {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}

	if n := len(p.idle); n > 0 {
		pq := p.idle[n-1]
		p.idle = p.idle[:n-1]
		if pq.reapTimer != nil {
			pq.reapTimer.Stop()
		}
		p.inUse[pq.queue] = pq
		return pq.queue
	}

	if p.total >= p.cfg.MaxSize {
		return nil
	}

	cfg := p.cfg.QueueConfig
	id := nextQueueID(p.cfg.Name)
	cfg.Name = id
	q := New(id, cfg)
	q.Start()
	p.total++
	p.inUse[q] = &pooledQueue{queue: q}
	return q
}

// ReleaseQueue returns q to the pool. If the pool then holds more than
// MinSize idle queues, the newly idle queue is destroyed after
// IdleTimeout of continuous idleness (unless it is borrowed again first).
func (p *Pool) ReleaseQueue(q *JobQueue) {
	p.mu.Lock()
	pq, ok := p.inUse[q]
	if !ok {
		p.mu.Unlock()
		return
	}
	delete(p.inUse, q)
	pq.idleSince = time.Now()
	p.idle = append(p.idle, pq)

	if len(p.idle) > p.cfg.MinSize && p.cfg.IdleTimeout > 0 {
		pq.reapTimer = time.AfterFunc(p.cfg.IdleTimeout, func() { p.reap(pq) })
	}
	p.mu.Unlock()
}

func (p *Pool) reap(pq *pooledQueue) {
	p.mu.Lock()
	idx := -1
	for i, c := range p.idle {
		if c == pq {
			idx = i
			break
		}
	}
	if idx < 0 || len(p.idle) <= p.cfg.MinSize {
		p.mu.Unlock()
		return
	}
	p.idle = append(p.idle[:idx], p.idle[idx+1:]...)
	p.total--
	p.mu.Unlock()

	pq.queue.StopAndWait(true)
}

// Size returns the total number of queues currently managed by the pool
// (idle + in-use).
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.total
}

// Close stops and discards every queue in the pool, idle or in use.
func (p *Pool) Close() {
	p.mu.Lock()
	p.closed = true
	idle := p.idle
	p.idle = nil
	inUse := make([]*pooledQueue, 0, len(p.inUse))
	for _, pq := range p.inUse {
		inUse = append(inUse, pq)
	}
	p.inUse = make(map[*JobQueue]*pooledQueue)
	p.total = 0
	p.mu.Unlock()

	for _, pq := range idle {
		if pq.reapTimer != nil {
			pq.reapTimer.Stop()
		}
		pq.queue.StopAndWait(true)
	}
	for _, pq := range inUse {
		pq.queue.StopAndWait(true)
	}
}
