package engine

import (
	"context"
	"sync"

	"github.com/forecastkit/forecastkit/pkg/telemetry"
)

// GroupQueue serializes executions per dataset group. Uploads for
// different groups run concurrently; a second upload for the same group
// waits until the active execution releases the group. Resource names are
// deterministic per group, so concurrent executions of the same group
// would race on the same service resources.
type GroupQueue struct {
	mu      sync.Mutex
	groups  map[string]chan struct{}
	queued  int
	metrics *telemetry.Metrics
}

// NewGroupQueue creates an empty queue.
func NewGroupQueue(metrics *telemetry.Metrics) *GroupQueue {
	return &GroupQueue{
		groups:  make(map[string]chan struct{}),
		metrics: metrics,
	}
}

// Acquire blocks until the dataset group is free, then claims it. The
// returned release function must be called exactly once.
func (q *GroupQueue) Acquire(ctx context.Context, datasetGroup string) (func(), error) {
	q.mu.Lock()
	sem, ok := q.groups[datasetGroup]
	if !ok {
		sem = make(chan struct{}, 1)
		q.groups[datasetGroup] = sem
	}
	q.mu.Unlock()

	select {
	case sem <- struct{}{}:
		// Claimed without waiting.
	default:
		q.addQueued(1)
		select {
		case sem <- struct{}{}:
			q.addQueued(-1)
		case <-ctx.Done():
			q.addQueued(-1)
			return nil, ctx.Err()
		}
	}

	var once sync.Once
	release := func() {
		once.Do(func() { <-sem })
	}
	return release, nil
}

func (q *GroupQueue) addQueued(delta int) {
	q.mu.Lock()
	q.queued += delta
	queued := q.queued
	q.mu.Unlock()
	if q.metrics != nil {
		q.metrics.SetQueuedExecutions(float64(queued))
	}
}
