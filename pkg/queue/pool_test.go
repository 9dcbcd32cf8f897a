package queue

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPoolStopWithoutStartDoesNotPanic(t *testing.T) {
	pool := NewWorkerPool("test-pod", nil, testQueueConfig(), nil)

	// No workers were spawned; Stop must still be safe, repeatedly.
	assert.NotPanics(t, func() { pool.Stop() })
	assert.NotPanics(t, func() { pool.Stop() })
}

func TestPoolWorkerIDs(t *testing.T) {
	pool := NewWorkerPool("host:123", nil, testQueueConfig(), nil)
	assert.Equal(t, "host:123", pool.workerID)
	assert.Empty(t, pool.workers, "workers spawn on Start, not construction")
}
