package main

import "sync"

// captureQueue accumulates audio blocks while a recording session is active.
// Single producer (the audio callback) appends; the control thread takes
// everything in one step when the session ends. DrainAll swaps the backing
// slice out under the lock, so a drain can never interleave with a concurrent
// push the way a poll-until-empty loop would.
type captureQueue struct {
	mu      sync.Mutex
	blocks  [][]float32
	samples int
}

func newCaptureQueue() *captureQueue {
	return &captureQueue{}
}

// Push copies block and appends it. The copy is taken before the lock is
// acquired so the critical section is a single append.
func (q *captureQueue) Push(block []float32) {
	cp := make([]float32, len(block))
	copy(cp, block)
	q.mu.Lock()
	q.blocks = append(q.blocks, cp)
	q.samples += len(cp)
	q.mu.Unlock()
}

// DrainAll removes and returns every queued block in push order, along with
// the total sample count across them.
func (q *captureQueue) DrainAll() ([][]float32, int) {
	q.mu.Lock()
	blocks, samples := q.blocks, q.samples
	q.blocks, q.samples = nil, 0
	q.mu.Unlock()
	return blocks, samples
}

// Len returns the number of samples currently queued.
func (q *captureQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.samples
}
