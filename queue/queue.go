// Copyright 2022 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package queue implements the FIFO handing millislices over from the
// read loop to the caller.
package queue // import "github.com/go-lpc/ssp/queue"

import (
	"sync"
	"time"
)

// DefaultTimeout is the default maximum wait of Pop.
const DefaultTimeout = 100 * time.Millisecond

// Queue is an unbounded FIFO of millislices.
// Push never blocks, Pop blocks for a bounded time.
type Queue struct {
	mu    sync.Mutex
	items [][]uint32
	ready chan struct{} // signaled when items are pushed
}

// New creates an empty queue.
func New() *Queue {
	return &Queue{ready: make(chan struct{}, 1)}
}

// Push appends a slice to the queue.
func (q *Queue) Push(slice []uint32) {
	q.mu.Lock()
	q.items = append(q.items, slice)
	q.mu.Unlock()

	select {
	case q.ready <- struct{}{}:
	default:
	}
}

// Pop removes the oldest slice from the queue, waiting at most timeout
// for one to be pushed. Pop returns false when none arrived in time.
func (q *Queue) Pop(timeout time.Duration) ([]uint32, bool) {
	if slice, ok := q.tryPop(); ok {
		return slice, true
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case <-q.ready:
			if slice, ok := q.tryPop(); ok {
				return slice, true
			}
		case <-timer.C:
			return q.tryPop()
		}
	}
}

func (q *Queue) tryPop() ([]uint32, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return nil, false
	}
	slice := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	if len(q.items) > 0 {
		// keep waking up consumers while items are left.
		select {
		case q.ready <- struct{}{}:
		default:
		}
	}
	return slice, true
}

// Len returns the number of queued slices.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Reset drops all queued slices and returns how many were dropped.
func (q *Queue) Reset() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := len(q.items)
	q.items = nil
	select {
	case <-q.ready:
	default:
	}
	return n
}
