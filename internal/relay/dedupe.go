// ABOUTME: TTL cache that drops replayed message ids at the relay boundary.
// ABOUTME: Size-bounded with O(1) eviction via an insertion-order list.

package relay

import (
	"container/list"
	"sync"
	"time"
)

// seenEntry stores when a message id was first seen and its list element.
type seenEntry struct {
	at      time.Time
	element *list.Element
}

// replayCache tracks recently routed message ids so a resent envelope is
// delivered at most once. Oldest entries are evicted first when full.
type replayCache struct {
	mu      sync.Mutex
	seen    map[string]*seenEntry
	order   *list.List // message ids, oldest at front
	ttl     time.Duration
	maxSize int
	done    chan struct{}
	closed  bool
}

// newReplayCache creates the cache and starts its cleanup loop.
func newReplayCache(ttl time.Duration, maxSize int) *replayCache {
	c := &replayCache{
		seen:    make(map[string]*seenEntry),
		order:   list.New(),
		ttl:     ttl,
		maxSize: maxSize,
		done:    make(chan struct{}),
	}
	go c.cleanup()
	return c
}

// CheckAndMark atomically reports whether the id was already seen and marks
// it otherwise. Atomicity matters: routing runs concurrently per sender.
func (c *replayCache) CheckAndMark(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if entry, ok := c.seen[id]; ok {
		if time.Since(entry.at) < c.ttl {
			return true
		}
		c.order.Remove(entry.element)
		delete(c.seen, id)
	}

	if len(c.seen) >= c.maxSize {
		if front := c.order.Front(); front != nil {
			oldest := front.Value.(string)
			c.order.Remove(front)
			delete(c.seen, oldest)
		}
	}

	c.seen[id] = &seenEntry{at: time.Now(), element: c.order.PushBack(id)}
	return false
}

// cleanup drops expired entries on a timer until Close.
func (c *replayCache) cleanup() {
	ticker := time.NewTicker(c.ttl)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.mu.Lock()
			for e := c.order.Front(); e != nil; {
				id := e.Value.(string)
				entry := c.seen[id]
				if entry == nil || time.Since(entry.at) < c.ttl {
					break // list is in insertion order; the rest are newer
				}
				next := e.Next()
				c.order.Remove(e)
				delete(c.seen, id)
				e = next
			}
			c.mu.Unlock()
		}
	}
}

// Close stops the cleanup loop.
func (c *replayCache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.done)
	}
}
