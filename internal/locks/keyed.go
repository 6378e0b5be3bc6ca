// Package locks serializes mutations per dataset while letting different
// datasets proceed concurrently.
package locks

import (
	"context"
	"sync"
)

type entry struct {
	ch   chan struct{}
	refs int
}

// Keyed hands out one mutex per key. Entries are dropped once no goroutine
// holds or waits for them.
type Keyed struct {
	mu      sync.Mutex
	entries map[int64]*entry
}

// New creates an empty lock registry.
func New() *Keyed {
	return &Keyed{entries: make(map[int64]*entry)}
}

// Lock blocks until key is held or ctx is done. The returned func releases it.
func (k *Keyed) Lock(ctx context.Context, key int64) (func(), error) {
	k.mu.Lock()
	e, ok := k.entries[key]
	if !ok {
		e = &entry{ch: make(chan struct{}, 1)}
		k.entries[key] = e
	}
	e.refs++
	k.mu.Unlock()

	select {
	case e.ch <- struct{}{}:
	case <-ctx.Done():
		k.release(key, e)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-e.ch
			k.release(key, e)
		})
	}, nil
}

func (k *Keyed) release(key int64, e *entry) {
	k.mu.Lock()
	defer k.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(k.entries, key)
	}
}

// Len returns the number of keys currently held or awaited.
func (k *Keyed) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.entries)
}
