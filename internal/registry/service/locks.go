package service

import (
	"hash/fnv"
	"sync"
)

const lockStripes = 64

// stripedLocks maps record ids onto a fixed set of mutexes, each with an
// invalidation counter. Unrelated ids may share a stripe.
type stripedLocks struct {
	mu  [lockStripes]sync.Mutex
	gen [lockStripes]uint64
}

func stripe(id string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(id))
	return int(h.Sum32() % lockStripes)
}

// lock holds id's stripe until the returned func is called.
func (l *stripedLocks) lock(id string) (unlock func()) {
	m := &l.mu[stripe(id)]
	m.Lock()
	return m.Unlock
}

// generation returns the invalidation counter of id's stripe.
func (l *stripedLocks) generation(id string) uint64 {
	i := stripe(id)
	l.mu[i].Lock()
	defer l.mu[i].Unlock()
	return l.gen[i]
}

// bump advances the invalidation counter of id's stripe.
func (l *stripedLocks) bump(id string) {
	i := stripe(id)
	l.mu[i].Lock()
	l.gen[i]++
	l.mu[i].Unlock()
}

// ifCurrent runs fn under id's stripe when no bump happened since gen was read.
func (l *stripedLocks) ifCurrent(id string, gen uint64, fn func()) bool {
	i := stripe(id)
	l.mu[i].Lock()
	defer l.mu[i].Unlock()
	if l.gen[i] != gen {
		return false
	}
	fn()
	return true
}
