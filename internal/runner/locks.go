package runner

import "sync"

// repoLocks provides per-repository mutual exclusion.
type repoLocks struct {
	locks sync.Map // map[string]chan struct{}
}

func newRepoLocks() *repoLocks {
	return &repoLocks{}
}

// acquire blocks until the lock for key is held and returns its release func.
func (l *repoLocks) acquire(key string) func() {
	// Buffered channel of size 1 (semaphore pattern)
	actual, _ := l.locks.LoadOrStore(key, make(chan struct{}, 1))
	ch := actual.(chan struct{})

	ch <- struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() { <-ch })
	}
}
