package store

import (
	"sync"
	"time"

	"github.com/memkeep/memkeep/internal/models"
)

// kindLocks serializes read-modify-write cycles per record kind. Failure to
// acquire within the retry budget surfaces as models.ErrBusy; the store is
// never left partially written.
type kindLocks struct {
	mu         sync.Mutex
	locks      map[models.Kind]*sync.Mutex
	maxRetries int
	retryDelay time.Duration
}

func newKindLocks(maxRetries int, retryDelay time.Duration) *kindLocks {
	if maxRetries <= 0 {
		maxRetries = 50
	}
	if retryDelay <= 0 {
		retryDelay = 10 * time.Millisecond
	}
	return &kindLocks{
		locks:      make(map[models.Kind]*sync.Mutex),
		maxRetries: maxRetries,
		retryDelay: retryDelay,
	}
}

func (l *kindLocks) lock(kind models.Kind) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	lk, ok := l.locks[kind]
	if !ok {
		lk = &sync.Mutex{}
		l.locks[kind] = lk
	}
	return lk
}

// acquire takes the lock for a kind, retrying a bounded number of times. On
// success the returned func releases the lock.
func (l *kindLocks) acquire(kind models.Kind) (func(), error) {
	lk := l.lock(kind)
	for i := 0; i < l.maxRetries; i++ {
		if lk.TryLock() {
			return lk.Unlock, nil
		}
		time.Sleep(l.retryDelay)
	}
	return nil, models.ErrBusy
}
