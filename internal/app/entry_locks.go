package app

import "sync"

// entryLocks sérialise les opérations sur une même entrée de liste.
// La clé est le media id: il identifie l'entrée avant même qu'un local id
// existe, et ne change jamais ensuite.
type entryLocks struct {
	mu    sync.Mutex
	locks map[int]*entryLock
}

type entryLock struct {
	mu   sync.Mutex
	refs int
}

func newEntryLocks() *entryLocks {
	return &entryLocks{locks: make(map[int]*entryLock)}
}

func (l *entryLocks) Lock(mediaID int) (unlock func()) {
	l.mu.Lock()
	el, ok := l.locks[mediaID]
	if !ok {
		el = &entryLock{}
		l.locks[mediaID] = el
	}
	el.refs++
	l.mu.Unlock()

	el.mu.Lock()

	var once sync.Once
	return func() {
		once.Do(func() {
			el.mu.Unlock()
			l.mu.Lock()
			el.refs--
			if el.refs == 0 {
				delete(l.locks, mediaID)
			}
			l.mu.Unlock()
		})
	}
}

func (l *entryLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
