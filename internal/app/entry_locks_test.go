package app

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEntryLocks_SerializesSameKey(t *testing.T) {
	l := newEntryLocks()
	unlock := l.Lock(42)

	acquired := make(chan struct{})
	go func() {
		u := l.Lock(42)
		close(acquired)
		u()
	}()

	select {
	case <-acquired:
		t.Fatalf("second lock on the same entry should block")
	case <-time.After(50 * time.Millisecond):
	}

	// Une autre entrée n'est pas bloquée.
	other := l.Lock(43)
	other()

	unlock()
	select {
	case <-acquired:
	case <-time.After(250 * time.Millisecond):
		t.Fatalf("second lock should have proceeded")
	}
}

func TestEntryLocks_ReleasesMapEntries(t *testing.T) {
	l := newEntryLocks()
	var wg sync.WaitGroup
	counter := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := l.Lock(7)
			counter++
			unlock()
			unlock()
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, counter)
	assert.Zero(t, l.size())
}
