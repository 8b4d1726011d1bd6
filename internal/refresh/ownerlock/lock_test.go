package ownerlock

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLock_SerializesSameOwner(t *testing.T) {
	registry := NewRegistry()

	const workers = 16
	var counter int
	var wg sync.WaitGroup

	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			unlock := registry.Lock("acme")
			defer unlock()
			counter++
		}()
	}
	wg.Wait()

	assert.Equal(t, workers, counter)
}

func TestLock_DifferentOwnersDoNotBlock(t *testing.T) {
	registry := NewRegistry()

	unlockA := registry.Lock("acme")
	defer unlockA()

	done := make(chan struct{})
	go func() {
		unlockB := registry.Lock("globex")
		unlockB()
		close(done)
	}()

	<-done
}

func TestLock_ReleasedLockCanBeReacquired(t *testing.T) {
	registry := NewRegistry()

	unlock := registry.Lock("acme")
	unlock()

	again := registry.Lock("acme")
	again()
}
