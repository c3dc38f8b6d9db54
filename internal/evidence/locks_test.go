package evidence

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLocksSameKeySameMutex(t *testing.T) {
	t.Parallel()
	locks := NewLocks()

	first := locks.Get("biz-1")
	second := locks.Get("biz-1")
	assert.Same(t, first, second)
	assert.Equal(t, 1, locks.Len())
}

func TestLocksDistinctKeys(t *testing.T) {
	t.Parallel()
	locks := NewLocks()

	a := locks.Get("biz-1")
	b := locks.Get("biz-2")
	assert.NotSame(t, a, b)
	assert.Equal(t, 2, locks.Len())
}

func TestLocksConcurrentGet(t *testing.T) {
	t.Parallel()
	locks := NewLocks()

	counter := 0
	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			mu := locks.Get("biz-1")
			mu.Lock()
			counter++
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, counter)
	assert.Equal(t, 1, locks.Len())
}
