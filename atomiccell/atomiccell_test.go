package atomiccell

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoadStore(t *testing.T) {
	c := New(1)
	assert.Equal(t, 1, c.Load())
	c.Store(42)
	assert.Equal(t, 42, c.Load())
}

func TestConcurrentLoadStore(t *testing.T) {
	c := New(0)
	var wg sync.WaitGroup
	for i := 1; i <= 100; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			c.Store(n)
		}(i)
	}
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = c.Load()
		}()
	}
	wg.Wait()
	assert.GreaterOrEqual(t, c.Load(), 0)
}

func TestUpdate(t *testing.T) {
	c := New(10)
	got := c.Update(func(v int) int { return v + 5 })
	assert.Equal(t, 15, got)
	assert.Equal(t, 15, c.Load())
}
