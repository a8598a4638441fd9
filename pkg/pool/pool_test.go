package pool

import (
	"bytes"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPoolResetsOnPut(t *testing.T) {
	p := New(
		func() *bytes.Buffer { return new(bytes.Buffer) },
		func(b *bytes.Buffer) { b.Reset() },
	)

	b := p.Get()
	b.WriteString("payload")
	p.Put(b)

	again := p.Get()
	assert.Zero(t, again.Len())
	p.Put(again)

	allocated, inUse, _, misses := p.Stats()
	assert.GreaterOrEqual(t, allocated, int64(1))
	assert.Equal(t, allocated, misses)
	assert.Zero(t, inUse)
}

func TestPoolDiscard(t *testing.T) {
	p := New(func() []byte { return make([]byte, 0, 16) }, nil)

	buf := p.Get()
	_, inUse, _, _ := p.Stats()
	assert.Equal(t, int64(1), inUse)

	p.Discard(buf)
	_, inUse, _, _ = p.Stats()
	assert.Zero(t, inUse)
}

func TestPoolConcurrentUse(t *testing.T) {
	p := New(func() *int { return new(int) }, func(v *int) { *v = 0 })

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				v := p.Get()
				*v = j
				p.Put(v)
			}
		}()
	}
	wg.Wait()

	_, inUse, _, _ := p.Stats()
	assert.Zero(t, inUse)
}
