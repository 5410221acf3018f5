package session

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type panel struct{ out []string }

func (p *panel) AppendOutput(text string) { p.out = append(p.out, text) }

func TestRegisterAssignsIncreasingIDs(t *testing.T) {
	r := NewRegistry()

	a := r.Register(&panel{})
	b := r.Register(&panel{})
	assert.Equal(t, ID(1), a)
	assert.Equal(t, ID(2), b)
	assert.Equal(t, 2, r.Len())
}

func TestRegisterNilPanel(t *testing.T) {
	r := NewRegistry()
	assert.Equal(t, None, r.Register(nil))
	assert.Zero(t, r.Len())
}

func TestIDsNeverReused(t *testing.T) {
	r := NewRegistry()

	a := r.Register(&panel{})
	require.True(t, r.Unregister(a))
	b := r.Register(&panel{})
	assert.NotEqual(t, a, b)
	assert.Greater(t, b, a)
}

func TestResolve(t *testing.T) {
	r := NewRegistry()
	p := &panel{}
	id := r.Register(p)

	h, ok := r.Lookup(id)
	require.True(t, ok)

	got, ok := r.Resolve(h)
	require.True(t, ok)
	assert.Same(t, p, got)
}

func TestStaleHandleAfterSlotReuse(t *testing.T) {
	r := NewRegistry()
	first := &panel{}
	id := r.Register(first)
	h, _ := r.Lookup(id)

	require.True(t, r.Unregister(id))
	second := &panel{}
	r.Register(second)

	got, ok := r.Resolve(h)
	assert.False(t, ok, "recycled slot must not resolve through the old handle")
	assert.Nil(t, got)
}

func TestUnregisterIdempotent(t *testing.T) {
	r := NewRegistry()
	id := r.Register(&panel{})

	assert.True(t, r.Unregister(id))
	assert.False(t, r.Unregister(id))
	assert.False(t, r.Unregister(None))
	assert.False(t, r.Contains(id))
}

func TestZeroHandleNeverResolves(t *testing.T) {
	r := NewRegistry()
	r.Register(&panel{})

	_, ok := r.Resolve(Handle{})
	assert.False(t, ok)
	assert.True(t, Handle{}.IsZero())
}

func TestConcurrentRegisterUnregister(t *testing.T) {
	r := NewRegistry()

	var wg sync.WaitGroup
	ids := make(chan ID, 200)
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ids <- r.Register(&panel{})
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[ID]bool)
	for id := range ids {
		assert.False(t, seen[id], "duplicate id %d", id)
		seen[id] = true
	}
	assert.Equal(t, 200, r.Len())

	for id := range seen {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.Unregister(id)
		}()
	}
	wg.Wait()
	assert.Zero(t, r.Len())
}
