package cache

import "go.uber.org/atomic"

// usageToken is a payload-less reference count. The index holds the first
// reference; every open handle or fetch owner holds one more.
type usageToken struct {
	refs atomic.Int64
}

func newUsageToken() *usageToken {
	t := &usageToken{}
	t.refs.Store(1)
	return t
}

func (t *usageToken) acquire() *usageToken {
	t.refs.Inc()
	return t
}

func (t *usageToken) release() {
	t.refs.Dec()
}

func (t *usageToken) holders() int64 {
	return t.refs.Load()
}

// busy reports whether anyone other than the index references the entry.
func (t *usageToken) busy() bool {
	return t.holders() > 1
}
