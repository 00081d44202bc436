// Package mempool pools []float32 buffers used for image tensors.
package mempool

import (
	"sync"
	"sync/atomic"
)

// float32Pools maps a size class (int) to its *sync.Pool.
var float32Pools sync.Map

// sizeClass rounds n up to the next multiple of 1024, minimum 1024.
func sizeClass(n int) int {
	const step = 1024
	if n <= step {
		return step
	}
	return (n + step - 1) / step * step
}

func poolFor(cls int) *sync.Pool {
	pAny, _ := float32Pools.LoadOrStore(cls, &sync.Pool{New: func() any { return make([]float32, cls) }})
	p, _ := pAny.(*sync.Pool)
	return p
}

// GetFloat32 retrieves a []float32 of length n. Contents are not zeroed.
// The caller must return it via PutFloat32 when done.
func GetFloat32(n int) []float32 {
	cls := sizeClass(n)
	p := poolFor(cls)
	if p == nil {
		return make([]float32, n, cls)
	}
	buf, ok := p.Get().([]float32)
	if !ok || cap(buf) < cls {
		buf = make([]float32, cls)
	}
	return buf[:n]
}

// PutFloat32 returns a buffer to the pool. It is safe to pass a nil slice.
func PutFloat32(buf []float32) {
	if buf == nil {
		return
	}
	// Buffers whose capacity is not a size class would be re-bucketed upwards
	// and handed out too small; drop them instead.
	if c := cap(buf); c != sizeClass(c) {
		return
	}
	if p := poolFor(cap(buf)); p != nil {
		p.Put(buf[:cap(buf)]) //nolint:staticcheck
	}
}

// Pool wraps the package pools and counts traffic through it.
// The zero value is ready to use.
type Pool struct {
	gets atomic.Int64
	puts atomic.Int64
}

// Stats is a snapshot of a Pool's counters.
type Stats struct {
	Gets        int64 `json:"gets"`
	Puts        int64 `json:"puts"`
	Outstanding int64 `json:"outstanding"`
}

// Get acquires a buffer of length n.
func (p *Pool) Get(n int) []float32 {
	p.gets.Add(1)
	return GetFloat32(n)
}

// Put releases a buffer acquired with Get.
func (p *Pool) Put(buf []float32) {
	if buf == nil {
		return
	}
	p.puts.Add(1)
	PutFloat32(buf)
}

// Stats returns the current counters.
func (p *Pool) Stats() Stats {
	g, r := p.gets.Load(), p.puts.Load()
	return Stats{Gets: g, Puts: r, Outstanding: g - r}
}
