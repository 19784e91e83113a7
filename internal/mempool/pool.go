// Package mempool keeps size-classed buffers for tensor and bitmap hot paths.
package mempool

import "sync"

const classStep = 1024

// sizeClass rounds n up to the next multiple of 1024.
func sizeClass(n int) int {
	if n <= classStep {
		return classStep
	}
	return (n + classStep - 1) / classStep * classStep
}

type sizedPool[T any] struct {
	pools sync.Map // size class -> *sync.Pool
}

func (s *sizedPool[T]) pool(cls int) *sync.Pool {
	p, _ := s.pools.LoadOrStore(cls, &sync.Pool{New: func() any { return make([]T, cls) }})
	return p.(*sync.Pool) //nolint:forcetypeassert // only *sync.Pool is stored
}

func (s *sizedPool[T]) get(n int) []T {
	cls := sizeClass(n)
	buf, ok := s.pool(cls).Get().([]T)
	if !ok || cap(buf) < cls {
		buf = make([]T, cls)
	}
	return buf[:n]
}

func (s *sizedPool[T]) put(buf []T) {
	if buf == nil {
		return
	}
	s.pool(sizeClass(cap(buf))).Put(buf[:cap(buf)]) //nolint:staticcheck
}

var (
	float32s sizedPool[float32]
	bools    sizedPool[bool]
)

// GetFloat32 returns a buffer of length n. Contents are not zeroed.
func GetFloat32(n int) []float32 { return float32s.get(n) }

// PutFloat32 returns a buffer obtained from GetFloat32. nil is ignored.
func PutFloat32(buf []float32) { float32s.put(buf) }

// GetBool returns a zeroed buffer of length n.
func GetBool(n int) []bool {
	buf := bools.get(n)
	clear(buf)
	return buf
}

// PutBool returns a buffer obtained from GetBool. nil is ignored.
func PutBool(buf []bool) { bools.put(buf) }
