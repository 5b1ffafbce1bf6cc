package kernels

import "sync/atomic"

func atomicMin(addr *uint32, v uint32) {
	for {
		old := atomic.LoadUint32(addr)
		if v >= old || atomic.CompareAndSwapUint32(addr, old, v) {
			return
		}
	}
}

func atomicMax(addr *uint32, v uint32) {
	for {
		old := atomic.LoadUint32(addr)
		if v <= old || atomic.CompareAndSwapUint32(addr, old, v) {
			return
		}
	}
}

func atomicAdd(addr *uint32, v uint32) {
	atomic.AddUint32(addr, v)
}
