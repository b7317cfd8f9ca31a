package ops

import (
	"math/bits"
	"sync"
	"sync/atomic"

	"github.com/sourcegraph/conc"
)

// workers bounds the goroutines one Conv2D or ConvTranspose2D call may use.
// Zero and one both run the kernel on the calling goroutine.
var workers atomic.Int32

// SetConvWorkers sets the per-kernel goroutine budget. Negative values are
// treated as zero.
func SetConvWorkers(n int) {
	workers.Store(int32(min(max(n, 0), 1<<31-1)))
}

func convWorkers() int { return int(workers.Load()) }

// splitChannels runs fn over contiguous output-channel ranges covering
// [0, n). Panics in fn are re-raised on the caller.
func splitChannels(n, budget int, fn func(lo, hi int)) {
	if budget <= 1 || n <= 1 {
		fn(0, n)
		return
	}

	budget = min(budget, n)
	step := (n + budget - 1) / budget

	var wg conc.WaitGroup
	for lo := 0; lo < n; lo += step {
		hi := min(lo+step, n)
		wg.Go(func() { fn(lo, hi) })
	}
	wg.Wait()
}

// Scratch buffers are pooled by power-of-two capacity, from 1<<minScratchBits
// up to 1<<maxScratchBits floats. Larger requests are plain allocations.
const (
	minScratchBits = 10
	maxScratchBits = 26
)

var scratch [maxScratchBits - minScratchBits + 1]sync.Pool

// scratchBucket returns the pool index whose capacity holds n floats, or -1
// when n exceeds the largest bucket.
func scratchBucket(n int) int {
	b := bits.Len(uint(max(n, 1) - 1))
	if b > maxScratchBits {
		return -1
	}

	return max(b, minScratchBits) - minScratchBits
}

// borrow returns a zeroed buffer of length n. Release it with giveBack.
func borrow(n int) []float32 {
	b := scratchBucket(n)
	if b < 0 {
		return make([]float32, n)
	}

	if buf, ok := scratch[b].Get().([]float32); ok {
		buf = buf[:n]
		clear(buf)

		return buf
	}

	return make([]float32, n, 1<<(b+minScratchBits))
}

func giveBack(buf []float32) {
	c := cap(buf)
	b := scratchBucket(c)
	if b < 0 || c != 1<<(b+minScratchBits) {
		return
	}

	scratch[b].Put(buf[:c])
}
