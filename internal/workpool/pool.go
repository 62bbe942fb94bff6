// Package workpool provides the fixed-size worker pool that the geometry
// engine fans module copies out to.
//
// A Pool is created once per process (see Default) and shared by every
// caller. Run is a fork-join barrier: it returns only after every task it
// submitted has finished. Tasks must not block on I/O.
package workpool

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
)

// Pool is a fixed set of worker goroutines consuming batch drainers from a
// shared queue.
type Pool struct {
	size  int
	queue chan func()

	closeOnce sync.Once
	closed    atomic.Bool
	wg        sync.WaitGroup
}

// New starts a pool with size workers. size < 1 is treated as 1.
func New(size int) *Pool {
	if size < 1 {
		size = 1
	}
	p := &Pool{
		size:  size,
		queue: make(chan func(), size*4),
	}
	p.wg.Add(size)
	for i := 0; i < size; i++ {
		go p.worker()
	}
	return p
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for fn := range p.queue {
		fn()
	}
}

// Size returns the number of workers.
func (p *Pool) Size() int { return p.size }

// Close stops the workers after the queue drains. Run on a closed pool
// executes tasks on the calling goroutine.
func (p *Pool) Close() {
	p.closeOnce.Do(func() {
		p.closed.Store(true)
		close(p.queue)
		p.wg.Wait()
	})
}

// Run executes fn(0) .. fn(n-1) across the pool and blocks until all of them
// have returned.
//
// Task indices are claimed from a shared counter by pool workers and by the
// calling goroutine itself, so Run makes progress even when every worker is
// busy (including nested Run calls from inside a task). If a task panics, the
// first panic value is re-raised on the calling goroutine after the join.
func (p *Pool) Run(n int, fn func(i int)) {
	if n <= 0 {
		return
	}
	b := &batch{n: int64(n), fn: fn}
	b.done.Add(n)

	if n > 1 && !p.closed.Load() {
		helpers := p.size
		if helpers > n-1 {
			helpers = n - 1
		}
		p.offer(helpers, b.drain)
	}

	b.drain()
	b.done.Wait()

	if v := b.panicked.Load(); v != nil {
		panic(fmt.Sprintf("workpool: task panicked: %v", *v))
	}
}

// offer hands up to k drainers to idle workers without blocking. Drainers
// that cannot be queued are simply dropped: the caller drains the batch too.
func (p *Pool) offer(k int, drain func()) {
	defer func() {
		// The queue may be closed concurrently by Close.
		_ = recover()
	}()
	for i := 0; i < k; i++ {
		select {
		case p.queue <- drain:
		default:
			return
		}
	}
}

type batch struct {
	n        int64
	next     atomic.Int64
	fn       func(i int)
	done     sync.WaitGroup
	panicked atomic.Pointer[any]
}

func (b *batch) drain() {
	for {
		i := b.next.Add(1) - 1
		if i >= b.n {
			return
		}
		b.exec(int(i))
	}
}

func (b *batch) exec(i int) {
	defer b.done.Done()
	defer func() {
		if r := recover(); r != nil {
			b.panicked.CompareAndSwap(nil, &r)
		}
	}()
	b.fn(i)
}

var (
	defaultMu   sync.Mutex
	defaultPool *Pool
	defaultSize int
)

// Default returns the process-wide pool, creating it on first use with
// runtime.GOMAXPROCS(0) workers unless SetDefaultSize was called earlier.
func Default() *Pool {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultPool == nil {
		size := defaultSize
		if size < 1 {
			size = runtime.GOMAXPROCS(0)
		}
		defaultPool = New(size)
		diagf("started default pool with %d workers", size)
	}
	return defaultPool
}

// SetDefaultSize configures the size of the process-wide pool. It returns an
// error if the pool has already been started with a different size.
func SetDefaultSize(size int) error {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultPool != nil {
		if size > 0 && defaultPool.size != size {
			return fmt.Errorf("default pool already running with %d workers, cannot resize to %d", defaultPool.size, size)
		}
		return nil
	}
	defaultSize = size
	return nil
}
