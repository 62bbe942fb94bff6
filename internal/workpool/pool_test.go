package workpool

import (
	"bytes"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunVisitsEveryIndexOnce(t *testing.T) {
	t.Parallel()

	p := New(4)
	defer p.Close()

	for _, n := range []int{0, 1, 3, 4, 17, 1000} {
		hits := make([]int32, n)
		p.Run(n, func(i int) {
			atomic.AddInt32(&hits[i], 1)
		})
		for i, h := range hits {
			require.Equal(t, int32(1), h, "n=%d index %d", n, i)
		}
	}
}

func TestRunIsABarrier(t *testing.T) {
	t.Parallel()

	p := New(3)
	defer p.Close()

	var finished atomic.Int64
	p.Run(64, func(i int) {
		sum := 0
		for k := 0; k < 10000; k++ {
			sum += k * i
		}
		_ = sum
		finished.Add(1)
	})
	assert.Equal(t, int64(64), finished.Load())
}

func TestNestedRunDoesNotDeadlock(t *testing.T) {
	t.Parallel()

	p := New(2)
	defer p.Close()

	var total atomic.Int64
	p.Run(8, func(i int) {
		p.Run(8, func(j int) {
			total.Add(1)
		})
	})
	assert.Equal(t, int64(64), total.Load())
}

func TestRunReraisesPanic(t *testing.T) {
	t.Parallel()

	p := New(2)
	defer p.Close()

	var ran atomic.Int64
	assert.Panics(t, func() {
		p.Run(10, func(i int) {
			ran.Add(1)
			if i == 3 {
				panic("boom")
			}
		})
	})
	// Every other task still ran to completion before the panic surfaced.
	assert.Equal(t, int64(10), ran.Load())

	// The pool stays usable afterwards.
	var after atomic.Int64
	p.Run(5, func(int) { after.Add(1) })
	assert.Equal(t, int64(5), after.Load())
}

func TestRunOnClosedPool(t *testing.T) {
	t.Parallel()

	p := New(2)
	p.Close()
	p.Close()

	var n atomic.Int64
	p.Run(7, func(int) { n.Add(1) })
	assert.Equal(t, int64(7), n.Load())
}

func TestNewClampsSize(t *testing.T) {
	t.Parallel()

	p := New(0)
	defer p.Close()
	assert.Equal(t, 1, p.Size())
}

func TestDefaultPool(t *testing.T) {
	var buf bytes.Buffer
	SetLogWriter(&buf)
	defer SetLogWriter(nil)

	p := Default()
	require.NotNil(t, p)
	assert.Same(t, p, Default())
	assert.GreaterOrEqual(t, p.Size(), 1)

	assert.NoError(t, SetDefaultSize(p.Size()))
	assert.Error(t, SetDefaultSize(p.Size()+1))
	assert.NoError(t, SetDefaultSize(0))
}
