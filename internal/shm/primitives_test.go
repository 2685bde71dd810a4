package shm

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
	"unsafe"

	"github.com/stretchr/testify/require"
)

func TestMutexExcludesConcurrentAccess(t *testing.T) {
	var word uint32
	m := InitMutex(unsafe.Pointer(&word))

	var counter int
	var wg sync.WaitGroup
	const goroutines = 16
	const iterations = 500

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < iterations; j++ {
				m.Lock()
				counter++
				m.Unlock()
			}
		}()
	}
	wg.Wait()
	require.Equal(t, goroutines*iterations, counter)
}

func TestMutexOpenSharesState(t *testing.T) {
	var word uint32
	a := InitMutex(unsafe.Pointer(&word))
	b := OpenMutex(unsafe.Pointer(&word))

	a.Lock()
	locked := make(chan struct{})
	go func() {
		b.Lock()
		close(locked)
		b.Unlock()
	}()

	select {
	case <-locked:
		t.Fatal("second mutex acquired lock while first still held it")
	case <-time.After(20 * time.Millisecond):
	}
	a.Unlock()

	select {
	case <-locked:
	case <-time.After(time.Second):
		t.Fatal("second mutex never acquired lock after release")
	}
}

func TestSemaWaitPost(t *testing.T) {
	var word uint32
	s := InitSema(unsafe.Pointer(&word), 2)
	require.Equal(t, uint32(2), s.Value())

	s.Wait()
	s.Wait()
	require.Equal(t, uint32(0), s.Value())

	done := make(chan struct{})
	go func() {
		s.Wait()
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("Wait returned before a Post was issued")
	case <-time.After(20 * time.Millisecond):
	}

	s.Post()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Wait never returned after Post")
	}
}

// TestSemaPairInvariant exercises the count+space invariant from a bounded
// ring buffer's perspective: every slot is accounted for by exactly one of
// the two semaphores at all times.
func TestSemaPairInvariant(t *testing.T) {
	const n = 8
	var spaceWord, countWord uint32
	space := InitSema(unsafe.Pointer(&spaceWord), n)
	count := InitSema(unsafe.Pointer(&countWord), 0)

	for i := 0; i < n; i++ {
		space.Wait()
		count.Post()
	}
	require.Equal(t, uint32(0), space.Value())
	require.Equal(t, uint32(n), count.Value())

	for i := 0; i < n; i++ {
		count.Wait()
		space.Post()
	}
	require.Equal(t, uint32(n), space.Value())
	require.Equal(t, uint32(0), count.Value())
}

func TestRWMutexConcurrentReaders(t *testing.T) {
	var word int32
	l := InitRWMutex(unsafe.Pointer(&word))

	var active int32
	var maxSeen int32
	var wg sync.WaitGroup
	const readers = 8

	for i := 0; i < readers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.RLock()
			n := atomic.AddInt32(&active, 1)
			for {
				m := atomic.LoadInt32(&maxSeen)
				if n <= m || atomic.CompareAndSwapInt32(&maxSeen, m, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			atomic.AddInt32(&active, -1)
			l.RUnlock()
		}()
	}
	wg.Wait()
	require.Greater(t, maxSeen, int32(1), "readers should have overlapped")
}

func TestRWMutexWriterExcludesReaders(t *testing.T) {
	var word int32
	l := InitRWMutex(unsafe.Pointer(&word))

	l.Lock()
	rlocked := make(chan struct{})
	go func() {
		l.RLock()
		close(rlocked)
		l.RUnlock()
	}()

	select {
	case <-rlocked:
		t.Fatal("reader acquired lock while writer held it")
	case <-time.After(20 * time.Millisecond):
	}
	l.Unlock()

	select {
	case <-rlocked:
	case <-time.After(time.Second):
		t.Fatal("reader never acquired lock after writer released")
	}
}

func TestRWMutexWriterExclusion(t *testing.T) {
	var word int32
	l := InitRWMutex(unsafe.Pointer(&word))

	var counter int
	var wg sync.WaitGroup
	const writers = 8
	const iterations = 200

	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < iterations; j++ {
				l.Lock()
				counter++
				l.Unlock()
			}
		}()
	}
	wg.Wait()
	require.Equal(t, writers*iterations, counter)
}
