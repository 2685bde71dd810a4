// Package reqqueue implements the request queue: a bounded MPMC ring
// buffer over shared memory through which clients hand requests to the
// server's worker pool.
//
// A tail mutex serializes index bookkeeping and the slot copy, while two
// counting semaphores (space/count) block producers and consumers
// without polling, the same posture as a descriptor ring driven against
// a fixed depth rather than a dynamically-sized queue.
package reqqueue

import (
	"unsafe"

	"github.com/shadowcpy/hashtable/internal/protocol"
	"github.com/shadowcpy/hashtable/internal/shm"
)

const magicOffset = 0
const tailMutexOffset = magicOffset + 4
const countSemOffset = tailMutexOffset + shm.MutexSize
const spaceSemOffset = countSemOffset + shm.SemaSize
const readIdxOffset = spaceSemOffset + shm.SemaSize
const writeIdxOffset = readIdxOffset + 4
const slotsOffset = writeIdxOffset + 4

// Size returns the total byte size of a request region holding n slots.
func Size(n int) int {
	return slotsOffset + n*protocol.RequestSize
}

// Queue is the server- or client-side handle onto an attached request
// region.
type Queue struct {
	region    *shm.Region
	n         int
	tailMutex *shm.Mutex
	countSem  *shm.Sema
	spaceSem  *shm.Sema
}

func slotOffset(i int) uintptr {
	return uintptr(slotsOffset + i*protocol.RequestSize)
}

// Init initializes a freshly-created, zero-filled request region in
// place. The caller publishes MAGIC only after Init returns.
func Init(r *shm.Region, n int) *Queue {
	q := &Queue{region: r, n: n}
	q.tailMutex = shm.InitMutex(r.At(tailMutexOffset))
	q.countSem = shm.InitSema(r.At(countSemOffset), 0)
	q.spaceSem = shm.InitSema(r.At(spaceSemOffset), uint32(n))
	return q
}

// Open attaches to a request region previously initialized by Init
// (possibly in another process), after the caller has confirmed MAGIC.
func Open(r *shm.Region, n int) *Queue {
	q := &Queue{region: r, n: n}
	q.tailMutex = shm.OpenMutex(r.At(tailMutexOffset))
	q.countSem = shm.OpenSema(r.At(countSemOffset))
	q.spaceSem = shm.OpenSema(r.At(spaceSemOffset))
	return q
}

func (q *Queue) readIdxPtr() *uint32  { return (*uint32)(q.region.At(readIdxOffset)) }
func (q *Queue) writeIdxPtr() *uint32 { return (*uint32)(q.region.At(writeIdxOffset)) }

func (q *Queue) slotBytes(i int) []byte {
	off := slotOffset(i)
	return unsafe.Slice((*byte)(q.region.At(off)), protocol.RequestSize)
}

// Enqueue blocks until a slot is free, then publishes req. Called by
// clients.
func (q *Queue) Enqueue(req *protocol.Request) {
	q.spaceSem.Wait()
	q.tailMutex.Lock()
	widx := *q.writeIdxPtr()
	protocol.MarshalRequest(q.slotBytes(int(widx)%q.n), req)
	*q.writeIdxPtr() = widx + 1
	q.tailMutex.Unlock()
	q.countSem.Post()
}

// Dequeue blocks until a request is available, then returns it. Called
// by workers.
func (q *Queue) Dequeue() protocol.Request {
	q.countSem.Wait()
	q.tailMutex.Lock()
	ridx := *q.readIdxPtr()
	req := protocol.UnmarshalRequest(q.slotBytes(int(ridx) % q.n))
	*q.readIdxPtr() = ridx + 1
	q.tailMutex.Unlock()
	q.spaceSem.Post()
	return req
}

// SpaceValue returns a point-in-time read of the space semaphore, used by
// tests asserting the count+space==N invariant.
func (q *Queue) SpaceValue() uint32 { return q.spaceSem.Value() }

// CountValue returns a point-in-time read of the count semaphore.
func (q *Queue) CountValue() uint32 { return q.countSem.Value() }

// N is the fixed number of request slots.
func (q *Queue) N() int { return q.n }

// MagicOffset is the byte offset of the MAGIC header field, exported for
// the server/client startup sequencing code that publishes and reads it
// via shm.PublishMagic/ReadMagic directly on the region.
const MagicOffset = magicOffset
