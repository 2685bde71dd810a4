// Package resqueue implements the response broadcast queue: every
// response published by a worker must reach every currently-joined
// client exactly once, reclaimed only after the last such delivery.
//
// This is the subtlest component of the IPC core. The per-slot
// remaining-readers reclamation and the slot_write_seq wraparound guard
// correlate a published completion back to every still-waiting reader by
// tag: a fixed-size slot ring plus a sequence number to disambiguate "not
// yet published" from "already overwritten," carrying a reader count
// instead of a single consumer handle.
package resqueue

import (
	"unsafe"

	"github.com/shadowcpy/hashtable/internal/protocol"
	"github.com/shadowcpy/hashtable/internal/shm"
)

const magicOffset = 0
const tailMutexOffset = magicOffset + 4
const spaceSemOffset = tailMutexOffset + shm.MutexSize
const writeIdxOffset = spaceSemOffset + shm.SemaSize
const activeClientsOffset = writeIdxOffset + 4
const slotsOffset = activeClientsOffset + 4

const slotRWMutexSize = shm.RWMutexSize
const slotRemainingOffset = slotRWMutexSize
const slotSeqOffset = slotRemainingOffset + 4
const slotResponseOffset = slotSeqOffset + 4
const slotSize = slotResponseOffset + protocol.ResponseSize

// MagicOffset is the byte offset of the MAGIC header field.
const MagicOffset = magicOffset

// Size returns the total byte size of a response region holding m slots.
func Size(m int) int {
	return slotsOffset + m*slotSize
}

// Queue is the server- or client-side handle onto an attached response
// region.
type Queue struct {
	region    *shm.Region
	m         int
	tailMutex *shm.Mutex
	spaceSem  *shm.Sema
}

// Init initializes a freshly-created, zero-filled response region in
// place. The caller publishes MAGIC only after Init returns.
func Init(r *shm.Region, m int) *Queue {
	q := &Queue{region: r, m: m}
	q.tailMutex = shm.InitMutex(r.At(tailMutexOffset))
	q.spaceSem = shm.InitSema(r.At(spaceSemOffset), uint32(m))
	for i := 0; i < m; i++ {
		shm.InitRWMutex(r.At(q.slotOffset(i)))
		// A zero sequence word would match a reader waiting at index 0
		// before anything is published; start every slot at a value no
		// reader waits for until the slot has been written.
		*q.slotSeqPtr(i) = ^uint32(0)
	}
	return q
}

// Open attaches to a response region previously initialized by Init
// (possibly in another process), after the caller has confirmed MAGIC.
func Open(r *shm.Region, m int) *Queue {
	return &Queue{
		region:    r,
		m:         m,
		tailMutex: shm.OpenMutex(r.At(tailMutexOffset)),
		spaceSem:  shm.OpenSema(r.At(spaceSemOffset)),
	}
}

func (q *Queue) slotOffset(i int) uintptr {
	return uintptr(slotsOffset + i*slotSize)
}

func (q *Queue) slotRWMutex(i int) *shm.RWMutex {
	return shm.OpenRWMutex(q.region.At(q.slotOffset(i)))
}

func (q *Queue) slotRemainingPtr(i int) *uint32 {
	return (*uint32)(q.region.At(q.slotOffset(i) + slotRemainingOffset))
}

func (q *Queue) slotSeqPtr(i int) *uint32 {
	return (*uint32)(q.region.At(q.slotOffset(i) + slotSeqOffset))
}

func (q *Queue) slotResponseBytes(i int) []byte {
	off := q.slotOffset(i) + slotResponseOffset
	return unsafe.Slice((*byte)(q.region.At(off)), protocol.ResponseSize)
}

func (q *Queue) writeIdxPtr() *uint32      { return (*uint32)(q.region.At(writeIdxOffset)) }
func (q *Queue) activeClientsPtr() *uint32 { return (*uint32)(q.region.At(activeClientsOffset)) }

// M is the fixed number of response slots.
func (q *Queue) M() int { return q.m }

// SpaceValue returns a point-in-time read of the space semaphore.
func (q *Queue) SpaceValue() uint32 { return q.spaceSem.Value() }

// Publish installs resp as the next response in sequence, fanning it out
// to every currently-joined client. Called by workers.
func (q *Queue) Publish(resp *protocol.Response) {
	q.spaceSem.Wait()
	q.tailMutex.Lock()
	idx := *q.writeIdxPtr()
	slot := int(idx) % q.m

	rw := q.slotRWMutex(slot)
	rw.Lock()
	protocol.MarshalResponse(q.slotResponseBytes(slot), resp)
	active := *q.activeClientsPtr()
	*q.slotRemainingPtr(slot) = active
	*q.slotSeqPtr(slot) = idx
	rw.Unlock()

	*q.writeIdxPtr() = idx + 1

	if active == 0 {
		// No one is joined to read this slot; it would otherwise leak
		// forever since no client will ever decrement it to zero.
		q.spaceSem.Post()
	}

	q.tailMutex.Unlock()
}

// Client is a response-queue participant handle: per-client state for
// the broadcast protocol.
type Client struct {
	q           *Queue
	nextReadIdx uint32
}

// Join registers a new reader and returns its handle. The handle's
// NextReadIdx is set to the queue's write_idx at join time so it never
// observes responses published before it joined.
func (q *Queue) Join() *Client {
	q.tailMutex.Lock()
	defer q.tailMutex.Unlock()
	*q.activeClientsPtr()++
	return &Client{q: q, nextReadIdx: *q.writeIdxPtr()}
}

// Leave unregisters the client, reconciling remaining_readers for every
// slot it had not yet consumed so producers are never blocked waiting on
// a departed reader.
func (c *Client) Leave() {
	q := c.q
	q.tailMutex.Lock()
	defer q.tailMutex.Unlock()

	writeIdx := *q.writeIdxPtr()
	for i := c.nextReadIdx; i < writeIdx; i++ {
		slot := int(i) % q.m
		rw := q.slotRWMutex(slot)
		rw.Lock()
		if *q.slotSeqPtr(slot) == i {
			remaining := *q.slotRemainingPtr(slot) - 1
			*q.slotRemainingPtr(slot) = remaining
			if remaining == 0 {
				q.spaceSem.Post()
			}
		}
		rw.Unlock()
	}

	*q.activeClientsPtr()--
}

// Receive blocks (via the supplied poll/backoff callback) until the next
// response addressed to this broadcast position is available, then
// returns it and advances past it. The caller supplies the backoff so
// server- and client-side callers can choose different policies; wait is
// invoked between unsuccessful polls.
func (c *Client) Receive(wait func()) protocol.Response {
	q := c.q
	for {
		idx := c.nextReadIdx
		slot := int(idx) % q.m
		rw := q.slotRWMutex(slot)

		rw.RLock()
		if *q.slotSeqPtr(slot) != idx {
			rw.RUnlock()
			wait()
			continue
		}
		resp := protocol.UnmarshalResponse(q.slotResponseBytes(slot))
		rw.RUnlock()

		rw.Lock()
		if *q.slotSeqPtr(slot) == idx {
			remaining := *q.slotRemainingPtr(slot) - 1
			*q.slotRemainingPtr(slot) = remaining
			if remaining == 0 {
				q.spaceSem.Post()
			}
		}
		rw.Unlock()

		c.nextReadIdx = idx + 1
		return resp
	}
}

// NextReadIdx exposes the client's broadcast cursor, used by tests
// asserting join/leave accounting.
func (c *Client) NextReadIdx() uint32 { return c.nextReadIdx }
