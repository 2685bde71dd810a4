// Package server hosts the worker pool and dispatch loop that glue the
// request queue, response queue, and hash table together.
//
// The worker shape — one OS thread per worker, optional CPU-affinity
// pinning, a stop channel carried purely for orderly shutdown signalling
// around an inner blocking call nothing can interrupt mid-flight — keeps
// the posture of a completion-ring I/O loop (where the blocking call
// would be an io_uring wait) but swaps the blocking primitive for the
// request queue's semaphore wait.
package server

import (
	"runtime"

	"golang.org/x/sys/unix"

	"github.com/shadowcpy/hashtable/internal/hashtable"
	"github.com/shadowcpy/hashtable/internal/protocol"
	"github.com/shadowcpy/hashtable/internal/reqqueue"
	"github.com/shadowcpy/hashtable/internal/resqueue"
)

// Worker dequeues requests, executes them against the table, and
// publishes responses.
type Worker struct {
	id     int
	reqq   *reqqueue.Queue
	resq   *resqueue.Queue
	table  *hashtable.Table
	logger Logger
	cpu    int // -1 means no affinity pinning

	stopCh chan struct{}
	// onShutdown is invoked after every OpShutdown request this worker
	// handles; the callback Serve passes starts the shutdown only once.
	onShutdown func()
}

// NewWorker builds a worker. cpu < 0 disables CPU-affinity pinning.
func NewWorker(id int, reqq *reqqueue.Queue, resq *resqueue.Queue, table *hashtable.Table, logger Logger, cpu int, onShutdown func()) *Worker {
	return &Worker{
		id:         id,
		reqq:       reqq,
		resq:       resq,
		table:      table,
		logger:     logger,
		cpu:        cpu,
		stopCh:     make(chan struct{}),
		onShutdown: onShutdown,
	}
}

// Stop asks the worker to exit after its current dequeue completes. It
// does not interrupt an in-progress blocking dequeue; the semaphore
// waits have no timeout, so a worker parked on an empty queue only
// notices Stop once another request wakes it.
func (w *Worker) Stop() {
	close(w.stopCh)
}

// Run pins this worker's OS thread (if a CPU was assigned) and loops
// dequeue -> execute -> publish until Stop is called.
func (w *Worker) Run() {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	if w.cpu >= 0 {
		var mask unix.CPUSet
		mask.Set(w.cpu)
		if err := unix.SchedSetaffinity(0, &mask); err != nil {
			w.logger.Warnf("worker %d: failed to pin to CPU %d: %v", w.id, w.cpu, err)
		}
	}

	for {
		select {
		case <-w.stopCh:
			return
		default:
		}

		req := w.reqq.Dequeue()
		resp := w.execute(req)
		w.resq.Publish(&resp)

		if req.Op == protocol.OpShutdown && w.onShutdown != nil {
			w.onShutdown()
		}
	}
}

func (w *Worker) execute(req protocol.Request) protocol.Response {
	resp := protocol.Response{ClientID: req.ClientID, RequestID: req.RequestID}

	switch req.Op {
	case protocol.OpInsert:
		resp.Status = w.table.Insert(req.Key, req.Value)
	case protocol.OpDelete:
		resp.Status = w.table.Delete(req.Key)
	case protocol.OpDumpByKey:
		w.table.DumpByKey(req.Key, &resp)
	case protocol.OpDumpByIndex:
		w.table.DumpByIndex(req.BucketIndex, &resp)
	case protocol.OpDebugPrint:
		w.debugPrint()
		resp.Status = protocol.StatusOk
	case protocol.OpShutdown:
		resp.Status = protocol.StatusOk
	default:
		resp.Status = protocol.StatusInvalidOp
	}
	return resp
}

func (w *Worker) debugPrint() {
	for i := 0; i < w.table.Buckets(); i++ {
		var resp protocol.Response
		w.table.DumpByIndex(uint32(i), &resp)
		if resp.EntryCount == 0 {
			continue
		}
		w.logger.Infof("worker %d: debug-print bucket %d: %d entries (status=%s)", w.id, i, resp.EntryCount, resp.Status)
	}
}
