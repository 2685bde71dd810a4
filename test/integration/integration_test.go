//go:build integration

// Package integration drives a real in-process server through its public
// API with one or more client drivers attaching over the actual
// /dev/shm-backed regions, the way a server binary and several client
// binaries would interact across processes. Everything here runs as
// goroutines within a single test binary, but the server and each client
// only ever talk to each other through shared memory and the wire
// protocol, never through a shared Go value.
package integration

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	hashtable "github.com/shadowcpy/hashtable"
	"github.com/shadowcpy/hashtable/internal/client"
	"github.com/shadowcpy/hashtable/internal/protocol"
	"github.com/shadowcpy/hashtable/internal/reqqueue"
	"github.com/shadowcpy/hashtable/internal/resqueue"
	"github.com/shadowcpy/hashtable/internal/shm"
)

func startServer(t *testing.T, buckets, workers int) *hashtable.Server {
	t.Helper()
	handleSignals := false
	srv, err := hashtable.Serve(context.Background(), hashtable.Params{Buckets: buckets, Workers: workers}, &hashtable.Options{
		Logger:        hashtable.NewRecordingLogger(),
		HandleSignals: &handleSignals,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = hashtable.StopAndDelete(context.Background(), srv)
	})
	return srv
}

// TestInsertedPairsAreFullyRecoverableAcrossAllBuckets inserts two keys
// into a small bucket table and verifies both are recoverable by dumping
// every bucket index, the way a single shared bucket would hold both on
// a hash collision and separate buckets would hold one each either way.
func TestInsertedPairsAreFullyRecoverableAcrossAllBuckets(t *testing.T) {
	const buckets = 10
	startServer(t, buckets, 1)

	drv, err := client.Attach(context.Background(), client.Options{Seed: 1})
	require.NoError(t, err)
	defer drv.Close()

	keys := []protocol.Key{protocol.NewKey([]byte("a")), protocol.NewKey([]byte("b"))}
	values := []uint32{7, 8}
	results, err := drv.RunPhase(client.PhaseInsert, keys, values)
	require.NoError(t, err)
	for _, r := range results {
		require.Equal(t, protocol.StatusOk, r.Response.Status)
	}

	found := map[string]uint32{}
	for i := 0; i < buckets; i++ {
		resp, err := sendRawDumpByIndex(t, drv, uint32(i))
		require.NoError(t, err)
		for e := uint32(0); e < resp.EntryCount; e++ {
			found[resp.Entries[e].Key.String()] = resp.Entries[e].Value
		}
	}
	require.Equal(t, map[string]uint32{"a": 7, "b": 8}, found)
}

// sendRawDumpByIndex issues a DumpByIndex request the client driver's
// RunPhase (which only knows insert/read/delete) doesn't expose, reusing
// the driver's own client_id so responses are visible to it.
func sendRawDumpByIndex(t *testing.T, drv *client.Driver, bucket uint32) (protocol.Response, error) {
	t.Helper()
	reqRegion, err := shm.Attach(hashtable.RequestQueueName)
	require.NoError(t, err)
	defer reqRegion.Close()
	resRegion, err := shm.Attach(hashtable.ResponseQueueName)
	require.NoError(t, err)
	defer resRegion.Close()

	reqq := reqqueue.Open(reqRegion, hashtable.RequestSlots)
	resq := resqueue.Open(resRegion, hashtable.ResponseSlots)
	c := resq.Join()
	defer c.Leave()

	req := protocol.Request{ClientID: drv.ClientID(), RequestID: 999, Op: protocol.OpDumpByIndex, BucketIndex: bucket}
	reqq.Enqueue(&req)
	backoffFn := func() { time.Sleep(time.Millisecond) }
	for {
		resp := c.Receive(backoffFn)
		if resp.ClientID == req.ClientID && resp.RequestID == req.RequestID {
			return resp, nil
		}
	}
}

// TestManyClientsSharingOneBucketLeaveItEmpty runs sixteen clients, each
// inserting, reading, then deleting ten keys of its own, all funneled
// into a single bucket by a one-bucket table; once every client
// finishes, the bucket must be empty.
func TestManyClientsSharingOneBucketLeaveItEmpty(t *testing.T) {
	startServer(t, 1, 4)

	const clients = 16
	const keysPerClient = 10

	var wg sync.WaitGroup
	for i := 0; i < clients; i++ {
		wg.Add(1)
		go func(seed int64) {
			defer wg.Done()
			drv, err := client.Attach(context.Background(), client.Options{Seed: seed + 1})
			require.NoError(t, err)
			defer drv.Close()

			keys := drv.GenerateKeys(keysPerClient)
			values := make([]uint32, keysPerClient)
			for i := range values {
				values[i] = uint32(i)
			}

			_, err = drv.RunPhase(client.PhaseInsert, keys, values)
			require.NoError(t, err)
			_, err = drv.RunPhase(client.PhaseRead, keys, nil)
			require.NoError(t, err)
			_, err = drv.RunPhase(client.PhaseDelete, keys, nil)
			require.NoError(t, err)
		}(int64(i))
	}
	wg.Wait()

	drv, err := client.Attach(context.Background(), client.Options{Seed: 999})
	require.NoError(t, err)
	defer drv.Close()
	resp, err := sendRawDumpByIndex(t, drv, 0)
	require.NoError(t, err)
	require.Zero(t, resp.EntryCount, "bucket must be empty once every client has deleted its own keys")
}

// TestClientLeaveWithoutReadingReturnsSpaceToCapacity starts a server,
// joins a client that never reads, publishes responses past it by
// running another client's full workload, and confirms that once the
// idle client leaves the response queue's space returns to full
// capacity rather than staying leaked against slots it never drained.
func TestClientLeaveWithoutReadingReturnsSpaceToCapacity(t *testing.T) {
	startServer(t, 4, 2)

	resRegion, err := shm.Attach(hashtable.ResponseQueueName)
	require.NoError(t, err)
	defer resRegion.Close()
	resq := resqueue.Open(resRegion, hashtable.ResponseSlots)

	idle := resq.Join()

	active, err := client.Attach(context.Background(), client.Options{Seed: 2})
	require.NoError(t, err)
	defer active.Close()

	// Fewer responses than slots: each one stays pinned on idle until it
	// leaves, so publishing past ResponseSlots would block the workers.
	keys := active.GenerateKeys(hashtable.ResponseSlots / 2)
	values := make([]uint32, len(keys))
	_, err = active.RunPhase(client.PhaseInsert, keys, values)
	require.NoError(t, err)

	idle.Leave()
	require.Eventually(t, func() bool {
		return resq.SpaceValue() == uint32(hashtable.ResponseSlots)
	}, time.Second, time.Millisecond, "space must climb back to full capacity once the idle client leaves")
}

// TestAttachRetriesUntilServerPublishesMagic starts a client attach
// attempt before the server exists, then starts the server shortly
// after; the attach must succeed once MAGIC is published rather than
// failing on the first not-found.
func TestAttachRetriesUntilServerPublishesMagic(t *testing.T) {
	_ = shm.Unlink(hashtable.RequestQueueName)
	_ = shm.Unlink(hashtable.ResponseQueueName)

	var drv *client.Driver
	var attachErr error
	done := make(chan struct{})
	go func() {
		drv, attachErr = client.Attach(context.Background(), client.Options{AttachTimeout: 5 * time.Second})
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	startServer(t, 2, 1)

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("attach did not complete after server became ready")
	}
	require.NoError(t, attachErr)
	defer drv.Close()
}
