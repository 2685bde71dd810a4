package client

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/shadowcpy/hashtable/internal/constants"
	"github.com/shadowcpy/hashtable/internal/hashtable"
	"github.com/shadowcpy/hashtable/internal/protocol"
	"github.com/shadowcpy/hashtable/internal/reqqueue"
	"github.com/shadowcpy/hashtable/internal/resqueue"
	"github.com/shadowcpy/hashtable/internal/shm"
)

// fakeServer stands in for internal/server's worker loop: it dequeues
// requests and executes them against a table directly, without spawning
// the full Server/Worker machinery, so these tests exercise only the
// client driver's protocol handling.
func startFakeServer(t *testing.T, reqq *reqqueue.Queue, resq *resqueue.Queue) (stop func()) {
	t.Helper()
	table := hashtable.New(4)
	stopCh := make(chan struct{})
	go func() {
		for {
			select {
			case <-stopCh:
				return
			default:
			}
			req := reqq.Dequeue()
			resp := protocol.Response{ClientID: req.ClientID, RequestID: req.RequestID}
			switch req.Op {
			case protocol.OpInsert:
				resp.Status = table.Insert(req.Key, req.Value)
			case protocol.OpDelete:
				resp.Status = table.Delete(req.Key)
			case protocol.OpDumpByKey:
				table.DumpByKey(req.Key, &resp)
			case protocol.OpDebugPrint:
				resp.Status = protocol.StatusOk
			default:
				resp.Status = protocol.StatusInvalidOp
			}
			resq.Publish(&resp)
		}
	}()
	return func() { close(stopCh) }
}

func newTestRegions(t *testing.T) (*shm.Region, *shm.Region, func()) {
	t.Helper()
	reqName := constants.RequestQueueName
	resName := constants.ResponseQueueName
	_ = shm.Unlink(reqName)
	_ = shm.Unlink(resName)

	reqRegion, err := shm.Create(reqName, reqqueue.Size(constants.RequestSlots))
	require.NoError(t, err)
	reqqueue.Init(reqRegion, constants.RequestSlots)

	resRegion, err := shm.Create(resName, resqueue.Size(constants.ResponseSlots))
	require.NoError(t, err)
	resqueue.Init(resRegion, constants.ResponseSlots)

	shm.PublishMagic(reqRegion, constants.MagicValue)
	shm.PublishMagic(resRegion, constants.MagicValue)

	cleanup := func() {
		reqRegion.Close()
		resRegion.Close()
		_ = shm.Unlink(reqName)
		_ = shm.Unlink(resName)
	}
	return reqRegion, resRegion, cleanup
}

func TestGenerateKeysAreDistinctAndPrefixed(t *testing.T) {
	d := &Driver{clientID: 1, logger: nopLogger{}, rng: rand.New(rand.NewSource(7))}
	keys := d.GenerateKeys(20)
	seen := make(map[string]bool, len(keys))
	for _, k := range keys {
		s := k.String()
		require.True(t, len(s) >= 2 && s[:2] == "ht", "key %q must start with ht", s)
		require.False(t, seen[s], "duplicate key %q", s)
		seen[s] = true
	}
}

func TestRunPhaseInsertReadDeleteRoundTrip(t *testing.T) {
	reqName := constants.RequestQueueName
	resName := constants.ResponseQueueName
	_, _, cleanup := newTestRegions(t)
	defer cleanup()

	reqRegion, err := shm.Attach(reqName)
	require.NoError(t, err)
	resRegion, err := shm.Attach(resName)
	require.NoError(t, err)
	reqq := reqqueue.Open(reqRegion, constants.RequestSlots)
	resq := resqueue.Open(resRegion, constants.ResponseSlots)

	stop := startFakeServer(t, reqq, resq)
	defer stop()

	driver, err := Attach(context.Background(), Options{Seed: 42})
	require.NoError(t, err)
	defer driver.Close()

	keys := driver.GenerateKeys(5)
	values := make([]uint32, len(keys))
	for i := range values {
		values[i] = uint32(i) * 10
	}

	insertResults, err := driver.RunPhase(PhaseInsert, keys, values)
	require.NoError(t, err)
	require.Len(t, insertResults, len(keys))
	for _, r := range insertResults {
		require.Equal(t, protocol.StatusOk, r.Response.Status)
	}

	readResults, err := driver.RunPhase(PhaseRead, keys, nil)
	require.NoError(t, err)
	require.Len(t, readResults, len(keys))
	for _, r := range readResults {
		require.Equal(t, protocol.StatusOk, r.Response.Status)
		require.GreaterOrEqual(t, r.Response.EntryCount, uint32(1))
	}

	deleteResults, err := driver.RunPhase(PhaseDelete, keys, nil)
	require.NoError(t, err)
	for _, r := range deleteResults {
		require.Equal(t, protocol.StatusOk, r.Response.Status)
	}

	deleteAgain, err := driver.RunPhase(PhaseDelete, keys, nil)
	require.NoError(t, err)
	for _, r := range deleteAgain {
		require.Equal(t, protocol.StatusNotFound, r.Response.Status)
	}
}

func TestAttachTimesOutWhenNoServer(t *testing.T) {
	_ = shm.Unlink(constants.RequestQueueName)
	_ = shm.Unlink(constants.ResponseQueueName)

	_, err := Attach(context.Background(), Options{AttachTimeout: 50 * time.Millisecond})
	require.Error(t, err)
}
