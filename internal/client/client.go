// Package client implements the driver side of the shared-memory
// hash-table protocol: attaching to a running server's two regions,
// joining the response broadcast queue, and running the
// insert/read/delete verification phases.
//
// The attach loop retries the MAGIC handshake with a cenkalti/backoff/v5
// exponential schedule rather than a fixed retry count, the same way a
// reconnecting stream client backs off between dial attempts.
package client

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/shadowcpy/hashtable/internal/constants"
	"github.com/shadowcpy/hashtable/internal/protocol"
	"github.com/shadowcpy/hashtable/internal/reqqueue"
	"github.com/shadowcpy/hashtable/internal/resqueue"
	"github.com/shadowcpy/hashtable/internal/shm"
)

// Logger is the narrow logging capability the driver depends on.
type Logger interface {
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Infof(string, ...any) {}
func (nopLogger) Warnf(string, ...any) {}

// Phase identifies which of the three verification passes a driver run
// performs over a generated key set.
type Phase int

const (
	PhaseInsert Phase = iota
	PhaseRead
	PhaseDelete
)

func (p Phase) opKind() protocol.OpKind {
	switch p {
	case PhaseInsert:
		return protocol.OpInsert
	case PhaseRead:
		return protocol.OpDumpByKey
	case PhaseDelete:
		return protocol.OpDelete
	default:
		panic("client: unknown phase")
	}
}

func (p Phase) String() string {
	switch p {
	case PhaseInsert:
		return "insert"
	case PhaseRead:
		return "read"
	case PhaseDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// Driver attaches to a running server and drives requests against it on
// behalf of a single client_id.
type Driver struct {
	clientID uint32
	logger   Logger

	reqRegion *shm.Region
	resRegion *shm.Region
	reqq      *reqqueue.Queue
	resq      *resqueue.Queue
	respClnt  *resqueue.Client

	rng *rand.Rand
}

// Options configures Attach.
type Options struct {
	// Seed deterministically seeds client_id generation and key
	// generation; zero means seed from the current time.
	Seed int64
	// Logger receives diagnostic output; defaults to a no-op logger.
	Logger Logger
	// AttachTimeout bounds the MAGIC handshake retry loop.
	AttachTimeout time.Duration
}

// Attach waits for both shared-memory regions to become ready (bounded
// exponential backoff on MAGIC), generates a client_id, and joins the
// response broadcast queue.
func Attach(ctx context.Context, opts Options) (*Driver, error) {
	if opts.Logger == nil {
		opts.Logger = nopLogger{}
	}
	timeout := opts.AttachTimeout
	if timeout <= 0 {
		timeout = constants.AttachTimeout
	}
	seed := opts.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))

	reqRegion, err := attachWithBackoff(ctx, constants.RequestQueueName, timeout)
	if err != nil {
		return nil, fmt.Errorf("client: attach request region: %w", err)
	}
	resRegion, err := attachWithBackoff(ctx, constants.ResponseQueueName, timeout)
	if err != nil {
		reqRegion.Close()
		return nil, fmt.Errorf("client: attach response region: %w", err)
	}

	reqq := reqqueue.Open(reqRegion, constants.RequestSlots)
	resq := resqueue.Open(resRegion, constants.ResponseSlots)
	respClnt := resq.Join()

	d := &Driver{
		clientID:  rng.Uint32(),
		logger:    opts.Logger,
		reqRegion: reqRegion,
		resRegion: resRegion,
		reqq:      reqq,
		resq:      resq,
		respClnt:  respClnt,
		rng:       rng,
	}
	d.logger.Infof("client %d: attached and joined response queue", d.clientID)
	return d, nil
}

// attachWithBackoff retries shm.Attach, which returns ErrNotReady while a
// region file exists but is still zero-length (mid server-creation) and
// ErrNotFound before the server has created it at all. A region that maps
// but does not yet carry MagicValue is closed and retried as not ready.
func attachWithBackoff(ctx context.Context, name string, timeout time.Duration) (*shm.Region, error) {
	b := backoff.ExponentialBackOff{
		InitialInterval:     constants.AttachInitialBackoff,
		RandomizationFactor: backoff.DefaultRandomizationFactor,
		Multiplier:          backoff.DefaultMultiplier,
		MaxInterval:         constants.AttachMaxBackoff,
	}
	b.Reset()

	deadline := time.Now().Add(timeout)
	for {
		region, err := shm.Attach(name)
		if err == nil {
			if shm.ReadMagic(region) == constants.MagicValue {
				return region, nil
			}
			region.Close()
			err = shm.ErrNotReady
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("timed out waiting for %s to become ready: %w", name, err)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(b.NextBackOff()):
		}
	}
}

// ClientID returns this driver's randomly assigned client_id.
func (d *Driver) ClientID() uint32 { return d.clientID }

// Close performs the leave protocol and releases both region mappings.
func (d *Driver) Close() error {
	d.respClnt.Leave()
	if err := d.reqRegion.Close(); err != nil {
		return err
	}
	return d.resRegion.Close()
}

// GenerateKeys produces n keys of the form ht<random><random>, both numbers
// drawn from the driver's seeded generator, so the sequence is
// deterministic for a given driver seed. The seed itself does not appear
// in the key.
func (d *Driver) GenerateKeys(n int) []protocol.Key {
	keys := make([]protocol.Key, n)
	for i := range keys {
		s := fmt.Sprintf("ht%d%d", d.rng.Uint32(), d.rng.Uint32())
		keys[i] = protocol.NewKey([]byte(s))
	}
	return keys
}

// PhaseResult carries what a RunPhase call observed for one request_id.
type PhaseResult struct {
	RequestID uint32
	Key       protocol.Key
	Response  protocol.Response
}

// RunPhase enqueues one request per key (op determined by phase, with
// request_id == key index) then drains the response queue until every
// request_id for this client_id has been observed, discarding responses
// addressed to other clients along the way.
func (d *Driver) RunPhase(phase Phase, keys []protocol.Key, values []uint32) ([]PhaseResult, error) {
	op := phase.opKind()
	for i, k := range keys {
		req := protocol.Request{
			ClientID:  d.clientID,
			RequestID: uint32(i),
			Op:        op,
			Key:       k,
		}
		if values != nil {
			req.Value = values[i]
		}
		d.reqq.Enqueue(&req)
	}

	pending := make(map[uint32]protocol.Key, len(keys))
	for i, k := range keys {
		pending[uint32(i)] = k
	}
	results := make([]PhaseResult, 0, len(keys))
	backoffFn := func() { time.Sleep(constants.ReceiveInitialBackoff) }

	for len(pending) > 0 {
		resp := d.respClnt.Receive(backoffFn)
		if resp.ClientID != d.clientID {
			continue
		}
		k, ok := pending[resp.RequestID]
		if !ok {
			d.logger.Warnf("client %d: response for unknown request_id %d", d.clientID, resp.RequestID)
			continue
		}
		delete(pending, resp.RequestID)
		results = append(results, PhaseResult{RequestID: resp.RequestID, Key: k, Response: resp})
	}
	return results, nil
}

// DebugPrint sends a DebugPrint request and waits for its acknowledgement.
func (d *Driver) DebugPrint() (protocol.Response, error) {
	req := protocol.Request{ClientID: d.clientID, RequestID: 0, Op: protocol.OpDebugPrint}
	d.reqq.Enqueue(&req)
	backoffFn := func() { time.Sleep(constants.ReceiveInitialBackoff) }
	for {
		resp := d.respClnt.Receive(backoffFn)
		if resp.ClientID == d.clientID && resp.RequestID == 0 {
			return resp, nil
		}
	}
}
