// Package hashtable provides the main API for hosting and attaching to
// the shared-memory hash-table service.
package hashtable

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/shadowcpy/hashtable/internal/hashtable"
	"github.com/shadowcpy/hashtable/internal/logging"
	"github.com/shadowcpy/hashtable/internal/reqqueue"
	"github.com/shadowcpy/hashtable/internal/resqueue"
	"github.com/shadowcpy/hashtable/internal/server"
	"github.com/shadowcpy/hashtable/internal/shm"
)

// Params configures a server instance (the `-s`/`-n` CLI surface).
type Params struct {
	// Buckets is S, the fixed bucket count of the hash table. Required.
	Buckets int
	// Workers is W, the number of worker threads. Required.
	Workers int
	// CPUAffinity optionally pins worker i to CPUAffinity[i % len].
	CPUAffinity []int
}

// Options carries optional collaborators for Serve.
type Options struct {
	// Context for cancellation; if nil, the ctx passed to Serve is used
	// (context.Background() when that is nil too).
	Context context.Context
	// Logger receives diagnostic output; if nil, logging.Default() is used.
	Logger server.Logger
	// HandleSignals installs a SIGINT/SIGTERM handler that calls
	// StopAndDelete. Defaults to true.
	HandleSignals *bool
	// WatchdogInterval, when nonzero, starts a background watchdog that
	// polls the response queue at this interval and warns when it has
	// stayed full for WatchdogStallThreshold consecutive polls. Zero
	// (the default) disables the watchdog.
	WatchdogInterval time.Duration
	// WatchdogStallThreshold is the number of consecutive full-queue
	// polls before the watchdog warns. Defaults to 3 when unset and
	// WatchdogInterval is nonzero.
	WatchdogStallThreshold int
}

// DefaultParams returns Params with every required field zeroed; callers
// must still set Buckets and Workers, matching the CLI's requirement
// that both flags be given explicitly.
func DefaultParams() Params {
	return Params{}
}

// Server is a running hash-table service: the two shared-memory regions,
// the bucket-locked table, and the worker pool dispatching between them.
type Server struct {
	params Params
	logger server.Logger

	reqRegion *shm.Region
	resRegion *shm.Region
	reqq      *reqqueue.Queue
	resq      *resqueue.Queue
	table     *hashtable.Table

	workers []*server.Worker

	ctx       context.Context
	cancel    context.CancelFunc
	sigCancel context.CancelFunc
}

// Serve creates and initializes the shared-memory regions, builds the
// hash table, spawns the worker pool, and publishes readiness, following
// a fixed startup order: unlink stale regions, create and init the
// request region, create and init the response region, build the table,
// spawn workers, publish MAGIC_REQ then MAGIC_RES.
func Serve(ctx context.Context, params Params, options *Options) (*Server, error) {
	if params.Buckets <= 0 {
		return nil, NewError("serve", ErrCodeInvalidParameters, "Buckets must be > 0")
	}
	if params.Workers <= 0 {
		return nil, NewError("serve", ErrCodeInvalidParameters, "Workers must be > 0")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if options == nil {
		options = &Options{}
	}
	if options.Context != nil {
		ctx = options.Context
	}
	logger := options.Logger
	if logger == nil {
		logger = logging.Default()
	}

	_ = shm.Unlink(RequestQueueName)
	_ = shm.Unlink(ResponseQueueName)

	reqRegion, err := shm.Create(RequestQueueName, reqqueue.Size(RequestSlots))
	if err != nil {
		return nil, WrapError("serve: create request region", err)
	}
	reqq := reqqueue.Init(reqRegion, RequestSlots)

	resRegion, err := shm.Create(ResponseQueueName, resqueue.Size(ResponseSlots))
	if err != nil {
		reqRegion.Close()
		_ = shm.Unlink(RequestQueueName)
		return nil, WrapError("serve: create response region", err)
	}
	resq := resqueue.Init(resRegion, ResponseSlots)

	table := hashtable.New(params.Buckets)

	srvCtx, cancel := context.WithCancel(ctx)
	s := &Server{
		params:    params,
		logger:    logger,
		reqRegion: reqRegion,
		resRegion: resRegion,
		reqq:      reqq,
		resq:      resq,
		table:     table,
		ctx:       srvCtx,
		cancel:    cancel,
	}

	var shutdownOnce sync.Once
	onShutdown := func() {
		shutdownOnce.Do(func() {
			go func() {
				_ = StopAndDelete(context.Background(), s)
			}()
		})
	}

	s.workers = make([]*server.Worker, params.Workers)
	for i := 0; i < params.Workers; i++ {
		cpu := -1
		if len(params.CPUAffinity) > 0 {
			cpu = params.CPUAffinity[i%len(params.CPUAffinity)]
		}
		w := server.NewWorker(i, reqq, resq, table, logger, cpu, onShutdown)
		s.workers[i] = w
		go w.Run()
	}

	handleSignals := true
	if options.HandleSignals != nil {
		handleSignals = *options.HandleSignals
	}
	if handleSignals {
		sigCtx, sigCancel := signal.NotifyContext(srvCtx, os.Interrupt, syscall.SIGTERM)
		s.sigCancel = sigCancel
		go func() {
			<-sigCtx.Done()
			if sigCtx.Err() != nil && srvCtx.Err() == nil {
				logger.Infof("server: received shutdown signal")
				_ = StopAndDelete(context.Background(), s)
			}
		}()
	}

	if options.WatchdogInterval > 0 {
		threshold := options.WatchdogStallThreshold
		if threshold <= 0 {
			threshold = 3
		}
		wd := server.NewWatchdog(resq, logger, options.WatchdogInterval, threshold)
		go wd.Run(srvCtx)
	}

	shm.PublishMagic(reqRegion, MagicValue)
	shm.PublishMagic(resRegion, MagicValue)

	return s, nil
}

// Buckets returns the configured bucket count S.
func (s *Server) Buckets() int { return s.params.Buckets }

// Workers returns the configured worker count W.
func (s *Server) Workers() int { return s.params.Workers }

// IsRunning reports whether the server has not yet been shut down.
func (s *Server) IsRunning() bool {
	select {
	case <-s.ctx.Done():
		return false
	default:
		return true
	}
}

// StopAndDelete stops every worker, unlinks the named shared-memory
// regions, and releases the server's mappings. It is safe to call more
// than once; subsequent calls are no-ops.
func StopAndDelete(ctx context.Context, s *Server) error {
	if s == nil {
		return NewError("stop", ErrCodeInvalidParameters, "nil server")
	}
	select {
	case <-s.ctx.Done():
		return nil
	default:
	}
	s.cancel()
	if s.sigCancel != nil {
		s.sigCancel()
	}

	for _, w := range s.workers {
		w.Stop()
	}
	// Workers parked on an empty request queue only notice Stop before
	// their next dequeue; draining them fully is best-effort. The process
	// exiting after this call is what actually reclaims any worker still
	// blocked in a futex wait on the region below.

	if err := shm.Unlink(RequestQueueName); err != nil {
		s.logger.Warnf("stop: unlink request region: %v", err)
	}
	if err := shm.Unlink(ResponseQueueName); err != nil {
		s.logger.Warnf("stop: unlink response region: %v", err)
	}

	var firstErr error
	if err := s.reqRegion.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := s.resRegion.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if firstErr != nil {
		return WrapError("stop", firstErr)
	}
	return nil
}
