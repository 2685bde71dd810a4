//go:build !integration

// Package unit holds fast, no-shared-memory-server-required checks of
// the public API surface, leaving the slower multi-client round trips to
// test/integration.
package unit

import (
	"testing"

	"github.com/stretchr/testify/require"

	hashtable "github.com/shadowcpy/hashtable"
)

func TestDefaultParamsRequiresExplicitSizing(t *testing.T) {
	p := hashtable.DefaultParams()
	require.Zero(t, p.Buckets, "Buckets must not have a built-in default; the CLI requires -s explicitly")
	require.Zero(t, p.Workers, "Workers must not have a built-in default; the CLI requires -n explicitly")
}

func TestErrorCodesClassifyCorrectly(t *testing.T) {
	err := hashtable.NewError("attach", hashtable.ErrCodeNotReady, "region did not publish MAGIC in time")
	require.True(t, hashtable.IsCode(err, hashtable.ErrCodeNotReady))
	require.False(t, hashtable.IsCode(err, hashtable.ErrCodeNameInUse))
}

func TestRecordingLoggerBuffersBothLevels(t *testing.T) {
	rl := hashtable.NewRecordingLogger()
	rl.Infof("bucket %d has %d entries", 3, 7)
	rl.Warnf("worker %d stalled", 1)

	require.Equal(t, []string{"bucket 3 has 7 entries"}, rl.Infos())
	require.Equal(t, []string{"worker 1 stalled"}, rl.Warns())
}

func TestServeRejectsZeroOrNegativeSizing(t *testing.T) {
	for _, p := range []hashtable.Params{
		{Buckets: 0, Workers: 1},
		{Buckets: -1, Workers: 1},
		{Buckets: 1, Workers: 0},
		{Buckets: 1, Workers: -3},
	} {
		_, err := hashtable.Serve(nil, p, nil)
		require.Error(t, err)
		require.True(t, hashtable.IsCode(err, hashtable.ErrCodeInvalidParameters), "params %+v should be rejected", p)
	}
}
