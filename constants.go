// Package hashtable is the public API for the shared-memory hash-table
// service: a single server process hosting a concurrent hash table that
// many client processes operate on through two shared-memory IPC queues.
package hashtable

import "github.com/shadowcpy/hashtable/internal/constants"

// Re-exported sizing constants. These are compile-time constants, not
// runtime-configurable: both shared-memory regions are laid out around
// them and every attaching process must agree on their values.
const (
	RequestSlots   = constants.RequestSlots
	ResponseSlots  = constants.ResponseSlots
	MaxKeyLen      = constants.MaxKeyLen
	MaxDumpEntries = constants.MaxDumpEntries
	MagicValue     = constants.MagicValue
)

// Fixed shared-memory object names used by both server and client.
const (
	RequestQueueName  = constants.RequestQueueName
	ResponseQueueName = constants.ResponseQueueName
)
