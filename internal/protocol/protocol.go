// Package protocol defines the fixed-size, POD-copyable records exchanged
// between clients and the server over the two shared-memory queues, and
// their explicit little-endian encodings.
//
// Struct layout is trusted for the in-process hash table, but every slot
// copy into or out of shared memory goes through Marshal/Unmarshal rather
// than a raw struct cast: the wire layout is a documented contract, not
// an accident of this compiler's struct packing.
package protocol

import (
	"encoding/binary"

	"github.com/shadowcpy/hashtable/internal/constants"
)

// OpKind identifies the operation a Request carries.
type OpKind uint32

const (
	OpInsert      OpKind = 0x01
	OpDelete      OpKind = 0x02
	OpDumpByKey   OpKind = 0x03
	OpDumpByIndex OpKind = 0x04
	OpDebugPrint  OpKind = 0x05
	OpShutdown    OpKind = 0x06
)

func (k OpKind) String() string {
	switch k {
	case OpInsert:
		return "Insert"
	case OpDelete:
		return "Delete"
	case OpDumpByKey:
		return "DumpByKey"
	case OpDumpByIndex:
		return "DumpByIndex"
	case OpDebugPrint:
		return "DebugPrint"
	case OpShutdown:
		return "Shutdown"
	default:
		return "Unknown"
	}
}

// Status reports the outcome of executing an operation against the hash
// table. Operation errors travel here, in the response record, never as a
// Go error returned across the IPC boundary.
type Status uint32

const (
	StatusOk             Status = 0x00
	StatusNotFound       Status = 0x01
	StatusBucketOverflow Status = 0x02
	StatusInvalidOp      Status = 0x03
)

func (s Status) String() string {
	switch s {
	case StatusOk:
		return "Ok"
	case StatusNotFound:
		return "NotFound"
	case StatusBucketOverflow:
		return "BucketOverflow"
	case StatusInvalidOp:
		return "InvalidOp"
	default:
		return "Unknown"
	}
}

// PayloadKind distinguishes an empty response from one carrying a bucket
// dump.
type PayloadKind uint32

const (
	PayloadEmpty      PayloadKind = 0x00
	PayloadBucketDump PayloadKind = 0x01
)

// Key is an inline byte string with fixed capacity MaxKeyLen, carrying its
// actual length. No heap pointers: it is shallow-copyable across process
// boundaries by design.
type Key struct {
	Len   uint8
	Bytes [constants.MaxKeyLen]byte
}

// NewKey builds a Key from a byte slice, truncating to MaxKeyLen.
func NewKey(b []byte) Key {
	var k Key
	n := len(b)
	if n > constants.MaxKeyLen {
		n = constants.MaxKeyLen
	}
	copy(k.Bytes[:], b[:n])
	k.Len = uint8(n)
	return k
}

// Slice returns the key's actual bytes.
func (k Key) Slice() []byte {
	return k.Bytes[:k.Len]
}

func (k Key) String() string {
	return string(k.Slice())
}

// Equal reports whether two keys carry identical bytes.
func (k Key) Equal(other Key) bool {
	if k.Len != other.Len {
		return false
	}
	for i := uint8(0); i < k.Len; i++ {
		if k.Bytes[i] != other.Bytes[i] {
			return false
		}
	}
	return true
}

// Entry is a (Key, Value) pair as stored in a bucket and as dumped into a
// response.
type Entry struct {
	Key   Key
	Value uint32
}

// Request is the fixed-size record a client writes into the request
// queue.
type Request struct {
	ClientID    uint32
	RequestID   uint32
	Op          OpKind
	Key         Key
	Value       uint32
	BucketIndex uint32
}

// Response is the fixed-size record a worker publishes into the response
// broadcast queue.
type Response struct {
	ClientID    uint32
	RequestID   uint32
	Status      Status
	Payload     PayloadKind
	EntryCount  uint32
	Entries     [constants.MaxDumpEntries]Entry
}

// keySize is the marshaled size of a Key: 1 length byte + MaxKeyLen bytes.
const keySize = 1 + constants.MaxKeyLen

// entrySize is the marshaled size of an Entry.
const entrySize = keySize + 4

// RequestSize is the marshaled size of a Request record.
const RequestSize = 4 + 4 + 4 + keySize + 4 + 4

// ResponseSize is the marshaled size of a Response record.
const ResponseSize = 4 + 4 + 4 + 4 + 4 + constants.MaxDumpEntries*entrySize

func putKey(buf []byte, k Key) {
	buf[0] = k.Len
	copy(buf[1:1+constants.MaxKeyLen], k.Bytes[:])
}

func getKey(buf []byte) Key {
	var k Key
	k.Len = buf[0]
	copy(k.Bytes[:], buf[1:1+constants.MaxKeyLen])
	return k
}

// MarshalRequest encodes a Request into buf, which must be at least
// RequestSize bytes.
func MarshalRequest(buf []byte, r *Request) {
	binary.LittleEndian.PutUint32(buf[0:4], r.ClientID)
	binary.LittleEndian.PutUint32(buf[4:8], r.RequestID)
	binary.LittleEndian.PutUint32(buf[8:12], uint32(r.Op))
	putKey(buf[12:12+keySize], r.Key)
	off := 12 + keySize
	binary.LittleEndian.PutUint32(buf[off:off+4], r.Value)
	binary.LittleEndian.PutUint32(buf[off+4:off+8], r.BucketIndex)
}

// UnmarshalRequest decodes a Request from buf.
func UnmarshalRequest(buf []byte) Request {
	var r Request
	r.ClientID = binary.LittleEndian.Uint32(buf[0:4])
	r.RequestID = binary.LittleEndian.Uint32(buf[4:8])
	r.Op = OpKind(binary.LittleEndian.Uint32(buf[8:12]))
	r.Key = getKey(buf[12 : 12+keySize])
	off := 12 + keySize
	r.Value = binary.LittleEndian.Uint32(buf[off : off+4])
	r.BucketIndex = binary.LittleEndian.Uint32(buf[off+4 : off+8])
	return r
}

// MarshalResponse encodes a Response into buf, which must be at least
// ResponseSize bytes.
func MarshalResponse(buf []byte, r *Response) {
	binary.LittleEndian.PutUint32(buf[0:4], r.ClientID)
	binary.LittleEndian.PutUint32(buf[4:8], r.RequestID)
	binary.LittleEndian.PutUint32(buf[8:12], uint32(r.Status))
	binary.LittleEndian.PutUint32(buf[12:16], uint32(r.Payload))
	binary.LittleEndian.PutUint32(buf[16:20], r.EntryCount)
	off := 20
	for i := 0; i < constants.MaxDumpEntries; i++ {
		e := r.Entries[i]
		putKey(buf[off:off+keySize], e.Key)
		binary.LittleEndian.PutUint32(buf[off+keySize:off+keySize+4], e.Value)
		off += entrySize
	}
}

// UnmarshalResponse decodes a Response from buf.
func UnmarshalResponse(buf []byte) Response {
	var r Response
	r.ClientID = binary.LittleEndian.Uint32(buf[0:4])
	r.RequestID = binary.LittleEndian.Uint32(buf[4:8])
	r.Status = Status(binary.LittleEndian.Uint32(buf[8:12]))
	r.Payload = PayloadKind(binary.LittleEndian.Uint32(buf[12:16]))
	r.EntryCount = binary.LittleEndian.Uint32(buf[16:20])
	off := 20
	for i := 0; i < constants.MaxDumpEntries; i++ {
		r.Entries[i] = Entry{
			Key:   getKey(buf[off : off+keySize]),
			Value: binary.LittleEndian.Uint32(buf[off+keySize : off+keySize+4]),
		}
		off += entrySize
	}
	return r
}
