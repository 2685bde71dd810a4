// Package shm provides the shared-memory region abstraction and the
// process-shared synchronization primitives (mutex, counting semaphore,
// reader-writer lock) that can be placed at fixed offsets inside it.
//
// A Region wraps a POSIX shared-memory object (a file under /dev/shm,
// mapped MAP_SHARED) as a single contiguous byte slice backed by a kernel
// mapping, addressed with raw offsets rather than Go slices of structs,
// because the same bytes are concurrently owned by other processes that
// didn't compile this binary.
package shm

import (
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"syscall"
	"unsafe"
)

var (
	// ErrAlreadyExists is returned by Create when the named region exists.
	ErrAlreadyExists = errors.New("shm: region already exists")
	// ErrNotFound is returned by Attach when the named region is absent.
	ErrNotFound = errors.New("shm: region not found")
	// ErrPermissionDenied wraps an EACCES/EPERM from the underlying open.
	ErrPermissionDenied = errors.New("shm: permission denied")
	// ErrNotReady is returned by Attach when the named region exists but
	// is still zero-length (created, not yet sized).
	ErrNotReady = errors.New("shm: region did not become ready in time")
)

// shmDir is where POSIX shared-memory objects live on Linux. Using the
// tmpfs-backed /dev/shm directly (rather than shm_open(3) via cgo) keeps
// this package pure Go, matching the rest of the corpus's habit of driving
// raw syscalls instead of linking a C library for something the kernel
// already exposes as a normal file.
const shmDir = "/dev/shm"

func shmPath(name string) string {
	return filepath.Join(shmDir, filepath.Base(name))
}

// Region is a fixed-size shared memory mapping.
type Region struct {
	name string
	file *os.File
	data []byte
}

// Create creates a new named region of the given size, zero-filled, and
// maps it read/write. It fails with ErrAlreadyExists if the name is
// already in use.
func Create(name string, size int) (*Region, error) {
	path := shmPath(name)
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		if os.IsExist(err) {
			return nil, ErrAlreadyExists
		}
		if os.IsPermission(err) {
			return nil, ErrPermissionDenied
		}
		return nil, err
	}
	if err := f.Truncate(int64(size)); err != nil {
		f.Close()
		os.Remove(path)
		return nil, err
	}
	data, err := syscall.Mmap(int(f.Fd()), 0, size, syscall.PROT_READ|syscall.PROT_WRITE, syscall.MAP_SHARED)
	if err != nil {
		f.Close()
		os.Remove(path)
		return nil, err
	}
	return &Region{name: name, file: f, data: data}, nil
}

// Attach opens an existing named region and maps it read/write. It fails
// with ErrNotFound if the name does not exist.
func Attach(name string) (*Region, error) {
	path := shmPath(name)
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		if os.IsPermission(err) {
			return nil, ErrPermissionDenied
		}
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	size := int(info.Size())
	if size == 0 {
		f.Close()
		return nil, ErrNotReady
	}
	data, err := syscall.Mmap(int(f.Fd()), 0, size, syscall.PROT_READ|syscall.PROT_WRITE, syscall.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, err
	}
	return &Region{name: name, file: f, data: data}, nil
}

// Unlink removes the named region. Existing mappings remain valid until
// closed, matching POSIX shm_unlink semantics.
func Unlink(name string) error {
	err := os.Remove(shmPath(name))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Bytes returns the mapped region.
func (r *Region) Bytes() []byte { return r.data }

// Ptr returns the base address of the mapping.
func (r *Region) Ptr() unsafe.Pointer {
	return unsafe.Pointer(&r.data[0])
}

// At returns a pointer to the given byte offset within the mapping.
func (r *Region) At(offset uintptr) unsafe.Pointer {
	return unsafe.Add(r.Ptr(), offset)
}

// Close unmaps the region and closes the backing file descriptor. It does
// not unlink the name.
func (r *Region) Close() error {
	var errs []error
	if r.data != nil {
		if err := syscall.Munmap(r.data); err != nil {
			errs = append(errs, err)
		}
		r.data = nil
	}
	if r.file != nil {
		if err := r.file.Close(); err != nil {
			errs = append(errs, err)
		}
		r.file = nil
	}
	return errors.Join(errs...)
}

// PublishMagic writes the magic value at offset 0 with release ordering,
// marking the region ready for attaching clients. Must be called last
// during server init, after every primitive in the region has been
// initialized.
func PublishMagic(r *Region, magic uint32) {
	atomic.StoreUint32((*uint32)(r.Ptr()), magic)
}

// ReadMagic reads the magic value at offset 0 with acquire ordering. The
// caller (internal/client) wraps this in its own bounded-backoff loop
// while waiting for a server to publish it.
func ReadMagic(r *Region) uint32 {
	return atomic.LoadUint32((*uint32)(r.Ptr()))
}
