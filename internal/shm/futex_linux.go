//go:build linux

package shm

import (
	"syscall"
	"unsafe"

	"golang.org/x/sys/unix"
)

// futexWait parks the calling goroutine until *addr != val is observed or
// another thread/process wakes this address, retrying transparently on
// EINTR rather than propagating an interrupted-syscall error to the
// caller.
//
// No FUTEX_PRIVATE_FLAG is used: that optimization assumes waiter and
// waker share a virtual address space, which does not hold here — the
// waiter and waker are different processes with independent page tables
// mapping the same physical page at (possibly) different virtual
// addresses. Plain FUTEX_WAIT/FUTEX_WAKE key off the underlying page
// cache entry, not the virtual address, so they work across the mapping.
func futexWait(addr *uint32, val uint32) {
	for {
		_, _, errno := syscall.Syscall6(
			unix.SYS_FUTEX,
			uintptr(unsafe.Pointer(addr)),
			uintptr(unix.FUTEX_WAIT),
			uintptr(val),
			0, 0, 0,
		)
		if errno == 0 || errno == syscall.EAGAIN {
			return
		}
		if errno == syscall.EINTR {
			continue
		}
		// EAGAIN already handled above: *addr had already changed, which
		// is a normal race, not an error. Anything else here indicates a
		// broken primitive; the caller has no recovery path short of
		// restarting against a fresh region, so we stop spinning.
		return
	}
}

// futexWake wakes up to n waiters parked on addr.
func futexWake(addr *uint32, n int) {
	syscall.Syscall6(
		unix.SYS_FUTEX,
		uintptr(unsafe.Pointer(addr)),
		uintptr(unix.FUTEX_WAKE),
		uintptr(n),
		0, 0, 0,
	)
}
