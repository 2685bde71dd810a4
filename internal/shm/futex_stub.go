//go:build !linux

package shm

// futexWait and futexWake have no portable equivalent: the real
// implementation is Linux-only kernel surface, so non-Linux builds get a
// stub that compiles but cannot actually coordinate across processes.
// Within a single process (tests, same-process simulation) a plain spin on
// the word would work, but silently degrading cross-process correctness
// on non-Linux is worse than refusing to pretend; callers on this path
// should build with GOOS=linux.
func futexWait(addr *uint32, val uint32) {
	panic("shm: process-shared primitives require linux (futex)")
}

func futexWake(addr *uint32, n int) {
	panic("shm: process-shared primitives require linux (futex)")
}
