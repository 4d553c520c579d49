//go:build linux || darwin || freebsd || openbsd || netbsd || dragonfly

package securebuf

import "golang.org/x/sys/unix"

// lockMemory pins the pages backing b into RAM so key material is not
// written to swap. Failure (typically EPERM or an exhausted
// RLIMIT_MEMLOCK) is tolerated by the caller: the buffer degrades to
// wipe-only protection.
func lockMemory(b []byte) error {
	if len(b) == 0 {
		return nil
	}
	return unix.Mlock(b)
}

func unlockMemory(b []byte) error {
	if len(b) == 0 {
		return nil
	}
	return unix.Munlock(b)
}
