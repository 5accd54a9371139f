//go:build unix

package db

import (
	"os"
	"syscall"
)

// tryLock takes a non-blocking flock. flock locks belong to the open file
// description, so two goroutines of the same process also exclude each other.
func (l *writeLocker) tryLock() error {
	return syscall.Flock(int(l.lockFile.Fd()), syscall.LOCK_EX|syscall.LOCK_NB)
}

func (l *writeLocker) unlock() {
	if l.lockFile != nil {
		syscall.Flock(int(l.lockFile.Fd()), syscall.LOCK_UN)
	}
}

func isProcessAlive(pid int) bool {
	p, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return p.Signal(syscall.Signal(0)) == nil
}
