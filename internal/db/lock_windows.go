//go:build windows

package db

import (
	"golang.org/x/sys/windows"
)

// tryLock locks the first byte of the lock file without waiting.
func (l *writeLocker) tryLock() error {
	ol := new(windows.Overlapped)
	return windows.LockFileEx(
		windows.Handle(l.lockFile.Fd()),
		windows.LOCKFILE_EXCLUSIVE_LOCK|windows.LOCKFILE_FAIL_IMMEDIATELY,
		0, 1, 0, ol,
	)
}

func (l *writeLocker) unlock() {
	if l.lockFile != nil {
		ol := new(windows.Overlapped)
		windows.UnlockFileEx(windows.Handle(l.lockFile.Fd()), 0, 1, 0, ol)
	}
}

func isProcessAlive(pid int) bool {
	h, err := windows.OpenProcess(windows.PROCESS_QUERY_LIMITED_INFORMATION, false, uint32(pid))
	if err != nil {
		return false
	}
	defer windows.CloseHandle(h)

	var code uint32
	if err := windows.GetExitCodeProcess(h, &code); err != nil {
		return false
	}
	return code == 259 // STILL_ACTIVE
}
