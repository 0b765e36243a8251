package win32

import "syscall"

// On Windows a syscall.Errno already holds the Win32 code.
func fromSyscall(e syscall.Errno) (Errno, bool) {
	return Errno(e), true
}
