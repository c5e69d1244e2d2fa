package sysx

import (
	"golang.org/x/sys/unix"
)

// jumpToEntry is implemented in clone_linux_amd64.s: it loads entry and
// stackTop into CPU registers and jumps, never returning. Used both by the
// child thread spawned below and, for the same-process execution strategy,
// by JumpSameProcess.
func jumpToEntry(entry, stackTop uintptr)

// JumpSameProcess transfers control to entry on the calling OS thread,
// switching to stackTop first. Used by the same-process execution
// strategy (spec'd as an alternative to the child-thread strategy). Never
// returns.
func JumpSameProcess(entry, stackTop uintptr) {
	jumpToEntry(entry, stackTop)
}

// cloneAndJump issues a raw clone(2) with CLONE_VM|SIGCHLD so the new
// thread shares this process's address space, then — in the child only —
// never returns to Go: it sets the stack pointer to stackTop and jumps to
// entry via jumpToEntry. The parent gets the child's TID back.
func cloneAndJump(entry, stackTop uintptr) (int, error) {
	tid, _, errno := unix.RawSyscall6(unix.SYS_CLONE,
		uintptr(unix.CLONE_VM)|uintptr(unix.SIGCHLD),
		stackTop, 0, 0, 0, 0)
	if errno != 0 {
		return -1, errno
	}
	if tid == 0 {
		// Child thread: this goroutine's Go stack is abandoned here.
		jumpToEntry(entry, stackTop)
		// unreachable: jumpToEntry never returns.
		unix.RawSyscall(unix.SYS_EXIT, 0, 0, 0)
	}
	return int(tid), nil
}
