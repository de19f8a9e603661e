package daemon

import (
	"os"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/aistore/zexec/cmn/nlog"
)

// daemonCommName is the process name the restart protocol looks for when
// scanning for a holder of a stale socket (spec.md §4.6: "running processes
// named zerovm.daemon").
const daemonCommName = "zerovm.daemon"

// Reaper discovers and kills whatever process currently holds a socket
// path, by scanning /proc/<pid>/fd symlinks for the socket's inode --
// the teacher depends on golang.org/x/sys/unix for exactly this class of
// low-level process/fd introspection.
type Reaper struct{}

// KillHolder finds every process named zerovm.daemon holding socketPath
// open and sends it SIGKILL. Absence of /proc (non-Linux) or of any
// holder is not an error -- the caller proceeds to unlink and restart
// regardless.
func (Reaper) KillHolder(socketPath string) error {
	inode, err := socketInode(socketPath)
	if err != nil {
		// socket file may already be gone; nothing to reap.
		return nil
	}

	entries, err := os.ReadDir("/proc")
	if err != nil {
		return nil
	}
	for _, e := range entries {
		pid, err := strconv.Atoi(e.Name())
		if err != nil {
			continue
		}
		if !processNamed(pid, daemonCommName) {
			continue
		}
		if !processHoldsInode(pid, inode) {
			continue
		}
		nlog.Warningf("daemon: killing stale holder pid=%d of socket %s", pid, socketPath)
		if err := unix.Kill(pid, unix.SIGKILL); err != nil {
			nlog.Warningf("daemon: kill pid=%d: %v", pid, err)
		}
	}
	return nil
}

func socketInode(path string) (uint64, error) {
	var st unix.Stat_t
	if err := unix.Stat(path, &st); err != nil {
		return 0, err
	}
	return st.Ino, nil
}

func processNamed(pid int, name string) bool {
	raw, err := os.ReadFile("/proc/" + strconv.Itoa(pid) + "/comm")
	if err != nil {
		return false
	}
	return strings.TrimSpace(string(raw)) == name
}

func processHoldsInode(pid int, inode uint64) bool {
	fdDir := "/proc/" + strconv.Itoa(pid) + "/fd"
	entries, err := os.ReadDir(fdDir)
	if err != nil {
		return false
	}
	want := "socket:[" + strconv.FormatUint(inode, 10) + "]"
	for _, e := range entries {
		link, err := os.Readlink(fdDir + "/" + e.Name())
		if err != nil {
			continue
		}
		if link == want {
			return true
		}
	}
	return false
}
