package unix

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

// ProcAttr puts the started command in its own process group, so the whole
// tree can be signalled at once.
func ProcAttr() *unix.SysProcAttr {
	return &unix.SysProcAttr{Setpgid: true}
}

func TerminateGroupTimeout(pid int, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return TerminateGroup(ctx, pid)
}

// TerminateGroup sends SIGTERM to the process group led by pid and waits
// until no member of the group is left. Once the context expires, it sends
// SIGKILL to the group.
func TerminateGroup(ctx context.Context, pid int) error {
	pgid, err := unix.Getpgid(pid)
	if err != nil {
		return errors.Wrapf(err, "couldn't find process group of %d", pid)
	}
	err = unix.Kill(-pgid, unix.SIGTERM)
	if err != nil && err != unix.ESRCH {
		return errors.Wrapf(err, "failed to terminate process group %d", pgid)
	}

	for {
		select {
		case <-ctx.Done():
			err = unix.Kill(-pgid, unix.SIGKILL)
			if err != nil && err != unix.ESRCH {
				logrus.Warnf("context deadline exceeded: failed to kill %d process group: %s", pgid, err)
				return err
			}
			return context.DeadlineExceeded
		default:
			if !isGroupAlive(pgid) {
				return nil
			}
			time.Sleep(5 * time.Millisecond)
		}
	}
}

func isGroupAlive(pgid int) bool {
	err := unix.Kill(-pgid, 0)
	return err != unix.ESRCH
}

// IsProcessAlive reports whether pid exists. A zombie counts as alive until
// its parent reaps it.
func IsProcessAlive(pid int) bool {
	err := unix.Kill(pid, 0)
	return err == nil || err == unix.EPERM
}
