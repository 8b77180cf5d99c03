package process

import (
	"context"
	"io"
	"os"
	"os/exec"
	"time"

	"github.com/glossd/unsealer/common/unix"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var shell = []string{"/bin/sh", "-c"}

const defaultStopTimeout = 10 * time.Second

// Runner runs the unsealed command through the shell.
type Runner struct {
	Command string
	Env     []string
	// Number of sequential runs, less than 1 restarts the command forever.
	Runs int
	// How long a cancelled command gets between SIGTERM and SIGKILL.
	StopTimeout time.Duration
	Stdout      io.Writer
	Stderr      io.Writer
}

// Run blocks until the command has run Runs times or ctx is cancelled.
// It returns the error of the last run, an *exec.ExitError if the command
// exited with a non-zero status.
func (r *Runner) Run(ctx context.Context) error {
	var err error
	for run := 1; r.Runs < 1 || run <= r.Runs; run++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		err = r.runOnce(ctx, run)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			logrus.WithField("run", run).Warnf("Command exited with status: %s", exitErr)
			continue
		}
		if err != nil {
			return err
		}
	}
	return err
}

func (r *Runner) runOnce(ctx context.Context, run int) error {
	cmd := exec.Command(shell[0], append(shell[1:], r.Command)...)
	cmd.Env = r.Env
	cmd.Stdout = r.Stdout
	if cmd.Stdout == nil {
		cmd.Stdout = os.Stdout
	}
	cmd.Stderr = r.Stderr
	if cmd.Stderr == nil {
		cmd.Stderr = os.Stderr
	}
	cmd.SysProcAttr = unix.ProcAttr()

	if err := cmd.Start(); err != nil {
		return errors.Wrapf(err, "failed to start '%s' command", r.Command)
	}
	pid := cmd.Process.Pid
	log := logrus.WithFields(logrus.Fields{"pid": pid, "run": run})
	log.Info("Started command")

	done := make(chan error, 1)
	go func() {
		done <- cmd.Wait()
	}()

	select {
	case err := <-done:
		if err == nil {
			log.Info("Command exited")
		}
		return err
	case <-ctx.Done():
		log.Info("Stopping command...")
		timeout := r.StopTimeout
		if timeout == 0 {
			timeout = defaultStopTimeout
		}
		if err := unix.TerminateGroupTimeout(pid, timeout); err != nil {
			log.Warnf("Command didn't stop gracefully: %s", err)
		}
		<-done
		return ctx.Err()
	}
}
