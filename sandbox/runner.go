package sandbox

import (
	"bytes"
	"context"
	"io"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"

	"github.com/aistore/zexec/cmn/nlog"
	"github.com/aistore/zexec/stats"
)

const (
	// StdoutMax/StderrMax are spec.md §4.5's default bounded-output caps.
	StdoutMax = 65536
	StderrMax = 65536

	// Grace is the additional deadline granted after primary timeout
	// expiry before escalating from TERM to KILL (spec.md §4.5).
	Grace = 2 * time.Second
)

// Runner launches the configured sandbox binary against a manifest file
// and enforces the bounded-output/timeout-escalation contract.
type Runner struct {
	ExeName    string // zerovm_exename
	KillTimeout time.Duration
}

// Run implements `run(manifest_path, timeout, args) -> (RunCode, stdout,
// stderr)`: forks the sandbox binary with stdout/stderr redirected to
// pipes, drains both concurrently via errgroup (the teacher's xact/xs
// joggers fan in with WaitGroup+atomics for a comparable "all readers must
// finish, first error wins" shape; errgroup is the direct generalization),
// and escalates TERM -> KILL on deadline expiry.
func (r *Runner) Run(ctx context.Context, manifestPath string, timeout time.Duration, args []string) Result {
	start := time.Now()
	mode := "standalone"
	defer func() {
		stats.SandboxDuration.WithLabelValues(mode).Observe(time.Since(start).Seconds())
	}()

	cmdArgs := append([]string{manifestPath}, args...)
	cmd := exec.Command(r.ExeName, cmdArgs...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return finish(RunError, nil, nil)
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return finish(RunError, nil, nil)
	}

	if err := cmd.Start(); err != nil {
		nlog.Errorf("sandbox: start %s: %v", r.ExeName, err)
		return finish(RunError, nil, nil)
	}

	var (
		mu              sync.Mutex
		stdout, stderr  bytes.Buffer
		tooLong         bool
	)
	drain := func(r io.Reader, buf *bytes.Buffer, max int) error {
		chunk := make([]byte, 4096)
		for {
			n, err := r.Read(chunk)
			if n > 0 {
				mu.Lock()
				buf.Write(chunk[:n])
				if buf.Len() > max {
					tooLong = true
				}
				mu.Unlock()
				if tooLong {
					return nil
				}
			}
			if err != nil {
				if err == io.EOF {
					return nil
				}
				return err
			}
		}
	}

	eg, _ := errgroup.WithContext(ctx)
	eg.Go(func() error { return drain(stdoutPipe, &stdout, StdoutMax) })
	eg.Go(func() error { return drain(stderrPipe, &stderr, StderrMax) })

	done := make(chan error, 1)
	go func() { done <- eg.Wait() }()

	killTimeout := r.KillTimeout
	if killTimeout <= 0 {
		killTimeout = Grace
	}

	select {
	case <-done:
		if tooLong {
			r.killGroup(cmd, unix.SIGKILL)
			cmd.Wait()
			return finish(RunOutputTooLong, stdout.Bytes(), stderr.Bytes())
		}
		if err := cmd.Wait(); err != nil {
			return finish(RunError, stdout.Bytes(), stderr.Bytes())
		}
		return finish(RunOK, stdout.Bytes(), stderr.Bytes())

	case <-time.After(timeout):
		nlog.Warningf("sandbox: %s exceeded timeout %s, sending TERM", r.ExeName, timeout)
		r.killGroup(cmd, unix.SIGTERM)

		select {
		case <-done:
			cmd.Wait()
			return finish(RunTimedOut, stdout.Bytes(), stderr.Bytes())
		case <-time.After(killTimeout):
			nlog.Warningf("sandbox: %s still running after kill_timeout, sending KILL", r.ExeName)
			r.killGroup(cmd, unix.SIGKILL)
			<-done
			cmd.Wait()
			return finish(RunKilled, stdout.Bytes(), stderr.Bytes())
		}
	}
}

func finish(code RunCode, stdout, stderr []byte) Result {
	stats.SandboxRuns.WithLabelValues(code.String()).Inc()
	return Result{Code: code, Stdout: stdout, Stderr: stderr}
}

// killGroup signals the child's entire process group so a sandboxed
// executable that forks its own children is fully reaped.
func (r *Runner) killGroup(cmd *exec.Cmd, sig syscall.Signal) {
	if cmd.Process == nil {
		return
	}
	pgid, err := unix.Getpgid(cmd.Process.Pid)
	if err != nil {
		pgid = cmd.Process.Pid
	}
	if err := unix.Kill(-pgid, sig); err != nil {
		nlog.Warningf("sandbox: kill pgid %d: %v", pgid, err)
	}
}
