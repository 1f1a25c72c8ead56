package achcop

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/rswindell/ach/internal/achutil"
)

// Run drives one supervised child for its whole lifetime: detach (if
// requested), lock pid files, redirect stdio, install signal tracking,
// then loop starting the child and reacting to whatever happens to it,
// until a terminate/interrupt signal or a successful child exit ends
// the loop. It mirrors achcop.c's main()+run().
func Run(ctx context.Context, log *achutil.Logger, cfg Config) error {
	if cfg.Detach {
		if err := detach(log); err != nil {
			return err
		}
	}

	var copPID, childPID *achutil.PIDFile
	if cfg.CopPIDFile != "" {
		p, err := achutil.OpenPIDFile(cfg.CopPIDFile)
		if err != nil {
			return err
		}
		defer p.Unlock()
		copPID = p
		if err := copPID.Write(os.Getpid()); err != nil {
			return err
		}
	}
	if cfg.ChildPIDFile != "" {
		p, err := achutil.OpenPIDFile(cfg.ChildPIDFile)
		if err != nil {
			return err
		}
		defer p.Unlock()
		childPID = p
	}

	if err := redirectStdio(cfg.StdoutFile, cfg.StderrFile); err != nil {
		log.Errorf("redirect: %v", err)
	}

	sf := achutil.NewSigFlags()
	defer sf.Stop()

	backoff := achutil.NewRestartBackoff(cfg.minStableRuntime())

	return supervise(ctx, log, cfg, sf, backoff, childPID)
}

// supervise is the main loop: start the child, wait for the next
// signal of interest, act on it, possibly loop back to start again.
func supervise(ctx context.Context, log *achutil.Logger, cfg Config, sf *achutil.SigFlags, backoff *achutil.RestartBackoff, childPID *achutil.PIDFile) error {
	for {
		cmd, err := startChild(cfg, childPID)
		if err != nil {
			return err
		}
		startedAt := time.Now()
		log.Infof("started child pid=%d: %s", cmd.Process.Pid, cfg.ChildPath)

		sig := sf.WaitForAny(ctx)
		switch sig {
		case achutil.SignalTerminate, achutil.SignalInterrupt:
			log.Infof("terminate requested, stopping child")
			status, err := stopChild(cmd, cfg.shutdownTimeout())
			if err != nil {
				return err
			}
			return exitError(status)

		case achutil.SignalChildStatus:
			status, err := waitChild(cmd)
			if err != nil {
				return err
			}
			if status.signal == 0 && status.exitCode == 0 {
				log.Infof("child exited successfully, stopping")
				return nil
			}
			log.Infof("child exited (code=%d signal=%v), restarting", status.exitCode, status.signal)
			wait := backoff.NextBackOff(time.Since(startedAt))
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return ctx.Err()
			}

		case achutil.SignalNone:
			// ctx was cancelled (e.g. the host process is shutting down);
			// stop the child the same way an OS-level terminate would.
			log.Infof("context cancelled, stopping child")
			if _, err := stopChild(cmd, cfg.shutdownTimeout()); err != nil {
				return err
			}
			return ctx.Err()

		default:
			return fmt.Errorf("achcop: unexpected signal result %v", sig)
		}
	}
}

func startChild(cfg Config, childPID *achutil.PIDFile) (*exec.Cmd, error) {
	cmd := exec.Command(cfg.ChildPath, cfg.ChildArgs...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Stdin = os.Stdin
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("achcop: starting child: %w", err)
	}
	if childPID != nil {
		if err := childPID.Write(cmd.Process.Pid); err != nil {
			return nil, err
		}
	}
	return cmd, nil
}

type childStatus struct {
	exitCode int
	signal   syscall.Signal
}

// waitChild reaps the child and reports how it ended, matching
// waitloop's exited-vs-signalled split.
func waitChild(cmd *exec.Cmd) (childStatus, error) {
	err := cmd.Wait()
	if err == nil {
		return childStatus{}, nil
	}
	if exitErr, ok := err.(*exec.ExitError); ok {
		ws := exitErr.Sys().(syscall.WaitStatus)
		if ws.Signaled() {
			return childStatus{signal: ws.Signal()}, nil
		}
		return childStatus{exitCode: ws.ExitStatus()}, nil
	}
	return childStatus{}, fmt.Errorf("achcop: waiting for child: %w", err)
}

// stopChild sends SIGTERM, waits up to timeout for the child to exit on
// its own, and escalates to SIGKILL if it hasn't (REDESIGN: the
// original waited forever).
func stopChild(cmd *exec.Cmd, timeout time.Duration) (childStatus, error) {
	if err := cmd.Process.Signal(syscall.SIGTERM); err != nil && err != os.ErrProcessDone {
		return childStatus{}, fmt.Errorf("achcop: signalling child: %w", err)
	}

	done := make(chan struct {
		status childStatus
		err    error
	}, 1)
	go func() {
		s, err := waitChild(cmd)
		done <- struct {
			status childStatus
			err    error
		}{s, err}
	}()

	select {
	case r := <-done:
		return r.status, r.err
	case <-time.After(timeout):
		_ = cmd.Process.Kill()
		r := <-done
		return r.status, r.err
	}
}

func exitError(status childStatus) error {
	if status.signal == 0 && status.exitCode == 0 {
		return nil
	}
	if status.signal != 0 {
		return fmt.Errorf("achcop: child terminated by signal %v", status.signal)
	}
	return fmt.Errorf("achcop: child exited with status %d", status.exitCode)
}

func redirectStdio(stdoutFile, stderrFile string) error {
	if stdoutFile != "" {
		f, err := os.OpenFile(stdoutFile, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0664)
		if err != nil {
			return fmt.Errorf("achcop: redirect stdout: %w", err)
		}
		os.Stdout = f
	}
	if stderrFile != "" {
		f, err := os.OpenFile(stderrFile, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0664)
		if err != nil {
			return fmt.Errorf("achcop: redirect stderr: %w", err)
		}
		os.Stderr = f
	}
	return nil
}
