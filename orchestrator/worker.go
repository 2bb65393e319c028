package orchestrator

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/v3/process"
	log "github.com/sirupsen/logrus"
)

// Runner executes one stage job in isolation and returns once it has
// finished. A non-nil error means the stage failed; the handoff file may
// still carry the reason.
type Runner interface {
	Run(ctx context.Context, job Job) error
}

// Spawner runs each job in a fresh child process of the current binary
// (`<exe> [Args...] worker --stage S --in I --out O [--config C]`). The
// child's native model memory is reclaimed when it exits.
type Spawner struct {
	Exe        string
	Args       []string
	ConfigPath string
	Env        []string
	// Timeout of 0 waits for the worker indefinitely.
	Timeout time.Duration
	// RSSInterval is how often the child's resident memory is sampled.
	RSSInterval time.Duration
}

func NewSpawner(configPath string, timeout time.Duration) (*Spawner, error) {
	exe, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("locate executable: %w", err)
	}
	return &Spawner{Exe: exe, ConfigPath: configPath, Timeout: timeout}, nil
}

// ExitError reports a worker that terminated unsuccessfully.
type ExitError struct {
	Stage    Stage
	Code     int
	TimedOut bool
	Stderr   string
}

func (e *ExitError) Error() string {
	if e.TimedOut {
		return fmt.Sprintf("%s worker timed out", e.Stage)
	}
	msg := fmt.Sprintf("%s worker exited with code %d", e.Stage, e.Code)
	if e.Stderr != "" {
		msg += ": " + e.Stderr
	}
	return msg
}

func (s *Spawner) Run(ctx context.Context, job Job) error {
	if s.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}

	args := append([]string{}, s.Args...)
	args = append(args, "worker", "--stage", string(job.Stage), "--in", job.Input, "--out", job.Output)
	if s.ConfigPath != "" {
		args = append(args, "--config", s.ConfigPath)
	}
	cmd := exec.CommandContext(ctx, s.Exe, args...)
	cmd.Env = append(os.Environ(), s.Env...)
	cmd.Stdout = os.Stdout
	var stderr tailBuffer
	cmd.Stderr = &stderr

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s worker: %w", job.Stage, err)
	}
	pid := cmd.Process.Pid
	lg := log.WithFields(log.Fields{"stage": job.Stage, "pid": pid})
	lg.Debug("worker started")

	done := make(chan struct{})
	var peak atomic.Uint64
	go s.watchRSS(pid, &peak, done)
	err := cmd.Wait()
	close(done)

	lg = lg.WithFields(log.Fields{
		"wall":        time.Since(start).Round(time.Millisecond).String(),
		"peak_rss_mb": peak.Load() >> 20,
	})
	if err == nil {
		lg.Info("worker finished")
		return nil
	}

	xe := &ExitError{Stage: job.Stage, Code: -1, Stderr: stderr.String()}
	var ee *exec.ExitError
	if errors.As(err, &ee) {
		xe.Code = ee.ExitCode()
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		xe.TimedOut = true
	}
	lg.WithField("code", xe.Code).Warn("worker failed")
	return xe
}

func (s *Spawner) watchRSS(pid int, peak *atomic.Uint64, done <-chan struct{}) {
	every := s.RSSInterval
	if every <= 0 {
		every = 200 * time.Millisecond
	}
	proc, err := process.NewProcess(int32(pid))
	if err != nil {
		return
	}
	tick := time.NewTicker(every)
	defer tick.Stop()
	for {
		if mi, err := proc.MemoryInfo(); err == nil && mi.RSS > peak.Load() {
			peak.Store(mi.RSS)
		}
		select {
		case <-done:
			return
		case <-tick.C:
		}
	}
}

// tailBuffer keeps the last few KiB of a worker's stderr for error reports
// while still echoing everything to the parent's stderr.
type tailBuffer struct {
	buf bytes.Buffer
}

const tailLimit = 4 << 10

func (t *tailBuffer) Write(p []byte) (int, error) {
	_, _ = os.Stderr.Write(p)
	t.buf.Write(p)
	if over := t.buf.Len() - tailLimit; over > 0 {
		t.buf.Next(over)
	}
	return len(p), nil
}

func (t *tailBuffer) String() string { return string(bytes.TrimSpace(t.buf.Bytes())) }
