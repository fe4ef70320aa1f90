package runner

import (
	"bufio"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/mattjoyce/github-hook/internal/events"
)

// Runner spawns tasks and tracks them until they exit.
type Runner struct {
	opts   Options
	hub    *events.Hub
	logger *slog.Logger

	sem   *semaphore.Weighted
	locks *repoLocks
	wg    sync.WaitGroup

	running atomic.Int64

	newID func() string
}

// New creates a Runner. hub may be nil.
func New(opts Options, hub *events.Hub, logger *slog.Logger) *Runner {
	if opts.Shell == "" {
		opts.Shell = DefaultShell
	}

	r := &Runner{
		opts:   opts,
		hub:    hub,
		logger: logger,
		locks:  newRepoLocks(),
		newID:  uuid.NewString,
	}
	if opts.MaxConcurrent > 0 {
		r.sem = semaphore.NewWeighted(int64(opts.MaxConcurrent))
	}
	return r
}

// Run starts req in the background and returns immediately.
// The returned Task is a snapshot taken before the process is spawned.
func (r *Runner) Run(req Request) Task {
	task := &Task{
		ID:         r.newID(),
		Repository: req.Repository,
		Command:    req.Command,
		Dir:        req.Dir,
		QueuedAt:   time.Now(),
	}
	snapshot := *task

	r.wg.Add(1)
	go r.execute(task, req.Serialize)

	return snapshot
}

// Running reports how many task processes are currently alive.
func (r *Runner) Running() int64 {
	return r.running.Load()
}

// Wait blocks until every launched task has exited or ctx is done.
func (r *Runner) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// execute owns task for its whole lifetime.
func (r *Runner) execute(task *Task, serialize bool) {
	defer r.wg.Done()

	taskLogger := r.logger.With("task_id", task.ID, "repo_id", task.Repository)

	if serialize {
		release := r.locks.acquire(task.Repository)
		defer release()
	}
	if r.sem != nil {
		taskLogger.Debug("waiting for task slot", "max_concurrent", r.opts.MaxConcurrent)
		// Background context never cancels, so Acquire cannot fail.
		_ = r.sem.Acquire(context.Background(), 1)
		defer r.sem.Release(1)
	}

	cmd := exec.Command(r.opts.Shell, "-c", task.Command)
	cmd.Dir = task.Dir
	cmd.Env = append(os.Environ(), r.opts.Env...)
	cmd.Env = append(cmd.Env,
		"HOOK_REPOSITORY="+task.Repository,
		"HOOK_TASK_ID="+task.ID,
	)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		r.fail(taskLogger, task, "create stdout pipe", err)
		return
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		r.fail(taskLogger, task, "create stderr pipe", err)
		return
	}

	if err := cmd.Start(); err != nil {
		r.fail(taskLogger, task, "start process", err)
		return
	}

	r.running.Add(1)
	defer r.running.Add(-1)

	task.StartedAt = time.Now()
	taskLogger.Info("task started",
		"command", task.Command,
		"started_at", task.StartedAt.Format(time.RFC3339Nano),
		"pid", cmd.Process.Pid,
	)
	r.hub.Publish(events.Event{Type: events.TaskStarted, TaskID: task.ID, Repository: task.Repository})

	// Both pipes must be drained before Wait closes them.
	var streams sync.WaitGroup
	streams.Add(2)
	go r.stream(&streams, taskLogger, "stdout", stdout)
	go r.stream(&streams, taskLogger, "stderr", stderr)
	streams.Wait()

	exitCode := 0
	if err := cmd.Wait(); err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			r.fail(taskLogger, task, "wait for process", err)
			return
		}
		exitCode = exitErr.ExitCode()
	}
	task.ExitCode = &exitCode

	duration := time.Since(task.StartedAt)
	level := slog.LevelInfo
	if exitCode != 0 {
		level = slog.LevelWarn
	}
	taskLogger.Log(context.Background(), level, "task exited",
		"exit_code", exitCode,
		"duration_ms", duration.Milliseconds(),
	)
	r.hub.Publish(events.Event{
		Type:       events.TaskExited,
		TaskID:     task.ID,
		Repository: task.Repository,
		ExitCode:   task.ExitCode,
		Duration:   duration,
	})
}

// stream logs every non-blank line read from rd. A line longer than
// maxLineBytes is dropped with a warning and reading carries on after it.
func (r *Runner) stream(wg *sync.WaitGroup, logger *slog.Logger, name string, rd io.Reader) {
	defer wg.Done()

	reader := bufio.NewReaderSize(rd, 64*1024)
	var line []byte
	dropping := false
	for {
		chunk, isPrefix, err := reader.ReadLine()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				logger.Warn("task output read failed", "stream", name, "error", err)
			}
			return
		}

		if !dropping {
			if len(line)+len(chunk) > maxLineBytes {
				dropping = true
				line = line[:0]
			} else {
				line = append(line, chunk...)
			}
		}
		if isPrefix {
			continue
		}

		if dropping {
			logger.Warn("task output line dropped", "stream", name, "max_line_bytes", maxLineBytes)
			dropping = false
		} else if text := string(line); strings.TrimSpace(text) != "" {
			logger.Info("task output", "stream", name, "line", text)
		}
		line = line[:0]
	}
}

func (r *Runner) fail(logger *slog.Logger, task *Task, step string, err error) {
	logger.Error("task failed",
		"command", task.Command,
		"step", step,
		"error", err,
	)
	r.hub.Publish(events.Event{
		Type:       events.TaskFailed,
		TaskID:     task.ID,
		Repository: task.Repository,
		Step:       step,
		Error:      err.Error(),
	})
}
