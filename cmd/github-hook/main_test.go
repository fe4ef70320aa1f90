package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/github-hook/internal/config"
	"github.com/mattjoyce/github-hook/internal/events"
)

func captureOutputWithExitCode(t *testing.T, run func() int) (int, string, string) {
	t.Helper()

	oldStdout := os.Stdout
	oldStderr := os.Stderr

	stdoutR, stdoutW, err := os.Pipe()
	if err != nil {
		t.Fatalf("os.Pipe stdout failed: %v", err)
	}
	stderrR, stderrW, err := os.Pipe()
	if err != nil {
		t.Fatalf("os.Pipe stderr failed: %v", err)
	}

	os.Stdout = stdoutW
	os.Stderr = stderrW

	code := run()

	_ = stdoutW.Close()
	_ = stderrW.Close()
	os.Stdout = oldStdout
	os.Stderr = oldStderr

	stdoutBytes, _ := io.ReadAll(stdoutR)
	stderrBytes, _ := io.ReadAll(stderrR)

	_ = stdoutR.Close()
	_ = stderrR.Close()

	return code, string(stdoutBytes), string(stderrBytes)
}

func captureRun(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	return captureOutputWithExitCode(t, func() int {
		return run(args)
	})
}

const validConfig = `
service:
  listen: "127.0.0.1:0"
  log_level: error
repositories:
  demo:
    secret: s3cr3t
    script: echo hi
  site:
    secret: other
    script: ./deploy.sh
    branch: main
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// unsetEnv clears key for the duration of the test.
func unsetEnv(t *testing.T, key string) {
	t.Helper()
	t.Setenv(key, "")
	require.NoError(t, os.Unsetenv(key))
}

func TestRunVersion(t *testing.T) {
	code, stdout, _ := captureRun(t, "version")
	assert.Equal(t, 0, code)
	assert.Equal(t, "github-hook version dev\n", stdout)
}

func TestRunHelp(t *testing.T) {
	for _, token := range []string{"help", "--help", "-h"} {
		code, stdout, _ := captureRun(t, token)
		assert.Equal(t, 0, code)
		assert.Contains(t, stdout, "Usage:")
	}
}

func TestRunUnknownCommand(t *testing.T) {
	code, stdout, stderr := captureRun(t, "deploy")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "Unknown command: deploy")
	assert.Contains(t, stdout, "Usage:")
}

func TestRunConfigUnknownAction(t *testing.T) {
	code, _, stderr := captureRun(t, "config", "show")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "Unknown config action: show")
}

func TestRunConfigCheckValid(t *testing.T) {
	path := writeConfig(t, validConfig)

	code, stdout, stderr := captureRun(t, "config", "check", "--config", path)
	require.Equal(t, 0, code, "stderr: %s", stderr)
	assert.Contains(t, stdout, "Configuration OK")
	assert.Contains(t, stdout, "repositories: 2")
	assert.Contains(t, stdout, "- demo (branch: *)")
	assert.Contains(t, stdout, "- site (branch: main)")
	assert.Contains(t, stdout, "integrity: not locked")
}

func TestRunConfigCheckNamesInvalidRepository(t *testing.T) {
	path := writeConfig(t, `
repositories:
  demo:
    secret: s3cr3t
`)

	code, _, stderr := captureRun(t, "config", "check", "--config", path)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, `missing script for "demo" repository`)
}

func TestRunConfigCheckUsesConfigEnv(t *testing.T) {
	path := writeConfig(t, validConfig)
	t.Setenv("CONFIG", path)

	code, stdout, stderr := captureRun(t, "config", "check")
	require.Equal(t, 0, code, "stderr: %s", stderr)
	assert.Contains(t, stdout, path)
}

func TestRunConfigCheckLoadsEnvFile(t *testing.T) {
	path := writeConfig(t, validConfig)
	unsetEnv(t, "CONFIG")

	envFile := filepath.Join(t.TempDir(), "hook.env")
	require.NoError(t, os.WriteFile(envFile, []byte("CONFIG="+path+"\n"), 0o600))

	code, stdout, stderr := captureRun(t, "config", "check", "--env-file", envFile)
	require.Equal(t, 0, code, "stderr: %s", stderr)
	assert.Contains(t, stdout, path)
}

func TestRunConfigCheckMissingEnvFile(t *testing.T) {
	code, _, stderr := captureRun(t, "config", "check", "--env-file", filepath.Join(t.TempDir(), "missing.env"))
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "load env file")
}

func TestRunConfigLockThenCheck(t *testing.T) {
	path := writeConfig(t, validConfig)
	dir := filepath.Dir(path)

	code, stdout, stderr := captureRun(t, "config", "lock", "--config", dir, "-v")
	require.Equal(t, 0, code, "stderr: %s", stderr)
	assert.Contains(t, stdout, "HASH config.yaml:")
	assert.Contains(t, stdout, "Successfully locked configuration")
	assert.FileExists(t, filepath.Join(dir, ".checksums"))

	code, stdout, stderr = captureRun(t, "config", "check", "--config", path)
	require.Equal(t, 0, code, "stderr: %s", stderr)
	assert.Contains(t, stdout, "integrity: verified")

	// Any edit after locking is rejected until the config is locked again.
	require.NoError(t, os.WriteFile(path, []byte(validConfig+"\n# edited\n"), 0o644))
	code, _, stderr = captureRun(t, "config", "check", "--config", path)
	assert.Equal(t, 1, code)
	assert.NotEmpty(t, stderr)

	code, _, stderr = captureRun(t, "config", "lock", "--config", path)
	require.Equal(t, 0, code, "stderr: %s", stderr)
	code, _, _ = captureRun(t, "config", "check", "--config", path)
	assert.Equal(t, 0, code)
}

func TestRunConfigLockDryRun(t *testing.T) {
	path := writeConfig(t, validConfig)

	code, stdout, stderr := captureRun(t, "config", "lock", "--config", path, "--dry-run", "--verbose")
	require.Equal(t, 0, code, "stderr: %s", stderr)
	assert.Contains(t, stdout, "HASH config.yaml:")
	assert.Contains(t, stdout, "Dry run completed")
	assert.NoFileExists(t, filepath.Join(filepath.Dir(path), ".checksums"))
}

func TestRunConfigLockRejectsInvalidConfig(t *testing.T) {
	path := writeConfig(t, "repositories:\n  demo:\n    script: echo hi\n")

	code, _, stderr := captureRun(t, "config", "lock", "--config", path)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "Refusing to lock invalid config")
	assert.NoFileExists(t, filepath.Join(filepath.Dir(path), ".checksums"))
}

func TestRunConfigGet(t *testing.T) {
	path := writeConfig(t, validConfig)

	code, stdout, stderr := captureRun(t, "config", "get", "--config", path, "repositories.site.branch")
	require.Equal(t, 0, code, "stderr: %s", stderr)
	assert.Equal(t, "main\n", stdout)

	code, stdout, _ = captureRun(t, "config", "get", "--config", path, "repositories.demo")
	require.Equal(t, 0, code)
	assert.Contains(t, stdout, "script: echo hi")
	assert.NotContains(t, stdout, "s3cr3t")

	code, stdout, _ = captureRun(t, "config", "get", "--config", path, "--json", "service.listen")
	require.Equal(t, 0, code)
	assert.Equal(t, "\"127.0.0.1:0\"\n", stdout)

	code, stdout, stderr = captureRun(t, "config", "get", "--config", path, "service.listen", "--json")
	require.Equal(t, 0, code, "stderr: %s", stderr)
	assert.Equal(t, "\"127.0.0.1:0\"\n", stdout)

	code, _, stderr = captureRun(t, "config", "get", "--config", path, "service.listen", "service.shell")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "Usage: github-hook config get [--json] <path>")

	code, _, stderr = captureRun(t, "config", "get", "--config", path, "service.nope")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "not found")

	code, _, _ = captureRun(t, "config", "get", "--config", path)
	assert.Equal(t, 1, code)
}

func TestRunStartInvalidConfig(t *testing.T) {
	path := writeConfig(t, "repositories:\n  demo:\n    script: echo hi\n")

	code, _, stderr := captureRun(t, "start", "--config", path)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, `missing secret for "demo" repository`)
}

func TestRunStartMissingConfig(t *testing.T) {
	code, _, stderr := captureRun(t, "--config", filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "Failed to load config")
}

func TestServeStopsOnCancel(t *testing.T) {
	path := writeConfig(t, validConfig)
	cfg, err := config.Load(path)
	require.NoError(t, err)
	cfg.Service.PIDFile = filepath.Join(t.TempDir(), "github-hook.pid")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan int, 1)
	go func() { done <- serve(ctx, cfg, "0") }()

	// The PID file appears once serve is past startup.
	require.Eventually(t, func() bool {
		_, err := os.Stat(cfg.Service.PIDFile)
		return err == nil
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case code := <-done:
		assert.Equal(t, 0, code)
	case <-time.After(10 * time.Second):
		t.Fatal("serve did not return after cancellation")
	}
	assert.NoFileExists(t, cfg.Service.PIDFile)
}

func TestServeRejectsSecondInstance(t *testing.T) {
	path := writeConfig(t, validConfig)
	cfg, err := config.Load(path)
	require.NoError(t, err)
	cfg.Service.PIDFile = filepath.Join(t.TempDir(), "github-hook.pid")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan int, 1)
	go func() { done <- serve(ctx, cfg, "0") }()

	require.Eventually(t, func() bool {
		_, err := os.Stat(cfg.Service.PIDFile)
		return err == nil
	}, 5*time.Second, 10*time.Millisecond)

	assert.Equal(t, 1, serve(context.Background(), cfg, "0"))

	cancel()
	<-done
}

func TestDefaultConfigPath(t *testing.T) {
	unsetEnv(t, "CONFIG")
	var c commonFlags
	path, err := c.resolve()
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(path, defaultConfigPath))
}

func TestLogEvents(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	ch := make(chan events.Event, 2)
	ch <- events.Event{ID: 1, Type: events.TaskStarted, TaskID: "a", Repository: "demo"}
	ch <- events.Event{ID: 2, Type: events.TaskExited, TaskID: "a", Repository: "demo"}
	close(ch)

	logEvents(ch, logger)
	out := buf.String()
	assert.Equal(t, 2, strings.Count(out, "task event"))
	assert.Contains(t, out, "type=task.started")
	assert.Contains(t, out, "type=task.exited")
}

func TestWatchSignals_SecondSignalExits(t *testing.T) {
	exited := make(chan int, 1)
	oldExit := exit
	exit = func(code int) { exited <- code }
	t.Cleanup(func() { exit = oldExit })

	sigCh := make(chan os.Signal, 2)
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	done := make(chan struct{})
	go func() {
		watchSignals(sigCh, cancel, stopped)
		close(done)
	}()

	sigCh <- syscall.SIGINT
	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("first signal did not cancel")
	}
	assert.Empty(t, exited)

	sigCh <- syscall.SIGTERM
	select {
	case code := <-exited:
		assert.Equal(t, 1, code)
	case <-time.After(time.Second):
		t.Fatal("second signal did not exit")
	}
	<-done
}

func TestWatchSignals_ReturnsWhenStopped(t *testing.T) {
	oldExit := exit
	exit = func(int) { t.Error("exit called") }
	t.Cleanup(func() { exit = oldExit })

	sigCh := make(chan os.Signal, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	stopped := make(chan struct{})
	done := make(chan struct{})
	go func() {
		watchSignals(sigCh, cancel, stopped)
		close(done)
	}()

	close(stopped)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("watchSignals did not return")
	}
	assert.NoError(t, ctx.Err())
}
