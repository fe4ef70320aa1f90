// Package runner launches repository scripts as detached child processes.
//
// Run never blocks: it assigns a correlation id, hands the task to a goroutine and
// returns a snapshot immediately. The goroutine spawns the script, streams its
// output into the log and records the exit code.
//
// Key features:
//   - Invocation through an explicit shell boundary: <shell> -c <script>
//   - UUID correlation ids attached to every log line as task_id
//   - Line-by-line stdout/stderr streaming, blank lines suppressed
//   - Lifecycle events (task.started, task.exited, task.failed) published to an events.Hub
//   - Optional global bound on concurrently running tasks (semaphore)
//   - Optional per-repository serialization
//
// Failure handling:
//   - Non-zero exit → logged at WARN, never escalated
//   - Spawn failure (missing shell, bad working directory) → "task failed" at ERROR
//   - No timeout, no cancellation, no retry
package runner
