package runner

import "time"

// Request describes one script invocation.
type Request struct {
	Repository string
	Command    string
	Dir        string

	// Serialize waits for earlier tasks of the same repository to finish.
	Serialize bool
}

// Task is one invocation of a configured command.
type Task struct {
	ID         string
	Repository string
	Command    string
	Dir        string
	QueuedAt   time.Time
	StartedAt  time.Time

	// ExitCode is set once, when the process terminates.
	ExitCode *int
}

// Options configures a Runner.
type Options struct {
	// Shell is the interpreter used as "<shell> -c <command>". Defaults to "sh".
	Shell string

	// MaxConcurrent bounds concurrently running tasks. 0 means unbounded.
	MaxConcurrent int

	// Env is appended to the parent environment for every task.
	Env []string
}

const (
	// DefaultShell is used when Options.Shell is empty.
	DefaultShell = "sh"

	// maxLineBytes caps a single output line; longer lines are dropped with a warning.
	maxLineBytes = 1024 * 1024
)
