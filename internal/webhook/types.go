package webhook

//go:generate mockgen -destination=mocks/mock_launcher.go -package=mocks github.com/mattjoyce/github-hook/internal/webhook TaskLauncher

import (
	"github.com/mattjoyce/github-hook/internal/config"
	"github.com/mattjoyce/github-hook/internal/runner"
)

// RepositoryLookup resolves a repository id to its configuration.
// *config.Registry satisfies it.
type RepositoryLookup interface {
	Lookup(repoID string) (config.RepositoryConfig, bool)
}

// TaskLauncher starts a repository script without waiting for it.
// *runner.Runner satisfies it.
type TaskLauncher interface {
	Run(req runner.Request) runner.Task
}

// Config holds webhook server configuration.
type Config struct {
	// Listen is the TCP address, e.g. ":3000".
	Listen string

	// MaxBodySize is the maximum accepted request body in bytes (default: 1MB).
	MaxBodySize int64

	// Version is served by GET /github-hook/version.
	Version string
}

// ErrorResponse is the JSON body of every error response.
type ErrorResponse struct {
	Code  int    `json:"code"`
	Error string `json:"error"`
}

// SignatureHeader carries "sha1=<hex>". Event type and delivery id are read
// with github.WebHookType and github.DeliveryID.
const SignatureHeader = "X-Hub-Signature"

// Plain-text acknowledgements.
const (
	ResponseExecuted = "ok"
	ResponseIgnored  = "osef"
)

// Default values
const (
	DefaultMaxBodySize = config.DefaultMaxBodySize
	DefaultVersion     = "dev"
)
