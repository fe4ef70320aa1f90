package webhook

import (
	"crypto/hmac"
	"crypto/sha1"
	"crypto/subtle"
	"encoding/hex"
	"log/slog"
	"strings"

	"github.com/mattjoyce/github-hook/internal/config"
)

const signaturePrefix = "sha1="

// Verifier authenticates webhook deliveries against the repository registry.
// It holds no mutable state; identical inputs always give identical results.
type Verifier struct {
	repos  RepositoryLookup
	logger *slog.Logger
}

// NewVerifier creates a Verifier backed by repos.
func NewVerifier(repos RepositoryLookup, logger *slog.Logger) *Verifier {
	return &Verifier{repos: repos, logger: logger}
}

// Resolve runs the checks that need no body: the repository must exist and a
// signature header must be present.
func (v *Verifier) Resolve(repoID, signature string) (config.RepositoryConfig, error) {
	repo, ok := v.repos.Lookup(repoID)
	if !ok {
		return config.RepositoryConfig{}, ErrRepositoryNotFound
	}
	if signature == "" {
		v.logger.Warn("missing signature header", "repo_id", repoID)
		return config.RepositoryConfig{}, ErrMissingSignature
	}
	return repo, nil
}

// Verify checks that signature is "sha1=" followed by the lowercase hex
// HMAC-SHA1 of body keyed by the repository secret.
//
// body must be the exact bytes received; re-encoded JSON will not match.
func (v *Verifier) Verify(repoID string, body []byte, signature string) (config.RepositoryConfig, error) {
	repo, err := v.Resolve(repoID, signature)
	if err != nil {
		return config.RepositoryConfig{}, err
	}

	expected := formatSignature(computeSignature(body, repo.Secret))

	// Constant-time comparison to prevent timing attacks
	if subtle.ConstantTimeCompare([]byte(expected), []byte(signature)) != 1 {
		reason := "digest mismatch"
		if !strings.HasPrefix(signature, signaturePrefix) {
			reason = "missing sha1= prefix"
		}
		v.logger.Warn("invalid signature", "repo_id", repoID, "reason", reason, "signature", signature)
		return config.RepositoryConfig{}, ErrInvalidSignature
	}

	return repo, nil
}

// computeSignature returns the lowercase hex HMAC-SHA1 of body.
func computeSignature(body []byte, secret string) string {
	mac := hmac.New(sha1.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// formatSignature renders a hex digest in X-Hub-Signature format.
func formatSignature(hexSig string) string {
	return signaturePrefix + hexSig
}
