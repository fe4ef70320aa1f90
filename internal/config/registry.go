package config

import (
	"fmt"
	"sort"
	"strings"
)

// ConfigValidationError reports a repository entry that cannot be served.
type ConfigValidationError struct {
	Repository string
	Field      string
	Reason     string
}

func (e *ConfigValidationError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("repository %q: %s: %s", e.Repository, e.Field, e.Reason)
	}
	return fmt.Sprintf("missing %s for %q repository", e.Field, e.Repository)
}

// Registry is the immutable set of configured repositories.
// It is built once at startup and only read afterwards, so it needs no locking.
type Registry struct {
	repos map[string]RepositoryConfig
	ids   []string
}

// NewRegistry validates every entry and returns a registry holding a private copy.
// The first invalid repository (in sorted id order) is reported.
func NewRegistry(repos map[string]RepositoryConfig) (*Registry, error) {
	ids := make([]string, 0, len(repos))
	for id := range repos {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	copied := make(map[string]RepositoryConfig, len(repos))
	for _, id := range ids {
		repo := repos[id]
		repo.ID = id
		if err := validateRepository(repo); err != nil {
			return nil, err
		}
		copied[id] = repo
	}

	return &Registry{repos: copied, ids: ids}, nil
}

// Lookup returns the configuration for repoID.
func (r *Registry) Lookup(repoID string) (RepositoryConfig, bool) {
	if r == nil {
		return RepositoryConfig{}, false
	}
	repo, ok := r.repos[repoID]
	return repo, ok
}

// IDs returns the configured repository ids in sorted order.
func (r *Registry) IDs() []string {
	if r == nil {
		return nil
	}
	out := make([]string, len(r.ids))
	copy(out, r.ids)
	return out
}

// Len returns the number of configured repositories.
func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.ids)
}

func validateRepository(repo RepositoryConfig) error {
	if strings.TrimSpace(repo.Secret) == "" {
		return &ConfigValidationError{Repository: repo.ID, Field: "secret"}
	}
	if envVarPattern.MatchString(repo.Secret) {
		matches := envVarPattern.FindStringSubmatch(repo.Secret)
		return &ConfigValidationError{
			Repository: repo.ID,
			Field:      "secret",
			Reason:     fmt.Sprintf("environment variable ${%s} is not set", matches[1]),
		}
	}
	if strings.TrimSpace(repo.Script) == "" {
		return &ConfigValidationError{Repository: repo.ID, Field: "script"}
	}
	return nil
}
