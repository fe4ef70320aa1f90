package config

import (
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// RedactedSecret replaces repository secrets in values read through GetPath.
const RedactedSecret = "[redacted]"

// GetPath retrieves a value from the configuration using a dot-notation path,
// e.g. "service.listen" or "repositories.demo.branch". Secrets are redacted.
func (c *Config) GetPath(path string) (any, error) {
	// Entity addressing (type:name)
	if strings.Contains(path, ":") {
		return c.GetEntity(path)
	}

	data, err := yaml.Marshal(c.redacted())
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}

	var m map[string]any
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return getValue(m, path)
}

// GetEntity retrieves a repository by address "repository:<id>".
// "repository:*" lists every repository id.
func (c *Config) GetEntity(address string) (any, error) {
	parts := strings.SplitN(address, ":", 2)
	if len(parts) != 2 {
		return nil, fmt.Errorf("invalid entity address format %q (expected type:name)", address)
	}

	entityType, name := parts[0], parts[1]
	if entityType != "repository" {
		return nil, fmt.Errorf("unsupported entity type %q", entityType)
	}

	repos := c.redacted().Repositories
	if name == "*" {
		ids := make([]string, 0, len(repos))
		for id := range repos {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		return ids, nil
	}

	repo, ok := repos[name]
	if !ok {
		return nil, fmt.Errorf("repository %q not found", name)
	}
	repo.ID = name
	return repo, nil
}

// redacted returns a shallow copy with every secret masked.
func (c *Config) redacted() *Config {
	out := *c
	out.Repositories = make(map[string]RepositoryConfig, len(c.Repositories))
	for id, repo := range c.Repositories {
		if repo.Secret != "" {
			repo.Secret = RedactedSecret
		}
		out.Repositories[id] = repo
	}
	return &out
}

func getValue(m map[string]any, path string) (any, error) {
	parts := strings.Split(path, ".")
	var current any = m

	for _, part := range parts {
		if part == "" {
			continue
		}

		m, ok := current.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("path %q breaks at %q (not a map)", path, part)
		}

		val, exists := m[part]
		if !exists {
			return nil, fmt.Errorf("path %q: key %q not found", path, part)
		}
		current = val
	}

	return current, nil
}
