package webhook

import (
	"fmt"

	"github.com/mattjoyce/github-hook/internal/config"
)

// FromServiceConfig converts the service section of the YAML config into a
// webhook.Config. port, when non-empty, replaces the port of service.listen.
func FromServiceConfig(sc config.ServiceConfig, port, version string) (Config, error) {
	maxBodySize, err := config.ParseMaxBodySize(sc.MaxBodySize)
	if err != nil {
		return Config{}, fmt.Errorf("invalid max_body_size %q: %w", sc.MaxBodySize, err)
	}

	listen := sc.ListenAddr(port)
	if listen == "" {
		listen = config.DefaultListen
	}
	if version == "" {
		version = DefaultVersion
	}

	return Config{
		Listen:      listen,
		MaxBodySize: maxBodySize,
		Version:     version,
	}, nil
}
