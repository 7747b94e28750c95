package config

import (
	"net/url"
	"strings"
)

// Issue describes a single validation problem.
type Issue struct {
	Path    string
	Message string
}

// Validate checks the config for problems and returns all issues found.
// An empty slice means the config is usable.
func Validate(cfg *Config) []Issue {
	var issues []Issue

	if cfg.Backend.URL == "" {
		issues = append(issues, Issue{Path: "backend.url", Message: "backend URL is required"})
	} else if u, err := url.Parse(cfg.Backend.URL); err != nil || u.Scheme == "" || u.Host == "" {
		issues = append(issues, Issue{Path: "backend.url", Message: "backend URL must be absolute"})
	}

	if cfg.Backend.Scope == "" {
		issues = append(issues, Issue{Path: "backend.scope", Message: "backend scope is required"})
	}

	if !strings.HasPrefix(cfg.Backend.HealthPath, "/") {
		issues = append(issues, Issue{Path: "backend.healthPath", Message: "health path must start with /"})
	}

	if cfg.Reconnect.BackoffFactor < 1 {
		issues = append(issues, Issue{Path: "reconnect.backoffFactor", Message: "backoff factor must be >= 1"})
	}
	if cfg.Reconnect.MaxDelayMs < cfg.Reconnect.BaseDelayMs {
		issues = append(issues, Issue{Path: "reconnect.maxDelayMs", Message: "max delay must be >= base delay"})
	}
	if cfg.Reconnect.MaxAttempts < 1 {
		issues = append(issues, Issue{Path: "reconnect.maxAttempts", Message: "max attempts must be >= 1"})
	}

	switch cfg.Session.Store {
	case "sqlite", "memory":
	default:
		issues = append(issues, Issue{Path: "session.store", Message: "store must be sqlite or memory"})
	}

	return issues
}
