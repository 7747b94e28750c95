package config

// Config is the root configuration for the Taskwire realtime layer.
type Config struct {
	Backend   BackendConfig   `yaml:"backend,omitempty"`
	Reconnect ReconnectConfig `yaml:"reconnect,omitempty"`
	Probe     ProbeConfig     `yaml:"probe,omitempty"`
	Session   SessionConfig   `yaml:"session,omitempty"`
	Logging   LoggingConfig   `yaml:"logging,omitempty"`
	Hooks     HooksConfig     `yaml:"hooks,omitempty"`
}

// BackendConfig identifies the remote realtime backend.
type BackendConfig struct {
	URL        string `yaml:"url"`                  // base URL, e.g. https://abc.example.co
	Scope      string `yaml:"scope"`                // backend scope identifier embedded in credential keys
	HealthPath string `yaml:"healthPath,omitempty"` // liveness path, auth-independent
	APIKey     string `yaml:"apiKey,omitempty"`     // supports ${ENV_VAR} references
}

// ReconnectConfig tunes the supervisor's backoff policy. Values are fixed
// at startup; attempt counts and delays are derived deterministically.
type ReconnectConfig struct {
	BaseDelayMs   int     `yaml:"baseDelayMs,omitempty"`
	BackoffFactor float64 `yaml:"backoffFactor,omitempty"`
	MaxDelayMs    int     `yaml:"maxDelayMs,omitempty"`
	MaxAttempts   int     `yaml:"maxAttempts,omitempty"`
}

// ProbeConfig tunes the periodic health check.
type ProbeConfig struct {
	IntervalSeconds int `yaml:"intervalSeconds,omitempty"`
	TimeoutSeconds  int `yaml:"timeoutSeconds,omitempty"`
}

// SessionConfig controls credential persistence.
type SessionConfig struct {
	Store string `yaml:"store,omitempty"` // "sqlite" | "memory"
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level        string `yaml:"level,omitempty"`        // "silent" | "fatal" | "error" | "warn" | "info" | "debug" | "trace"
	ConsoleStyle string `yaml:"consoleStyle,omitempty"` // "pretty" | "json"
}

// HooksConfig defines lifecycle hook commands.
type HooksConfig struct {
	ConnectionEstablished []HookEntry `yaml:"connectionEstablished,omitempty"`
	ConnectionLost        []HookEntry `yaml:"connectionLost,omitempty"`
	ConnectionRestored    []HookEntry `yaml:"connectionRestored,omitempty"`
}

// HookEntry defines a single hook action.
type HookEntry struct {
	Command string `yaml:"command"`
	Timeout int    `yaml:"timeout,omitempty"` // milliseconds
}
