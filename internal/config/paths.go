package config

import (
	"os"
	"path/filepath"
)

const defaultBaseDir = ".taskwire"

// Paths holds resolved filesystem paths for Taskwire data.
type Paths struct {
	Base        string // ~/.taskwire
	Config      string // ~/.taskwire/config.yaml
	Credentials string // ~/.taskwire/credentials.db
	Logs        string // ~/.taskwire/logs
}

// ResolvePaths computes all standard paths from the home directory.
// If TASKWIRE_HOME is set, it overrides the default base directory.
func ResolvePaths() (Paths, error) {
	base := os.Getenv("TASKWIRE_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return Paths{}, err
		}
		base = filepath.Join(home, defaultBaseDir)
	}

	return Paths{
		Base:        base,
		Config:      filepath.Join(base, "config.yaml"),
		Credentials: filepath.Join(base, "credentials.db"),
		Logs:        filepath.Join(base, "logs"),
	}, nil
}

// EnsureDirs creates all standard directories if they don't exist.
func (p Paths) EnsureDirs() error {
	for _, d := range []string{p.Base, p.Logs} {
		if err := os.MkdirAll(d, 0o700); err != nil {
			return err
		}
	}
	return nil
}
