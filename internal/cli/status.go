package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/taskwire/taskwire/internal/config"
	"github.com/taskwire/taskwire/internal/token"
	"github.com/taskwire/taskwire/internal/version"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show Taskwire configuration summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Printf("Taskwire %s (commit %s)\n\n", version.Version, version.Commit)

			fmt.Printf("Config:      %s\n", paths.Config)
			fmt.Printf("Credentials: %s\n", paths.Credentials)
			fmt.Println()

			cfg, err := config.Load(paths.Config)
			if err != nil {
				if os.IsNotExist(err) {
					fmt.Println("Config: not found (using defaults)")
					return nil
				}
				fmt.Printf("Config: error loading: %v\n", err)
				return nil
			}

			fmt.Printf("Backend:   url=%s scope=%s health=%s\n",
				cfg.Backend.URL, cfg.Backend.Scope, cfg.Backend.HealthPath)
			fmt.Printf("Reconnect: base=%dms factor=%.1f max=%dms attempts=%d\n",
				cfg.Reconnect.BaseDelayMs, cfg.Reconnect.BackoffFactor,
				cfg.Reconnect.MaxDelayMs, cfg.Reconnect.MaxAttempts)
			fmt.Printf("Probe:     interval=%ds timeout=%ds\n",
				cfg.Probe.IntervalSeconds, cfg.Probe.TimeoutSeconds)

			if issues := config.Validate(&cfg); len(issues) > 0 {
				fmt.Println()
				for _, issue := range issues {
					fmt.Printf("issue: %s: %s\n", issue.Path, issue.Message)
				}
			}

			// Report whether a session credential is persisted, without
			// printing it.
			if durable, err := token.OpenSQLite(paths.Credentials); err == nil {
				store := token.NewStore(durable, token.NewMemoryBackend(), cfg.Backend.Scope, log)
				if _, ok := store.LoadToken(); ok {
					fmt.Println("Session:   credential stored")
				} else {
					fmt.Println("Session:   no stored credential")
				}
				durable.Close()
			}

			return nil
		},
	}
}
