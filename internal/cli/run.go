package cli

import (
	"fmt"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/oauth2"

	"github.com/taskwire/taskwire/internal/config"
	"github.com/taskwire/taskwire/internal/domain"
	"github.com/taskwire/taskwire/internal/hooks"
	"github.com/taskwire/taskwire/internal/logging"
	"github.com/taskwire/taskwire/internal/realtime"
	"github.com/taskwire/taskwire/internal/token"
)

func newRunCmd() *cobra.Command {
	var (
		userID   string
		userName string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Connect to the realtime backend and stay connected",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(paths.Config)
			if err != nil {
				return err
			}

			issues := config.Validate(&cfg)
			if len(issues) > 0 {
				for _, issue := range issues {
					log.Error().Str("path", issue.Path).Msg(issue.Message)
				}
				return fmt.Errorf("config has %d issue(s)", len(issues))
			}

			if err := paths.EnsureDirs(); err != nil {
				return err
			}

			client, cleanup, err := buildClient(cfg, log)
			if err != nil {
				return err
			}
			defer cleanup()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			user := domain.PresenceRecord{
				UserID:      userID,
				DisplayName: userName,
				Status:      domain.PresenceOnline,
			}
			if err := client.Connect(ctx, user); err != nil {
				return fmt.Errorf("connecting: %w", err)
			}
			log.Info().Str("user", userID).Msg("connected")

			<-ctx.Done()
			log.Info().Msg("shutting down")
			client.Disconnect()
			return nil
		},
	}

	cmd.Flags().StringVar(&userID, "user-id", "", "local user ID announced in presence")
	cmd.Flags().StringVar(&userName, "user-name", "", "display name announced in presence")
	cmd.MarkFlagRequired("user-id")

	return cmd
}

// buildClient is the composition root: it constructs exactly one
// supervisor, registry, and monitor per process and wires them into the
// consumer facade.
func buildClient(cfg config.Config, log *logging.Logger) (*realtime.Client, func(), error) {
	durable, ephemeral, closeStores, err := openBackends(cfg, log)
	if err != nil {
		return nil, nil, err
	}

	store := token.NewStore(durable, ephemeral, cfg.Backend.Scope, log)
	store.PurgeForeign()

	tokens := store.TokenSource()
	if tokens == nil && cfg.Backend.APIKey != "" {
		tok := &oauth2.Token{AccessToken: cfg.Backend.APIKey}
		store.SaveToken(tok)
		tokens = oauth2.StaticTokenSource(tok)
	}

	probe := realtime.NewHTTPProbe(
		cfg.Backend.URL, cfg.Backend.HealthPath, tokens,
		time.Duration(cfg.Probe.TimeoutSeconds)*time.Second, log,
	)
	transport := realtime.NewWSTransport(wsURL(cfg.Backend.URL), tokens, log)

	policy := realtime.ReconnectPolicy{
		BaseDelay:     time.Duration(cfg.Reconnect.BaseDelayMs) * time.Millisecond,
		BackoffFactor: cfg.Reconnect.BackoffFactor,
		MaxDelay:      time.Duration(cfg.Reconnect.MaxDelayMs) * time.Millisecond,
		MaxAttempts:   cfg.Reconnect.MaxAttempts,
	}

	sup := realtime.NewSupervisor(transport, probe, policy,
		time.Duration(cfg.Probe.IntervalSeconds)*time.Second, log)
	reg := realtime.NewRegistry(transport, log)
	mon := realtime.NewMonitor(sup, log)

	hk := hooks.NewManager(log)
	hk.LoadConfig(cfg.Hooks)

	client := realtime.NewClient(sup, reg, mon, hk, log)
	return client, closeStores, nil
}

// openBackends builds the credential store backends per config.
func openBackends(cfg config.Config, log *logging.Logger) (token.Backend, token.Backend, func(), error) {
	ephemeral := token.NewMemoryBackend()

	if cfg.Session.Store == "memory" {
		return token.NewMemoryBackend(), ephemeral, func() {}, nil
	}

	durable, err := token.OpenSQLite(paths.Credentials)
	if err != nil {
		// Degrade to memory-only persistence rather than refusing to run.
		log.Warn().Err(err).Msg("credential database unavailable, session will not persist")
		return token.NewMemoryBackend(), ephemeral, func() {}, nil
	}
	return durable, ephemeral, func() { durable.Close() }, nil
}

// wsURL derives the realtime WebSocket endpoint from the backend base URL.
func wsURL(base string) string {
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	return strings.TrimSuffix(base, "/") + "/realtime"
}
