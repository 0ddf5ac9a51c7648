package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"convwin/internal/config"
	"convwin/internal/gateway"
	"convwin/internal/gateway/handlers"
	"convwin/internal/gateway/websocket"
	"convwin/internal/provider"
	"convwin/internal/storage"
	"convwin/internal/window"
)

// NewServeCmd creates the serve command.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the convwin gateway server",
		Long: `Start the convwin gateway server.

The server exposes:
- POST /api/v1/window/summarize      run one cycle over a posted thread state
- GET  /api/v1/threads/{id}/summaries list journaled summary records
- GET  /ws                            live summary events per thread

Changes to the window section of the config file are applied without restart.`,
		Example: `  # Start server with default configuration
  convwin serve

  # Start server on another port with the offline summarizer
  convwin serve --port 9090 --summarizer static`,
		RunE: runServe,
	}

	cmd.Flags().IntP("port", "p", 0, "port to listen on (overrides config)")
	cmd.Flags().String("host", "", "host to bind to (overrides config)")
	cmd.Flags().StringP("summarizer", "s", "", "summarizer to use: llm or static (default from config)")

	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	cliCtx := GetCLIContext(cmd)
	if cliCtx == nil {
		return fmt.Errorf("CLI context not initialized")
	}

	cfg := cliCtx.Config
	log := cliCtx.Log()

	if port, _ := cmd.Flags().GetInt("port"); port > 0 {
		cfg.Gateway.Port = port
	}
	if host, _ := cmd.Flags().GetString("host"); host != "" {
		cfg.Gateway.Host = host
	}

	kind, _ := cmd.Flags().GetString("summarizer")
	if kind == "" {
		kind = cfg.Summarizer.Kind
	}
	sum, err := buildSummarizer(kind, cfg, log)
	if err != nil {
		return err
	}

	var db *storage.DB
	var journal window.Journal
	if cfg.Storage.Enabled {
		db, err = cliCtx.Journal()
		if err != nil {
			return fmt.Errorf("open journal: %w", err)
		}
		journal = db
		if version, err := db.SchemaVersion(); err == nil {
			log.Debug().Str("path", db.Path()).Int("schema", version).Msg("Journal opened")
		}
	}

	hub := websocket.NewHub()
	manager := window.New(windowConfig(cfg), sum,
		window.WithLogger(log),
		window.WithJournal(gateway.NewEventJournal(journal, hub)),
	)

	srv := gateway.NewServer(cfg, gateway.Options{
		Manager: manager,
		Hub:     hub,
		DB:      db,
		Checks:  backendChecks(kind),
		Version: Version,
	})

	// 配置文件存在时监听变化
	if _, statErr := os.Stat(cliCtx.ConfigPath); statErr == nil {
		if err := config.Watch(func(next *config.Config) {
			srv.ApplyWindowConfig(windowConfig(next))
		}); err != nil {
			log.Warn().Err(err).Msg("Config hot reload disabled")
		}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	log.Info().
		Str("address", "http://"+srv.Addr()).
		Str("summarizer", kind).
		Bool("journal", db != nil).
		Msg("Server started")

	select {
	case <-ctx.Done():
		log.Info().Msg("Shutting down server...")
	case err := <-errCh:
		if err != nil {
			log.Error().Err(err).Msg("Server error")
			return err
		}
		return nil
	}

	if err := srv.Shutdown(context.Background()); err != nil {
		log.Error().Err(err).Msg("Error during shutdown")
		return err
	}

	log.Info().Msg("Server stopped")
	return nil
}

// backendChecks returns health checks for registered summarizer backends.
func backendChecks(kind string) map[string]handlers.HealthCheck {
	if kind == SummarizerStatic {
		return nil
	}
	checks := make(map[string]handlers.HealthCheck)
	for _, name := range provider.List() {
		p, ok := provider.Get(name)
		if !ok {
			continue
		}
		if pg, ok := p.(provider.Pinger); ok {
			checks[name] = pg.Ping
		}
	}
	return checks
}
