package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/bryanchriswhite/winman/internal/api"
	"github.com/bryanchriswhite/winman/internal/logger"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the winman server",
	Long: `Start tracking windows and serve the model over HTTP.

The server provides a REST API for windows, displays and virtual desktops,
and a websocket event stream at /api/events.`,
	Example: `  # Start server on default port (8080)
  winman serve

  # Start server on custom port
  winman serve --port 9090

  # Start with a faster dirty-check and debug logging
  winman serve --watch-interval 100ms --log-level debug`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	configMgr, cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := logger.WithComponent("serve")
	log.Info().
		Str("config", configMgr.GetConfigPath()).
		Str("log_level", cfg.LogLevel).
		Dur("watch_interval", cfg.Workspace.WatchInterval).
		Msg("Configuration loaded")

	s, err := openSession(cfg)
	if err != nil {
		return err
	}
	defer s.close()

	s.ws.Events().UnhandledError.Subscribe(func(err error) {
		log.Error().Err(err).Msg("Workspace error")
	})

	server := api.NewServer(s.ws, configMgr)
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start(cfg.ServerPort)
	}()

	log.Info().
		Str("api", fmt.Sprintf("http://localhost:%d/api", cfg.ServerPort)).
		Msg("winman is running, press Ctrl+C to stop")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case sig := <-sigChan:
		log.Info().Str("signal", sig.String()).Msg("Shutting down gracefully")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(ctx)
}
