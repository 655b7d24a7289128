package commands

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/bryanchriswhite/winman/internal/config"
	"github.com/bryanchriswhite/winman/internal/logger"
	"github.com/bryanchriswhite/winman/internal/platform"
	"github.com/bryanchriswhite/winman/internal/workspace"
)

var (
	cfgFile string
	rootCmd = &cobra.Command{
		Use:   "winman",
		Short: "winman - desktop window tracking",
		Long: `winman tracks the top-level windows, displays and virtual desktops of the
running desktop session and keeps an up-to-date model of them.

The model can be inspected from the command line, streamed as events, or
served over a REST and websocket API.`,
		SilenceUsage: true,
	}
)

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/winman/config.yaml)")
	rootCmd.PersistentFlags().Int("port", 0, "server port (default is 8080)")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Duration("watch-interval", 0, "period of the window dirty-check (default is 200ms)")

	// Bind flags to viper
	viper.BindPFlag("server_port", rootCmd.PersistentFlags().Lookup("port"))
	viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("workspace.watch_interval", rootCmd.PersistentFlags().Lookup("watch-interval"))
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// GetConfigFile returns the config file path
func GetConfigFile() string {
	return cfgFile
}

// loadConfig reads the config file and applies flag overrides in memory.
// The file itself is only rewritten by the config subcommands.
func loadConfig() (*config.Manager, *config.Config, error) {
	configMgr, err := config.NewManager(GetConfigFile())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	cfg := configMgr.Get()
	if port := viper.GetInt("server_port"); viper.IsSet("server_port") && port > 0 {
		cfg.ServerPort = port
	}
	if level := viper.GetString("log_level"); viper.IsSet("log_level") && level != "" {
		cfg.LogLevel = level
	}
	if d := viper.GetDuration("workspace.watch_interval"); viper.IsSet("workspace.watch_interval") && d > 0 {
		cfg.Workspace.WatchInterval = d
	}

	logger.Init(cfg.LogLevel, true)
	return configMgr, cfg, nil
}

// session is an open workspace on the platform binding.
type session struct {
	ws    *workspace.Workspace
	close func()
}

func openSession(cfg *config.Config) (*session, error) {
	sys, err := platform.Open()
	if err != nil {
		return nil, err
	}
	ws := workspace.New(sys, *cfg)
	if err := ws.Open(); err != nil {
		platform.Close(sys)
		return nil, fmt.Errorf("failed to open workspace: %w", err)
	}
	return &session{
		ws: ws,
		close: func() {
			ws.Dispose()
			platform.Close(sys)
		},
	}, nil
}

// settle waits for the initial window scan to be processed.
func (s *session) settle() {
	s.ws.Sync()
	// The pump delivers the first foreground and desktop state asynchronously.
	time.Sleep(50 * time.Millisecond)
	s.ws.Sync()
}
