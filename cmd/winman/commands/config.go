package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/bryanchriswhite/winman/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage winman configuration",
	Long:  `View and manage winman configuration settings.`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long:  `Display the current winman configuration.`,
	Example: `  # Show configuration as YAML (default)
  winman config show

  # Show configuration as JSON
  winman config show --format json`,
	RunE: runConfigShow,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show configuration file path",
	Long:  `Display the path to the configuration file.`,
	RunE:  runConfigPath,
}

var configSetWatchIntervalCmd = &cobra.Command{
	Use:   "set-watch-interval DURATION",
	Short: "Set the window dirty-check period",
	Long: `Set how often the workspace re-checks window visibility and virtual
desktop membership. Takes effect the next time the workspace is opened.`,
	Example: `  winman config set-watch-interval 250ms`,
	Args:    cobra.ExactArgs(1),
	RunE:    runConfigSetWatchInterval,
}

var formatFlag string

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configPathCmd)
	configCmd.AddCommand(configSetWatchIntervalCmd)

	configShowCmd.Flags().StringVarP(&formatFlag, "format", "f", "yaml", "output format (yaml or json)")
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	configMgr, err := config.NewManager(GetConfigFile())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	cfg := configMgr.Get()

	switch formatFlag {
	case "json":
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(cfg)
	case "yaml":
		encoder := yaml.NewEncoder(os.Stdout)
		encoder.SetIndent(2)
		return encoder.Encode(cfg)
	default:
		return fmt.Errorf("unsupported format: %s (use 'yaml' or 'json')", formatFlag)
	}
}

func runConfigPath(cmd *cobra.Command, args []string) error {
	configMgr, err := config.NewManager(GetConfigFile())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	fmt.Println(configMgr.GetConfigPath())
	return nil
}

func runConfigSetWatchInterval(cmd *cobra.Command, args []string) error {
	d, err := time.ParseDuration(args[0])
	if err != nil {
		return fmt.Errorf("invalid duration: %s", args[0])
	}

	configMgr, err := config.NewManager(GetConfigFile())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := configMgr.SetWatchInterval(d); err != nil {
		return err
	}

	fmt.Printf("Configuration updated: workspace.watch_interval = %s\n", d)
	return nil
}
