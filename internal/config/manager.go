package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/bryanchriswhite/winman/internal/logger"
	"gopkg.in/yaml.v3"
)

// Manager handles configuration
type Manager struct {
	configPath string
	config     *Config
	mu         sync.RWMutex
}

// DefaultPath returns $HOME/.config/winman/config.yaml
func DefaultPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, ".config", "winman", "config.yaml"), nil
}

// NewManager creates a new configuration manager. An empty configFile selects
// the default path. A missing file is created with defaults.
func NewManager(configFile string) (*Manager, error) {
	actualConfigPath := configFile
	if actualConfigPath == "" {
		p, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		actualConfigPath = p
	}

	m := &Manager{
		configPath: actualConfigPath,
	}

	if err := m.load(); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		logger.WithComponent("config").Info().
			Str("path", m.configPath).
			Msg("Config file not found, creating new config")
		m.config = Defaults()
		if err := m.Save(); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
	}

	logger.WithComponent("config").Info().
		Str("path", m.configPath).
		Dur("watch_interval", m.config.Workspace.WatchInterval).
		Int("build_rules", len(m.config.VirtualDesktops.Builds)).
		Msg("Config loaded")

	return m, nil
}

// NewMemoryManager returns a manager that never touches disk
func NewMemoryManager(cfg *Config) *Manager {
	if cfg == nil {
		cfg = Defaults()
	}
	c := *cfg
	c.normalize()
	return &Manager{config: &c}
}

// load reads the configuration from disk
func (m *Manager) load() error {
	data, err := os.ReadFile(m.configPath)
	if err != nil {
		return err
	}

	// Keys absent from the file keep their default values
	cfg := *Defaults()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.normalize()

	m.mu.Lock()
	m.config = &cfg
	m.mu.Unlock()
	return nil
}

// Get returns a copy of the current configuration
func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.config == nil {
		return Defaults()
	}

	cfg := *m.config
	cfg.VirtualDesktops.Builds = append([]BuildRule(nil), m.config.VirtualDesktops.Builds...)
	return &cfg
}

// Save saves the current configuration to disk. Memory managers skip the write.
func (m *Manager) Save() error {
	if m.configPath == "" {
		return nil
	}

	cfg := m.Get()

	configDir := filepath.Dir(m.configPath)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		logger.WithComponent("config").Error().
			Err(err).
			Str("config_dir", configDir).
			Msg("Failed to create config directory")
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(m.configPath, data, 0644); err != nil {
		logger.WithComponent("config").Error().
			Err(err).
			Str("path", m.configPath).
			Msg("Failed to write config")
		return err
	}

	logger.WithComponent("config").Debug().
		Str("path", m.configPath).
		Msg("Config saved")
	return nil
}

// Update replaces the entire configuration
func (m *Manager) Update(cfg *Config) error {
	c := *cfg
	c.normalize()
	m.mu.Lock()
	m.config = &c
	m.mu.Unlock()
	return m.Save()
}

// SetPort sets the server port
func (m *Manager) SetPort(port int) error {
	m.mu.Lock()
	m.config.ServerPort = port
	m.mu.Unlock()
	return m.Save()
}

// SetLogLevel sets the log level
func (m *Manager) SetLogLevel(level string) error {
	m.mu.Lock()
	m.config.LogLevel = level
	m.mu.Unlock()
	return m.Save()
}

// SetWatchInterval sets the coarse dirty-check period
func (m *Manager) SetWatchInterval(d time.Duration) error {
	if d <= 0 {
		return fmt.Errorf("watch interval must be positive, got %s", d)
	}
	m.mu.Lock()
	m.config.Workspace.WatchInterval = d
	m.mu.Unlock()
	return m.Save()
}

// GetConfigPath returns the path to the config file
func (m *Manager) GetConfigPath() string {
	return m.configPath
}
