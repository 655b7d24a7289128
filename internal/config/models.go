package config

import "time"

// Config represents the application configuration
type Config struct {
	LogLevel        string               `json:"log_level" yaml:"log_level"`
	ServerPort      int                  `json:"server_port" yaml:"server_port"`
	Workspace       WorkspaceConfig      `json:"workspace" yaml:"workspace"`
	Displays        DisplayConfig        `json:"displays" yaml:"displays"`
	VirtualDesktops VirtualDesktopConfig `json:"virtual_desktops" yaml:"virtual_desktops"`
}

// WorkspaceConfig tunes the window tracking loops
type WorkspaceConfig struct {
	// WatchInterval is the period of the coarse dirty-check
	WatchInterval time.Duration `json:"watch_interval" yaml:"watch_interval"`
	// RecentWindowDuration is how long a freshly created, still invisible
	// window keeps being rechecked
	RecentWindowDuration time.Duration `json:"recent_window_duration" yaml:"recent_window_duration"`
	// RecentTick is the period of the recent-window recheck
	RecentTick time.Duration `json:"recent_tick" yaml:"recent_tick"`
	// JoinTimeout bounds how long Dispose waits for each worker
	JoinTimeout time.Duration `json:"join_timeout" yaml:"join_timeout"`
	// MaximizeTolerance is the edge tolerance in pixels used when a restored
	// window covering a whole display is reported as maximized
	MaximizeTolerance int `json:"maximize_tolerance" yaml:"maximize_tolerance"`
	// SlowTaskThreshold is the duration above which a bookkeeping step is logged
	SlowTaskThreshold time.Duration `json:"slow_task_threshold" yaml:"slow_task_threshold"`
}

// DisplayConfig bounds monitor re-enumeration
type DisplayConfig struct {
	// EmptyRetries is how often a zero-monitor enumeration is retried
	EmptyRetries int           `json:"empty_retries" yaml:"empty_retries"`
	EmptyBackoff time.Duration `json:"empty_backoff" yaml:"empty_backoff"`
}

// VirtualDesktopConfig controls the virtual desktop backend
type VirtualDesktopConfig struct {
	RetryAttempts int           `json:"retry_attempts" yaml:"retry_attempts"`
	RetryBackoff  time.Duration `json:"retry_backoff" yaml:"retry_backoff"`
	// Builds maps Windows builds to COM interface layouts. Entries are
	// evaluated in order, first match wins.
	Builds []BuildRule `json:"builds" yaml:"builds"`
}

// BuildRule selects a COM layout for builds at or above MinBuild whose update
// build revision is at least MinUBR
type BuildRule struct {
	MinBuild int    `json:"min_build" yaml:"min_build"`
	MinUBR   int    `json:"min_ubr,omitempty" yaml:"min_ubr,omitempty"`
	Layout   string `json:"layout" yaml:"layout"`
}

// Layout names understood by the virtual desktop backend
const (
	Layout17661      = "17661"
	Layout21H2       = "21h2"
	Layout22621R2215 = "22621r2215"
	Layout22631R3085 = "22631r3085"
)

// Minimum Windows build exposing the virtual desktop service
const MinVirtualDesktopBuild = 17661

// DefaultBuildRules is the dispatch table known to work at release time
func DefaultBuildRules() []BuildRule {
	return []BuildRule{
		{MinBuild: 26100, Layout: Layout22631R3085},
		{MinBuild: 22631, MinUBR: 3085, Layout: Layout22631R3085},
		{MinBuild: 22449, MinUBR: 3296, Layout: Layout22631R3085},
		{MinBuild: 22449, MinUBR: 2215, Layout: Layout22621R2215},
		{MinBuild: 22449, Layout: Layout21H2},
		{MinBuild: 22000, Layout: Layout21H2},
		{MinBuild: MinVirtualDesktopBuild, Layout: Layout17661},
	}
}

// Defaults returns the default configuration
func Defaults() *Config {
	return &Config{
		LogLevel:   "info",
		ServerPort: 8080,
		Workspace: WorkspaceConfig{
			WatchInterval:        200 * time.Millisecond,
			RecentWindowDuration: 500 * time.Millisecond,
			RecentTick:           10 * time.Millisecond,
			JoinTimeout:          time.Second,
			MaximizeTolerance:    2,
			SlowTaskThreshold:    15 * time.Millisecond,
		},
		Displays: DisplayConfig{
			EmptyRetries: 5,
			EmptyBackoff: 100 * time.Millisecond,
		},
		VirtualDesktops: VirtualDesktopConfig{
			RetryAttempts: 10,
			RetryBackoff:  500 * time.Millisecond,
			Builds:        DefaultBuildRules(),
		},
	}
}

// normalize fills zero values left by a partial config file
func (c *Config) normalize() {
	d := Defaults()
	if c.LogLevel == "" {
		c.LogLevel = d.LogLevel
	}
	if c.ServerPort == 0 {
		c.ServerPort = d.ServerPort
	}
	if c.Workspace.WatchInterval <= 0 {
		c.Workspace.WatchInterval = d.Workspace.WatchInterval
	}
	if c.Workspace.RecentWindowDuration <= 0 {
		c.Workspace.RecentWindowDuration = d.Workspace.RecentWindowDuration
	}
	if c.Workspace.RecentTick <= 0 {
		c.Workspace.RecentTick = d.Workspace.RecentTick
	}
	if c.Workspace.JoinTimeout <= 0 {
		c.Workspace.JoinTimeout = d.Workspace.JoinTimeout
	}
	if c.Workspace.MaximizeTolerance < 0 {
		c.Workspace.MaximizeTolerance = d.Workspace.MaximizeTolerance
	}
	if c.Workspace.SlowTaskThreshold <= 0 {
		c.Workspace.SlowTaskThreshold = d.Workspace.SlowTaskThreshold
	}
	if c.Displays.EmptyRetries < 0 {
		c.Displays.EmptyRetries = d.Displays.EmptyRetries
	}
	if c.Displays.EmptyBackoff <= 0 {
		c.Displays.EmptyBackoff = d.Displays.EmptyBackoff
	}
	if c.VirtualDesktops.RetryAttempts <= 0 {
		c.VirtualDesktops.RetryAttempts = d.VirtualDesktops.RetryAttempts
	}
	if c.VirtualDesktops.RetryBackoff <= 0 {
		c.VirtualDesktops.RetryBackoff = d.VirtualDesktops.RetryBackoff
	}
	if len(c.VirtualDesktops.Builds) == 0 {
		c.VirtualDesktops.Builds = d.VirtualDesktops.Builds
	}
}
