package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds the entire application configuration. It is produced by Load
// and treated as read-only afterwards; components receive the sub-struct they
// care about, not the whole thing.
type Config struct {
	Logger      LoggerConfig      `mapstructure:"logger" yaml:"logger"`
	Database    DatabaseConfig    `mapstructure:"database" yaml:"database"`
	Advisor     AdvisorConfig     `mapstructure:"advisor" yaml:"advisor"`
	Browser     BrowserConfig     `mapstructure:"browser" yaml:"browser"`
	Exploration ExplorationConfig `mapstructure:"exploration" yaml:"exploration"`
	LoopGuard   LoopGuardConfig   `mapstructure:"loop_guard" yaml:"loop_guard"`
	PageBudget  PageBudgetConfig  `mapstructure:"page_budget" yaml:"page_budget"`
	Findings    FindingsConfig    `mapstructure:"findings" yaml:"findings"`
	Store       StoreConfig       `mapstructure:"store" yaml:"store"`
	Report      ReportConfig      `mapstructure:"report" yaml:"report"`
}

// LoggerConfig controls the zap logger bootstrap.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color codes for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// DatabaseConfig holds the PostgreSQL connection details. An empty URL means
// findings and session checkpoints fall back to file-based storage.
type DatabaseConfig struct {
	URL string `mapstructure:"url" yaml:"url"`
}

// BreakerConfig tunes the per-backend circuit breaker.
type BreakerConfig struct {
	// Disabled bypasses the breaker entirely; the first configured backend
	// is always used.
	Disabled         bool          `mapstructure:"disabled" yaml:"disabled"`
	FailureThreshold int           `mapstructure:"failure_threshold" yaml:"failure_threshold"`
	SuccessThreshold int           `mapstructure:"success_threshold" yaml:"success_threshold"`
	ResetTimeout     time.Duration `mapstructure:"reset_timeout" yaml:"reset_timeout"`
}

// RateLimitConfig bounds the call rate into the advisor pool.
type RateLimitConfig struct {
	RequestsPerSecond float64 `mapstructure:"requests_per_second" yaml:"requests_per_second"`
	Burst             int     `mapstructure:"burst" yaml:"burst"`
}

// BackendConfig holds per-provider credentials and model selection. API keys
// are expected from the environment (EXPLORER_ADVISOR_<PROVIDER>_API_KEY),
// never from the config file.
type BackendConfig struct {
	APIKey  string `mapstructure:"api_key" yaml:"-"`
	Model   string `mapstructure:"model" yaml:"model"`
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`
}

// AdvisorConfig configures the decision gateway and its backends.
type AdvisorConfig struct {
	// Priority is the ordered list of backend names to try. Recognized
	// names: gemini, openai, anthropic.
	Priority       []string        `mapstructure:"priority" yaml:"priority"`
	RequestTimeout time.Duration   `mapstructure:"request_timeout" yaml:"request_timeout"`
	Breaker        BreakerConfig   `mapstructure:"breaker" yaml:"breaker"`
	RateLimit      RateLimitConfig `mapstructure:"rate_limit" yaml:"rate_limit"`
	Gemini         BackendConfig   `mapstructure:"gemini" yaml:"gemini"`
	OpenAI         BackendConfig   `mapstructure:"openai" yaml:"openai"`
	Anthropic      BackendConfig   `mapstructure:"anthropic" yaml:"anthropic"`
}

// BrowserConfig holds settings for the headless browser instance.
type BrowserConfig struct {
	Headless          bool          `mapstructure:"headless" yaml:"headless"`
	IgnoreTLSErrors   bool          `mapstructure:"ignore_tls_errors" yaml:"ignore_tls_errors"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	ActionTimeout     time.Duration `mapstructure:"action_timeout" yaml:"action_timeout"`
	UserAgent         string        `mapstructure:"user_agent" yaml:"user_agent"`
	Args              []string      `mapstructure:"args" yaml:"args"`
	MaxElements       int           `mapstructure:"max_elements" yaml:"max_elements"`
	MaxVisibleText    int           `mapstructure:"max_visible_text" yaml:"max_visible_text"`
}

// ExplorationConfig bounds a whole session.
type ExplorationConfig struct {
	TargetURL          string        `mapstructure:"target_url" yaml:"target_url"`
	Goal               string        `mapstructure:"goal" yaml:"goal"`
	MaxSteps           int           `mapstructure:"max_steps" yaml:"max_steps"`
	MaxDuration        time.Duration `mapstructure:"max_duration" yaml:"max_duration"`
	CheckpointInterval int           `mapstructure:"checkpoint_interval" yaml:"checkpoint_interval"`
	Personas           []string      `mapstructure:"personas" yaml:"personas"`
}

// LoopGuardConfig tunes repetition detection.
type LoopGuardConfig struct {
	ToolWindowSize      int `mapstructure:"tool_window_size" yaml:"tool_window_size"`
	ActionWindowSize    int `mapstructure:"action_window_size" yaml:"action_window_size"`
	ToolLoopThreshold   int `mapstructure:"tool_loop_threshold" yaml:"tool_loop_threshold"`
	ActionLoopThreshold int `mapstructure:"action_loop_threshold" yaml:"action_loop_threshold"`
}

// PageBudgetConfig is the static half of the page exit-criteria evaluation.
type PageBudgetConfig struct {
	MaxTimePerPage         time.Duration `mapstructure:"max_time_per_page" yaml:"max_time_per_page"`
	MaxActionsPerPage      int           `mapstructure:"max_actions_per_page" yaml:"max_actions_per_page"`
	ExitAfterBugsFound     int           `mapstructure:"exit_after_bugs_found" yaml:"exit_after_bugs_found"`
	MinElementInteractions int           `mapstructure:"min_element_interactions" yaml:"min_element_interactions"`
	RequiredTools          []string      `mapstructure:"required_tools" yaml:"required_tools"`
}

// FindingsConfig selects the finding sink. When the database URL is empty,
// findings are appended to File as JSON lines.
type FindingsConfig struct {
	File      string `mapstructure:"file" yaml:"file"`
	BatchSize int    `mapstructure:"batch_size" yaml:"batch_size"`
}

// StoreConfig selects the session checkpoint store. When the database URL is
// empty, sessions are written as JSON files under Dir.
type StoreConfig struct {
	Dir string `mapstructure:"dir" yaml:"dir"`
}

// ReportConfig controls terminal-result rendering.
type ReportConfig struct {
	Format    string `mapstructure:"format" yaml:"format"`
	OutputDir string `mapstructure:"output_dir" yaml:"output_dir"`
}

// SetDefaults initializes default values for all configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "explorer")
	v.SetDefault("logger.log_file", "explorer.log")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	// -- Advisor --
	v.SetDefault("advisor.priority", []string{"gemini", "openai", "anthropic"})
	v.SetDefault("advisor.request_timeout", "60s")
	v.SetDefault("advisor.breaker.disabled", false)
	v.SetDefault("advisor.breaker.failure_threshold", 5)
	v.SetDefault("advisor.breaker.success_threshold", 2)
	v.SetDefault("advisor.breaker.reset_timeout", "60s")
	v.SetDefault("advisor.rate_limit.requests_per_second", 1.0)
	v.SetDefault("advisor.rate_limit.burst", 3)
	v.SetDefault("advisor.gemini.model", "gemini-2.0-flash")
	v.SetDefault("advisor.gemini.base_url", "https://generativelanguage.googleapis.com/v1beta/models")
	v.SetDefault("advisor.openai.model", "gpt-4o-mini")
	v.SetDefault("advisor.anthropic.model", "claude-sonnet-4-20250514")

	// -- Browser --
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.ignore_tls_errors", false)
	v.SetDefault("browser.navigation_timeout", "90s")
	v.SetDefault("browser.action_timeout", "30s")
	v.SetDefault("browser.max_elements", 60)
	v.SetDefault("browser.max_visible_text", 4000)

	// -- Exploration --
	v.SetDefault("exploration.goal", "Find functional and usability defects")
	v.SetDefault("exploration.max_steps", 100)
	v.SetDefault("exploration.max_duration", "30m")
	v.SetDefault("exploration.checkpoint_interval", 10)
	v.SetDefault("exploration.personas", []string{"skeptic", "power_user"})

	// -- Loop guard --
	v.SetDefault("loop_guard.tool_window_size", 10)
	v.SetDefault("loop_guard.action_window_size", 10)
	v.SetDefault("loop_guard.tool_loop_threshold", 3)
	v.SetDefault("loop_guard.action_loop_threshold", 3)

	// -- Page budget --
	v.SetDefault("page_budget.max_time_per_page", "3m")
	v.SetDefault("page_budget.max_actions_per_page", 12)
	v.SetDefault("page_budget.exit_after_bugs_found", 3)
	v.SetDefault("page_budget.min_element_interactions", 4)
	v.SetDefault("page_budget.required_tools", []string{"check_console_errors", "find_broken_images"})

	// -- Findings / store / report --
	v.SetDefault("findings.file", "findings.jsonl")
	v.SetDefault("findings.batch_size", 20)
	v.SetDefault("store.dir", ".explorer/sessions")
	v.SetDefault("report.format", "markdown")
	v.SetDefault("report.output_dir", "reports")
}

// Load unmarshals the viper state into a validated Config. Callers are
// expected to have applied SetDefaults and any file/env/flag sources first.
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// NewDefault returns a Config populated purely from defaults. Used by tests
// and as the base state before flag binding.
func NewDefault() *Config {
	v := viper.New()
	SetDefaults(v)
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// Defaults are static; failure here is a programming error.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if len(c.Advisor.Priority) == 0 {
		return fmt.Errorf("advisor.priority must name at least one backend")
	}
	for _, name := range c.Advisor.Priority {
		switch name {
		case "gemini", "openai", "anthropic":
		default:
			return fmt.Errorf("advisor.priority contains unknown backend %q", name)
		}
	}
	if !c.Advisor.Breaker.Disabled {
		if c.Advisor.Breaker.FailureThreshold <= 0 {
			return fmt.Errorf("advisor.breaker.failure_threshold must be a positive integer")
		}
		if c.Advisor.Breaker.SuccessThreshold <= 0 {
			return fmt.Errorf("advisor.breaker.success_threshold must be a positive integer")
		}
		if c.Advisor.Breaker.ResetTimeout <= 0 {
			return fmt.Errorf("advisor.breaker.reset_timeout must be positive")
		}
	}
	if c.Exploration.MaxSteps <= 0 {
		return fmt.Errorf("exploration.max_steps must be a positive integer")
	}
	if c.Exploration.CheckpointInterval <= 0 {
		return fmt.Errorf("exploration.checkpoint_interval must be a positive integer")
	}
	if c.LoopGuard.ToolLoopThreshold < 2 || c.LoopGuard.ActionLoopThreshold < 2 {
		return fmt.Errorf("loop_guard thresholds must be at least 2")
	}
	if c.LoopGuard.ToolWindowSize <= 0 || c.LoopGuard.ActionWindowSize <= 0 {
		return fmt.Errorf("loop_guard window sizes must be positive")
	}
	if c.PageBudget.MaxActionsPerPage <= 0 {
		return fmt.Errorf("page_budget.max_actions_per_page must be a positive integer")
	}
	switch c.Report.Format {
	case "json", "markdown":
	default:
		return fmt.Errorf("report.format must be json or markdown, got %q", c.Report.Format)
	}
	return nil
}
