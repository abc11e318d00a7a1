// internal/config/config.go
package config

import (
	"fmt"
	"os"
	"time"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// Config holds the entire application configuration.
type Config struct {
	Logger    LoggerConfig    `mapstructure:"logger" yaml:"logger"`
	Server    ServerConfig    `mapstructure:"server" yaml:"server"`
	Browser   BrowserConfig   `mapstructure:"browser" yaml:"browser"`
	Target    TargetConfig    `mapstructure:"target" yaml:"target"`
	Upstream  UpstreamConfig  `mapstructure:"upstream" yaml:"upstream"`
	Solver    SolverConfig    `mapstructure:"solver" yaml:"solver"`
	Challenge ChallengeConfig `mapstructure:"challenge" yaml:"challenge"`
}

// LoggerConfig controls the zap logger and its file rotation.
type LoggerConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Format      string `mapstructure:"format" yaml:"format"`
	AddSource   bool   `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int    `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int    `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool   `mapstructure:"compress" yaml:"compress"`
}

// ServerConfig configures the inbound HTTP entry point.
type ServerConfig struct {
	Host         string        `mapstructure:"host" yaml:"host"`
	Port         int           `mapstructure:"port" yaml:"port"`
	Debug        bool          `mapstructure:"debug" yaml:"debug"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	// RequestTimeout is the hard ceiling for one proxied chat request,
	// covering header acquisition, the upstream call and any challenge cycles.
	RequestTimeout time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`
}

// BrowserConfig configures the shared headless browser process.
type BrowserConfig struct {
	Headless bool     `mapstructure:"headless" yaml:"headless"`
	Args     []string `mapstructure:"args" yaml:"args"`
	// Freshness is the idle window, measured from last use across any
	// request, after which the shared process is torn down.
	Freshness time.Duration `mapstructure:"freshness" yaml:"freshness"`
	// NavigationTimeout bounds every page navigation.
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	// InputWaitTimeout bounds the wait for an interactable chat input.
	InputWaitTimeout time.Duration `mapstructure:"input_wait_timeout" yaml:"input_wait_timeout"`
	// HeaderWaitTimeout bounds the wait for a fresh captured header set after
	// a refresh has been provoked.
	HeaderWaitTimeout time.Duration `mapstructure:"header_wait_timeout" yaml:"header_wait_timeout"`
}

// TargetConfig describes the browser-only chat surface being proxied.
type TargetConfig struct {
	// Origin is the site root visited first to establish cookies and
	// client-side preference flags.
	Origin string `mapstructure:"origin" yaml:"origin"`
	// ChatURL is the chat entry point the acquirer navigates to.
	ChatURL string `mapstructure:"chat_url" yaml:"chat_url"`
	// APIEndpoint is the internal chat call whose headers are captured and
	// replayed; outgoing requests matching this prefix feed the header
	// observer.
	APIEndpoint string `mapstructure:"api_endpoint" yaml:"api_endpoint"`
}

// UpstreamConfig configures the out-of-browser replay of the chat call.
type UpstreamConfig struct {
	DefaultModel string `mapstructure:"default_model" yaml:"default_model"`
	// Timeout bounds the streamed chat call end to end.
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// SolverConfig configures the vision model used to solve image challenges.
type SolverConfig struct {
	APIKey  string        `mapstructure:"api_key" yaml:"api_key"`
	Model   string        `mapstructure:"model" yaml:"model"`
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
	// RatePerMinute throttles calls to the vision endpoint across all
	// concurrent requests.
	RatePerMinute int `mapstructure:"rate_per_minute" yaml:"rate_per_minute"`
}

// ChallengeConfig holds the fixed screen geometry and pacing of the
// verification puzzle, plus the retry budget.
type ChallengeConfig struct {
	MaxAttempts int `mapstructure:"max_attempts" yaml:"max_attempts"`
	// Grid geometry: top-left corner of the 3x3 grid, distance between cell
	// origins, and the intra-cell centering offset.
	GridOriginX float64 `mapstructure:"grid_origin_x" yaml:"grid_origin_x"`
	GridOriginY float64 `mapstructure:"grid_origin_y" yaml:"grid_origin_y"`
	CellPitch   float64 `mapstructure:"cell_pitch" yaml:"cell_pitch"`
	CellOffset  float64 `mapstructure:"cell_offset" yaml:"cell_offset"`
	SubmitX     float64 `mapstructure:"submit_x" yaml:"submit_x"`
	SubmitY     float64 `mapstructure:"submit_y" yaml:"submit_y"`
	// ClickSettle elapses after every cell click, SubmitSettle after the
	// submit click, RetrySettle before headers are refreshed for the resend.
	ClickSettle  time.Duration `mapstructure:"click_settle" yaml:"click_settle"`
	SubmitSettle time.Duration `mapstructure:"submit_settle" yaml:"submit_settle"`
	RetrySettle  time.Duration `mapstructure:"retry_settle" yaml:"retry_settle"`
}

// SetDefaults initializes default values for all configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "chatrelay")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	// -- Server --
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.debug", false)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "5m")
	v.SetDefault("server.request_timeout", "4m")

	// -- Browser --
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.freshness", "10m")
	v.SetDefault("browser.navigation_timeout", "45s")
	v.SetDefault("browser.input_wait_timeout", "20s")
	v.SetDefault("browser.header_wait_timeout", "15s")

	// -- Target --
	v.SetDefault("target.origin", "https://duckduckgo.com/")
	v.SetDefault("target.chat_url", "https://duckduckgo.com/?q=DuckDuckGo+AI+Chat&ia=chat&duckai=1")
	v.SetDefault("target.api_endpoint", "https://duckduckgo.com/duckchat/v1/chat")

	// -- Upstream --
	v.SetDefault("upstream.default_model", "gpt-4o-mini")
	v.SetDefault("upstream.timeout", "3m")

	// -- Solver --
	v.SetDefault("solver.model", "gemini-2.5-flash")
	v.SetDefault("solver.timeout", "10s")
	v.SetDefault("solver.rate_per_minute", 30)

	// -- Challenge --
	v.SetDefault("challenge.max_attempts", 3)
	v.SetDefault("challenge.grid_origin_x", 349)
	v.SetDefault("challenge.grid_origin_y", 250)
	v.SetDefault("challenge.cell_pitch", 107)
	v.SetDefault("challenge.cell_offset", 53)
	v.SetDefault("challenge.submit_x", 660)
	v.SetDefault("challenge.submit_y", 610)
	v.SetDefault("challenge.click_settle", "600ms")
	v.SetDefault("challenge.submit_settle", "3s")
	v.SetDefault("challenge.retry_settle", "2s")
}

// NewDefaultConfig returns a configuration populated with defaults only.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// Defaults are compiled in; failure here is a programming error.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// NewConfigFromViper builds and validates a configuration from a viper
// instance that has already read its file and environment.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	// The vision credential is secret material and comes from the
	// environment, never the config file.
	v.BindEnv("solver.api_key", "CHATRELAY_SOLVER_API_KEY", "GEMINI_API_KEY")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if cfg.Solver.APIKey == "" {
		if key := os.Getenv("CHATRELAY_SOLVER_API_KEY"); key != "" {
			cfg.Solver.APIKey = key
		} else {
			cfg.Solver.APIKey = os.Getenv("GEMINI_API_KEY")
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// ExpandPath resolves a leading ~ in a user-supplied path.
func ExpandPath(path string) (string, error) {
	return homedir.Expand(path)
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be in (0, 65535]")
	}
	if c.Target.APIEndpoint == "" {
		return fmt.Errorf("target.api_endpoint is required")
	}
	if c.Target.ChatURL == "" {
		return fmt.Errorf("target.chat_url is required")
	}
	if c.Challenge.MaxAttempts <= 0 {
		return fmt.Errorf("challenge.max_attempts must be a positive integer")
	}
	if c.Challenge.CellPitch <= 0 {
		return fmt.Errorf("challenge.cell_pitch must be positive")
	}
	if c.Browser.Freshness <= 0 {
		return fmt.Errorf("browser.freshness must be a positive duration")
	}
	if c.Browser.HeaderWaitTimeout <= 0 {
		return fmt.Errorf("browser.header_wait_timeout must be a positive duration")
	}
	if c.Solver.Timeout <= 0 {
		return fmt.Errorf("solver.timeout must be a positive duration")
	}
	return nil
}
