package internal

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

type Config struct {
	Server        ServerConfig        `mapstructure:"http_server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Redis         RedisConfig         `mapstructure:"redis"`
	Security      SecurityConfig      `mapstructure:"security"`
	Gateway       GatewayConfig       `mapstructure:"gateway"`
	Payout        PayoutConfig        `mapstructure:"payout"`
	RateLimit     RateLimitConfig     `mapstructure:"rate_limit"`
	RetrySweep    RetrySweepConfig    `mapstructure:"retry_sweep"`
	Observability ObservabilityConfig `mapstructure:"observability"`
}

type ServerConfig struct {
	Port              int           `mapstructure:"port"`
	BaseURL           string        `mapstructure:"base_url"`
	AllowedOrigins    string        `mapstructure:"allowed_origins"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout"`
	ReadTimeout       time.Duration `mapstructure:"read_timeout"`
	IdleTimeout       time.Duration `mapstructure:"idle_timeout"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"`
}

type DatabaseConfig struct {
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	Source          string        `mapstructure:"source"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type SecurityConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
}

// GatewayConfig configures the external payment gateway client. CallTimeout
// bounds every single gateway call so a stalled gateway cannot hang a request.
type GatewayConfig struct {
	BaseURL     string        `mapstructure:"base_url"`
	APIKey      string        `mapstructure:"api_key"`
	CallTimeout time.Duration `mapstructure:"call_timeout"`
}

type PayoutConfig struct {
	PlatformFeeRate float64 `mapstructure:"platform_fee_rate"`
	Currency        string  `mapstructure:"currency"`
}

type RateLimitConfig struct {
	MaxIntentsPerWindow int           `mapstructure:"max_intents_per_window"`
	Window              time.Duration `mapstructure:"window"`
}

type RetrySweepConfig struct {
	Interval    time.Duration `mapstructure:"interval"`
	BatchSize   int           `mapstructure:"batch_size"`
	MaxAttempts int           `mapstructure:"max_attempts"`
}

type ObservabilityConfig struct {
	Logging LoggingConfig `mapstructure:"logging"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// ----------------- VALIDATION -----------------

func (c *Config) Validate() error {
	var errs []string

	if err := c.Server.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("server config: %v", err))
	}

	if err := c.Database.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("database config: %v", err))
	}

	if err := c.Security.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("security config: %v", err))
	}

	if err := c.Gateway.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("gateway config: %v", err))
	}

	if err := c.Payout.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("payout config: %v", err))
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}

	return nil
}

func (c *ServerConfig) Validate() error {
	if c.AllowedOrigins != "" {
		origins := strings.Split(c.AllowedOrigins, ",")
		for _, origin := range origins {
			origin = strings.TrimSpace(origin)
			if origin == "*" {
				continue
			}
			if _, err := url.Parse(origin); err != nil {
				return fmt.Errorf("invalid allowed origin %s: %w", origin, err)
			}
		}
	}
	if c.ReadTimeout < c.ReadHeaderTimeout {
		return errors.New("read_timeout must be >= read_header_timeout")
	}
	return nil
}

func (c *DatabaseConfig) Validate() error {
	if c.MaxIdleConns > c.MaxOpenConns {
		return errors.New("max_idle_conns cannot be greater than max_open_conns")
	}
	return nil
}

func (c *DatabaseConfig) GetDSN() string {
	return c.Source
}

func (c *SecurityConfig) Validate() error {
	if len(c.JWTSecret) < 32 {
		return errors.New("jwt secret must be at least 32 characters")
	}
	return nil
}

func (c *GatewayConfig) Validate() error {
	if c.BaseURL == "" {
		return errors.New("base_url is required")
	}
	if c.APIKey == "" {
		return errors.New("api_key is required")
	}
	return nil
}

func (c *PayoutConfig) Validate() error {
	if c.PlatformFeeRate < 0 || c.PlatformFeeRate >= 1 {
		return errors.New("platform_fee_rate must be in [0, 1)")
	}
	return nil
}

// CallTimeoutOrDefault falls back to 10s when no timeout is configured.
func (c *GatewayConfig) CallTimeoutOrDefault() time.Duration {
	if c.CallTimeout <= 0 {
		return 10 * time.Second
	}
	return c.CallTimeout
}

func (c *PayoutConfig) FeeRateOrDefault() float64 {
	if c.PlatformFeeRate == 0 {
		return 0.10
	}
	return c.PlatformFeeRate
}

func (c *PayoutConfig) CurrencyOrDefault() string {
	if c.Currency == "" {
		return "usd"
	}
	return c.Currency
}

func (c *RateLimitConfig) LimitOrDefault() int {
	if c.MaxIntentsPerWindow <= 0 {
		return 10
	}
	return c.MaxIntentsPerWindow
}

func (c *RateLimitConfig) WindowOrDefault() time.Duration {
	if c.Window <= 0 {
		return time.Minute
	}
	return c.Window
}

func (c *RetrySweepConfig) IntervalOrDefault() time.Duration {
	if c.Interval <= 0 {
		return time.Minute
	}
	return c.Interval
}

func (c *RetrySweepConfig) BatchSizeOrDefault() int {
	if c.BatchSize <= 0 {
		return 20
	}
	return c.BatchSize
}

func (c *RetrySweepConfig) MaxAttemptsOrDefault() int {
	if c.MaxAttempts <= 0 {
		return 3
	}
	return c.MaxAttempts
}
