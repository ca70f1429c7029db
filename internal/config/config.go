package config

import (
	"bytes"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"okx-connector/internal/core"
)

type Mode string

type OrderRoute string

const (
	ModeDemo Mode = "demo"
	ModeLive Mode = "live"
)

const (
	RouteWS   OrderRoute = "ws"
	RouteREST OrderRoute = "rest"
)

// Credential environment variables. They override values from the YAML file.
const (
	EnvAPIKey     = "OKX_API_KEY"
	EnvSecretKey  = "OKX_SECRET_KEY"
	EnvPassphrase = "OKX_PASSPHRASE"
)

type Config struct {
	Mode          Mode                 `yaml:"mode"`
	InstanceID    string               `yaml:"instance_id"`
	Exchange      ExchangeConfig       `yaml:"exchange"`
	Subscriptions []SubscriptionConfig `yaml:"subscriptions"`
	Bus           BusConfig            `yaml:"bus"`
	Supervisor    SupervisorConfig     `yaml:"supervisor"`
	State         StateConfig          `yaml:"state"`
	Logging       LoggingConfig        `yaml:"logging"`
	Observability ObservabilityConfig  `yaml:"observability"`
}

type ExchangeConfig struct {
	APIKey          string          `yaml:"api_key"`
	SecretKey       string          `yaml:"secret_key"`
	Passphrase      string          `yaml:"passphrase"`
	RestBaseURL     string          `yaml:"rest_base_url"`
	PublicWSURL     string          `yaml:"public_ws_url"`
	PrivateWSURL    string          `yaml:"private_ws_url"`
	HTTPTimeoutSec  int64           `yaml:"http_timeout_sec"`
	PingIntervalSec int64           `yaml:"ping_interval_sec"`
	LoginTimeoutSec int64           `yaml:"login_timeout_sec"`
	OrderRoute      OrderRoute      `yaml:"order_route"`
	RateLimit       RateLimitConfig `yaml:"rate_limit"`
}

type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

type SubscriptionConfig struct {
	Instrument string `yaml:"instrument"`
	Data       string `yaml:"data"`
}

type BusConfig struct {
	Capacity int `yaml:"capacity"`
}

type SupervisorConfig struct {
	Restart                bool  `yaml:"restart"`
	MaxConsecutiveFailures int   `yaml:"max_consecutive_failures"`
	CooldownSec            int64 `yaml:"cooldown_sec"`
	ProbeSuccesses         int   `yaml:"probe_successes"`
	MaxPlaceFailures       int   `yaml:"max_place_failures"`
	MaxCancelFailures      int   `yaml:"max_cancel_failures"`
}

// StateConfig locates the runtime status file and instance lock. An empty
// Dir disables both.
type StateConfig struct {
	Dir          string `yaml:"dir"`
	LockTakeover bool   `yaml:"lock_takeover"`
	LockStaleSec int64  `yaml:"lock_stale_sec"`
}

type LoggingConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	Output     string `yaml:"output"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

type ObservabilityConfig struct {
	HeartbeatSec       int64          `yaml:"heartbeat_sec"`
	AlertQueueSize     int            `yaml:"alert_queue_size"`
	AlertDropReportSec int64          `yaml:"alert_drop_report_sec"`
	Telegram           TelegramConfig `yaml:"telegram"`
}

type TelegramConfig struct {
	Enabled    bool   `yaml:"enabled"`
	BotToken   string `yaml:"bot_token"`
	ChatID     string `yaml:"chat_id"`
	APIBaseURL string `yaml:"api_base_url"`
	TimeoutSec int64  `yaml:"timeout_sec"`
}

// LoadEnv reads a dotenv file into the process environment. A missing file is not an error.
func LoadEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return Config{}, err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		if err == nil {
			return Config{}, fmt.Errorf("config must contain a single YAML document")
		}
		return Config{}, err
	}
	cfg.applyEnv()
	cfg.normalize()
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv(EnvAPIKey); v != "" {
		c.Exchange.APIKey = v
	}
	if v := os.Getenv(EnvSecretKey); v != "" {
		c.Exchange.SecretKey = v
	}
	if v := os.Getenv(EnvPassphrase); v != "" {
		c.Exchange.Passphrase = v
	}
}

func (c *Config) normalize() {
	c.Mode = Mode(strings.ToLower(strings.TrimSpace(string(c.Mode))))
	c.InstanceID = strings.ToLower(strings.TrimSpace(c.InstanceID))
	c.Exchange.APIKey = strings.TrimSpace(c.Exchange.APIKey)
	c.Exchange.SecretKey = strings.TrimSpace(c.Exchange.SecretKey)
	c.Exchange.Passphrase = strings.TrimSpace(c.Exchange.Passphrase)
	c.Exchange.RestBaseURL = strings.TrimRight(strings.TrimSpace(c.Exchange.RestBaseURL), "/")
	c.Exchange.PublicWSURL = strings.TrimSpace(c.Exchange.PublicWSURL)
	c.Exchange.PrivateWSURL = strings.TrimSpace(c.Exchange.PrivateWSURL)
	c.Exchange.OrderRoute = OrderRoute(strings.ToLower(strings.TrimSpace(string(c.Exchange.OrderRoute))))
	for i := range c.Subscriptions {
		c.Subscriptions[i].Instrument = strings.TrimSpace(c.Subscriptions[i].Instrument)
		c.Subscriptions[i].Data = strings.ToLower(strings.TrimSpace(c.Subscriptions[i].Data))
	}
	c.State.Dir = strings.TrimSpace(c.State.Dir)
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	c.Logging.Output = strings.TrimSpace(c.Logging.Output)
	c.Observability.Telegram.BotToken = strings.TrimSpace(c.Observability.Telegram.BotToken)
	c.Observability.Telegram.ChatID = strings.TrimSpace(c.Observability.Telegram.ChatID)
	c.Observability.Telegram.APIBaseURL = strings.TrimSpace(c.Observability.Telegram.APIBaseURL)
}

func (c *Config) applyDefaults() {
	if c.Mode == "" {
		c.Mode = ModeLive
	}
	if c.InstanceID == "" {
		c.InstanceID = "default"
	}
	if c.Exchange.RestBaseURL == "" {
		c.Exchange.RestBaseURL = "https://www.okx.com"
	}
	if c.Exchange.PublicWSURL == "" {
		switch c.Mode {
		case ModeDemo:
			c.Exchange.PublicWSURL = "wss://wspap.okx.com:8443/ws/v5/public?brokerId=9999"
		default:
			c.Exchange.PublicWSURL = "wss://ws.okx.com:8443/ws/v5/public"
		}
	}
	if c.Exchange.PrivateWSURL == "" {
		switch c.Mode {
		case ModeDemo:
			c.Exchange.PrivateWSURL = "wss://wspap.okx.com:8443/ws/v5/private?brokerId=9999"
		default:
			c.Exchange.PrivateWSURL = "wss://ws.okx.com:8443/ws/v5/private"
		}
	}
	if c.Exchange.HTTPTimeoutSec == 0 {
		c.Exchange.HTTPTimeoutSec = 10
	}
	if c.Exchange.PingIntervalSec == 0 {
		c.Exchange.PingIntervalSec = 20
	}
	if c.Exchange.LoginTimeoutSec == 0 {
		c.Exchange.LoginTimeoutSec = 10
	}
	if c.Exchange.OrderRoute == "" {
		c.Exchange.OrderRoute = RouteWS
	}
	if c.Exchange.RateLimit.RequestsPerSecond == 0 {
		c.Exchange.RateLimit.RequestsPerSecond = 30
	}
	if c.Exchange.RateLimit.Burst == 0 {
		c.Exchange.RateLimit.Burst = 5
	}
	if c.Bus.Capacity == 0 {
		c.Bus.Capacity = 1024
	}
	if c.Supervisor.MaxConsecutiveFailures == 0 {
		c.Supervisor.MaxConsecutiveFailures = 10
	}
	if c.Supervisor.CooldownSec == 0 {
		c.Supervisor.CooldownSec = 30
	}
	if c.Supervisor.ProbeSuccesses == 0 {
		c.Supervisor.ProbeSuccesses = 1
	}
	if c.Supervisor.MaxPlaceFailures == 0 {
		c.Supervisor.MaxPlaceFailures = 5
	}
	if c.Supervisor.MaxCancelFailures == 0 {
		c.Supervisor.MaxCancelFailures = 5
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	if c.Logging.Output == "" {
		c.Logging.Output = "stdout"
	}
	if c.Observability.HeartbeatSec == 0 {
		c.Observability.HeartbeatSec = 60
	}
	if c.Observability.AlertQueueSize == 0 {
		c.Observability.AlertQueueSize = 128
	}
	if c.Observability.AlertDropReportSec == 0 {
		c.Observability.AlertDropReportSec = 60
	}
	if c.Observability.Telegram.APIBaseURL == "" {
		c.Observability.Telegram.APIBaseURL = "https://api.telegram.org"
	}
	if c.Observability.Telegram.TimeoutSec == 0 {
		c.Observability.Telegram.TimeoutSec = 10
	}
}

func (c Config) Validate() error {
	switch c.Mode {
	case ModeDemo, ModeLive:
	default:
		return fmt.Errorf("mode must be demo or live")
	}
	if !isValidInstanceID(c.InstanceID) {
		return fmt.Errorf("instance_id must match [a-z0-9_-], length 1..24")
	}
	if err := validateURL(c.Exchange.RestBaseURL, "https", "http"); err != nil {
		return fmt.Errorf("exchange.rest_base_url %v", err)
	}
	if err := validateURL(c.Exchange.PublicWSURL, "wss", "ws"); err != nil {
		return fmt.Errorf("exchange.public_ws_url %v", err)
	}
	if err := validateURL(c.Exchange.PrivateWSURL, "wss", "ws"); err != nil {
		return fmt.Errorf("exchange.private_ws_url %v", err)
	}
	if c.Exchange.HTTPTimeoutSec < 0 {
		return fmt.Errorf("exchange.http_timeout_sec must be >= 0")
	}
	if c.Exchange.PingIntervalSec < 0 {
		return fmt.Errorf("exchange.ping_interval_sec must be >= 0")
	}
	if c.Exchange.PingIntervalSec >= 30 {
		return fmt.Errorf("exchange.ping_interval_sec must be < 30")
	}
	if c.Exchange.LoginTimeoutSec < 0 {
		return fmt.Errorf("exchange.login_timeout_sec must be >= 0")
	}
	switch c.Exchange.OrderRoute {
	case RouteWS, RouteREST:
	default:
		return fmt.Errorf("exchange.order_route must be ws or rest")
	}
	if c.Exchange.RateLimit.RequestsPerSecond < 0 {
		return fmt.Errorf("exchange.rate_limit.requests_per_second must be >= 0")
	}
	if c.Exchange.RateLimit.Burst < 0 {
		return fmt.Errorf("exchange.rate_limit.burst must be >= 0")
	}
	if _, err := c.ParsedSubscriptions(); err != nil {
		return err
	}
	if c.Bus.Capacity < 1 {
		return fmt.Errorf("bus.capacity must be >= 1")
	}
	if c.Supervisor.MaxConsecutiveFailures < 1 {
		return fmt.Errorf("supervisor.max_consecutive_failures must be >= 1")
	}
	if c.Supervisor.CooldownSec < 0 {
		return fmt.Errorf("supervisor.cooldown_sec must be >= 0")
	}
	if c.Supervisor.ProbeSuccesses < 1 {
		return fmt.Errorf("supervisor.probe_successes must be >= 1")
	}
	if c.Supervisor.MaxPlaceFailures < 0 || c.Supervisor.MaxCancelFailures < 0 {
		return fmt.Errorf("supervisor.max_place_failures and max_cancel_failures must be >= 0")
	}
	if c.State.LockStaleSec < 0 {
		return fmt.Errorf("state.lock_stale_sec must be >= 0")
	}
	switch c.Logging.Format {
	case "json", "text":
	default:
		return fmt.Errorf("logging.format must be json or text")
	}
	if c.Logging.MaxAgeDays < 0 {
		return fmt.Errorf("logging.max_age_days must be >= 0")
	}
	if c.Observability.HeartbeatSec < 0 {
		return fmt.Errorf("observability.heartbeat_sec must be >= 0")
	}
	if c.Observability.AlertQueueSize < 1 {
		return fmt.Errorf("observability.alert_queue_size must be >= 1")
	}
	if c.Observability.AlertDropReportSec < 0 {
		return fmt.Errorf("observability.alert_drop_report_sec must be >= 0")
	}
	if c.Observability.Telegram.Enabled {
		if c.Observability.Telegram.BotToken == "" || c.Observability.Telegram.ChatID == "" {
			return fmt.Errorf("observability.telegram.bot_token and chat_id are required when telegram is enabled")
		}
		if err := validateURL(c.Observability.Telegram.APIBaseURL, "https", "http"); err != nil {
			return fmt.Errorf("observability.telegram.api_base_url %v", err)
		}
		if c.Observability.Telegram.TimeoutSec < 1 {
			return fmt.Errorf("observability.telegram.timeout_sec must be >= 1")
		}
	}
	return nil
}

// HasCredentials reports whether all three api credentials are present.
// Partial credentials are treated as none and leave the connector public-only.
func (c Config) HasCredentials() bool {
	return c.Exchange.APIKey != "" && c.Exchange.SecretKey != "" && c.Exchange.Passphrase != ""
}

// PartialCredentials reports a credential set with some but not all fields filled.
func (c Config) PartialCredentials() bool {
	some := c.Exchange.APIKey != "" || c.Exchange.SecretKey != "" || c.Exchange.Passphrase != ""
	return some && !c.HasCredentials()
}

// ParsedSubscriptions decodes the subscription list into typed pairs.
func (c Config) ParsedSubscriptions() ([]core.Subscription, error) {
	out := make([]core.Subscription, 0, len(c.Subscriptions))
	for i, s := range c.Subscriptions {
		inst, err := core.ParseInstrument(s.Instrument)
		if err != nil {
			return nil, fmt.Errorf("subscriptions[%d].instrument: %w", i, err)
		}
		kind, err := core.ParseDataKind(s.Data)
		if err != nil {
			return nil, fmt.Errorf("subscriptions[%d].data: %w", i, err)
		}
		out = append(out, core.Subscription{Inst: inst, Data: kind})
	}
	return out, nil
}

func isValidInstanceID(v string) bool {
	if len(v) < 1 || len(v) > 24 {
		return false
	}
	for _, r := range v {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' || r == '-' {
			continue
		}
		return false
	}
	return true
}

func validateURL(raw string, schemes ...string) error {
	parsed, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("must be a valid URL: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("must include scheme and host")
	}
	for _, s := range schemes {
		if parsed.Scheme == s {
			return nil
		}
	}
	return fmt.Errorf("scheme must be %s", strings.Join(schemes, " or "))
}
