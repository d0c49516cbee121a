package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"asset-pool-ledger/internal/money"
)

type Config struct {
	ServerConfig   ServerConfig   `json:"server"`
	LoggingConfig  LoggingConfig  `json:"logging"`
	DatabaseConfig DatabaseConfig `json:"database"`
	RedisConfig    RedisConfig    `json:"redis"`
	VaultConfig    VaultConfig    `json:"vault"`
	LedgerConfig   LedgerConfig   `json:"ledger"`
	PayoutConfig   PayoutConfig   `json:"payout"`
	DispatchConfig DispatchConfig `json:"dispatch"`
	AuditConfig    AuditConfig    `json:"audit"`

	NotificationConfig NotificationConfig `json:"notification"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int    `json:"port"`
	Host            string `json:"host"`
	AllowedOrigins  string `json:"allowed_origins"` // CORS allowed origins, comma separated
	ReadTimeout     int    `json:"read_timeout"`     // Seconds
	WriteTimeout    int    `json:"write_timeout"`    // Seconds
	ShutdownTimeout int    `json:"shutdown_timeout"` // Seconds
}

type LoggingConfig struct {
	Level       string `json:"level"`        // DEBUG, INFO, WARN, ERROR
	Output      string `json:"output"`       // stdout, stderr, or file path
	JSONFormat  bool   `json:"json_format"`  // Output as JSON
	IncludeFile bool   `json:"include_file"` // Include file and line number
}

// DatabaseConfig holds PostgreSQL configuration. When disabled the ledger
// runs on the in-memory store.
type DatabaseConfig struct {
	Enabled      bool          `json:"enabled"`
	Host         string        `json:"host"`
	Port         int           `json:"port"`
	User         string        `json:"user"`
	Password     string        `json:"password"`
	Database     string        `json:"database"`
	SSLMode      string        `json:"ssl_mode"`
	MaxConns     int           `json:"max_conns"`
	MaxRetries   int           `json:"max_retries"`   // Serialization failure retries
	RetryBackoff time.Duration `json:"retry_backoff"` // Base backoff between retries
}

// RedisConfig holds Redis configuration for pool locks and read caching
type RedisConfig struct {
	Enabled  bool          `json:"enabled"`
	Address  string        `json:"address"`
	Password string        `json:"password"`
	DB       int           `json:"db"`
	PoolSize int           `json:"pool_size"`
	LockTTL  time.Duration `json:"lock_ttl"`
	StatsTTL time.Duration `json:"stats_ttl"`
}

// VaultConfig holds HashiCorp Vault configuration
type VaultConfig struct {
	Enabled    bool   `json:"enabled"`
	Address    string `json:"address"`
	Token      string `json:"token"`
	MountPath  string `json:"mount_path"`  // KV secrets engine mount path
	SecretPath string `json:"secret_path"` // Path prefix for dispatch credentials
	TLSEnabled bool   `json:"tls_enabled"`
	CACert     string `json:"ca_cert"`
}

// LedgerConfig holds the pooling rules. Amounts are decimal strings.
type LedgerConfig struct {
	Currency            string `json:"currency"`
	MinimumContribution string `json:"minimum_contribution"`
	EntryFee            string `json:"entry_fee"`
	DefaultPlatformFee  string `json:"default_platform_fee"` // Ratio in [0, 1)
}

// PayoutConfig holds withdrawal rules
type PayoutConfig struct {
	MinimumWithdrawal string            `json:"minimum_withdrawal"`
	Networks          map[string]string `json:"networks"` // Currency -> network
	DispatchTimeout   time.Duration     `json:"dispatch_timeout"`
}

// DispatchConfig selects and configures the external transfer service
type DispatchConfig struct {
	MockMode         bool          `json:"mock_mode"` // Settle withdrawals locally
	BaseURL          string        `json:"base_url"`
	APIKey           string        `json:"api_key"` // Fallback when Vault is disabled
	Timeout          time.Duration `json:"timeout"`
	FailureThreshold int           `json:"failure_threshold"` // Consecutive failures before the breaker opens
	Cooldown         time.Duration `json:"cooldown"`
}

// AuditConfig schedules the ledger invariant audit
type AuditConfig struct {
	Enabled  bool   `json:"enabled"`
	Schedule string `json:"schedule"` // Cron expression
}

// NotificationConfig holds operator alert channels
type NotificationConfig struct {
	Enabled  bool           `json:"enabled"`
	Telegram TelegramConfig `json:"telegram"`
	Discord  DiscordConfig  `json:"discord"`
}

type TelegramConfig struct {
	BotToken string `json:"bot_token"`
	ChatID   string `json:"chat_id"`
}

type DiscordConfig struct {
	WebhookURL string `json:"webhook_url"`
}

func Load() (*Config, error) {
	// First try to load base config from file
	cfg, err := loadFromFile(getEnvOrDefault("LEDGER_CONFIG_FILE", "config.json"))
	if err != nil {
		// If no config file, start with empty config
		cfg = &Config{}
	}

	// Apply environment variable overrides (these take precedence)
	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides to the config.
// Values already set from the file are used as defaults.
func applyEnvOverrides(cfg *Config) {
	// Server config
	cfg.ServerConfig.Port = getEnvIntOrDefault("WEB_PORT", orInt(cfg.ServerConfig.Port, 8080))
	cfg.ServerConfig.Host = getEnvOrDefault("WEB_HOST", orString(cfg.ServerConfig.Host, "0.0.0.0"))
	cfg.ServerConfig.AllowedOrigins = getEnvOrDefault("SERVER_ALLOWED_ORIGINS", orString(cfg.ServerConfig.AllowedOrigins, "*"))
	cfg.ServerConfig.ReadTimeout = getEnvIntOrDefault("SERVER_READ_TIMEOUT", orInt(cfg.ServerConfig.ReadTimeout, 30))
	cfg.ServerConfig.WriteTimeout = getEnvIntOrDefault("SERVER_WRITE_TIMEOUT", orInt(cfg.ServerConfig.WriteTimeout, 90))
	cfg.ServerConfig.ShutdownTimeout = getEnvIntOrDefault("SERVER_SHUTDOWN_TIMEOUT", orInt(cfg.ServerConfig.ShutdownTimeout, 10))

	// Logging config
	cfg.LoggingConfig.Level = getEnvOrDefault("LOG_LEVEL", orString(cfg.LoggingConfig.Level, "INFO"))
	cfg.LoggingConfig.Output = getEnvOrDefault("LOG_OUTPUT", orString(cfg.LoggingConfig.Output, "stdout"))
	cfg.LoggingConfig.JSONFormat = getEnvBoolOrDefault("LOG_JSON", cfg.LoggingConfig.JSONFormat)
	cfg.LoggingConfig.IncludeFile = getEnvBoolOrDefault("LOG_INCLUDE_FILE", cfg.LoggingConfig.IncludeFile)

	// Database config
	cfg.DatabaseConfig.Enabled = getEnvBoolOrDefault("DB_ENABLED", cfg.DatabaseConfig.Enabled)
	cfg.DatabaseConfig.Host = getEnvOrDefault("DB_HOST", orString(cfg.DatabaseConfig.Host, "localhost"))
	cfg.DatabaseConfig.Port = getEnvIntOrDefault("DB_PORT", orInt(cfg.DatabaseConfig.Port, 5432))
	cfg.DatabaseConfig.User = getEnvOrDefault("DB_USER", orString(cfg.DatabaseConfig.User, "ledger"))
	cfg.DatabaseConfig.Password = getEnvOrDefault("DB_PASSWORD", cfg.DatabaseConfig.Password)
	cfg.DatabaseConfig.Database = getEnvOrDefault("DB_NAME", orString(cfg.DatabaseConfig.Database, "asset_pool_ledger"))
	cfg.DatabaseConfig.SSLMode = getEnvOrDefault("DB_SSLMODE", orString(cfg.DatabaseConfig.SSLMode, "disable"))
	cfg.DatabaseConfig.MaxConns = getEnvIntOrDefault("DB_MAX_CONNS", orInt(cfg.DatabaseConfig.MaxConns, 25))
	cfg.DatabaseConfig.MaxRetries = getEnvIntOrDefault("DB_MAX_RETRIES", orInt(cfg.DatabaseConfig.MaxRetries, 5))
	cfg.DatabaseConfig.RetryBackoff = getEnvDurationOrDefault("DB_RETRY_BACKOFF", orDuration(cfg.DatabaseConfig.RetryBackoff, 20*time.Millisecond))

	// Redis config
	cfg.RedisConfig.Enabled = getEnvBoolOrDefault("REDIS_ENABLED", cfg.RedisConfig.Enabled)
	cfg.RedisConfig.Address = getEnvOrDefault("REDIS_ADDR", orString(cfg.RedisConfig.Address, "localhost:6379"))
	cfg.RedisConfig.Password = getEnvOrDefault("REDIS_PASSWORD", cfg.RedisConfig.Password)
	cfg.RedisConfig.DB = getEnvIntOrDefault("REDIS_DB", cfg.RedisConfig.DB)
	cfg.RedisConfig.PoolSize = getEnvIntOrDefault("REDIS_POOL_SIZE", orInt(cfg.RedisConfig.PoolSize, 10))
	cfg.RedisConfig.LockTTL = getEnvDurationOrDefault("REDIS_LOCK_TTL", orDuration(cfg.RedisConfig.LockTTL, 30*time.Second))
	cfg.RedisConfig.StatsTTL = getEnvDurationOrDefault("REDIS_STATS_TTL", orDuration(cfg.RedisConfig.StatsTTL, 30*time.Second))

	// Vault config
	cfg.VaultConfig.Enabled = getEnvBoolOrDefault("VAULT_ENABLED", cfg.VaultConfig.Enabled)
	cfg.VaultConfig.Address = getEnvOrDefault("VAULT_ADDR", orString(cfg.VaultConfig.Address, "http://localhost:8200"))
	cfg.VaultConfig.Token = getEnvOrDefault("VAULT_TOKEN", cfg.VaultConfig.Token)
	cfg.VaultConfig.MountPath = getEnvOrDefault("VAULT_MOUNT_PATH", orString(cfg.VaultConfig.MountPath, "secret"))
	cfg.VaultConfig.SecretPath = getEnvOrDefault("VAULT_SECRET_PATH", orString(cfg.VaultConfig.SecretPath, "asset-pool-ledger/dispatch"))
	cfg.VaultConfig.TLSEnabled = getEnvBoolOrDefault("VAULT_TLS_ENABLED", cfg.VaultConfig.TLSEnabled)
	cfg.VaultConfig.CACert = getEnvOrDefault("VAULT_CACERT", cfg.VaultConfig.CACert)

	// Ledger config
	cfg.LedgerConfig.Currency = getEnvOrDefault("LEDGER_CURRENCY", orString(cfg.LedgerConfig.Currency, "USD"))
	cfg.LedgerConfig.MinimumContribution = getEnvOrDefault("LEDGER_MINIMUM_CONTRIBUTION", orString(cfg.LedgerConfig.MinimumContribution, "1.00"))
	cfg.LedgerConfig.EntryFee = getEnvOrDefault("LEDGER_ENTRY_FEE", orString(cfg.LedgerConfig.EntryFee, "1.00"))
	cfg.LedgerConfig.DefaultPlatformFee = getEnvOrDefault("LEDGER_DEFAULT_PLATFORM_FEE", orString(cfg.LedgerConfig.DefaultPlatformFee, "0.15"))

	// Payout config
	cfg.PayoutConfig.MinimumWithdrawal = getEnvOrDefault("PAYOUT_MINIMUM_WITHDRAWAL", orString(cfg.PayoutConfig.MinimumWithdrawal, "1.00"))
	cfg.PayoutConfig.DispatchTimeout = getEnvDurationOrDefault("PAYOUT_DISPATCH_TIMEOUT", orDuration(cfg.PayoutConfig.DispatchTimeout, 60*time.Second))
	if networks := os.Getenv("PAYOUT_NETWORKS"); networks != "" {
		cfg.PayoutConfig.Networks = parseNetworks(networks)
	}
	if len(cfg.PayoutConfig.Networks) == 0 {
		cfg.PayoutConfig.Networks = map[string]string{"USDT": "POLYGON", "USDC": "POLYGON", "ETH": "ETHEREUM"}
	}

	// Dispatch config
	cfg.DispatchConfig.BaseURL = getEnvOrDefault("DISPATCH_BASE_URL", cfg.DispatchConfig.BaseURL)
	cfg.DispatchConfig.MockMode = getEnvBoolOrDefault("DISPATCH_MOCK_MODE", cfg.DispatchConfig.MockMode || cfg.DispatchConfig.BaseURL == "")
	cfg.DispatchConfig.APIKey = getEnvOrDefault("DISPATCH_API_KEY", cfg.DispatchConfig.APIKey)
	cfg.DispatchConfig.Timeout = getEnvDurationOrDefault("DISPATCH_TIMEOUT", orDuration(cfg.DispatchConfig.Timeout, 30*time.Second))
	cfg.DispatchConfig.FailureThreshold = getEnvIntOrDefault("DISPATCH_FAILURE_THRESHOLD", orInt(cfg.DispatchConfig.FailureThreshold, 5))
	cfg.DispatchConfig.Cooldown = getEnvDurationOrDefault("DISPATCH_COOLDOWN", orDuration(cfg.DispatchConfig.Cooldown, time.Minute))

	// Audit config
	cfg.AuditConfig.Enabled = getEnvBoolOrDefault("AUDIT_ENABLED", cfg.AuditConfig.Enabled)
	cfg.AuditConfig.Schedule = getEnvOrDefault("AUDIT_SCHEDULE", orString(cfg.AuditConfig.Schedule, "@every 15m"))

	// Notification config
	cfg.NotificationConfig.Enabled = getEnvBoolOrDefault("NOTIFICATIONS_ENABLED", cfg.NotificationConfig.Enabled)
	cfg.NotificationConfig.Telegram.BotToken = getEnvOrDefault("TELEGRAM_BOT_TOKEN", cfg.NotificationConfig.Telegram.BotToken)
	cfg.NotificationConfig.Telegram.ChatID = getEnvOrDefault("TELEGRAM_CHAT_ID", cfg.NotificationConfig.Telegram.ChatID)
	cfg.NotificationConfig.Discord.WebhookURL = getEnvOrDefault("DISCORD_WEBHOOK_URL", cfg.NotificationConfig.Discord.WebhookURL)
}

// Validate checks that the amounts and ratios parse and are in range.
func (c *Config) Validate() error {
	if _, err := c.LedgerConfig.Minimum(); err != nil {
		return fmt.Errorf("ledger.minimum_contribution: %w", err)
	}
	if _, err := c.LedgerConfig.Fee(); err != nil {
		return fmt.Errorf("ledger.entry_fee: %w", err)
	}
	fee, err := c.LedgerConfig.PlatformFee()
	if err != nil {
		return fmt.Errorf("ledger.default_platform_fee: %w", err)
	}
	if fee.IsNegative() || fee.Cmp(money.OneRatio) >= 0 {
		return fmt.Errorf("ledger.default_platform_fee must be in [0, 1), got %s", fee)
	}
	if _, err := c.PayoutConfig.Minimum(); err != nil {
		return fmt.Errorf("payout.minimum_withdrawal: %w", err)
	}
	if !c.DispatchConfig.MockMode && c.DispatchConfig.BaseURL == "" {
		return fmt.Errorf("dispatch.base_url is required unless mock mode is on")
	}
	return nil
}

// Minimum returns the parsed minimum contribution
func (c LedgerConfig) Minimum() (money.Money, error) { return money.Parse(c.MinimumContribution) }

// Fee returns the parsed entry fee
func (c LedgerConfig) Fee() (money.Money, error) { return money.Parse(c.EntryFee) }

// PlatformFee returns the parsed default platform fee ratio
func (c LedgerConfig) PlatformFee() (money.Ratio, error) { return money.ParseRatio(c.DefaultPlatformFee) }

// Minimum returns the parsed minimum withdrawal
func (c PayoutConfig) Minimum() (money.Money, error) { return money.Parse(c.MinimumWithdrawal) }

// parseNetworks reads "USDT=POLYGON,ETH=ETHEREUM"
func parseNetworks(s string) map[string]string {
	out := make(map[string]string)
	for _, pair := range strings.Split(s, ",") {
		currency, network, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok || currency == "" || network == "" {
			continue
		}
		out[strings.ToUpper(currency)] = strings.ToUpper(network)
	}
	return out
}

func loadFromFile(filename string) (*Config, error) {
	file, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var config Config
	if err := json.Unmarshal(file, &config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return &config, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func orString(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func orInt(v, def int) int {
	if v == 0 {
		return def
	}
	return v
}

func orDuration(v, def time.Duration) time.Duration {
	if v == 0 {
		return def
	}
	return v
}

// GenerateSampleConfig creates a sample configuration file
func GenerateSampleConfig(filename string) error {
	config := Config{}
	applyEnvOverrides(&config)
	config.DatabaseConfig.Password = ""
	config.VaultConfig.Token = ""
	config.DispatchConfig.APIKey = ""
	config.NotificationConfig.Telegram.BotToken = ""

	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(filename, data, 0644)
}
