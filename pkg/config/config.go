package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/viper"
)

// Config represents the transfer server configuration
type Config struct {
	Server     ServerConfig           `mapstructure:"server"`
	Database   DatabaseConfig         `mapstructure:"database"`
	Logging    LoggingConfig          `mapstructure:"logging"`
	Monitoring MonitoringConfig       `mapstructure:"monitoring"`
	Vault      VaultConfig            `mapstructure:"vault"`
	Listener   ListenerConfig         `mapstructure:"listener"`
	Fees       FeesConfig             `mapstructure:"fees"`
	Auth       AuthConfig             `mapstructure:"auth"`
	Chains     map[string]ChainConfig `mapstructure:"chains"`
	Bridges    BridgesConfig          `mapstructure:"bridges"`
	Recovery   RecoveryConfig         `mapstructure:"recovery"`
	AssetsFile string                 `mapstructure:"assets_file"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
}

// DatabaseConfig contains database connection settings
type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"ssl_mode"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

// MonitoringConfig contains monitoring and metrics settings
type MonitoringConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// VaultConfig names the environment variables holding the wallet encryption secret and salt.
type VaultConfig struct {
	EncryptionKeyEnv string `mapstructure:"encryption_key_env"`
	SaltEnv          string `mapstructure:"salt_env"`
	Iterations       int    `mapstructure:"iterations"`
}

// ListenerConfig contains deposit listener timing
type ListenerConfig struct {
	PollInterval time.Duration `mapstructure:"poll_interval"`
	Timeout      time.Duration `mapstructure:"timeout"`
}

// FeesConfig contains the platform fee settings
type FeesConfig struct {
	RateBps         uint32 `mapstructure:"rate_bps"`
	OperatorAddress string `mapstructure:"operator_address"`
}

// AuthConfig contains API key and operator token settings
type AuthConfig struct {
	RequireAPIKey        bool          `mapstructure:"require_api_key"`
	MasterKeyEnv         string        `mapstructure:"master_key_env"`
	APIKeyTTL            time.Duration `mapstructure:"api_key_ttl"`
	OperatorJWTSecretEnv string        `mapstructure:"operator_jwt_secret_env"`
	OperatorJWTIssuer    string        `mapstructure:"operator_jwt_issuer"`
}

// ChainConfig describes one EVM network reachable through a gateway
type ChainConfig struct {
	ChainID        int64          `mapstructure:"chain_id"`
	RPCURL         string         `mapstructure:"rpc_url"`
	ExplorerURL    string         `mapstructure:"explorer_url"`
	ExplorerAPIKey string         `mapstructure:"explorer_api_key"`
	MaxGasPrice    string         `mapstructure:"max_gas_price"`
	ReceiptPoll    time.Duration  `mapstructure:"receipt_poll_interval"`
	Testnet        bool           `mapstructure:"testnet"`
	Wormhole       WormholeConfig `mapstructure:"wormhole"`
}

// WormholeConfig holds the Wormhole contracts deployed on a chain
type WormholeConfig struct {
	ChainID     uint16 `mapstructure:"chain_id"`
	TokenBridge string `mapstructure:"token_bridge"`
	CoreBridge  string `mapstructure:"core_bridge"`
}

// BridgesConfig contains bridge protocol endpoints
type BridgesConfig struct {
	Across   AcrossConfig         `mapstructure:"across"`
	Wormhole WormholeBridgeConfig `mapstructure:"wormhole"`
}

// AcrossConfig contains Across API settings
type AcrossConfig struct {
	APIURL           string        `mapstructure:"api_url"`
	TestnetAPIURL    string        `mapstructure:"testnet_api_url"`
	Timeout          time.Duration `mapstructure:"timeout"`
	FillPollInterval time.Duration `mapstructure:"fill_poll_interval"`
	FillTimeout      time.Duration `mapstructure:"fill_timeout"`
}

// WormholeBridgeConfig contains Wormhole guardian API settings
type WormholeBridgeConfig struct {
	APIURL                  string        `mapstructure:"api_url"`
	TestnetAPIURL           string        `mapstructure:"testnet_api_url"`
	RedeemerKeyEnv          string        `mapstructure:"redeemer_key_env"`
	AttestationPollInterval time.Duration `mapstructure:"attestation_poll_interval"`
	AttestationTimeout      time.Duration `mapstructure:"attestation_timeout"`
}

// RecoveryConfig controls restart recovery and the ledger monitor
type RecoveryConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	MonitorInterval time.Duration `mapstructure:"monitor_interval"`
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "15m")
	v.SetDefault("server.idle_timeout", "60s")
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("server.request_timeout", "60s")

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.database", "escrow_bridge")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output_path", "stdout")

	v.SetDefault("monitoring.enabled", true)

	// Vault defaults
	v.SetDefault("vault.encryption_key_env", "ENCRYPTION_KEY")
	v.SetDefault("vault.salt_env", "SALT")
	v.SetDefault("vault.iterations", 100_000)

	// Listener defaults
	v.SetDefault("listener.poll_interval", "15s")
	v.SetDefault("listener.timeout", "10m")

	v.SetDefault("fees.rate_bps", 100)

	// Auth defaults
	v.SetDefault("auth.require_api_key", true)
	v.SetDefault("auth.master_key_env", "MASTER_KEY")
	v.SetDefault("auth.api_key_ttl", "720h")
	v.SetDefault("auth.operator_jwt_secret_env", "OPERATOR_JWT_SECRET")
	v.SetDefault("auth.operator_jwt_issuer", "escrow-bridge")

	// Bridge defaults
	v.SetDefault("bridges.across.api_url", "https://app.across.to/api")
	v.SetDefault("bridges.across.testnet_api_url", "https://testnet.across.to/api")
	v.SetDefault("bridges.across.timeout", "20s")
	v.SetDefault("bridges.across.fill_poll_interval", "10s")
	v.SetDefault("bridges.across.fill_timeout", "30m")
	v.SetDefault("bridges.wormhole.api_url", "https://api.wormholescan.io")
	v.SetDefault("bridges.wormhole.testnet_api_url", "https://api.testnet.wormholescan.io")
	v.SetDefault("bridges.wormhole.redeemer_key_env", "WORMHOLE_REDEEMER_KEY")
	v.SetDefault("bridges.wormhole.attestation_poll_interval", "15s")
	v.SetDefault("bridges.wormhole.attestation_timeout", "40m")

	// Recovery defaults
	v.SetDefault("recovery.enabled", true)
	v.SetDefault("recovery.monitor_interval", "1m")

	v.SetDefault("assets_file", "assets.yaml")
}

func validate(config *Config) error {
	if config.Database.Host == "" {
		return fmt.Errorf("database.host is required")
	}
	if len(config.Chains) == 0 {
		return fmt.Errorf("at least one chain must be configured")
	}
	for name, chain := range config.Chains {
		if chain.RPCURL == "" {
			return fmt.Errorf("chains.%s.rpc_url is required", name)
		}
		if chain.ChainID <= 0 {
			return fmt.Errorf("chains.%s.chain_id is required", name)
		}
	}
	if !common.IsHexAddress(config.Fees.OperatorAddress) {
		return fmt.Errorf("fees.operator_address must be a valid address")
	}
	if config.Fees.RateBps == 0 || config.Fees.RateBps >= 10_000 {
		return fmt.Errorf("fees.rate_bps must be between 1 and 9999")
	}
	if config.Listener.PollInterval <= 0 || config.Listener.Timeout <= 0 {
		return fmt.Errorf("listener.poll_interval and listener.timeout must be positive")
	}
	if config.AssetsFile == "" {
		return fmt.Errorf("assets_file is required")
	}
	return nil
}

// GetConnectionString returns a PostgreSQL connection string
func (c *DatabaseConfig) GetConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// Secret reads a required secret from the named environment variable.
func Secret(envName string) (string, error) {
	if envName == "" {
		return "", fmt.Errorf("secret env name is empty")
	}
	val := os.Getenv(envName)
	if val == "" {
		return "", fmt.Errorf("secret not set: env=%s", envName)
	}
	return val, nil
}
