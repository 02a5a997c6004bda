package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Config holds all application configuration
type Config struct {
	Database  DatabaseConfig
	Server    ServerConfig
	App       AppConfig
	Redis     RedisConfig
	Chain     ChainConfig
	Reconcile ReconcileConfig
	Log       LogConfig
	Contracts ContractsConfig
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Driver     string // postgres, sqlite
	Host       string
	Port       string
	User       string
	Password   string
	DBName     string
	SQLitePath string
}

// ServerConfig holds server settings
type ServerConfig struct {
	Port        string
	FrontendURL string
}

// AppConfig holds application-specific settings
type AppConfig struct {
	JWTSecret  string
	SessionTTL time.Duration
	NonceTTL   time.Duration
}

// RedisConfig holds session store settings. An empty Addr selects the
// in-memory store.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// ChainConfig holds the contract backend settings
type ChainConfig struct {
	Mode          string // evm, simulated
	RPCURL        string
	ChainID       int64
	OperatorKey   string
	OwnerAddress  string // owner reported by simulated contracts
	ETHUSDPrice   decimal.Decimal
	CallTimeout   time.Duration
	TxWaitTimeout time.Duration
}

// ContractsConfig holds the deployed addresses used when seeding the demo
// markets
type ContractsConfig struct {
	Fed          string
	Bitcoin      string
	BaseTweet    string
	DubaiWeather string
}

// ReconcileConfig holds the contract re-read schedule
type ReconcileConfig struct {
	Delay time.Duration
	Cron  string
}

// LogConfig holds zap settings
type LogConfig struct {
	Level             string
	Encoding          string // json, console
	Development       bool
	DisableCaller     bool
	DisableStacktrace bool
	Sampling          bool
}

const (
	ChainModeEVM       = "evm"
	ChainModeSimulated = "simulated"
)

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()

	ethPrice, err := decimal.NewFromString(getEnv("ETH_USD_PRICE", "2000"))
	if err != nil {
		return nil, fmt.Errorf("invalid ETH_USD_PRICE: %w", err)
	}

	config := &Config{
		Database: DatabaseConfig{
			Driver:     getEnv("DB_DRIVER", "postgres"),
			Host:       getEnv("DB_HOST", "localhost"),
			Port:       getEnv("DB_PORT", "5432"),
			User:       getEnv("DB_USER", "postgres"),
			Password:   getEnv("DB_PASSWORD", ""),
			DBName:     getEnv("DB_NAME", "poolmarket"),
			SQLitePath: getEnv("SQLITE_PATH", "poolmarket.db"),
		},
		Server: ServerConfig{
			Port:        getEnv("SERVER_PORT", "8080"),
			FrontendURL: getEnv("FRONTEND_URL", "http://localhost:5173"),
		},
		App: AppConfig{
			JWTSecret:  getEnv("JWT_SECRET", ""),
			SessionTTL: getEnvDuration("SESSION_TTL", 24*time.Hour),
			NonceTTL:   getEnvDuration("NONCE_TTL", 5*time.Minute),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Chain: ChainConfig{
			Mode:          strings.ToLower(getEnv("CONTRACT_MODE", ChainModeSimulated)),
			RPCURL:        getEnv("CHAIN_RPC_URL", "https://sepolia.base.org"),
			ChainID:       int64(getEnvInt("CHAIN_ID", 84532)),
			OperatorKey:   getEnv("OPERATOR_PRIVATE_KEY", ""),
			OwnerAddress:  getEnv("SIMULATED_OWNER_ADDRESS", ""),
			ETHUSDPrice:   ethPrice,
			CallTimeout:   getEnvDuration("CHAIN_CALL_TIMEOUT", 15*time.Second),
			TxWaitTimeout: getEnvDuration("CHAIN_TX_TIMEOUT", 2*time.Minute),
		},
		Reconcile: ReconcileConfig{
			Delay: getEnvDuration("RECONCILE_DELAY", 5*time.Second),
			Cron:  getEnv("RECONCILE_CRON", "*/30 * * * * *"),
		},
		Contracts: ContractsConfig{
			Fed:          getEnv("CONTRACT_ADDRESS_FED", ""),
			Bitcoin:      getEnv("CONTRACT_ADDRESS_BTC", "0x403B63B2cF2Cf64A029aB903e4099d713fA6924B"),
			BaseTweet:    getEnv("CONTRACT_ADDRESS_BASE_TWEET", "0x79c68cFf7D9C1274EFc677901239f81e1aba8D3d"),
			DubaiWeather: getEnv("CONTRACT_ADDRESS_DUBAI_WEATHER", "0xcaeD4a39bc69D81675C8dA5D6aC80eC05a2f641d"),
		},
		Log: LogConfig{
			Level:             getEnv("LOG_LEVEL", "info"),
			Encoding:          getEnv("LOG_ENCODING", "json"),
			Development:       getEnvBool("LOG_DEVELOPMENT", false),
			DisableCaller:     getEnvBool("LOG_DISABLE_CALLER", false),
			DisableStacktrace: getEnvBool("LOG_DISABLE_STACKTRACE", false),
			Sampling:          getEnvBool("LOG_SAMPLING", false),
		},
	}

	// Validate required fields
	if config.App.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	switch config.Chain.Mode {
	case ChainModeEVM:
		if config.Chain.RPCURL == "" {
			return nil, fmt.Errorf("CHAIN_RPC_URL is required in evm mode")
		}
	case ChainModeSimulated:
	default:
		return nil, fmt.Errorf("unknown CONTRACT_MODE %q", config.Chain.Mode)
	}

	if config.Database.Driver != "postgres" && config.Database.Driver != "sqlite" {
		return nil, fmt.Errorf("unknown DB_DRIVER %q", config.Database.Driver)
	}

	return config, nil
}

// GetDSN returns the connection string for the configured driver
func (c *Config) GetDSN() string {
	if c.Database.Driver == "sqlite" {
		return c.Database.SQLitePath
	}
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		c.Database.Host,
		c.Database.Port,
		c.Database.User,
		c.Database.Password,
		c.Database.DBName,
	)
}

// getEnv gets an environment variable with a fallback default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return n
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return b
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return d
}
