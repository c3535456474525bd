package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/congo-pay/mbongo/internal/account"
)

const (
	defaultAppName         = "Mbongo"
	defaultAppEnv          = "development"
	defaultPort            = "8080"
	defaultLogLevel        = "info"
	defaultTokenName       = "Mbongo Token"
	defaultTokenSymbol     = "MBO"
	defaultTokenDecimals   = 8
	defaultMaxSupply       = uint64(1_000_000_000_000_000_000)
	defaultLogCapacity     = 2000
	defaultWindow          = 24 * time.Hour
	defaultDrift           = 2 * time.Minute
	defaultArchiveBudget   = uint64(8 << 20)
	defaultArchiveTimeout  = 10 * time.Second
	defaultBreakerTrips    = 5
	defaultBreakerCooldown = 30 * time.Second
	defaultWriteRate       = 60
	defaultShutdownDelay   = 10 * time.Second
	defaultIdempotencyTTL  = 24 * time.Hour
	defaultTokenTTL        = 24 * time.Hour
	idemTTLSecondsEnvVar   = "IDEMPOTENCY_TTL_SECONDS"
	idemTTLDurEnvVar       = "IDEMPOTENCY_TTL"
	shutdownSecondsEnvVar  = "SHUTDOWN_TIMEOUT_SECONDS"
	shutdownDurationEnvVar = "SHUTDOWN_TIMEOUT"
)

// Balance is one configured initial balance.
type Balance struct {
	Account account.Account
	Amount  uint64
}

// Config captures application runtime configuration loaded from environment variables.
type Config struct {
	AppName  string
	AppEnv   string
	Port     string
	LogLevel string

	DatabaseURL string
	RedisURL    string
	JWTSecret   string
	TokenTTL    time.Duration

	TokenName     string
	TokenSymbol   string
	TokenDecimals uint8

	MintingAccount    account.Account
	TransferFee       uint64
	MinBurnAmount     uint64
	MaxSupply         uint64
	TransactionWindow time.Duration
	PermittedDrift    time.Duration
	LogCapacity       int
	InitialBalances   []Balance

	ArchiveProvisionBudget uint64
	ArchiveCallTimeout     time.Duration
	BreakerThreshold       uint32
	BreakerCooldown        time.Duration

	WriteRatePerMin int
	ShutdownPeriod  time.Duration
	IdempotencyTTL  time.Duration
}

// Load reads configuration values from the environment and populates a
// Config instance. A .env file is honored when present.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		AppName:        getEnv("APP_NAME", defaultAppName),
		AppEnv:         getEnv("APP_ENV", defaultAppEnv),
		Port:           getEnv("PORT", defaultPort),
		LogLevel:       strings.ToLower(getEnv("LOG_LEVEL", defaultLogLevel)),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		RedisURL:       os.Getenv("REDIS_URL"),
		JWTSecret:      os.Getenv("JWT_SECRET"),
		TokenName:      getEnv("TOKEN_NAME", defaultTokenName),
		TokenSymbol:    getEnv("TOKEN_SYMBOL", defaultTokenSymbol),
		ShutdownPeriod: defaultShutdownDelay,
		IdempotencyTTL: defaultIdempotencyTTL,
	}

	var err error
	if cfg.TokenDecimals, err = getUint8("TOKEN_DECIMALS", defaultTokenDecimals); err != nil {
		return Config{}, err
	}
	if cfg.TransferFee, err = getUint64("TRANSFER_FEE", 0); err != nil {
		return Config{}, err
	}
	if cfg.MinBurnAmount, err = getUint64("MIN_BURN_AMOUNT", 0); err != nil {
		return Config{}, err
	}
	if cfg.MaxSupply, err = getUint64("MAX_SUPPLY", defaultMaxSupply); err != nil {
		return Config{}, err
	}
	if cfg.LogCapacity, err = getInt("LOG_CAPACITY", defaultLogCapacity); err != nil {
		return Config{}, err
	}
	if cfg.TransactionWindow, err = getDuration("TRANSACTION_WINDOW", defaultWindow); err != nil {
		return Config{}, err
	}
	if cfg.PermittedDrift, err = getDuration("PERMITTED_DRIFT", defaultDrift); err != nil {
		return Config{}, err
	}
	if cfg.ArchiveProvisionBudget, err = getUint64("ARCHIVE_PROVISION_BUDGET", defaultArchiveBudget); err != nil {
		return Config{}, err
	}
	if cfg.ArchiveCallTimeout, err = getDuration("ARCHIVE_CALL_TIMEOUT", defaultArchiveTimeout); err != nil {
		return Config{}, err
	}
	breakerThreshold, err := getInt("BREAKER_THRESHOLD", defaultBreakerTrips)
	if err != nil {
		return Config{}, err
	}
	cfg.BreakerThreshold = uint32(breakerThreshold)
	if cfg.BreakerCooldown, err = getDuration("BREAKER_COOLDOWN", defaultBreakerCooldown); err != nil {
		return Config{}, err
	}
	if cfg.WriteRatePerMin, err = getInt("WRITE_RATE_PER_MIN", defaultWriteRate); err != nil {
		return Config{}, err
	}
	if cfg.TokenTTL, err = getDuration("TOKEN_TTL", defaultTokenTTL); err != nil {
		return Config{}, err
	}

	if v := os.Getenv(shutdownSecondsEnvVar); v != "" {
		seconds, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", shutdownSecondsEnvVar, err)
		}
		cfg.ShutdownPeriod = time.Duration(seconds) * time.Second
	} else if v := os.Getenv(shutdownDurationEnvVar); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", shutdownDurationEnvVar, err)
		}
		cfg.ShutdownPeriod = d
	}

	if v := os.Getenv(idemTTLSecondsEnvVar); v != "" {
		seconds, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", idemTTLSecondsEnvVar, err)
		}
		cfg.IdempotencyTTL = time.Duration(seconds) * time.Second
	} else if v := os.Getenv(idemTTLDurEnvVar); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", idemTTLDurEnvVar, err)
		}
		cfg.IdempotencyTTL = d
	}

	minting := os.Getenv("MINTING_ACCOUNT")
	if minting == "" {
		return Config{}, fmt.Errorf("MINTING_ACCOUNT must be set")
	}
	if cfg.MintingAccount, err = account.Decode(minting); err != nil {
		return Config{}, fmt.Errorf("invalid MINTING_ACCOUNT: %w", err)
	}

	if cfg.InitialBalances, err = parseBalances(os.Getenv("INITIAL_BALANCES")); err != nil {
		return Config{}, err
	}

	if cfg.MaxSupply == 0 {
		return Config{}, fmt.Errorf("MAX_SUPPLY must allow at least one token")
	}

	if !cfg.IsDev() {
		if cfg.DatabaseURL == "" {
			return Config{}, fmt.Errorf("DATABASE_URL must be set")
		}
		if cfg.RedisURL == "" {
			return Config{}, fmt.Errorf("REDIS_URL must be set")
		}
		if cfg.JWTSecret == "" {
			return Config{}, fmt.Errorf("JWT_SECRET must be set")
		}
	}
	if cfg.JWTSecret == "" {
		cfg.JWTSecret = "dev-secret"
	}

	return cfg, nil
}

// IsDev reports whether the app runs in development mode, where Postgres and
// Redis are optional and replaced by in-memory stand-ins.
func (c Config) IsDev() bool {
	return c.AppEnv == "development"
}

// Address returns the listen address in the format Fiber expects.
func (c Config) Address() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return fmt.Sprintf(":%s", c.Port)
}

// parseBalances parses "account=amount[,account=amount...]".
func parseBalances(raw string) ([]Balance, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	var out []Balance
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		eq := strings.LastIndexByte(pair, '=')
		if eq <= 0 || eq == len(pair)-1 {
			return nil, fmt.Errorf("invalid INITIAL_BALANCES entry %q", pair)
		}
		acct, err := account.Decode(pair[:eq])
		if err != nil {
			return nil, fmt.Errorf("invalid INITIAL_BALANCES account %q: %w", pair[:eq], err)
		}
		amount, err := strconv.ParseUint(pair[eq+1:], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid INITIAL_BALANCES amount in %q: %w", pair, err)
		}
		out = append(out, Balance{Account: acct, Amount: amount})
	}
	return out, nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getUint64(key string, fallback uint64) (uint64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getUint8(key string, fallback uint8) (uint8, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.ParseUint(v, 10, 8)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return uint8(n), nil
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
