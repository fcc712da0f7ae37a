package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	EnvPrefix = "primex"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvDBDSN  = "PRIMEX_DB_DSN"
	EnvDBHost = "PRIMEX_DB_HOST"
	EnvDBUser = "PRIMEX_DB_USER"
	EnvDBName = "PRIMEX_DB_NAME"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

type Config struct {
	App           AppConfig
	DB            DBConfig
	Redis         RedisConfig
	JWT           JWTConfig
	Password      PasswordConfig
	AuthRateLimit AuthRateLimitConfig
	Provisioning  ProvisioningConfig
	Sweep         SweepConfig
	FeatureFlags  FeatureFlagsConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"PRIMEX_APP_ENV" required:"true"`
	Port         string `envconfig:"PRIMEX_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"PRIMEX_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"PRIMEX_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"PRIMEX_DB_DSN"`
	Driver string `envconfig:"PRIMEX_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"PRIMEX_DB_HOST"`
	LegacyPort     int    `envconfig:"PRIMEX_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"PRIMEX_DB_USER"`
	LegacyPassword string `envconfig:"PRIMEX_DB_PASSWORD"`
	LegacyName     string `envconfig:"PRIMEX_DB_NAME"`
	LegacySSLMode  string `envconfig:"PRIMEX_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"PRIMEX_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"PRIMEX_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"PRIMEX_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"PRIMEX_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"PRIMEX_REDIS_URL" required:"true"`
	Address      string        `envconfig:"PRIMEX_REDIS_ADDR"`
	Password     string        `envconfig:"PRIMEX_REDIS_PASSWORD"`
	DB           int           `envconfig:"PRIMEX_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"PRIMEX_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"PRIMEX_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"PRIMEX_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"PRIMEX_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"PRIMEX_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// JWTConfig carries independent signing material for the two principal kinds.
// Account and operator tokens never share a secret.
type JWTConfig struct {
	Issuer                  string `envconfig:"PRIMEX_JWT_ISSUER" required:"true"`
	AccountSecret           string `envconfig:"PRIMEX_JWT_ACCOUNT_SECRET" required:"true"`
	OperatorSecret          string `envconfig:"PRIMEX_JWT_OPERATOR_SECRET" required:"true"`
	AccountExpirationHours  int    `envconfig:"PRIMEX_JWT_ACCOUNT_EXPIRATION_HOURS" default:"24"`
	OperatorExpirationHours int    `envconfig:"PRIMEX_JWT_OPERATOR_EXPIRATION_HOURS" default:"24"`
	RefreshSecret           string `envconfig:"PRIMEX_JWT_REFRESH_SECRET"`
	RefreshExpirationHours  int    `envconfig:"PRIMEX_JWT_REFRESH_EXPIRATION_HOURS" default:"168"`
}

// AccountTTL returns the access-token lifetime for subscriber accounts.
func (j JWTConfig) AccountTTL() time.Duration {
	return time.Duration(j.AccountExpirationHours) * time.Hour
}

// OperatorTTL returns the access-token lifetime for operators.
func (j JWTConfig) OperatorTTL() time.Duration {
	return time.Duration(j.OperatorExpirationHours) * time.Hour
}

// RefreshTTL returns the refresh-token lifetime.
func (j JWTConfig) RefreshTTL() time.Duration {
	return time.Duration(j.RefreshExpirationHours) * time.Hour
}

// RefreshSigningSecret falls back to the account secret when no dedicated
// refresh secret is configured.
func (j JWTConfig) RefreshSigningSecret() string {
	if j.RefreshSecret != "" {
		return j.RefreshSecret
	}
	return j.AccountSecret
}

type PasswordConfig struct {
	ArgonMemoryKB    int `envconfig:"PRIMEX_ARGON_MEMORY_KB" default:"65536"`
	ArgonTime        int `envconfig:"PRIMEX_ARGON_TIME" default:"3"`
	ArgonParallelism int `envconfig:"PRIMEX_ARGON_PARALLELISM" default:"2"`
	ArgonSaltLen     int `envconfig:"PRIMEX_ARGON_SALT_LEN" default:"16"`
	ArgonKeyLen      int `envconfig:"PRIMEX_ARGON_KEY_LEN" default:"32"`
}

type AuthRateLimitConfig struct {
	LoginWindow     time.Duration `envconfig:"PRIMEX_AUTH_RATE_LIMIT_LOGIN_WINDOW" default:"1m"`
	LoginNameLimit  int           `envconfig:"PRIMEX_AUTH_RATE_LIMIT_LOGIN_NAME_LIMIT" default:"5"`
	LoginIPLimit    int           `envconfig:"PRIMEX_AUTH_RATE_LIMIT_LOGIN_IP_LIMIT" default:"20"`
	RedeemWindow    time.Duration `envconfig:"PRIMEX_AUTH_RATE_LIMIT_REDEEM_WINDOW" default:"5m"`
	RedeemCodeLimit int           `envconfig:"PRIMEX_AUTH_RATE_LIMIT_REDEEM_CODE_LIMIT" default:"5"`
	RedeemIPLimit   int           `envconfig:"PRIMEX_AUTH_RATE_LIMIT_REDEEM_IP_LIMIT" default:"20"`
}

// ProvisioningConfig tunes the account-provisioning engines.
type ProvisioningConfig struct {
	UsernameAttempts int `envconfig:"PRIMEX_PROVISIONING_USERNAME_ATTEMPTS" default:"5"`
	PasswordLength   int `envconfig:"PRIMEX_PROVISIONING_PASSWORD_LENGTH" default:"12"`
	CodeBatchMax     int `envconfig:"PRIMEX_PROVISIONING_CODE_BATCH_MAX" default:"1000"`
}

// SweepConfig tunes the scheduled expiry sweep.
type SweepConfig struct {
	Interval time.Duration `envconfig:"PRIMEX_SWEEP_INTERVAL" default:"1h"`
	LockTTL  time.Duration `envconfig:"PRIMEX_SWEEP_LOCK_TTL" default:"50m"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"PRIMEX_AUTO_MIGRATE" default:"false"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
