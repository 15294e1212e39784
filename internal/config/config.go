package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"telephone-billing/internal/tariff"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Config holds all configuration required by the API process.
// Values come from the environment, optionally seeded by an env file
// (CONFIG_FILE, default ".env"); real environment variables win.
// No business logic should depend on raw environment variables.
type Config struct {
	App     AppConfig
	Storage StorageConfig
	DB      DBConfig
	Redis   RedisConfig
	Auth    AuthConfig
	Tariff  TariffConfig
}

type AppConfig struct {
	Env      string
	Port     int
	LogLevel string
}

const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"
)

type StorageConfig struct {
	Driver string
}

type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string

	// Accepts: disable, require, verify-ca, verify-full
	SSLMode     string
	AutoMigrate bool
}

// RedisConfig is optional: an empty Host disables the bill cache.
type RedisConfig struct {
	Host         string
	Port         int
	Password     string
	DB           int
	BillCacheTTL time.Duration
}

// AuthConfig is optional outside production: an empty JWTSecret disables
// bearer auth on the API.
type AuthConfig struct {
	JWTSecret      string
	JWTIssuer      string
	JWTAudience    string
	AccessTokenTTL time.Duration
}

// TariffConfig keeps charges as decimal strings so they are parsed exactly.
type TariffConfig struct {
	StandardHourStart      int
	StandardHourEnd        int
	StandardMinuteCharge   string
	ReducedMinuteCharge    string
	StandardStandingCharge string
	ReducedStandingCharge  string
	Timezone               string
}

var defaults = map[string]any{
	"APP_ENV":                         "local",
	"APP_PORT":                        8080,
	"STORAGE_DRIVER":                  StorageMemory,
	"DB_PORT":                         5432,
	"DB_AUTO_MIGRATE":                 true,
	"REDIS_PORT":                      6379,
	"BILL_CACHE_TTL":                  "5m",
	"JWT_TTL":                         "1h",
	"TARIFF_STANDARD_HOUR_START":      6,
	"TARIFF_STANDARD_HOUR_END":        22,
	"TARIFF_STANDARD_MINUTE_CHARGE":   "0.09",
	"TARIFF_REDUCED_MINUTE_CHARGE":    "0.00",
	"TARIFF_STANDARD_STANDING_CHARGE": "0.36",
	"TARIFF_REDUCED_STANDING_CHARGE":  "0.36",
	"TARIFF_TIMEZONE":                 "UTC",
}

func Load() (Config, error) {
	v := viper.New()
	for k, d := range defaults {
		v.SetDefault(k, d)
	}
	v.AutomaticEnv()

	file := strings.TrimSpace(os.Getenv("CONFIG_FILE"))
	if file == "" {
		file = ".env"
	}
	if _, err := os.Stat(file); err == nil {
		v.SetConfigFile(file)
		v.SetConfigType("env")
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read %s: %w", file, err)
		}
	}
	return FromViper(v)
}

// FromViper builds and validates a Config from v.
func FromViper(v *viper.Viper) (Config, error) {
	var parseErrs []error
	getInt := func(key string) int {
		n, err := castInt(v.Get(key))
		if err != nil {
			parseErrs = append(parseErrs, fmt.Errorf("%s must be an integer, got %q", key, v.GetString(key)))
		}
		return n
	}
	getDuration := func(key string) time.Duration {
		raw := strings.TrimSpace(v.GetString(key))
		if raw == "" {
			return 0
		}
		d, err := time.ParseDuration(raw)
		if err != nil {
			parseErrs = append(parseErrs, fmt.Errorf("%s must be a duration, got %q", key, raw))
		}
		return d
	}

	c := Config{}
	c.App.Env = strings.TrimSpace(v.GetString("APP_ENV"))
	c.App.Port = getInt("APP_PORT")
	c.App.LogLevel = strings.TrimSpace(v.GetString("LOG_LEVEL"))

	c.Storage.Driver = strings.TrimSpace(v.GetString("STORAGE_DRIVER"))

	c.DB.Host = strings.TrimSpace(v.GetString("DB_HOST"))
	c.DB.Port = getInt("DB_PORT")
	c.DB.User = strings.TrimSpace(v.GetString("DB_USER"))
	c.DB.Password = v.GetString("DB_PASSWORD")
	c.DB.Name = strings.TrimSpace(v.GetString("DB_NAME"))
	c.DB.SSLMode = strings.TrimSpace(v.GetString("DB_SSLMODE"))
	c.DB.AutoMigrate = v.GetBool("DB_AUTO_MIGRATE")

	c.Redis.Host = strings.TrimSpace(v.GetString("REDIS_HOST"))
	c.Redis.Port = getInt("REDIS_PORT")
	c.Redis.Password = v.GetString("REDIS_PASSWORD")
	c.Redis.DB = getInt("REDIS_DB")
	c.Redis.BillCacheTTL = getDuration("BILL_CACHE_TTL")

	c.Auth.JWTSecret = v.GetString("JWT_SECRET")
	c.Auth.JWTIssuer = strings.TrimSpace(v.GetString("JWT_ISSUER"))
	c.Auth.JWTAudience = strings.TrimSpace(v.GetString("JWT_AUDIENCE"))
	c.Auth.AccessTokenTTL = getDuration("JWT_TTL")

	c.Tariff.StandardHourStart = getInt("TARIFF_STANDARD_HOUR_START")
	c.Tariff.StandardHourEnd = getInt("TARIFF_STANDARD_HOUR_END")
	c.Tariff.StandardMinuteCharge = strings.TrimSpace(v.GetString("TARIFF_STANDARD_MINUTE_CHARGE"))
	c.Tariff.ReducedMinuteCharge = strings.TrimSpace(v.GetString("TARIFF_REDUCED_MINUTE_CHARGE"))
	c.Tariff.StandardStandingCharge = strings.TrimSpace(v.GetString("TARIFF_STANDARD_STANDING_CHARGE"))
	c.Tariff.ReducedStandingCharge = strings.TrimSpace(v.GetString("TARIFF_REDUCED_STANDING_CHARGE"))
	c.Tariff.Timezone = strings.TrimSpace(v.GetString("TARIFF_TIMEZONE"))

	if err := joinErrors(parseErrs); err != nil {
		return Config{}, err
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func (c Config) Validate() error {
	var errs []error

	if c.App.Env == "" {
		errs = append(errs, errors.New("APP_ENV is required"))
	} else if !isValidEnv(c.App.Env) {
		errs = append(errs, fmt.Errorf("APP_ENV must be one of local, dev, staging, production, got %q", c.App.Env))
	}
	if c.App.Port <= 0 || c.App.Port > 65535 {
		errs = append(errs, fmt.Errorf("APP_PORT must be a valid port, got %d", c.App.Port))
	}

	switch c.Storage.Driver {
	case StorageMemory:
		if c.IsProduction() {
			errs = append(errs, errors.New("STORAGE_DRIVER=memory is not allowed in production"))
		}
	case StoragePostgres:
		errs = append(errs, c.DB.validate(c.IsProduction())...)
	default:
		errs = append(errs, fmt.Errorf("STORAGE_DRIVER must be one of memory, postgres, got %q", c.Storage.Driver))
	}

	if c.Redis.Host != "" {
		if c.Redis.Port <= 0 || c.Redis.Port > 65535 {
			errs = append(errs, fmt.Errorf("REDIS_PORT must be a valid port, got %d", c.Redis.Port))
		}
		if c.Redis.BillCacheTTL <= 0 {
			errs = append(errs, errors.New("BILL_CACHE_TTL must be positive"))
		}
	}

	if c.Auth.JWTSecret == "" {
		if c.IsProduction() {
			errs = append(errs, errors.New("JWT_SECRET is required in production"))
		}
	} else {
		if c.IsProduction() {
			if c.Auth.JWTIssuer == "" {
				errs = append(errs, errors.New("JWT_ISSUER is required in production"))
			}
			if c.Auth.JWTAudience == "" {
				errs = append(errs, errors.New("JWT_AUDIENCE is required in production"))
			}
		}
		if c.Auth.AccessTokenTTL <= 0 {
			errs = append(errs, errors.New("JWT_TTL must be positive"))
		}
	}

	if _, err := c.TariffConfig(); err != nil {
		errs = append(errs, err)
	}

	return joinErrors(errs)
}

func (d DBConfig) validate(production bool) []error {
	var errs []error
	if d.Host == "" {
		errs = append(errs, errors.New("DB_HOST is required"))
	}
	if d.Port <= 0 || d.Port > 65535 {
		errs = append(errs, fmt.Errorf("DB_PORT must be a valid port, got %d", d.Port))
	}
	if d.User == "" {
		errs = append(errs, errors.New("DB_USER is required"))
	}
	if d.Name == "" {
		errs = append(errs, errors.New("DB_NAME is required"))
	}
	if d.SSLMode == "" && production {
		errs = append(errs, errors.New("DB_SSLMODE is required in production"))
	}
	if d.SSLMode != "" && !isValidSSLMode(d.SSLMode) {
		errs = append(errs, fmt.Errorf("DB_SSLMODE must be one of disable, require, verify-ca, verify-full, got %q", d.SSLMode))
	}
	return errs
}

// TariffConfig converts the tariff settings into engine configuration.
func (c Config) TariffConfig() (tariff.Config, error) {
	var errs []error
	charge := func(key, raw string) decimal.Decimal {
		d, err := decimal.NewFromString(raw)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s must be a decimal, got %q", key, raw))
		}
		return d
	}

	out := tariff.Config{
		StandardHourStart:      c.Tariff.StandardHourStart,
		StandardHourEnd:        c.Tariff.StandardHourEnd,
		StandardMinuteCharge:   charge("TARIFF_STANDARD_MINUTE_CHARGE", c.Tariff.StandardMinuteCharge),
		ReducedMinuteCharge:    charge("TARIFF_REDUCED_MINUTE_CHARGE", c.Tariff.ReducedMinuteCharge),
		StandardStandingCharge: charge("TARIFF_STANDARD_STANDING_CHARGE", c.Tariff.StandardStandingCharge),
		ReducedStandingCharge:  charge("TARIFF_REDUCED_STANDING_CHARGE", c.Tariff.ReducedStandingCharge),
	}
	tz := c.Tariff.Timezone
	if tz == "" {
		tz = "UTC"
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		errs = append(errs, fmt.Errorf("TARIFF_TIMEZONE is not a known location: %q", tz))
	}
	out.Location = loc

	if len(errs) == 0 {
		if err := out.Validate(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := joinErrors(errs); err != nil {
		return tariff.Config{}, err
	}
	return out, nil
}

func (c Config) IsProduction() bool {
	return c.App.Env == "production"
}

func (c Config) HTTPAddr() string {
	return fmt.Sprintf(":%d", c.App.Port)
}

func (c Config) PostgresDSN() string {
	sslMode := c.DB.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	// Avoid logging this string; it contains secrets.
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host,
		c.DB.Port,
		c.DB.User,
		c.DB.Password,
		c.DB.Name,
		sslMode,
	)
}

func (c Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

func castInt(v any) (int, error) {
	switch n := v.(type) {
	case nil:
		return 0, nil
	case int:
		return n, nil
	case string:
		if strings.TrimSpace(n) == "" {
			return 0, nil
		}
		return strconv.Atoi(strings.TrimSpace(n))
	default:
		return 0, fmt.Errorf("unsupported type %T", v)
	}
}

func isValidEnv(v string) bool {
	switch v {
	case "local", "dev", "staging", "production":
		return true
	default:
		return false
	}
}

func isValidSSLMode(v string) bool {
	switch v {
	case "disable", "require", "verify-ca", "verify-full":
		return true
	default:
		return false
	}
}

func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	if len(errs) == 1 {
		return errs[0]
	}
	var b strings.Builder
	b.WriteString("config errors:\n")
	for _, e := range errs {
		b.WriteString("- ")
		b.WriteString(e.Error())
		b.WriteString("\n")
	}
	return errors.New(strings.TrimSpace(b.String()))
}
