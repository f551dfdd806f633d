package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
)

// Supported database drivers.
const (
	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// AppConfig holds the application configuration. Sensitive values have no
// defaults in code and must come from config.json, a .env file or the
// environment.
type AppConfig struct {
	AppPort            string        `envconfig:"APP_PORT"`
	JWTSecret          string        `envconfig:"JWT_SECRET"`
	TokenTTL           time.Duration `envconfig:"TOKEN_TTL"`
	RateLimitPerMinute int           `envconfig:"RATE_LIMIT_PER_MINUTE"`
	AllowedOrigins     []string      `envconfig:"CORS_ALLOWED_ORIGINS"`
	AdminUsernames     []string      `envconfig:"ADMIN_USERNAMES"`
	// Registration throttling per IP; negative values disable a check
	RegisterCooldown       time.Duration `envconfig:"REGISTER_COOLDOWN"`
	RegisterMaxPerIPPerDay int           `envconfig:"REGISTER_MAX_PER_IP_PER_DAY"`
	// Gin framework configuration
	GinMode string `envconfig:"GIN_MODE"`
	GinPath string `envconfig:"GIN_PATH"`
	// Claiming
	ClaimCooldown           time.Duration `envconfig:"CLAIM_COOLDOWN"`
	ClaimBaseAmount         string        `envconfig:"CLAIM_BASE_AMOUNT"`
	ReferralBonus           string        `envconfig:"CLAIM_REFERRAL_BONUS"`
	ClaimLockTTL            time.Duration `envconfig:"CLAIM_LOCK_TTL"`
	ClaimRateLimitPerMinute int           `envconfig:"CLAIM_RATE_LIMIT_PER_MINUTE"`
	UsernameChangeWindow    time.Duration `envconfig:"USERNAME_CHANGE_WINDOW"`
	// Database
	DBDriver    string `envconfig:"DB_DRIVER"`
	DatabaseURI string `envconfig:"DATABASE_URI"`
	DBHost      string `envconfig:"DB_HOST"`
	DBPort      string `envconfig:"DB_PORT"`
	DBUser      string `envconfig:"DB_USER"`
	DBPassword  string `envconfig:"DB_PASSWORD"`
	DBName      string `envconfig:"DB_NAME"`
	DBSSLMode   string `envconfig:"DB_SSLMODE"`
	// Redis for caching, claim locks and token revocation; empty host disables it
	RedisHost     string `envconfig:"REDIS_HOST"`
	RedisPort     int    `envconfig:"REDIS_PORT"`
	RedisDB       int    `envconfig:"REDIS_DB"`
	RedisPassword string `envconfig:"REDIS_PASSWORD"`
	// Logging configuration
	LogLevel      string `envconfig:"LOG_LEVEL"`
	LogPath       string `envconfig:"LOG_PATH"`
	LogMaxSizeMB  int    `envconfig:"LOG_MAX_SIZE_MB"`
	LogMaxBackups int    `envconfig:"LOG_MAX_BACKUPS"`
	LogMaxAgeDays int    `envconfig:"LOG_MAX_AGE_DAYS"`
	LogCompress   bool   `envconfig:"LOG_COMPRESS"`
	// Media library; S3-compatible storage when MediaBucket is set, local disk otherwise
	MediaBucket        string `envconfig:"MEDIA_BUCKET"`
	MediaEndpoint      string `envconfig:"MEDIA_ENDPOINT"`
	MediaRegion        string `envconfig:"MEDIA_REGION"`
	MediaAccessKey     string `envconfig:"MEDIA_ACCESS_KEY"`
	MediaSecretKey     string `envconfig:"MEDIA_SECRET_KEY"`
	MediaPublicBaseURL string `envconfig:"MEDIA_PUBLIC_BASE_URL"`
	MediaLocalDir      string `envconfig:"MEDIA_LOCAL_DIR"`
	MediaMaxBytes      int64  `envconfig:"MEDIA_MAX_BYTES"`
	// Scheduled jobs
	JobsDisabled     bool   `envconfig:"JOBS_DISABLED"`
	LapsedStreakSpec string `envconfig:"JOBS_LAPSED_STREAK_SPEC"`
	LeaderboardSpec  string `envconfig:"JOBS_LEADERBOARD_SPEC"`
}

// BaseAmount is the parsed claim.base_amount.
func (c AppConfig) BaseAmount() decimal.Decimal {
	return parseAmount(c.ClaimBaseAmount, decimal.NewFromInt(1))
}

// ReferralBonusAmount is the parsed claim.referral_bonus.
func (c AppConfig) ReferralBonusAmount() decimal.Decimal {
	return parseAmount(c.ReferralBonus, decimal.NewFromInt(5))
}

// IsAdminUsername reports whether username is listed in AdminUsernames.
func (c AppConfig) IsAdminUsername(username string) bool {
	for _, name := range c.AdminUsernames {
		if strings.EqualFold(strings.TrimSpace(name), username) {
			return true
		}
	}
	return false
}

// Validate rejects configurations the server cannot run with.
func (c AppConfig) Validate() error {
	var errs []error
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET must be set"))
	}
	if c.ClaimCooldown <= 0 {
		errs = append(errs, fmt.Errorf("claim cooldown must be positive, got %s", c.ClaimCooldown))
	}
	switch c.DBDriver {
	case DriverMySQL, DriverPostgres, DriverMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown database driver %q", c.DBDriver))
	}
	if d, err := decimal.NewFromString(c.ClaimBaseAmount); err != nil {
		errs = append(errs, fmt.Errorf("invalid claim base amount %q", c.ClaimBaseAmount))
	} else if d.IsNegative() {
		errs = append(errs, fmt.Errorf("claim base amount must not be negative, got %s", d))
	}
	if d, err := decimal.NewFromString(c.ReferralBonus); err != nil {
		errs = append(errs, fmt.Errorf("invalid referral bonus %q", c.ReferralBonus))
	} else if d.IsNegative() {
		errs = append(errs, fmt.Errorf("referral bonus must not be negative, got %s", d))
	}
	return errors.Join(errs...)
}

var (
	cfg    AppConfig
	loaded bool
	mu     sync.RWMutex
)

// Load loads the application configuration. It should be called once during boot.
func Load() AppConfig {
	mu.Lock()
	defer mu.Unlock()
	if loaded {
		return cfg
	}

	c, err := Build(filepath.Join("config", "config.json"))
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}
	cfg = c
	loaded = true
	return cfg
}

// Build assembles a configuration without caching it.
// Precedence: .env -> config.json -> defaults -> environment variable overrides.
func Build(jsonPath string) (AppConfig, error) {
	var c AppConfig

	// .env only fills variables that are not already set in the environment.
	_ = godotenv.Load()

	if err := loadJSONConfig(jsonPath, &c); err != nil {
		return c, fmt.Errorf("read %s: %w", jsonPath, err)
	}
	applyDefaults(&c)
	if err := applyEnvOverrides(&c); err != nil {
		return c, err
	}
	return c, c.Validate()
}

// Get returns the cached configuration, loading it if necessary.
func Get() AppConfig {
	mu.RLock()
	if loaded {
		defer mu.RUnlock()
		return cfg
	}
	mu.RUnlock()
	return Load()
}

// Override replaces the cached configuration. Tests use it to run without
// config files.
func Override(c AppConfig) {
	mu.Lock()
	defer mu.Unlock()
	applyDefaults(&c)
	cfg = c
	loaded = true
}

// loadJSONConfig reads the grouped JSON file into out if present. A missing
// file is not an error; invalid JSON is.
func loadJSONConfig(path string, out *AppConfig) error {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()

	var raw map[string]any
	if err := json.NewDecoder(f).Decode(&raw); err != nil {
		return err
	}

	getString := func(m map[string]any, key string) string {
		if s, ok := m[key].(string); ok {
			return s
		}
		return ""
	}
	getInt := func(m map[string]any, key string) int {
		if f, ok := m[key].(float64); ok {
			return int(f)
		}
		return 0
	}
	getBool := func(m map[string]any, key string) bool {
		b, _ := m[key].(bool)
		return b
	}
	getDuration := func(m map[string]any, key string) time.Duration {
		switch v := m[key].(type) {
		case string:
			d, err := time.ParseDuration(v)
			if err != nil {
				log.Printf("config: ignoring invalid duration %s=%q", key, v)
			}
			return d
		case float64:
			return time.Duration(v) * time.Second
		}
		return 0
	}
	getAmount := func(m map[string]any, key string) string {
		switch v := m[key].(type) {
		case string:
			return v
		case float64:
			return decimal.NewFromFloat(v).String()
		}
		return ""
	}
	getStringSlice := func(m map[string]any, key string) []string {
		arr, ok := m[key].([]any)
		if !ok {
			return nil
		}
		res := make([]string, 0, len(arr))
		for _, it := range arr {
			if s, ok := it.(string); ok {
				res = append(res, s)
			}
		}
		return res
	}

	if app, ok := raw["app"].(map[string]any); ok {
		out.AppPort = getString(app, "AppPort")
		out.JWTSecret = getString(app, "JWTSecret")
		out.TokenTTL = getDuration(app, "TokenTTL")
		out.RateLimitPerMinute = getInt(app, "RateLimitPerMinute")
		out.AllowedOrigins = getStringSlice(app, "AllowedOrigins")
		out.AdminUsernames = getStringSlice(app, "AdminUsernames")
	}

	if rg, ok := raw["register"].(map[string]any); ok {
		out.RegisterCooldown = getDuration(rg, "Cooldown")
		out.RegisterMaxPerIPPerDay = getInt(rg, "MaxPerIPPerDay")
	}

	if claim, ok := raw["claim"].(map[string]any); ok {
		out.ClaimCooldown = getDuration(claim, "Cooldown")
		out.ClaimBaseAmount = getAmount(claim, "BaseAmount")
		out.ReferralBonus = getAmount(claim, "ReferralBonus")
		out.ClaimLockTTL = getDuration(claim, "LockTTL")
		out.ClaimRateLimitPerMinute = getInt(claim, "RateLimitPerMinute")
		out.UsernameChangeWindow = getDuration(claim, "UsernameChangeWindow")
	}

	if dbs, ok := raw["database"].(map[string]any); ok {
		out.DBDriver = getString(dbs, "Driver")
		out.DatabaseURI = getString(dbs, "DatabaseURI")
		out.DBHost = getString(dbs, "DBHost")
		out.DBPort = getString(dbs, "DBPort")
		out.DBUser = getString(dbs, "DBUser")
		out.DBPassword = getString(dbs, "DBPassword")
		out.DBName = getString(dbs, "DBName")
		out.DBSSLMode = getString(dbs, "SSLMode")
	}

	if rds, ok := raw["redis"].(map[string]any); ok {
		out.RedisHost = getString(rds, "RedisHost")
		out.RedisPort = getInt(rds, "RedisPort")
		out.RedisDB = getInt(rds, "RedisDB")
		out.RedisPassword = getString(rds, "RedisPassword")
	}

	if lg, ok := raw["log"].(map[string]any); ok {
		out.LogLevel = getString(lg, "Level")
		out.LogPath = getString(lg, "Path")
		out.GinMode = getString(lg, "GinMode")
		out.GinPath = getString(lg, "GinPath")
		out.LogMaxSizeMB = getInt(lg, "MaxSizeMB")
		out.LogMaxBackups = getInt(lg, "MaxBackups")
		out.LogMaxAgeDays = getInt(lg, "MaxAgeDays")
		out.LogCompress = getBool(lg, "Compress")
	}

	if md, ok := raw["media"].(map[string]any); ok {
		out.MediaBucket = getString(md, "Bucket")
		out.MediaEndpoint = getString(md, "Endpoint")
		out.MediaRegion = getString(md, "Region")
		out.MediaAccessKey = getString(md, "AccessKey")
		out.MediaSecretKey = getString(md, "SecretKey")
		out.MediaPublicBaseURL = getString(md, "PublicBaseURL")
		out.MediaLocalDir = getString(md, "LocalDir")
		out.MediaMaxBytes = int64(getInt(md, "MaxBytes"))
	}

	if jobs, ok := raw["jobs"].(map[string]any); ok {
		out.JobsDisabled = getBool(jobs, "Disabled")
		out.LapsedStreakSpec = getString(jobs, "LapsedStreakSpec")
		out.LeaderboardSpec = getString(jobs, "LeaderboardSpec")
	}

	return nil
}

// applyDefaults sets sane defaults for zero-value fields.
func applyDefaults(c *AppConfig) {
	if c.AppPort == "" {
		c.AppPort = "8080"
	}
	if c.TokenTTL == 0 {
		c.TokenTTL = 72 * time.Hour
	}
	if c.GinMode == "" {
		c.GinMode = "release"
	}
	if c.GinPath == "" {
		c.GinPath = "logs/go_gin.log"
	}
	if c.RateLimitPerMinute == 0 {
		c.RateLimitPerMinute = 60
	}
	if len(c.AllowedOrigins) == 0 {
		c.AllowedOrigins = []string{"*"}
	}
	if c.RegisterCooldown == 0 {
		c.RegisterCooldown = 10 * time.Second
	}
	if c.RegisterMaxPerIPPerDay == 0 {
		c.RegisterMaxPerIPPerDay = 5
	}
	if c.ClaimCooldown == 0 {
		c.ClaimCooldown = 6 * time.Hour
	}
	if c.ClaimBaseAmount == "" {
		c.ClaimBaseAmount = "1"
	}
	if c.ReferralBonus == "" {
		c.ReferralBonus = "5"
	}
	if c.ClaimLockTTL == 0 {
		c.ClaimLockTTL = 10 * time.Second
	}
	if c.ClaimRateLimitPerMinute == 0 {
		c.ClaimRateLimitPerMinute = 10
	}
	if c.UsernameChangeWindow == 0 {
		c.UsernameChangeWindow = 30 * 24 * time.Hour
	}
	if c.DBDriver == "" {
		c.DBDriver = DriverMySQL
	}
	if c.DBHost == "" {
		c.DBHost = "127.0.0.1"
	}
	if c.DBPort == "" {
		switch c.DBDriver {
		case DriverPostgres:
			c.DBPort = "5432"
		default:
			c.DBPort = "3306"
		}
	}
	if c.DBUser == "" {
		c.DBUser = "root"
	}
	if c.DBName == "" {
		c.DBName = "bottlecaps"
	}
	if c.DBSSLMode == "" {
		c.DBSSLMode = "disable"
	}
	if c.RedisPort == 0 {
		c.RedisPort = 6379
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.LogMaxSizeMB == 0 {
		c.LogMaxSizeMB = 100
	}
	if c.LogMaxBackups == 0 {
		c.LogMaxBackups = 3
	}
	if c.LogMaxAgeDays == 0 {
		c.LogMaxAgeDays = 7
	}
	if c.MediaRegion == "" {
		c.MediaRegion = "auto"
	}
	if c.MediaLocalDir == "" {
		c.MediaLocalDir = filepath.Join("static", "uploads", "media")
	}
	if c.MediaMaxBytes == 0 {
		c.MediaMaxBytes = 10 << 20
	}
	if c.LapsedStreakSpec == "" {
		c.LapsedStreakSpec = "@hourly"
	}
	if c.LeaderboardSpec == "" {
		c.LeaderboardSpec = "*/5 * * * *"
	}
}

// applyEnvOverrides maps environment variables onto config values. Unset
// variables leave the current value untouched.
func applyEnvOverrides(c *AppConfig) error {
	if err := envconfig.Process("", c); err != nil {
		return fmt.Errorf("env overrides: %w", err)
	}
	c.AllowedOrigins = trimList(c.AllowedOrigins)
	c.AdminUsernames = trimList(c.AdminUsernames)
	return nil
}

func trimList(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func parseAmount(s string, def decimal.Decimal) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return def
	}
	return d
}
