package config

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// AppConfig holds environment driven configuration values.
// Sensitive data should never have defaults inside code and must be provided via env files or the environment.
type AppConfig struct {
	AppPort            string
	SiteTitle          string
	JWTSecret          string
	TokenTTLHours      int
	CookieSecure       bool
	RateLimitPerMinute int
	AllowedOrigins     []string
	ListPageSize       int
	// Database
	DBDriver    string
	DatabaseURI string
	DBHost      string
	DBPort      string
	DBUser      string
	DBPassword  string
	DBName      string
	// Third-party login
	GitHubClientID     string
	GitHubClientSecret string
	GoogleClientID     string
	GoogleClientSecret string
	OAuthRedirectBase  string
	// Gin framework configuration
	GinMode string
	GinPath string
	// Redis backs the token blacklist and OAuth state; empty host keeps both in memory
	RedisHost     string
	RedisPort     int
	RedisDB       int
	RedisPassword string
	// Logging configuration
	LogLevel      string
	LogPath       string
	LogMaxSizeMB  int
	LogMaxBackups int
	LogMaxAgeDays int
	LogCompress   bool
	// Admins hold every permission
	AdminUsernames []string
}

// fileConfig mirrors the grouped layout of config/config.json.
type fileConfig struct {
	App struct {
		AppPort            string   `json:"AppPort"`
		SiteTitle          string   `json:"SiteTitle"`
		JWTSecret          string   `json:"JWTSecret"`
		TokenTTLHours      int      `json:"TokenTTLHours"`
		CookieSecure       bool     `json:"CookieSecure"`
		RateLimitPerMinute int      `json:"RateLimitPerMinute"`
		AllowedOrigins     []string `json:"AllowedOrigins"`
		ListPageSize       int      `json:"ListPageSize"`
		AdminUsernames     []string `json:"AdminUsernames"`
		GinMode            string   `json:"GinMode"`
		GinPath            string   `json:"GinPath"`
	} `json:"app"`
	Database struct {
		Driver   string `json:"Driver"`
		URI      string `json:"URI"`
		Host     string `json:"Host"`
		Port     string `json:"Port"`
		User     string `json:"User"`
		Password string `json:"Password"`
		Name     string `json:"Name"`
	} `json:"database"`
	OAuth struct {
		GitHubClientID     string `json:"GitHubClientID"`
		GitHubClientSecret string `json:"GitHubClientSecret"`
		GoogleClientID     string `json:"GoogleClientID"`
		GoogleClientSecret string `json:"GoogleClientSecret"`
		RedirectBase       string `json:"RedirectBase"`
	} `json:"oauth"`
	Redis struct {
		Host     string `json:"Host"`
		Port     int    `json:"Port"`
		DB       int    `json:"DB"`
		Password string `json:"Password"`
	} `json:"redis"`
	Log struct {
		Level      string `json:"Level"`
		Path       string `json:"Path"`
		MaxSizeMB  int    `json:"MaxSizeMB"`
		MaxBackups int    `json:"MaxBackups"`
		MaxAgeDays int    `json:"MaxAgeDays"`
		Compress   bool   `json:"Compress"`
	} `json:"log"`
}

var cfg AppConfig
var loaded bool

// Load loads the application configuration. It should be called once during boot.
func Load() AppConfig {
	if loaded {
		return cfg
	}

	// Precedence: .env -> config/config.json -> defaults -> environment variable overrides
	_ = godotenv.Load()

	if err := loadJSONConfig(filepath.Join("config", "config.json"), &cfg); err != nil {
		log.Fatalf("invalid config/config.json: %v", err)
	}

	applyDefaults(&cfg)
	applyEnvOverrides(&cfg)

	if cfg.JWTSecret == "" {
		log.Fatal("JWT_SECRET must be set in environment variables")
	}

	loaded = true
	return cfg
}

// Get returns the cached configuration, loading it if necessary.
func Get() AppConfig {
	if !loaded {
		return Load()
	}
	return cfg
}

// Set replaces the cached configuration. Defaults are applied to zero values.
func Set(c AppConfig) {
	applyDefaults(&c)
	cfg = c
	loaded = true
}

// IsAdmin reports whether username is listed in AdminUsernames (case-insensitive).
func (c AppConfig) IsAdmin(username string) bool {
	uname := strings.TrimSpace(username)
	if uname == "" {
		return false
	}
	for _, u := range c.AdminUsernames {
		if strings.EqualFold(strings.TrimSpace(u), uname) {
			return true
		}
	}
	return false
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

// loadJSONConfig reads JSON file into out if present. Returns error only for invalid JSON.
func loadJSONConfig(path string, out *AppConfig) error {
	f, err := os.Open(path)
	if err != nil {
		return nil // silently ignore missing file
	}
	defer f.Close()

	var fc fileConfig
	if err := json.NewDecoder(f).Decode(&fc); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}

	out.AppPort = fc.App.AppPort
	out.SiteTitle = fc.App.SiteTitle
	out.JWTSecret = fc.App.JWTSecret
	out.TokenTTLHours = fc.App.TokenTTLHours
	out.CookieSecure = fc.App.CookieSecure
	out.RateLimitPerMinute = fc.App.RateLimitPerMinute
	out.AllowedOrigins = fc.App.AllowedOrigins
	out.ListPageSize = fc.App.ListPageSize
	out.AdminUsernames = fc.App.AdminUsernames
	out.GinMode = fc.App.GinMode
	out.GinPath = fc.App.GinPath

	out.DBDriver = fc.Database.Driver
	out.DatabaseURI = fc.Database.URI
	out.DBHost = fc.Database.Host
	out.DBPort = fc.Database.Port
	out.DBUser = fc.Database.User
	out.DBPassword = fc.Database.Password
	out.DBName = fc.Database.Name

	out.GitHubClientID = fc.OAuth.GitHubClientID
	out.GitHubClientSecret = fc.OAuth.GitHubClientSecret
	out.GoogleClientID = fc.OAuth.GoogleClientID
	out.GoogleClientSecret = fc.OAuth.GoogleClientSecret
	out.OAuthRedirectBase = fc.OAuth.RedirectBase

	out.RedisHost = fc.Redis.Host
	out.RedisPort = fc.Redis.Port
	out.RedisDB = fc.Redis.DB
	out.RedisPassword = fc.Redis.Password

	out.LogLevel = fc.Log.Level
	out.LogPath = fc.Log.Path
	out.LogMaxSizeMB = fc.Log.MaxSizeMB
	out.LogMaxBackups = fc.Log.MaxBackups
	out.LogMaxAgeDays = fc.Log.MaxAgeDays
	out.LogCompress = fc.Log.Compress
	return nil
}

func applyDefaults(c *AppConfig) {
	if c.AppPort == "" {
		c.AppPort = "8080"
	}
	if c.SiteTitle == "" {
		c.SiteTitle = "Questions"
	}
	if c.TokenTTLHours == 0 {
		c.TokenTTLHours = 72
	}
	if c.RateLimitPerMinute == 0 {
		c.RateLimitPerMinute = 60
	}
	if len(c.AllowedOrigins) == 0 {
		c.AllowedOrigins = []string{"*"}
	}
	if c.ListPageSize == 0 {
		c.ListPageSize = 20
	}
	if c.DBDriver == "" {
		c.DBDriver = "mysql"
	}
	if c.DBHost == "" {
		c.DBHost = "127.0.0.1"
	}
	if c.DBPort == "" {
		c.DBPort = "3306"
	}
	if c.DBName == "" {
		c.DBName = "qaforum"
	}
	if c.OAuthRedirectBase == "" {
		c.OAuthRedirectBase = "http://localhost:" + c.AppPort
	}
	if c.GinMode == "" {
		c.GinMode = "release"
	}
	if c.RedisPort == 0 {
		c.RedisPort = 6379
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

func applyEnvOverrides(c *AppConfig) {
	if v := getEnv("APP_PORT", ""); v != "" {
		c.AppPort = v
	}
	if v := getEnv("SITE_TITLE", ""); v != "" {
		c.SiteTitle = v
	}
	if v := getEnv("JWT_SECRET", ""); v != "" {
		c.JWTSecret = v
	}
	if v := getEnv("TOKEN_TTL_HOURS", ""); v != "" {
		c.TokenTTLHours = atoiOr(v, c.TokenTTLHours)
	}
	if v := getEnv("COOKIE_SECURE", ""); v != "" {
		c.CookieSecure = parseBool(v)
	}
	if v := getEnv("RATE_LIMIT_PER_MINUTE", ""); v != "" {
		c.RateLimitPerMinute = atoiOr(v, c.RateLimitPerMinute)
	}
	if v := getEnv("CORS_ALLOWED_ORIGINS", ""); v != "" {
		c.AllowedOrigins = splitList(v)
	}
	if v := getEnv("LIST_PAGE_SIZE", ""); v != "" {
		c.ListPageSize = atoiOr(v, c.ListPageSize)
	}
	if v := getEnv("ADMIN_USERNAMES", ""); v != "" {
		c.AdminUsernames = splitList(v)
	}
	if v := getEnv("GIN_MODE", ""); v != "" {
		c.GinMode = v
	}
	if v := getEnv("GIN_PATH", ""); v != "" {
		c.GinPath = v
	}
	if v := getEnv("DB_DRIVER", ""); v != "" {
		c.DBDriver = strings.ToLower(v)
	}
	if v := getEnv("DATABASE_URI", ""); v != "" {
		c.DatabaseURI = v
	}
	if v := getEnv("DB_HOST", ""); v != "" {
		c.DBHost = v
	}
	if v := getEnv("DB_PORT", ""); v != "" {
		c.DBPort = v
	}
	if v := getEnv("DB_USER", ""); v != "" {
		c.DBUser = v
	}
	if v := getEnv("DB_PASSWORD", ""); v != "" {
		c.DBPassword = v
	}
	if v := getEnv("DB_NAME", ""); v != "" {
		c.DBName = v
	}
	if v := getEnv("GITHUB_CLIENT_ID", ""); v != "" {
		c.GitHubClientID = v
	}
	if v := getEnv("GITHUB_CLIENT_SECRET", ""); v != "" {
		c.GitHubClientSecret = v
	}
	if v := getEnv("GOOGLE_CLIENT_ID", ""); v != "" {
		c.GoogleClientID = v
	}
	if v := getEnv("GOOGLE_CLIENT_SECRET", ""); v != "" {
		c.GoogleClientSecret = v
	}
	if v := getEnv("OAUTH_REDIRECT_BASE_URL", ""); v != "" {
		c.OAuthRedirectBase = strings.TrimRight(v, "/")
	}
	if v := getEnv("REDIS_HOST", ""); v != "" {
		c.RedisHost = v
	}
	if v := getEnv("REDIS_PORT", ""); v != "" {
		c.RedisPort = atoiOr(v, c.RedisPort)
	}
	if v := getEnv("REDIS_DB", ""); v != "" {
		c.RedisDB = atoiOr(v, c.RedisDB)
	}
	if v := getEnv("REDIS_PASSWORD", ""); v != "" {
		c.RedisPassword = v
	}
	if v := getEnv("LOG_LEVEL", ""); v != "" {
		c.LogLevel = strings.ToLower(v)
	}
	if v := getEnv("LOG_PATH", ""); v != "" {
		c.LogPath = v
	}
	if v := getEnv("LOG_MAX_SIZE_MB", ""); v != "" {
		c.LogMaxSizeMB = atoiOr(v, c.LogMaxSizeMB)
	}
	if v := getEnv("LOG_MAX_BACKUPS", ""); v != "" {
		c.LogMaxBackups = atoiOr(v, c.LogMaxBackups)
	}
	if v := getEnv("LOG_MAX_AGE_DAYS", ""); v != "" {
		c.LogMaxAgeDays = atoiOr(v, c.LogMaxAgeDays)
	}
	if v := getEnv("LOG_COMPRESS", ""); v != "" {
		c.LogCompress = parseBool(v)
	}
}

func atoiOr(s string, def int) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return def
	}
	return n
}

func parseBool(s string) bool {
	b, err := strconv.ParseBool(strings.TrimSpace(s))
	return err == nil && b
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
