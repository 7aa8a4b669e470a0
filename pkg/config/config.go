package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Address string `yaml:"address"`
		Port    int    `yaml:"port"`
	} `yaml:"server"`
	Storage struct {
		DBPath string `yaml:"db_path"`
	} `yaml:"storage"`
	Auth struct {
		JWTSecret string `yaml:"jwt_secret"`
		// Token lifetimes in minutes; zero means the built-in defaults
		// (30 for access, 10080 for refresh).
		AccessTTLMinutes  int `yaml:"access_ttl_minutes"`
		RefreshTTLMinutes int `yaml:"refresh_ttl_minutes"`
		// Per-IP limit on token issuance attempts.
		LoginRPS   float64 `yaml:"login_rps"`
		LoginBurst int     `yaml:"login_burst"`
		Bootstrap  struct {
			Username string `yaml:"username"`
			Password string `yaml:"password"`
		} `yaml:"bootstrap_admin"`
	} `yaml:"auth"`
	Security struct {
		TimeGate struct {
			Enabled   bool `yaml:"enabled"`
			OpenHour  int  `yaml:"open_hour"`
			CloseHour int  `yaml:"close_hour"`
		} `yaml:"time_gate"`
		RateGate struct {
			Enabled        bool `yaml:"enabled"`
			PostsPerMinute int  `yaml:"posts_per_minute"`
			WindowSeconds  int  `yaml:"window_seconds"`
		} `yaml:"rate_gate"`
	} `yaml:"security"`
	Validation struct {
		MaxBodyLen int `yaml:"max_body_len"`
	} `yaml:"validation"`
	Retention RetentionConfig `yaml:"retention"`
	Logging struct {
		Level string `yaml:"level"`
	} `yaml:"logging"`
}

// RetentionConfig controls the read-notification sweep schedule.
type RetentionConfig struct {
	Enabled bool   `yaml:"enabled"`
	Cron    string `yaml:"cron"`
	// Period is how long read notifications are kept, e.g. "720h".
	Period string `yaml:"period"`
}

// Addr returns the listen address in host:port form.
func (c *Config) Addr() string {
	host := c.Server.Address
	port := c.Server.Port
	if port == 0 {
		port = 8080
	}
	return fmt.Sprintf("%s:%d", host, port)
}

// Load reads and parses a YAML config file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return &c, nil
}

// LoadEffective loads the config file (if present) and applies PARLEY_*
// environment overrides on top. A missing file is not an error; env-only
// deployments are supported. The second return reports whether any env
// override was applied.
func LoadEffective(path string) (*Config, bool, error) {
	var c *Config
	if path != "" {
		if loaded, err := Load(path); err == nil {
			c = loaded
		} else if !os.IsNotExist(err) {
			return nil, false, err
		}
	}
	if c == nil {
		c = &Config{}
	}
	envUsed := false
	if v := os.Getenv("PARLEY_ADDR"); v != "" {
		envUsed = true
		host, port, ok := strings.Cut(v, ":")
		if ok {
			c.Server.Address = host
			if p, err := strconv.Atoi(port); err == nil {
				c.Server.Port = p
			}
		} else {
			c.Server.Address = v
		}
	}
	if v := os.Getenv("PARLEY_DB_PATH"); v != "" {
		envUsed = true
		c.Storage.DBPath = v
	}
	if v := os.Getenv("PARLEY_JWT_SECRET"); v != "" {
		envUsed = true
		c.Auth.JWTSecret = v
	}
	if v := os.Getenv("PARLEY_LOG_LEVEL"); v != "" {
		envUsed = true
		c.Logging.Level = v
	}
	return c, envUsed, nil
}

// RuntimeConfig holds derived runtime values that other packages may query
// at runtime (populated during startup by main after merging env+file).
type RuntimeConfig struct {
	JWTSecret         []byte
	AccessTTLMinutes  int
	RefreshTTLMinutes int
}

var (
	runtimeMu  sync.RWMutex
	runtimeCfg *RuntimeConfig
)

// SetRuntime sets the canonical runtime config used by the running server.
func SetRuntime(rc *RuntimeConfig) {
	runtimeMu.Lock()
	defer runtimeMu.Unlock()
	runtimeCfg = rc
}

// GetJWTSecret returns a copy of the configured JWT signing secret.
func GetJWTSecret() []byte {
	runtimeMu.RLock()
	defer runtimeMu.RUnlock()
	if runtimeCfg == nil || len(runtimeCfg.JWTSecret) == 0 {
		return nil
	}
	out := make([]byte, len(runtimeCfg.JWTSecret))
	copy(out, runtimeCfg.JWTSecret)
	return out
}

// GetAccessTTLMinutes returns the access token lifetime in minutes.
func GetAccessTTLMinutes() int {
	runtimeMu.RLock()
	defer runtimeMu.RUnlock()
	if runtimeCfg == nil || runtimeCfg.AccessTTLMinutes <= 0 {
		return 30
	}
	return runtimeCfg.AccessTTLMinutes
}

// GetRefreshTTLMinutes returns the refresh token lifetime in minutes.
func GetRefreshTTLMinutes() int {
	runtimeMu.RLock()
	defer runtimeMu.RUnlock()
	if runtimeCfg == nil || runtimeCfg.RefreshTTLMinutes <= 0 {
		return 7 * 24 * 60
	}
	return runtimeCfg.RefreshTTLMinutes
}
