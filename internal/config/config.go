package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/hpungsan/salawat/internal/contribution"
)

// Storage backends for the counter.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
)

// Config holds application configuration.
type Config struct {
	// Backend selects the counter store: "file" (default), "sqlite" or "redis".
	// The idempotency marker follows the backend: file keeps an event log next
	// to the state file, sqlite and redis track processed events in the same database.
	Backend string `json:"backend"`

	// StateFile is the JSON state file for the file backend.
	// Empty means <base dir>/counter.json. Relative paths resolve against the base dir.
	StateFile string `json:"state_file,omitempty"`

	RedisAddr string `json:"redis_addr,omitempty"`
	RedisDB   int    `json:"redis_db,omitempty"`
	RedisKey  string `json:"redis_key,omitempty"`

	// DedupTTLSeconds is how long processed event ids are remembered.
	DedupTTLSeconds int `json:"dedup_ttl_seconds"`

	// LockTimeoutMillis bounds how long a contribution waits for the store's writer slot.
	LockTimeoutMillis int `json:"lock_timeout_ms"`

	// HTTPAddr enables the status server (/total, /healthz, /metrics) when set.
	HTTPAddr string `json:"http_addr,omitempty"`

	LogLevel string `json:"log_level"`
	// LogFile additionally writes logs to a rotated file.
	LogFile string `json:"log_file,omitempty"`

	// PollTimeoutSeconds is the long-poll timeout passed to getUpdates.
	PollTimeoutSeconds int `json:"poll_timeout_seconds"`

	// Workers limits concurrently handled updates within one poll batch.
	Workers int `json:"workers"`

	// AllowedChannels restricts contributions to these chat ids.
	// Empty means every group chat the bot is in.
	AllowedChannels []string `json:"allowed_channels,omitempty"`

	ContributorPlaceholder string `json:"contributor_placeholder,omitempty"`
	ChannelPlaceholder     string `json:"channel_placeholder,omitempty"`

	// BotToken is only ever read from the environment.
	BotToken string `json:"-"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Backend:                BackendFile,
		RedisKey:               "salawat:total",
		DedupTTLSeconds:        86400,
		LockTimeoutMillis:      5000,
		LogLevel:               "info",
		PollTimeoutSeconds:     30,
		Workers:                8,
		ContributorPlaceholder: contribution.DefaultContributorLabel,
		ChannelPlaceholder:     contribution.DefaultChannelLabel,
	}
}

// DefaultBaseDir returns $SALAWAT_HOME, or ~/.salawat.
func DefaultBaseDir() (string, error) {
	if dir := strings.TrimSpace(os.Getenv("SALAWAT_HOME")); dir != "" {
		return dir, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(homeDir, ".salawat"), nil
}

// Load loads configuration from baseDir/config.json and applies environment overrides.
// Returns default config if the file doesn't exist.
// The baseDir parameter allows tests to use t.TempDir() instead of ~/.salawat.
func Load(baseDir string) (*Config, error) {
	cfg, err := loadFile(filepath.Join(baseDir, "config.json"))
	if err != nil {
		return nil, err
	}
	ApplyEnv(cfg)
	return cfg, nil
}

// loadFileRaw loads configuration from a specific file path.
// Returns zero-valued config if the file doesn't exist (not defaults).
func loadFileRaw(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Config{}, nil
		}
		return nil, err
	}

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", configPath, err)
	}

	return cfg, nil
}

// loadFile loads configuration from a specific file path.
// Returns default config if the file doesn't exist.
func loadFile(configPath string) (*Config, error) {
	cfg, err := loadFileRaw(configPath)
	if err != nil {
		return nil, err
	}
	return Merge(DefaultConfig(), cfg), nil
}

// ApplyEnv overrides cfg with SALAWAT_* variables and BOT_TOKEN.
// Unset or unparsable variables leave the current value in place.
func ApplyEnv(cfg *Config) {
	cfg.Backend = getEnv("SALAWAT_BACKEND", cfg.Backend)
	cfg.StateFile = getEnv("SALAWAT_STATE_FILE", cfg.StateFile)
	cfg.RedisAddr = getEnv("SALAWAT_REDIS_ADDR", cfg.RedisAddr)
	cfg.HTTPAddr = getEnv("SALAWAT_HTTP_ADDR", cfg.HTTPAddr)
	cfg.LogLevel = getEnv("SALAWAT_LOG_LEVEL", cfg.LogLevel)
	cfg.LogFile = getEnv("SALAWAT_LOG_FILE", cfg.LogFile)
	cfg.Workers = getInt("SALAWAT_WORKERS", cfg.Workers)
	cfg.BotToken = getEnv("BOT_TOKEN", cfg.BotToken)
}

// Merge combines base and overlay configs.
// Overlay values take precedence for scalars; arrays are merged and deduplicated.
func Merge(base, overlay *Config) *Config {
	result := &Config{
		Backend:                firstNonEmpty(overlay.Backend, base.Backend),
		StateFile:              firstNonEmpty(overlay.StateFile, base.StateFile),
		RedisAddr:              firstNonEmpty(overlay.RedisAddr, base.RedisAddr),
		RedisKey:               firstNonEmpty(overlay.RedisKey, base.RedisKey),
		HTTPAddr:               firstNonEmpty(overlay.HTTPAddr, base.HTTPAddr),
		LogLevel:               firstNonEmpty(overlay.LogLevel, base.LogLevel),
		LogFile:                firstNonEmpty(overlay.LogFile, base.LogFile),
		ContributorPlaceholder: firstNonEmpty(overlay.ContributorPlaceholder, base.ContributorPlaceholder),
		ChannelPlaceholder:     firstNonEmpty(overlay.ChannelPlaceholder, base.ChannelPlaceholder),
		BotToken:               firstNonEmpty(overlay.BotToken, base.BotToken),
	}

	// Scalars: overlay wins if non-zero, else base
	result.RedisDB = firstNonZero(overlay.RedisDB, base.RedisDB)
	result.DedupTTLSeconds = firstNonZero(overlay.DedupTTLSeconds, base.DedupTTLSeconds)
	result.LockTimeoutMillis = firstNonZero(overlay.LockTimeoutMillis, base.LockTimeoutMillis)
	result.PollTimeoutSeconds = firstNonZero(overlay.PollTimeoutSeconds, base.PollTimeoutSeconds)
	result.Workers = firstNonZero(overlay.Workers, base.Workers)

	// Arrays: merge and deduplicate
	result.AllowedChannels = mergeStringSlice(base.AllowedChannels, overlay.AllowedChannels)

	return result
}

// Validate reports configuration that cannot be served.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendFile, BackendSQLite:
	case BackendRedis:
		if strings.TrimSpace(c.RedisAddr) == "" {
			return errors.New("backend redis requires redis_addr")
		}
	default:
		return fmt.Errorf("unknown backend %q (want file, sqlite or redis)", c.Backend)
	}
	if c.DedupTTLSeconds <= 0 {
		return errors.New("dedup_ttl_seconds must be positive")
	}
	if c.LockTimeoutMillis <= 0 {
		return errors.New("lock_timeout_ms must be positive")
	}
	if c.PollTimeoutSeconds <= 0 {
		return errors.New("poll_timeout_seconds must be positive")
	}
	if c.Workers <= 0 {
		return errors.New("workers must be positive")
	}
	return nil
}

// StatePath resolves the file backend's state file against baseDir.
func (c *Config) StatePath(baseDir string) string {
	if c.StateFile == "" {
		return filepath.Join(baseDir, "counter.json")
	}
	if filepath.IsAbs(c.StateFile) {
		return c.StateFile
	}
	return filepath.Join(baseDir, c.StateFile)
}

// EventLogPath is where the file backend records processed event ids:
// the state file with its extension replaced by ".events.json".
func (c *Config) EventLogPath(baseDir string) string {
	state := c.StatePath(baseDir)
	return strings.TrimSuffix(state, filepath.Ext(state)) + ".events.json"
}

// DedupTTL returns DedupTTLSeconds as a duration.
func (c *Config) DedupTTL() time.Duration {
	return time.Duration(c.DedupTTLSeconds) * time.Second
}

// LockTimeout returns LockTimeoutMillis as a duration.
func (c *Config) LockTimeout() time.Duration {
	return time.Duration(c.LockTimeoutMillis) * time.Millisecond
}

// PollTimeout returns PollTimeoutSeconds as a duration.
func (c *Config) PollTimeout() time.Duration {
	return time.Duration(c.PollTimeoutSeconds) * time.Second
}

// ChannelAllowed reports whether contributions from channelID are accepted.
func (c *Config) ChannelAllowed(channelID string) bool {
	if len(c.AllowedChannels) == 0 {
		return true
	}
	for _, id := range c.AllowedChannels {
		if id == channelID {
			return true
		}
	}
	return false
}

func getEnv(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

func getInt(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}

func firstNonZero(a, b int) int {
	if a != 0 {
		return a
	}
	return b
}

// mergeStringSlice combines two slices, trims whitespace, and removes duplicates.
func mergeStringSlice(a, b []string) []string {
	seen := make(map[string]bool)
	result := make([]string, 0, len(a)+len(b))

	for _, s := range a {
		s = strings.TrimSpace(s)
		if s != "" && !seen[s] {
			seen[s] = true
			result = append(result, s)
		}
	}
	for _, s := range b {
		s = strings.TrimSpace(s)
		if s != "" && !seen[s] {
			seen[s] = true
			result = append(result, s)
		}
	}

	if len(result) == 0 {
		return nil
	}
	return result
}
