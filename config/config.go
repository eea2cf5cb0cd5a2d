package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	cron "github.com/robfig/cron/v3"

	"github.com/alexander-bruun/vitrine/filestore"
)

const (
	EnvironmentDevelopment = "development"
	EnvironmentProduction  = "production"

	minConcurrency  = 1
	maxConcurrency  = 64
	minFetchTimeout = 10 * time.Second
	maxFetchTimeout = 45 * time.Second
)

// Config is the process-wide configuration. It is built once at start-up and
// handed to constructors; nothing mutates it afterwards.
type Config struct {
	Environment   string
	Port          string
	DataDirectory string

	// Scheduler
	ConcurrencyLimit   int
	GalleryConcurrency int
	BatchSize          int
	RepairLimit        int
	SyncSchedule       string

	// Fetcher
	FetchTimeout              time.Duration
	FetchMaxRetries           int
	RetryBaseDelay            time.Duration
	MaxImageBytes             int64
	InsecureHostAllowlist     []string
	AllowInsecureInProduction bool

	// Transcoder
	WebPQuality      int
	ResponsiveWidths []int
	PrimaryMaxWidth  int

	// Reference handling
	PrimaryPattern string
	TrashPatterns  []string
	InternalMarker string

	// Read path
	ResolverAttemptTimeout time.Duration
	ResolverLegacyBuckets  []string
	ResolverLegacyPrefixes []string
	ResolverDebug          bool
	ProxyCacheEntries      int
	ProxyCacheMaxBytes     int64
	ProxyCacheEntryBytes   int64

	Storage filestore.StoreConfig
}

// Load reads the configuration from the environment. It does not validate;
// call Validate before handing the result to any component.
func Load() (*Config, error) {
	cfg := &Config{
		Environment:    strings.ToLower(getEnvOrDefault("VITRINE_ENV", EnvironmentDevelopment)),
		Port:           getEnvOrDefault("PORT", "3000"),
		DataDirectory:  DefaultDataDirectory(),
		SyncSchedule:   strings.TrimSpace(os.Getenv("SYNC_SCHEDULE")),
		PrimaryPattern: getEnvOrDefault("MEDIA_PRIMARY_PATTERN", `(?i)[-_]P00(?:[._?#-]|$)`),
		TrashPatterns:  splitList(getEnvOrDefault("MEDIA_TRASH_PATTERNS", `(?i)[-_]P1[0-9](?:[._?#-]|$)`), ";"),
		InternalMarker: getEnvOrDefault("MEDIA_INTERNAL_MARKER", "/object/public/"),

		InsecureHostAllowlist:  splitList(os.Getenv("INSECURE_HOST_ALLOWLIST"), ","),
		ResolverLegacyBuckets:  splitList(os.Getenv("RESOLVER_LEGACY_BUCKETS"), ","),
		ResolverLegacyPrefixes: splitList(getEnvOrDefault("RESOLVER_LEGACY_PREFIXES", "storage/v1/object/public/,object/public/,object/sign/"), ","),
	}

	var err error
	if cfg.ConcurrencyLimit, err = getEnvInt("SYNC_CONCURRENCY_LIMIT", 15); err != nil {
		return nil, err
	}
	if cfg.GalleryConcurrency, err = getEnvInt("SYNC_GALLERY_CONCURRENCY", 4); err != nil {
		return nil, err
	}
	if cfg.BatchSize, err = getEnvInt("SYNC_BATCH_SIZE", 200); err != nil {
		return nil, err
	}
	if cfg.RepairLimit, err = getEnvInt("SYNC_REPAIR_LIMIT", 20); err != nil {
		return nil, err
	}
	if cfg.FetchMaxRetries, err = getEnvInt("FETCH_MAX_RETRIES", 2); err != nil {
		return nil, err
	}
	if cfg.WebPQuality, err = getEnvInt("WEBP_QUALITY", 75); err != nil {
		return nil, err
	}
	if cfg.PrimaryMaxWidth, err = getEnvInt("PRIMARY_MAX_WIDTH", 1200); err != nil {
		return nil, err
	}
	if cfg.ProxyCacheEntries, err = getEnvInt("PROXY_CACHE_ENTRIES", 256); err != nil {
		return nil, err
	}
	cacheBytes, err := getEnvInt("PROXY_CACHE_MAX_BYTES", 64<<20)
	if err != nil {
		return nil, err
	}
	cfg.ProxyCacheMaxBytes = int64(cacheBytes)
	entryBytes, err := getEnvInt("PROXY_CACHE_MAX_ENTRY_BYTES", 2<<20)
	if err != nil {
		return nil, err
	}
	cfg.ProxyCacheEntryBytes = int64(entryBytes)

	maxBytes, err := getEnvInt("FETCH_MAX_BYTES", 25<<20)
	if err != nil {
		return nil, err
	}
	cfg.MaxImageBytes = int64(maxBytes)

	if cfg.FetchTimeout, err = getEnvMillis("FETCH_TIMEOUT_MS", 20000); err != nil {
		return nil, err
	}
	if cfg.RetryBaseDelay, err = getEnvMillis("FETCH_RETRY_DELAY_MS", 1000); err != nil {
		return nil, err
	}
	if cfg.ResolverAttemptTimeout, err = getEnvMillis("RESOLVER_ATTEMPT_TIMEOUT_MS", 4000); err != nil {
		return nil, err
	}

	if cfg.AllowInsecureInProduction, err = getEnvBool("ALLOW_INSECURE_IN_PRODUCTION", false); err != nil {
		return nil, err
	}
	if cfg.ResolverDebug, err = getEnvBool("RESOLVER_DEBUG", cfg.Environment != EnvironmentProduction); err != nil {
		return nil, err
	}

	if cfg.ResponsiveWidths, err = parseWidths(getEnvOrDefault("RESPONSIVE_WIDTHS", "320,640")); err != nil {
		return nil, err
	}

	storage, err := filestore.ParseStoreConfigFromEnv()
	if err != nil {
		return nil, err
	}
	if storage.BackendType == "local" && storage.LocalBasePath == "" {
		storage.LocalBasePath = filepath.Join(cfg.DataDirectory, "objects")
	}
	cfg.Storage = *storage

	cfg.clamp()
	return cfg, nil
}

// DefaultDataDirectory returns $VITRINE_DATA_DIR, falling back to ~/vitrine.
func DefaultDataDirectory() string {
	return getEnvOrDefault("VITRINE_DATA_DIR", filepath.Join(os.Getenv("HOME"), "vitrine"))
}

// clamp pulls tunables that have a hard operating range back into it.
func (c *Config) clamp() {
	c.ConcurrencyLimit = clampInt(c.ConcurrencyLimit, minConcurrency, maxConcurrency)
	c.GalleryConcurrency = clampInt(c.GalleryConcurrency, 1, maxConcurrency)
	if c.RepairLimit > 20 || c.RepairLimit < 1 {
		c.RepairLimit = 20
	}
	if c.FetchTimeout < minFetchTimeout {
		c.FetchTimeout = minFetchTimeout
	}
	if c.FetchTimeout > maxFetchTimeout {
		c.FetchTimeout = maxFetchTimeout
	}
	if c.FetchMaxRetries < 0 {
		c.FetchMaxRetries = 0
	}
	if c.ProxyCacheMaxBytes > 0 && c.ProxyCacheEntryBytes > c.ProxyCacheMaxBytes {
		c.ProxyCacheEntryBytes = c.ProxyCacheMaxBytes
	}
}

// Validate reports configuration errors that must stop the process before any
// sync job is started.
func (c *Config) Validate() error {
	if c.Environment != EnvironmentDevelopment && c.Environment != EnvironmentProduction {
		return fmt.Errorf("unknown environment %q", c.Environment)
	}
	if len(c.ResponsiveWidths) == 0 {
		return fmt.Errorf("at least one responsive width is required")
	}
	if c.WebPQuality < 1 || c.WebPQuality > 100 {
		return fmt.Errorf("webp quality must be between 1 and 100, got %d", c.WebPQuality)
	}
	if c.PrimaryMaxWidth <= 0 {
		return fmt.Errorf("primary max width must be positive")
	}
	if c.InternalMarker == "" {
		return fmt.Errorf("internal marker must not be empty")
	}
	if _, err := regexp.Compile(c.PrimaryPattern); err != nil {
		return fmt.Errorf("invalid primary pattern: %w", err)
	}
	for _, p := range c.TrashPatterns {
		if _, err := regexp.Compile(p); err != nil {
			return fmt.Errorf("invalid trash pattern %q: %w", p, err)
		}
	}
	if c.SyncSchedule != "" {
		if _, err := cron.ParseStandard(c.SyncSchedule); err != nil {
			return fmt.Errorf("invalid sync schedule: %w", err)
		}
	}
	return c.Storage.Validate()
}

// IsProduction reports whether the process runs as a production deployment.
func (c *Config) IsProduction() bool {
	return c.Environment == EnvironmentProduction
}

func parseWidths(raw string) ([]int, error) {
	var widths []int
	seen := make(map[int]bool)
	for _, part := range splitList(raw, ",") {
		w, err := strconv.Atoi(part)
		if err != nil || w <= 0 {
			return nil, fmt.Errorf("invalid responsive width %q", part)
		}
		if !seen[w] {
			seen[w] = true
			widths = append(widths, w)
		}
	}
	return widths, nil
}

func splitList(raw, sep string) []string {
	var out []string
	for _, part := range strings.Split(raw, sep) {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}

func getEnvMillis(key string, defaultValue int) (time.Duration, error) {
	ms, err := getEnvInt(key, defaultValue)
	if err != nil {
		return 0, err
	}
	return time.Duration(ms) * time.Millisecond, nil
}

func getEnvBool(key string, defaultValue bool) (bool, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	v, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}
