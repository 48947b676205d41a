package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	DefaultLoginURL  = "https://partner.unitededucation.com/Account/Login/"
	DefaultSearchURL = "https://partner.unitededucation.com/Manage/ProgramSearch"
)

type Config struct {
	Portal      PortalConfig
	Browser     BrowserConfig
	Database    DatabaseConfig
	Scheduler   SchedulerConfig
	Scraper     ScraperConfig
	S3          S3Config
	LogLevel    string
	LogPath     string
	ProfilesDir string
	Profiles    map[string]*Profile
}

type PortalConfig struct {
	Email     string
	Password  string
	LoginURL  string
	SearchURL string
}

type BrowserConfig struct {
	Headless      bool
	Timeout       time.Duration
	SlowMoMS      int
	ScreenshotDir string
}

type DatabaseConfig struct {
	URL    string // Postgres; empty selects the SQLite store
	DBPath string
}

type SchedulerConfig struct {
	Interval time.Duration
	Cron     string
}

type ScraperConfig struct {
	TermDelay     time.Duration
	StaleJobAfter time.Duration
}

type S3Config struct {
	Bucket          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
}

func (c S3Config) Enabled() bool {
	return c.Bucket != ""
}

// Profile is a named set of search filters applied to one or more terms.
type Profile struct {
	ID      string        `yaml:"id"`
	Name    string        `yaml:"name"`
	Terms   []string      `yaml:"terms"`
	Filters ProfileFilter `yaml:"filters"`
}

type ProfileFilter struct {
	University string   `yaml:"university"`
	Program    string   `yaml:"program"`
	Degree     string   `yaml:"degree"`
	Language   string   `yaml:"language"`
	Campus     string   `yaml:"campus"`
	MinPrice   *float64 `yaml:"min_price"`
	MaxPrice   *float64 `yaml:"max_price"`
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Portal: PortalConfig{
			Email:     getEnvAny([]string{"PORTAL_EMAIL", "SCRAPER_EMAIL"}, ""),
			Password:  getEnvAny([]string{"PORTAL_PASSWORD", "SCRAPER_PASSWORD"}, ""),
			LoginURL:  getEnv("PORTAL_LOGIN_URL", DefaultLoginURL),
			SearchURL: getEnv("PORTAL_SEARCH_URL", DefaultSearchURL),
		},
		Browser: BrowserConfig{
			Headless:      getEnvBool("BROWSER_HEADLESS", true),
			Timeout:       getEnvDuration("BROWSER_TIMEOUT", 60*time.Second),
			SlowMoMS:      getEnvInt("BROWSER_SLOWMO_MS", 0),
			ScreenshotDir: getEnv("SCREENSHOT_DIR", "screenshots"),
		},
		Database: DatabaseConfig{
			URL:    os.Getenv("DATABASE_URL"),
			DBPath: getEnv("DB_PATH", "scraper.db"),
		},
		Scheduler: SchedulerConfig{
			Cron: os.Getenv("SCRAPE_CRON"),
		},
		Scraper: ScraperConfig{
			TermDelay:     time.Duration(getEnvInt("TERM_DELAY_MS", 5000)) * time.Millisecond,
			StaleJobAfter: getEnvDuration("STALE_JOB_AFTER", 6*time.Hour),
		},
		S3: S3Config{
			Bucket:          os.Getenv("S3_BUCKET"),
			Region:          getEnv("S3_REGION", "us-east-1"),
			Endpoint:        os.Getenv("S3_ENDPOINT"),
			AccessKeyID:     os.Getenv("S3_ACCESS_KEY_ID"),
			SecretAccessKey: os.Getenv("S3_SECRET_ACCESS_KEY"),
		},
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		LogPath:     getEnv("LOG_PATH", "scraper.log"),
		ProfilesDir: getEnv("PROFILES_DIR", "config/profiles"),
		Profiles:    make(map[string]*Profile),
	}

	if interval := os.Getenv("SCRAPE_INTERVAL"); interval != "" {
		d, err := time.ParseDuration(interval)
		if err == nil {
			cfg.Scheduler.Interval = d
		}
	}

	if err := cfg.loadProfiles(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Profile looks up a named search profile.
func (c *Config) Profile(id string) (*Profile, error) {
	p, ok := c.Profiles[id]
	if !ok {
		return nil, fmt.Errorf("unknown profile %q", id)
	}
	return p, nil
}

func (c *Config) loadProfiles() error {
	entries, err := os.ReadDir(c.ProfilesDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	for _, entry := range entries {
		ext := filepath.Ext(entry.Name())
		if entry.IsDir() || (ext != ".yaml" && ext != ".yml") {
			continue
		}

		path := filepath.Join(c.ProfilesDir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}

		var p Profile
		if err := yaml.Unmarshal(data, &p); err != nil {
			return fmt.Errorf("parse profile %s: %w", path, err)
		}
		if p.ID == "" {
			p.ID = strings.TrimSuffix(entry.Name(), ext)
		}

		c.Profiles[p.ID] = &p
	}

	return nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvAny(keys []string, defaultVal string) string {
	for _, k := range keys {
		if val := os.Getenv(k); val != "" {
			return val
		}
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}

// getEnvDuration accepts a Go duration ("45s") or a bare millisecond count.
func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	if d, err := time.ParseDuration(val); err == nil {
		return d
	}
	if ms, err := strconv.Atoi(val); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	return defaultVal
}
