package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	PostgresURL string
	DBPath      string
	MetricsAddr string
	S3          S3Config
	Scheduler   SchedulerConfig
	Crawler     CrawlerConfig
	Sites       map[string]*SiteConfig
}

type S3Config struct {
	Bucket          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
}

type SchedulerConfig struct {
	Cron        string
	JobInterval time.Duration // delay step between staggered scrape jobs
}

type CrawlerConfig struct {
	Headless            bool
	MaxTotalTime        time.Duration
	MaxNoChangeAttempts int
	PollInterval        time.Duration
	FieldTries          int
	FieldDelay          time.Duration
	NavTries            int
	NavDelay            time.Duration
	StaleAfter          time.Duration
	Concurrency         int
}

type SiteConfig struct {
	ID                string   `yaml:"id"`
	Name              string   `yaml:"name"`
	Adapter           string   `yaml:"adapter"`
	BaseURL           string   `yaml:"base_url"`
	SearchPath        string   `yaml:"search_path"`
	ListingPathMarker string   `yaml:"listing_path_marker"`
	ComplexPathMarker string   `yaml:"complex_path_marker"`
	DefaultLocale     string   `yaml:"default_locale"`
	Locales           []string `yaml:"locales"`
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		PostgresURL: os.Getenv("DATABASE_URL"),
		DBPath:      getEnv("DB_PATH", "crawler.db"),
		MetricsAddr: getEnv("METRICS_ADDR", ":9190"),
		S3: S3Config{
			Bucket:          os.Getenv("S3_BUCKET"),
			Region:          getEnv("S3_REGION", "eu-west-1"),
			Endpoint:        os.Getenv("S3_ENDPOINT"),
			AccessKeyID:     os.Getenv("S3_ACCESS_KEY_ID"),
			SecretAccessKey: os.Getenv("S3_SECRET_ACCESS_KEY"),
		},
		Scheduler: SchedulerConfig{
			Cron:        os.Getenv("DISCOVER_CRON"),
			JobInterval: getEnvDuration("JOB_INTERVAL", 2*time.Minute),
		},
		Crawler: CrawlerConfig{
			Headless:            getEnv("HEADLESS", "true") == "true",
			MaxTotalTime:        getEnvDuration("DISCOVERY_MAX_TIME", 30*time.Minute),
			MaxNoChangeAttempts: getEnvInt("DISCOVERY_MAX_NO_CHANGE", 10),
			PollInterval:        getEnvDuration("DISCOVERY_POLL_INTERVAL", 2*time.Second),
			FieldTries:          getEnvInt("FIELD_TRIES", 3),
			FieldDelay:          getEnvDuration("FIELD_DELAY", 500*time.Millisecond),
			NavTries:            getEnvInt("NAV_TRIES", 5),
			NavDelay:            getEnvDuration("NAV_DELAY", 3*time.Second),
			StaleAfter:          getEnvDuration("STALE_AFTER", 48*time.Hour),
			Concurrency:         getEnvInt("SCRAPE_CONCURRENCY", 2),
		},
		Sites: make(map[string]*SiteConfig),
	}

	if err := cfg.loadSiteConfigs(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) loadSiteConfigs() error {
	configDir := "config/sites"
	entries, err := os.ReadDir(configDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".yaml" {
			continue
		}

		path := filepath.Join(configDir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}

		var site SiteConfig
		if err := yaml.Unmarshal(data, &site); err != nil {
			return err
		}
		if site.DefaultLocale == "" && len(site.Locales) > 0 {
			site.DefaultLocale = site.Locales[0]
		}

		c.Sites[site.ID] = &site
	}

	return nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
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

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}
