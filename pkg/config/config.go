package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Server  ServerConfig
	Worker  WorkerConfig
	SQLite  SQLiteConfig
	Redis   RedisConfig
	LLM     LLMConfig
	Crawler CrawlerConfig
	Image   ImageConfig
	Skills  SkillsConfig
	Logging LoggingConfig
}

type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  int
	WriteTimeout int
}

type WorkerConfig struct {
	MetricsPort        int
	PollIntervalSec    int
	ScheduleRefreshSec int
}

type SQLiteConfig struct {
	Path string
}

// RedisConfig is optional: an empty Host disables the content-hash cache and
// the pipeline falls back to SQLite crawl history only.
type RedisConfig struct {
	Host         string
	Port         int
	Password     string
	DB           int
	HashTTLHours int
}

type LLMConfig struct {
	Provider    string // "openai" or "cli"
	Model       string
	APIKey      string
	Temperature float32
	TimeoutSec  int
	CLIBin      string
}

type CrawlerConfig struct {
	NavTimeoutSec       int
	SettleDelayMs       int
	MaxLinksPerListing  int
	ReviewSearchResults int
}

type ImageConfig struct {
	OutputDir    string
	PublicPrefix string
}

type SkillsConfig struct {
	Dir string
}

type LoggingConfig struct {
	Level      string
	Format     string
	OutputPath string
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/pickgear")

	viper.SetEnvPrefix("PICKGEAR")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &config, nil
}

func setDefaults() {
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.readTimeout", 30)
	viper.SetDefault("server.writeTimeout", 30)

	viper.SetDefault("worker.metricsPort", 8081)
	viper.SetDefault("worker.pollIntervalSec", 3)
	viper.SetDefault("worker.scheduleRefreshSec", 60)

	viper.SetDefault("sqlite.path", "./data/pickgear.db")

	viper.SetDefault("redis.host", "")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("redis.hashTTLHours", 72)

	viper.SetDefault("llm.provider", "cli")
	viper.SetDefault("llm.model", "")
	viper.SetDefault("llm.temperature", 0.3)
	viper.SetDefault("llm.timeoutSec", 120)
	viper.SetDefault("llm.cliBin", "claude")

	viper.SetDefault("crawler.navTimeoutSec", 30)
	viper.SetDefault("crawler.settleDelayMs", 3000)
	viper.SetDefault("crawler.maxLinksPerListing", 10)
	viper.SetDefault("crawler.reviewSearchResults", 3)

	viper.SetDefault("image.outputDir", "./public/images/products")
	viper.SetDefault("image.publicPrefix", "/images/products")

	viper.SetDefault("skills.dir", "./skills")

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("logging.outputPath", "stdout")
}
