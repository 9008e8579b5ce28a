package config

import (
	"errors"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Database struct {
		Driver string
		URL    string
	}
	Server struct {
		Port int
	}
	API struct {
		Endpoint string
		Version  string
		Timeout  string
	}
	Site struct {
		HomeURL    string
		Permalinks bool
		Public     bool
	}
	Robots struct {
		Base string
		File string
	}
	Updater struct {
		Workers   int
		QueueSize int
	}
	Admin struct {
		User     string
		Password string
	}
	Log struct {
		Dir string
	}
}

// LoadConfig reads config.yaml from path, or from . and ./config when path is empty.
// A missing config file is not an error; defaults and PSC_* env vars still apply.
func LoadConfig(path string) (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	v.SetEnvPrefix("psc")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Default values
	v.SetDefault("server.port", 8080)
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.url", "sitemaps-connect.db")
	v.SetDefault("api.endpoint", "https://pro-sitemaps.com/api/")
	v.SetDefault("api.version", "20230928")
	v.SetDefault("api.timeout", "30s")
	v.SetDefault("site.homeurl", "http://localhost:8080/")
	v.SetDefault("site.permalinks", true)
	v.SetDefault("site.public", true)
	v.SetDefault("robots.base", "User-agent: *\nDisallow:\n")
	v.SetDefault("robots.file", "")
	v.SetDefault("updater.workers", 2)
	v.SetDefault("updater.queuesize", 64)
	v.SetDefault("admin.user", "admin")
	v.SetDefault("admin.password", "")
	v.SetDefault("log.dir", "logs")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, err
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

func (c *Config) GetAPITimeout() time.Duration {
	duration, err := time.ParseDuration(c.API.Timeout)
	if err != nil || duration <= 0 {
		return 30 * time.Second
	}
	return duration
}

// HomeURL returns the site home URL with a trailing slash.
func (c *Config) HomeURL() string {
	return strings.TrimRight(c.Site.HomeURL, "/") + "/"
}
