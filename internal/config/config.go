package config

import (
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"matrix-quiz-bot/internal/domain"
)

type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	Matrix struct {
		Homeserver  string `yaml:"homeserver"`
		Username    string `yaml:"username"`
		Password    string `yaml:"password"`
		TeacherRoom string `yaml:"teacher_room"`
	} `yaml:"matrix"`
	Moodle struct {
		URL   string `yaml:"url"`
		Token string `yaml:"token"`
	} `yaml:"moodle"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		TTL      string `yaml:"ttl"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	Quiz struct {
		TTL     string                `yaml:"ttl"`
		Catalog []domain.CatalogEntry `yaml:"catalog"`
	} `yaml:"quiz"`
}

// Load reads YAML config from path and applies environment overrides.
// A missing file is not an error; the bot can run from env vars alone.
// Variables from a .env file in the working directory are picked up first.
func Load(path string) (Config, error) {
	_ = godotenv.Load()

	cfg := Config{}
	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return cfg, err
	}
	if err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, err
		}
	}
	applyEnv(&cfg)
	return cfg, nil
}

// applyEnv lets secrets and endpoints come from the environment instead of
// the config file. Env values win.
func applyEnv(cfg *Config) {
	setFromEnv(&cfg.Matrix.Homeserver, "MATRIX_HOMESERVER")
	setFromEnv(&cfg.Matrix.Username, "MATRIX_BOT_USERNAME")
	setFromEnv(&cfg.Matrix.Password, "MATRIX_BOT_PASSWORD")
	setFromEnv(&cfg.Matrix.TeacherRoom, "MATRIX_TEACHER_ROOM")
	setFromEnv(&cfg.Moodle.URL, "MOODLE_SERVER")
	setFromEnv(&cfg.Moodle.Token, "MOODLE_API_TOKEN")
	setFromEnv(&cfg.Redis.Addr, "REDIS_ADDR")
	setFromEnv(&cfg.Postgres.URL, "POSTGRES_URL")
}

func setFromEnv(target *string, key string) {
	if value := os.Getenv(key); value != "" {
		*target = value
	}
}

// TTLDuration parses a duration string or returns the fallback if empty.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
