package config

import (
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// AppConfig описывает конфигурацию сервисов.
type AppConfig struct {
	AppEnv string `envconfig:"APP_ENV" default:"dev"`
	TZ     string `envconfig:"TZ" default:"Europe/Moscow"`
	Port   int    `envconfig:"PORT" default:"8080"`

	Telegram struct {
		Token      string `envconfig:"TG_BOT_TOKEN"`
		WebhookURL string `envconfig:"TG_WEBHOOK_URL"`
		MaxWorkers int    `envconfig:"BOT_MAX_WORKERS" default:"32"`
	} `envconfig:""`

	PGDSN string `envconfig:"PG_DSN"`

	RedisAddr string `envconfig:"REDIS_ADDR"`

	TMDB struct {
		APIKey   string        `envconfig:"TMDB_API_KEY"`
		BaseURL  string        `envconfig:"TMDB_API_URL" default:"https://api.themoviedb.org/3"`
		Language string        `envconfig:"TMDB_LANGUAGE" default:"ru"`
		RPS      float64       `envconfig:"TMDB_RPS" default:"20"`
		Timeout  time.Duration `envconfig:"TMDB_TIMEOUT" default:"10s"`
	} `envconfig:""`

	Limits struct {
		SampleSize     int `envconfig:"RECOMMEND_SAMPLE_SIZE" default:"10"`
		TopN           int `envconfig:"RECOMMEND_TOP_N" default:"5"`
		SearchTopN     int `envconfig:"SEARCH_TOP_N" default:"5"`
		DescriptionMax int `envconfig:"DESCRIPTION_MAX_RUNES" default:"500"`
	} `envconfig:""`

	SessionTTL     time.Duration `envconfig:"SESSION_TTL" default:"30m"`
	GenreRefreshAt string        `envconfig:"GENRE_REFRESH_AT" default:"00:00"`
}

// Load загружает конфиг из окружения. Файл .env, если он есть, читается первым.
func Load() AppConfig {
	_ = godotenv.Load()
	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		log.Fatalf("не удалось загрузить конфиг: %v", err)
	}
	return cfg
}

// Location возвращает часовой пояс из TZ, при ошибке UTC.
func (c AppConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.TZ)
	if err != nil {
		return time.UTC
	}
	return loc
}
