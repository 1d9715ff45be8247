package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	chi "github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"tg-movie-bot/internal/adapters/miniapp"
	"tg-movie-bot/internal/adapters/repo"
	"tg-movie-bot/internal/adapters/tmdb"
	"tg-movie-bot/internal/infra/config"
	"tg-movie-bot/internal/infra/db"
	httpinfra "tg-movie-bot/internal/infra/http"
	"tg-movie-bot/internal/infra/log"
	"tg-movie-bot/internal/infra/metrics"
	"tg-movie-bot/internal/infra/supervisor"
	"tg-movie-bot/internal/usecase/catalog"
	"tg-movie-bot/internal/usecase/genres"
	"tg-movie-bot/internal/usecase/preference"
	"tg-movie-bot/internal/usecase/ratings"
	"tg-movie-bot/internal/usecase/recommend"
)

// errNoDSN API делит пользователей и оценки с процессом бота и без общей БД не запускается.
var errNoDSN = errors.New("PG_DSN обязателен: хранилище в памяти не разделяется с ботом")

func openStore(dsn string) (*repo.Postgres, func(), error) {
	if dsn == "" {
		return nil, nil, errNoDSN
	}
	pool, err := db.Connect(dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("подключение к БД: %w", err)
	}
	return repo.NewPostgres(pool), pool.Close, nil
}

func main() {
	cfg := config.Load()
	logger := log.NewLogger(cfg.AppEnv).With().Str("service", "api").Logger()
	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := openStore(cfg.PGDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("api: хранилище недоступно")
	}
	defer closeStore()

	provider := tmdb.New(tmdb.Config{
		BaseURL:  cfg.TMDB.BaseURL,
		APIKey:   cfg.TMDB.APIKey,
		Language: cfg.TMDB.Language,
		RPS:      cfg.TMDB.RPS,
		Timeout:  cfg.TMDB.Timeout,
	}, logger.With().Str("component", "tmdb").Logger())
	genreCache, err := genres.NewCache(provider, logger.With().Str("component", "genres").Logger(), cfg.Location(), cfg.GenreRefreshAt)
	if err != nil {
		logger.Fatal().Err(err).Msg("api: некорректное время обновления жанров")
	}
	prefService := preference.NewService(store, store)
	handler := miniapp.NewHandler(
		catalog.NewService(provider, store),
		recommend.NewService(store, store, prefService, logger.With().Str("component", "recommend").Logger(), cfg.Limits.SampleSize, cfg.Limits.TopN),
		ratings.NewService(store, store),
		store,
		genreCache,
		logger.With().Str("component", "miniapp").Logger(),
		cfg.Limits.SearchTopN,
	)

	server := httpinfra.NewServer("api", ":"+strconv.Itoa(cfg.Port), logger)
	server.Router.Route("/api/v1", func(r chi.Router) {
		r.Use(httpinfra.WebAppAuthMiddleware(cfg.Telegram.Token, 24*time.Hour))
		handler.Routes(r)
	})

	tree := supervisor.New("api", logger.With().Str("component", "supervisor").Logger())
	tree.AddBackground(genreCache)
	tree.AddTransport(server)

	logger.Info().Msg("api: старт")
	if err := tree.Serve(ctx); err != nil && ctx.Err() == nil {
		logger.Error().Err(err).Msg("api: супервизор остановлен с ошибкой")
	}
	logger.Info().Msg("api: остановка")
}
