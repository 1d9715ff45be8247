package main

import (
	"context"
	"os/signal"
	"strconv"
	"syscall"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus"

	"tg-movie-bot/internal/adapters/bot"
	"tg-movie-bot/internal/adapters/memory"
	"tg-movie-bot/internal/adapters/repo"
	"tg-movie-bot/internal/adapters/tmdb"
	"tg-movie-bot/internal/domain"
	"tg-movie-bot/internal/infra/cache"
	"tg-movie-bot/internal/infra/config"
	"tg-movie-bot/internal/infra/db"
	httpinfra "tg-movie-bot/internal/infra/http"
	"tg-movie-bot/internal/infra/log"
	"tg-movie-bot/internal/infra/metrics"
	"tg-movie-bot/internal/infra/supervisor"
	"tg-movie-bot/internal/usecase/catalog"
	"tg-movie-bot/internal/usecase/conversation"
	"tg-movie-bot/internal/usecase/genres"
	"tg-movie-bot/internal/usecase/preference"
	"tg-movie-bot/internal/usecase/ratings"
	"tg-movie-bot/internal/usecase/recommend"
)

type storage interface {
	domain.UserRepo
	domain.MovieRepo
	domain.RatingRepo
}

func main() {
	cfg := config.Load()
	logger := log.NewLogger(cfg.AppEnv)
	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var store storage
	if cfg.PGDSN != "" {
		pool, err := db.Connect(cfg.PGDSN)
		if err != nil {
			logger.Fatal().Err(err).Msg("не удалось подключиться к БД")
		}
		defer pool.Close()
		store = repo.NewPostgres(pool)
	} else {
		logger.Warn().Msg("PG_DSN не задан, данные хранятся в памяти процесса")
		store = memory.New()
	}

	var dedup domain.Cache
	if cfg.RedisAddr != "" {
		client, err := cache.Connect(ctx, cfg.RedisAddr)
		if err != nil {
			logger.Fatal().Err(err).Msg("не удалось подключиться к Redis")
		}
		defer client.Close()
		dedup = cache.NewRedis(client, "movie-bot:")
	}

	provider := tmdb.New(tmdb.Config{
		BaseURL:  cfg.TMDB.BaseURL,
		APIKey:   cfg.TMDB.APIKey,
		Language: cfg.TMDB.Language,
		RPS:      cfg.TMDB.RPS,
		Timeout:  cfg.TMDB.Timeout,
	}, logger.With().Str("component", "tmdb").Logger())

	genreCache, err := genres.NewCache(provider, logger.With().Str("component", "genres").Logger(), cfg.Location(), cfg.GenreRefreshAt)
	if err != nil {
		logger.Fatal().Err(err).Msg("некорректное время обновления жанров")
	}
	catalogService := catalog.NewService(provider, store)
	prefService := preference.NewService(store, store)
	ratingService := ratings.NewService(store, store)
	recService := recommend.NewService(store, store, prefService, logger.With().Str("component", "recommend").Logger(), cfg.Limits.SampleSize, cfg.Limits.TopN)
	formatter := recommend.NewFormatter(genreCache, cfg.Limits.DescriptionMax)

	sessions := conversation.NewStore(cfg.SessionTTL)
	engine := conversation.NewEngine(sessions, catalogService, recService, ratingService, formatter,
		logger.With().Str("component", "conversation").Logger(), cfg.Limits.SearchTopN)

	botAPI, err := tgbotapi.NewBotAPI(cfg.Telegram.Token)
	if err != nil {
		logger.Fatal().Err(err).Msg("не удалось создать бота")
	}
	handler := bot.NewHandler(botAPI, logger.With().Str("component", "bot").Logger(), store, engine, dedup)

	server := httpinfra.NewServer("bot-gateway", addr(cfg.Port), logger)
	tree := supervisor.New("bot-gateway", logger.With().Str("component", "supervisor").Logger())
	tree.AddBackground(genreCache)
	tree.AddBackground(sessions)
	tree.AddTransport(server)

	if cfg.Telegram.WebhookURL != "" {
		server.Router.Post("/bot/webhook", handler.WebhookHandler())
		if err := setWebhook(botAPI, cfg.Telegram.WebhookURL); err != nil {
			logger.Fatal().Err(err).Msg("не удалось установить вебхук")
		}
		logger.Info().Str("url", cfg.Telegram.WebhookURL).Msg("бот работает через вебхук")
	} else {
		if _, err := botAPI.Request(tgbotapi.DeleteWebhookConfig{}); err != nil {
			logger.Warn().Err(err).Msg("не удалось снять вебхук")
		}
		tree.AddTransport(bot.NewPoller(botAPI, handler, logger.With().Str("component", "poller").Logger(), cfg.Telegram.MaxWorkers))
	}

	logger.Info().Str("bot", botAPI.Self.UserName).Msg("бот-гейтвей запущен")
	if err := tree.Serve(ctx); err != nil && ctx.Err() == nil {
		logger.Error().Err(err).Msg("супервизор остановлен с ошибкой")
	}
	logger.Info().Msg("остановка бота")
}

func setWebhook(api *tgbotapi.BotAPI, url string) error {
	wh, err := tgbotapi.NewWebhook(url)
	if err != nil {
		return err
	}
	_, err = api.Request(wh)
	return err
}

func addr(port int) string {
	return ":" + strconv.Itoa(port)
}
