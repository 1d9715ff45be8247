// Package tmdb реализует domain.MovieProvider поверх TMDB API v3.
package tmdb

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"tg-movie-bot/internal/domain"
	"tg-movie-bot/internal/infra/metrics"
)

const breakerName = "tmdb-api"

// errBadRequest ответ 4xx, который не должен открывать breaker.
var errBadRequest = errors.New("запрос отклонён провайдером")

// Config параметры клиента.
type Config struct {
	BaseURL  string
	APIKey   string
	Language string
	RPS      float64
	Timeout  time.Duration
}

// Client HTTP клиент TMDB с ограничением частоты и circuit breaker.
type Client struct {
	baseURL  string
	apiKey   string
	language string
	http     *http.Client
	limiter  *rate.Limiter
	breaker  *gobreaker.CircuitBreaker[[]byte]
	logger   zerolog.Logger
}

var _ domain.MovieProvider = (*Client)(nil)

type pageResponse struct {
	Page    int               `json:"page"`
	Results []domain.RawMovie `json:"results"`
}

type genreResponse struct {
	Genres []domain.Genre `json:"genres"`
}

// New создаёт клиента.
func New(cfg Config, logger zerolog.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	limit := rate.Inf
	if cfg.RPS > 0 {
		limit = rate.Limit(cfg.RPS)
	}
	burst := int(cfg.RPS)
	if burst < 1 {
		burst = 1
	}
	metrics.CircuitBreakerState.WithLabelValues(breakerName).Set(0)
	return &Client{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:   cfg.APIKey,
		language: cfg.Language,
		http:     &http.Client{Timeout: cfg.Timeout},
		limiter:  rate.NewLimiter(limit, burst),
		breaker:  newBreaker(logger),
		logger:   logger,
	}
}

func newBreaker(logger zerolog.Logger) *gobreaker.CircuitBreaker[[]byte] {
	return gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 5 {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= 0.6
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, errBadRequest) || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("смена состояния circuit breaker")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateValue(to))
		},
	})
}

func stateValue(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}

// SearchByTitle ищет фильмы по названию.
func (c *Client) SearchByTitle(ctx context.Context, query string) ([]domain.RawMovie, error) {
	params := url.Values{}
	params.Set("query", query)
	var resp pageResponse
	if err := c.get(ctx, "search_movie", "/search/movie", params, &resp); err != nil {
		return nil, err
	}
	return resp.Results, nil
}

// PopularMovies возвращает страницу популярных фильмов.
func (c *Client) PopularMovies(ctx context.Context, page int) ([]domain.RawMovie, error) {
	return c.page(ctx, "popular", "/movie/popular", page)
}

// TopRatedMovies возвращает страницу фильмов с лучшим рейтингом.
func (c *Client) TopRatedMovies(ctx context.Context, page int) ([]domain.RawMovie, error) {
	return c.page(ctx, "top_rated", "/movie/top_rated", page)
}

// GenreList возвращает справочник жанров.
func (c *Client) GenreList(ctx context.Context) ([]domain.Genre, error) {
	var resp genreResponse
	if err := c.get(ctx, "genres", "/genre/movie/list", url.Values{}, &resp); err != nil {
		return nil, err
	}
	return resp.Genres, nil
}

func (c *Client) page(ctx context.Context, operation, path string, page int) ([]domain.RawMovie, error) {
	if page < 1 {
		page = 1
	}
	params := url.Values{}
	params.Set("page", strconv.Itoa(page))
	var resp pageResponse
	if err := c.get(ctx, operation, path, params, &resp); err != nil {
		return nil, err
	}
	return resp.Results, nil
}

func (c *Client) get(ctx context.Context, operation, path string, params url.Values, out any) (err error) {
	start := time.Now()
	defer func() {
		metrics.ObserveNetworkRequest("tmdb", operation, path, start, err)
	}()

	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%w: ожидание лимита: %v", domain.ErrProviderUnavailable, err)
	}

	params.Set("api_key", c.apiKey)
	if c.language != "" {
		params.Set("language", c.language)
	}
	endpoint := c.baseURL + path + "?" + params.Encode()

	body, err := c.breaker.Execute(func() ([]byte, error) {
		return c.do(ctx, endpoint)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			metrics.CircuitBreakerRequests.WithLabelValues(breakerName, "rejected").Inc()
		} else {
			metrics.CircuitBreakerRequests.WithLabelValues(breakerName, "failure").Inc()
		}
		c.logger.Warn().Err(err).Str("operation", operation).Msg("запрос к TMDB не выполнен")
		return fmt.Errorf("%w: %s: %v", domain.ErrProviderUnavailable, operation, err)
	}
	metrics.CircuitBreakerRequests.WithLabelValues(breakerName, "success").Inc()

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: разбор ответа %s: %v", domain.ErrProviderUnavailable, operation, err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, endpoint string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("создание запроса: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("чтение ответа: %w", err)
	}
	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, fmt.Errorf("статус %d", resp.StatusCode)
	case resp.StatusCode >= 400:
		return nil, fmt.Errorf("%w: статус %d", errBadRequest, resp.StatusCode)
	}
	return body, nil
}
