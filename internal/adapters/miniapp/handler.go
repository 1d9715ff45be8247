// Package miniapp HTTP API для Telegram Mini App: те же сценарии, что и в чате бота.
package miniapp

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	chi "github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"tg-movie-bot/internal/domain"
	httpinfra "tg-movie-bot/internal/infra/http"
	"tg-movie-bot/internal/usecase/catalog"
	"tg-movie-bot/internal/usecase/ratings"
	"tg-movie-bot/internal/usecase/recommend"
)

const maxListLimit = 20

var (
	errBadLimit    = errors.New("limit должен быть числом от 1 до 20")
	errBadBody     = errors.New("некорректное тело запроса")
	errNoMovieID   = errors.New("external_id обязателен")
	errInternal    = errors.New("внутренняя ошибка")
	errUnavailable = errors.New("сервис фильмов временно недоступен")
)

// Catalog операции каталога.
type Catalog interface {
	Search(ctx context.Context, query string, limit int) ([]domain.Movie, error)
	Popular(ctx context.Context, limit int) ([]domain.Movie, error)
}

// Recommender подбор рекомендаций.
type Recommender interface {
	TopN(ctx context.Context, chatID int64) (recommend.Result, error)
	BestMatch(ctx context.Context, chatID int64) (recommend.Result, error)
	Score(ctx context.Context, chatID int64, movies []domain.Movie) ([]recommend.Scored, error)
}

// Rater оценки пользователя.
type Rater interface {
	Rate(ctx context.Context, chatID int64, movie domain.Movie, score int) (domain.Rating, error)
	List(ctx context.Context, chatID int64) ([]domain.RatedMovie, error)
}

// Handler обслуживает /api/v1. Пользователь определяется по initData, chat id совпадает с id пользователя Telegram.
type Handler struct {
	catalog   Catalog
	recs      Recommender
	ratings   Rater
	movies    domain.MovieRepo
	genres    recommend.GenreResolver
	log       zerolog.Logger
	searchTop int
}

// NewHandler создаёт обработчик.
func NewHandler(cat Catalog, recs Recommender, rater Rater, movies domain.MovieRepo, genres recommend.GenreResolver, log zerolog.Logger, searchTop int) *Handler {
	if searchTop <= 0 {
		searchTop = 5
	}
	return &Handler{catalog: cat, recs: recs, ratings: rater, movies: movies, genres: genres, log: log, searchTop: searchTop}
}

// Routes регистрирует маршруты. Аутентификацию добавляет вызывающий.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/movies/popular", h.popular)
	r.Get("/movies/search", h.search)
	r.Get("/recommendations", h.topN)
	r.Get("/recommendations/best", h.best)
	r.Get("/ratings", h.listRatings)
	r.Post("/ratings", h.rate)
}

type movieDTO struct {
	ID          int64    `json:"id"`
	ExternalID  int64    `json:"external_id"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	ReleaseDate *string  `json:"release_date"`
	Rating      *float64 `json:"rating"`
	GenreIDs    []int    `json:"genre_ids"`
	Genres      string   `json:"genres"`
	Similarity  *float64 `json:"similarity,omitempty"`
}

type ratedDTO struct {
	Score   int       `json:"score"`
	RatedAt time.Time `json:"rated_at"`
	Movie   movieDTO  `json:"movie"`
}

type recommendationsDTO struct {
	Status recommend.Status `json:"status"`
	Items  []movieDTO       `json:"items"`
}

type rateRequest struct {
	ExternalID int64 `json:"external_id"`
	Score      int   `json:"score"`
}

func (h *Handler) popular(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r, h.searchTop)
	if err != nil {
		httpinfra.WriteError(w, http.StatusBadRequest, err)
		return
	}
	movies, err := h.catalog.Popular(r.Context(), limit)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.writeScored(w, r, movies)
}

func (h *Handler) search(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r, h.searchTop)
	if err != nil {
		httpinfra.WriteError(w, http.StatusBadRequest, err)
		return
	}
	movies, err := h.catalog.Search(r.Context(), r.URL.Query().Get("q"), limit)
	if errors.Is(err, domain.ErrNoResults) {
		movies, err = nil, nil
	}
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.writeScored(w, r, movies)
}

func (h *Handler) writeScored(w http.ResponseWriter, r *http.Request, movies []domain.Movie) {
	chatID, _ := httpinfra.UserID(r.Context())
	scored, err := h.recs.Score(r.Context(), chatID, movies)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpinfra.WriteJSON(w, http.StatusOK, h.scoredList(r.Context(), scored))
}

func (h *Handler) topN(w http.ResponseWriter, r *http.Request) {
	h.recommend(w, r, h.recs.TopN)
}

func (h *Handler) best(w http.ResponseWriter, r *http.Request) {
	h.recommend(w, r, h.recs.BestMatch)
}

func (h *Handler) recommend(w http.ResponseWriter, r *http.Request, pick func(context.Context, int64) (recommend.Result, error)) {
	chatID, _ := httpinfra.UserID(r.Context())
	res, err := pick(r.Context(), chatID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpinfra.WriteJSON(w, http.StatusOK, recommendationsDTO{Status: res.Status, Items: h.scoredList(r.Context(), res.Items)})
}

func (h *Handler) listRatings(w http.ResponseWriter, r *http.Request) {
	chatID, _ := httpinfra.UserID(r.Context())
	rated, err := h.ratings.List(r.Context(), chatID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	out := make([]ratedDTO, 0, len(rated))
	for _, item := range rated {
		out = append(out, ratedDTO{
			Score:   item.Rating.Score,
			RatedAt: item.Rating.UpdatedAt,
			Movie:   h.movieDTO(r.Context(), item.Movie),
		})
	}
	httpinfra.WriteJSON(w, http.StatusOK, out)
}

func (h *Handler) rate(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	var req rateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpinfra.WriteError(w, http.StatusBadRequest, errBadBody)
		return
	}
	if req.ExternalID == 0 {
		httpinfra.WriteError(w, http.StatusBadRequest, errNoMovieID)
		return
	}
	movie, err := h.movies.GetByExternalID(r.Context(), req.ExternalID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	chatID, _ := httpinfra.UserID(r.Context())
	rating, err := h.ratings.Rate(r.Context(), chatID, movie, req.Score)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpinfra.WriteJSON(w, http.StatusOK, ratedDTO{Score: rating.Score, RatedAt: rating.UpdatedAt, Movie: h.movieDTO(r.Context(), movie)})
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, catalog.ErrEmptyQuery), errors.Is(err, ratings.ErrScoreOutOfRange):
		httpinfra.WriteError(w, http.StatusBadRequest, err)
	case errors.Is(err, domain.ErrUserNotFound):
		httpinfra.WriteError(w, http.StatusNotFound, errors.New(recommend.MsgNotRegistered))
	case errors.Is(err, domain.ErrMovieNotFound):
		httpinfra.WriteError(w, http.StatusNotFound, domain.ErrMovieNotFound)
	case errors.Is(err, domain.ErrProviderUnavailable):
		h.log.Warn().Err(err).Str("path", r.URL.Path).Msg("miniapp: провайдер недоступен")
		httpinfra.WriteError(w, http.StatusBadGateway, errUnavailable)
	default:
		h.log.Error().Err(err).Str("path", r.URL.Path).Str("request_id", httpinfra.RequestID(r)).Msg("miniapp: ошибка запроса")
		httpinfra.WriteError(w, http.StatusInternalServerError, errInternal)
	}
}

func (h *Handler) scoredList(ctx context.Context, items []recommend.Scored) []movieDTO {
	out := make([]movieDTO, 0, len(items))
	for _, item := range items {
		dto := h.movieDTO(ctx, item.Movie)
		sim := item.Similarity
		dto.Similarity = &sim
		out = append(out, dto)
	}
	return out
}

func (h *Handler) movieDTO(ctx context.Context, m domain.Movie) movieDTO {
	dto := movieDTO{
		ID:          m.ID,
		ExternalID:  m.ExternalID,
		Title:       m.Title,
		Description: m.Description,
		Rating:      m.Rating,
		GenreIDs:    m.GenreIDs,
		Genres:      h.genres.Resolve(ctx, m.GenreIDs),
	}
	if dto.GenreIDs == nil {
		dto.GenreIDs = []int{}
	}
	if m.ReleaseDate != nil {
		date := m.ReleaseDate.Format(time.DateOnly)
		dto.ReleaseDate = &date
	}
	return dto
}

func parseLimit(r *http.Request, def int) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 1 || limit > maxListLimit {
		return 0, errBadLimit
	}
	return limit, nil
}
