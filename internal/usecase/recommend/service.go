package recommend

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/rs/zerolog"

	"tg-movie-bot/internal/domain"
	"tg-movie-bot/internal/infra/metrics"
	"tg-movie-bot/internal/usecase/preference"
	"tg-movie-bot/internal/usecase/similarity"
)

// Status исход подбора рекомендаций.
type Status string

const (
	StatusOK               Status = "ok"
	StatusNotRegistered    Status = "not_registered"
	StatusInsufficientData Status = "insufficient_data"
	StatusEmptyCatalog     Status = "empty_catalog"
	StatusNoMatches        Status = "no_matches"
)

// Scored фильм с косинусным сходством к профилю пользователя.
type Scored struct {
	Movie      domain.Movie
	Similarity float64
}

// Result результат подбора. Items заполнен только для StatusOK.
type Result struct {
	Status Status
	Items  []Scored
}

// Service подбирает фильмы по вектору предпочтений.
type Service struct {
	users      domain.UserRepo
	movies     domain.MovieRepo
	prefs      *preference.Service
	logger     zerolog.Logger
	sampleSize int
	topN       int
}

// NewService создаёт сервис рекомендаций.
func NewService(users domain.UserRepo, movies domain.MovieRepo, prefs *preference.Service, logger zerolog.Logger, sampleSize, topN int) *Service {
	if sampleSize <= 0 {
		sampleSize = 10
	}
	if topN <= 0 {
		topN = 5
	}
	return &Service{users: users, movies: movies, prefs: prefs, logger: logger, sampleSize: sampleSize, topN: topN}
}

// TopN выбирает лучшие фильмы из случайной выборки каталога.
func (s *Service) TopN(ctx context.Context, chatID int64) (Result, error) {
	res, err := s.selectTopN(ctx, chatID)
	if err == nil {
		metrics.IncRecommendation("top_n", string(res.Status))
	}
	return res, err
}

func (s *Service) selectTopN(ctx context.Context, chatID int64) (Result, error) {
	vector, status, err := s.vectorFor(ctx, chatID)
	if err != nil || status != StatusOK {
		return Result{Status: status}, err
	}
	sample, err := s.movies.Sample(ctx, s.sampleSize)
	if err != nil {
		return Result{}, fmt.Errorf("выборка каталога: %w", err)
	}
	if len(sample) == 0 {
		return Result{Status: StatusEmptyCatalog}, nil
	}
	scored := make([]Scored, 0, len(sample))
	for _, movie := range sample {
		sim := similarity.Cosine(vector, similarity.MovieVectorOf(movie.GenreIDs))
		s.logger.Debug().Int64("movie", movie.ExternalID).Float64("similarity", sim).Msg("сходство фильма")
		if sim > 0 {
			scored = append(scored, Scored{Movie: movie, Similarity: sim})
		}
	}
	if len(scored) == 0 {
		return Result{Status: StatusNoMatches}, nil
	}
	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Similarity > scored[j].Similarity })
	if len(scored) > s.topN {
		scored = scored[:s.topN]
	}
	return Result{Status: StatusOK, Items: scored}, nil
}

// BestMatch выбирает единственный фильм с максимальным сходством по всему каталогу.
// При равенстве побеждает фильм с меньшим внутренним id.
func (s *Service) BestMatch(ctx context.Context, chatID int64) (Result, error) {
	res, err := s.bestMatch(ctx, chatID)
	if err == nil {
		metrics.IncRecommendation("best_match", string(res.Status))
	}
	return res, err
}

func (s *Service) bestMatch(ctx context.Context, chatID int64) (Result, error) {
	vector, status, err := s.vectorFor(ctx, chatID)
	if err != nil || status != StatusOK {
		return Result{Status: status}, err
	}
	all, err := s.movies.List(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("чтение каталога: %w", err)
	}
	if len(all) == 0 {
		return Result{Status: StatusEmptyCatalog}, nil
	}
	best := Scored{Similarity: -1}
	for _, movie := range all {
		sim := similarity.Cosine(vector, similarity.MovieVectorOf(movie.GenreIDs))
		if sim > best.Similarity {
			best = Scored{Movie: movie, Similarity: sim}
		}
	}
	s.logger.Info().Int64("chat", chatID).Int64("movie", best.Movie.ExternalID).Float64("similarity", best.Similarity).Msg("лучший фильм подобран")
	return Result{Status: StatusOK, Items: []Scored{best}}, nil
}

// Score считает сходство каждого фильма с профилем пользователя.
// Для незарегистрированного пользователя или пустого профиля сходство нулевое.
func (s *Service) Score(ctx context.Context, chatID int64, movies []domain.Movie) ([]Scored, error) {
	vector, _, err := s.vectorFor(ctx, chatID)
	if err != nil {
		return nil, err
	}
	out := make([]Scored, 0, len(movies))
	for _, movie := range movies {
		out = append(out, Scored{Movie: movie, Similarity: similarity.Cosine(vector, similarity.MovieVectorOf(movie.GenreIDs))})
	}
	return out, nil
}

func (s *Service) vectorFor(ctx context.Context, chatID int64) (domain.PreferenceVector, Status, error) {
	user, err := s.users.GetByChatID(ctx, chatID)
	if errors.Is(err, domain.ErrUserNotFound) {
		return nil, StatusNotRegistered, nil
	}
	if err != nil {
		return nil, "", fmt.Errorf("получение пользователя: %w", err)
	}
	vector, err := s.prefs.Build(ctx, user)
	if err != nil {
		return nil, "", fmt.Errorf("построение предпочтений: %w", err)
	}
	if len(vector) == 0 {
		return nil, StatusInsufficientData, nil
	}
	return vector, StatusOK, nil
}
