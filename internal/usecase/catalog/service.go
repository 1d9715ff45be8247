package catalog

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"strings"
	"time"

	"tg-movie-bot/internal/domain"
	"tg-movie-bot/internal/infra/metrics"
)

const (
	// DefaultTitle подставляется, если провайдер не вернул название.
	DefaultTitle = "Нет названия"

	topRatedPages = 300
	popularPages  = 30
)

var (
	// ErrNoExternalID запись провайдера без внешнего идентификатора.
	ErrNoExternalID = errors.New("запись провайдера без идентификатора")
	// ErrEmptyQuery пустой поисковый запрос.
	ErrEmptyQuery = errors.New("пустой поисковый запрос")
)

// Source источник фильма для диалога оценки.
type Source int

const (
	// SourceRandomAll случайный фильм из рейтинга лучших.
	SourceRandomAll Source = iota
	// SourceRandomPopular случайный популярный фильм.
	SourceRandomPopular
	// SourceSearchTop первый результат поиска.
	SourceSearchTop
)

func (s Source) String() string {
	switch s {
	case SourceRandomAll:
		return "random_all"
	case SourceRandomPopular:
		return "random_popular"
	case SourceSearchTop:
		return "search_top"
	default:
		return "unknown"
	}
}

// Service ведёт каталог фильмов поверх провайдера метаданных.
type Service struct {
	provider domain.MovieProvider
	movies   domain.MovieRepo
	intn     func(n int) int
}

// NewService создаёт сервис каталога.
func NewService(provider domain.MovieProvider, movies domain.MovieRepo) *Service {
	return &Service{provider: provider, movies: movies, intn: rand.Intn}
}

// FromRaw строит фильм из записи провайдера, подставляя значения по умолчанию.
func FromRaw(raw domain.RawMovie) (domain.Movie, error) {
	if raw.ExternalID == 0 {
		return domain.Movie{}, ErrNoExternalID
	}
	movie := domain.Movie{
		ExternalID: raw.ExternalID,
		Title:      DefaultTitle,
		GenreIDs:   append([]int{}, raw.GenreIDs...),
	}
	if raw.Title != nil && strings.TrimSpace(*raw.Title) != "" {
		movie.Title = *raw.Title
	}
	if raw.Overview != nil {
		movie.Description = *raw.Overview
	}
	if raw.VoteAverage != nil {
		rating := *raw.VoteAverage
		movie.Rating = &rating
	}
	if raw.ReleaseDate != nil {
		if released, err := time.Parse(time.DateOnly, *raw.ReleaseDate); err == nil {
			movie.ReleaseDate = &released
		}
	}
	return movie, nil
}

// Upsert сохраняет запись провайдера. Повторный вызов для того же внешнего id перезаписывает поля.
func (s *Service) Upsert(ctx context.Context, raw domain.RawMovie) (domain.Movie, error) {
	movie, err := FromRaw(raw)
	if err != nil {
		return domain.Movie{}, err
	}
	saved, err := s.movies.UpsertByExternalID(ctx, movie)
	if err != nil {
		return domain.Movie{}, fmt.Errorf("сохранение фильма %d: %w", raw.ExternalID, err)
	}
	metrics.CatalogUpserts.Inc()
	return saved, nil
}

// Seed выбирает фильм у провайдера. Результат ещё не сохранён в каталоге.
func (s *Service) Seed(ctx context.Context, source Source, query string) (domain.Movie, error) {
	var (
		items []domain.RawMovie
		err   error
		pick  = -1
	)
	switch source {
	case SourceRandomAll:
		items, err = s.provider.TopRatedMovies(ctx, 1+s.intn(topRatedPages))
	case SourceRandomPopular:
		items, err = s.provider.PopularMovies(ctx, 1+s.intn(popularPages))
	case SourceSearchTop:
		if strings.TrimSpace(query) == "" {
			return domain.Movie{}, ErrEmptyQuery
		}
		items, err = s.provider.SearchByTitle(ctx, strings.TrimSpace(query))
		pick = 0
	default:
		return domain.Movie{}, fmt.Errorf("неизвестный источник %d", source)
	}
	if err != nil {
		return domain.Movie{}, providerError(err)
	}
	items = withIdentity(items)
	if len(items) == 0 {
		return domain.Movie{}, domain.ErrNoResults
	}
	if pick < 0 {
		pick = s.intn(len(items))
	}
	return FromRaw(items[pick])
}

// Ensure сохраняет фильм, если у него ещё нет внутреннего id.
func (s *Service) Ensure(ctx context.Context, movie domain.Movie) (domain.Movie, error) {
	if movie.ID != 0 {
		return movie, nil
	}
	saved, err := s.movies.UpsertByExternalID(ctx, movie)
	if err != nil {
		return domain.Movie{}, fmt.Errorf("сохранение фильма %d: %w", movie.ExternalID, err)
	}
	metrics.CatalogUpserts.Inc()
	return saved, nil
}

// Search ищет фильмы по названию, сортирует по оценке провайдера и сохраняет первые limit.
func (s *Service) Search(ctx context.Context, query string, limit int) ([]domain.Movie, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}
	items, err := s.provider.SearchByTitle(ctx, query)
	if err != nil {
		return nil, providerError(err)
	}
	items = withIdentity(items)
	sort.SliceStable(items, func(i, j int) bool {
		return voteOf(items[i]) > voteOf(items[j])
	})
	return s.upsertAll(ctx, items, limit)
}

// Popular сохраняет и возвращает до limit фильмов со случайной страницы популярных.
func (s *Service) Popular(ctx context.Context, limit int) ([]domain.Movie, error) {
	items, err := s.provider.PopularMovies(ctx, 1+s.intn(popularPages))
	if err != nil {
		return nil, providerError(err)
	}
	return s.upsertAll(ctx, withIdentity(items), limit)
}

// Random сохраняет и возвращает случайный фильм из рейтинга лучших.
func (s *Service) Random(ctx context.Context) (domain.Movie, error) {
	movie, err := s.Seed(ctx, SourceRandomAll, "")
	if err != nil {
		return domain.Movie{}, err
	}
	return s.Ensure(ctx, movie)
}

func (s *Service) upsertAll(ctx context.Context, items []domain.RawMovie, limit int) ([]domain.Movie, error) {
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	out := make([]domain.Movie, 0, len(items))
	for _, raw := range items {
		movie, err := s.Upsert(ctx, raw)
		if err != nil {
			return nil, err
		}
		out = append(out, movie)
	}
	return out, nil
}

func withIdentity(items []domain.RawMovie) []domain.RawMovie {
	out := items[:0:0]
	for _, item := range items {
		if item.ExternalID != 0 {
			out = append(out, item)
		}
	}
	return out
}

func voteOf(raw domain.RawMovie) float64 {
	if raw.VoteAverage == nil {
		return -1
	}
	return *raw.VoteAverage
}

func providerError(err error) error {
	if errors.Is(err, domain.ErrProviderUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %v", domain.ErrProviderUnavailable, err)
}
