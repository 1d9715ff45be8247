package ratings

import (
	"context"
	"errors"
	"fmt"

	"tg-movie-bot/internal/domain"
	"tg-movie-bot/internal/infra/metrics"
)

const (
	MinScore = 1
	MaxScore = 10
)

// ErrScoreOutOfRange оценка вне диапазона 1..10.
var ErrScoreOutOfRange = errors.New("оценка вне диапазона")

// Service сохраняет и читает оценки пользователя.
type Service struct {
	users   domain.UserRepo
	ratings domain.RatingRepo
}

// NewService создаёт сервис.
func NewService(users domain.UserRepo, ratings domain.RatingRepo) *Service {
	return &Service{users: users, ratings: ratings}
}

// Rate сохраняет оценку фильма. Кэш вектора предпочтений сбрасывается той же записью,
// новый вектор строится при следующем запросе рекомендаций.
func (s *Service) Rate(ctx context.Context, chatID int64, movie domain.Movie, score int) (domain.Rating, error) {
	if score < MinScore || score > MaxScore {
		return domain.Rating{}, ErrScoreOutOfRange
	}
	if movie.ID == 0 {
		return domain.Rating{}, fmt.Errorf("фильм %d не сохранён: %w", movie.ExternalID, domain.ErrMovieNotFound)
	}
	user, err := s.users.GetByChatID(ctx, chatID)
	if err != nil {
		return domain.Rating{}, fmt.Errorf("получение пользователя: %w", err)
	}
	rating, err := s.ratings.UpsertRating(ctx, user.ID, movie.ID, score)
	if err != nil {
		return domain.Rating{}, fmt.Errorf("сохранение оценки: %w", err)
	}
	metrics.RatingsSaved.Inc()
	return rating, nil
}

// List возвращает оценки пользователя, новые первыми.
func (s *Service) List(ctx context.Context, chatID int64) ([]domain.RatedMovie, error) {
	user, err := s.users.GetByChatID(ctx, chatID)
	if err != nil {
		return nil, fmt.Errorf("получение пользователя: %w", err)
	}
	return s.ratings.ListByUser(ctx, user.ID)
}
