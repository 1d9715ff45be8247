package preference

import (
	"context"
	"fmt"
	"strconv"

	"tg-movie-bot/internal/domain"
)

// Service строит вектор предпочтений пользователя по его оценкам.
type Service struct {
	users   domain.UserRepo
	ratings domain.RatingRepo
}

// NewService создаёт сервис.
func NewService(users domain.UserRepo, ratings domain.RatingRepo) *Service {
	return &Service{users: users, ratings: ratings}
}

// Accumulate суммирует оценки по жанрам фильмов.
func Accumulate(rated []domain.RatedMovie) domain.PreferenceVector {
	vector := domain.PreferenceVector{}
	for _, item := range rated {
		for _, genre := range item.Movie.GenreIDs {
			vector[strconv.Itoa(genre)] += float64(item.Rating.Score)
		}
	}
	return vector
}

// Build возвращает вектор из кэша пользователя или рассчитывает его по всем оценкам.
// Рассчитанный вектор кэшируется, только если после чтения user не было новых оценок.
func (s *Service) Build(ctx context.Context, user domain.User) (domain.PreferenceVector, error) {
	if len(user.GenreVector) > 0 {
		return user.GenreVector, nil
	}
	rated, err := s.ratings.ListByUser(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("получение оценок: %w", err)
	}
	vector := Accumulate(rated)
	if len(vector) == 0 {
		return vector, nil
	}
	if _, err := s.users.CacheGenreVector(ctx, user.ID, user.VectorVersion, vector); err != nil {
		return nil, fmt.Errorf("сохранение вектора предпочтений: %w", err)
	}
	return vector, nil
}
