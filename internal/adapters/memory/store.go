// Package memory хранит пользователей, фильмы и оценки в памяти процесса.
// Используется в dev-режиме без PG_DSN и в тестах.
package memory

import (
	"context"
	"math/rand"
	"sort"
	"sync"
	"time"

	"tg-movie-bot/internal/domain"
)

var (
	_ domain.UserRepo   = (*Store)(nil)
	_ domain.MovieRepo  = (*Store)(nil)
	_ domain.RatingRepo = (*Store)(nil)
)

type ratingKey struct {
	userID  int64
	movieID int64
}

// Store реализует репозитории с теми же ограничениями уникальности, что и схема БД.
type Store struct {
	mu sync.RWMutex

	nextUserID   int64
	nextMovieID  int64
	nextRatingID int64

	users       map[int64]domain.User  // chat id -> user
	movies      map[int64]domain.Movie // internal id -> movie
	moviesByExt map[int64]int64        // external id -> internal id
	ratings     map[ratingKey]domain.Rating
}

// New создаёт пустое хранилище.
func New() *Store {
	return &Store{
		users:       make(map[int64]domain.User),
		movies:      make(map[int64]domain.Movie),
		moviesByExt: make(map[int64]int64),
		ratings:     make(map[ratingKey]domain.Rating),
	}
}

// UpsertByChatID создаёт пользователя или обновляет профиль. Второй результат true для нового пользователя.
func (s *Store) UpsertByChatID(_ context.Context, profile domain.TelegramProfile) (domain.User, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	user, ok := s.users[profile.ChatID]
	if !ok {
		s.nextUserID++
		user = domain.User{ID: s.nextUserID, ChatID: profile.ChatID, CreatedAt: now}
	}
	user.Username = profile.Username
	user.FirstName = profile.FirstName
	user.LastName = profile.LastName
	user.LanguageCode = profile.LanguageCode
	user.IsPremium = profile.IsPremium
	user.IsBot = profile.IsBot
	user.UpdatedAt = now
	s.users[profile.ChatID] = user
	return cloneUser(user), !ok, nil
}

// GetByChatID возвращает пользователя по chat id.
func (s *Store) GetByChatID(_ context.Context, chatID int64) (domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, ok := s.users[chatID]
	if !ok {
		return domain.User{}, domain.ErrUserNotFound
	}
	return cloneUser(user), nil
}

// CacheGenreVector сохраняет вектор, если с момента чтения пользователя не появилось новых оценок.
func (s *Store) CacheGenreVector(_ context.Context, userID, version int64, vector domain.PreferenceVector) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	chatID, ok := s.chatOf(userID)
	if !ok {
		return false, nil
	}
	user := s.users[chatID]
	if user.VectorVersion != version {
		return false, nil
	}
	user.GenreVector = cloneVector(vector)
	s.users[chatID] = user
	return true, nil
}

// chatOf ищет chat id по внутреннему id. Вызывается под блокировкой.
func (s *Store) chatOf(userID int64) (int64, bool) {
	for chatID, user := range s.users {
		if user.ID == userID {
			return chatID, true
		}
	}
	return 0, false
}

// UpsertByExternalID вставляет фильм или полностью перезаписывает существующий.
func (s *Store) UpsertByExternalID(_ context.Context, movie domain.Movie) (domain.Movie, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.moviesByExt[movie.ExternalID]
	if !ok {
		s.nextMovieID++
		id = s.nextMovieID
		s.moviesByExt[movie.ExternalID] = id
	}
	movie.ID = id
	movie.GenreIDs = append([]int{}, movie.GenreIDs...)
	movie.UpdatedAt = time.Now().UTC()
	s.movies[id] = movie
	return movie, nil
}

// GetByExternalID возвращает фильм по внешнему id.
func (s *Store) GetByExternalID(_ context.Context, externalID int64) (domain.Movie, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.moviesByExt[externalID]
	if !ok {
		return domain.Movie{}, domain.ErrMovieNotFound
	}
	return s.movies[id], nil
}

// List возвращает весь каталог в порядке внутренних id.
func (s *Store) List(_ context.Context) ([]domain.Movie, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Movie, 0, len(s.movies))
	for _, m := range s.movies {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Sample возвращает случайную выборку без повторений.
func (s *Store) Sample(ctx context.Context, limit int) ([]domain.Movie, error) {
	all, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	rand.Shuffle(len(all), func(i, j int) { all[i], all[j] = all[j], all[i] })
	if limit >= 0 && len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

// UpsertRating сохраняет оценку и сбрасывает кэш вектора пользователя. Повторная оценка обновляет запись.
func (s *Store) UpsertRating(_ context.Context, userID, movieID int64, score int) (domain.Rating, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	chatID, ok := s.chatOf(userID)
	if !ok {
		return domain.Rating{}, domain.ErrUserNotFound
	}
	if _, ok := s.movies[movieID]; !ok {
		return domain.Rating{}, domain.ErrMovieNotFound
	}
	now := time.Now().UTC()
	key := ratingKey{userID: userID, movieID: movieID}
	rating, ok := s.ratings[key]
	if !ok {
		s.nextRatingID++
		rating = domain.Rating{ID: s.nextRatingID, UserID: userID, MovieID: movieID, CreatedAt: now}
	}
	rating.Score = score
	rating.UpdatedAt = now
	s.ratings[key] = rating

	user := s.users[chatID]
	user.GenreVector = nil
	user.VectorVersion++
	s.users[chatID] = user
	return rating, nil
}

// ListByUser возвращает оценки пользователя, новые первыми.
func (s *Store) ListByUser(_ context.Context, userID int64) ([]domain.RatedMovie, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.RatedMovie
	for key, rating := range s.ratings {
		if key.userID != userID {
			continue
		}
		out = append(out, domain.RatedMovie{Rating: rating, Movie: s.movies[key.movieID]})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Rating.ID > out[j].Rating.ID })
	return out, nil
}

func cloneUser(u domain.User) domain.User {
	u.GenreVector = cloneVector(u.GenreVector)
	return u
}

func cloneVector(v domain.PreferenceVector) domain.PreferenceVector {
	if v == nil {
		return nil
	}
	out := make(domain.PreferenceVector, len(v))
	for k, w := range v {
		out[k] = w
	}
	return out
}
