package memory

import (
	"context"
	"errors"
	"testing"

	"tg-movie-bot/internal/domain"
)

func TestUpsertMovieKeepsInternalID(t *testing.T) {
	ctx := context.Background()
	s := New()

	first, err := s.UpsertByExternalID(ctx, domain.Movie{ExternalID: 603, Title: "Матрица", GenreIDs: []int{28}})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	second, err := s.UpsertByExternalID(ctx, domain.Movie{ExternalID: 603, Title: "The Matrix", GenreIDs: []int{28, 878}})
	if err != nil {
		t.Fatalf("повторный upsert: %v", err)
	}
	if first.ID != second.ID || s.moviesCount() != 1 {
		t.Fatalf("повторный upsert не должен создавать строку: %d/%d, всего %d", first.ID, second.ID, s.moviesCount())
	}
	got, err := s.GetByExternalID(ctx, 603)
	if err != nil || got.Title != "The Matrix" || len(got.GenreIDs) != 2 {
		t.Fatalf("поля должны перезаписываться: %+v, %v", got, err)
	}
	if _, err := s.GetByExternalID(ctx, 1); !errors.Is(err, domain.ErrMovieNotFound) {
		t.Fatalf("ожидали ErrMovieNotFound, получили %v", err)
	}
}

func TestUpsertRatingSingleRowPerPair(t *testing.T) {
	ctx := context.Background()
	s := New()
	user, created, err := s.UpsertByChatID(ctx, domain.TelegramProfile{ChatID: -100, FirstName: "Группа"})
	if err != nil || !created {
		t.Fatalf("регистрация: %v, created=%v", err, created)
	}
	movie, _ := s.UpsertByExternalID(ctx, domain.Movie{ExternalID: 1})
	other, _ := s.UpsertByExternalID(ctx, domain.Movie{ExternalID: 2})

	if _, err := s.UpsertRating(ctx, user.ID, movie.ID, 4); err != nil {
		t.Fatalf("оценка: %v", err)
	}
	if _, err := s.UpsertRating(ctx, user.ID, movie.ID, 8); err != nil {
		t.Fatalf("повторная оценка: %v", err)
	}
	if _, err := s.UpsertRating(ctx, user.ID, other.ID, 6); err != nil {
		t.Fatalf("оценка второго фильма: %v", err)
	}
	if s.ratingsCount() != 2 {
		t.Fatalf("ожидали две строки оценок, получили %d", s.ratingsCount())
	}
	rated, err := s.ListByUser(ctx, user.ID)
	if err != nil || len(rated) != 2 {
		t.Fatalf("ожидали две оценки: %v, %v", rated, err)
	}
	if rated[0].Movie.ExternalID != 2 || rated[1].Rating.Score != 8 {
		t.Fatalf("неверный порядок или значение: %+v", rated)
	}
	if _, err := s.UpsertRating(ctx, user.ID, 999, 5); !errors.Is(err, domain.ErrMovieNotFound) {
		t.Fatalf("оценка несуществующего фильма: %v", err)
	}

	_, created, _ = s.UpsertByChatID(ctx, domain.TelegramProfile{ChatID: -100, FirstName: "Группа 2"})
	if created {
		t.Fatalf("повторная регистрация не создаёт пользователя")
	}
}

func TestCacheGenreVectorRespectsVersion(t *testing.T) {
	ctx := context.Background()
	s := New()
	user, _, _ := s.UpsertByChatID(ctx, domain.TelegramProfile{ChatID: 5})
	movie, _ := s.UpsertByExternalID(ctx, domain.Movie{ExternalID: 1, GenreIDs: []int{28}})

	vector := domain.PreferenceVector{"28": 7}
	if ok, err := s.CacheGenreVector(ctx, user.ID, user.VectorVersion, vector); err != nil || !ok {
		t.Fatalf("вектор текущей версии должен сохраниться: %v, %v", ok, err)
	}
	vector["28"] = 100
	got, _ := s.GetByChatID(ctx, 5)
	if got.GenreVector["28"] != 7 {
		t.Fatalf("хранилище должно копировать вектор, получили %v", got.GenreVector)
	}

	if _, err := s.UpsertRating(ctx, user.ID, movie.ID, 9); err != nil {
		t.Fatalf("оценка: %v", err)
	}
	got, _ = s.GetByChatID(ctx, 5)
	if got.GenreVector != nil || got.VectorVersion != user.VectorVersion+1 {
		t.Fatalf("оценка должна сбросить кэш и увеличить версию: %+v", got)
	}
	if ok, _ := s.CacheGenreVector(ctx, user.ID, user.VectorVersion, domain.PreferenceVector{"28": 7}); ok {
		t.Fatalf("вектор устаревшей версии не должен сохраняться")
	}
	if ok, _ := s.CacheGenreVector(ctx, 999, 0, vector); ok {
		t.Fatalf("для неизвестного пользователя вектор не сохраняется")
	}
	if _, err := s.UpsertRating(ctx, 999, movie.ID, 5); !errors.Is(err, domain.ErrUserNotFound) {
		t.Fatalf("ожидали ErrUserNotFound, получили %v", err)
	}
}

func (s *Store) moviesCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.movies)
}

func (s *Store) ratingsCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.ratings)
}
