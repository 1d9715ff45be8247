package domain

import (
	"context"
	"time"
)

// MovieProvider источник метаданных фильмов.
type MovieProvider interface {
	SearchByTitle(ctx context.Context, query string) ([]RawMovie, error)
	PopularMovies(ctx context.Context, page int) ([]RawMovie, error)
	TopRatedMovies(ctx context.Context, page int) ([]RawMovie, error)
	GenreList(ctx context.Context) ([]Genre, error)
}

// UserRepo управляет пользователями.
type UserRepo interface {
	UpsertByChatID(ctx context.Context, profile TelegramProfile) (User, bool, error)
	GetByChatID(ctx context.Context, chatID int64) (User, error)
	// CacheGenreVector сохраняет вектор, только если VectorVersion пользователя всё ещё равна version.
	CacheGenreVector(ctx context.Context, userID, version int64, vector PreferenceVector) (bool, error)
}

// MovieRepo управляет каталогом фильмов.
type MovieRepo interface {
	UpsertByExternalID(ctx context.Context, movie Movie) (Movie, error)
	GetByExternalID(ctx context.Context, externalID int64) (Movie, error)
	List(ctx context.Context) ([]Movie, error)
	Sample(ctx context.Context, limit int) ([]Movie, error)
}

// RatingRepo управляет оценками.
type RatingRepo interface {
	// UpsertRating в той же записи сбрасывает кэш вектора пользователя и увеличивает VectorVersion.
	UpsertRating(ctx context.Context, userID, movieID int64, score int) (Rating, error)
	ListByUser(ctx context.Context, userID int64) ([]RatedMovie, error)
}

// Cache выполняет действие один раз на ключ в пределах TTL.
type Cache interface {
	Once(ctx context.Context, key string, ttl time.Duration, fn func() error) error
}
