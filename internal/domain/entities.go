package domain

import "time"

// User описывает пользователя Telegram в системе.
type User struct {
	ID           int64
	ChatID       int64
	Username     string
	FirstName    string
	LastName     string
	LanguageCode string
	IsPremium    bool
	IsBot        bool
	// GenreVector кэш вектора предпочтений, nil означает «не рассчитан».
	GenreVector PreferenceVector
	// VectorVersion растёт при каждой сохранённой оценке.
	VectorVersion int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// TelegramProfile содержит данные профиля из апдейта.
type TelegramProfile struct {
	ChatID       int64
	Username     string
	FirstName    string
	LastName     string
	LanguageCode string
	IsPremium    bool
	IsBot        bool
}

// Movie описывает фильм каталога.
type Movie struct {
	ID          int64
	ExternalID  int64
	Title       string
	Description string
	ReleaseDate *time.Time
	Rating      *float64
	GenreIDs    []int
	UpdatedAt   time.Time
}

// Rating хранит оценку фильма пользователем.
type Rating struct {
	ID        int64
	UserID    int64
	MovieID   int64
	Score     int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// RatedMovie связывает оценку с фильмом.
type RatedMovie struct {
	Rating Rating
	Movie  Movie
}

// RawMovie запись фильма в том виде, в котором её вернул провайдер метаданных.
// Любое поле может отсутствовать.
type RawMovie struct {
	ExternalID  int64    `json:"id"`
	Title       *string  `json:"title"`
	Overview    *string  `json:"overview"`
	ReleaseDate *string  `json:"release_date"`
	VoteAverage *float64 `json:"vote_average"`
	GenreIDs    []int    `json:"genre_ids"`
}

// Genre жанр провайдера.
type Genre struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// PreferenceVector накопленные веса жанров пользователя.
type PreferenceVector map[string]float64

// MovieVector количество вхождений жанров фильма.
type MovieVector map[string]int
