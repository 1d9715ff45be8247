package recommend

import (
	"context"
	"fmt"
	"strings"

	"tg-movie-bot/internal/domain"
)

const (
	NoDescription = "Описание недоступно."
	NoRating      = "Нет рейтинга"
	Unknown       = "Не известно"

	tryCommands = "Попробуйте эти команды:\n🎬 Популярные фильмы\n🌀 Рандомный фильм"

	MsgNotRegistered    = "Вы ещё не зарегистрированы. Нажмите /start."
	MsgInsufficientData = "🤷‍♂️ У нас нет достаточно данных, чтобы предложить вам рекомендации.\n\n🎬 Оцените несколько фильмов.\n" + tryCommands
	MsgEmptyCatalog     = "😞 К сожалению, у нас пока нет фильмов для анализа. Попробуйте позже!"
	MsgNoMatches        = "🤷‍♂️ К сожалению, мы не смогли подобрать подходящие фильмы для вас.\n🎬 Оцените несколько фильмов, чтобы улучшить персональные рекомендации.\n\n" + tryCommands
	MsgNoRatings        = "📝 Вы пока не оценили ни одного фильма.\n\n" + tryCommands
)

// GenreResolver переводит id жанров в названия.
type GenreResolver interface {
	Resolve(ctx context.Context, ids []int) string
}

// Formatter готовит текст карточек фильмов.
type Formatter struct {
	genres         GenreResolver
	descriptionMax int
}

// NewFormatter создаёт форматтер. descriptionMax ограничивает описание в рунах.
func NewFormatter(genres GenreResolver, descriptionMax int) *Formatter {
	if descriptionMax <= 0 {
		descriptionMax = 500
	}
	return &Formatter{genres: genres, descriptionMax: descriptionMax}
}

// Truncate обрезает описание до max рун и добавляет многоточие.
func Truncate(description string, max int) string {
	if description == "" {
		return NoDescription
	}
	runes := []rune(description)
	if len(runes) <= max {
		return description
	}
	return string(runes[:max]) + "..."
}

// Similarity форматирует сходство в процентах. Ровно 0 означает «неизвестно».
func Similarity(value float64) string {
	if value == 0 {
		return Unknown
	}
	return fmt.Sprintf("%.1f%%", value*100)
}

// Card карточка фильма без сходства.
func (f *Formatter) Card(ctx context.Context, movie domain.Movie) string {
	release := Unknown
	if movie.ReleaseDate != nil {
		release = movie.ReleaseDate.Format("02.01.2006")
	}
	rating := NoRating
	if movie.Rating != nil {
		rating = fmt.Sprintf("%.1f", *movie.Rating)
	}
	return fmt.Sprintf("🎬 Название: %s\n📝 Описание: %s\n🎭 Жанры: %s\n📜 Релиз: %s\n⭐ Рейтинг: %s",
		movie.Title,
		Truncate(movie.Description, f.descriptionMax),
		f.genres.Resolve(ctx, movie.GenreIDs),
		release,
		rating,
	)
}

// Scored карточка фильма со сходством.
func (f *Formatter) Scored(ctx context.Context, item Scored) string {
	return f.Card(ctx, item.Movie) + "\n🤝 Сходство: " + Similarity(item.Similarity)
}

// List карточки нескольких фильмов через пустую строку.
func (f *Formatter) List(ctx context.Context, items []Scored) string {
	parts := make([]string, 0, len(items))
	for _, item := range items {
		parts = append(parts, f.Scored(ctx, item))
	}
	return strings.Join(parts, "\n\n")
}

// Result текст ответа для результата подбора.
func (f *Formatter) Result(ctx context.Context, res Result) string {
	switch res.Status {
	case StatusOK:
		return f.List(ctx, res.Items)
	case StatusNotRegistered:
		return MsgNotRegistered
	case StatusInsufficientData:
		return MsgInsufficientData
	case StatusEmptyCatalog:
		return MsgEmptyCatalog
	default:
		return MsgNoMatches
	}
}

// RatingPrompt предложение оценить фильм.
func (f *Formatter) RatingPrompt(ctx context.Context, movie domain.Movie) string {
	return "🎥 Мы предлагаем вам фильм:\n" + f.Card(ctx, movie) + "\n\n❓ Вы уже видели этот фильм? Ответьте 'да' или 'нет'."
}

// Rated список оценённых фильмов.
func (f *Formatter) Rated(ctx context.Context, rated []domain.RatedMovie) string {
	if len(rated) == 0 {
		return MsgNoRatings
	}
	parts := make([]string, 0, len(rated))
	for _, item := range rated {
		parts = append(parts, fmt.Sprintf("🎬 Название: %s\n⭐ Оценка: %d\n🎭 Жанры: %s",
			item.Movie.Title, item.Rating.Score, f.genres.Resolve(ctx, item.Movie.GenreIDs)))
	}
	return strings.Join(parts, "\n---\n")
}
