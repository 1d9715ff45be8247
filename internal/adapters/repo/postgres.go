package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"tg-movie-bot/internal/domain"
	"tg-movie-bot/internal/infra/metrics"
)

// Postgres реализует репозитории на основе pgxpool.
type Postgres struct {
	pool *pgxpool.Pool
}

var (
	_ domain.UserRepo   = (*Postgres)(nil)
	_ domain.MovieRepo  = (*Postgres)(nil)
	_ domain.RatingRepo = (*Postgres)(nil)
)

// NewPostgres создаёт адаптер БД.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (p *Postgres) connCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		return context.WithTimeout(context.Background(), 5*time.Second)
	}
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, 5*time.Second)
}

const userColumns = `id, chat_id, username, first_name, last_name, language_code, is_premium, is_bot, genre_vector, vector_version, created_at, updated_at`

func scanUser(row pgx.Row) (domain.User, error) {
	var (
		user     domain.User
		username *string
		first    *string
		last     *string
		lang     *string
		vector   []byte
	)
	if err := row.Scan(&user.ID, &user.ChatID, &username, &first, &last, &lang, &user.IsPremium, &user.IsBot, &vector, &user.VectorVersion, &user.CreatedAt, &user.UpdatedAt); err != nil {
		return domain.User{}, err
	}
	user.Username = deref(username)
	user.FirstName = deref(first)
	user.LastName = deref(last)
	user.LanguageCode = deref(lang)
	if len(vector) > 0 {
		if err := json.Unmarshal(vector, &user.GenreVector); err != nil {
			return domain.User{}, fmt.Errorf("разбор genre_vector: %w", err)
		}
	}
	return user, nil
}

// UpsertByChatID реализует domain.UserRepo. Второй результат true, если пользователь создан.
func (p *Postgres) UpsertByChatID(ctx context.Context, profile domain.TelegramProfile) (domain.User, bool, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	var created bool
	start := time.Now()
	row := p.pool.QueryRow(ctx, `
INSERT INTO users (chat_id, username, first_name, last_name, language_code, is_premium, is_bot)
VALUES ($1, NULLIF($2,''), NULLIF($3,''), NULLIF($4,''), NULLIF($5,''), $6, $7)
ON CONFLICT (chat_id) DO UPDATE SET username = EXCLUDED.username, first_name = EXCLUDED.first_name, last_name = EXCLUDED.last_name, language_code = EXCLUDED.language_code, is_premium = EXCLUDED.is_premium, is_bot = EXCLUDED.is_bot, updated_at = now()
RETURNING `+userColumns+`, (xmax = 0) AS inserted
`, profile.ChatID, profile.Username, profile.FirstName, profile.LastName, profile.LanguageCode, profile.IsPremium, profile.IsBot)
	user, err := scanUser(rowWithTail{row: row, tail: &created})
	metrics.ObserveNetworkRequest("postgres", "users_upsert", "users", start, err)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return domain.User{}, false, fmt.Errorf("конфликт уникальности пользователя: %w", err)
		}
		return domain.User{}, false, err
	}
	return user, created, nil
}

// GetByChatID возвращает пользователя по chat id.
func (p *Postgres) GetByChatID(ctx context.Context, chatID int64) (domain.User, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	user, err := scanUser(p.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE chat_id=$1`, chatID))
	metrics.ObserveNetworkRequest("postgres", "users_get_by_chat", "users", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.User{}, domain.ErrUserNotFound
	}
	return user, err
}

// CacheGenreVector сохраняет вектор, если с момента чтения пользователя не появилось новых оценок.
func (p *Postgres) CacheGenreVector(ctx context.Context, userID, version int64, vector domain.PreferenceVector) (bool, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	payload, err := json.Marshal(vector)
	if err != nil {
		return false, fmt.Errorf("сериализация вектора: %w", err)
	}
	start := time.Now()
	tag, err := p.pool.Exec(ctx, `UPDATE users SET genre_vector=$3 WHERE id=$1 AND vector_version=$2`, userID, version, payload)
	metrics.ObserveNetworkRequest("postgres", "users_cache_vector", "users", start, err)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

const movieColumns = `id, external_id, title, description, release_date, rating, genre_ids, updated_at`

func scanMovie(row pgx.Row) (domain.Movie, error) {
	var (
		movie   domain.Movie
		release *time.Time
		genres  []int64
	)
	if err := row.Scan(&movie.ID, &movie.ExternalID, &movie.Title, &movie.Description, &release, &movie.Rating, &genres, &movie.UpdatedAt); err != nil {
		return domain.Movie{}, err
	}
	movie.ReleaseDate = release
	movie.GenreIDs = make([]int, 0, len(genres))
	for _, g := range genres {
		movie.GenreIDs = append(movie.GenreIDs, int(g))
	}
	return movie, nil
}

// UpsertByExternalID вставляет фильм или полностью перезаписывает поля существующего.
func (p *Postgres) UpsertByExternalID(ctx context.Context, movie domain.Movie) (domain.Movie, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	genres := make([]int64, 0, len(movie.GenreIDs))
	for _, g := range movie.GenreIDs {
		genres = append(genres, int64(g))
	}
	start := time.Now()
	saved, err := scanMovie(p.pool.QueryRow(ctx, `
INSERT INTO movies (external_id, title, description, release_date, rating, genre_ids)
VALUES ($1,$2,$3,$4,$5,$6)
ON CONFLICT (external_id) DO UPDATE SET title=EXCLUDED.title, description=EXCLUDED.description, release_date=EXCLUDED.release_date, rating=EXCLUDED.rating, genre_ids=EXCLUDED.genre_ids, updated_at=now()
RETURNING `+movieColumns+`
`, movie.ExternalID, movie.Title, movie.Description, movie.ReleaseDate, movie.Rating, genres))
	metrics.ObserveNetworkRequest("postgres", "movies_upsert", "movies", start, err)
	return saved, err
}

// GetByExternalID возвращает фильм по внешнему id.
func (p *Postgres) GetByExternalID(ctx context.Context, externalID int64) (domain.Movie, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	movie, err := scanMovie(p.pool.QueryRow(ctx, `SELECT `+movieColumns+` FROM movies WHERE external_id=$1`, externalID))
	metrics.ObserveNetworkRequest("postgres", "movies_get_by_external", "movies", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Movie{}, domain.ErrMovieNotFound
	}
	return movie, err
}

// List возвращает весь каталог в порядке внутренних id.
func (p *Postgres) List(ctx context.Context) ([]domain.Movie, error) {
	return p.queryMovies(ctx, "movies_list", `SELECT `+movieColumns+` FROM movies ORDER BY id`)
}

// Sample возвращает случайную выборку фильмов без повторений.
func (p *Postgres) Sample(ctx context.Context, limit int) ([]domain.Movie, error) {
	return p.queryMovies(ctx, "movies_sample", `SELECT `+movieColumns+` FROM movies ORDER BY random() LIMIT $1`, limit)
}

func (p *Postgres) queryMovies(ctx context.Context, operation, query string, args ...any) ([]domain.Movie, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, query, args...)
	metrics.ObserveNetworkRequest("postgres", operation, "movies", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var movies []domain.Movie
	for rows.Next() {
		movie, err := scanMovie(rows)
		if err != nil {
			return nil, err
		}
		movies = append(movies, movie)
	}
	return movies, rows.Err()
}

// UpsertRating сохраняет оценку и в том же запросе сбрасывает кэш вектора пользователя.
func (p *Postgres) UpsertRating(ctx context.Context, userID, movieID int64, score int) (domain.Rating, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	var rating domain.Rating
	start := time.Now()
	err := p.pool.QueryRow(ctx, `
WITH saved AS (
    INSERT INTO ratings (user_id, movie_id, score)
    VALUES ($1,$2,$3)
    ON CONFLICT (user_id, movie_id) DO UPDATE SET score=EXCLUDED.score, updated_at=now()
    RETURNING id, user_id, movie_id, score, created_at, updated_at
), invalidated AS (
    UPDATE users SET genre_vector=NULL, vector_version=vector_version+1, updated_at=now() WHERE id=$1
)
SELECT id, user_id, movie_id, score, created_at, updated_at FROM saved
`, userID, movieID, score).Scan(&rating.ID, &rating.UserID, &rating.MovieID, &rating.Score, &rating.CreatedAt, &rating.UpdatedAt)
	metrics.ObserveNetworkRequest("postgres", "ratings_upsert", "ratings", start, err)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return domain.Rating{}, fmt.Errorf("оценка ссылается на отсутствующую запись: %w", domain.ErrMovieNotFound)
		}
		return domain.Rating{}, err
	}
	return rating, nil
}

// ListByUser возвращает оценки пользователя вместе с фильмами, новые первыми.
func (p *Postgres) ListByUser(ctx context.Context, userID int64) ([]domain.RatedMovie, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT r.id, r.user_id, r.movie_id, r.score, r.created_at, r.updated_at,
       m.id, m.external_id, m.title, m.description, m.release_date, m.rating, m.genre_ids, m.updated_at
FROM ratings r JOIN movies m ON m.id = r.movie_id
WHERE r.user_id = $1
ORDER BY r.id DESC
`, userID)
	metrics.ObserveNetworkRequest("postgres", "ratings_list_by_user", "ratings", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.RatedMovie
	for rows.Next() {
		var (
			item    domain.RatedMovie
			release *time.Time
			genres  []int64
		)
		if err := rows.Scan(&item.Rating.ID, &item.Rating.UserID, &item.Rating.MovieID, &item.Rating.Score, &item.Rating.CreatedAt, &item.Rating.UpdatedAt,
			&item.Movie.ID, &item.Movie.ExternalID, &item.Movie.Title, &item.Movie.Description, &release, &item.Movie.Rating, &genres, &item.Movie.UpdatedAt); err != nil {
			return nil, err
		}
		item.Movie.ReleaseDate = release
		item.Movie.GenreIDs = make([]int, 0, len(genres))
		for _, g := range genres {
			item.Movie.GenreIDs = append(item.Movie.GenreIDs, int(g))
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

// rowWithTail дочитывает дополнительную колонку после основных полей.
type rowWithTail struct {
	row  pgx.Row
	tail any
}

func (r rowWithTail) Scan(dest ...any) error {
	return r.row.Scan(append(dest, r.tail)...)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
