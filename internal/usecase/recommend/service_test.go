package recommend

import (
	"context"
	"math"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"

	"tg-movie-bot/internal/adapters/memory"
	"tg-movie-bot/internal/domain"
	"tg-movie-bot/internal/infra/metrics"
	"tg-movie-bot/internal/usecase/preference"
)

// orderedMovies отдаёт выборку в порядке id, чтобы тесты были детерминированными.
type orderedMovies struct {
	*memory.Store
}

func (o orderedMovies) Sample(ctx context.Context, limit int) ([]domain.Movie, error) {
	all, err := o.List(ctx)
	if err != nil {
		return nil, err
	}
	if len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

type fixture struct {
	store *memory.Store
	svc   *Service
	user  domain.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.New()
	user, _, err := store.UpsertByChatID(context.Background(), domain.TelegramProfile{ChatID: 42})
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	svc := NewService(store, orderedMovies{store}, preference.NewService(store, store), zerolog.Nop(), 10, 5)
	return &fixture{store: store, svc: svc, user: user}
}

func (f *fixture) movie(t *testing.T, externalID int64, genres ...int) domain.Movie {
	t.Helper()
	m, err := f.store.UpsertByExternalID(context.Background(), domain.Movie{ExternalID: externalID, Title: "m", GenreIDs: genres})
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	return m
}

func (f *fixture) rate(t *testing.T, movie domain.Movie, score int) {
	t.Helper()
	if _, err := f.store.UpsertRating(context.Background(), f.user.ID, movie.ID, score); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
}

func TestBestMatchFirstWinsTies(t *testing.T) {
	f := newFixture(t)
	rated := f.movie(t, 1, 1, 2)
	f.rate(t, rated, 7)
	f.movie(t, 2, 3)
	f.movie(t, 3, 1, 2)

	res, err := f.svc.BestMatch(context.Background(), 42)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if res.Status != StatusOK || len(res.Items) != 1 {
		t.Fatalf("ожидали один результат, получили %+v", res)
	}
	if res.Items[0].Movie.ExternalID != 1 || math.Abs(res.Items[0].Similarity-1) > 1e-9 {
		t.Fatalf("ожидали первый фильм со сходством 1, получили %+v", res.Items[0])
	}
}

func TestBestMatchZeroSimilarityStillReturned(t *testing.T) {
	f := newFixture(t)
	rated := f.movie(t, 1, 1)
	f.rate(t, rated, 5)

	// фильм без жанров даёт нулевое сходство, но превосходит начальное -1
	other := orderedMovies{memory.New()}
	_, _ = other.UpsertByExternalID(context.Background(), domain.Movie{ExternalID: 9})
	svc := NewService(f.store, other, preference.NewService(f.store, f.store), zerolog.Nop(), 10, 5)

	res, err := svc.BestMatch(context.Background(), 42)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if res.Status != StatusOK || res.Items[0].Movie.ExternalID != 9 || res.Items[0].Similarity != 0 {
		t.Fatalf("неверный результат: %+v", res)
	}
}

func TestStatuses(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.svc.TopN(ctx, 777)
	if err != nil || res.Status != StatusNotRegistered {
		t.Fatalf("ожидали not_registered, получили %+v, %v", res, err)
	}
	res, err = f.svc.BestMatch(ctx, 42)
	if err != nil || res.Status != StatusInsufficientData {
		t.Fatalf("ожидали insufficient_data, получили %+v, %v", res, err)
	}

	empty := NewService(f.store, orderedMovies{memory.New()}, preference.NewService(f.store, f.store), zerolog.Nop(), 10, 5)
	rated := f.movie(t, 1, 4)
	f.rate(t, rated, 6)
	res, err = empty.TopN(ctx, 42)
	if err != nil || res.Status != StatusEmptyCatalog {
		t.Fatalf("ожидали empty_catalog, получили %+v, %v", res, err)
	}
	res, err = empty.BestMatch(ctx, 42)
	if err != nil || res.Status != StatusEmptyCatalog {
		t.Fatalf("ожидали empty_catalog, получили %+v, %v", res, err)
	}
}

func TestTopNNoMatches(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rated := f.movie(t, 1, 1)
	f.rate(t, rated, 8)

	disjoint := orderedMovies{memory.New()}
	_, _ = disjoint.UpsertByExternalID(ctx, domain.Movie{ExternalID: 2, GenreIDs: []int{2}})
	svc := NewService(f.store, disjoint, preference.NewService(f.store, f.store), zerolog.Nop(), 10, 5)

	before := testutil.ToFloat64(metrics.RecommendationsTotal.WithLabelValues("top_n", string(StatusNoMatches)))
	res, err := svc.TopN(ctx, 42)
	if err != nil || res.Status != StatusNoMatches {
		t.Fatalf("ожидали no_matches, получили %+v, %v", res, err)
	}
	after := testutil.ToFloat64(metrics.RecommendationsTotal.WithLabelValues("top_n", string(StatusNoMatches)))
	if after-before != 1 {
		t.Fatalf("ожидали увеличение счётчика рекомендаций")
	}
}

func TestTopNOrderingAndLimit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rated := f.movie(t, 1, 1, 2)
	f.rate(t, rated, 10)
	second := f.movie(t, 2, 1)
	f.rate(t, second, 2)
	// вектор {1:12, 2:10}
	f.movie(t, 3, 3)
	f.movie(t, 4, 2)
	f.movie(t, 5, 1, 2)
	f.movie(t, 6, 1)
	f.movie(t, 7, 1, 2)

	res, err := f.svc.TopN(ctx, 42)
	if err != nil || res.Status != StatusOK {
		t.Fatalf("ожидали ok, получили %+v, %v", res, err)
	}
	if len(res.Items) != 5 {
		t.Fatalf("ожидали 5 фильмов, получили %d", len(res.Items))
	}
	for i := 1; i < len(res.Items); i++ {
		if res.Items[i].Similarity > res.Items[i-1].Similarity {
			t.Fatalf("результаты должны идти по убыванию сходства")
		}
		if res.Items[i].Similarity <= 0 {
			t.Fatalf("нулевое сходство должно отбрасываться")
		}
	}
	// среди равных сохраняется порядок выборки
	if res.Items[0].Movie.ExternalID != 1 || res.Items[1].Movie.ExternalID != 5 || res.Items[2].Movie.ExternalID != 7 {
		t.Fatalf("нарушен стабильный порядок: %v, %v, %v", res.Items[0].Movie.ExternalID, res.Items[1].Movie.ExternalID, res.Items[2].Movie.ExternalID)
	}
}

func TestScoreWithoutProfile(t *testing.T) {
	f := newFixture(t)
	items, err := f.svc.Score(context.Background(), 999, []domain.Movie{{ExternalID: 1, GenreIDs: []int{1}}})
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if len(items) != 1 || items[0].Similarity != 0 {
		t.Fatalf("ожидали нулевое сходство, получили %+v", items)
	}
}
