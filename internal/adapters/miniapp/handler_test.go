package miniapp

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"
	"time"

	chi "github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"tg-movie-bot/internal/adapters/memory"
	"tg-movie-bot/internal/domain"
	httpinfra "tg-movie-bot/internal/infra/http"
	"tg-movie-bot/internal/usecase/catalog"
	"tg-movie-bot/internal/usecase/preference"
	"tg-movie-bot/internal/usecase/ratings"
	"tg-movie-bot/internal/usecase/recommend"
)

const botToken = "42:MINIAPP"

type fakeProvider struct {
	movies []domain.RawMovie
	err    error
}

func (p *fakeProvider) SearchByTitle(context.Context, string) ([]domain.RawMovie, error) {
	return p.movies, p.err
}

func (p *fakeProvider) PopularMovies(context.Context, int) ([]domain.RawMovie, error) {
	return p.movies, p.err
}

func (p *fakeProvider) TopRatedMovies(context.Context, int) ([]domain.RawMovie, error) {
	return p.movies, p.err
}

func (p *fakeProvider) GenreList(context.Context) ([]domain.Genre, error) { return nil, p.err }

type staticGenres struct{}

func (staticGenres) Resolve(context.Context, []int) string { return "боевик" }

func raw(id int64, title string, vote float64, genres ...int) domain.RawMovie {
	return domain.RawMovie{ExternalID: id, Title: &title, VoteAverage: &vote, GenreIDs: genres}
}

func newAPI(t *testing.T, provider *fakeProvider) (http.Handler, *memory.Store) {
	t.Helper()
	store := memory.New()
	prefs := preference.NewService(store, store)
	h := NewHandler(
		catalog.NewService(provider, store),
		recommend.NewService(store, store, prefs, zerolog.Nop(), 10, 5),
		ratings.NewService(store, store),
		store,
		staticGenres{},
		zerolog.Nop(),
		5,
	)
	r := chi.NewRouter()
	r.Route("/api/v1", func(api chi.Router) {
		api.Use(httpinfra.WebAppAuthMiddleware(botToken, time.Hour))
		h.Routes(api)
	})
	return r, store
}

func call(t *testing.T, h http.Handler, method, target string, userID int64, body any) *httptest.ResponseRecorder {
	t.Helper()
	var payload bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&payload).Encode(body); err != nil {
			t.Fatalf("кодирование тела: %v", err)
		}
	}
	req := httptest.NewRequest(method, target, &payload)
	if userID != 0 {
		values := url.Values{}
		values.Set("auth_date", strconv.FormatInt(time.Now().Unix(), 10))
		values.Set("user", `{"id":`+strconv.FormatInt(userID, 10)+`}`)
		req.Header.Set(httpinfra.InitDataHeader, httpinfra.SignInitData(botToken, values))
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestMiniAppRatingFlow(t *testing.T) {
	provider := &fakeProvider{movies: []domain.RawMovie{
		raw(604, "Матрица: Перезагрузка", 7.0, 28),
		raw(603, "Матрица", 8.2, 28, 878),
	}}
	api, store := newAPI(t, provider)
	if _, _, err := store.UpsertByChatID(context.Background(), domain.TelegramProfile{ChatID: 7, FirstName: "Нео"}); err != nil {
		t.Fatalf("регистрация: %v", err)
	}

	rec := call(t, api, http.MethodGet, "/api/v1/movies/search?q=матрица", 7, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("поиск: код %d, тело %s", rec.Code, rec.Body.String())
	}
	var found []movieDTO
	if err := json.Unmarshal(rec.Body.Bytes(), &found); err != nil {
		t.Fatalf("разбор ответа: %v", err)
	}
	if len(found) != 2 || found[0].ExternalID != 603 || found[0].Genres != "боевик" {
		t.Fatalf("ожидали два фильма, первым 603: %+v", found)
	}

	rec = call(t, api, http.MethodPost, "/api/v1/ratings", 7, rateRequest{ExternalID: 603, Score: 9})
	if rec.Code != http.StatusOK {
		t.Fatalf("оценка: код %d, тело %s", rec.Code, rec.Body.String())
	}

	rec = call(t, api, http.MethodGet, "/api/v1/ratings", 7, nil)
	var rated []ratedDTO
	if err := json.Unmarshal(rec.Body.Bytes(), &rated); err != nil {
		t.Fatalf("разбор оценок: %v", err)
	}
	if len(rated) != 1 || rated[0].Score != 9 || rated[0].Movie.ExternalID != 603 {
		t.Fatalf("ожидали одну оценку 9: %+v", rated)
	}

	rec = call(t, api, http.MethodGet, "/api/v1/recommendations/best", 7, nil)
	var best recommendationsDTO
	if err := json.Unmarshal(rec.Body.Bytes(), &best); err != nil {
		t.Fatalf("разбор рекомендаций: %v", err)
	}
	if best.Status != recommend.StatusOK || len(best.Items) != 1 || best.Items[0].Similarity == nil {
		t.Fatalf("ожидали одну рекомендацию со сходством: %+v", best)
	}
}

func TestMiniAppValidation(t *testing.T) {
	api, store := newAPI(t, &fakeProvider{movies: []domain.RawMovie{raw(1, "Фильм", 5, 18)}})
	if _, _, err := store.UpsertByChatID(context.Background(), domain.TelegramProfile{ChatID: 7}); err != nil {
		t.Fatalf("регистрация: %v", err)
	}

	cases := []struct {
		name   string
		method string
		target string
		body   any
		want   int
	}{
		{"пустой запрос поиска", http.MethodGet, "/api/v1/movies/search?q=%20", nil, http.StatusBadRequest},
		{"некорректный limit", http.MethodGet, "/api/v1/movies/popular?limit=100", nil, http.StatusBadRequest},
		{"фильма нет в каталоге", http.MethodPost, "/api/v1/ratings", rateRequest{ExternalID: 999, Score: 5}, http.StatusNotFound},
		{"нет external_id", http.MethodPost, "/api/v1/ratings", rateRequest{Score: 5}, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if rec := call(t, api, tc.method, tc.target, 7, tc.body); rec.Code != tc.want {
				t.Fatalf("ожидали %d, получили %d", tc.want, rec.Code)
			}
		})
	}

	call(t, api, http.MethodGet, "/api/v1/movies/popular", 7, nil)
	if rec := call(t, api, http.MethodPost, "/api/v1/ratings", 7, rateRequest{ExternalID: 1, Score: 11}); rec.Code != http.StatusBadRequest {
		t.Fatalf("оценка вне диапазона: ожидали 400, получили %d", rec.Code)
	}
}

func TestMiniAppErrors(t *testing.T) {
	api, _ := newAPI(t, &fakeProvider{err: errors.New("timeout")})

	if rec := call(t, api, http.MethodGet, "/api/v1/movies/popular", 0, nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("без initData ожидали 401, получили %d", rec.Code)
	}
	if rec := call(t, api, http.MethodGet, "/api/v1/movies/popular", 7, nil); rec.Code != http.StatusBadGateway {
		t.Fatalf("при сбое провайдера ожидали 502, получили %d", rec.Code)
	}
	if rec := call(t, api, http.MethodGet, "/api/v1/ratings", 8, nil); rec.Code != http.StatusNotFound {
		t.Fatalf("незарегистрированный пользователь: ожидали 404, получили %d", rec.Code)
	}

	rec := call(t, api, http.MethodGet, "/api/v1/recommendations", 8, nil)
	var res recommendationsDTO
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("разбор ответа: %v", err)
	}
	if rec.Code != http.StatusOK || res.Status != recommend.StatusNotRegistered || len(res.Items) != 0 {
		t.Fatalf("ожидали статус not_registered: %d %+v", rec.Code, res)
	}
}
