package genres

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"tg-movie-bot/internal/domain"
)

type stubProvider struct {
	mu     sync.Mutex
	genres []domain.Genre
	err    error
	calls  atomic.Int32
}

func (s *stubProvider) SearchByTitle(context.Context, string) ([]domain.RawMovie, error) {
	return nil, nil
}

func (s *stubProvider) PopularMovies(context.Context, int) ([]domain.RawMovie, error) {
	return nil, nil
}

func (s *stubProvider) TopRatedMovies(context.Context, int) ([]domain.RawMovie, error) {
	return nil, nil
}

func (s *stubProvider) GenreList(ctx context.Context) ([]domain.Genre, error) {
	s.calls.Add(1)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	return append([]domain.Genre(nil), s.genres...), nil
}

func newCache(t *testing.T, p *stubProvider) *Cache {
	t.Helper()
	c, err := NewCache(p, zerolog.Nop(), time.UTC, "03:30")
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	return c
}

func TestResolveNames(t *testing.T) {
	p := &stubProvider{genres: []domain.Genre{{ID: 28, Name: "боевик"}, {ID: 18, Name: "драма"}}}
	c := newCache(t, p)

	cases := []struct {
		ids  []int
		want string
	}{
		{ids: nil, want: NoGenres},
		{ids: []int{28}, want: "боевик"},
		{ids: []int{18, 28}, want: "драма, боевик"},
		{ids: []int{28, 999}, want: "боевик, " + UnknownGenre},
	}
	for _, tc := range cases {
		if got := c.Resolve(context.Background(), tc.ids); got != tc.want {
			t.Fatalf("для %v ожидали %q, получили %q", tc.ids, tc.want, got)
		}
	}
	if p.calls.Load() != 1 {
		t.Fatalf("ожидали одно обращение к провайдеру, получили %d", p.calls.Load())
	}
}

func TestResolveColdCacheSingleRefresh(t *testing.T) {
	p := &stubProvider{genres: []domain.Genre{{ID: 1, Name: "комедия"}}}
	c := newCache(t, p)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if got := c.Resolve(context.Background(), []int{1}); got != "комедия" {
				t.Errorf("ожидали комедию, получили %q", got)
			}
		}()
	}
	wg.Wait()
	if n := c.size(); n != 1 {
		t.Fatalf("ожидали один жанр в кэше, получили %d", n)
	}
}

func TestResolveColdCacheIgnoresCallerCancel(t *testing.T) {
	p := &stubProvider{genres: []domain.Genre{{ID: 28, Name: "боевик"}}}
	c := newCache(t, p)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if got := c.Resolve(ctx, []int{28}); got != "боевик" {
		t.Fatalf("отменённый запрос не должен срывать загрузку справочника, получили %q", got)
	}
	if got := c.Resolve(context.Background(), []int{28}); got != "боевик" || p.calls.Load() != 1 {
		t.Fatalf("ожидали заполненный кэш после одной загрузки, получили %q и %d обращений", got, p.calls.Load())
	}
}

func TestRefreshFailureKeepsSnapshot(t *testing.T) {
	p := &stubProvider{genres: []domain.Genre{{ID: 1, Name: "комедия"}}}
	c := newCache(t, p)
	if err := c.Refresh(context.Background()); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}

	p.mu.Lock()
	p.err = errors.New("timeout")
	p.mu.Unlock()

	if err := c.Refresh(context.Background()); err == nil {
		t.Fatalf("ожидали ошибку обновления")
	}
	if got := c.Resolve(context.Background(), []int{1}); got != "комедия" {
		t.Fatalf("ожидали сохранение прежнего снимка, получили %q", got)
	}
}

func TestResolveProviderDownReturnsUnknown(t *testing.T) {
	p := &stubProvider{err: errors.New("down")}
	c := newCache(t, p)
	if got := c.Resolve(context.Background(), []int{5}); got != UnknownGenre {
		t.Fatalf("ожидали %q, получили %q", UnknownGenre, got)
	}
}

func TestNextRefresh(t *testing.T) {
	c := newCache(t, &stubProvider{})

	before := time.Date(2024, 5, 10, 1, 0, 0, 0, time.UTC)
	if got := c.nextRefresh(before); !got.Equal(time.Date(2024, 5, 10, 3, 30, 0, 0, time.UTC)) {
		t.Fatalf("ожидали обновление сегодня, получили %v", got)
	}
	after := time.Date(2024, 5, 10, 3, 30, 0, 0, time.UTC)
	if got := c.nextRefresh(after); !got.Equal(time.Date(2024, 5, 11, 3, 30, 0, 0, time.UTC)) {
		t.Fatalf("ожидали обновление завтра, получили %v", got)
	}
}

func TestParseClock(t *testing.T) {
	if _, err := NewCache(&stubProvider{}, zerolog.Nop(), time.UTC, "25:00"); err == nil {
		t.Fatalf("ожидали ошибку для некорректного часа")
	}
	if _, err := NewCache(&stubProvider{}, zerolog.Nop(), time.UTC, "noon"); err == nil {
		t.Fatalf("ожидали ошибку для строки без двоеточия")
	}
	d, err := parseClock("")
	if err != nil || d != 0 {
		t.Fatalf("пустое значение должно означать полночь")
	}
}

func (c *Cache) size() int {
	return len(*c.current.Load())
}
