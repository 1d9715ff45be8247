// Package genres хранит справочник жанров провайдера в памяти процесса.
package genres

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"tg-movie-bot/internal/domain"
	"tg-movie-bot/internal/infra/metrics"
)

// coldRefreshTimeout ограничивает загрузку справочника при первом обращении.
const coldRefreshTimeout = 10 * time.Second

const (
	// UnknownGenre подставляется для id, которого нет в справочнике.
	UnknownGenre = "Неизвестный жанр"
	// NoGenres возвращается для фильма без жанров.
	NoGenres = "Жанры неизвестны"
)

type snapshot map[int]string

// Cache отображает id жанров в названия.
type Cache struct {
	provider domain.MovieProvider
	logger   zerolog.Logger
	loc      *time.Location
	at       time.Duration // смещение ежедневного обновления от полуночи

	current atomic.Pointer[snapshot]
	group   singleflight.Group
	now     func() time.Time
}

// NewCache создаёт кэш. refreshAt задаётся в формате "15:04" и трактуется в loc.
func NewCache(provider domain.MovieProvider, logger zerolog.Logger, loc *time.Location, refreshAt string) (*Cache, error) {
	if loc == nil {
		loc = time.UTC
	}
	at, err := parseClock(refreshAt)
	if err != nil {
		return nil, err
	}
	c := &Cache{provider: provider, logger: logger, loc: loc, at: at, now: time.Now}
	empty := snapshot{}
	c.current.Store(&empty)
	return c, nil
}

// Resolve возвращает названия жанров через запятую.
func (c *Cache) Resolve(ctx context.Context, ids []int) string {
	if len(ids) == 0 {
		return NoGenres
	}
	snap := *c.current.Load()
	if len(snap) == 0 {
		// холодный кэш: один запрос к провайдеру на всех ожидающих.
		// Отмена контекста первого вызывающего не должна прерывать загрузку для остальных.
		_, _, _ = c.group.Do("refresh", func() (any, error) {
			refreshCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), coldRefreshTimeout)
			defer cancel()
			return nil, c.Refresh(refreshCtx)
		})
		snap = *c.current.Load()
	}
	names := make([]string, 0, len(ids))
	for _, id := range ids {
		name, ok := snap[id]
		if !ok {
			name = UnknownGenre
		}
		names = append(names, name)
	}
	return strings.Join(names, ", ")
}

// Refresh загружает справочник заново. При ошибке остаётся прежний снимок.
func (c *Cache) Refresh(ctx context.Context) error {
	list, err := c.provider.GenreList(ctx)
	if err != nil {
		metrics.GenreCacheRefresh.WithLabelValues("error").Inc()
		c.logger.Warn().Err(err).Msg("не удалось обновить справочник жанров")
		return fmt.Errorf("обновление жанров: %w", err)
	}
	next := make(snapshot, len(list))
	for _, g := range list {
		next[g.ID] = g.Name
	}
	c.current.Store(&next)
	metrics.GenreCacheRefresh.WithLabelValues("ok").Inc()
	metrics.GenreCacheSize.Set(float64(len(next)))
	c.logger.Info().Int("genres", len(next)).Msg("справочник жанров обновлён")
	return nil
}

// Serve обновляет справочник при старте и затем ежедневно в заданное время.
func (c *Cache) Serve(ctx context.Context) error {
	_ = c.Refresh(ctx)
	for {
		wait := c.nextRefresh(c.now()).Sub(c.now())
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
			_ = c.Refresh(ctx)
		}
	}
}

func (c *Cache) String() string { return "genre-cache" }

func (c *Cache) nextRefresh(now time.Time) time.Time {
	local := now.In(c.loc)
	midnight := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, c.loc)
	next := midnight.Add(c.at)
	if !next.After(local) {
		next = time.Date(local.Year(), local.Month(), local.Day()+1, 0, 0, 0, 0, c.loc).Add(c.at)
	}
	return next
}

func parseClock(value string) (time.Duration, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, nil
	}
	hh, mm, ok := strings.Cut(value, ":")
	if !ok {
		return 0, fmt.Errorf("время обновления жанров %q: ожидается ЧЧ:ММ", value)
	}
	h, err := strconv.Atoi(hh)
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("время обновления жанров %q: некорректный час", value)
	}
	m, err := strconv.Atoi(mm)
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("время обновления жанров %q: некорректные минуты", value)
	}
	return time.Duration(h)*time.Hour + time.Duration(m)*time.Minute, nil
}
