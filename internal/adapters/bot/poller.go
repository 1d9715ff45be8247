package bot

import (
	"context"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"tg-movie-bot/internal/infra/metrics"
)

// UpdateFetcher получает апдейты long polling.
type UpdateFetcher interface {
	GetUpdates(config tgbotapi.UpdateConfig) ([]tgbotapi.Update, error)
}

// UpdateHandler обрабатывает один апдейт.
type UpdateHandler interface {
	HandleUpdate(ctx context.Context, upd tgbotapi.Update)
}

// Poller получает апдейты и обрабатывает каждый в отдельной горутине.
type Poller struct {
	fetcher     UpdateFetcher
	handler     UpdateHandler
	log         zerolog.Logger
	sem         chan struct{}
	pollTimeout int
	backoff     time.Duration
	offset      int
	wg          sync.WaitGroup
}

// NewPoller создаёт поллер. maxWorkers ограничивает число одновременно обрабатываемых апдейтов.
func NewPoller(fetcher UpdateFetcher, handler UpdateHandler, log zerolog.Logger, maxWorkers int) *Poller {
	if maxWorkers <= 0 {
		maxWorkers = 32
	}
	return &Poller{
		fetcher:     fetcher,
		handler:     handler,
		log:         log,
		sem:         make(chan struct{}, maxWorkers),
		pollTimeout: 10,
		backoff:     3 * time.Second,
	}
}

// Serve читает апдейты до отмены контекста.
func (p *Poller) Serve(ctx context.Context) error {
	p.log.Info().Int("workers", cap(p.sem)).Msg("long polling запущен")
	defer p.wg.Wait()
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		cfg := tgbotapi.NewUpdate(p.offset)
		cfg.Timeout = p.pollTimeout
		start := time.Now()
		updates, err := p.fetcher.GetUpdates(cfg)
		metrics.ObserveNetworkRequest("telegram_bot", "get_updates", "getUpdates", start, err)
		if err != nil {
			p.log.Warn().Err(err).Msg("не удалось получить апдейты")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(p.backoff):
			}
			continue
		}
		for _, upd := range updates {
			if upd.UpdateID >= p.offset {
				p.offset = upd.UpdateID + 1
			}
			if !p.dispatch(ctx, upd) {
				return ctx.Err()
			}
		}
	}
}

func (p *Poller) dispatch(ctx context.Context, upd tgbotapi.Update) bool {
	select {
	case p.sem <- struct{}{}:
	case <-ctx.Done():
		return false
	}
	p.wg.Add(1)
	go func() {
		defer func() {
			<-p.sem
			p.wg.Done()
		}()
		p.handler.HandleUpdate(ctx, upd)
	}()
	return true
}

func (p *Poller) String() string { return "telegram-poller" }
