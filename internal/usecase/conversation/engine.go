package conversation

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"tg-movie-bot/internal/domain"
	"tg-movie-bot/internal/infra/metrics"
	"tg-movie-bot/internal/usecase/catalog"
	"tg-movie-bot/internal/usecase/ratings"
	"tg-movie-bot/internal/usecase/recommend"
)

// Keyboard клавиатура, которую транспорт показывает вместе с ответом.
type Keyboard int

const (
	KeyboardNone Keyboard = iota
	KeyboardMenu
	KeyboardYesNo
	KeyboardScore
)

// Reply ответ пользователю.
type Reply struct {
	Text     string
	Keyboard Keyboard
}

// Catalog операции каталога, нужные диалогу.
type Catalog interface {
	Seed(ctx context.Context, source catalog.Source, query string) (domain.Movie, error)
	Ensure(ctx context.Context, movie domain.Movie) (domain.Movie, error)
	Search(ctx context.Context, query string, limit int) ([]domain.Movie, error)
	Popular(ctx context.Context, limit int) ([]domain.Movie, error)
	Random(ctx context.Context) (domain.Movie, error)
}

// Recommender подбор и оценка сходства.
type Recommender interface {
	TopN(ctx context.Context, chatID int64) (recommend.Result, error)
	BestMatch(ctx context.Context, chatID int64) (recommend.Result, error)
	Score(ctx context.Context, chatID int64, movies []domain.Movie) ([]recommend.Scored, error)
}

// Rater сохранение и чтение оценок.
type Rater interface {
	Rate(ctx context.Context, chatID int64, movie domain.Movie, score int) (domain.Rating, error)
	List(ctx context.Context, chatID int64) ([]domain.RatedMovie, error)
}

type command func(ctx context.Context, chatID int64, arg string) []Reply

// Engine диалоговая машина состояний.
type Engine struct {
	sessions  *Store
	catalog   Catalog
	recs      Recommender
	ratings   Rater
	formatter *recommend.Formatter
	logger    zerolog.Logger
	searchTop int

	commands map[string]command
	labels   map[string]string
}

// NewEngine создаёт движок. Таблица команд фиксируется при создании.
func NewEngine(sessions *Store, cat Catalog, recs Recommender, rater Rater, formatter *recommend.Formatter, logger zerolog.Logger, searchTop int) *Engine {
	if searchTop <= 0 {
		searchTop = 5
	}
	e := &Engine{
		sessions:  sessions,
		catalog:   cat,
		recs:      recs,
		ratings:   rater,
		formatter: formatter,
		logger:    logger,
		searchTop: searchTop,
	}
	e.commands = map[string]command{
		"/start":        e.help,
		"/help":         e.help,
		"/search":       e.search,
		"/popular":      e.popular,
		"/random":       e.random,
		"/personal":     e.personal,
		"/mostpersonal": e.mostPersonal,
		"/ratepopular":  e.rateFrom(catalog.SourceRandomPopular),
		"/rateall":      e.rateFrom(catalog.SourceRandomAll),
		"/allrated":     e.allRated,
	}
	e.labels = map[string]string{
		LabelSearch:       "/search",
		LabelPopular:      "/popular",
		LabelRandom:       "/random",
		LabelPersonal:     "/personal",
		LabelMostPersonal: "/mostpersonal",
		LabelRatePopular:  "/ratepopular",
		LabelRateAll:      "/rateall",
		LabelAllRated:     "/allrated",
		LabelHelp:         "/help",
	}
	return e
}

// Handle обрабатывает одно текстовое сообщение чата.
// Распознанная команда закрывает открытую сессию, прочий текст продолжает её.
func (e *Engine) Handle(ctx context.Context, chatID int64, text string) []Reply {
	text = strings.TrimSpace(text)
	if cmd, arg, ok := e.match(text); ok {
		e.cancel(chatID)
		return cmd(ctx, chatID, arg)
	}
	return e.continueSession(ctx, chatID, text)
}

func (e *Engine) match(text string) (command, string, bool) {
	if name, ok := e.labels[text]; ok {
		return e.commands[name], "", true
	}
	if !strings.HasPrefix(text, "/") {
		return nil, "", false
	}
	name, arg, _ := strings.Cut(text, " ")
	name = strings.ToLower(name)
	if at := strings.IndexByte(name, '@'); at > 0 {
		name = name[:at]
	}
	cmd, ok := e.commands[name]
	return cmd, strings.TrimSpace(arg), ok
}

func (e *Engine) cancel(chatID int64) {
	e.sessions.Update(chatID, func(cur Session, ok bool) (Session, bool) {
		if ok {
			metrics.ObserveTransition(cur.State.String(), StateIdle.String())
			e.logger.Debug().Int64("chat", chatID).Str("state", cur.State.String()).Msg("сессия прервана командой")
		}
		return Session{}, false
	})
}

type action int

const (
	actNone action = iota
	actSearch
	actSearchRetry
	actSearchCancel
	actAskScore
	actDecline
	actConfirmRetry
	actScoreUnrecognized
	actScoreRange
	actSaveScore
)

// step чистый переход машины состояний для свободного текста.
func step(cur Session, text string) (next Session, keep bool, act action, score int) {
	switch cur.State {
	case StateAwaitingSearchQuery:
		if text != "" {
			return cur, false, actSearch, 0
		}
		if cur.Retries == 0 {
			cur.Retries++
			return cur, true, actSearchRetry, 0
		}
		return cur, false, actSearchCancel, 0
	case StateAwaitingSeenConfirmation:
		switch strings.ToLower(text) {
		case "да", "yes":
			cur.State = StateAwaitingRatingScore
			return cur, true, actAskScore, 0
		case "нет", "no":
			return cur, false, actDecline, 0
		}
		return cur, true, actConfirmRetry, 0
	case StateAwaitingRatingScore:
		n, err := strconv.Atoi(text)
		if err != nil {
			return cur, true, actScoreUnrecognized, 0
		}
		if n < ratings.MinScore || n > ratings.MaxScore {
			return cur, true, actScoreRange, 0
		}
		return cur, false, actSaveScore, n
	}
	return cur, false, actNone, 0
}

func (e *Engine) continueSession(ctx context.Context, chatID int64, text string) []Reply {
	var (
		cur   Session
		had   bool
		act   action
		score int
		to    State
	)
	e.sessions.Update(chatID, func(s Session, ok bool) (Session, bool) {
		cur, had = s, ok
		if !ok {
			return s, false
		}
		next, keep, a, n := step(s, text)
		act, score = a, n
		to = StateIdle
		if keep {
			to = next.State
		}
		return next, keep
	})
	if !had {
		return []Reply{{Text: msgUnknown + "\n\n" + msgHelp, Keyboard: KeyboardMenu}}
	}
	metrics.ObserveTransition(cur.State.String(), to.String())

	switch act {
	case actSearch:
		return e.runSearch(ctx, chatID, text)
	case actSearchRetry:
		return []Reply{{Text: msgSearchBlank}}
	case actSearchCancel:
		return []Reply{{Text: msgSearchCancel, Keyboard: KeyboardMenu}}
	case actAskScore:
		return e.askScore(ctx, chatID, cur)
	case actDecline:
		return []Reply{{Text: msgDeclined, Keyboard: KeyboardMenu}}
	case actConfirmRetry:
		return []Reply{{Text: msgConfirmRetry, Keyboard: KeyboardYesNo}}
	case actScoreUnrecognized:
		return []Reply{{Text: msgScoreUnrecognized, Keyboard: KeyboardScore}}
	case actScoreRange:
		return []Reply{{Text: msgScoreRange, Keyboard: KeyboardScore}}
	case actSaveScore:
		return e.saveScore(ctx, chatID, cur, score)
	}
	return []Reply{{Text: msgHelp, Keyboard: KeyboardMenu}}
}

// askScore сохраняет фильм в каталоге, пока пользователь выбирает оценку.
func (e *Engine) askScore(ctx context.Context, chatID int64, sess Session) []Reply {
	saved, err := e.catalog.Ensure(ctx, sess.Movie)
	if err != nil {
		e.logger.Error().Err(err).Int64("chat", chatID).Msg("не удалось сохранить фильм для оценки")
		e.sessions.CompareAndDelete(chatID, sess.ID)
		return []Reply{{Text: msgUnavailable, Keyboard: KeyboardMenu}}
	}
	e.sessions.Update(chatID, func(cur Session, ok bool) (Session, bool) {
		if ok && cur.ID == sess.ID && cur.State == StateAwaitingRatingScore && cur.Movie.ID == 0 {
			cur.Movie = saved
		}
		return cur, ok
	})
	return []Reply{{Text: msgScorePrompt, Keyboard: KeyboardScore}}
}

// saveScore вызывается после того, как сессия уже закрыта. При ошибке сессия возвращается.
func (e *Engine) saveScore(ctx context.Context, chatID int64, sess Session, score int) []Reply {
	movie, err := e.catalog.Ensure(ctx, sess.Movie)
	if err == nil {
		_, err = e.ratings.Rate(ctx, chatID, movie, score)
	}
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return []Reply{{Text: recommend.MsgNotRegistered, Keyboard: KeyboardMenu}}
		}
		e.logger.Error().Err(err).Int64("chat", chatID).Int64("movie", sess.Movie.ExternalID).Msg("не удалось сохранить оценку")
		if e.sessions.PutIfAbsent(chatID, sess) {
			metrics.ObserveTransition(StateIdle.String(), sess.State.String())
		}
		return []Reply{{Text: msgScoreFailed, Keyboard: KeyboardScore}}
	}
	e.logger.Info().Int64("chat", chatID).Int64("movie", movie.ExternalID).Int("score", score).Msg("оценка сохранена")
	return []Reply{{Text: fmt.Sprintf(msgScoreSaved, score), Keyboard: KeyboardMenu}}
}

func (e *Engine) help(context.Context, int64, string) []Reply {
	return []Reply{{Text: msgHelp, Keyboard: KeyboardMenu}}
}

func (e *Engine) search(ctx context.Context, chatID int64, arg string) []Reply {
	if arg != "" {
		return e.runSearch(ctx, chatID, arg)
	}
	e.sessions.Put(chatID, Session{State: StateAwaitingSearchQuery})
	metrics.ObserveTransition(StateIdle.String(), StateAwaitingSearchQuery.String())
	return []Reply{{Text: msgSearchPrompt}}
}

func (e *Engine) runSearch(ctx context.Context, chatID int64, query string) []Reply {
	movies, err := e.catalog.Search(ctx, query, e.searchTop)
	if err != nil {
		return e.failure(chatID, "поиск", err)
	}
	return e.scoredList(ctx, chatID, movies)
}

func (e *Engine) popular(ctx context.Context, chatID int64, _ string) []Reply {
	movies, err := e.catalog.Popular(ctx, e.searchTop)
	if err != nil {
		return e.failure(chatID, "популярные", err)
	}
	return e.scoredList(ctx, chatID, movies)
}

func (e *Engine) random(ctx context.Context, chatID int64, _ string) []Reply {
	movie, err := e.catalog.Random(ctx)
	if err != nil {
		return e.failure(chatID, "случайный фильм", err)
	}
	return e.scoredList(ctx, chatID, []domain.Movie{movie})
}

func (e *Engine) scoredList(ctx context.Context, chatID int64, movies []domain.Movie) []Reply {
	if len(movies) == 0 {
		return []Reply{{Text: msgNotFound, Keyboard: KeyboardMenu}}
	}
	scored, err := e.recs.Score(ctx, chatID, movies)
	if err != nil {
		return e.failure(chatID, "расчёт сходства", err)
	}
	return []Reply{{Text: e.formatter.List(ctx, scored), Keyboard: KeyboardMenu}}
}

func (e *Engine) personal(ctx context.Context, chatID int64, _ string) []Reply {
	res, err := e.recs.TopN(ctx, chatID)
	if err != nil {
		return e.failure(chatID, "персональные рекомендации", err)
	}
	return []Reply{{Text: e.formatter.Result(ctx, res), Keyboard: KeyboardMenu}}
}

func (e *Engine) mostPersonal(ctx context.Context, chatID int64, _ string) []Reply {
	res, err := e.recs.BestMatch(ctx, chatID)
	if err != nil {
		return e.failure(chatID, "лучший фильм", err)
	}
	return []Reply{{Text: e.formatter.Result(ctx, res), Keyboard: KeyboardMenu}}
}

func (e *Engine) rateFrom(source catalog.Source) command {
	return func(ctx context.Context, chatID int64, _ string) []Reply {
		movie, err := e.catalog.Seed(ctx, source, "")
		if err != nil {
			return e.failure(chatID, "выбор фильма для оценки", err)
		}
		e.sessions.Put(chatID, Session{State: StateAwaitingSeenConfirmation, Movie: movie})
		metrics.ObserveTransition(StateIdle.String(), StateAwaitingSeenConfirmation.String())
		return []Reply{{Text: e.formatter.RatingPrompt(ctx, movie), Keyboard: KeyboardYesNo}}
	}
}

func (e *Engine) allRated(ctx context.Context, chatID int64, _ string) []Reply {
	rated, err := e.ratings.List(ctx, chatID)
	if err != nil {
		return e.failure(chatID, "список оценок", err)
	}
	return []Reply{{Text: e.formatter.Rated(ctx, rated), Keyboard: KeyboardMenu}}
}

func (e *Engine) failure(chatID int64, op string, err error) []Reply {
	switch {
	case errors.Is(err, domain.ErrUserNotFound):
		return []Reply{{Text: recommend.MsgNotRegistered, Keyboard: KeyboardMenu}}
	case errors.Is(err, domain.ErrNoResults):
		return []Reply{{Text: msgNotFound, Keyboard: KeyboardMenu}}
	}
	e.logger.Error().Err(err).Int64("chat", chatID).Str("op", op).Msg("ошибка обработки команды")
	return []Reply{{Text: msgUnavailable, Keyboard: KeyboardMenu}}
}
