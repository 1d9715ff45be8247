package conversation

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"tg-movie-bot/internal/domain"
	"tg-movie-bot/internal/infra/metrics"
)

// State состояние открытого диалога. Отсутствие сессии означает Idle.
type State int

const (
	StateIdle State = iota
	StateAwaitingSearchQuery
	StateAwaitingSeenConfirmation
	StateAwaitingRatingScore
)

func (s State) String() string {
	switch s {
	case StateAwaitingSearchQuery:
		return "awaiting_search_query"
	case StateAwaitingSeenConfirmation:
		return "awaiting_seen_confirmation"
	case StateAwaitingRatingScore:
		return "awaiting_rating_score"
	default:
		return "idle"
	}
}

// Session диалог одного чата.
type Session struct {
	ID        uuid.UUID
	State     State
	Movie     domain.Movie
	Retries   int
	ExpiresAt time.Time
}

const shardCount = 32

type shard struct {
	mu       sync.Mutex
	sessions map[int64]Session
}

// Store хранит сессии по chat id. Операции над одним чатом атомарны, разные чаты не блокируют друг друга.
type Store struct {
	shards [shardCount]shard
	ttl    time.Duration
	now    func() time.Time
	active atomic.Int64
}

// NewStore создаёт хранилище. Сессия истекает через ttl после последнего изменения.
func NewStore(ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	s := &Store{ttl: ttl, now: time.Now}
	for i := range s.shards {
		s.shards[i].sessions = make(map[int64]Session)
	}
	return s
}

func (s *Store) shardFor(chatID int64) *shard {
	idx := chatID % shardCount
	if idx < 0 {
		idx = -idx
	}
	return &s.shards[idx]
}

// lookup возвращает живую сессию. Вызывается под блокировкой шарда.
func (s *Store) lookup(sh *shard, chatID int64) (Session, bool) {
	sess, ok := sh.sessions[chatID]
	if !ok {
		return Session{}, false
	}
	if !s.now().Before(sess.ExpiresAt) {
		delete(sh.sessions, chatID)
		s.changed(-1)
		return Session{}, false
	}
	return sess, true
}

// store записывает сессию. Вызывается под блокировкой шарда.
func (s *Store) store(sh *shard, chatID int64, sess Session, existed bool) Session {
	if sess.ID == uuid.Nil {
		sess.ID = uuid.New()
	}
	sess.ExpiresAt = s.now().Add(s.ttl)
	sh.sessions[chatID] = sess
	if !existed {
		s.changed(1)
	}
	return sess
}

func (s *Store) changed(delta int64) {
	metrics.SessionsActive.Set(float64(s.active.Add(delta)))
}

// Put открывает сессию, перезаписывая существующую.
func (s *Store) Put(chatID int64, sess Session) Session {
	sh := s.shardFor(chatID)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	_, existed := s.lookup(sh, chatID)
	return s.store(sh, chatID, sess, existed)
}

// PutIfAbsent открывает сессию, только если у чата нет открытой.
func (s *Store) PutIfAbsent(chatID int64, sess Session) bool {
	sh := s.shardFor(chatID)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if _, ok := s.lookup(sh, chatID); ok {
		return false
	}
	s.store(sh, chatID, sess, false)
	return true
}

// Update атомарно читает и меняет сессию. fn получает текущую сессию и признак её наличия,
// возвращает новую сессию и признак сохранения. keep=false закрывает сессию.
// fn не должна выполнять ввод-вывод.
func (s *Store) Update(chatID int64, fn func(cur Session, ok bool) (next Session, keep bool)) {
	sh := s.shardFor(chatID)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	cur, ok := s.lookup(sh, chatID)
	next, keep := fn(cur, ok)
	switch {
	case keep:
		s.store(sh, chatID, next, ok)
	case ok:
		delete(sh.sessions, chatID)
		s.changed(-1)
	}
}

// CompareAndDelete закрывает сессию, если её id совпадает.
func (s *Store) CompareAndDelete(chatID int64, id uuid.UUID) bool {
	sh := s.shardFor(chatID)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	cur, ok := s.lookup(sh, chatID)
	if !ok || cur.ID != id {
		return false
	}
	delete(sh.sessions, chatID)
	s.changed(-1)
	return true
}

// Sweep удаляет истёкшие сессии и возвращает их количество.
func (s *Store) Sweep() int {
	removed := 0
	now := s.now()
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.Lock()
		for chatID, sess := range sh.sessions {
			if !now.Before(sess.ExpiresAt) {
				delete(sh.sessions, chatID)
				removed++
			}
		}
		sh.mu.Unlock()
	}
	if removed > 0 {
		s.changed(-int64(removed))
	}
	return removed
}

// Serve периодически удаляет истёкшие сессии.
func (s *Store) Serve(ctx context.Context) error {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.Sweep()
		}
	}
}

func (s *Store) String() string { return "session-sweeper" }
