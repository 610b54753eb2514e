package presence

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"syncServer/backend/internal/cache"
)

// DefaultSweepInterval is how often stale entries are reaped.
const DefaultSweepInterval = 30 * time.Second

// Sweeper deletes presence entries whose lastSeen exceeded the liveness
// window, independent of key TTL. It bounds the staleness visible to
// clients reading membership sets directly.
type Sweeper struct {
	store    cache.Store
	log      *slog.Logger
	window   time.Duration
	interval time.Duration
	done     chan struct{}
	stopped  chan struct{}
}

func NewSweeper(store cache.Store, log *slog.Logger, window, interval time.Duration) *Sweeper {
	if window <= 0 {
		window = DefaultWindow
	}
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	return &Sweeper{
		store:    store,
		log:      log,
		window:   window,
		interval: interval,
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
}

func (s *Sweeper) Start() {
	go s.loop()
}

func (s *Sweeper) Stop() {
	close(s.done)
	<-s.stopped
}

func (s *Sweeper) loop() {
	defer close(s.stopped)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := s.sweep(context.Background()); err != nil {
				s.log.Error("presence sweep failed", "error", err)
			}
		case <-s.done:
			return
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) error {
	keys, err := s.store.Keys(ctx, cache.PresencePrefix)
	if err != nil {
		return err
	}
	now := time.Now().UnixMilli()
	for _, key := range keys {
		// Membership sets share the prefix; only entries are swept here.
		if strings.HasPrefix(key, cache.PresenceDocPrefix) {
			continue
		}
		b, err := s.store.Get(ctx, key)
		if err != nil {
			continue
		}
		var entry Entry
		if err := json.Unmarshal(b, &entry); err != nil {
			continue
		}
		if now-entry.LastSeen <= s.window.Milliseconds() {
			continue
		}
		if err := s.store.Del(ctx, key); err != nil {
			return err
		}
		if entry.DocumentID != "" {
			if err := s.store.SRem(ctx, cache.PresenceDocKey(entry.DocumentID), entry.UserID); err != nil {
				return err
			}
		}
		s.log.Debug("removed stale presence", "userId", entry.UserID)
	}
	return nil
}
