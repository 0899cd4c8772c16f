package worker

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"sjsage522/navwatcher/helpers"
	"sjsage522/navwatcher/internal/target"
	"sjsage522/navwatcher/logger"
	werrors "sjsage522/navwatcher/pkg/errors"
	"sjsage522/navwatcher/services/cache"
	"sjsage522/navwatcher/services/publisher"
)

// Session is the worker's view of a running watch target
type Session interface {
	// TargetID returns the target's identifier
	TargetID() string

	// Provider returns the provider name used as the stream key
	Provider() string

	// Events returns the readiness event channel
	Events() <-chan target.ReadyEvent
}

// Worker fans in readiness events from all sessions and publishes them
type Worker struct {
	ctx       context.Context
	sessions  []Session
	publisher publisher.Publisher
	cache     cache.CacheService
	cooldown  time.Duration
	log       *logger.Logger
}

// NewWorker creates a new worker
func NewWorker(
	ctx context.Context,
	sessions []Session,
	pub publisher.Publisher,
	cacheSvc cache.CacheService,
	cooldown time.Duration,
) *Worker {
	return &Worker{
		ctx:       ctx,
		sessions:  sessions,
		publisher: pub,
		cache:     cacheSvc,
		cooldown:  cooldown,
		log:       logger.ForWorker(),
	}
}

// Start consumes every session's events until the context is cancelled,
// then trims the stream on the way out.
func (w *Worker) Start() error {
	var wg sync.WaitGroup
	for _, s := range w.sessions {
		wg.Add(1)
		go func(s Session) {
			defer wg.Done()
			w.consume(s)
		}(s)
	}
	wg.Wait()

	if err := w.publisher.TrimStreams(); err != nil {
		w.log.Error().Err(err).Msg("Stream trimming failed")
	}
	return nil
}

func (w *Worker) consume(s Session) {
	for {
		select {
		case <-w.ctx.Done():
			return
		case ev := <-s.Events():
			w.publish(s, ev)
		}
	}
}

// publish reports one readiness event, suppressing repeats for the same
// target and path while the cooldown marker lives.
func (w *Worker) publish(s Session, ev target.ReadyEvent) {
	key := "ready:" + ev.TargetID + ":" + helpers.PathOf(ev.URL)

	if w.cache != nil && w.cooldown > 0 {
		if _, err := w.cache.Get(key); err == nil {
			w.log.Debug().Str("key", key).Msg("Readiness event suppressed by cooldown")
			return
		}
	}

	data, err := json.Marshal(ev)
	if err != nil {
		w.log.Error().Err(err).Str("target", ev.TargetID).Msg("Event marshal failed")
		return
	}

	if err := w.publisher.Publish(s.Provider(), data); err != nil {
		werr := werrors.NewPublisher(ev.TargetID, "publish readiness event", err)
		w.log.Error().Err(werr).Msg("Event publish failed")
		return
	}

	if w.cache != nil && w.cooldown > 0 {
		if err := w.cache.Set(key, []byte("1"), w.cooldown); err != nil {
			werr := werrors.NewCache(ev.TargetID, "store cooldown marker", err)
			w.log.Debug().Err(werr).Str("key", key).Msg("Cooldown marker not stored")
		}
	}

	w.log.Info().
		Str("target", ev.TargetID).
		Str("url", ev.URL).
		Str("selector", ev.Selector).
		Msg("Readiness event published")
}
