package store

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Feed topics.
const (
	TopicPrayers = "prayers"
	TopicJournal = "journal"
)

// Change kinds.
const (
	KindCreated   = "created"
	KindPrayedFor = "prayed"
)

const (
	feedChannelPrefix = "novo:feed:"
	subscriptionBuf   = 64
)

// ErrSubscriptionStarted is returned when Start is called twice.
var ErrSubscriptionStarted = errors.New("store: subscription already started")

// ChangeEvent describes one write to a collection.
type ChangeEvent struct {
	Topic   string          `json:"topic"`
	Kind    string          `json:"kind"`
	ID      string          `json:"id"`
	UserID  string          `json:"userId"`
	Payload json.RawMessage `json:"payload,omitempty"`
	At      time.Time       `json:"at"`
}

// Feed fans collection changes out to subscribers. With a Redis client the
// events travel over pub/sub so every instance sees them; without one they stay
// in-process.
type Feed struct {
	rc     *redis.Client
	logger *zap.Logger

	mu   sync.RWMutex
	subs map[string]map[*Subscription]struct{}
}

func NewFeed(rc *redis.Client, logger *zap.Logger) *Feed {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Feed{rc: rc, logger: logger, subs: map[string]map[*Subscription]struct{}{}}
}

// Publish delivers ev to subscribers of ev.Topic. Delivery is best-effort.
func (f *Feed) Publish(ctx context.Context, ev ChangeEvent) {
	if f == nil {
		return
	}
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	if f.rc != nil {
		b, err := json.Marshal(ev)
		if err != nil {
			f.logger.Warn("feed encode failed", zap.String("topic", ev.Topic), zap.Error(err))
			return
		}
		if err := f.rc.Publish(ctx, feedChannelPrefix+ev.Topic, b).Err(); err != nil {
			f.logger.Warn("feed publish failed", zap.String("topic", ev.Topic), zap.Error(err))
		}
		return
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	for sub := range f.subs[ev.Topic] {
		sub.offer(ev)
	}
}

// Subscribe returns an idle subscription for topic. Call Start to begin receiving.
func (f *Feed) Subscribe(topic string) *Subscription {
	return &Subscription{
		feed:   f,
		topic:  topic,
		events: make(chan ChangeEvent, subscriptionBuf),
		local:  make(chan ChangeEvent, subscriptionBuf),
	}
}

func (f *Feed) attach(s *Subscription) {
	f.mu.Lock()
	if f.subs[s.topic] == nil {
		f.subs[s.topic] = map[*Subscription]struct{}{}
	}
	f.subs[s.topic][s] = struct{}{}
	f.mu.Unlock()
}

func (f *Feed) detach(s *Subscription) {
	f.mu.Lock()
	delete(f.subs[s.topic], s)
	f.mu.Unlock()
}

// Subscription is a scoped listener on one topic. Events is closed after Stop.
type Subscription struct {
	feed   *Feed
	topic  string
	events chan ChangeEvent
	local  chan ChangeEvent

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// Events is the typed change stream.
func (s *Subscription) Events() <-chan ChangeEvent { return s.events }

// Start begins delivery. The subscription ends when ctx is cancelled or Stop is called.
func (s *Subscription) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return ErrSubscriptionStarted
	}
	ctx, cancel := context.WithCancel(ctx)

	var ps *redis.PubSub
	if s.feed.rc != nil {
		ps = s.feed.rc.Subscribe(ctx, feedChannelPrefix+s.topic)
		// wait for the subscription confirmation so no publish is missed after Start returns
		if _, err := ps.Receive(ctx); err != nil {
			cancel()
			_ = ps.Close()
			return err
		}
	} else {
		s.feed.attach(s)
	}

	s.started = true
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.run(ctx, ps)
	return nil
}

func (s *Subscription) run(ctx context.Context, ps *redis.PubSub) {
	defer close(s.done)
	defer close(s.events)

	if ps != nil {
		defer ps.Close()
		ch := ps.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var ev ChangeEvent
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					s.feed.logger.Warn("feed decode failed", zap.String("topic", s.topic), zap.Error(err))
					continue
				}
				s.forward(ctx, ev)
			}
		}
	}

	defer s.feed.detach(s)
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-s.local:
			s.forward(ctx, ev)
		}
	}
}

func (s *Subscription) forward(ctx context.Context, ev ChangeEvent) {
	select {
	case s.events <- ev:
	case <-ctx.Done():
	}
}

// offer hands ev to the local pump without blocking the publisher. Slow
// subscribers lose events rather than stall writes.
func (s *Subscription) offer(ev ChangeEvent) {
	select {
	case s.local <- ev:
	default:
		s.feed.logger.Debug("feed subscriber lagging, event dropped", zap.String("topic", s.topic))
	}
}

// Stop releases the subscription and waits for its goroutine to exit.
func (s *Subscription) Stop() {
	s.mu.Lock()
	if !s.started {
		// never started: seal it so Events readers terminate
		s.started = true
		close(s.events)
		s.mu.Unlock()
		return
	}
	if s.cancel == nil {
		s.mu.Unlock()
		return
	}
	cancel, done := s.cancel, s.done
	s.cancel = nil
	s.mu.Unlock()

	cancel()
	<-done
}
