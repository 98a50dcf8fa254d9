package feed

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"cipher-chat/pkg/logger"

	"github.com/redis/go-redis/v9"
)

// subscriberBuffer bounds how far a subscriber may fall behind before the hub
// drops it.
const subscriberBuffer = 64

var ErrHubClosed = errors.New("feed hub is closed")

// Hub routes events to subscriptions by topic. Run owns the subscription map;
// everything else talks to it through channels. With a Redis client, Publish
// goes out through Redis and SubscribeToRedis feeds every instance's hub, so a
// subscriber sees events published by any server. Without one the hub loops
// events back locally.
type Hub struct {
	subs       map[string]map[*Subscription]bool
	broadcast  chan Event         // Redis (or local Publish) -> subscribers
	register   chan *Subscription // new subscription
	unregister chan *Subscription // subscription cancelled
	done       chan struct{}
	redis      *redis.Client
	channel    string
	logger     *logger.Logger
}

func NewHub(redisClient *redis.Client, channel string, log *logger.Logger) *Hub {
	return &Hub{
		subs:       make(map[string]map[*Subscription]bool),
		broadcast:  make(chan Event),
		register:   make(chan *Subscription),
		unregister: make(chan *Subscription),
		done:       make(chan struct{}),
		redis:      redisClient,
		channel:    channel,
		logger:     log,
	}
}

// Run is the only goroutine that touches h.subs. It returns when ctx is
// cancelled, closing every live subscription.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for _, set := range h.subs {
				for s := range set {
					h.remove(s)
				}
			}
			return

		case s := <-h.register:
			s.active = true
			for _, topic := range s.topics {
				if h.subs[topic] == nil {
					h.subs[topic] = make(map[*Subscription]bool)
				}
				h.subs[topic][s] = true
			}

		case s := <-h.unregister:
			h.remove(s)

		case ev := <-h.broadcast:
			for s := range h.subs[ev.Topic] {
				select {
				case s.c <- ev:
				default:
					h.logger.Warn("dropping slow subscriber", "topic", ev.Topic)
					h.remove(s)
				}
			}
		}
	}
}

func (h *Hub) remove(s *Subscription) {
	if !s.active {
		return
	}
	s.active = false
	for _, topic := range s.topics {
		if set, ok := h.subs[topic]; ok {
			delete(set, s)
			if len(set) == 0 {
				delete(h.subs, topic)
			}
		}
	}
	close(s.c)
}

// Subscribe registers interest in topics. Run must be running; after the hub
// has stopped the returned subscription is already closed.
func (h *Hub) Subscribe(topics ...string) *Subscription {
	s := &Subscription{
		topics: topics,
		c:      make(chan Event, subscriberBuffer),
		hub:    h,
	}
	select {
	case h.register <- s:
	case <-h.done:
		close(s.c)
	}
	return s
}

func (h *Hub) Publish(ctx context.Context, ev Event) error {
	if h.redis == nil {
		select {
		case h.broadcast <- ev:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		case <-h.done:
			return ErrHubClosed
		}
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return h.redis.Publish(ctx, h.channel, payload).Err()
}

// PublishAll publishes events in order and reports every failure.
func (h *Hub) PublishAll(ctx context.Context, events ...Event) error {
	var errs []error
	for _, ev := range events {
		if err := h.Publish(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// SubscribeToRedis bridges events published by any instance into this hub.
// It is a no-op in local mode.
func (h *Hub) SubscribeToRedis(ctx context.Context) error {
	if h.redis == nil {
		return nil
	}

	pubsub := h.redis.Subscribe(ctx, h.channel)
	defer pubsub.Close()

	// Wait for the subscription to be confirmed so that nothing published
	// after this call returns is missed.
	if _, err := pubsub.Receive(ctx); err != nil {
		return err
	}

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var ev Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				h.logger.Error("discarding malformed feed event", "err", err)
				continue
			}
			select {
			case h.broadcast <- ev:
			case <-ctx.Done():
				return nil
			case <-h.done:
				return nil
			}
		}
	}
}

// Subscription is a live, cancellable view of one or more topics. C is closed
// when the subscription is cancelled, dropped for being slow, or the hub
// stops. Delivery is at-least-once across instances; consumers de-duplicate.
type Subscription struct {
	topics []string
	c      chan Event
	hub    *Hub
	once   sync.Once
	active bool // owned by Hub.Run
}

func (s *Subscription) C() <-chan Event { return s.c }

func (s *Subscription) Close() {
	s.once.Do(func() {
		select {
		case s.hub.unregister <- s:
		case <-s.hub.done:
		}
	})
}
