package hub

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
)

// Subscription receives broadcast messages on C.
//
// A slow subscriber never blocks the hub: when its buffer is full the
// oldest queued message is dropped, so a viewer always gets the newest
// frame next.
type Subscription struct {
	C <-chan Message

	ch      chan Message
	dropped atomic.Uint64
}

// Dropped returns how many messages were discarded for this subscriber.
func (s *Subscription) Dropped() uint64 {
	return s.dropped.Load()
}

// Hub maintains the set of subscribers and broadcasts messages to them.
type Hub struct {
	name   string
	logger *slog.Logger

	subs       map[*Subscription]struct{}
	broadcast  chan Message
	register   chan *Subscription
	unregister chan *Subscription
	done       chan struct{}

	count atomic.Int32
	once  sync.Once
}

// New creates a hub. Call Run before subscribing.
func New(name string, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		name:       name,
		logger:     logger.With("component", "hub", "hub", name),
		subs:       make(map[*Subscription]struct{}),
		broadcast:  make(chan Message, 16),
		register:   make(chan *Subscription),
		unregister: make(chan *Subscription),
		done:       make(chan struct{}),
	}
}

// Run is the hub's main loop. It returns when ctx is done, after closing
// every subscription channel.
func (h *Hub) Run(ctx context.Context) {
	defer h.once.Do(func() { close(h.done) })

	for {
		select {
		case <-ctx.Done():
			for s := range h.subs {
				close(s.ch)
				delete(h.subs, s)
			}
			h.count.Store(0)
			return

		case s := <-h.register:
			h.subs[s] = struct{}{}
			h.count.Store(int32(len(h.subs)))
			h.logger.Info("viewer connected", "viewers", len(h.subs))

		case s := <-h.unregister:
			if _, ok := h.subs[s]; ok {
				delete(h.subs, s)
				close(s.ch)
			}
			h.count.Store(int32(len(h.subs)))
			h.logger.Info("viewer disconnected", "viewers", len(h.subs))

		case msg := <-h.broadcast:
			for s := range h.subs {
				deliver(s, msg)
			}
		}
	}
}

func deliver(s *Subscription, msg Message) {
	select {
	case s.ch <- msg:
		return
	default:
	}
	// Full: drop the oldest queued message, then retry once.
	select {
	case <-s.ch:
		s.dropped.Add(1)
	default:
	}
	select {
	case s.ch <- msg:
	default:
		s.dropped.Add(1)
	}
}

// Subscribe registers a subscriber with the given buffer size. It returns
// nil once the hub has stopped.
func (h *Hub) Subscribe(buffer int) *Subscription {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan Message, buffer)
	s := &Subscription{C: ch, ch: ch}
	select {
	case h.register <- s:
		return s
	case <-h.done:
		return nil
	}
}

// Unsubscribe removes s and closes s.C. It is safe after the hub stopped.
func (h *Hub) Unsubscribe(s *Subscription) {
	if s == nil {
		return
	}
	select {
	case h.unregister <- s:
	case <-h.done:
	}
}

// Broadcast queues msg for every subscriber. It never blocks; when the
// hub is backed up the message is dropped.
func (h *Hub) Broadcast(msg Message) {
	select {
	case h.broadcast <- msg:
	default:
		h.logger.Debug("broadcast queue full, dropping message")
	}
}

// BroadcastJSON encodes v and broadcasts it.
func (h *Hub) BroadcastJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	h.Broadcast(NewJSONMessage(data))
	return nil
}

// BroadcastFrame broadcasts one encoded frame.
func (h *Hub) BroadcastFrame(jpeg []byte) {
	h.Broadcast(NewFrameMessage(jpeg))
}

// ClientCount returns the number of subscribers.
func (h *Hub) ClientCount() int {
	return int(h.count.Load())
}
