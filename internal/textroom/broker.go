package textroom

import (
	"context"
	"sync"
	"time"

	"github.com/lib/pq"
	"go.uber.org/zap"
)

// NotifyChannel is the Postgres channel that carries room codes.
const NotifyChannel = "text_room_updates"

// Broker fans room updates out to subscribers. A signal only says "the
// room changed"; subscribers re-read the content, so bursts coalesce.
type Broker interface {
	Publish(ctx context.Context, code string) error
	Subscribe(code string) (<-chan struct{}, func())
}

// Hub is an in-process Broker.
type Hub struct {
	mu   sync.Mutex
	subs map[string]map[chan struct{}]struct{}
}

// NewHub returns an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[chan struct{}]struct{})}
}

func (h *Hub) Publish(_ context.Context, code string) error {
	h.notify(code)
	return nil
}

func (h *Hub) Subscribe(code string) (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)

	h.mu.Lock()
	if h.subs[code] == nil {
		h.subs[code] = make(map[chan struct{}]struct{})
	}
	h.subs[code][ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			delete(h.subs[code], ch)
			if len(h.subs[code]) == 0 {
				delete(h.subs, code)
			}
		})
	}
}

// Subscribers returns the number of live subscriptions for code.
func (h *Hub) Subscribers(code string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[code])
}

func (h *Hub) notify(code string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs[code] {
		signal(ch)
	}
}

func (h *Hub) notifyAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, set := range h.subs {
		for ch := range set {
			signal(ch)
		}
	}
}

// signal never blocks; a pending signal already covers this one.
func signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

// PGBroker feeds a Hub from Postgres LISTEN so that every replica sees
// writes made through any other. Publishing is done by the database
// trigger on text_rooms, so Publish is a no-op.
type PGBroker struct {
	*Hub
	listener *pq.Listener
	log      *zap.Logger
}

// NewPGBroker opens a dedicated listener connection.
func NewPGBroker(dsn string, log *zap.Logger) (*PGBroker, error) {
	if log == nil {
		log = zap.NewNop()
	}
	l := pq.NewListener(dsn, 2*time.Second, time.Minute, func(ev pq.ListenerEventType, err error) {
		if err != nil {
			log.Warn("room listener event", zap.Int("event", int(ev)), zap.Error(err))
		}
	})
	if err := l.Listen(NotifyChannel); err != nil {
		_ = l.Close()
		return nil, err
	}
	return &PGBroker{Hub: NewHub(), listener: l, log: log}, nil
}

func (b *PGBroker) Publish(context.Context, string) error { return nil }

// Run dispatches notifications until ctx is done.
func (b *PGBroker) Run(ctx context.Context) {
	ping := time.NewTicker(90 * time.Second)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case n := <-b.listener.Notify:
			if n == nil {
				// Reconnected; updates may have been missed.
				b.notifyAll()
				continue
			}
			b.notify(n.Extra)
		case <-ping.C:
			if err := b.listener.Ping(); err != nil {
				b.log.Warn("room listener ping failed", zap.Error(err))
			}
		}
	}
}

// Close releases the listener connection.
func (b *PGBroker) Close() error {
	return b.listener.Close()
}
