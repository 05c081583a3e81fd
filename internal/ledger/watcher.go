package ledger

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// HeadWatcher subscribes to newHeads over WebSocket and fans a wake
// signal out to receipt pollers. It is a latency optimization only:
// Await still works on its poll timer when the watcher is absent or
// the connection drops.
type HeadWatcher struct {
	url    string
	logger *slog.Logger

	mu   sync.Mutex
	subs map[chan struct{}]struct{}

	cancel context.CancelFunc
	done   chan struct{}
}

// NewHeadWatcher creates a watcher for the given WebSocket URL.
func NewHeadWatcher(url string, logger *slog.Logger) *HeadWatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &HeadWatcher{
		url:    url,
		logger: logger,
		subs:   make(map[chan struct{}]struct{}),
		done:   make(chan struct{}),
	}
}

// Start connects and begins delivering head notifications in the
// background, reconnecting with a flat delay until Stop is called.
func (w *HeadWatcher) Start(ctx context.Context) {
	ctx, w.cancel = context.WithCancel(ctx)
	go func() {
		defer close(w.done)
		for {
			if err := w.run(ctx); err != nil && ctx.Err() == nil {
				w.logger.Warn("head subscription dropped, reconnecting",
					slog.String("error", err.Error()))
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
		}
	}()
}

// Stop tears the connection down and waits for the read loop to exit.
func (w *HeadWatcher) Stop() {
	if w.cancel != nil {
		w.cancel()
		<-w.done
	}
}

// Subscribe registers a wake channel. The returned cancel func must be
// called when the subscriber is done. Notifications are best-effort:
// a slow subscriber misses wakes rather than blocking the read loop.
func (w *HeadWatcher) Subscribe() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)
	w.mu.Lock()
	w.subs[ch] = struct{}{}
	w.mu.Unlock()

	cancel := func() {
		w.mu.Lock()
		delete(w.subs, ch)
		w.mu.Unlock()
	}
	return ch, cancel
}

func (w *HeadWatcher) notifyAll() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for ch := range w.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

func (w *HeadWatcher) run(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 5 * time.Second}
	conn, _, err := dialer.DialContext(ctx, w.url, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	sub := map[string]any{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  "eth_subscribe",
		"params":  []any{"newHeads"},
	}
	if err := conn.WriteJSON(sub); err != nil {
		return err
	}

	// Close the connection when the context ends so ReadMessage unblocks.
	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		var frame struct {
			Method string `json:"method"`
		}
		if err := json.Unmarshal(msg, &frame); err != nil {
			w.logger.Debug("unparseable subscription frame", slog.String("error", err.Error()))
			continue
		}
		if frame.Method == "eth_subscription" {
			w.notifyAll()
		}
	}
}
