// Package changefeed subscribes to the server's WebSocket change feed and
// fans the events out to local listeners.
package changefeed

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"

	"github.com/starford/orgview/internal/models"
)

const writeTimeout = 5 * time.Second

// Feed maintains a WebSocket connection to /ws and redelivers change events.
// Every successful connect, the first included, emits a ChangeResync event:
// changes made before the handshake or while disconnected are never
// delivered.
type Feed struct {
	url         string
	header      http.Header
	logger      *slog.Logger
	dialer      *websocket.Dialer
	readTimeout time.Duration
	initial     time.Duration
	maxDelay    time.Duration

	mu     sync.Mutex
	subs   map[int]func(models.ChangeEvent)
	nextID int
}

// Option configures a Feed.
type Option func(*Feed)

// WithLogger sets the logger used for connection state changes.
func WithLogger(l *slog.Logger) Option {
	return func(f *Feed) { f.logger = l }
}

// WithHeader adds headers to the WebSocket handshake.
func WithHeader(h http.Header) Option {
	return func(f *Feed) { f.header = h }
}

// WithReconnect sets the initial and maximum reconnect delay.
func WithReconnect(initial, max time.Duration) Option {
	return func(f *Feed) {
		if initial > 0 {
			f.initial = initial
		}
		if max >= initial {
			f.maxDelay = max
		}
	}
}

// WithReadTimeout sets how long the connection may stay silent (no event
// and no ping) before it is considered dead.
func WithReadTimeout(d time.Duration) Option {
	return func(f *Feed) {
		if d > 0 {
			f.readTimeout = d
		}
	}
}

// New creates a Feed for the WebSocket endpoint at url (ws:// or wss://).
func New(url string, opts ...Option) *Feed {
	f := &Feed{
		url:         url,
		logger:      slog.Default(),
		dialer:      &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		readTimeout: 75 * time.Second,
		initial:     time.Second,
		maxDelay:    30 * time.Second,
		subs:        make(map[int]func(models.ChangeEvent)),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Subscribe registers fn for every received event. fn runs on the feed's
// reader goroutine and must not block. The returned func unregisters it.
func (f *Feed) Subscribe(fn func(models.ChangeEvent)) (unsubscribe func()) {
	f.mu.Lock()
	id := f.nextID
	f.nextID++
	f.subs[id] = fn
	f.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			f.mu.Lock()
			delete(f.subs, id)
			f.mu.Unlock()
		})
	}
}

func (f *Feed) emit(ev models.ChangeEvent) {
	f.mu.Lock()
	fns := make([]func(models.ChangeEvent), 0, len(f.subs))
	for _, fn := range f.subs {
		fns = append(fns, fn)
	}
	f.mu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}

// Run connects and keeps reconnecting with exponential backoff until ctx
// is cancelled. It always returns nil once ctx is done.
func (f *Feed) Run(ctx context.Context) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = f.initial
	b.MaxInterval = f.maxDelay
	b.MaxElapsedTime = 0
	b.Reset()

	for {
		err := f.runOnce(ctx, func() {
			f.emit(models.ChangeEvent{Kind: models.ChangeResync})
			b.Reset()
		})
		if ctx.Err() != nil {
			return nil
		}

		wait := b.NextBackOff()
		f.logger.Warn("changefeed: disconnected",
			slog.String("error", err.Error()),
			slog.Duration("retry_in", wait),
		)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(wait):
		}
	}
}

// runOnce holds one connection until it fails. onConnect runs after the
// handshake succeeds.
func (f *Feed) runOnce(ctx context.Context, onConnect func()) error {
	conn, _, err := f.dialer.DialContext(ctx, f.url, f.header)
	if err != nil {
		return fmt.Errorf("changefeed: dial: %w", err)
	}
	defer conn.Close()

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeTimeout))
			conn.Close()
		case <-stop:
		}
	}()

	conn.SetReadDeadline(time.Now().Add(f.readTimeout))
	conn.SetPingHandler(func(data string) error {
		conn.SetReadDeadline(time.Now().Add(f.readTimeout))
		err := conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(writeTimeout))
		if err == websocket.ErrCloseSent {
			return nil
		}
		return err
	})

	f.logger.Info("changefeed: connected", slog.String("url", redact(f.url)))
	onConnect()

	for {
		var ev models.ChangeEvent
		if err := conn.ReadJSON(&ev); err != nil {
			return fmt.Errorf("changefeed: read: %w", err)
		}
		conn.SetReadDeadline(time.Now().Add(f.readTimeout))
		if ev.Kind == "" || ev.Path == "" {
			continue
		}
		f.emit(ev)
	}
}
