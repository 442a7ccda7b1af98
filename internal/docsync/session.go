package docsync

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/starford/orgview/internal/apperr"
	"github.com/starford/orgview/internal/editbuf"
	"github.com/starford/orgview/internal/models"
)

var (
	// ErrDiscarded is returned by a load whose slot was evicted before the
	// response arrived.
	ErrDiscarded = errors.New("docsync: response discarded")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("docsync: session closed")
)

// UpdateKind tells subscribers what happened to an entry.
type UpdateKind int

const (
	UpdateLoaded UpdateKind = iota
	UpdateFailed
	UpdatePending
	UpdateEvicted
)

func (k UpdateKind) String() string {
	switch k {
	case UpdateFailed:
		return "failed"
	case UpdatePending:
		return "pending"
	case UpdateEvicted:
		return "evicted"
	default:
		return "loaded"
	}
}

// Update is delivered to subscribers after every entry change.
type Update struct {
	Kind  UpdateKind
	Entry Entry
}

type result struct {
	doc *models.Document
	err error
}

// Session owns the document store and the currently displayed path.
//
// A single loop goroutine owns all cache state. Network calls run on their
// own goroutines and post completions back to the loop, where per-path
// sequence stamps decide whether a response is still wanted.
type Session struct {
	backend Backend
	logger  *slog.Logger
	now     func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	ops    chan func()
	done   chan struct{}
	closed chan struct{}
	once   sync.Once
	unsub  func()

	// Owned by the loop.
	store   *Store
	seq     map[string]uint64
	saving  map[string]bool
	current string
	subs    map[int]func(Update)
	nextSub int
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the session logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) { s.logger = l }
}

// WithClock overrides time.Now for FetchedAt stamps.
func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

// NewSession starts a session over backend. When changes is non-nil the
// session subscribes to it and reloads the displayed document on every
// relevant change.
func NewSession(backend Backend, changes ChangeSource, opts ...Option) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		backend: backend,
		logger:  slog.Default(),
		now:     time.Now,
		ctx:     ctx,
		cancel:  cancel,
		ops:     make(chan func()),
		done:    make(chan struct{}),
		closed:  make(chan struct{}),
		store:   NewStore(),
		seq:     make(map[string]uint64),
		saving:  make(map[string]bool),
		subs:    make(map[int]func(Update)),
	}
	for _, opt := range opts {
		opt(s)
	}

	go s.run()

	if changes != nil {
		s.unsub = changes.Subscribe(func(ev models.ChangeEvent) {
			_ = s.post(func() { s.onChange(ev) })
		})
	}
	return s
}

func (s *Session) run() {
	defer close(s.closed)
	for {
		select {
		case <-s.done:
			return
		case op := <-s.ops:
			op()
		}
	}
}

// post hands fn to the loop.
func (s *Session) post(fn func()) error {
	select {
	case s.ops <- fn:
		return nil
	case <-s.closed:
		return ErrClosed
	}
}

// Close stops the loop. In-flight requests complete but are discarded.
func (s *Session) Close() {
	s.once.Do(func() {
		if s.unsub != nil {
			s.unsub()
		}
		s.cancel()
		close(s.done)
		<-s.closed
	})
}

// Subscribe registers fn for entry updates. fn runs on the session loop: it
// must not block and must not call back into the Session.
func (s *Session) Subscribe(fn func(Update)) (unsubscribe func()) {
	idc := make(chan int, 1)
	if err := s.post(func() {
		id := s.nextSub
		s.nextSub++
		s.subs[id] = fn
		idc <- id
	}); err != nil {
		return func() {}
	}
	id := <-idc
	var once sync.Once
	return func() {
		once.Do(func() {
			_ = s.post(func() { delete(s.subs, id) })
		})
	}
}

// Entry returns a snapshot of the slot for path.
func (s *Session) Entry(path string) (Entry, bool) {
	type snap struct {
		e  Entry
		ok bool
	}
	c := make(chan snap, 1)
	if err := s.post(func() {
		if e := s.store.Get(path); e != nil {
			c <- snap{*e, true}
			return
		}
		c <- snap{}
	}); err != nil {
		return Entry{}, false
	}
	r := <-c
	return r.e, r.ok
}

// Current returns the displayed path, or "" before the first Navigate.
func (s *Session) Current() string {
	c := make(chan string, 1)
	if err := s.post(func() { c <- s.current }); err != nil {
		return ""
	}
	return <-c
}

// Navigate makes path the displayed document: the previous slot is evicted,
// a fresh slot is created for path and loaded. Responses to requests issued
// for path before this call are never applied to the new slot.
func (s *Session) Navigate(ctx context.Context, path string) (*models.Document, error) {
	return s.await(ctx, func(reply func(result)) {
		if s.current != "" && s.current != path {
			s.evict(s.current)
		}
		if s.current != path {
			s.store.Delete(path)
		}
		s.current = path
		s.ensureSlot(path)
		s.startLoad(ctx, path, false, reply)
	})
}

// Load fetches path and applies the response if it is still the newest for
// its slot. A response overtaken by a later one returns the newer document;
// one whose slot was evicted returns ErrDiscarded.
func (s *Session) Load(ctx context.Context, path string) (*models.Document, error) {
	return s.await(ctx, func(reply func(result)) {
		s.ensureSlot(path)
		s.startLoad(ctx, path, false, reply)
	})
}

// Save submits buf for path. Fields the buffer does not expose are taken
// from the current cache entry so remote changes seen since the buffer was
// built survive. A second save for the same path while one is in flight
// fails with apperr.ErrSaveInProgress. On success the document is reloaded
// and the reloaded copy is returned. On failure the entry keeps its
// document and buf is left for a retry.
func (s *Session) Save(ctx context.Context, path string, buf *editbuf.Buffer) (*models.Document, error) {
	if err := buf.Validate(); err != nil {
		return nil, err
	}
	return s.await(ctx, func(reply func(result)) {
		if s.saving[path] {
			reply(result{err: apperr.ErrSaveInProgress})
			return
		}

		original := buf.Source
		e := s.store.Get(path)
		if e != nil && e.Document != nil {
			original = e.Document
		}
		fm, body := editbuf.FromEditBuffer(buf, original)

		s.saving[path] = true
		if e != nil {
			s.replace(e, func(n *Entry) {
				n.Pending = true
				n.State = Pending
			}, UpdatePending)
		}

		go func() {
			doc, err := s.backend.SubmitDocument(ctx, path, fm, body)
			if perr := s.post(func() { s.finishSave(ctx, path, doc, err, reply) }); perr != nil {
				reply(result{err: perr})
			}
		}()
	})
}

// await runs start on the loop and waits for the reply it eventually sends.
func (s *Session) await(ctx context.Context, start func(reply func(result))) (*models.Document, error) {
	c := make(chan result, 1)
	reply := func(r result) {
		select {
		case c <- r:
		default:
		}
	}
	if err := s.post(func() { start(reply) }); err != nil {
		return nil, err
	}
	select {
	case r := <-c:
		return r.doc, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-s.closed:
		return nil, ErrClosed
	}
}

// onChange handles a server change notification. Only the displayed path is
// reloaded; other paths are refreshed when they are next displayed.
func (s *Session) onChange(ev models.ChangeEvent) {
	if s.current == "" {
		return
	}
	if ev.Kind != models.ChangeResync && ev.Path != s.current {
		return
	}
	s.logger.Debug("docsync: invalidated",
		slog.String("path", s.current),
		slog.String("kind", ev.Kind),
	)
	s.startLoad(s.ctx, s.current, false, nil)
}

func (s *Session) ensureSlot(path string) {
	if s.store.Get(path) != nil {
		return
	}
	s.store.Put(&Entry{Path: path, State: Idle, Version: s.seq[path]})
}

func (s *Session) evict(path string) {
	e := s.store.Get(path)
	if e == nil {
		return
	}
	s.store.Delete(path)
	s.notify(UpdateEvicted, e)
}

// startLoad stamps and issues a fetch. reply, if set, runs on the loop with
// the outcome.
func (s *Session) startLoad(ctx context.Context, path string, afterSave bool, reply func(result)) {
	stamp := s.seq[path] + 1
	s.seq[path] = stamp

	if e := s.store.Get(path); e != nil && !s.saving[path] && e.State != Fetching {
		s.replace(e, func(n *Entry) { n.State = Fetching }, -1)
	}

	go func() {
		doc, err := s.backend.FetchDocument(ctx, path)
		perr := s.post(func() {
			r := s.applyLoad(path, stamp, doc, err, afterSave)
			if reply != nil {
				reply(r)
			}
		})
		if perr != nil && reply != nil {
			reply(result{err: perr})
		}
	}()
}

func (s *Session) applyLoad(path string, stamp uint64, doc *models.Document, err error, afterSave bool) result {
	e := s.store.Get(path)
	if e == nil {
		return result{err: ErrDiscarded}
	}
	if stamp <= e.Version {
		s.logger.Debug("docsync: stale response dropped",
			slog.String("path", path),
			slog.Uint64("stamp", stamp),
			slog.Uint64("version", e.Version),
		)
		if e.Document != nil {
			return result{doc: e.Document}
		}
		if e.Err != nil {
			return result{err: e.Err}
		}
		return result{err: ErrDiscarded}
	}

	n := *e
	n.Version = stamp
	n.FetchedAt = s.now()
	kind := UpdateLoaded
	switch {
	case err == nil:
		n.Document, n.Err, n.State = doc, nil, Idle
		if afterSave {
			n.State = Committed
		}
	case errors.Is(err, apperr.ErrNotFound):
		n.Document, n.Err, n.State = nil, err, Failed
		kind = UpdateFailed
	default:
		n.Err, n.State = err, Failed
		kind = UpdateFailed
		s.logger.Warn("docsync: load failed",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
	}
	n.Pending = s.saving[path]
	switch {
	case n.Pending:
		n.State = Pending
	case n.State != Failed && s.seq[path] > stamp:
		n.State = Fetching
	}
	s.store.Put(&n)
	s.notify(kind, &n)

	if err != nil {
		return result{err: err}
	}
	return result{doc: doc}
}

func (s *Session) finishSave(ctx context.Context, path string, submitted *models.Document, err error, reply func(result)) {
	delete(s.saving, path)

	if err != nil {
		if e := s.store.Get(path); e != nil {
			s.replace(e, func(n *Entry) {
				n.Pending = false
				n.State = Failed
				n.Err = err
			}, UpdateFailed)
		}
		s.logger.Warn("docsync: save failed",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		reply(result{err: err})
		return
	}

	if s.store.Get(path) == nil {
		reply(result{doc: submitted})
		return
	}
	s.startLoad(ctx, path, true, func(r result) {
		if r.err != nil {
			reply(result{doc: submitted})
			return
		}
		reply(r)
	})
}

// replace stores a modified copy of e. A negative kind skips notification.
func (s *Session) replace(e *Entry, mutate func(*Entry), kind UpdateKind) {
	n := *e
	mutate(&n)
	s.store.Put(&n)
	if kind >= 0 {
		s.notify(kind, &n)
	}
}

func (s *Session) notify(kind UpdateKind, e *Entry) {
	for _, fn := range s.subs {
		fn(Update{Kind: kind, Entry: *e})
	}
}
