package docsync

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/starford/orgview/internal/apperr"
	"github.com/starford/orgview/internal/editbuf"
	"github.com/starford/orgview/internal/models"
)

type fetchCall struct {
	path  string
	reply chan result
}

type submitCall struct {
	path  string
	fm    models.Frontmatter
	body  string
	reply chan result
}

// fakeBackend hands every request to the test, which answers it in any order.
type fakeBackend struct {
	fetches chan *fetchCall
	submits chan *submitCall
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{fetches: make(chan *fetchCall, 16), submits: make(chan *submitCall, 16)}
}

func (f *fakeBackend) FetchDocument(_ context.Context, path string) (*models.Document, error) {
	c := &fetchCall{path: path, reply: make(chan result, 1)}
	f.fetches <- c
	r := <-c.reply
	return r.doc, r.err
}

func (f *fakeBackend) SubmitDocument(_ context.Context, path string, fm models.Frontmatter, body string) (*models.Document, error) {
	c := &submitCall{path: path, fm: fm, body: body, reply: make(chan result, 1)}
	f.submits <- c
	r := <-c.reply
	return r.doc, r.err
}

func (f *fakeBackend) nextFetch(t *testing.T) *fetchCall {
	t.Helper()
	select {
	case c := <-f.fetches:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("no fetch issued")
		return nil
	}
}

func (f *fakeBackend) nextSubmit(t *testing.T) *submitCall {
	t.Helper()
	select {
	case c := <-f.submits:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("no submit issued")
		return nil
	}
}

func (f *fakeBackend) noFetch(t *testing.T) {
	t.Helper()
	select {
	case c := <-f.fetches:
		t.Fatalf("unexpected fetch of %s", c.path)
	case <-time.After(50 * time.Millisecond):
	}
}

// fakeChanges is a ChangeSource driven by the test.
type fakeChanges struct {
	mu sync.Mutex
	fn func(models.ChangeEvent)
}

func (c *fakeChanges) Subscribe(fn func(models.ChangeEvent)) func() {
	c.mu.Lock()
	c.fn = fn
	c.mu.Unlock()
	return func() {
		c.mu.Lock()
		c.fn = nil
		c.mu.Unlock()
	}
}

func (c *fakeChanges) emit(kind, path string) {
	c.mu.Lock()
	fn := c.fn
	c.mu.Unlock()
	if fn != nil {
		fn(models.ChangeEvent{Kind: kind, Path: path})
	}
}

func doc(path, status string) *models.Document {
	return &models.Document{
		Path:        path,
		Type:        models.TypeTask,
		Frontmatter: models.Frontmatter{"type": "task", "status": status},
		Content:     "body of " + path,
	}
}

func newSession(t *testing.T, changes ChangeSource) (*Session, *fakeBackend) {
	t.Helper()
	fb := newFakeBackend()
	s := NewSession(fb, changes, WithLogger(slog.New(slog.NewJSONHandler(io.Discard, nil))))
	t.Cleanup(s.Close)
	return s, fb
}

type asyncResult struct {
	doc *models.Document
	err error
}

func async(fn func() (*models.Document, error)) <-chan asyncResult {
	c := make(chan asyncResult, 1)
	go func() {
		d, err := fn()
		c <- asyncResult{d, err}
	}()
	return c
}

func wait(t *testing.T, c <-chan asyncResult) asyncResult {
	t.Helper()
	select {
	case r := <-c:
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("call did not return")
		return asyncResult{}
	}
}

// navigateTo displays path and answers its first load with d.
func navigateTo(t *testing.T, s *Session, fb *fakeBackend, path string, d *models.Document) {
	t.Helper()
	res := async(func() (*models.Document, error) { return s.Navigate(context.Background(), path) })
	fb.nextFetch(t).reply <- result{doc: d}
	if r := wait(t, res); r.err != nil {
		t.Fatalf("navigate %s: %v", path, r.err)
	}
}

func TestLoad_NewerResponseWins(t *testing.T) {
	s, fb := newSession(t, nil)
	ctx := context.Background()

	r1 := async(func() (*models.Document, error) { return s.Load(ctx, "a.md") })
	c1 := fb.nextFetch(t)
	r2 := async(func() (*models.Document, error) { return s.Load(ctx, "a.md") })
	c2 := fb.nextFetch(t)

	c2.reply <- result{doc: doc("a.md", "done")}
	if got := wait(t, r2); got.err != nil || got.doc.Frontmatter["status"] != "done" {
		t.Fatalf("r2 = %+v", got)
	}
	c1.reply <- result{doc: doc("a.md", "todo")}
	got := wait(t, r1)
	if got.err != nil || got.doc.Frontmatter["status"] != "done" {
		t.Fatalf("stale r1 = %+v, want newer document", got)
	}

	e, ok := s.Entry("a.md")
	if !ok || e.Version != 2 || e.Document.Frontmatter["status"] != "done" {
		t.Errorf("entry = %+v", e)
	}
	if e.State != Idle {
		t.Errorf("state = %v, want idle", e.State)
	}
}

func TestLoad_OlderFirstThenNewer(t *testing.T) {
	s, fb := newSession(t, nil)
	ctx := context.Background()

	r1 := async(func() (*models.Document, error) { return s.Load(ctx, "a.md") })
	c1 := fb.nextFetch(t)
	r2 := async(func() (*models.Document, error) { return s.Load(ctx, "a.md") })
	c2 := fb.nextFetch(t)

	c1.reply <- result{doc: doc("a.md", "todo")}
	wait(t, r1)
	e, _ := s.Entry("a.md")
	if e.State != Fetching {
		t.Errorf("state after first of two = %v, want fetching", e.State)
	}
	c2.reply <- result{doc: doc("a.md", "done")}
	wait(t, r2)

	e, _ = s.Entry("a.md")
	if e.Document.Frontmatter["status"] != "done" || e.Version != 2 {
		t.Errorf("entry = %+v", e)
	}
}

func TestNavigate_DiscardsResponsesForEvictedSlot(t *testing.T) {
	s, fb := newSession(t, nil)
	ctx := context.Background()

	ra := async(func() (*models.Document, error) { return s.Navigate(ctx, "a.md") })
	ca := fb.nextFetch(t)
	rb := async(func() (*models.Document, error) { return s.Navigate(ctx, "b.md") })
	cb := fb.nextFetch(t)

	cb.reply <- result{doc: doc("b.md", "todo")}
	if r := wait(t, rb); r.err != nil {
		t.Fatal(r.err)
	}
	ca.reply <- result{doc: doc("a.md", "todo")}
	if r := wait(t, ra); !errors.Is(r.err, ErrDiscarded) {
		t.Fatalf("late a.md = %v, want ErrDiscarded", r.err)
	}
	if _, ok := s.Entry("a.md"); ok {
		t.Error("evicted slot reappeared")
	}
	if s.Current() != "b.md" {
		t.Errorf("current = %q", s.Current())
	}
}

func TestNavigate_BackDoesNotApplyOldResponse(t *testing.T) {
	s, fb := newSession(t, nil)
	ctx := context.Background()

	ra1 := async(func() (*models.Document, error) { return s.Navigate(ctx, "a.md") })
	ca1 := fb.nextFetch(t)
	rb := async(func() (*models.Document, error) { return s.Navigate(ctx, "b.md") })
	cb := fb.nextFetch(t)
	ra2 := async(func() (*models.Document, error) { return s.Navigate(ctx, "a.md") })
	ca2 := fb.nextFetch(t)

	// The request issued before the slot was recreated must not land.
	ca1.reply <- result{doc: doc("a.md", "old")}
	if r := wait(t, ra1); !errors.Is(r.err, ErrDiscarded) {
		t.Fatalf("old a.md = %+v", r)
	}
	if e, _ := s.Entry("a.md"); e.Document != nil {
		t.Fatalf("old response applied: %+v", e.Document)
	}

	ca2.reply <- result{doc: doc("a.md", "new")}
	if r := wait(t, ra2); r.err != nil || r.doc.Frontmatter["status"] != "new" {
		t.Fatalf("a.md = %+v", r)
	}
	cb.reply <- result{doc: doc("b.md", "x")}
	if r := wait(t, rb); !errors.Is(r.err, ErrDiscarded) {
		t.Errorf("b.md after leaving = %+v", r)
	}
}

func TestLoad_NotFoundClearsDocument(t *testing.T) {
	s, fb := newSession(t, nil)
	navigateTo(t, s, fb, "a.md", doc("a.md", "todo"))

	r := async(func() (*models.Document, error) { return s.Load(context.Background(), "a.md") })
	fb.nextFetch(t).reply <- result{err: apperr.ErrNotFound}
	if got := wait(t, r); !errors.Is(got.err, apperr.ErrNotFound) {
		t.Fatalf("err = %v", got.err)
	}
	e, _ := s.Entry("a.md")
	if e.Document != nil || e.State != Failed {
		t.Errorf("entry = %+v", e)
	}
}

func TestLoad_TransportErrorKeepsDocument(t *testing.T) {
	s, fb := newSession(t, nil)
	navigateTo(t, s, fb, "a.md", doc("a.md", "todo"))

	r := async(func() (*models.Document, error) { return s.Load(context.Background(), "a.md") })
	fb.nextFetch(t).reply <- result{err: apperr.Transport(errors.New("connection refused"))}
	if got := wait(t, r); !errors.Is(got.err, apperr.ErrTransport) {
		t.Fatalf("err = %v", got.err)
	}
	e, _ := s.Entry("a.md")
	if e.Document == nil || e.State != Failed || e.Err == nil {
		t.Errorf("entry = %+v", e)
	}
}

func TestInvalidation_DisplayedPathOnly(t *testing.T) {
	changes := &fakeChanges{}
	s, fb := newSession(t, changes)
	navigateTo(t, s, fb, "a.md", doc("a.md", "todo"))

	changes.emit(models.ChangeUpdated, "other.md")
	fb.noFetch(t)

	changes.emit(models.ChangeUpdated, "a.md")
	c := fb.nextFetch(t)
	if c.path != "a.md" {
		t.Fatalf("fetched %s", c.path)
	}
	c.reply <- result{doc: doc("a.md", "done")}

	deadline := time.Now().Add(2 * time.Second)
	for {
		e, _ := s.Entry("a.md")
		if e.Document.Frontmatter["status"] == "done" {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("reload not applied")
		}
		time.Sleep(5 * time.Millisecond)
	}

	changes.emit(models.ChangeResync, "")
	if c := fb.nextFetch(t); c.path != "a.md" {
		t.Fatalf("resync fetched %s", c.path)
	} else {
		c.reply <- result{doc: doc("a.md", "done")}
	}
}

func TestInvalidation_BeforeNavigateIgnored(t *testing.T) {
	changes := &fakeChanges{}
	_, fb := newSession(t, changes)
	changes.emit(models.ChangeResync, "")
	fb.noFetch(t)
}

func TestSave_CommitsViaReload(t *testing.T) {
	s, fb := newSession(t, nil)
	navigateTo(t, s, fb, "a.md", doc("a.md", "todo"))

	var mu sync.Mutex
	var updates []Update
	s.Subscribe(func(u Update) {
		mu.Lock()
		updates = append(updates, u)
		mu.Unlock()
	})

	e, _ := s.Entry("a.md")
	buf := editbuf.ToEditBuffer(e.Document)
	_ = buf.Set("status", "done")

	r := async(func() (*models.Document, error) { return s.Save(context.Background(), "a.md", buf) })
	sub := fb.nextSubmit(t)
	if sub.fm["status"] != "done" {
		t.Errorf("submitted fm = %v", sub.fm)
	}

	// A second save while the first is pending is rejected at once.
	if _, err := s.Save(context.Background(), "a.md", buf); !errors.Is(err, apperr.ErrSaveInProgress) {
		t.Fatalf("second save = %v, want ErrSaveInProgress", err)
	}
	if e, _ := s.Entry("a.md"); !e.Pending || e.State != Pending {
		t.Errorf("entry during save = %+v", e)
	}

	// The submit response itself is not applied; the reload is.
	sub.reply <- result{doc: doc("a.md", "submitted")}
	fb.nextFetch(t).reply <- result{doc: doc("a.md", "done")}

	got := wait(t, r)
	if got.err != nil || got.doc.Frontmatter["status"] != "done" {
		t.Fatalf("save = %+v", got)
	}
	e, _ = s.Entry("a.md")
	if e.State != Committed || e.Pending {
		t.Errorf("entry after save = %+v", e)
	}

	mu.Lock()
	defer mu.Unlock()
	loaded := 0
	for _, u := range updates {
		if u.Kind == UpdateLoaded {
			loaded++
		}
	}
	if loaded != 1 {
		t.Errorf("cache updated %d times by save, want 1", loaded)
	}
}

func TestSave_FailureLeavesEntry(t *testing.T) {
	s, fb := newSession(t, nil)
	navigateTo(t, s, fb, "a.md", doc("a.md", "todo"))
	before, _ := s.Entry("a.md")

	buf := editbuf.ToEditBuffer(before.Document)
	_ = buf.Set("status", "done")
	r := async(func() (*models.Document, error) { return s.Save(context.Background(), "a.md", buf) })
	fb.nextSubmit(t).reply <- result{err: &apperr.ValidationError{Fields: map[string]string{"status": "nope"}}}

	if got := wait(t, r); !errors.Is(got.err, apperr.ErrValidation) {
		t.Fatalf("err = %v", got.err)
	}
	after, _ := s.Entry("a.md")
	if after.Document != before.Document || after.Version != before.Version {
		t.Errorf("failed save changed entry: %+v", after)
	}
	if after.Pending || after.State != Failed {
		t.Errorf("state = %v pending = %v", after.State, after.Pending)
	}
	if f, _ := buf.Field("status"); f.Text != "done" || !f.Modified {
		t.Error("buffer should be left for retry")
	}

	// Retry is allowed once the failed save is settled.
	r = async(func() (*models.Document, error) { return s.Save(context.Background(), "a.md", buf) })
	fb.nextSubmit(t).reply <- result{doc: doc("a.md", "done")}
	fb.nextFetch(t).reply <- result{doc: doc("a.md", "done")}
	if got := wait(t, r); got.err != nil {
		t.Fatal(got.err)
	}
}

func TestSave_PreservesRemoteChanges(t *testing.T) {
	changes := &fakeChanges{}
	s, fb := newSession(t, changes)
	navigateTo(t, s, fb, "a.md", doc("a.md", "todo"))

	e, _ := s.Entry("a.md")
	buf := editbuf.ToEditBuffer(e.Document)
	_ = buf.Set("priority", "high")

	// Someone else adds a field while the buffer is open.
	remote := doc("a.md", "todo")
	remote.Frontmatter["reviewer"] = "kim"
	changes.emit(models.ChangeUpdated, "a.md")
	fb.nextFetch(t).reply <- result{doc: remote}
	deadline := time.Now().Add(2 * time.Second)
	for {
		if e, _ := s.Entry("a.md"); e.Document.Frontmatter["reviewer"] == "kim" {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("remote change not applied")
		}
		time.Sleep(5 * time.Millisecond)
	}

	r := async(func() (*models.Document, error) { return s.Save(context.Background(), "a.md", buf) })
	sub := fb.nextSubmit(t)
	if sub.fm["reviewer"] != "kim" || sub.fm["priority"] != "high" {
		t.Errorf("submitted fm = %v", sub.fm)
	}
	sub.reply <- result{doc: remote}
	fb.nextFetch(t).reply <- result{doc: remote}
	wait(t, r)
}

func TestSave_ReloadFailureReturnsSubmitted(t *testing.T) {
	s, fb := newSession(t, nil)
	navigateTo(t, s, fb, "a.md", doc("a.md", "todo"))
	e, _ := s.Entry("a.md")
	buf := editbuf.ToEditBuffer(e.Document)
	_ = buf.Set("status", "done")

	r := async(func() (*models.Document, error) { return s.Save(context.Background(), "a.md", buf) })
	fb.nextSubmit(t).reply <- result{doc: doc("a.md", "submitted")}
	fb.nextFetch(t).reply <- result{err: apperr.Transport(errors.New("reset"))}

	got := wait(t, r)
	if got.err != nil || got.doc.Frontmatter["status"] != "submitted" {
		t.Fatalf("save = %+v", got)
	}
	e, _ = s.Entry("a.md")
	if e.State != Failed || e.Err == nil {
		t.Errorf("entry = %+v", e)
	}
}

func TestSave_InvalidBufferNotSubmitted(t *testing.T) {
	s, fb := newSession(t, nil)
	navigateTo(t, s, fb, "a.md", doc("a.md", "todo"))
	e, _ := s.Entry("a.md")
	buf := editbuf.ToEditBuffer(e.Document)
	_ = buf.Set("status", "someday")

	if _, err := s.Save(context.Background(), "a.md", buf); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("err = %v", err)
	}
	select {
	case <-fb.submits:
		t.Fatal("invalid buffer was submitted")
	case <-time.After(20 * time.Millisecond):
	}
}

func TestClose_RejectsCalls(t *testing.T) {
	s, _ := newSession(t, nil)
	s.Close()
	if _, err := s.Load(context.Background(), "a.md"); !errors.Is(err, ErrClosed) {
		t.Errorf("err = %v", err)
	}
}

func TestSave_BodyOnlyKeepsStoredOffSchemaValue(t *testing.T) {
	s, fb := newSession(t, nil)
	navigateTo(t, s, fb, "a.md", doc("a.md", "in_progress"))
	e, _ := s.Entry("a.md")
	buf := editbuf.ToEditBuffer(e.Document)
	buf.SetBody("rewritten")

	r := async(func() (*models.Document, error) { return s.Save(context.Background(), "a.md", buf) })
	sub := fb.nextSubmit(t)
	if sub.fm["status"] != "in_progress" || sub.body != "rewritten" {
		t.Errorf("submitted fm = %v body = %q", sub.fm, sub.body)
	}
	sub.reply <- result{doc: doc("a.md", "in_progress")}
	fb.nextFetch(t).reply <- result{doc: doc("a.md", "in_progress")}
	if got := wait(t, r); got.err != nil {
		t.Fatal(got.err)
	}
}

func TestSave_NotificationDuringPendingReloadsButSaveWins(t *testing.T) {
	changes := &fakeChanges{}
	s, fb := newSession(t, changes)
	navigateTo(t, s, fb, "a.md", doc("a.md", "todo"))
	e, _ := s.Entry("a.md")
	buf := editbuf.ToEditBuffer(e.Document)
	_ = buf.Set("status", "done")

	r := async(func() (*models.Document, error) { return s.Save(context.Background(), "a.md", buf) })
	sub := fb.nextSubmit(t)

	// A change arrives while the save is pending: the reload is still issued.
	changes.emit(models.ChangeUpdated, "a.md")
	notified := fb.nextFetch(t)

	sub.reply <- result{doc: doc("a.md", "done")}
	fb.nextFetch(t).reply <- result{doc: doc("a.md", "done")}
	got := wait(t, r)
	if got.err != nil || got.doc.Frontmatter["status"] != "done" {
		t.Fatalf("save = %+v", got)
	}

	// The older notification reload resolves last and is discarded.
	notified.reply <- result{doc: doc("a.md", "todo")}
	time.Sleep(50 * time.Millisecond)
	e, _ = s.Entry("a.md")
	if e.Document.Frontmatter["status"] != "done" || e.State != Committed || e.Pending {
		t.Errorf("entry = status %v state %v pending %v", e.Document.Frontmatter["status"], e.State, e.Pending)
	}
}

func TestInvalidation_ResyncDuringFirstLoadWins(t *testing.T) {
	changes := &fakeChanges{}
	s, fb := newSession(t, changes)

	// The feed connects while the first load is in flight; a change made
	// in between reaches the client only through the connect resync.
	nav := async(func() (*models.Document, error) { return s.Navigate(context.Background(), "a.md") })
	first := fb.nextFetch(t)
	changes.emit(models.ChangeResync, "")
	second := fb.nextFetch(t)
	if second.path != "a.md" {
		t.Fatalf("resync fetched %s", second.path)
	}

	second.reply <- result{doc: doc("a.md", "done")}
	first.reply <- result{doc: doc("a.md", "todo")}
	if r := wait(t, nav); r.err != nil || r.doc.Frontmatter["status"] != "done" {
		t.Fatalf("navigate = %+v, want newer document", r)
	}
	e, _ := s.Entry("a.md")
	if e.Document.Frontmatter["status"] != "done" {
		t.Errorf("entry = %+v", e)
	}
}
