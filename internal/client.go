package internal

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/starford/orgview/internal/changefeed"
	"github.com/starford/orgview/internal/docsync"
	"github.com/starford/orgview/internal/editbuf"
	"github.com/starford/orgview/internal/linkres"
	"github.com/starford/orgview/internal/models"
	"github.com/starford/orgview/internal/remote"
	"github.com/starford/orgview/internal/render"
)

// ViewOptions selects the output of RunView.
type ViewOptions struct {
	HTML  bool
	Watch bool
}

type clientDeps struct {
	app    *application
	logger *slog.Logger
	remote *remote.Client
	feed   *changefeed.Feed
}

func newClient(opts []Option) (*clientDeps, error) {
	app, err := newApplication(opts)
	if err != nil {
		return nil, err
	}
	cfg := app.config

	logger := newLogger(cfg.App.LogLevel, os.Stderr)
	slog.SetDefault(logger)

	rc, err := remote.New(cfg.Client.ServerURL, remote.WithToken(cfg.Client.Token))
	if err != nil {
		return nil, err
	}
	feed := changefeed.New(rc.EventsURL(),
		changefeed.WithLogger(logger),
		changefeed.WithReconnect(cfg.Client.ReconnectDelay, cfg.Client.MaxReconnectDelay),
		changefeed.WithReadTimeout(cfg.Events.ReadTimeout),
	)
	return &clientDeps{app: app, logger: logger, remote: rc, feed: feed}, nil
}

// RunView prints the document at path. With Watch it keeps the document
// displayed and prints it again whenever the server reports a change.
func RunView(ctx context.Context, path string, view ViewOptions, opts ...Option) error {
	c, err := newClient(opts)
	if err != nil {
		return err
	}
	r := render.New()
	out := c.app.out

	if !view.Watch {
		doc, err := c.remote.FetchDocument(ctx, path)
		if err != nil {
			return err
		}
		return printDocument(out, r, doc, view.HTML)
	}

	session := docsync.NewSession(c.remote, c.feed, docsync.WithLogger(c.logger))
	defer session.Close()

	updates := make(chan docsync.Update, 16)
	unsub := session.Subscribe(func(u docsync.Update) {
		select {
		case updates <- u:
		default:
			c.logger.Warn("view: update dropped", slog.String("path", u.Entry.Path))
		}
	})
	defer unsub()

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error { return c.feed.Run(gCtx) })
	g.Go(func() error {
		for {
			select {
			case <-gCtx.Done():
				return nil
			case u := <-updates:
				switch {
				case u.Kind == docsync.UpdateLoaded && u.Entry.Document != nil:
					if err := printDocument(out, r, u.Entry.Document, view.HTML); err != nil {
						return err
					}
				case u.Kind == docsync.UpdateFailed:
					c.logger.Warn("view: load failed",
						slog.String("path", u.Entry.Path),
						slog.String("error", errString(u.Entry.Err)))
				}
			}
		}
	})
	g.Go(func() error {
		// The first load is printed through the update stream.
		if _, err := session.Navigate(gCtx, path); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	return g.Wait()
}

// RunEdit opens the document at path in an external editor and saves the
// result. The document stays subscribed to server changes while the editor
// is open, so fields the editor does not show are saved from the newest copy.
func RunEdit(ctx context.Context, path string, opts ...Option) error {
	c, err := newClient(opts)
	if err != nil {
		return err
	}
	edit := c.app.editor
	if edit == nil {
		edit = externalEditor(c.app.config.Client.Editor)
	}

	session := docsync.NewSession(c.remote, c.feed, docsync.WithLogger(c.logger))
	defer session.Close()

	feedCtx, stopFeed := context.WithCancel(ctx)
	defer stopFeed()
	feedDone := make(chan struct{})
	go func() {
		defer close(feedDone)
		_ = c.feed.Run(feedCtx)
	}()
	defer func() {
		stopFeed()
		<-feedDone
	}()

	doc, err := session.Navigate(ctx, path)
	if err != nil {
		return err
	}
	buf := editbuf.ToEditBuffer(doc)

	changed, err := editInEditor(buf, edit)
	if err != nil {
		return err
	}
	if !changed {
		fmt.Fprintf(c.app.out, "%s: no changes\n", path)
		return nil
	}

	saved, err := session.Save(ctx, path, buf)
	if err != nil {
		return fmt.Errorf("save %s: %w", path, err)
	}
	fmt.Fprintf(c.app.out, "%s: saved (revision %s)\n", path, shortRevision(saved.Revision))
	return nil
}

// editInEditor round-trips buf through a temp file and the editor. It
// reports whether the buffer changed.
func editInEditor(buf *editbuf.Buffer, edit func(string) error) (bool, error) {
	form, err := editbuf.EncodeForm(buf)
	if err != nil {
		return false, err
	}

	f, err := os.CreateTemp("", "orgview-*-"+filepath.Base(strings.TrimSuffix(buf.Path, ".md"))+".md")
	if err != nil {
		return false, fmt.Errorf("edit: temp file: %w", err)
	}
	name := f.Name()
	defer os.Remove(name)
	if _, err := f.Write(form); err != nil {
		f.Close()
		return false, fmt.Errorf("edit: write temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		return false, fmt.Errorf("edit: close temp file: %w", err)
	}

	if err := edit(name); err != nil {
		// A failing editor cancels the edit.
		return false, nil
	}
	edited, err := os.ReadFile(name)
	if err != nil {
		return false, fmt.Errorf("edit: read temp file: %w", err)
	}
	if bytes.Equal(edited, form) {
		return false, nil
	}
	if err := editbuf.DecodeForm(edited, buf); err != nil {
		return false, err
	}
	return buf.Dirty(), nil
}

// externalEditor runs the configured editor, then $VISUAL, $EDITOR and vi.
func externalEditor(configured string) func(string) error {
	return func(path string) error {
		cmdline := configured
		for _, env := range []string{"VISUAL", "EDITOR"} {
			if cmdline == "" {
				cmdline = os.Getenv(env)
			}
		}
		if cmdline == "" {
			cmdline = "vi"
		}
		args := strings.Fields(cmdline)
		cmd := exec.Command(args[0], append(args[1:], path)...)
		cmd.Stdin, cmd.Stdout, cmd.Stderr = os.Stdin, os.Stdout, os.Stderr
		return cmd.Run()
	}
}

func printDocument(w io.Writer, r *render.Renderer, doc *models.Document, asHTML bool) error {
	if asHTML {
		return r.WritePage(w, doc)
	}

	view := linkres.Prepare(doc)
	var b strings.Builder
	title := view.Title
	if title == "" {
		title = view.Path
	}
	fmt.Fprintf(&b, "# %s\n", title)
	fmt.Fprintf(&b, "path: %s", view.Path)
	if doc.Type != models.TypeUnset {
		fmt.Fprintf(&b, "  type: %s", doc.Type)
	}
	if doc.Status != nil {
		fmt.Fprintf(&b, "  status: %s", *doc.Status)
	}
	if len(doc.Tags) > 0 {
		fmt.Fprintf(&b, "  tags: %s", strings.Join(doc.Tags, ", "))
	}
	b.WriteString("\n\n")
	b.WriteString(doc.Content)
	if !strings.HasSuffix(doc.Content, "\n") {
		b.WriteByte('\n')
	}
	writeRefs(&b, "Links", view.Links)
	writeRefs(&b, "Backlinks", view.Backlinks)
	_, err := io.WriteString(w, b.String())
	return err
}

func writeRefs(b *strings.Builder, heading string, refs []models.LinkRef) {
	if len(refs) == 0 {
		return
	}
	fmt.Fprintf(b, "\n%s:\n", heading)
	for _, ref := range refs {
		if ref.Alias != "" && ref.Alias != ref.Target {
			fmt.Fprintf(b, "  - %s (%s)\n", ref.Alias, ref.Target)
		} else {
			fmt.Fprintf(b, "  - %s\n", ref.Target)
		}
	}
}

func shortRevision(rev string) string {
	if len(rev) > 12 {
		return rev[:12]
	}
	return rev
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
