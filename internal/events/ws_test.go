package events

import (
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/starford/orgview/internal/models"
)

func TestWSHandler_StreamsChanges(t *testing.T) {
	b := NewBroker(time.Hour)
	defer b.Close()

	h := NewWSHandler(b, slog.New(slog.NewJSONHandler(io.Discard, nil)), DefaultWSSettings())
	srv := httptest.NewServer(h)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for b.ClientCount() != 1 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	b.PublishChange(models.ChangeDeleted, "gone.md")

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got models.ChangeEvent
	if err := conn.ReadJSON(&got); err != nil {
		t.Fatalf("read: %v", err)
	}
	if got.Kind != models.ChangeDeleted || got.Path != "gone.md" || got.ID == "" {
		t.Errorf("got %+v", got)
	}
}

func TestWSHandler_CleansUpOnClientClose(t *testing.T) {
	b := NewBroker(time.Hour)
	defer b.Close()

	h := NewWSHandler(b, slog.New(slog.NewJSONHandler(io.Discard, nil)), DefaultWSSettings())
	srv := httptest.NewServer(h)
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for b.ClientCount() != 1 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	conn.Close()

	deadline = time.Now().Add(2 * time.Second)
	for b.ClientCount() != 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if n := b.ClientCount(); n != 0 {
		t.Errorf("clients = %d after close, want 0", n)
	}
}
