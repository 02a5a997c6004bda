package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"poolmarket/internal/models"
)

type fakeSource struct {
	snapshots map[uint]*models.MarketSnapshot
}

func (f *fakeSource) SnapshotByID(_ context.Context, id uint) (*models.MarketSnapshot, error) {
	s, ok := f.snapshots[id]
	if !ok {
		return nil, errors.New("not found")
	}
	return s, nil
}

type frame struct {
	Type     string          `json:"type"`
	MarketID uint            `json:"market_id"`
	Payload  json.RawMessage `json:"payload"`
}

func startHub(t *testing.T, source SnapshotSource) (*Hub, *httptest.Server) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	hub := NewHub(source, zap.NewNop())
	hub.interval = 20 * time.Millisecond
	go hub.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.ServeMarket(w, r, 1)
	}))
	t.Cleanup(srv.Close)
	return hub, srv
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readUntil returns the first frame of the given type.
func readUntil(t *testing.T, conn *websocket.Conn, typ string, match func(frame) bool) frame {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		var f frame
		if err := json.Unmarshal(data, &f); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if f.Type == typ && (match == nil || match(f)) {
			return f
		}
	}
}

func TestHub_InitialSnapshotAndPublish(t *testing.T) {
	source := &fakeSource{snapshots: map[uint]*models.MarketSnapshot{
		1: {ID: 1, Slug: "fed-chair", Title: "Fed Chair"},
	}}
	hub, srv := startHub(t, source)
	conn := dial(t, srv)

	first := readUntil(t, conn, MessageMarket, nil)
	var snap models.MarketSnapshot
	if err := json.Unmarshal(first.Payload, &snap); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if snap.Slug != "fed-chair" {
		t.Errorf("expected fed-chair, got %q", snap.Slug)
	}

	// Wait for registration before publishing.
	deadline := time.Now().Add(time.Second)
	for hub.ClientCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	hub.PublishMarket(&models.MarketSnapshot{ID: 2, Title: "Other"})
	hub.PublishMarket(&models.MarketSnapshot{ID: 1, Title: "Updated"})

	got := readUntil(t, conn, MessageMarket, nil)
	if err := json.Unmarshal(got.Payload, &snap); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if snap.Title != "Updated" {
		t.Errorf("expected only market 1 updates, got %q", snap.Title)
	}
}

func TestHub_CountdownFollowsEndTime(t *testing.T) {
	source := &fakeSource{snapshots: map[uint]*models.MarketSnapshot{
		1: {ID: 1},
	}}
	hub, srv := startHub(t, source)
	conn := dial(t, srv)

	cd := readUntil(t, conn, MessageCountdown, nil)
	if !strings.Contains(string(cd.Payload), "Market Pending") {
		t.Errorf("expected pending countdown, got %s", cd.Payload)
	}

	deadline := time.Now().Add(time.Second)
	for hub.ClientCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	end := time.Now().Add(10 * time.Minute).Unix()
	hub.PublishMarket(&models.MarketSnapshot{ID: 1, EndTime: end})

	active := readUntil(t, conn, MessageCountdown, func(f frame) bool {
		return strings.Contains(string(f.Payload), `"active":true`)
	})
	if active.MarketID != 1 {
		t.Errorf("expected market 1, got %d", active.MarketID)
	}
}

func TestHub_UnknownMarket(t *testing.T) {
	hub := NewHub(&fakeSource{snapshots: map[uint]*models.MarketSnapshot{}}, zap.NewNop())
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ws/markets/9", nil)

	hub.ServeMarket(rec, req, 9)

	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestHub_PublishNeverBlocks(t *testing.T) {
	hub := NewHub(&fakeSource{}, zap.NewNop())
	done := make(chan struct{})
	go func() {
		for i := 0; i < sendBufferSize+10; i++ {
			hub.PublishMarket(&models.MarketSnapshot{ID: 1})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("PublishMarket blocked without a running hub")
	}
}
