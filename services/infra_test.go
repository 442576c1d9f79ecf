package services

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/MOE349/tenmil-backend-sub001/cronjobs"
	"github.com/MOE349/tenmil-backend-sub001/models"
)

func TestLocalLocker(t *testing.T) {
	ctx := context.Background()
	l := NewLocalLocker()

	ok, _ := l.Acquire(ctx, "k", time.Minute)
	if !ok {
		t.Fatal("expected first acquire to succeed")
	}
	if ok, _ := l.Acquire(ctx, "k", time.Minute); ok {
		t.Error("expected second acquire to fail")
	}
	_ = l.Release(ctx, "k")
	if ok, _ := l.Acquire(ctx, "k", time.Minute); !ok {
		t.Error("expected acquire after release to succeed")
	}
}

func TestLocalLocker_Expiry(t *testing.T) {
	ctx := context.Background()
	l := NewLocalLocker()

	_, _ = l.Acquire(ctx, "k", time.Millisecond)
	time.Sleep(5 * time.Millisecond)
	if ok, _ := l.Acquire(ctx, "k", time.Minute); !ok {
		t.Error("expected expired lock to be taken over")
	}
}

func TestRedisLocker(t *testing.T) {
	url := os.Getenv("REDIS_URL")
	if url == "" {
		t.Skip("REDIS_URL not set")
	}
	ctx := context.Background()

	a, err := NewRedisLocker(ctx, url)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer a.Close()
	b, err := NewRedisLocker(ctx, url)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer b.Close()

	key := "test:" + uuid.NewString()
	if ok, err := a.Acquire(ctx, key, time.Minute); !ok || err != nil {
		t.Fatalf("expected acquire, got %v %v", ok, err)
	}
	if ok, _ := b.Acquire(ctx, key, time.Minute); ok {
		t.Error("expected lock to be held")
	}
	// b never held the lock, so its release must not free it.
	_ = b.Release(ctx, key)
	if ok, _ := b.Acquire(ctx, key, time.Minute); ok {
		t.Error("expected lock to survive foreign release")
	}
	if err := a.Release(ctx, key); err != nil {
		t.Fatalf("release: %v", err)
	}
	if ok, _ := b.Acquire(ctx, key, time.Minute); !ok {
		t.Error("expected acquire after release")
	}
	_ = b.Release(ctx, key)
}

func newRunLogEntry(key, status string, finished time.Time) *models.CronJobRunLog {
	return &models.CronJobRunLog{
		RunID:      uuid.NewString(),
		JobKey:     key,
		Status:     status,
		StartedAt:  finished.Add(-time.Second),
		FinishedAt: finished,
	}
}

func TestGormRunLog(t *testing.T) {
	ctx := context.Background()
	runLog := NewGormRunLog(newTestDB(t))
	now := time.Now().UTC()

	_ = runLog.Record(ctx, newRunLogEntry("a:1", models.RunStatusOK, now.Add(-48*time.Hour)))
	_ = runLog.Record(ctx, newRunLogEntry("a:1", models.RunStatusFailed, now.Add(-time.Hour)))
	_ = runLog.Record(ctx, newRunLogEntry("a:2", models.RunStatusOK, now))

	logs, err := runLog.List(ctx, "a:1", 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(logs) != 2 || logs[0].Status != models.RunStatusFailed {
		t.Fatalf("expected newest first, got %+v", logs)
	}

	n, err := runLog.Prune(ctx, now.Add(-24*time.Hour))
	if err != nil || n != 1 {
		t.Fatalf("expected 1 pruned, got %d (%v)", n, err)
	}
	logs, _ = runLog.List(ctx, "a:1", 10)
	if len(logs) != 1 {
		t.Errorf("expected 1 remaining, got %d", len(logs))
	}
}

func TestMongoRunLog(t *testing.T) {
	uri := os.Getenv("MONGODB_URI")
	if uri == "" {
		t.Skip("MONGODB_URI not set")
	}
	ctx := context.Background()
	runLog, err := ConnectMongoRunLog(ctx, uri, "tenmil_test", quietLogger())
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer runLog.Close(ctx)

	key := "test:" + uuid.NewString()
	now := time.Now().UTC().Truncate(time.Millisecond)
	if err := runLog.Record(ctx, newRunLogEntry(key, models.RunStatusOK, now)); err != nil {
		t.Fatalf("record: %v", err)
	}
	logs, err := runLog.List(ctx, key, 5)
	if err != nil || len(logs) != 1 || logs[0].JobKey != key {
		t.Fatalf("unexpected list result %+v (%v)", logs, err)
	}
	if _, err := runLog.Prune(ctx, now.Add(time.Second)); err != nil {
		t.Fatalf("prune: %v", err)
	}
}

func TestEventHub_Broadcast(t *testing.T) {
	hub := NewEventHub(quietLogger())
	defer hub.Shutdown()

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWebSocket))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if hub.ClientCount() != 1 {
		t.Fatalf("expected 1 client, got %d", hub.ClientCount())
	}

	hub.Publish(cronjobs.Event{Type: cronjobs.EventDeleted, Key: "42", ParentID: 42, At: time.Now()})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var evt cronjobs.Event
	if err := conn.ReadJSON(&evt); err != nil {
		t.Fatalf("read: %v", err)
	}
	if evt.Type != cronjobs.EventDeleted || evt.ParentID != 42 {
		t.Errorf("unexpected event: %+v", evt)
	}
}
