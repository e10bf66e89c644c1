package influxdb_test

import (
	"errors"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/gray-logic-sesame/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-sesame/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-sesame/internal/sesame"
)

// fakeInflux answers pings and records line protocol written to it.
type fakeInflux struct {
	mu     sync.Mutex
	lines  []string
	status int
}

func newFakeInflux(t *testing.T) (*fakeInflux, *httptest.Server) {
	t.Helper()
	f := &fakeInflux{status: http.StatusNoContent}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/write") {
			body, _ := io.ReadAll(r.Body) //nolint:errcheck // test server
			f.mu.Lock()
			for _, line := range strings.Split(strings.TrimSpace(string(body)), "\n") {
				f.lines = append(f.lines, line)
			}
			status := f.status
			f.mu.Unlock()
			w.WriteHeader(status)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(srv.Close)
	return f, srv
}

func (f *fakeInflux) written() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.lines...)
}

func testConfig(url string) config.InfluxDBConfig {
	return config.InfluxDBConfig{
		Enabled:       true,
		URL:           url,
		Token:         "test-token",
		Org:           "graylogic",
		Bucket:        "sesame",
		BatchSize:     10,
		FlushInterval: 1,
	}
}

// =============================================================================
// Connection Tests
// =============================================================================

func TestConnect(t *testing.T) {
	_, srv := newFakeInflux(t)

	client, err := influxdb.Connect(t.Context(), testConfig(srv.URL))
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	if !client.IsConnected() {
		t.Error("IsConnected() = false after Connect()")
	}
	if err := client.HealthCheck(t.Context()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}
}

func TestConnect_Disabled(t *testing.T) {
	cfg := testConfig("http://127.0.0.1:1")
	cfg.Enabled = false

	client, err := influxdb.Connect(t.Context(), cfg)
	if !errors.Is(err, influxdb.ErrDisabled) {
		t.Errorf("Connect() error = %v, want ErrDisabled", err)
	}
	if client != nil {
		t.Error("Connect() returned a client when disabled")
	}
}

func TestConnect_Unreachable(t *testing.T) {
	_, err := influxdb.Connect(t.Context(), testConfig("http://127.0.0.1:1"))
	if !errors.Is(err, influxdb.ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestClose(t *testing.T) {
	_, srv := newFakeInflux(t)
	client, err := influxdb.Connect(t.Context(), testConfig(srv.URL))
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	if err := client.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if err := client.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
	if client.IsConnected() {
		t.Error("IsConnected() = true after Close()")
	}
	if err := client.HealthCheck(t.Context()); !errors.Is(err, influxdb.ErrNotConnected) {
		t.Errorf("HealthCheck() after Close error = %v, want ErrNotConnected", err)
	}
	// Both are no-ops after close.
	client.Flush()
	client.WritePoint(write.NewPointWithMeasurement("x").AddField("v", 1))
}

func TestClose_Nil(t *testing.T) {
	var client *influxdb.Client
	if err := client.Close(); err != nil {
		t.Errorf("Close() on nil error = %v", err)
	}
}

// =============================================================================
// Write Tests
// =============================================================================

func TestWritePoint(t *testing.T) {
	fake, srv := newFakeInflux(t)
	client, err := influxdb.Connect(t.Context(), testConfig(srv.URL))
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	client.WritePoint(influxdb.LockPoint(sesame.LockSnapshot{
		ID: "shared", State: sesame.LockLocked, Shared: true,
	}, at))
	client.Flush()

	if got := client.Stats(); got.Queued != 1 || got.Failed != 0 {
		t.Errorf("Stats() = %+v", got)
	}

	lines := fake.written()
	if len(lines) != 1 {
		t.Fatalf("written %d lines, want 1: %v", len(lines), lines)
	}
	want := `sesame_lock,kind=shared,lock=shared locked=true,state="locked" ` +
		"1772355600000000000"
	if lines[0] != want {
		t.Errorf("line = %q, want %q", lines[0], want)
	}
}

func TestSetOnError(t *testing.T) {
	fake, srv := newFakeInflux(t)
	fake.status = http.StatusBadRequest

	client, err := influxdb.Connect(t.Context(), testConfig(srv.URL))
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	errCh := make(chan error, 4)
	client.SetOnError(func(err error) { errCh <- err })

	client.WritePoint(write.NewPointWithMeasurement("bad").AddField("v", 1))
	client.Flush()

	select {
	case err := <-errCh:
		if !errors.Is(err, influxdb.ErrWriteFailed) {
			t.Errorf("callback error = %v, want ErrWriteFailed", err)
		}
		if got := client.Stats().Failed; got == 0 {
			t.Error("Stats().Failed = 0 after a rejected batch")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("write error not reported")
	}
}

// =============================================================================
// Point Tests
// =============================================================================

func fields(p *write.Point) map[string]any {
	out := make(map[string]any)
	for _, f := range p.FieldList() {
		out[f.Key] = f.Value
	}
	return out
}

func tags(p *write.Point) map[string]string {
	out := make(map[string]string)
	for _, tag := range p.TagList() {
		out[tag.Key] = tag.Value
	}
	return out
}

func TestTriggerEventPoint(t *testing.T) {
	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	snap := sesame.TriggerSnapshot{Name: "front-door", Connected: true, PublishTag: true}

	t.Run("with tag type", func(t *testing.T) {
		p := influxdb.TriggerEventPoint(snap, sesame.Event{
			Trigger: "front-door", Kind: sesame.EventUnlock, Tag: "alice", TagType: 1, Received: at,
		})
		if p.Name() != influxdb.MeasurementTrigger {
			t.Errorf("Name() = %q", p.Name())
		}
		if got := tags(p); got["trigger"] != "front-door" || got["event"] != "unlock" {
			t.Errorf("tags = %v", got)
		}
		f := fields(p)
		if f["history_tag"] != "alice" || f["history_tag_type"] != 1.0 || f["connected"] != true {
			t.Errorf("fields = %v", f)
		}
		if !p.Time().Equal(at) {
			t.Errorf("Time() = %v, want %v", p.Time(), at)
		}
	})

	t.Run("no tag type and tag unpublished", func(t *testing.T) {
		hidden := snap
		hidden.PublishTag = false
		p := influxdb.TriggerEventPoint(hidden, sesame.Event{
			Kind: sesame.EventLock, Tag: "bob", TagType: math.NaN(), Received: at,
		})
		f := fields(p)
		if _, ok := f["history_tag_type"]; ok {
			t.Error("history_tag_type written for NaN")
		}
		if _, ok := f["history_tag"]; ok {
			t.Error("history_tag written when publishing is off")
		}
	})
}

func TestTriggerConnectionPoint(t *testing.T) {
	at := time.Now()

	p := influxdb.TriggerConnectionPoint(sesame.TriggerSnapshot{Name: "garage", Connected: false, DisconnectReason: 19}, at)
	if got := tags(p)["event"]; got != "disconnect" {
		t.Errorf("event tag = %q, want disconnect", got)
	}
	if got := fields(p)["disconnect_reason"]; got != int64(19) {
		t.Errorf("disconnect_reason = %v, want 19", got)
	}

	p = influxdb.TriggerConnectionPoint(sesame.TriggerSnapshot{Name: "garage", Connected: true}, at)
	if got := tags(p)["event"]; got != "connect" {
		t.Errorf("event tag = %q, want connect", got)
	}
	if _, ok := fields(p)["disconnect_reason"]; ok {
		t.Error("disconnect_reason written on connect")
	}
}

func TestLockPoint(t *testing.T) {
	p := influxdb.LockPoint(sesame.LockSnapshot{ID: "garage", State: sesame.LockUnlocked, Trigger: "garage-remote"}, time.Time{})
	if got := tags(p); got["lock"] != "garage" || got["kind"] != "bound" {
		t.Errorf("tags = %v", got)
	}
	if got := fields(p); got["locked"] != false || got["state"] != "unlocked" {
		t.Errorf("fields = %v", got)
	}
	if p.Time().IsZero() {
		t.Error("zero timestamp not replaced")
	}
}
