package server

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"testing/fstest"
	"time"

	"github.com/gorilla/websocket"

	"github.com/shaunagostinho/fuelmeter/internal/meter"
)

type memStore struct {
	mu         sync.Mutex
	fuel, dist uint64
}

func (m *memStore) CumulativeFuel() (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fuel, nil
}

func (m *memStore) CumulativeDistance() (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dist, nil
}

func (m *memStore) SetCumulativeFuel(v uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fuel = v
	return nil
}

func (m *memStore) SetCumulativeDistance(v uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dist = v
	return nil
}

type fakeMeter struct {
	mu    sync.Mutex
	ready chan struct{}
	snap  meter.Snapshot
	calls []string
}

func newFakeMeter() *fakeMeter {
	return &fakeMeter{ready: make(chan struct{}, 1), snap: meter.Snapshot{Stats: meter.Stats{InstCons: -1, AvgCons: -1}}}
}

func (f *fakeMeter) call(name string) {
	f.mu.Lock()
	f.calls = append(f.calls, name)
	f.mu.Unlock()
}

func (f *fakeMeter) Period() time.Duration  { return 50 * time.Millisecond }
func (f *fakeMeter) Ready() <-chan struct{} { return f.ready }
func (f *fakeMeter) Snapshot() (meter.Snapshot, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snap, true
}
func (f *fakeMeter) Load(meter.Store) error { f.call("load"); return nil }
func (f *fakeMeter) SaveOverwrite(st meter.Store) (meter.Stored, error) {
	f.call("save_overwrite")
	st.SetCumulativeFuel(2_000_000)
	st.SetCumulativeDistance(40_000)
	return meter.ReadStored(st), nil
}
func (f *fakeMeter) SaveAdd(meter.Store) (meter.Stored, error) {
	f.call("save_add")
	return meter.Stored{}, nil
}
func (f *fakeMeter) Clear() error { f.call("clear"); return nil }
func (f *fakeMeter) DeleteStored(st meter.Store) error {
	f.call("delete")
	st.SetCumulativeFuel(0)
	st.SetCumulativeDistance(0)
	return nil
}

type fakePublisher struct {
	got chan meter.Snapshot
}

func (p *fakePublisher) Publish(_ context.Context, s meter.Snapshot) error {
	p.got <- s
	return nil
}

func newTestServer(t *testing.T) (*Server, *fakeMeter, *memStore, *httptest.Server) {
	t.Helper()
	m := newFakeMeter()
	st := &memStore{fuel: 1_000_000, dist: 10_000}
	web := fstest.MapFS{"index.html": &fstest.MapFile{Data: []byte("<html></html>")}}
	s := New(DefaultConfig(), m, st, nil, web)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return s, m, st, ts
}

func dial(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readText(t *testing.T, conn *websocket.Conn) string {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	return string(data)
}

func TestWS_FuelPageGetsStoredValsAndRecords(t *testing.T) {
	s, m, _, ts := newTestServer(t)
	conn := dial(t, ts)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.recordLoop(ctx)

	if err := conn.WriteJSON(inbound{Type: "page_open", Page: PageFuel}); err != nil {
		t.Fatal(err)
	}
	var vals storedVals
	if err := json.Unmarshal([]byte(readText(t, conn)), &vals); err != nil {
		t.Fatal(err)
	}
	if vals.Type != "stored_vals" || vals.Fuel != 1 || vals.Dist != 10 {
		t.Errorf("unexpected stored values %+v", vals)
	}
	if s.Page() != PageFuel {
		t.Fatalf("expected page %s, got %q", PageFuel, s.Page())
	}

	m.ready <- struct{}{}
	if got := readText(t, conn); got != "f|-1.0|-1.0|0|0.00|0.0|0|" {
		t.Errorf("unexpected record %q", got)
	}
}

func TestWS_Commands(t *testing.T) {
	_, m, st, ts := newTestServer(t)
	conn := dial(t, ts)

	conn.WriteJSON(inbound{Type: "save_overwrite"})
	if got := readText(t, conn); !strings.Contains(got, `"fuel":2`) {
		t.Errorf("expected stored_vals after save, got %s", got)
	}
	conn.WriteJSON(inbound{Type: "delete"})
	if got := readText(t, conn); !strings.Contains(got, `"fuel":0`) {
		t.Errorf("expected zeroed stored_vals after delete, got %s", got)
	}
	if s := meter.ReadStored(st); s.FuelUL != 0 || s.DistanceM != 0 {
		t.Errorf("store not zeroed: %+v", s)
	}

	// clear sends nothing back; follow it with a command that does
	conn.WriteJSON(inbound{Type: "clear"})
	conn.WriteJSON(inbound{Type: "save_add"})
	readText(t, conn)

	m.mu.Lock()
	defer m.mu.Unlock()
	want := []string{"save_overwrite", "delete", "clear", "save_add"}
	if strings.Join(m.calls, ",") != strings.Join(want, ",") {
		t.Errorf("expected calls %v, got %v", want, m.calls)
	}
}

func TestForward_PublishesEveryCycle(t *testing.T) {
	s, _, _, _ := newTestServer(t)
	pub := &fakePublisher{got: make(chan meter.Snapshot, 1)}
	s.pub = pub
	s.setPage("unknown.html")

	s.forward(context.Background())
	select {
	case <-pub.got:
	default:
		t.Error("expected snapshot to be published regardless of page")
	}
}

func TestAPI_Stored(t *testing.T) {
	_, _, _, ts := newTestServer(t)
	resp, err := http.Get(ts.URL + "/api/stored")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != 200 || !strings.Contains(string(body), `"stored_vals"`) {
		t.Errorf("unexpected %d %s", resp.StatusCode, body)
	}
}

func TestAPI_ConfigRejectsBadPatch(t *testing.T) {
	_, _, _, ts := newTestServer(t)
	resp, err := http.Post(ts.URL+"/api/config", "application/json", strings.NewReader(`{"kline":{"init":"x"}}`))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != 400 {
		t.Errorf("expected 400, got %d", resp.StatusCode)
	}
}

func TestLogWriter_StreamsLinesToDashboards(t *testing.T) {
	s, _, _, ts := newTestServer(t)
	conn := dial(t, ts)

	// the stored values reply means the client is registered
	conn.WriteJSON(inbound{Type: "page_open", Page: PageFuel})
	readText(t, conn)

	var stderr strings.Builder
	l := log.New(io.MultiWriter(&stderr, s.LogWriter()), "", 0)
	l.Printf("[meter] warning: stats lock timed out")
	l.Printf("[kline] slow init attempt 1 failed: sync byte")
	l.Printf("[ws] open page: fuel.html")

	tests := []struct {
		level, line string
	}{
		{"warn", "[meter] warning: stats lock timed out"},
		{"error", "[kline] slow init attempt 1 failed: sync byte"},
		{"info", "[ws] open page: fuel.html"},
	}
	for _, tt := range tests {
		var got logLine
		if err := json.Unmarshal([]byte(readText(t, conn)), &got); err != nil {
			t.Fatal(err)
		}
		if got.Type != "log" || got.Level != tt.level || got.Line != tt.line {
			t.Errorf("expected %s %q, got %+v", tt.level, tt.line, got)
		}
	}
	if strings.Count(stderr.String(), "\n") != 3 {
		t.Errorf("expected stderr to keep every line, got %q", stderr.String())
	}
}

func TestLogWriter_NoClients(t *testing.T) {
	s, _, _, _ := newTestServer(t)
	n, err := s.LogWriter().Write([]byte("line one\nline two\n"))
	if err != nil || n != 18 {
		t.Errorf("expected 18, nil; got %d, %v", n, err)
	}
}
