package feed

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"go.uber.org/goleak"

	"stablecoin_go/internal/domain"
	"stablecoin_go/internal/event"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestCalculateBackoff(t *testing.T) {
	tests := []struct {
		retry int
		want  time.Duration
	}{
		{-1, time.Second},
		{0, time.Second},
		{1, 2 * time.Second},
		{3, 8 * time.Second},
		{6, time.Minute},
		{100, time.Minute},
	}
	for _, tt := range tests {
		if got := CalculateBackoff(tt.retry); got != tt.want {
			t.Errorf("CalculateBackoff(%d) = %s, want %s", tt.retry, got, tt.want)
		}
	}
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func receive(t *testing.T, inbox <-chan event.Event) *event.PriceUpdateEvent {
	t.Helper()
	select {
	case ev := <-inbox:
		pu, ok := ev.(*event.PriceUpdateEvent)
		if !ok {
			t.Fatalf("Expected PriceUpdateEvent, got %T", ev)
		}
		return pu
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for price event")
		return nil
	}
}

func TestWSWorker_ForwardsTickers(t *testing.T) {
	upgrader := websocket.Upgrader{}
	subscribed := make(chan subscribeMessage, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		var sub subscribeMessage
		if err := conn.ReadJSON(&sub); err != nil {
			return
		}
		subscribed <- sub

		conn.WriteMessage(websocket.TextMessage, []byte("not json"))
		conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"status","symbol":"WETH"}`))
		conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"ticker","symbol":"WETH","price":"2000.25","timestamp":1700000000000}`))

		// Hold the connection until the client leaves.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	inbox := make(chan event.Event, 10)
	w := NewWSWorker(wsURL(srv), []string{"WETH"}, inbox)
	if err := w.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer w.Disconnect()

	select {
	case sub := <-subscribed:
		if sub.Op != "subscribe" || len(sub.Symbols) != 1 || sub.Symbols[0] != "WETH" {
			t.Errorf("Unexpected subscription %+v", sub)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for subscription")
	}

	ev := receive(t, inbox)
	if ev.Symbol != "WETH" || ev.Source != "WS" || ev.Ts != 1700000000000 {
		t.Errorf("Unexpected event %+v", ev)
	}
	if !ev.Price.Equal(decimal.RequireFromString("2000.25")) {
		t.Errorf("Expected 2000.25, got %s", ev.Price)
	}
	if !w.IsConnected() {
		t.Error("Expected worker to be connected")
	}
}

func TestWSWorker_Reconnects(t *testing.T) {
	upgrader := websocket.Upgrader{}
	var connects atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		if connects.Add(1) == 1 {
			return // drop the first connection
		}
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	w := NewWSWorker(wsURL(srv), []string{"WETH"}, make(chan event.Event, 1))
	w.Connect(context.Background())
	defer w.Disconnect()

	deadline := time.Now().Add(3 * time.Second)
	for connects.Load() < 2 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if n := connects.Load(); n < 2 {
		t.Errorf("Expected a reconnect, got %d connections", n)
	}
}

func TestRESTPoller_ForwardsBoundSymbols(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]map[string]any{
			{"symbol": "DOGE", "price": "0.1", "timestamp": 1},
			{"symbol": "WETH", "price": "1999.5", "timestamp": 2},
		})
	}))
	defer srv.Close()

	inbox := make(chan event.Event, 10)
	p := NewRESTPoller(srv.URL, []string{"WETH"}, time.Hour, inbox)
	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer p.Stop()

	ev := receive(t, inbox)
	if ev.Symbol != "WETH" || ev.Source != "REST" || ev.Ts != 2 {
		t.Errorf("Unexpected event %+v", ev)
	}
	select {
	case extra := <-inbox:
		t.Errorf("Expected unbound symbol to be skipped, got %+v", extra)
	default:
	}
}

func TestRESTPoller_RetriesServerErrors(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`[{"symbol":"WETH","price":"10","timestamp":3}]`))
	}))
	defer srv.Close()

	inbox := make(chan event.Event, 10)
	p := NewRESTPoller(srv.URL, []string{"WETH"}, time.Hour, inbox)
	p.retryDelay = func(int) time.Duration { return time.Millisecond }
	defer p.Stop()

	if err := p.fetch(context.Background()); err != nil {
		t.Fatalf("Expected retry to succeed, got %v", err)
	}
	if n := hits.Load(); n != 2 {
		t.Errorf("Expected 2 requests, got %d", n)
	}
	if ev := receive(t, inbox); !ev.Price.Equal(decimal.NewFromInt(10)) {
		t.Errorf("Expected price 10, got %s", ev.Price)
	}
}

func TestRESTPoller_ClientErrorsAreFatal(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	p := NewRESTPoller(srv.URL, []string{"WETH"}, time.Hour, make(chan event.Event, 1))
	p.retryDelay = func(int) time.Duration { return time.Millisecond }
	defer p.Stop()

	err := p.fetch(context.Background())
	if err == nil || domain.IsRetriable(err) {
		t.Errorf("Expected fatal error, got %v", err)
	}
	if n := hits.Load(); n != 1 {
		t.Errorf("Expected no retry, got %d requests", n)
	}
}

func TestRESTPoller_SignsRequests(t *testing.T) {
	signer := NewSigner("key-1", "secret")
	signer.now = func() time.Time { return time.UnixMilli(1700000000000) }

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		want := computeHmacSha256("1700000000000GET/prices?symbols=WETH", "secret")
		if r.Header.Get("ACCESS-KEY") != "key-1" || r.Header.Get("ACCESS-TIMESTAMP") != "1700000000000" || r.Header.Get("ACCESS-SIGN") != want {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Write([]byte(`[{"symbol":"WETH","price":"10","timestamp":4}]`))
	}))
	defer srv.Close()

	inbox := make(chan event.Event, 10)
	p := NewRESTPoller(srv.URL+"/prices?symbols=WETH", []string{"WETH"}, time.Hour, inbox)
	p.SetSigner(signer)
	defer p.Stop()

	if err := p.fetch(context.Background()); err != nil {
		t.Fatalf("Expected signed fetch to succeed, got %v", err)
	}
	if ev := receive(t, inbox); ev.Ts != 4 {
		t.Errorf("Expected ts 4, got %d", ev.Ts)
	}
}

func TestNewSigner_EmptyKey(t *testing.T) {
	if s := NewSigner("", "secret"); s != nil {
		t.Errorf("Expected nil signer without a key, got %+v", s)
	}
}
