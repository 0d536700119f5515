package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"stablecoin_go/internal/domain"
	"stablecoin_go/internal/event"
	"stablecoin_go/internal/infra"
)

const (
	readTimeout      = 60 * time.Second
	handshakeTimeout = 10 * time.Second
	sourceWS         = "WS"
)

// tickerMessage is one streamed price.
type tickerMessage struct {
	Type      string          `json:"type"` // ticker
	Symbol    string          `json:"symbol"`
	Price     decimal.Decimal `json:"price"`
	Timestamp int64           `json:"timestamp"` // unix millis
}

type subscribeMessage struct {
	Op      string   `json:"op"`
	Symbols []string `json:"symbols"`
}

// WSWorker streams tickers over a WebSocket and forwards them to the
// sequencer inbox as PriceUpdateEvents. It reconnects with exponential
// backoff until Disconnect.
type WSWorker struct {
	url       string
	symbols   []string
	inbox     chan<- event.Event
	metrics   *infra.Metrics
	conn      *websocket.Conn
	mu        sync.RWMutex
	writeMu   sync.Mutex
	connected bool
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	logger    *slog.Logger
}

// NewWSWorker creates a new streaming price worker.
func NewWSWorker(url string, symbols []string, inbox chan<- event.Event) *WSWorker {
	return &WSWorker{
		url:     url,
		symbols: symbols,
		inbox:   inbox,
		metrics: infra.GlobalMetrics,
		logger:  slog.Default().With("module", "feed.ws"),
	}
}

// Connect starts the WebSocket connection loop
func (w *WSWorker) Connect(ctx context.Context) error {
	ctx, w.cancel = context.WithCancel(ctx)
	w.wg.Add(1)
	go w.connectionLoop(ctx)
	return nil
}

// IsConnected reports whether a connection is currently open.
func (w *WSWorker) IsConnected() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.connected
}

func (w *WSWorker) connectionLoop(ctx context.Context) {
	defer w.wg.Done()
	retryCount := 0
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := w.connect(ctx); err != nil {
			w.logger.Warn("Feed connection failed", slog.Any("error", err), slog.Int("retry", retryCount))
			delay := CalculateBackoff(retryCount)
			retryCount++
			if retryCount > maxRetries {
				retryCount = 0
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
				continue
			}
		}
		retryCount = 0
		w.readLoop(ctx)
	}
}

func (w *WSWorker) connect(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	header := make(http.Header)
	header.Add("User-Agent", infra.DefaultUserAgent)

	conn, _, err := dialer.DialContext(ctx, w.url, header)
	if err != nil {
		return domain.NewNetworkError("dial", err)
	}

	w.mu.Lock()
	w.conn = conn
	w.connected = true
	w.mu.Unlock()
	w.metrics.IncrementConnections()

	if err := w.subscribe(); err != nil {
		w.closeConnection()
		return err
	}

	w.logger.Info("Feed connected", slog.String("url", w.url), slog.Int("subs", len(w.symbols)))
	return nil
}

func (w *WSWorker) subscribe() error {
	b, err := json.Marshal(subscribeMessage{Op: "subscribe", Symbols: w.symbols})
	if err != nil {
		return err
	}
	return w.threadSafeWrite(websocket.TextMessage, b)
}

func (w *WSWorker) threadSafeWrite(msgType int, data []byte) error {
	w.writeMu.Lock()
	defer w.writeMu.Unlock()
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.conn == nil {
		return domain.NewNetworkError("write", fmt.Errorf("no conn"))
	}
	return w.conn.WriteMessage(msgType, data)
}

func (w *WSWorker) readLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		w.mu.RLock()
		conn := w.conn
		w.mu.RUnlock()
		if conn == nil {
			return
		}
		conn.SetReadDeadline(time.Now().Add(readTimeout))

		_, msg, err := conn.ReadMessage()
		if err != nil {
			w.closeConnection()
			return
		}
		w.handleMessage(msg)
	}
}

func (w *WSWorker) handleMessage(msg []byte) {
	var m tickerMessage
	if json.Unmarshal(msg, &m) != nil || m.Type != "ticker" || m.Symbol == "" {
		return
	}

	ev := event.AcquirePriceUpdateEvent()
	ev.Ts = m.Timestamp
	ev.Symbol = m.Symbol
	ev.Price = m.Price
	ev.Source = sourceWS

	select {
	case w.inbox <- ev:
	default: // DROP
		event.ReleasePriceUpdateEvent(ev)
	}
}

func (w *WSWorker) closeConnection() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.conn != nil {
		w.conn.Close()
		w.conn = nil
		w.metrics.DecrementConnections()
	}
	w.connected = false
}

// Disconnect stops the worker and waits for its goroutine.
func (w *WSWorker) Disconnect() {
	if w.cancel != nil {
		w.cancel()
	}
	w.closeConnection()
	w.wg.Wait()
}
