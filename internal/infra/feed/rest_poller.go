package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"stablecoin_go/internal/domain"
	"stablecoin_go/internal/event"
	"stablecoin_go/internal/infra"
)

const (
	sourceREST   = "REST"
	fetchRetries = 3
)

// priceResponse is one entry of the REST price endpoint.
type priceResponse struct {
	Symbol    string          `json:"symbol"`
	Price     decimal.Decimal `json:"price"`
	Timestamp int64           `json:"timestamp"` // unix millis
}

// RESTPoller polls a JSON price endpoint and forwards bound symbols to the
// sequencer inbox.
type RESTPoller struct {
	url          string
	symbols      map[string]bool
	inbox        chan<- event.Event
	pollInterval time.Duration
	retryDelay   func(attempt int) time.Duration
	httpClient   *http.Client
	signer       *Signer
	cancel       context.CancelFunc
	wg           sync.WaitGroup
	logger       *slog.Logger
}

// NewRESTPoller creates a poller for url.
func NewRESTPoller(url string, symbols []string, pollInterval time.Duration, inbox chan<- event.Event) *RESTPoller {
	set := make(map[string]bool, len(symbols))
	for _, s := range symbols {
		set[s] = true
	}
	return &RESTPoller{
		url:          url,
		symbols:      set,
		inbox:        inbox,
		pollInterval: pollInterval,
		retryDelay:   CalculateBackoff,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger: slog.Default().With("module", "feed.rest"),
	}
}

// SetSigner enables request signing; nil disables it.
func (p *RESTPoller) SetSigner(s *Signer) { p.signer = s }

// Start fetches once, then polls until ctx is cancelled or Stop.
func (p *RESTPoller) Start(ctx context.Context) error {
	ctx, p.cancel = context.WithCancel(ctx)

	// Fetch immediately on start
	if err := p.fetch(ctx); err != nil {
		p.logger.Warn("Initial price fetch failed", slog.Any("error", err))
		// Continue anyway - will retry on next tick
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				p.logger.Error("Price polling panic recovered", slog.Any("panic", r))
			}
		}()

		ticker := time.NewTicker(p.pollInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				p.logger.Info("Price polling stopped")
				return
			case <-ticker.C:
				if err := p.fetch(ctx); err != nil {
					p.logger.Warn("Price fetch failed", slog.Any("error", err))
				}
			}
		}
	}()

	return nil
}

// fetch polls the endpoint with retry on retriable errors.
func (p *RESTPoller) fetch(ctx context.Context) error {
	var lastErr error
	for i := 0; i < fetchRetries; i++ {
		if i > 0 {
			delay := p.retryDelay(i - 1)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		err := p.doFetch(ctx)
		if err == nil {
			return nil
		}
		lastErr = err
		if !domain.IsRetriable(err) {
			return err
		}
		p.logger.Warn("Price fetch attempt failed", slog.Int("attempt", i+1), slog.Any("error", err))
	}
	return lastErr
}

func (p *RESTPoller) doFetch(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return domain.NewFatalNetworkError("request", err)
	}
	req.Header.Set("User-Agent", infra.DefaultUserAgent)
	if p.signer != nil {
		p.signer.Sign(req)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return domain.NewNetworkError("get", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("unexpected status code: %d", resp.StatusCode)
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return domain.NewNetworkError("get", err)
		}
		return domain.NewFatalNetworkError("get", err)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.NewNetworkError("read", err)
	}

	var prices []priceResponse
	if err := json.Unmarshal(body, &prices); err != nil {
		return domain.NewFatalNetworkError("decode", err)
	}

	for _, pr := range prices {
		if !p.symbols[pr.Symbol] {
			continue
		}
		ev := event.AcquirePriceUpdateEvent()
		ev.Ts = pr.Timestamp
		ev.Symbol = pr.Symbol
		ev.Price = pr.Price
		ev.Source = sourceREST

		select {
		case p.inbox <- ev:
		case <-ctx.Done():
			event.ReleasePriceUpdateEvent(ev)
			return ctx.Err()
		}
	}
	return nil
}

// Stop stops the polling and waits for the goroutine.
func (p *RESTPoller) Stop() {
	if p.cancel != nil {
		p.cancel()
		p.wg.Wait()
	}
	p.httpClient.CloseIdleConnections()
}
