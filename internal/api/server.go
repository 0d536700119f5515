package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"stablecoin_go/internal/domain"
	"stablecoin_go/internal/engine"
	"stablecoin_go/internal/infra"
)

// EngineView is the read-only engine surface served over HTTP.
type EngineView interface {
	CollateralTokens() []common.Address
	PriceFeed(asset common.Address) (engine.FeedConfig, bool)
	Users() []common.Address
	AccountInformation(user common.Address) (domain.AccountInformation, error)
	HealthFactor(user common.Address) (*uint256.Int, error)
	CollateralBalance(user, asset common.Address) *uint256.Int
	USDValue(asset common.Address, amount *uint256.Int) (*uint256.Int, error)
	TokenAmountFromUSD(asset common.Address, usd *uint256.Int) (*uint256.Int, error)
	NextSeq() uint64
	Halted() bool
}

// PriceView lists the latest quotes.
type PriceView interface {
	Snapshot() []domain.Quote
}

// LiquidationHistory lists recorded liquidations.
type LiquidationHistory interface {
	ListLiquidations(user string, limit int) ([]domain.LiquidationRecord, error)
}

// Config captures the dependencies required to construct the server.
type Config struct {
	Engine   EngineView
	Prices   PriceView          // optional
	History  LiquidationHistory // optional
	Metrics  *infra.Metrics
	Gatherer prometheus.Gatherer // optional; enables /metrics
}

// Server exposes the engine's query interface as JSON.
type Server struct {
	cfg    Config
	router http.Handler
	logger *slog.Logger
}

// New constructs the HTTP router.
func New(cfg Config) *Server {
	if cfg.Metrics == nil {
		cfg.Metrics = infra.GlobalMetrics
	}
	s := &Server{cfg: cfg, logger: slog.Default().With("module", "api")}
	s.router = s.buildRouter()
	return s
}

// Handler exposes the configured HTTP router.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)

	r.Get("/healthz", s.health)
	if s.cfg.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.cfg.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(api chi.Router) {
		api.Get("/constants", s.constants)
		api.Get("/collateral", s.listCollateral)
		api.Get("/prices", s.listPrices)
		api.Get("/usd-value", s.usdValue)
		api.Get("/token-amount", s.tokenAmount)
		api.Get("/accounts", s.listAccounts)
		api.Get("/accounts/{user}", s.getAccount)
		api.Get("/accounts/{user}/health-factor", s.getHealthFactor)
		api.Get("/accounts/{user}/collateral/{asset}", s.getCollateralBalance)
		api.Get("/liquidations", s.listLiquidations)
		api.Get("/stats", s.stats)
	})
	return r
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Engine.Halted() {
		writeJSONError(w, http.StatusServiceUnavailable, domain.ErrEngineHalted)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

type constantsResponse struct {
	Precision            string `json:"precision"`
	MinHealthFactor      string `json:"min_health_factor"`
	LiquidationThreshold string `json:"liquidation_threshold"`
	LiquidationBonus     string `json:"liquidation_bonus"`
}

func (s *Server) constants(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, constantsResponse{
		Precision:            engine.Precision().Dec(),
		MinHealthFactor:      engine.MinHealthFactor().Dec(),
		LiquidationThreshold: engine.LiquidationThreshold().Dec(),
		LiquidationBonus:     engine.LiquidationBonus().Dec(),
	})
}

type collateralResponse struct {
	Asset        string `json:"asset"`
	Feed         string `json:"feed"`
	FeedDecimals uint8  `json:"feed_decimals"`
}

func (s *Server) listCollateral(w http.ResponseWriter, r *http.Request) {
	tokens := s.cfg.Engine.CollateralTokens()
	out := make([]collateralResponse, 0, len(tokens))
	for _, asset := range tokens {
		feed, _ := s.cfg.Engine.PriceFeed(asset)
		out = append(out, collateralResponse{Asset: asset.Hex(), Feed: feed.Feed.Hex(), FeedDecimals: feed.Decimals})
	}
	writeJSON(w, out)
}

func (s *Server) listPrices(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Prices == nil {
		writeJSON(w, []domain.Quote{})
		return
	}
	writeJSON(w, s.cfg.Prices.Snapshot())
}

type valueResponse struct {
	Asset string `json:"asset"`
	In    string `json:"in"`
	Out   string `json:"out"`
}

func (s *Server) usdValue(w http.ResponseWriter, r *http.Request) {
	asset, amount, ok := assetAmountParams(w, r, "amount")
	if !ok {
		return
	}
	v, err := s.cfg.Engine.USDValue(asset, amount)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, valueResponse{Asset: asset.Hex(), In: amount.Dec(), Out: v.Dec()})
}

func (s *Server) tokenAmount(w http.ResponseWriter, r *http.Request) {
	asset, usd, ok := assetAmountParams(w, r, "usd")
	if !ok {
		return
	}
	v, err := s.cfg.Engine.TokenAmountFromUSD(asset, usd)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, valueResponse{Asset: asset.Hex(), In: usd.Dec(), Out: v.Dec()})
}

func (s *Server) listAccounts(w http.ResponseWriter, r *http.Request) {
	users := s.cfg.Engine.Users()
	out := make([]string, 0, len(users))
	for _, u := range users {
		out = append(out, u.Hex())
	}
	writeJSON(w, out)
}

type accountResponse struct {
	User                 string            `json:"user"`
	TotalDSCMinted       string            `json:"total_dsc_minted"`
	CollateralValueInUSD string            `json:"collateral_value_in_usd"`
	HealthFactor         string            `json:"health_factor"`
	Collateral           map[string]string `json:"collateral"`
}

func (s *Server) getAccount(w http.ResponseWriter, r *http.Request) {
	user, ok := addressParam(w, chi.URLParam(r, "user"), "user")
	if !ok {
		return
	}
	info, err := s.cfg.Engine.AccountInformation(user)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	hf, err := s.cfg.Engine.HealthFactor(user)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	collateral := make(map[string]string)
	for _, asset := range s.cfg.Engine.CollateralTokens() {
		if bal := s.cfg.Engine.CollateralBalance(user, asset); !bal.IsZero() {
			collateral[asset.Hex()] = bal.Dec()
		}
	}
	writeJSON(w, accountResponse{
		User:                 user.Hex(),
		TotalDSCMinted:       info.TotalDSCMinted.Dec(),
		CollateralValueInUSD: info.CollateralValueInUSD.Dec(),
		HealthFactor:         hf.Dec(),
		Collateral:           collateral,
	})
}

func (s *Server) getHealthFactor(w http.ResponseWriter, r *http.Request) {
	user, ok := addressParam(w, chi.URLParam(r, "user"), "user")
	if !ok {
		return
	}
	hf, err := s.cfg.Engine.HealthFactor(user)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, map[string]string{"user": user.Hex(), "health_factor": hf.Dec()})
}

func (s *Server) getCollateralBalance(w http.ResponseWriter, r *http.Request) {
	user, ok := addressParam(w, chi.URLParam(r, "user"), "user")
	if !ok {
		return
	}
	asset, ok := addressParam(w, chi.URLParam(r, "asset"), "asset")
	if !ok {
		return
	}
	bal := s.cfg.Engine.CollateralBalance(user, asset)
	writeJSON(w, map[string]string{"user": user.Hex(), "asset": asset.Hex(), "amount": bal.Dec()})
}

func (s *Server) listLiquidations(w http.ResponseWriter, r *http.Request) {
	if s.cfg.History == nil {
		writeJSON(w, []domain.LiquidationRecord{})
		return
	}
	var user string
	if raw := r.URL.Query().Get("user"); raw != "" {
		addr, ok := addressParam(w, raw, "user")
		if !ok {
			return
		}
		user = addr.Hex()
	}
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeJSONError(w, http.StatusBadRequest, fmt.Errorf("invalid limit %q", raw))
			return
		}
		limit = n
	}
	recs, err := s.cfg.History.ListLiquidations(user, limit)
	if err != nil {
		s.logger.Error("list liquidations failed", slog.Any("error", err))
		writeJSONError(w, http.StatusInternalServerError, errors.New("storage unavailable"))
		return
	}
	writeJSON(w, recs)
}

type statsResponse struct {
	NextSeq uint64                `json:"next_seq"`
	Halted  bool                  `json:"halted"`
	Metrics infra.MetricsSnapshot `json:"metrics"`
}

func (s *Server) stats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, statsResponse{
		NextSeq: s.cfg.Engine.NextSeq(),
		Halted:  s.cfg.Engine.Halted(),
		Metrics: s.cfg.Metrics.Snapshot(),
	})
}

func addressParam(w http.ResponseWriter, raw, name string) (common.Address, bool) {
	if !common.IsHexAddress(raw) {
		writeJSONError(w, http.StatusBadRequest, fmt.Errorf("invalid %s address %q", name, raw))
		return common.Address{}, false
	}
	return common.HexToAddress(raw), true
}

func assetAmountParams(w http.ResponseWriter, r *http.Request, amountKey string) (common.Address, *uint256.Int, bool) {
	q := r.URL.Query()
	asset, ok := addressParam(w, q.Get("asset"), "asset")
	if !ok {
		return common.Address{}, nil, false
	}
	raw := q.Get(amountKey)
	amount, err := uint256.FromDecimal(raw)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, fmt.Errorf("invalid %s %q", amountKey, raw))
		return common.Address{}, nil, false
	}
	return asset, amount, true
}

// writeEngineError maps engine error kinds to HTTP statuses.
func writeEngineError(w http.ResponseWriter, err error) {
	var (
		ve *domain.ValidationError
		pe *domain.PricingError
	)
	switch {
	case errors.Is(err, domain.ErrArithmeticOverflow):
		writeJSONError(w, http.StatusUnprocessableEntity, err)
	case errors.As(err, &ve):
		writeJSONError(w, http.StatusBadRequest, err)
	case errors.As(err, &pe):
		writeJSONError(w, http.StatusServiceUnavailable, err)
	default:
		writeJSONError(w, http.StatusInternalServerError, err)
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	_ = enc.Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	message := strings.TrimSpace(err.Error())
	if message == "" {
		message = http.StatusText(status)
	}
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
