// Package server exposes arthd's read-only status surface and the
// permissionless ratio refresh trigger.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	coreerrors "arthcore/core/errors"
	"arthcore/core/fixed"
	"arthcore/native/oracle"
	"arthcore/native/pool"
	"arthcore/native/ratio"
	"arthcore/services/arthd/keeper"
	"arthcore/services/arthd/storage"
)

// RatioReader is the read side of the ratio controller.
type RatioReader interface {
	State() ratio.State
	Params() ratio.Params
	NextRefresh() time.Time
}

// Keeper triggers refreshes and reports the last outcome.
type Keeper interface {
	Tick(ctx context.Context) (ratio.Transition, error)
	Status() keeper.Status
}

type PriceReporter interface {
	Snapshot() []oracle.RouteStatus
}

// Pools is the read side of the pool registry.
type Pools interface {
	IDs() []string
	Pool(id string) (*pool.Pool, error)
	Claim(id string) (*pool.PendingRedemption, error)
	EffectiveRatio() (uint64, error)
	GlobalCollateralValue() (*uint256.Int, error)
	AvailableExcessCollateral() (*uint256.Int, error)
	Height() uint64
}

type History interface {
	RatioHistory(ctx context.Context, limit int) ([]storage.RatioChange, error)
}

// Config captures the dependencies required to construct the server.
type Config struct {
	Ratio     RatioReader
	Keeper    Keeper
	Prices    PriceReporter
	Pools     Pools
	History   History
	RateLimit RateLimit
	Logger    *slog.Logger
}

// Server serves the arthd HTTP API.
type Server struct {
	ratio   RatioReader
	keeper  Keeper
	prices  PriceReporter
	pools   Pools
	history History
	limiter *RateLimiter
	logger  *slog.Logger
	router  http.Handler
}

func New(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	srv := &Server{
		ratio:   cfg.Ratio,
		keeper:  cfg.Keeper,
		prices:  cfg.Prices,
		pools:   cfg.Pools,
		history: cfg.History,
		limiter: NewRateLimiter(cfg.RateLimit, logger),
		logger:  logger,
	}
	srv.router = srv.buildRouter()
	return srv
}

// Handler exposes the configured HTTP router.
func (s *Server) Handler() http.Handler { return s.router }

// Limiter exposes the rate limiter so the caller can run its sweeper.
func (s *Server) Limiter() *RateLimiter { return s.limiter }

func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(chimw.RealIP)
	r.Use(accessLog(s.logger))
	r.Use(chimw.Recoverer)

	r.Get("/healthz", s.health)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(api chi.Router) {
		api.Use(s.limiter.Middleware)
		api.Get("/ratio", s.getRatio)
		api.Post("/ratio/refresh", s.refreshRatio)
		api.Get("/prices", s.getPrices)
		api.Get("/pools", s.listPools)
		api.Get("/pools/{id}", s.getPool)
		api.Get("/claims/{id}", s.getClaim)
	})
	return r
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type ratioParamsView struct {
	PriceTarget            uint64 `json:"priceTarget"`
	PriceBand              uint64 `json:"priceBand"`
	StepSize               uint64 `json:"stepSize"`
	RefreshCooldownSeconds int64  `json:"refreshCooldownSeconds"`
}

type ratioChangeView struct {
	Previous    uint64    `json:"previous"`
	Ratio       uint64    `json:"ratio"`
	Price       uint64    `json:"price"`
	RefreshedAt time.Time `json:"refreshedAt"`
}

type ratioView struct {
	Ratio                 uint64            `json:"ratio"`
	Paused                bool              `json:"paused"`
	LastRefresh           int64             `json:"lastRefresh"`
	NextRefresh           time.Time         `json:"nextRefresh"`
	Params                ratioParamsView   `json:"params"`
	EffectiveRatio        *uint64           `json:"effectiveRatio,omitempty"`
	GlobalCollateralValue string            `json:"globalCollateralValue,omitempty"`
	ExcessCollateralValue string            `json:"excessCollateralValue,omitempty"`
	Keeper                *keeper.Status    `json:"keeper,omitempty"`
	History               []ratioChangeView `json:"history"`
}

func (s *Server) getRatio(w http.ResponseWriter, r *http.Request) {
	if s.ratio == nil {
		writeError(w, http.StatusServiceUnavailable, "unavailable", "ratio controller not configured", requestIDFrom(r.Context()))
		return
	}
	st := s.ratio.State()
	params := s.ratio.Params()
	view := ratioView{
		Ratio:       st.Ratio,
		Paused:      st.Paused,
		LastRefresh: st.LastRefresh,
		NextRefresh: s.ratio.NextRefresh().UTC(),
		Params: ratioParamsView{
			PriceTarget:            params.PriceTarget,
			PriceBand:              params.PriceBand,
			StepSize:               params.StepSize,
			RefreshCooldownSeconds: int64(params.RefreshCooldown / time.Second),
		},
		History: []ratioChangeView{},
	}
	if s.pools != nil {
		// Collateral figures need every collateral price and are omitted
		// while any route fails.
		if eff, err := s.pools.EffectiveRatio(); err == nil {
			view.EffectiveRatio = &eff
		}
		if global, err := s.pools.GlobalCollateralValue(); err == nil {
			view.GlobalCollateralValue = global.Dec()
		}
		if excess, err := s.pools.AvailableExcessCollateral(); err == nil {
			view.ExcessCollateralValue = excess.Dec()
		}
	}
	if s.keeper != nil {
		status := s.keeper.Status()
		view.Keeper = &status
	}
	if s.history != nil {
		limit := 20
		if raw := r.URL.Query().Get("history"); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil || parsed < 0 || parsed > 500 {
				writeError(w, http.StatusBadRequest, "invalid_request", "history must be between 0 and 500", requestIDFrom(r.Context()))
				return
			}
			limit = parsed
		}
		if limit > 0 {
			changes, err := s.history.RatioHistory(r.Context(), limit)
			if err != nil {
				s.logger.Warn("load ratio history failed", "error", err)
				writeError(w, http.StatusInternalServerError, "internal", "failed to load ratio history", requestIDFrom(r.Context()))
				return
			}
			for _, c := range changes {
				view.History = append(view.History, ratioChangeView{Previous: c.Previous, Ratio: c.Ratio, Price: c.Price, RefreshedAt: c.RefreshedAt})
			}
		}
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) refreshRatio(w http.ResponseWriter, r *http.Request) {
	if s.keeper == nil {
		writeError(w, http.StatusServiceUnavailable, "unavailable", "keeper not configured", requestIDFrom(r.Context()))
		return
	}
	tr, err := s.keeper.Tick(r.Context())
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ratioChangeView{
		Previous:    tr.Previous,
		Ratio:       tr.Ratio,
		Price:       tr.Price,
		RefreshedAt: time.Unix(tr.Timestamp, 0).UTC(),
	})
}

func (s *Server) getPrices(w http.ResponseWriter, r *http.Request) {
	if s.prices == nil {
		writeError(w, http.StatusServiceUnavailable, "unavailable", "price aggregator not configured", requestIDFrom(r.Context()))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"routes": s.prices.Snapshot()})
}

type poolView struct {
	ID                         string `json:"id"`
	Address                    string `json:"address"`
	Decimals                   uint8  `json:"decimals"`
	Ceiling                    string `json:"ceiling,omitempty"`
	MintingFeeBps              uint64 `json:"mintingFeeBps"`
	RedemptionFeeBps           uint64 `json:"redemptionFeeBps"`
	BuybackFeeBps              uint64 `json:"buybackFeeBps"`
	RecollateralizeFeeBps      uint64 `json:"recollateralizeFeeBps"`
	RecollateralizeBonusMaxBps uint64 `json:"recollateralizeBonusMaxBps"`
	RedemptionDelayBlocks      uint64 `json:"redemptionDelayBlocks"`
	CollateralBalance          string `json:"collateralBalance"`
	UnclaimedCollateral        string `json:"unclaimedCollateral"`
	AvailableCollateral        string `json:"availableCollateral"`
	PendingRedemptions         int    `json:"pendingRedemptions"`
}

func newPoolView(info pool.Info) poolView {
	view := poolView{
		ID:                         info.ID,
		Address:                    info.Address.Hex(),
		Decimals:                   info.Params.Decimals,
		MintingFeeBps:              info.Params.MintingFeeBps,
		RedemptionFeeBps:           info.Params.RedemptionFeeBps,
		BuybackFeeBps:              info.Params.BuybackFeeBps,
		RecollateralizeFeeBps:      info.Params.RecollateralizeFeeBps,
		RecollateralizeBonusMaxBps: info.Params.RecollateralizeBonusMaxBps,
		RedemptionDelayBlocks:      info.Params.RedemptionDelayBlocks,
		CollateralBalance:          fixed.String(info.CollateralBalance),
		UnclaimedCollateral:        fixed.String(info.UnclaimedCollateral),
		AvailableCollateral:        fixed.String(info.AvailableCollateral),
		PendingRedemptions:         info.PendingRedemptions,
	}
	if info.Params.Ceiling != nil && !info.Params.Ceiling.IsZero() {
		view.Ceiling = info.Params.Ceiling.Dec()
	}
	return view
}

func (s *Server) listPools(w http.ResponseWriter, r *http.Request) {
	if s.pools == nil {
		writeError(w, http.StatusServiceUnavailable, "unavailable", "pool registry not configured", requestIDFrom(r.Context()))
		return
	}
	out := []poolView{}
	for _, id := range s.pools.IDs() {
		p, err := s.pools.Pool(id)
		if err != nil {
			continue
		}
		out = append(out, newPoolView(p.Info()))
	}
	writeJSON(w, http.StatusOK, map[string]any{"height": s.pools.Height(), "pools": out})
}

func (s *Server) getPool(w http.ResponseWriter, r *http.Request) {
	if s.pools == nil {
		writeError(w, http.StatusServiceUnavailable, "unavailable", "pool registry not configured", requestIDFrom(r.Context()))
		return
	}
	p, err := s.pools.Pool(chi.URLParam(r, "id"))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newPoolView(p.Info()))
}

type claimView struct {
	ID             string `json:"id"`
	Pool           string `json:"pool"`
	Mode           string `json:"mode"`
	Claimant       string `json:"claimant"`
	CollateralOwed string `json:"collateralOwed"`
	ShareOwed      string `json:"shareOwed"`
	BlockRequested uint64 `json:"blockRequested"`
	CollectibleAt  uint64 `json:"collectibleAt"`
	Collectible    bool   `json:"collectible"`
}

func (s *Server) getClaim(w http.ResponseWriter, r *http.Request) {
	if s.pools == nil {
		writeError(w, http.StatusServiceUnavailable, "unavailable", "pool registry not configured", requestIDFrom(r.Context()))
		return
	}
	claim, err := s.pools.Claim(chi.URLParam(r, "id"))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	view := claimView{
		ID:             claim.ID,
		Pool:           claim.Pool,
		Mode:           claim.Mode,
		Claimant:       claim.Claimant.Hex(),
		CollateralOwed: fixed.String(claim.CollateralOwed),
		ShareOwed:      fixed.String(claim.ShareOwed),
		BlockRequested: claim.BlockRequested,
		CollectibleAt:  claim.CollectibleAt,
	}
	view.Collectible = s.pools.Height() >= view.CollectibleAt
	writeJSON(w, http.StatusOK, view)
}

type errorBody struct {
	Error     string `json:"error"`
	Message   string `json:"message"`
	Advice    string `json:"advice,omitempty"`
	RequestID string `json:"requestId,omitempty"`
}

// statusFor maps an error kind onto an HTTP status.
func statusFor(err error) int {
	if errors.Is(err, coreerrors.ErrNotFound) || errors.Is(err, coreerrors.ErrUnknownCollateral) {
		return http.StatusNotFound
	}
	switch coreerrors.KindOf(err) {
	case coreerrors.KindGuard:
		return http.StatusConflict
	case coreerrors.KindSlippage, coreerrors.KindCapacity:
		return http.StatusUnprocessableEntity
	case coreerrors.KindOracle:
		return http.StatusServiceUnavailable
	case coreerrors.KindInvalid:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError && status != http.StatusServiceUnavailable {
		s.logger.Error("request failed", "path", r.URL.Path, "error", err, "request_id", requestIDFrom(r.Context()))
	}
	writeJSON(w, status, errorBody{
		Error:     coreerrors.KindOf(err).String(),
		Message:   err.Error(),
		Advice:    coreerrors.AdviceFor(err).String(),
		RequestID: requestIDFrom(r.Context()),
	})
}

func writeError(w http.ResponseWriter, status int, code, message, reqID string) {
	writeJSON(w, status, errorBody{Error: code, Message: message, RequestID: reqID})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
