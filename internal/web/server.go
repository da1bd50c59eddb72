package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"runtime"
	"strconv"
	"time"

	sdkmath "cosmossdk.io/math"
	sdktypes "github.com/cosmos/cosmos-sdk/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/mux"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/elys-network/candyshop/internal/candyshop"
	"github.com/elys-network/candyshop/internal/chain"
	"github.com/elys-network/candyshop/internal/logger"
	"github.com/elys-network/candyshop/internal/types"
	"github.com/elys-network/candyshop/internal/utils"
	"github.com/elys-network/candyshop/internal/vault"
)

const defaultReceiptLimit = 20

// Registry is the read side of the shop served by the API.
type Registry interface {
	Cans() []*vault.Can
	CanByAddress(addr common.Address) (*vault.Can, error)
}

// ReceiptSource lists persisted receipts.
type ReceiptSource interface {
	RecentReceipts(ctx context.Context, limit int) ([]types.Receipt, error)
}

// HealthChecker reports whether the backing database is reachable.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// Market exposes the pair and farm state behind a can.
type Market interface {
	Reserves(lpDenom string) (sdktypes.Coins, error)
	FarmPool(id uint64) (chain.FarmPool, error)
	Quote(ctx context.Context, lpDenom string, in sdktypes.Coin) (sdktypes.Coin, error)
}

// Config holds the dependencies of the web server.
type Config struct {
	Port     string
	Registry Registry
	Receipts ReceiptSource
	Health   HealthChecker
	Market   Market
	Gatherer prometheus.Gatherer
	Clock    clockwork.Clock
}

// WebServer serves read-only JSON views of the shop and its metrics.
type WebServer struct {
	router   *mux.Router
	port     string
	registry Registry
	receipts ReceiptSource
	health   HealthChecker
	market   Market
	gatherer prometheus.Gatherer
	clock    clockwork.Clock
	started  time.Time
	logger   zerolog.Logger
}

// NewWebServer creates a new web server instance
func NewWebServer(cfg Config) (*WebServer, error) {
	if cfg.Registry == nil {
		return nil, errors.New("web: registry is required")
	}
	if cfg.Port == "" {
		cfg.Port = "8080"
	}
	if cfg.Gatherer == nil {
		cfg.Gatherer = prometheus.DefaultGatherer
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}

	server := &WebServer{
		router:   mux.NewRouter(),
		port:     cfg.Port,
		registry: cfg.Registry,
		receipts: cfg.Receipts,
		health:   cfg.Health,
		market:   cfg.Market,
		gatherer: cfg.Gatherer,
		clock:    cfg.Clock,
		started:  cfg.Clock.Now(),
		logger:   logger.GetForComponent("web_server"),
	}

	server.setupRoutes()
	return server, nil
}

// setupRoutes configures all HTTP routes
func (ws *WebServer) setupRoutes() {
	ws.router.HandleFunc("/health", ws.handleHealth).Methods("GET")
	ws.router.Handle("/metrics", promhttp.HandlerFor(ws.gatherer, promhttp.HandlerOpts{})).Methods("GET")

	api := ws.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", ws.handleHealth).Methods("GET")
	api.HandleFunc("/cans", ws.handleGetCans).Methods("GET")
	api.HandleFunc("/cans/{address}", ws.handleGetCan).Methods("GET")
	api.HandleFunc("/cans/{address}/users", ws.handleGetUsers).Methods("GET")
	api.HandleFunc("/cans/{address}/users/{user}", ws.handleGetUser).Methods("GET")
	api.HandleFunc("/cans/{address}/market", ws.handleGetMarket).Methods("GET")
	api.HandleFunc("/receipts", ws.handleGetReceipts).Methods("GET")

	// Add CORS middleware
	ws.router.Use(ws.corsMiddleware)
	ws.router.Use(ws.loggingMiddleware)
}

// Handler returns the routed handler, e.g. for tests.
func (ws *WebServer) Handler() http.Handler {
	return ws.router
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (ws *WebServer) Start(ctx context.Context) error {
	ws.logger.Info().Str("port", ws.port).Msg("Starting web server")

	server := &http.Server{
		Addr:         ":" + ws.port,
		Handler:      ws.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		ws.logger.Info().Msg("Shutting down web server")
		return server.Shutdown(shutdownCtx)
	}
}

// handleHealth returns server health status
func (ws *WebServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	dbStatus := "disabled"
	healthy := true
	if ws.health != nil {
		dbStatus = "ok"
		if err := ws.health.Ping(r.Context()); err != nil {
			ws.logger.Warn().Err(err).Msg("Database health check failed")
			dbStatus = "unreachable"
			healthy = false
		}
	}

	overallStatus := "OK"
	statusCode := http.StatusOK
	if !healthy {
		overallStatus = "DEGRADED"
		statusCode = http.StatusServiceUnavailable
	}

	response := map[string]interface{}{
		"status":    overallStatus,
		"timestamp": ws.clock.Now().UTC().Format(time.RFC3339Nano),
		"system": map[string]interface{}{
			"version":          runtime.Version(),
			"goroutines_count": runtime.NumGoroutine(),
			"alloc_bytes":      memStats.Alloc,
			"gc_cycles":        memStats.NumGC,
			"uptime_seconds":   int64(ws.clock.Since(ws.started).Seconds()),
		},
		"shop_status": map[string]interface{}{
			"database":  dbStatus,
			"can_count": len(ws.registry.Cans()),
		},
	}

	ws.writeJSONResponse(w, statusCode, response)
}

// handleGetCans returns the summary of every can in creation order
func (ws *WebServer) handleGetCans(w http.ResponseWriter, r *http.Request) {
	cans := ws.registry.Cans()
	summaries := make([]types.CanSummary, 0, len(cans))
	for _, can := range cans {
		summaries = append(summaries, can.Summary())
	}

	response := map[string]interface{}{
		"cans":  summaries,
		"count": len(summaries),
	}
	ws.writeJSONResponse(w, http.StatusOK, response)
}

// handleGetCan returns a specific can by address
func (ws *WebServer) handleGetCan(w http.ResponseWriter, r *http.Request) {
	can, ok := ws.lookupCan(w, r)
	if !ok {
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, can.Summary())
}

type userView struct {
	User          common.Address `json:"user"`
	Info          types.UserInfo `json:"info"`
	PendingReward sdkmath.Int    `json:"pending_reward"`
}

// handleGetUsers returns every depositor entry of a can
func (ws *WebServer) handleGetUsers(w http.ResponseWriter, r *http.Request) {
	can, ok := ws.lookupCan(w, r)
	if !ok {
		return
	}

	records := can.Users()
	users := make([]userView, 0, len(records))
	for _, rec := range records {
		users = append(users, userView{User: rec.User, Info: rec.Info, PendingReward: can.PendingReward(rec.User)})
	}

	response := map[string]interface{}{
		"can":   can.Address(),
		"users": users,
		"count": len(users),
	}
	ws.writeJSONResponse(w, http.StatusOK, response)
}

// handleGetUser returns one depositor entry; users that never interacted get a zeroed entry
func (ws *WebServer) handleGetUser(w http.ResponseWriter, r *http.Request) {
	can, ok := ws.lookupCan(w, r)
	if !ok {
		return
	}
	userStr := mux.Vars(r)["user"]
	if !common.IsHexAddress(userStr) {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid user address")
		return
	}
	user := common.HexToAddress(userStr)

	ws.writeJSONResponse(w, http.StatusOK, userView{
		User:          user,
		Info:          can.UserInfo(user),
		PendingReward: can.PendingReward(user),
	})
}

type farmPoolView struct {
	ID                uint64      `json:"id"`
	LPDenom           string      `json:"lp_denom"`
	AllocPoint        uint64      `json:"alloc_point"`
	TotalStaked       sdkmath.Int `json:"total_staked"`
	AccRewardPerShare sdkmath.Int `json:"acc_reward_per_share"`
	LastRewardTime    time.Time   `json:"last_reward_time"`
}

type quoteView struct {
	Providing sdktypes.Coin `json:"providing"`
	Paired    sdktypes.Coin `json:"paired"`
}

type marketView struct {
	Can      common.Address `json:"can"`
	Reserves sdktypes.Coins `json:"reserves"`
	FarmPool farmPoolView   `json:"farm_pool"`
	Quote    *quoteView     `json:"quote,omitempty"`
}

// handleGetMarket returns the pair reserves and farm pool of a can. With
// ?amount= it also quotes the paired token a mint of that amount would use.
func (ws *WebServer) handleGetMarket(w http.ResponseWriter, r *http.Request) {
	if ws.market == nil {
		ws.writeErrorResponse(w, http.StatusServiceUnavailable, "Market data is not available")
		return
	}
	can, ok := ws.lookupCan(w, r)
	if !ok {
		return
	}
	info := can.Info()

	reserves, err := ws.market.Reserves(info.LiquidityDenom)
	if err != nil {
		ws.logger.Error().Err(err).Str("lpDenom", info.LiquidityDenom).Msg("Failed to get pair reserves")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve reserves")
		return
	}
	pool, err := ws.market.FarmPool(info.FarmID)
	if err != nil {
		ws.logger.Error().Err(err).Uint64("farmId", info.FarmID).Msg("Failed to get farm pool")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve farm pool")
		return
	}

	view := marketView{
		Can:      can.Address(),
		Reserves: reserves,
		FarmPool: farmPoolView{
			ID:                info.FarmID,
			LPDenom:           pool.LPDenom,
			AllocPoint:        pool.AllocPoint,
			TotalStaked:       pool.TotalStaked,
			AccRewardPerShare: pool.AccRewardPerShare,
			LastRewardTime:    pool.LastRewardTime,
		},
	}

	if amountStr := r.URL.Query().Get("amount"); amountStr != "" {
		amount, err := utils.ParseAmount(amountStr)
		if err != nil || amount.IsZero() {
			ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid amount")
			return
		}
		provided := sdktypes.NewCoin(info.ProvidingDenom, amount)
		paired, err := ws.market.Quote(r.Context(), info.LiquidityDenom, provided)
		if err != nil {
			if errors.Is(err, types.ErrInsufficientLiquidity) {
				ws.writeErrorResponse(w, http.StatusUnprocessableEntity, "Pair cannot quote this amount")
				return
			}
			ws.logger.Error().Err(err).Str("amount", amount.String()).Msg("Failed to quote mint")
			ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to quote amount")
			return
		}
		view.Quote = &quoteView{Providing: provided, Paired: paired}
	}

	ws.writeJSONResponse(w, http.StatusOK, view)
}

// handleGetReceipts returns the most recent receipts
func (ws *WebServer) handleGetReceipts(w http.ResponseWriter, r *http.Request) {
	if ws.receipts == nil {
		ws.writeErrorResponse(w, http.StatusServiceUnavailable, "Receipts are not persisted")
		return
	}

	limit := defaultReceiptLimit
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsedLimit, err := strconv.Atoi(limitStr); err == nil && parsedLimit > 0 && parsedLimit <= 100 {
			limit = parsedLimit
		}
	}

	receipts, err := ws.receipts.RecentReceipts(r.Context(), limit)
	if err != nil {
		ws.logger.Error().Err(err).Msg("Failed to get recent receipts")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve receipts")
		return
	}

	response := map[string]interface{}{
		"receipts": receipts,
		"count":    len(receipts),
		"limit":    limit,
	}
	ws.writeJSONResponse(w, http.StatusOK, response)
}

func (ws *WebServer) lookupCan(w http.ResponseWriter, r *http.Request) (*vault.Can, bool) {
	addrStr := mux.Vars(r)["address"]
	if !common.IsHexAddress(addrStr) {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid can address")
		return nil, false
	}
	can, err := ws.registry.CanByAddress(common.HexToAddress(addrStr))
	if err != nil {
		if errors.Is(err, candyshop.ErrUnknownCan) {
			ws.writeErrorResponse(w, http.StatusNotFound, "Can not found")
			return nil, false
		}
		ws.logger.Error().Err(err).Str("can", addrStr).Msg("Failed to look up can")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve can")
		return nil, false
	}
	return can, true
}

// writeJSONResponse writes a JSON response
func (ws *WebServer) writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		ws.logger.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeErrorResponse writes an error response
func (ws *WebServer) writeErrorResponse(w http.ResponseWriter, statusCode int, message string) {
	response := map[string]interface{}{
		"error":     true,
		"message":   message,
		"timestamp": ws.clock.Now().UTC(),
	}

	ws.writeJSONResponse(w, statusCode, response)
}

// corsMiddleware adds CORS headers
func (ws *WebServer) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware logs HTTP requests
func (ws *WebServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := ws.clock.Now()

		wrapper := &responseWriterWrapper{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapper, r)

		ws.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("remote_addr", r.RemoteAddr).
			Int("status", wrapper.statusCode).
			Dur("duration", ws.clock.Since(start)).
			Msg("HTTP request")
	})
}

// responseWriterWrapper wraps http.ResponseWriter to capture status code
type responseWriterWrapper struct {
	http.ResponseWriter
	statusCode int
}

func (w *responseWriterWrapper) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}
