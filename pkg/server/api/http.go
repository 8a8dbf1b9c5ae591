// Package api provides the HTTP and WebSocket endpoints of the resolver.
package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/holiman/uint256"

	"github.com/StrathCole/oracle-resolver/pkg/access"
	"github.com/StrathCole/oracle-resolver/pkg/fixedpoint"
	"github.com/StrathCole/oracle-resolver/pkg/logging"
	"github.com/StrathCole/oracle-resolver/pkg/metrics"
	"github.com/StrathCole/oracle-resolver/pkg/server/aggregator"
	"github.com/StrathCole/oracle-resolver/pkg/server/sources"
)

// Config holds the HTTP server settings.
type Config struct {
	Addr string
	// Tokens maps bearer tokens to principals for admin routes.
	Tokens map[string]access.Principal
	// AdminRate is the sustained admin request rate per principal.
	AdminRate float64
	// AdminBurst is the admin request burst per principal.
	AdminBurst int
	// RequestTimeout bounds read requests.
	RequestTimeout time.Duration
	// CertFile and KeyFile enable TLS when both are set.
	CertFile string
	KeyFile  string
}

// Server represents the HTTP API server.
type Server struct {
	cfg       Config
	agg       *aggregator.Aggregator
	providers *sources.Directory
	limiter   *rateLimiter
	server    *http.Server
	logger    *logging.Logger
	wsServer  *WebSocketServer // Optional, mounted at /ws
}

// NewServer creates a new HTTP API server.
func NewServer(cfg Config, agg *aggregator.Aggregator, providers *sources.Directory, logger *logging.Logger) *Server {
	if cfg.AdminRate <= 0 {
		cfg.AdminRate = 5
	}
	if cfg.AdminBurst <= 0 {
		cfg.AdminBurst = 10
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 5 * time.Second
	}
	if logger == nil {
		logger = logging.NewNoopLogger()
	}
	return &Server{
		cfg:       cfg,
		agg:       agg,
		providers: providers,
		limiter:   newRateLimiter(cfg.AdminRate, cfg.AdminBurst),
		logger:    logger.With("component", "api"),
	}
}

// SetWebSocketServer mounts the event stream at /ws.
func (s *Server) SetWebSocketServer(ws *WebSocketServer) {
	s.wsServer = ws
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /v1/prices/{asset}", s.handlePrice)
	mux.HandleFunc("GET /v1/observations/{asset}", s.handleObservation)
	mux.HandleFunc("GET /v1/observations", s.handleBatch)
	mux.HandleFunc("GET /v1/assets", s.handleAssets)
	s.adminRoutes(mux)
	if s.wsServer != nil {
		mux.Handle("GET /ws", s.wsServer.Handler())
	}
	return instrument(mux)
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	var err error
	if s.cfg.CertFile != "" && s.cfg.KeyFile != "" {
		s.logger.Info("Starting HTTPS server", "addr", s.cfg.Addr)
		err = s.server.ListenAndServeTLS(s.cfg.CertFile, s.cfg.KeyFile)
	} else {
		s.logger.Info("Starting HTTP server", "addr", s.cfg.Addr)
		err = s.server.ListenAndServe()
	}
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("HTTP server error: %w", err)
	}
	return nil
}

// Stop gracefully stops the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		s.logger.Info("Stopping HTTP server")
		return s.server.Shutdown(ctx)
	}
	return nil
}

// ObservationResponse is the JSON view of a resolution.
type ObservationResponse struct {
	Asset        string           `json:"asset"`
	Price        string           `json:"price"`
	PriceDecimal string           `json:"price_decimal"`
	ObservedAt   int64            `json:"observed_at"`
	IsLive       bool             `json:"is_live"`
	State        aggregator.State `json:"state"`
	Frozen       bool             `json:"frozen"`
	UsedFallback bool             `json:"used_fallback"`
	Provider     string           `json:"provider,omitempty"`
}

// PriceResponse is the JSON view of a live price.
type PriceResponse struct {
	Asset        string `json:"asset"`
	Price        string `json:"price"`
	PriceDecimal string `json:"price_decimal"`
}

// AssetResponse is the JSON view of a registry entry.
type AssetResponse struct {
	Asset    string               `json:"asset"`
	Primary  string               `json:"primary"`
	Fallback string               `json:"fallback,omitempty"`
	Frozen   bool                 `json:"frozen"`
	LastGood *ObservationResponse `json:"last_good,omitempty"`
	Risk     RiskBody             `json:"risk"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (s *Server) handlePrice(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.RequestTimeout)
	defer cancel()

	asset := sources.NormalizeAsset(r.PathValue("asset"))
	price, err := s.agg.GetPrice(ctx, asset)
	if err != nil {
		s.sendError(w, err)
		return
	}
	s.sendJSON(w, http.StatusOK, PriceResponse{
		Asset:        asset,
		Price:        price.Dec(),
		PriceDecimal: s.decimal(price),
	})
}

func (s *Server) handleObservation(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.RequestTimeout)
	defer cancel()

	res, err := s.agg.Resolve(ctx, r.PathValue("asset"))
	if err != nil {
		s.sendError(w, err)
		return
	}
	if res.State == aggregator.StateNone {
		s.sendError(w, fmt.Errorf("%w: %s", aggregator.ErrNoUsablePrice, res.Asset))
		return
	}
	s.sendJSON(w, http.StatusOK, s.observation(res))
}

func (s *Server) handleBatch(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.RequestTimeout)
	defer cancel()

	raw := r.URL.Query().Get("assets")
	if raw == "" {
		s.sendError(w, fmt.Errorf("%w: assets query parameter is required", ErrBadRequest))
		return
	}
	assets := strings.Split(raw, ",")
	out := s.agg.BatchResolve(ctx, assets)

	result := make([]ObservationResponse, len(assets))
	for i, asset := range assets {
		result[i] = s.observation(aggregator.Resolution{
			Asset:        sources.NormalizeAsset(asset),
			Observation:  out.Observations[i],
			State:        out.States[i],
			Frozen:       out.Frozen[i],
			UsedFallback: out.UsedFallback[i],
		})
	}
	s.sendJSON(w, http.StatusOK, result)
}

func (s *Server) handleAssets(w http.ResponseWriter, _ *http.Request) {
	assets := s.agg.Assets()
	result := make([]AssetResponse, 0, len(assets))
	for _, asset := range assets {
		entry, err := s.agg.Entry(asset)
		if err != nil {
			// Removed between listing and lookup.
			continue
		}
		item := AssetResponse{
			Asset:    entry.Asset,
			Primary:  entry.PrimaryName(),
			Fallback: entry.FallbackName(),
			Frozen:   entry.Frozen,
			Risk:     s.riskBody(entry.Risk),
		}
		if !entry.LastGood.IsEmpty() {
			lg := s.observation(aggregator.Resolution{Asset: entry.Asset, Observation: entry.LastGood, State: aggregator.StateLastGood})
			item.LastGood = &lg
		}
		result = append(result, item)
	}
	s.sendJSON(w, http.StatusOK, result)
}

func (s *Server) observation(res aggregator.Resolution) ObservationResponse {
	out := ObservationResponse{
		Asset:        res.Asset,
		Price:        res.Observation.Price.Dec(),
		PriceDecimal: s.decimal(res.Observation.Price),
		IsLive:       res.Observation.IsLive,
		State:        res.State,
		Frozen:       res.Frozen,
		UsedFallback: res.UsedFallback,
		Provider:     res.Provider,
	}
	if !res.Observation.ObservedAt.IsZero() {
		out.ObservedAt = res.Observation.ObservedAt.Unix()
	}
	return out
}

func (s *Server) decimal(p uint256.Int) string {
	return fixedpoint.ToDecimal(p, s.agg.BaseDecimals()).String()
}

// sendJSON sends a JSON response.
func (s *Server) sendJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("Failed to encode JSON response", "error", err)
	}
}

func (s *Server) sendError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Debug("Request failed", "status", status, "error", err)
	}
	s.sendJSON(w, status, map[string]string{"error": err.Error()})
}

// statusRecorder captures the response status for metrics.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Unwrap exposes the underlying writer to http.ResponseController and the
// WebSocket upgrader.
func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// Hijack lets the WebSocket upgrader take over the connection.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	return http.NewResponseController(r.ResponseWriter).Hijack()
}

func instrument(mux *http.ServeMux) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		mux.ServeHTTP(rec, r)
		endpoint := r.Pattern
		if endpoint == "" {
			endpoint = "unmatched"
		}
		metrics.RecordHTTPRequest(endpoint, strconv.Itoa(rec.status), time.Since(start))
	})
}
