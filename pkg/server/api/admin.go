package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/holiman/uint256"
	"golang.org/x/time/rate"

	"github.com/StrathCole/oracle-resolver/pkg/access"
	"github.com/StrathCole/oracle-resolver/pkg/fixedpoint"
	"github.com/StrathCole/oracle-resolver/pkg/metrics"
	"github.com/StrathCole/oracle-resolver/pkg/server/aggregator"
	"github.com/StrathCole/oracle-resolver/pkg/server/sources"
)

// rateLimiter keeps one token bucket per principal.
type rateLimiter struct {
	mu       sync.Mutex
	limiters map[access.Principal]*rate.Limiter
	rate     rate.Limit
	burst    int
}

func newRateLimiter(rps float64, burst int) *rateLimiter {
	return &rateLimiter{
		limiters: make(map[access.Principal]*rate.Limiter),
		rate:     rate.Limit(rps),
		burst:    burst,
	}
}

func (rl *rateLimiter) allow(p access.Principal) bool {
	rl.mu.Lock()
	limiter, ok := rl.limiters[p]
	if !ok {
		limiter = rate.NewLimiter(rl.rate, rl.burst)
		rl.limiters[p] = limiter
	}
	rl.mu.Unlock()
	return limiter.Allow()
}

type adminHandler func(w http.ResponseWriter, r *http.Request, caller access.Principal)

func (s *Server) adminRoutes(mux *http.ServeMux) {
	routes := map[string]adminHandler{
		"PUT /v1/admin/assets/{asset}/primary":                         s.handleSetPrimary,
		"PUT /v1/admin/assets/{asset}/fallback":                        s.handleSetFallback,
		"DELETE /v1/admin/assets/{asset}/fallback":                     s.handleClearFallback,
		"PUT /v1/admin/assets/{asset}/risk":                            s.handleRisk,
		"POST /v1/admin/assets/{asset}/freeze":                         s.handleFreeze,
		"POST /v1/admin/assets/{asset}/unfreeze":                       s.handleUnfreeze,
		"POST /v1/admin/assets/{asset}/push":                           s.handlePush,
		"POST /v1/admin/assets/{asset}/record-last-good":               s.handleRecordLastGood,
		"DELETE /v1/admin/assets/{asset}":                              s.handleRemoveAsset,
		"POST /v1/admin/providers/{provider}/{asset}/record-last-good": s.handleProviderRecordLastGood,
		"PUT /v1/admin/providers/{provider}/{asset}/peg":               s.handleSetPeg,
		"DELETE /v1/admin/providers/{provider}/{asset}":                s.handleRemoveBinding,
		"POST /v1/admin/grants":                                        s.handleGrant,
		"DELETE /v1/admin/grants":                                      s.handleRevoke,
		"GET /v1/admin/handover":                                       s.handlePendingHandover,
		"POST /v1/admin/handover":                                      s.handleBeginHandover,
		"POST /v1/admin/handover/accept":                               s.handleAcceptHandover,
		"DELETE /v1/admin/handover":                                    s.handleCancelHandover,
	}
	for pattern, h := range routes {
		mux.HandleFunc(pattern, s.authenticated(h))
	}
}

// authenticated resolves the bearer token to a principal and applies the
// per-principal rate limit.
func (s *Server) authenticated(h adminHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			s.sendError(w, ErrMissingToken)
			return
		}
		caller, ok := s.cfg.Tokens[token]
		if !ok {
			s.logger.Warn("Rejected admin request with unknown token", "path", r.URL.Path, "remote", r.RemoteAddr)
			s.sendError(w, ErrInvalidToken)
			return
		}
		if !s.limiter.allow(caller) {
			s.sendError(w, fmt.Errorf("%w: %s", ErrRateLimited, caller))
			return
		}
		h(w, r, caller)
	}
}

// ProviderBody selects a provider by handle.
type ProviderBody struct {
	Provider string `json:"provider"`
}

// RiskBody is the JSON form of aggregator risk settings. Prices are decimal
// strings in base currency units.
type RiskBody struct {
	MaxStaleTime      string `json:"max_stale_time,omitempty"`
	HeartbeatOverride string `json:"heartbeat_override,omitempty"`
	MaxDeviationBps   uint32 `json:"max_deviation_bps,omitempty"`
	MinAnswer         string `json:"min_answer,omitempty"`
	MaxAnswer         string `json:"max_answer,omitempty"`
}

// PriceBody carries a decimal price and an optional unix timestamp.
type PriceBody struct {
	Price      string `json:"price"`
	ObservedAt int64  `json:"observed_at,omitempty"`
}

// GrantBody names a principal and a capability.
type GrantBody struct {
	Principal  string `json:"principal"`
	Capability string `json:"capability"`
}

// HandoverBody names the proposed admin.
type HandoverBody struct {
	NewAdmin string `json:"new_admin"`
}

// StatusResponse acknowledges an admin operation.
type StatusResponse struct {
	Status string `json:"status"`
}

func decode(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", ErrBadRequest, err)
	}
	return nil
}

func (s *Server) ok(w http.ResponseWriter) {
	s.sendJSON(w, http.StatusOK, StatusResponse{Status: "ok"})
}

func (s *Server) provider(name string) (sources.Wrapper, error) {
	if s.providers == nil {
		return nil, fmt.Errorf("%w: %s", sources.ErrProviderNotFound, name)
	}
	return s.providers.Get(name)
}

func (s *Server) handleSetPrimary(w http.ResponseWriter, r *http.Request, caller access.Principal) {
	s.setProvider(w, r, caller, s.agg.SetPrimaryProvider)
}

func (s *Server) handleSetFallback(w http.ResponseWriter, r *http.Request, caller access.Principal) {
	s.setProvider(w, r, caller, s.agg.SetFallbackProvider)
}

func (s *Server) setProvider(w http.ResponseWriter, r *http.Request, caller access.Principal,
	set func(access.Principal, string, sources.Wrapper) error,
) {
	var body ProviderBody
	if err := decode(r, &body); err != nil {
		s.sendError(w, err)
		return
	}
	provider, err := s.provider(body.Provider)
	if err != nil {
		s.sendError(w, err)
		return
	}
	if err := set(caller, r.PathValue("asset"), provider); err != nil {
		s.sendError(w, err)
		return
	}
	s.ok(w)
}

func (s *Server) handleClearFallback(w http.ResponseWriter, r *http.Request, caller access.Principal) {
	if err := s.agg.ClearFallbackProvider(caller, r.PathValue("asset")); err != nil {
		s.sendError(w, err)
		return
	}
	s.ok(w)
}

func (s *Server) handleRisk(w http.ResponseWriter, r *http.Request, caller access.Principal) {
	var body RiskBody
	if err := decode(r, &body); err != nil {
		s.sendError(w, err)
		return
	}
	risk, err := s.parseRisk(body)
	if err != nil {
		s.sendError(w, err)
		return
	}
	if err := s.agg.UpdateRiskConfig(caller, r.PathValue("asset"), risk); err != nil {
		s.sendError(w, err)
		return
	}
	s.ok(w)
}

func (s *Server) parseRisk(body RiskBody) (aggregator.RiskConfig, error) {
	var risk aggregator.RiskConfig
	var err error
	if risk.MaxStaleTime, err = parseDuration(body.MaxStaleTime); err != nil {
		return risk, err
	}
	if risk.HeartbeatOverride, err = parseDuration(body.HeartbeatOverride); err != nil {
		return risk, err
	}
	risk.MaxDeviationBps = body.MaxDeviationBps
	if risk.MinAnswer, err = s.parsePrice(body.MinAnswer); err != nil {
		return risk, err
	}
	if risk.MaxAnswer, err = s.parsePrice(body.MaxAnswer); err != nil {
		return risk, err
	}
	return risk, nil
}

func parseDuration(v string) (time.Duration, error) {
	if v == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrBadRequest, err)
	}
	return d, nil
}

func (s *Server) parsePrice(v string) (uint256.Int, error) {
	if v == "" {
		return uint256.Int{}, nil
	}
	p, err := fixedpoint.ParseDecimal(v, s.agg.BaseDecimals())
	if err != nil {
		return uint256.Int{}, fmt.Errorf("%w: %v", ErrBadRequest, err)
	}
	return p, nil
}

func (s *Server) handleFreeze(w http.ResponseWriter, r *http.Request, caller access.Principal) {
	if err := s.agg.Freeze(caller, r.PathValue("asset")); err != nil {
		s.sendError(w, err)
		return
	}
	s.ok(w)
}

func (s *Server) handleUnfreeze(w http.ResponseWriter, r *http.Request, caller access.Principal) {
	if err := s.agg.Unfreeze(caller, r.PathValue("asset")); err != nil {
		s.sendError(w, err)
		return
	}
	s.ok(w)
}

func (s *Server) handlePush(w http.ResponseWriter, r *http.Request, caller access.Principal) {
	var body PriceBody
	if err := decode(r, &body); err != nil {
		s.sendError(w, err)
		return
	}
	price, err := s.parsePrice(body.Price)
	if err != nil {
		s.sendError(w, err)
		return
	}
	var at time.Time
	if body.ObservedAt > 0 {
		at = time.Unix(body.ObservedAt, 0)
	}
	if err := s.agg.PushFrozenPrice(caller, r.PathValue("asset"), price, at); err != nil {
		s.sendError(w, err)
		return
	}
	s.ok(w)
}

func (s *Server) handleRecordLastGood(w http.ResponseWriter, r *http.Request, caller access.Principal) {
	res, err := s.agg.RecordLastGood(r.Context(), caller, r.PathValue("asset"))
	if err != nil {
		s.sendError(w, err)
		return
	}
	s.sendJSON(w, http.StatusOK, s.observation(res))
}

func (s *Server) handleRemoveAsset(w http.ResponseWriter, r *http.Request, caller access.Principal) {
	if err := s.agg.RemoveAsset(caller, r.PathValue("asset")); err != nil {
		s.sendError(w, err)
		return
	}
	s.ok(w)
}

func (s *Server) handleProviderRecordLastGood(w http.ResponseWriter, r *http.Request, caller access.Principal) {
	provider, err := s.provider(r.PathValue("provider"))
	if err != nil {
		s.sendError(w, err)
		return
	}
	asset := sources.NormalizeAsset(r.PathValue("asset"))
	obs, err := provider.RecordLastGood(r.Context(), caller, asset)
	if err != nil {
		s.sendError(w, err)
		return
	}
	s.sendJSON(w, http.StatusOK, s.observation(aggregator.Resolution{
		Asset:       asset,
		Observation: obs,
		Provider:    provider.Name(),
	}))
}

func (s *Server) handleRemoveBinding(w http.ResponseWriter, r *http.Request, caller access.Principal) {
	provider, err := s.provider(r.PathValue("provider"))
	if err != nil {
		s.sendError(w, err)
		return
	}
	err = provider.Remove(caller, r.PathValue("asset"))
	metrics.RecordAdminOperation("remove_binding", err)
	if err != nil {
		s.sendError(w, err)
		return
	}
	s.logger.Info("Provider binding removed", "provider", provider.Name(),
		"asset", sources.NormalizeAsset(r.PathValue("asset")), "actor", caller)
	s.ok(w)
}

func (s *Server) handleSetPeg(w http.ResponseWriter, r *http.Request, caller access.Principal) {
	provider, err := s.provider(r.PathValue("provider"))
	if err != nil {
		s.sendError(w, err)
		return
	}
	setter, ok := provider.(sources.PegSetter)
	if !ok {
		s.sendError(w, fmt.Errorf("%w: %s", ErrNotPegProvider, provider.Name()))
		return
	}
	var body PriceBody
	if err := decode(r, &body); err != nil {
		s.sendError(w, err)
		return
	}
	price, err := s.parsePrice(body.Price)
	if err != nil {
		s.sendError(w, err)
		return
	}
	if err := setter.SetPeg(caller, r.PathValue("asset"), price); err != nil {
		s.sendError(w, err)
		return
	}
	s.ok(w)
}

func (s *Server) grantBody(r *http.Request) (access.Principal, access.Capability, error) {
	var body GrantBody
	if err := decode(r, &body); err != nil {
		return "", 0, err
	}
	capability, err := access.ParseCapability(body.Capability)
	if err != nil {
		return "", 0, err
	}
	return access.Principal(body.Principal), capability, nil
}

func (s *Server) handleGrant(w http.ResponseWriter, r *http.Request, caller access.Principal) {
	p, capability, err := s.grantBody(r)
	if err == nil {
		err = s.agg.Access().Grant(caller, p, capability)
	}
	s.auditAccess(w, "grant", caller, p, capability, err)
}

func (s *Server) handleRevoke(w http.ResponseWriter, r *http.Request, caller access.Principal) {
	p, capability, err := s.grantBody(r)
	if err == nil {
		err = s.agg.Access().Revoke(caller, p, capability)
	}
	s.auditAccess(w, "revoke", caller, p, capability, err)
}

func (s *Server) auditAccess(w http.ResponseWriter, operation string, caller, p access.Principal, capability access.Capability, err error) {
	metrics.RecordAdminOperation(operation, err)
	if err != nil {
		s.sendError(w, err)
		return
	}
	s.logger.Info("Capability changed", "operation", operation, "principal", string(p),
		"capability", capability.String(), "caller", string(caller))
	s.ok(w)
}

func (s *Server) handlePendingHandover(w http.ResponseWriter, _ *http.Request, _ access.Principal) {
	pending, ok := s.agg.Access().Pending()
	if !ok {
		s.sendError(w, access.ErrNoHandoverPending)
		return
	}
	s.sendJSON(w, http.StatusOK, pending)
}

func (s *Server) handleBeginHandover(w http.ResponseWriter, r *http.Request, caller access.Principal) {
	var body HandoverBody
	err := decode(r, &body)
	if err == nil {
		err = s.agg.Access().BeginHandover(caller, access.Principal(body.NewAdmin))
	}
	metrics.RecordAdminOperation("begin_handover", err)
	if err != nil {
		s.sendError(w, err)
		return
	}
	s.logger.Warn("Admin handover started", "new_admin", body.NewAdmin, "caller", string(caller))
	s.ok(w)
}

func (s *Server) handleAcceptHandover(w http.ResponseWriter, _ *http.Request, caller access.Principal) {
	done, err := s.agg.Access().AcceptHandover(caller)
	metrics.RecordAdminOperation("accept_handover", err)
	if err != nil {
		s.sendError(w, err)
		return
	}
	s.logger.Warn("Admin handover accepted", "new_admin", string(done.PendingAdmin), "previous", string(done.Initiator))
	s.sendJSON(w, http.StatusOK, done)
}

func (s *Server) handleCancelHandover(w http.ResponseWriter, _ *http.Request, caller access.Principal) {
	err := s.agg.Access().CancelHandover(caller)
	metrics.RecordAdminOperation("cancel_handover", err)
	if err != nil {
		s.sendError(w, err)
		return
	}
	s.logger.Warn("Admin handover cancelled", "caller", string(caller))
	s.ok(w)
}

func (s *Server) riskBody(risk aggregator.RiskConfig) RiskBody {
	body := RiskBody{MaxDeviationBps: risk.MaxDeviationBps}
	if risk.MaxStaleTime > 0 {
		body.MaxStaleTime = risk.MaxStaleTime.String()
	}
	if risk.HeartbeatOverride > 0 {
		body.HeartbeatOverride = risk.HeartbeatOverride.String()
	}
	if !risk.MinAnswer.IsZero() {
		body.MinAnswer = s.decimal(risk.MinAnswer)
	}
	if !risk.MaxAnswer.IsZero() {
		body.MaxAnswer = s.decimal(risk.MaxAnswer)
	}
	return body
}
