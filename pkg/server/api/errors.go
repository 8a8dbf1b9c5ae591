package api

import (
	"errors"
	"net/http"

	"github.com/StrathCole/oracle-resolver/pkg/access"
	"github.com/StrathCole/oracle-resolver/pkg/server/aggregator"
	"github.com/StrathCole/oracle-resolver/pkg/server/sources"
)

var (
	// ErrMissingToken indicates an admin request without a bearer token.
	ErrMissingToken = errors.New("missing bearer token")
	// ErrInvalidToken indicates a bearer token that maps to no principal.
	ErrInvalidToken = errors.New("invalid bearer token")
	// ErrRateLimited indicates a principal above its admin request budget.
	ErrRateLimited = errors.New("rate limit exceeded")
	// ErrBadRequest indicates a malformed request body or query.
	ErrBadRequest = errors.New("bad request")
	// ErrNotPegProvider indicates a peg update on a provider without a settable peg.
	ErrNotPegProvider = errors.New("provider does not support peg updates")
)

// statusFor maps an error to its HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrMissingToken), errors.Is(err, ErrInvalidToken):
		return http.StatusUnauthorized
	case errors.Is(err, access.ErrUnauthorized), errors.Is(err, access.ErrNotPendingAdmin):
		return http.StatusForbidden
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, aggregator.ErrAssetNotRegistered),
		errors.Is(err, sources.ErrProviderNotFound),
		errors.Is(err, sources.ErrAssetNotConfigured):
		return http.StatusNotFound
	case errors.Is(err, aggregator.ErrPriceNotLive),
		errors.Is(err, aggregator.ErrNoUsablePrice),
		errors.Is(err, sources.ErrPriceNotAlive):
		return http.StatusServiceUnavailable
	case errors.Is(err, aggregator.ErrAlreadyFrozen),
		errors.Is(err, aggregator.ErrNotFrozen),
		errors.Is(err, aggregator.ErrNoLastGood),
		errors.Is(err, aggregator.ErrSameProvider),
		errors.Is(err, aggregator.ErrNotResolvedLive),
		errors.Is(err, sources.ErrDecimalsChanged),
		errors.Is(err, access.ErrHandoverPending),
		errors.Is(err, access.ErrNoHandoverPending):
		return http.StatusConflict
	default:
		return http.StatusBadRequest
	}
}
