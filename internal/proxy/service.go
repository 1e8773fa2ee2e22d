// Package proxy runs upstream calls through the credential rotator: acquire a
// credential, call the provider, record the call on success, and on a quota
// rejection try exactly one more time with whatever the rotator hands out next.
package proxy

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/weatherproxy/weatherproxy/internal/metrics"
	"github.com/weatherproxy/weatherproxy/internal/observability"
	"github.com/weatherproxy/weatherproxy/internal/rotation"
	"github.com/weatherproxy/weatherproxy/internal/upstream"
)

var (
	// ErrQuotaExhausted means no credential was available before any upstream call.
	ErrQuotaExhausted = errors.New("no credential available")

	// ErrRetryUnavailable means the first call was rejected for quota and no
	// credential was available for the retry.
	ErrRetryUnavailable = errors.New("no credential available for retry")

	// ErrRateLimited means the retry after a quota rejection also failed.
	ErrRateLimited = errors.New("retry after quota rejection failed")

	// ErrUpstream wraps any other failed upstream call.
	ErrUpstream = errors.New("upstream call failed")
)

// Rotator is the part of rotation.Rotator the service needs.
type Rotator interface {
	Acquire() (rotation.Credential, error)
	Record(index int) (int, error)
	DailyLimit() int
}

// FetchFunc performs one upstream call with the given credential.
type FetchFunc func(ctx context.Context, credential string) (any, error)

// Result is a successful upstream payload and the accounting of the
// credential that produced it.
type Result struct {
	Payload any

	// KeyUsed is the 1-based number of the credential that succeeded.
	KeyUsed int

	// CallsRemaining is the daily limit minus the credential's count after
	// this call. It goes negative when concurrent callers overshoot.
	CallsRemaining int

	Retried bool
}

// Service orchestrates upstream calls. The rotator lock is never held while
// a call is in flight.
type Service struct {
	rotator Rotator

	// IsQuotaRejected classifies upstream errors that warrant one retry.
	IsQuotaRejected func(error) bool
}

// New creates a service over the given rotator.
func New(rotator Rotator) *Service {
	return &Service{
		rotator:         rotator,
		IsQuotaRejected: upstream.IsQuotaRejected,
	}
}

// Fetch acquires a credential and runs fetch with it. The operation name is
// used for logging and metrics only.
//
// Errors wrap one of ErrQuotaExhausted, ErrRetryUnavailable, ErrRateLimited
// or ErrUpstream. Only successful calls are recorded against a credential.
func (s *Service) Fetch(ctx context.Context, operation string, fetch FetchFunc) (*Result, error) {
	if s == nil || s.rotator == nil {
		return nil, fmt.Errorf("%w: rotator not configured", ErrQuotaExhausted)
	}

	cred, err := s.rotator.Acquire()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrQuotaExhausted, err)
	}

	payload, err := s.call(ctx, operation, cred, fetch)
	if err == nil {
		return s.finish(cred, payload, false)
	}

	if !s.quotaRejected(err) {
		logWarn("Upstream call failed",
			zap.String("operation", operation),
			zap.Int("key", cred.Number()),
			zap.Int("upstream_status", upstream.StatusCode(err)),
			zap.Error(err))
		return nil, fmt.Errorf("%w: %w", ErrUpstream, err)
	}

	logWarn("Upstream rejected key for quota, retrying once",
		zap.String("operation", operation),
		zap.Int("key", cred.Number()),
		zap.Duration("retry_after", upstream.RetryAfter(err)))
	metrics.RecordUpstreamRetry(operation)

	retryCred, acquireErr := s.rotator.Acquire()
	if acquireErr != nil {
		return nil, fmt.Errorf("%w: %w", ErrRetryUnavailable, acquireErr)
	}

	payload, err = s.call(ctx, operation, retryCred, fetch)
	if err != nil {
		logWarn("Retry after quota rejection failed",
			zap.String("operation", operation),
			zap.Int("key", retryCred.Number()),
			zap.Error(err))
		return nil, fmt.Errorf("%w: %w", ErrRateLimited, err)
	}

	return s.finish(retryCred, payload, true)
}

func (s *Service) call(ctx context.Context, operation string, cred rotation.Credential, fetch FetchFunc) (any, error) {
	start := time.Now()
	payload, err := fetch(ctx, cred.Key)

	outcome := metrics.OutcomeSuccess
	switch {
	case err == nil:
	case s.quotaRejected(err):
		outcome = metrics.OutcomeQuotaRejected
	default:
		outcome = metrics.OutcomeError
	}
	metrics.RecordUpstreamCall(operation, outcome, time.Since(start))

	return payload, err
}

func (s *Service) finish(cred rotation.Credential, payload any, retried bool) (*Result, error) {
	count, err := s.rotator.Record(cred.Index)
	if err != nil {
		return nil, fmt.Errorf("record key %d: %w", cred.Number(), err)
	}

	return &Result{
		Payload:        payload,
		KeyUsed:        cred.Number(),
		CallsRemaining: s.rotator.DailyLimit() - count,
		Retried:        retried,
	}, nil
}

func (s *Service) quotaRejected(err error) bool {
	if s.IsQuotaRejected == nil {
		return upstream.IsQuotaRejected(err)
	}
	return s.IsQuotaRejected(err)
}

func logWarn(msg string, fields ...zap.Field) {
	if logger := observability.Logger(); logger != nil {
		logger.Warn(msg, fields...)
	}
}
