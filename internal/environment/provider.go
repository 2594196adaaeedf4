package environment

import (
	"context"
	"errors"
	"fmt"

	"github.com/i474232898/environmental-data-aggregation/internal/region"
)

// SourceClient abstracts one external provider (OpenWeatherMap, Open-Meteo,
// NASA imagery, ...). Implementations validate the region before any network
// call, never retry, and report failures as *ProviderError values. The
// per-call timeout is carried by ctx.
type SourceClient interface {
	Name() string
	MetricSet() MetricSet
	Fetch(ctx context.Context, r region.Region) ([]SourceReading, error)
}

// ErrorKind classifies provider failures.
type ErrorKind string

const (
	KindRateLimited ErrorKind = "rate_limited"
	KindTimeout     ErrorKind = "timeout"
	KindMalformed   ErrorKind = "malformed"
	KindUnavailable ErrorKind = "unavailable"
)

var (
	ErrRateLimited = errors.New("provider rate limited")
	ErrTimeout     = errors.New("provider timed out")
	ErrMalformed   = errors.New("malformed provider payload")
	ErrUnavailable = errors.New("provider unavailable")

	// ErrNoData means no metric set for the region was ever cached and every
	// live fetch failed.
	ErrNoData = errors.New("no data available for this region")

	// ErrSuperseded is returned when a region selection changed before its
	// state finished loading.
	ErrSuperseded = errors.New("region selection superseded")
)

// ProviderError is the error value every SourceClient returns.
type ProviderError struct {
	Provider string
	Kind     ErrorKind
	Err      error
}

// NewProviderError wraps err with a provider and kind.
func NewProviderError(provider string, kind ErrorKind, err error) *ProviderError {
	return &ProviderError{Provider: provider, Kind: kind, Err: err}
}

func (e *ProviderError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Provider, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Provider, e.Kind, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Is lets errors.Is match the kind sentinels (ErrTimeout, ...).
func (e *ProviderError) Is(target error) bool {
	return target == e.Kind.sentinel()
}

// Retryable reports whether the orchestrator may retry the call.
func (e *ProviderError) Retryable() bool {
	return e.Kind == KindTimeout
}

func (k ErrorKind) sentinel() error {
	switch k {
	case KindRateLimited:
		return ErrRateLimited
	case KindTimeout:
		return ErrTimeout
	case KindMalformed:
		return ErrMalformed
	default:
		return ErrUnavailable
	}
}

// KindOf extracts the provider error kind, if err carries one.
func KindOf(err error) (ErrorKind, bool) {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Kind, true
	}
	return "", false
}
