package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"github.com/i474232898/environmental-data-aggregation/internal/environment"
	"github.com/i474232898/environmental-data-aggregation/internal/region"
)

// Option configures a provider client.
type Option func(*base)

// WithBaseURL points the client at another endpoint (tests, proxies).
func WithBaseURL(u string) Option {
	return func(b *base) { b.baseURL = strings.TrimRight(u, "/") }
}

// WithHTTPClient replaces the shared HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(b *base) {
		if c != nil {
			b.client = c
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(b *base) { b.logger = l }
}

// WithClock overrides time.Now for reading timestamps.
func WithClock(now func() time.Time) Option {
	return func(b *base) {
		if now != nil {
			b.now = now
		}
	}
}

// base carries what every adapter shares: identity, transport and breaker.
// Clients make a single attempt per Fetch; retry policy belongs to the caller.
type base struct {
	name      string
	metricSet environment.MetricSet
	baseURL   string
	client    *http.Client
	logger    zerolog.Logger
	now       func() time.Time
	circuit   *gobreaker.CircuitBreaker
}

func newBase(name string, set environment.MetricSet, baseURL string, opts []Option) base {
	b := base{
		name:      name,
		metricSet: set,
		baseURL:   baseURL,
		client:    &http.Client{},
		logger:    zerolog.Nop(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(&b)
	}
	b.logger = b.logger.With().Str("provider", name).Logger()
	b.circuit = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 5,
		Interval:    1 * time.Minute,
		Timeout:     2 * time.Minute,
		// A bad payload or a rate limit says nothing about availability.
		IsSuccessful: func(err error) bool {
			kind, ok := environment.KindOf(err)
			return err == nil || (ok && (kind == environment.KindMalformed || kind == environment.KindRateLimited))
		},
	})
	return b
}

func (b *base) Name() string { return b.name }

func (b *base) MetricSet() environment.MetricSet { return b.metricSet }

func (b *base) checkRegion(r region.Region) error {
	if err := r.Validate(); err != nil {
		return fmt.Errorf("%s: %w", b.name, err)
	}
	return nil
}

func (b *base) fail(kind environment.ErrorKind, err error) error {
	return environment.NewProviderError(b.name, kind, err)
}

func (b *base) reading(metric environment.Metric, value float64, unit string, ts time.Time) environment.SourceReading {
	if ts.IsZero() {
		ts = b.now()
	}
	return environment.NewReading(b.name, metric, value, unit, ts)
}

// statusError maps a non-2xx status to a provider error kind.
func (b *base) statusError(code int) error {
	err := fmt.Errorf("unexpected status code %d", code)
	switch code {
	case http.StatusTooManyRequests:
		return b.fail(environment.KindRateLimited, err)
	case http.StatusRequestTimeout, http.StatusGatewayTimeout:
		return b.fail(environment.KindTimeout, err)
	default:
		return b.fail(environment.KindUnavailable, err)
	}
}

// transportError classifies failures that happened before a status code.
func (b *base) transportError(err error) error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return b.fail(environment.KindTimeout, err)
	}
	return b.fail(environment.KindUnavailable, err)
}

func (b *base) breakerError(err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return b.fail(environment.KindUnavailable, fmt.Errorf("circuit breaker open: %w", err))
	}
	if _, ok := environment.KindOf(err); ok {
		return err
	}
	return b.fail(environment.KindUnavailable, err)
}

func (b *base) decode(raw []byte, out any) error {
	if err := json.Unmarshal(raw, out); err != nil {
		return b.fail(environment.KindMalformed, fmt.Errorf("decode response: %w", err))
	}
	return nil
}

// getJSON performs one GET through the breaker and decodes a 2xx body into out.
func (b *base) getJSON(ctx context.Context, endpoint string, query url.Values, out any) error {
	_, err := b.circuit.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+query.Encode(), nil)
		if err != nil {
			return nil, b.fail(environment.KindUnavailable, err)
		}

		resp, err := b.client.Do(req)
		if err != nil {
			return nil, b.transportError(err)
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, b.statusError(resp.StatusCode)
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return nil, b.fail(environment.KindMalformed, fmt.Errorf("decode response: %w", err))
		}
		return nil, nil
	})
	if err != nil {
		return b.breakerError(err)
	}
	return nil
}

// restyGet performs one GET through the breaker. Statuses listed in allowed
// are returned to the caller instead of being treated as failures.
func (b *base) restyGet(ctx context.Context, req *resty.Request, path string, allowed ...int) (*resty.Response, error) {
	res, err := b.circuit.Execute(func() (interface{}, error) {
		resp, err := req.SetContext(ctx).Get(path)
		if err != nil {
			return nil, b.transportError(err)
		}
		if !resp.IsSuccess() && !slices.Contains(allowed, resp.StatusCode()) {
			return nil, b.statusError(resp.StatusCode())
		}
		return resp, nil
	})
	if err != nil {
		return nil, b.breakerError(err)
	}
	return res.(*resty.Response), nil
}

func coord(v float64) string {
	return fmt.Sprintf("%.4f", v)
}
