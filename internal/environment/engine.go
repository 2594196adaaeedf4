package environment

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/i474232898/environmental-data-aggregation/internal/advisor"
	"github.com/i474232898/environmental-data-aggregation/internal/cache"
	"github.com/i474232898/environmental-data-aggregation/internal/forecast"
	"github.com/i474232898/environmental-data-aggregation/internal/query"
	"github.com/i474232898/environmental-data-aggregation/internal/region"
)

// Config holds the engine's timing and default values.
type Config struct {
	// ProviderTimeout bounds a single provider call.
	ProviderTimeout time.Duration

	// RetryBackoff is the pause before the one retry of a timed-out call.
	RetryBackoff time.Duration

	TTLs       map[MetricSet]time.Duration
	DefaultTTL time.Duration

	DefaultSoilMoisture float64

	// HotWindow is how long a requested region stays eligible for
	// background refresh.
	HotWindow time.Duration

	// RefreshAhead is how close to expiry an entry must be before Refresh
	// refetches it. It should be at least the background refresh interval.
	RefreshAhead time.Duration
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		ProviderTimeout: 8 * time.Second,
		RetryBackoff:    250 * time.Millisecond,
		TTLs: map[MetricSet]time.Duration{
			MetricSetWeather:          600 * time.Second,
			MetricSetWeatherSecondary: 600 * time.Second,
			MetricSetAirQuality:       900 * time.Second,
			MetricSetSoil:             1800 * time.Second,
			MetricSetSatellite:        6 * time.Hour,
			MetricSetForecast:         600 * time.Second,
		},
		DefaultTTL:          600 * time.Second,
		DefaultSoilMoisture: 45,
		HotWindow:           30 * time.Minute,
		RefreshAhead:        45 * time.Second,
	}
}

// TTL returns the configured TTL for a metric set.
func (c Config) TTL(set MetricSet) time.Duration {
	if ttl, ok := c.TTLs[set]; ok && ttl > 0 {
		return ttl
	}
	return c.DefaultTTL
}

// StateLoader is the read side of the engine.
type StateLoader interface {
	GetAggregatedState(ctx context.Context, r region.Region) (AggregatedState, error)
}

// Option configures an Engine.
type Option func(*Engine)

// WithConfig replaces the default configuration.
func WithConfig(cfg Config) Option {
	return func(e *Engine) { e.cfg = cfg }
}

// WithCache sets the payload cache.
func WithCache(c *cache.Store[Payload]) Option {
	return func(e *Engine) { e.cache = c }
}

// WithSynthesizer sets the forecast synthesizer.
func WithSynthesizer(s *forecast.Synthesizer) Option {
	return func(e *Engine) { e.synth = s }
}

// WithRouter sets the query router used by Ask.
func WithRouter(r *query.Router) Option {
	return func(e *Engine) { e.router = r }
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// Engine fans requests out to every registered SourceClient, caches each
// metric set separately and merges the results into an AggregatedState.
type Engine struct {
	clients []SourceClient
	cfg     Config

	cache      *cache.Store[Payload]
	synth      *forecast.Synthesizer
	irrigation *advisor.Engine
	airQuality *advisor.Engine
	router     *query.Router
	logger     zerolog.Logger
	now        func() time.Time

	mu     sync.Mutex
	active map[string]activeRegion
}

type activeRegion struct {
	region   region.Region
	lastSeen time.Time
}

// NewEngine creates an engine over the given clients.
func NewEngine(clients []SourceClient, opts ...Option) *Engine {
	e := &Engine{
		clients:    clients,
		cfg:        DefaultConfig(),
		irrigation: advisor.NewIrrigationEngine(),
		airQuality: advisor.NewAirQualityEngine(),
		logger:     zerolog.Nop(),
		now:        time.Now,
		active:     make(map[string]activeRegion),
	}
	for _, opt := range opts {
		opt(e)
	}

	if e.cache == nil {
		e.cache = cache.New[Payload](cache.WithClock(e.now), cache.WithLogger(e.logger))
	}
	if e.synth == nil {
		e.synth = forecast.New(forecast.WithClock(e.now))
	}
	if e.router == nil {
		router, err := query.NewRouter(query.DefaultIntents(), query.DefaultFallback)
		if err != nil {
			// The built-in table is static; failing here is a programming error.
			panic(fmt.Sprintf("environment: default intents: %v", err))
		}
		e.router = router
	}
	return e
}

// Clients returns the registered clients.
func (e *Engine) Clients() []SourceClient {
	return append([]SourceClient(nil), e.clients...)
}

type fetchResult struct {
	client SourceClient
	entry  cache.Entry[Payload]
	err    error
}

// GetAggregatedState returns the merged view for a region. Providers are
// queried concurrently, each through its own cache entry. Partial results are
// normal; ErrNoData is returned only when no metric set could be served from
// either a live fetch or the cache.
func (e *Engine) GetAggregatedState(ctx context.Context, r region.Region) (AggregatedState, error) {
	if err := r.Validate(); err != nil {
		return AggregatedState{}, err
	}
	e.touch(r)

	results := e.collect(ctx, r, false)
	return e.assemble(ctx, r, results, false)
}

// Refresh refetches the metric sets of a region that are missing or expire
// within RefreshAhead. Entries with more time left are served as cached.
// Failures keep the previous payloads.
func (e *Engine) Refresh(ctx context.Context, r region.Region) error {
	if err := r.Validate(); err != nil {
		return err
	}

	results := e.collect(ctx, r, true)
	_, err := e.assemble(ctx, r, results, true)
	return err
}

// Ask answers a free-text question about a region using its live state.
func (e *Engine) Ask(ctx context.Context, text string, r region.Region) (query.Answer, error) {
	state, err := e.GetAggregatedState(ctx, r)
	if err != nil {
		return query.Answer{}, err
	}
	return e.router.Route(text, state), nil
}

// HotRegions lists regions requested within the hot window, most recent
// first. Older entries are forgotten.
func (e *Engine) HotRegions() []region.Region {
	cutoff := e.now().Add(-e.cfg.HotWindow)

	e.mu.Lock()
	hot := make([]activeRegion, 0, len(e.active))
	for key, a := range e.active {
		if a.lastSeen.Before(cutoff) {
			delete(e.active, key)
			continue
		}
		hot = append(hot, a)
	}
	e.mu.Unlock()

	sort.Slice(hot, func(i, j int) bool { return hot[i].lastSeen.After(hot[j].lastSeen) })
	out := make([]region.Region, len(hot))
	for i, a := range hot {
		out[i] = a.region
	}
	return out
}

// Close releases the cache backend.
func (e *Engine) Close() error {
	return e.cache.Close()
}

func (e *Engine) touch(r region.Region) {
	e.mu.Lock()
	e.active[r.Key()] = activeRegion{region: r, lastSeen: e.now()}
	e.mu.Unlock()
}

func (e *Engine) collect(ctx context.Context, r region.Region, refresh bool) []fetchResult {
	results := make([]fetchResult, len(e.clients))

	var g errgroup.Group
	for i, c := range e.clients {
		i, c := i, c
		g.Go(func() error {
			key := cache.Key{Region: r.Key(), MetricSet: string(c.MetricSet())}
			ttl := e.cfg.TTL(c.MetricSet())
			fetch := func(fctx context.Context) (Payload, error) {
				readings, err := e.fetchWithRetry(fctx, c, r)
				if err != nil {
					return Payload{}, err
				}
				return Payload{Readings: readings}, nil
			}

			var (
				entry cache.Entry[Payload]
				err   error
			)
			if refresh && e.expiring(key, ttl) {
				entry, err = e.cache.Refresh(ctx, key, ttl, fetch)
			} else {
				entry, err = e.cache.GetOrFetch(ctx, key, ttl, fetch)
			}
			results[i] = fetchResult{client: c, entry: entry, err: err}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// fetchWithRetry makes one call and, only when it timed out, a second one
// after the configured backoff.
func (e *Engine) fetchWithRetry(ctx context.Context, c SourceClient, r region.Region) ([]SourceReading, error) {
	readings, err := e.fetchOnce(ctx, c, r)
	if err == nil {
		return readings, nil
	}

	log := e.logger.With().Str("provider", c.Name()).Str("region", r.Key()).Logger()
	var pe *ProviderError
	if !errors.As(err, &pe) || !pe.Retryable() {
		log.Warn().Err(err).Msg("provider fetch failed")
		return nil, err
	}

	log.Info().Err(err).Dur("backoff", e.cfg.RetryBackoff).Msg("provider timed out; retrying once")
	timer := time.NewTimer(e.cfg.RetryBackoff)
	select {
	case <-ctx.Done():
		timer.Stop()
		return nil, err
	case <-timer.C:
	}

	readings, err = e.fetchOnce(ctx, c, r)
	if err != nil {
		log.Warn().Err(err).Msg("provider retry failed")
		return nil, err
	}
	return readings, nil
}

func (e *Engine) fetchOnce(ctx context.Context, c SourceClient, r region.Region) ([]SourceReading, error) {
	pctx, cancel := context.WithTimeout(ctx, e.cfg.ProviderTimeout)
	defer cancel()

	readings, err := c.Fetch(pctx, r)
	if err != nil {
		// A client that ignored its own deadline is still a timeout.
		if _, ok := KindOf(err); !ok && errors.Is(err, context.DeadlineExceeded) {
			err = NewProviderError(c.Name(), KindTimeout, err)
		}
		return nil, err
	}
	return readings, nil
}

func (e *Engine) assemble(ctx context.Context, r region.Region, results []fetchResult, refresh bool) (AggregatedState, error) {
	state := AggregatedState{
		Region:    r,
		Providers: make([]ProviderStatus, 0, len(results)),
	}

	var (
		all  []SourceReading
		errs []error
	)
	for _, res := range results {
		status := ProviderStatus{
			Provider:  res.client.Name(),
			MetricSet: res.client.MetricSet(),
		}
		if res.err != nil {
			status.Error = res.err.Error()
			if kind, ok := KindOf(res.err); ok {
				status.ErrorKind = kind
			}
			state.Providers = append(state.Providers, status)
			errs = append(errs, res.err)
			continue
		}

		status.FetchedAt = res.entry.FetchedAt
		status.Stale = res.entry.Stale
		state.Providers = append(state.Providers, status)

		all = append(all, res.entry.Payload.Readings...)
		if state.DataFreshness.IsZero() || res.entry.FetchedAt.Before(state.DataFreshness) {
			state.DataFreshness = res.entry.FetchedAt
		}
		state.Stale = state.Stale || res.entry.Stale
	}

	if len(results) == len(errs) {
		e.logger.Warn().Str("region", r.Key()).Int("providers", len(results)).Msg("no data available")
		if len(errs) == 0 {
			return AggregatedState{}, fmt.Errorf("%w: no providers registered", ErrNoData)
		}
		return AggregatedState{}, fmt.Errorf("%w: %w", ErrNoData, errors.Join(errs...))
	}

	defaults := map[Metric]float64{MetricSoilMoisture: e.cfg.DefaultSoilMoisture}
	state.Readings, state.Missing = AggregateReadings(all, defaults)

	points, err := e.forecastFor(ctx, r, all, state, refresh)
	if err != nil {
		return AggregatedState{}, err
	}
	state.Forecast = points

	state.Recommendation = e.irrigation.Evaluate(state.Readings)
	if containsMetric(state.Missing, MetricAQI) {
		state.AirQuality = advisor.AirQualityUnknown
	} else {
		state.AirQuality = e.airQuality.Evaluate(state.Readings)
	}

	e.logger.Debug().
		Str("region", r.Key()).
		Int("readings", len(all)).
		Int("missing", len(state.Missing)).
		Bool("stale", state.Stale).
		Str("urgency", string(state.Recommendation.Urgency)).
		Msg("aggregated state")
	return state, nil
}

// forecastFor caches the synthesized forecast under its own key so repeated
// requests within the TTL see the same synthesized days. It is rebuilt only
// when its entry expires or the observations it was built from change.
func (e *Engine) forecastFor(ctx context.Context, r region.Region, all []SourceReading, state AggregatedState, refresh bool) ([]forecast.Point, error) {
	key := cache.Key{Region: r.Key(), MetricSet: string(MetricSetForecast)}
	ttl := e.cfg.TTL(MetricSetForecast)

	basis := ForecastBasis{
		Observed: ObservedForecast(all, e.now()),
		Baseline: forecast.Baseline{
			TemperatureC:             forecast.DefaultBaselineTemperatureC,
			PrecipitationProbability: forecast.DefaultBaselinePrecipitation,
		},
	}
	if !containsMetric(state.Missing, MetricTemperature) {
		basis.Baseline.TemperatureC = state.Readings.TemperatureC
	}

	fetch := func(context.Context) (Payload, error) {
		return Payload{
			Forecast: e.synth.SynthesizeFrom(basis.Observed, basis.Baseline),
			Basis:    &basis,
		}, nil
	}

	rebuild := refresh && e.expiring(key, ttl)
	if cur, ok := e.cache.Peek(key); ok && !cur.Payload.Basis.Equal(basis) {
		rebuild = true
	}

	var (
		entry cache.Entry[Payload]
		err   error
	)
	if rebuild {
		entry, err = e.cache.Refresh(ctx, key, ttl, fetch)
	} else {
		entry, err = e.cache.GetOrFetch(ctx, key, ttl, fetch)
	}
	if err != nil {
		return nil, fmt.Errorf("forecast for %s: %w", r.Key(), err)
	}
	return entry.Payload.Forecast, nil
}

// expiring reports whether key has no in-memory entry or less than
// RefreshAhead of its TTL left.
func (e *Engine) expiring(key cache.Key, ttl time.Duration) bool {
	entry, ok := e.cache.Peek(key)
	if !ok {
		return true
	}
	return ttl-e.now().Sub(entry.FetchedAt) < e.cfg.RefreshAhead
}

func containsMetric(ms []Metric, m Metric) bool {
	for _, x := range ms {
		if x == m {
			return true
		}
	}
	return false
}
