package forecast

import (
	"math"
	"math/rand"
	"sync"
	"time"
)

// DefaultLength is the number of days in a synthesized forecast.
const DefaultLength = 7

// Default baseline used when there is nothing observed to extrapolate from.
const (
	DefaultBaselineTemperatureC  = 25.0
	DefaultBaselinePrecipitation = 20.0
)

const labelLayout = "Mon 02 Jan"

// Point is one day of a forecast.
type Point struct {
	Day                      int       `json:"day"`
	Date                     time.Time `json:"date"`
	Label                    string    `json:"label"`
	TemperatureC             float64   `json:"temperatureC"`
	PrecipitationProbability float64   `json:"precipitationProbability"`
	Synthesized              bool      `json:"synthesized"`
}

// Baseline seeds extrapolation when no day was observed.
type Baseline struct {
	TemperatureC             float64
	PrecipitationProbability float64
}

// StepFunc returns a value in [min, max].
type StepFunc func(min, max float64) float64

// NewSeededStep returns a reproducible StepFunc that is safe for concurrent use.
func NewSeededStep(seed int64) StepFunc {
	var mu sync.Mutex
	rng := rand.New(rand.NewSource(seed))
	return func(min, max float64) float64 {
		mu.Lock()
		f := rng.Float64()
		mu.Unlock()
		return min + f*(max-min)
	}
}

// Synthesizer turns sparse daily observations into a fixed-length forecast.
type Synthesizer struct {
	length   int
	step     StepFunc
	baseline Baseline
	now      func() time.Time
}

// Option configures a Synthesizer.
type Option func(*Synthesizer)

// WithLength sets the output length. Values below 1 are ignored.
func WithLength(n int) Option {
	return func(s *Synthesizer) {
		if n > 0 {
			s.length = n
		}
	}
}

// WithStep injects the bounded random step.
func WithStep(step StepFunc) Option {
	return func(s *Synthesizer) {
		if step != nil {
			s.step = step
		}
	}
}

// WithBaseline sets the fallback baseline.
func WithBaseline(b Baseline) Option {
	return func(s *Synthesizer) { s.baseline = b }
}

// WithClock sets the source of "today" for forecasts with no observed days.
func WithClock(now func() time.Time) Option {
	return func(s *Synthesizer) {
		if now != nil {
			s.now = now
		}
	}
}

// New creates a Synthesizer seeded from the current time unless WithStep is given.
func New(opts ...Option) *Synthesizer {
	s := &Synthesizer{
		length: DefaultLength,
		step:   NewSeededStep(time.Now().UnixNano()),
		baseline: Baseline{
			TemperatureC:             DefaultBaselineTemperatureC,
			PrecipitationProbability: DefaultBaselinePrecipitation,
		},
		now: time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Synthesize fills observed days up to the configured length using the
// default baseline when nothing was observed.
func (s *Synthesizer) Synthesize(observed []Point) []Point {
	return s.SynthesizeFrom(observed, s.baseline)
}

// SynthesizeFrom is Synthesize with an explicit baseline for the
// zero-observation case.
//
// Observed points are kept in input order, one per calendar day; a point whose
// date is not after the previously kept one is dropped. Missing days continue
// the calendar from the last kept date.
func (s *Synthesizer) SynthesizeFrom(observed []Point, baseline Baseline) []Point {
	out := make([]Point, 0, s.length)

	for _, p := range observed {
		if len(out) == s.length {
			break
		}
		day := midnight(p.Date)
		if len(out) > 0 && !day.After(midnight(out[len(out)-1].Date)) {
			continue
		}

		p.Day = len(out)
		p.Label = Label(p.Date)
		p.Synthesized = false
		out = append(out, p)
	}

	var prev Point
	if len(out) > 0 {
		prev = out[len(out)-1]
	} else {
		prev = Point{
			Date:                     midnight(s.now()).AddDate(0, 0, -1),
			TemperatureC:             baseline.TemperatureC,
			PrecipitationProbability: clamp(baseline.PrecipitationProbability, 0, 100),
		}
	}

	for len(out) < s.length {
		date := midnight(prev.Date).AddDate(0, 0, 1)
		next := Point{
			Day:                      len(out),
			Date:                     date,
			Label:                    Label(date),
			TemperatureC:             round1(prev.TemperatureC + s.step(-1, 1)),
			PrecipitationProbability: round1(clamp(prev.PrecipitationProbability+s.step(-5, 5), 0, 100)),
			Synthesized:              true,
		}
		out = append(out, next)
		prev = next
	}

	return out
}

// Label formats the display label for a forecast date.
func Label(t time.Time) string {
	return t.Format(labelLayout)
}

// midnight truncates to the start of the UTC day, the same bucketing used
// for observed days.
func midnight(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(hi, math.Max(lo, v))
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
