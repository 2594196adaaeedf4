package forecast

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var anchor = time.Date(2026, time.October, 14, 0, 0, 0, 0, time.UTC) // a Wednesday

func observedDay(offset int, temp, pop float64) Point {
	d := anchor.AddDate(0, 0, offset)
	return Point{
		Day:                      offset,
		Date:                     d,
		Label:                    Label(d),
		TemperatureC:             temp,
		PrecipitationProbability: pop,
	}
}

func newTestSynth(opts ...Option) *Synthesizer {
	base := []Option{
		WithStep(NewSeededStep(42)),
		WithClock(func() time.Time { return anchor.Add(9 * time.Hour) }),
	}
	return New(append(base, opts...)...)
}

func TestSynthesizeAlwaysReturnsFullLength(t *testing.T) {
	s := newTestSynth()

	for n := 0; n <= 7; n++ {
		var observed []Point
		for i := 0; i < n; i++ {
			observed = append(observed, observedDay(i, 30+float64(i), 10))
		}

		out := s.Synthesize(observed)
		require.Len(t, out, DefaultLength, "observed=%d", n)

		labels := map[string]bool{}
		for i, p := range out {
			assert.Equal(t, i, p.Day)
			assert.False(t, labels[p.Label], "duplicate label %s", p.Label)
			labels[p.Label] = true
			if i > 0 {
				assert.True(t, p.Date.After(out[i-1].Date))
			}
		}
	}
}

func TestSynthesizePreservesObserved(t *testing.T) {
	s := newTestSynth()
	observed := []Point{
		observedDay(0, 31.5, 40),
		observedDay(1, 29.0, 55),
		observedDay(2, 28.2, 70),
	}

	out := s.Synthesize(observed)
	require.Len(t, out, 7)

	for i := range observed {
		assert.Equal(t, observed[i], out[i])
	}
	for _, p := range out[3:] {
		assert.True(t, p.Synthesized)
	}
}

func TestSynthesizeDeduplicatesByDay(t *testing.T) {
	s := newTestSynth()
	first := observedDay(0, 20, 10)
	laterSameDay := first
	laterSameDay.Date = first.Date.Add(6 * time.Hour)
	laterSameDay.TemperatureC = 27

	out := s.Synthesize([]Point{first, laterSameDay, observedDay(1, 22, 15)})

	assert.Equal(t, 20.0, out[0].TemperatureC)
	assert.Equal(t, 22.0, out[1].TemperatureC)
	assert.False(t, out[1].Synthesized)
	assert.True(t, out[2].Synthesized)
}

func TestSynthesizeTruncatesToLength(t *testing.T) {
	s := newTestSynth()
	var observed []Point
	for i := 0; i < 10; i++ {
		observed = append(observed, observedDay(i, 25, 5))
	}

	out := s.Synthesize(observed)
	require.Len(t, out, 7)
	for _, p := range out {
		assert.False(t, p.Synthesized)
	}
}

func TestSynthesizeBoundedSteps(t *testing.T) {
	s := newTestSynth()
	out := s.Synthesize([]Point{observedDay(0, 30, 98)})

	for i := 1; i < len(out); i++ {
		assert.InDelta(t, out[i-1].TemperatureC, out[i].TemperatureC, 1.05)
		assert.InDelta(t, out[i-1].PrecipitationProbability, out[i].PrecipitationProbability, 5.05)
		assert.GreaterOrEqual(t, out[i].PrecipitationProbability, 0.0)
		assert.LessOrEqual(t, out[i].PrecipitationProbability, 100.0)
	}
}

func TestSynthesizeLabelsFollowCalendar(t *testing.T) {
	s := newTestSynth()
	// Observed days with a gap: Wed, then Fri.
	out := s.Synthesize([]Point{observedDay(0, 30, 10), observedDay(2, 31, 10)})

	assert.Equal(t, "Wed 14 Oct", out[0].Label)
	assert.Equal(t, "Fri 16 Oct", out[1].Label)
	assert.Equal(t, "Sat 17 Oct", out[2].Label)
	assert.Equal(t, "Wed 21 Oct", out[6].Label)
}

func TestSynthesizeZeroObservedUsesBaseline(t *testing.T) {
	s := newTestSynth()
	out := s.SynthesizeFrom(nil, Baseline{TemperatureC: 32, PrecipitationProbability: 0})

	require.Len(t, out, 7)
	assert.Equal(t, anchor, out[0].Date)
	assert.InDelta(t, 32, out[0].TemperatureC, 1.05)
	for _, p := range out {
		assert.True(t, p.Synthesized)
	}
}

func TestSynthesizeDeterministicWithSeed(t *testing.T) {
	a := newTestSynth().Synthesize([]Point{observedDay(0, 30, 50)})
	b := newTestSynth().Synthesize([]Point{observedDay(0, 30, 50)})
	assert.Equal(t, a, b)
}

func TestSynthesizeCustomLength(t *testing.T) {
	out := newTestSynth(WithLength(3)).Synthesize(nil)
	assert.Len(t, out, 3)
}

func TestSynthesizeAnchorsOnUTCDay(t *testing.T) {
	ist := time.FixedZone("IST", 5*3600+1800)
	// 02:00 on the 15th in IST is still the 14th in UTC.
	s := newTestSynth(WithClock(func() time.Time { return time.Date(2026, time.October, 15, 2, 0, 0, 0, ist) }))

	out := s.Synthesize(nil)
	require.Len(t, out, DefaultLength)
	assert.Equal(t, "Wed 14 Oct", out[0].Label)
	assert.Equal(t, time.UTC, out[0].Date.Location())
	assert.Equal(t, anchor, out[0].Date)
}
