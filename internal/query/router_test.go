package query

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testState struct {
	Region struct{ Name string }
	Count  int
}

func newState(name string, count int) testState {
	var s testState
	s.Region.Name = name
	s.Count = count
	return s
}

func TestRouteFirstMatchWins(t *testing.T) {
	r, err := NewRouter([]Intent{
		{Name: "pollution", Triggers: []string{"aqi"}, Template: "pollution"},
		{Name: "water", Triggers: []string{"irrigate"}, Template: "water"},
	}, "")
	require.NoError(t, err)

	ans := r.Route("Should I IRRIGATE given the AQI?", nil)
	assert.Equal(t, "pollution", ans.Intent)
	assert.Equal(t, "pollution", ans.Text)
}

func TestRouteRendersLiveContext(t *testing.T) {
	r, err := NewRouter([]Intent{
		{Name: "count", Triggers: []string{"how many"}, Template: "{{.Region.Name}} has {{.Count}} alerts", Effect: "filter=alerts"},
	}, "")
	require.NoError(t, err)

	assert.Equal(t, "Pune has 3 alerts", r.Route("how many alerts?", newState("Pune", 3)).Text)

	ans := r.Route("How many now?", newState("Pune", 5))
	assert.Equal(t, "Pune has 5 alerts", ans.Text)
	assert.Equal(t, "filter=alerts", ans.Effect)
}

func TestRouteFallbacks(t *testing.T) {
	r, err := NewRouter([]Intent{
		{Name: "broken", Triggers: []string{"broken"}, Template: "{{.Nope}}"},
	}, "sorry")
	require.NoError(t, err)

	assert.Equal(t, Answer{Intent: "fallback", Text: "sorry"}, r.Route("unrelated", nil))
	assert.Equal(t, Answer{Intent: "fallback", Text: "sorry"}, r.Route("broken?", newState("x", 1)))
	assert.Equal(t, "sorry", r.Route("", nil).Text)
}

func TestNewRouterValidation(t *testing.T) {
	_, err := NewRouter([]Intent{{Name: "", Triggers: []string{"x"}}}, "")
	assert.Error(t, err)

	_, err = NewRouter([]Intent{{Name: "a"}}, "")
	assert.Error(t, err)

	_, err = NewRouter([]Intent{{Name: "a", Triggers: []string{"x"}, Template: "{{.Broken"}}, "")
	assert.Error(t, err)
}

func TestMatch(t *testing.T) {
	r, err := NewRouter(DefaultIntents(), "")
	require.NoError(t, err)

	in, ok := r.Match("What's the pollution like?")
	require.True(t, ok)
	assert.Equal(t, "air_quality", in.Name)

	in, ok = r.Match("will it rain tomorrow")
	require.True(t, ok)
	assert.Equal(t, "forecast", in.Name)

	_, ok = r.Match("zzz")
	assert.False(t, ok)
}

type fakeReadings struct {
	AQI, PM25, TemperatureC, HumidityPct, RainfallMm, SoilMoisturePct float64
	SatelliteAvailable                                                bool
}

type fakeRecommendation struct{ Condition, Action, Urgency string }

type fakePoint struct {
	Label                    string
	TemperatureC             float64
	PrecipitationProbability float64
	Synthesized              bool
}

type fakeAggregate struct {
	Region         struct{ Name string }
	Readings       fakeReadings
	Recommendation fakeRecommendation
	AirQuality     fakeRecommendation
	Forecast       []fakePoint
	DataFreshness  time.Time
	Stale          bool
	Missing        []string
}

func TestDefaultIntentsRender(t *testing.T) {
	r, err := NewRouter(DefaultIntents(), "")
	require.NoError(t, err)

	var st fakeAggregate
	st.Region.Name = "Darbhanga"
	st.Readings = fakeReadings{AQI: 162, PM25: 71.3, TemperatureC: 32, HumidityPct: 60, SoilMoisturePct: 45}
	st.Recommendation = fakeRecommendation{Condition: "soil moisture critically low", Action: "Irrigate now.", Urgency: "high"}
	st.AirQuality = fakeRecommendation{Condition: "air quality unhealthy", Action: "Limit outdoor activity."}
	st.Forecast = []fakePoint{
		{Label: "Wed 14 Oct", TemperatureC: 32, PrecipitationProbability: 10},
		{Label: "Thu 15 Oct", TemperatureC: 31.4, PrecipitationProbability: 12, Synthesized: true},
	}
	st.DataFreshness = time.Date(2026, 10, 14, 9, 30, 0, 0, time.UTC)
	st.Stale = true
	st.Missing = []string{"soil_moisture", "rainfall"}

	ans := r.Route("How is the AQI?", st)
	assert.Equal(t, "air_quality", ans.Intent)
	assert.Equal(t, "filter=air_quality", ans.Effect)
	assert.Contains(t, ans.Text, "AQI 162")
	assert.Contains(t, ans.Text, "PM2.5 71.3")

	ans = r.Route("Should I irrigate?", st)
	assert.Equal(t, "irrigation", ans.Intent)
	assert.Contains(t, ans.Text, "high urgency")
	assert.Contains(t, ans.Text, "soil moisture critically low")

	ans = r.Route("forecast please", st)
	assert.Contains(t, ans.Text, "Wed 14 Oct 32.0°C, 10% rain; Thu 15 Oct 31.4°C, 12% rain (estimate)")

	ans = r.Route("is the data fresh?", st)
	assert.Contains(t, ans.Text, "2026-10-14 09:30 UTC")
	assert.Contains(t, ans.Text, "may be out of date")
	assert.Contains(t, ans.Text, "missing: soil_moisture, rainfall")

	ans = r.Route("satellite?", st)
	assert.True(t, strings.HasSuffix(ans.Text, "not available."))

	for _, q := range []string{"rain?", "temperature?", "soil?", "any advice", "help"} {
		ans := r.Route(q, st)
		assert.NotEqual(t, "fallback", ans.Intent, q)
	}
}

func TestAirQualityWithoutAQI(t *testing.T) {
	r, err := NewRouter(DefaultIntents(), "")
	require.NoError(t, err)

	var st fakeAggregate
	st.Region.Name = "Darbhanga"
	st.AirQuality = fakeRecommendation{Condition: "air quality data unavailable", Action: "Check again later."}
	st.Missing = []string{"aqi", "pm25"}

	ans := r.Route("how is the air quality?", st)
	assert.Equal(t, "air_quality", ans.Intent)
	assert.Equal(t, "No air quality data is available for Darbhanga right now.", ans.Text)
	assert.NotContains(t, ans.Text, "AQI 0")

	st.Readings.AQI = 88
	st.Missing = []string{"pm25"}
	st.AirQuality = fakeRecommendation{Condition: "air quality acceptable", Action: "No precautions needed."}
	ans = r.Route("how is the air quality?", st)
	assert.Equal(t, "Air quality in Darbhanga: AQI 88. air quality acceptable. No precautions needed.", ans.Text)
}

func TestLoadIntents(t *testing.T) {
	path := filepath.Join(t.TempDir(), "intents.toml")
	content := `
fallback = "Ask me about the farm."

[[intent]]
name = "greeting"
triggers = ["namaste", "hello"]
template = "Namaste from {{.Region.Name}}"

[[intent]]
name = "filter"
triggers = ["show polluted"]
template = "Showing polluted regions"
effect = "filter=high_aqi"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	intents, fallback, err := LoadIntents(path)
	require.NoError(t, err)
	require.Len(t, intents, 2)
	assert.Equal(t, "Ask me about the farm.", fallback)
	assert.Equal(t, "filter=high_aqi", intents[1].Effect)

	r, err := NewRouter(intents, fallback)
	require.NoError(t, err)
	assert.Equal(t, []string{"greeting", "filter"}, r.Intents())
	assert.Equal(t, "Namaste from Nagpur", r.Route("Namaste!", newState("Nagpur", 0)).Text)
	assert.Equal(t, "Ask me about the farm.", r.Route("??", nil).Text)
}

func TestLoadIntentsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "intents.toml")
	require.NoError(t, os.WriteFile(path, []byte(`fallback = "x"`), 0o644))

	_, _, err := LoadIntents(path)
	assert.Error(t, err)
}
