package environment

import (
	"time"

	"github.com/i474232898/environmental-data-aggregation/internal/advisor"
	"github.com/i474232898/environmental-data-aggregation/internal/forecast"
	"github.com/i474232898/environmental-data-aggregation/internal/region"
)

// Metric names a single measured quantity.
type Metric string

const (
	MetricTemperature         Metric = "temperature"
	MetricHumidity            Metric = "humidity"
	MetricRainfall            Metric = "rainfall"
	MetricSoilMoisture        Metric = "soil_moisture"
	MetricAQI                 Metric = "aqi"
	MetricPM25                Metric = "pm25"
	MetricSatelliteAvailable  Metric = "satellite_available"
	MetricForecastTemperature Metric = "forecast_temperature"
	MetricPrecipProbability   Metric = "precipitation_probability"
)

// CurrentMetrics are the metrics that make up CurrentReadings, in display order.
var CurrentMetrics = []Metric{
	MetricTemperature,
	MetricHumidity,
	MetricRainfall,
	MetricSoilMoisture,
	MetricAQI,
	MetricPM25,
	MetricSatelliteAvailable,
}

// MetricSet groups the metrics one provider returns; it is the second half
// of a cache key.
type MetricSet string

const (
	MetricSetWeather          MetricSet = "weather"
	MetricSetWeatherSecondary MetricSet = "weather_secondary"
	MetricSetSoil             MetricSet = "soil"
	MetricSetAirQuality       MetricSet = "air_quality"
	MetricSetSatellite        MetricSet = "satellite"

	// MetricSetForecast holds the synthesized forecast derived from the others.
	MetricSetForecast MetricSet = "forecast"
)

// Units.
const (
	UnitCelsius    = "C"
	UnitPercent    = "%"
	UnitMillimeter = "mm"
	UnitAQI        = "us_aqi"
	UnitMicrograms = "ug/m3"
	UnitBool       = "bool"
)

// SourceReading is one normalized value from a provider. Never mutated.
type SourceReading struct {
	Provider  string    `json:"provider"`
	Metric    Metric    `json:"metric"`
	Value     float64   `json:"value"`
	Unit      string    `json:"unit"`
	Timestamp time.Time `json:"timestamp"` // always UTC
	Observed  bool      `json:"observed"`
	Note      string    `json:"note,omitempty"`
}

// NewReading builds an observed reading.
func NewReading(provider string, metric Metric, value float64, unit string, ts time.Time) SourceReading {
	return SourceReading{
		Provider:  provider,
		Metric:    metric,
		Value:     value,
		Unit:      unit,
		Timestamp: ts.UTC(),
		Observed:  true,
	}
}

// Payload is what the cache stores per (region, metric set). Provider sets
// fill Readings; the forecast set fills Forecast.
type Payload struct {
	Readings []SourceReading  `json:"readings,omitempty"`
	Forecast []forecast.Point `json:"forecast,omitempty"`
	Basis    *ForecastBasis   `json:"basis,omitempty"`
}

// ForecastBasis records what a synthesized forecast was built from.
type ForecastBasis struct {
	Observed []forecast.Point  `json:"observed,omitempty"`
	Baseline forecast.Baseline `json:"baseline"`
}

// Equal reports whether b was built from the same inputs as other. A nil
// basis matches nothing.
func (b *ForecastBasis) Equal(other ForecastBasis) bool {
	if b == nil || b.Baseline != other.Baseline || len(b.Observed) != len(other.Observed) {
		return false
	}
	for i, p := range b.Observed {
		q := other.Observed[i]
		if !p.Date.Equal(q.Date) || p.TemperatureC != q.TemperatureC || p.PrecipitationProbability != q.PrecipitationProbability {
			return false
		}
	}
	return true
}

// ProviderStatus reports how one metric set contributed to a state.
type ProviderStatus struct {
	Provider  string    `json:"provider"`
	MetricSet MetricSet `json:"metricSet"`
	FetchedAt time.Time `json:"fetchedAt,omitempty"`
	Stale     bool      `json:"stale"`
	Error     string    `json:"error,omitempty"`
	ErrorKind ErrorKind `json:"errorKind,omitempty"`
}

// AggregatedState is the merged view of a region served to UI and chat layers.
type AggregatedState struct {
	Region         region.Region           `json:"region"`
	Readings       advisor.CurrentReadings `json:"readings"`
	Forecast       []forecast.Point        `json:"forecast"`
	Recommendation advisor.Recommendation  `json:"recommendation"`
	AirQuality     advisor.Recommendation  `json:"airQuality"`

	// Missing lists current metrics no provider supplied; their readings are
	// defaults, not observations.
	Missing   []Metric         `json:"missing,omitempty"`
	Providers []ProviderStatus `json:"providers"`

	// DataFreshness is the fetch time of the oldest contributing payload.
	DataFreshness time.Time `json:"dataFreshness"`
	Stale         bool      `json:"stale"`
}
