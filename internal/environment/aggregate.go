package environment

import (
	"sort"
	"time"

	"github.com/i474232898/environmental-data-aggregation/internal/advisor"
	"github.com/i474232898/environmental-data-aggregation/internal/forecast"
)

// AggregateReadings merges readings from every provider into one
// CurrentReadings. Numeric metrics are averaged across providers; a metric
// nobody reported takes its value from defaults and is returned in missing.
func AggregateReadings(readings []SourceReading, defaults map[Metric]float64) (advisor.CurrentReadings, []Metric) {
	sums := make(map[Metric]float64)
	counts := make(map[Metric]int)
	for _, r := range readings {
		sums[r.Metric] += r.Value
		counts[r.Metric]++
	}

	value := func(m Metric) float64 {
		if counts[m] == 0 {
			return defaults[m]
		}
		return sums[m] / float64(counts[m])
	}

	var missing []Metric
	for _, m := range CurrentMetrics {
		if counts[m] == 0 {
			missing = append(missing, m)
		}
	}

	return advisor.CurrentReadings{
		SoilMoisturePct:    value(MetricSoilMoisture),
		TemperatureC:       value(MetricTemperature),
		RainfallMm:         value(MetricRainfall),
		HumidityPct:        value(MetricHumidity),
		AQI:                value(MetricAQI),
		PM25:               value(MetricPM25),
		SatelliteAvailable: value(MetricSatelliteAvailable) >= 0.5,
	}, missing
}

// ObservedForecast turns provider forecast readings into daily points, one
// per calendar day (UTC) starting today. The earliest reading of each day
// wins.
func ObservedForecast(readings []SourceReading, now time.Time) []forecast.Point {
	var series []SourceReading
	for _, r := range readings {
		if r.Metric == MetricForecastTemperature || r.Metric == MetricPrecipProbability {
			series = append(series, r)
		}
	}
	sort.SliceStable(series, func(i, j int) bool {
		return series[i].Timestamp.Before(series[j].Timestamp)
	})

	today := dayOf(now)
	type day struct {
		point   forecast.Point
		hasTemp bool
		hasPop  bool
	}
	var (
		order []time.Time
		days  = make(map[time.Time]*day)
	)
	for _, r := range series {
		d := dayOf(r.Timestamp)
		if d.Before(today) {
			continue
		}
		entry, ok := days[d]
		if !ok {
			entry = &day{point: forecast.Point{Date: d}}
			days[d] = entry
			order = append(order, d)
		}
		switch {
		case r.Metric == MetricForecastTemperature && !entry.hasTemp:
			entry.point.TemperatureC = r.Value
			entry.hasTemp = true
		case r.Metric == MetricPrecipProbability && !entry.hasPop:
			entry.point.PrecipitationProbability = r.Value
			entry.hasPop = true
		}
	}

	points := make([]forecast.Point, 0, len(order))
	for _, d := range order {
		// A day without a temperature is not a usable observation.
		if e := days[d]; e.hasTemp {
			points = append(points, e.point)
		}
	}
	return points
}

func dayOf(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
