package providers

import (
	"context"
	"errors"
	"net/url"
	"time"

	"github.com/i474232898/environmental-data-aggregation/internal/environment"
	"github.com/i474232898/environmental-data-aggregation/internal/region"
)

const openMeteoBaseURL = "https://api.open-meteo.com/v1"

// Open-Meteo returns local times without an offset when timezone=UTC.
const openMeteoTimeLayout = "2006-01-02T15:04"

// OpenMeteo reads topsoil moisture, current temperature and a daily
// forecast. It needs no API key.
type OpenMeteo struct {
	base
}

// NewOpenMeteo creates the Open-Meteo client.
func NewOpenMeteo(opts ...Option) *OpenMeteo {
	return &OpenMeteo{base: newBase("openmeteo", environment.MetricSetSoil, openMeteoBaseURL, opts)}
}

type omResponse struct {
	Current *struct {
		Time          string   `json:"time"`
		Temperature2m *float64 `json:"temperature_2m"`
	} `json:"current"`
	Hourly struct {
		Time         []string   `json:"time"`
		SoilMoisture []*float64 `json:"soil_moisture_0_to_1cm"`
	} `json:"hourly"`
	Daily struct {
		Time          []string   `json:"time"`
		TempMax       []*float64 `json:"temperature_2m_max"`
		PrecipProbMax []*float64 `json:"precipitation_probability_max"`
	} `json:"daily"`
}

func (p *OpenMeteo) Fetch(ctx context.Context, r region.Region) ([]environment.SourceReading, error) {
	if err := p.checkRegion(r); err != nil {
		return nil, err
	}

	values := url.Values{}
	values.Set("latitude", coord(r.Latitude))
	values.Set("longitude", coord(r.Longitude))
	values.Set("current", "temperature_2m")
	values.Set("hourly", "soil_moisture_0_to_1cm")
	values.Set("daily", "temperature_2m_max,precipitation_probability_max")
	values.Set("timezone", "UTC")
	values.Set("forecast_days", "7")

	var payload omResponse
	if err := p.getJSON(ctx, p.baseURL+"/forecast", values, &payload); err != nil {
		return nil, err
	}
	if len(payload.Hourly.Time) != len(payload.Hourly.SoilMoisture) {
		return nil, p.fail(environment.KindMalformed, errors.New("hourly series length mismatch"))
	}

	var readings []environment.SourceReading

	if ts, v, ok := nearest(p.now(), payload.Hourly.Time, payload.Hourly.SoilMoisture); ok {
		// m³/m³ to percent.
		readings = append(readings, p.reading(environment.MetricSoilMoisture, v*100, environment.UnitPercent, ts))
	}

	if cur := payload.Current; cur != nil && cur.Temperature2m != nil {
		ts, _ := time.Parse(openMeteoTimeLayout, cur.Time)
		readings = append(readings, p.reading(environment.MetricTemperature, *cur.Temperature2m, environment.UnitCelsius, ts))
	}

	for i, day := range payload.Daily.Time {
		ts, err := time.Parse(time.DateOnly, day)
		if err != nil {
			continue
		}
		if i < len(payload.Daily.TempMax) && payload.Daily.TempMax[i] != nil {
			readings = append(readings, p.reading(environment.MetricForecastTemperature, *payload.Daily.TempMax[i], environment.UnitCelsius, ts))
		}
		if i < len(payload.Daily.PrecipProbMax) && payload.Daily.PrecipProbMax[i] != nil {
			readings = append(readings, p.reading(environment.MetricPrecipProbability, *payload.Daily.PrecipProbMax[i], environment.UnitPercent, ts))
		}
	}

	if len(readings) == 0 {
		return nil, p.fail(environment.KindMalformed, errors.New("response carried no usable values"))
	}
	return readings, nil
}

// nearest picks the non-null hourly value closest to now.
func nearest(now time.Time, times []string, values []*float64) (time.Time, float64, bool) {
	var (
		bestTS   time.Time
		bestVal  float64
		bestDist time.Duration = -1
	)
	for i, raw := range times {
		if values[i] == nil {
			continue
		}
		ts, err := time.Parse(openMeteoTimeLayout, raw)
		if err != nil {
			continue
		}
		dist := now.Sub(ts).Abs()
		if bestDist < 0 || dist < bestDist {
			bestTS, bestVal, bestDist = ts, *values[i], dist
		}
	}
	return bestTS, bestVal, bestDist >= 0
}
