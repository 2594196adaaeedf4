package providers

import (
	"context"
	"errors"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/i474232898/environmental-data-aggregation/internal/environment"
	"github.com/i474232898/environmental-data-aggregation/internal/region"
)

const airQualityBaseURL = "https://air-quality-api.open-meteo.com/v1"

// AirQuality reads the US AQI and PM2.5 from the Open-Meteo air-quality API.
type AirQuality struct {
	base
	rest *resty.Client
}

// NewAirQuality creates the air-quality client.
func NewAirQuality(opts ...Option) *AirQuality {
	b := newBase("openmeteo-air", environment.MetricSetAirQuality, airQualityBaseURL, opts)
	return &AirQuality{
		base: b,
		rest: resty.NewWithClient(b.client).
			SetBaseURL(b.baseURL).
			SetHeader("Accept", "application/json"),
	}
}

func (p *AirQuality) Fetch(ctx context.Context, r region.Region) ([]environment.SourceReading, error) {
	if err := p.checkRegion(r); err != nil {
		return nil, err
	}

	req := p.rest.R().SetQueryParams(map[string]string{
		"latitude":  coord(r.Latitude),
		"longitude": coord(r.Longitude),
		"current":   "us_aqi,pm2_5",
		"timezone":  "UTC",
	})
	resp, err := p.restyGet(ctx, req, "/air-quality")
	if err != nil {
		return nil, err
	}

	var payload struct {
		Current *struct {
			Time  string   `json:"time"`
			AQI   *float64 `json:"us_aqi"`
			PM2_5 *float64 `json:"pm2_5"`
		} `json:"current"`
	}
	if err := p.decode(resp.Body(), &payload); err != nil {
		return nil, err
	}
	cur := payload.Current
	if cur == nil || (cur.AQI == nil && cur.PM2_5 == nil) {
		return nil, p.fail(environment.KindMalformed, errors.New("no air-quality values in response"))
	}

	ts, _ := time.Parse(openMeteoTimeLayout, cur.Time)

	var readings []environment.SourceReading
	if cur.AQI != nil {
		readings = append(readings, p.reading(environment.MetricAQI, *cur.AQI, environment.UnitAQI, ts))
	}
	if cur.PM2_5 != nil {
		readings = append(readings, p.reading(environment.MetricPM25, *cur.PM2_5, environment.UnitMicrograms, ts))
	}
	return readings, nil
}
