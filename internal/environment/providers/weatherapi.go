package providers

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/i474232898/environmental-data-aggregation/internal/environment"
	"github.com/i474232898/environmental-data-aggregation/internal/region"
)

const weatherAPIBaseURL = "https://api.weatherapi.com/v1"

// WeatherAPI is the alternate weather source (WeatherAPI.com).
type WeatherAPI struct {
	base
	apiKey string
}

// NewWeatherAPI creates the WeatherAPI.com client.
func NewWeatherAPI(apiKey string, opts ...Option) *WeatherAPI {
	return &WeatherAPI{
		base:   newBase("weatherapi", environment.MetricSetWeatherSecondary, weatherAPIBaseURL, opts),
		apiKey: apiKey,
	}
}

func (p *WeatherAPI) Fetch(ctx context.Context, r region.Region) ([]environment.SourceReading, error) {
	if err := p.checkRegion(r); err != nil {
		return nil, err
	}
	if p.apiKey == "" {
		return nil, p.fail(environment.KindUnavailable, errors.New("api key is not configured"))
	}

	values := url.Values{}
	values.Set("key", p.apiKey)
	// WeatherAPI accepts "lat,lon" in q.
	values.Set("q", fmt.Sprintf("%s,%s", coord(r.Latitude), coord(r.Longitude)))

	var payload struct {
		Current *struct {
			LastUpdatedEpoch int64   `json:"last_updated_epoch"`
			TempC            float64 `json:"temp_c"`
			Humidity         float64 `json:"humidity"`
			PrecipMm         float64 `json:"precip_mm"`
			Condition        struct {
				Text string `json:"text"`
			} `json:"condition"`
		} `json:"current"`
	}
	if err := p.getJSON(ctx, p.baseURL+"/current.json", values, &payload); err != nil {
		return nil, err
	}
	if payload.Current == nil {
		return nil, p.fail(environment.KindMalformed, errors.New(`missing "current" object`))
	}

	var ts time.Time
	if payload.Current.LastUpdatedEpoch > 0 {
		ts = time.Unix(payload.Current.LastUpdatedEpoch, 0)
	}

	temp := p.reading(environment.MetricTemperature, payload.Current.TempC, environment.UnitCelsius, ts)
	temp.Note = payload.Current.Condition.Text
	return []environment.SourceReading{
		temp,
		p.reading(environment.MetricHumidity, payload.Current.Humidity, environment.UnitPercent, ts),
		p.reading(environment.MetricRainfall, payload.Current.PrecipMm, environment.UnitMillimeter, ts),
	}, nil
}
