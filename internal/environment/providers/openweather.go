package providers

import (
	"context"
	"errors"
	"net/url"
	"time"

	"github.com/i474232898/environmental-data-aggregation/internal/environment"
	"github.com/i474232898/environmental-data-aggregation/internal/region"
)

const openWeatherBaseURL = "https://api.openweathermap.org/data/2.5"

// OpenWeather reads current conditions and the 5-day/3-hour forecast from
// OpenWeatherMap.
type OpenWeather struct {
	base
	apiKey string
}

// NewOpenWeather creates the OpenWeatherMap client.
func NewOpenWeather(apiKey string, opts ...Option) *OpenWeather {
	return &OpenWeather{
		base:   newBase("openweathermap", environment.MetricSetWeather, openWeatherBaseURL, opts),
		apiKey: apiKey,
	}
}

type owCurrent struct {
	Dt   int64 `json:"dt"`
	Main *struct {
		Temp     float64 `json:"temp"`
		Humidity float64 `json:"humidity"`
	} `json:"main"`
	Rain struct {
		OneH   float64 `json:"1h"`
		ThreeH float64 `json:"3h"`
	} `json:"rain"`
	Weather []struct {
		Main        string `json:"main"`
		Description string `json:"description"`
	} `json:"weather"`
}

type owForecast struct {
	List []struct {
		Dt   int64 `json:"dt"`
		Main struct {
			Temp float64 `json:"temp"`
		} `json:"main"`
		Pop float64 `json:"pop"`
	} `json:"list"`
}

// Fetch returns temperature, humidity and rainfall plus forecast readings.
// A failed forecast call degrades to current readings only.
func (p *OpenWeather) Fetch(ctx context.Context, r region.Region) ([]environment.SourceReading, error) {
	if err := p.checkRegion(r); err != nil {
		return nil, err
	}
	if p.apiKey == "" {
		return nil, p.fail(environment.KindUnavailable, errors.New("api key is not configured"))
	}

	var cur owCurrent
	if err := p.getJSON(ctx, p.baseURL+"/weather", p.query(r), &cur); err != nil {
		return nil, err
	}
	if cur.Main == nil {
		return nil, p.fail(environment.KindMalformed, errors.New(`missing "main" object`))
	}

	var ts time.Time
	if cur.Dt > 0 {
		ts = time.Unix(cur.Dt, 0)
	}

	rain := cur.Rain.OneH
	if rain == 0 {
		rain = cur.Rain.ThreeH
	}

	temp := p.reading(environment.MetricTemperature, cur.Main.Temp, environment.UnitCelsius, ts)
	if len(cur.Weather) > 0 {
		temp.Note = cur.Weather[0].Description
	}
	readings := []environment.SourceReading{
		temp,
		p.reading(environment.MetricHumidity, cur.Main.Humidity, environment.UnitPercent, ts),
		p.reading(environment.MetricRainfall, rain, environment.UnitMillimeter, ts),
	}

	fc, err := p.forecast(ctx, r)
	if err != nil {
		p.logger.Warn().Err(err).Str("region", r.Key()).Msg("forecast unavailable; returning current readings only")
		return readings, nil
	}
	return append(readings, fc...), nil
}

func (p *OpenWeather) forecast(ctx context.Context, r region.Region) ([]environment.SourceReading, error) {
	var fc owForecast
	if err := p.getJSON(ctx, p.baseURL+"/forecast", p.query(r), &fc); err != nil {
		return nil, err
	}

	out := make([]environment.SourceReading, 0, 2*len(fc.List))
	for _, item := range fc.List {
		if item.Dt <= 0 {
			continue
		}
		ts := time.Unix(item.Dt, 0)
		out = append(out,
			p.reading(environment.MetricForecastTemperature, item.Main.Temp, environment.UnitCelsius, ts),
			p.reading(environment.MetricPrecipProbability, item.Pop*100, environment.UnitPercent, ts),
		)
	}
	return out, nil
}

func (p *OpenWeather) query(r region.Region) url.Values {
	values := url.Values{}
	values.Set("appid", p.apiKey)
	values.Set("units", "metric")
	values.Set("lat", coord(r.Latitude))
	values.Set("lon", coord(r.Longitude))
	return values
}
