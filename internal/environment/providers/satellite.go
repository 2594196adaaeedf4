package providers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/i474232898/environmental-data-aggregation/internal/environment"
	"github.com/i474232898/environmental-data-aggregation/internal/region"
)

const nasaBaseURL = "https://api.nasa.gov"

// Satellite checks whether Landsat imagery is available for a region using
// the NASA Earth assets endpoint.
type Satellite struct {
	base
	apiKey string
	rest   *resty.Client
}

// NewSatellite creates the NASA imagery client.
func NewSatellite(apiKey string, opts ...Option) *Satellite {
	b := newBase("nasa-earth", environment.MetricSetSatellite, nasaBaseURL, opts)
	return &Satellite{
		base:   b,
		apiKey: apiKey,
		rest: resty.NewWithClient(b.client).
			SetBaseURL(b.baseURL).
			SetHeader("Accept", "application/json"),
	}
}

// Fetch reports satellite_available as 1 when an asset exists, 0 when the
// service has none for the location.
func (p *Satellite) Fetch(ctx context.Context, r region.Region) ([]environment.SourceReading, error) {
	if err := p.checkRegion(r); err != nil {
		return nil, err
	}
	if p.apiKey == "" {
		return nil, p.fail(environment.KindUnavailable, errors.New("api key is not configured"))
	}

	now := p.now().UTC()
	req := p.rest.R().SetQueryParams(map[string]string{
		"lat":     coord(r.Latitude),
		"lon":     coord(r.Longitude),
		"date":    now.Format(time.DateOnly),
		"dim":     "0.15",
		"api_key": p.apiKey,
	})
	resp, err := p.restyGet(ctx, req, "/planetary/earth/assets", http.StatusNotFound)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode() == http.StatusNotFound {
		return []environment.SourceReading{
			p.reading(environment.MetricSatelliteAvailable, 0, environment.UnitBool, now),
		}, nil
	}

	var asset struct {
		ID   string `json:"id"`
		URL  string `json:"url"`
		Date string `json:"date"`
	}
	if err := p.decode(resp.Body(), &asset); err != nil {
		return nil, err
	}

	available := 0.0
	if asset.ID != "" || asset.URL != "" {
		available = 1
	}
	reading := p.reading(environment.MetricSatelliteAvailable, available, environment.UnitBool, now)
	if ts, err := time.Parse("2006-01-02T15:04:05.999999", asset.Date); err == nil {
		reading.Note = "latest scene " + ts.Format(time.DateOnly)
	}
	return []environment.SourceReading{reading}, nil
}
