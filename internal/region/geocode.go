package region

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/kelvins/geocoder"
)

// geocoderMu guards the package-level API key of the geocoder library.
var geocoderMu sync.Mutex

// GoogleGeocoder resolves place names through the Google geocoding API.
type GoogleGeocoder struct {
	apiKey string
}

// NewGoogleGeocoder returns a geocoder, or nil when no key is configured.
func NewGoogleGeocoder(apiKey string) *GoogleGeocoder {
	if apiKey == "" {
		return nil
	}
	return &GoogleGeocoder{apiKey: apiKey}
}

// Geocode implements Geocoder.
func (g *GoogleGeocoder) Geocode(ctx context.Context, name string) (float64, float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, 0, err
	}
	if name == "" {
		return 0, 0, errors.New("empty place name")
	}

	geocoderMu.Lock()
	defer geocoderMu.Unlock()

	geocoder.ApiKey = g.apiKey
	loc, err := geocoder.Geocoding(geocoder.Address{City: name})
	if err != nil {
		return 0, 0, fmt.Errorf("geocode %q: %w", name, err)
	}
	return loc.Latitude, loc.Longitude, nil
}
