package region

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"unicode"
)

var (
	// ErrInvalidRegion is returned for missing, zero or out-of-range coordinates.
	ErrInvalidRegion = errors.New("invalid region")

	// ErrUnknownRegion is returned when a name cannot be resolved.
	ErrUnknownRegion = errors.New("unknown region")
)

// Region is a named geographic point. Values are immutable once created.
type Region struct {
	ID        string  `json:"id" toml:"id"`
	Name      string  `json:"name" toml:"name"`
	Latitude  float64 `json:"latitude" toml:"latitude"`
	Longitude float64 `json:"longitude" toml:"longitude"`
}

// New creates a region, deriving its ID from the name (or the coordinates
// when the name is empty).
func New(name string, lat, lon float64) (Region, error) {
	r := Region{
		Name:      strings.TrimSpace(name),
		Latitude:  lat,
		Longitude: lon,
	}
	if err := r.Validate(); err != nil {
		return Region{}, err
	}

	r.ID = slug(r.Name)
	if r.ID == "" {
		r.ID = CoordinateID(lat, lon)
		r.Name = r.ID
	}
	return r, nil
}

// Validate checks the coordinates. The (0,0) point is treated as unset.
func (r Region) Validate() error {
	return ValidateCoordinates(r.Latitude, r.Longitude)
}

// Key returns the canonical cache key component for this region.
func (r Region) Key() string {
	if r.ID != "" {
		return r.ID
	}
	return CoordinateID(r.Latitude, r.Longitude)
}

func (r Region) String() string {
	return fmt.Sprintf("%s (%.4f,%.4f)", r.Name, r.Latitude, r.Longitude)
}

// ValidateCoordinates rejects NaN, infinite, out-of-range and (0,0) coordinates.
func ValidateCoordinates(lat, lon float64) error {
	switch {
	case math.IsNaN(lat) || math.IsNaN(lon) || math.IsInf(lat, 0) || math.IsInf(lon, 0):
		return fmt.Errorf("%w: coordinates are not finite", ErrInvalidRegion)
	case lat == 0 && lon == 0:
		return fmt.Errorf("%w: coordinates are unset", ErrInvalidRegion)
	case lat < -90 || lat > 90:
		return fmt.Errorf("%w: latitude %.4f out of range", ErrInvalidRegion, lat)
	case lon < -180 || lon > 180:
		return fmt.Errorf("%w: longitude %.4f out of range", ErrInvalidRegion, lon)
	}
	return nil
}

// CoordinateID is the ID used for regions that are not in the catalog.
func CoordinateID(lat, lon float64) string {
	return fmt.Sprintf("%.4f,%.4f", lat, lon)
}

func slug(name string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(name) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			dash = false
		case b.Len() > 0 && !dash:
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
