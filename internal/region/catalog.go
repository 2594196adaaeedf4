package region

import (
	"context"
	"fmt"
	"math"
	"os"
	"sort"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// matchTolerance is how close (in degrees) a coordinate lookup must be to a
// catalog entry to resolve to it.
const matchTolerance = 0.05

// Geocoder resolves free-form place names that are not in the catalog.
type Geocoder interface {
	Geocode(ctx context.Context, name string) (lat, lon float64, err error)
}

// Catalog is the static set of known regions.
type Catalog struct {
	regions  []Region
	byName   map[string]Region
	geocoder Geocoder
}

type catalogFile struct {
	Regions []Region `toml:"region"`
}

// NewCatalog validates the regions and indexes them by name and ID.
func NewCatalog(regions []Region) (*Catalog, error) {
	c := &Catalog{byName: make(map[string]Region, len(regions)*2)}
	for _, r := range regions {
		if r.ID == "" {
			nr, err := New(r.Name, r.Latitude, r.Longitude)
			if err != nil {
				return nil, fmt.Errorf("region %q: %w", r.Name, err)
			}
			r = nr
		} else if err := r.Validate(); err != nil {
			return nil, fmt.Errorf("region %q: %w", r.ID, err)
		}

		for _, k := range []string{normalize(r.Name), normalize(r.ID)} {
			if existing, ok := c.byName[k]; ok && existing.ID != r.ID {
				return nil, fmt.Errorf("duplicate region name %q", k)
			}
			c.byName[k] = r
		}
		c.regions = append(c.regions, r)
	}

	sort.Slice(c.regions, func(i, j int) bool { return c.regions[i].Name < c.regions[j].Name })
	return c, nil
}

// LoadCatalog reads a TOML file of [[region]] tables.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read regions file: %w", err)
	}

	var f catalogFile
	if err := toml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse regions file: %w", err)
	}
	if len(f.Regions) == 0 {
		return nil, fmt.Errorf("regions file %s defines no regions", path)
	}
	return NewCatalog(f.Regions)
}

// DefaultCatalog returns the built-in regions.
func DefaultCatalog() *Catalog {
	c, err := NewCatalog(defaultRegions)
	if err != nil {
		panic(err)
	}
	return c
}

var defaultRegions = []Region{
	{ID: "darbhanga", Name: "Darbhanga", Latitude: 26.15, Longitude: 85.90},
	{ID: "delhi", Name: "Delhi", Latitude: 28.6139, Longitude: 77.2090},
	{ID: "bengaluru", Name: "Bengaluru", Latitude: 12.9716, Longitude: 77.5946},
	{ID: "pune", Name: "Pune", Latitude: 18.5204, Longitude: 73.8567},
	{ID: "ludhiana", Name: "Ludhiana", Latitude: 30.9010, Longitude: 75.8573},
	{ID: "nagpur", Name: "Nagpur", Latitude: 21.1458, Longitude: 79.0882},
}

// WithGeocoder enables lookups of names outside the catalog.
func (c *Catalog) WithGeocoder(g Geocoder) *Catalog {
	c.geocoder = g
	return c
}

// All returns the catalog regions sorted by name.
func (c *Catalog) All() []Region {
	out := make([]Region, len(c.regions))
	copy(out, c.regions)
	return out
}

// ByName finds a region by case-insensitive name or ID.
func (c *Catalog) ByName(name string) (Region, error) {
	if r, ok := c.byName[normalize(name)]; ok {
		return r, nil
	}
	return Region{}, fmt.Errorf("%w: %q", ErrUnknownRegion, name)
}

// ByCoordinates returns the nearest catalog region within tolerance, or an
// ad-hoc region keyed by the coordinates.
func (c *Catalog) ByCoordinates(lat, lon float64) (Region, error) {
	if err := ValidateCoordinates(lat, lon); err != nil {
		return Region{}, err
	}

	best, bestDist := Region{}, math.MaxFloat64
	for _, r := range c.regions {
		d := math.Max(math.Abs(r.Latitude-lat), math.Abs(r.Longitude-lon))
		if d < bestDist {
			best, bestDist = r, d
		}
	}
	if bestDist <= matchTolerance {
		return best, nil
	}

	id := CoordinateID(lat, lon)
	return Region{ID: id, Name: id, Latitude: lat, Longitude: lon}, nil
}

// Resolve looks a name up in the catalog and falls back to the geocoder.
func (c *Catalog) Resolve(ctx context.Context, name string) (Region, error) {
	r, err := c.ByName(name)
	if err == nil || c.geocoder == nil {
		return r, err
	}

	lat, lon, gerr := c.geocoder.Geocode(ctx, name)
	if gerr != nil {
		return Region{}, fmt.Errorf("%w: %q: %v", ErrUnknownRegion, name, gerr)
	}
	return New(name, lat, lon)
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
