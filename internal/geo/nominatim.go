package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/time/rate"
)

// Geocoder turns a place name into a location.
type Geocoder interface {
	Geocode(ctx context.Context, name string) (Location, error)
}

// NominatimOptions configures a Nominatim client.
type NominatimOptions struct {
	BaseURL   string
	UserAgent string
	// RPS bounds outgoing requests. Nominatim's usage policy allows one
	// request per second.
	RPS       float64
	CacheSize int
	CacheTTL  time.Duration
	Client    *http.Client
}

// Nominatim geocodes place names against an OpenStreetMap Nominatim
// instance. Results are cached by normalized name.
type Nominatim struct {
	base    string
	ua      string
	client  *http.Client
	limiter *rate.Limiter
	cache   *expirable.LRU[string, Location]
}

// NewNominatim creates a rate-limited, caching geocoder.
func NewNominatim(opts NominatimOptions) *Nominatim {
	if opts.RPS <= 0 {
		opts.RPS = 1
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = 256
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 24 * time.Hour
	}
	if opts.Client == nil {
		opts.Client = &http.Client{Timeout: 15 * time.Second}
	}
	return &Nominatim{
		base:    strings.TrimRight(opts.BaseURL, "/"),
		ua:      opts.UserAgent,
		client:  opts.Client,
		limiter: rate.NewLimiter(rate.Limit(opts.RPS), 1),
		cache:   expirable.NewLRU[string, Location](opts.CacheSize, nil, opts.CacheTTL),
	}
}

type nominatimResult struct {
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	DisplayName string `json:"display_name"`
}

// Geocode returns the best match for name. ErrGeocodeNotFound is returned
// when there is none; transport failures are wrapped with ErrLookup.
func (n *Nominatim) Geocode(ctx context.Context, name string) (Location, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		return Location{}, fmt.Errorf("%w: empty name", ErrGeocodeNotFound)
	}
	if loc, ok := n.cache.Get(key); ok {
		return loc, nil
	}

	if err := n.limiter.Wait(ctx); err != nil {
		return Location{}, fmt.Errorf("%w: %v", ErrLookup, err)
	}

	q := url.Values{}
	q.Set("q", strings.TrimSpace(name))
	q.Set("format", "json")
	q.Set("limit", "1")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, n.base+"/search?"+q.Encode(), nil)
	if err != nil {
		return Location{}, fmt.Errorf("geo: nominatim: build request: %w", err)
	}
	req.Header.Set("User-Agent", n.ua)
	req.Header.Set("Accept", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return Location{}, fmt.Errorf("%w: nominatim: %v", ErrLookup, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Location{}, fmt.Errorf("%w: nominatim: status %d", ErrLookup, resp.StatusCode)
	}

	var results []nominatimResult
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return Location{}, fmt.Errorf("%w: nominatim: decode: %v", ErrLookup, err)
	}
	if len(results) == 0 {
		return Location{}, fmt.Errorf("%w: %q", ErrGeocodeNotFound, name)
	}

	lat, errLat := strconv.ParseFloat(results[0].Lat, 64)
	lon, errLon := strconv.ParseFloat(results[0].Lon, 64)
	p := Point{Lat: lat, Lon: lon}
	if errLat != nil || errLon != nil || !p.Valid() {
		return Location{}, fmt.Errorf("%w: %q has no usable coordinates", ErrGeocodeNotFound, name)
	}

	loc := Location{Point: p, Label: strings.TrimSpace(name), Source: SourcePlaceName}
	n.cache.Add(key, loc)
	return loc, nil
}
