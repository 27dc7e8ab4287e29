package geo

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/kitchencompanion/kitchencompanion/internal/config"
	"github.com/kitchencompanion/kitchencompanion/internal/logging"
)

// Defaults used when the resolver is configured with zero values.
const (
	DefaultRadiusMeters = 3000
	DefaultCap          = 5
	UnnamedPlace        = "Unnamed Market"
)

// Resolver sets user locations and ranks nearby places.
type Resolver struct {
	geocoder Geocoder
	ip       IPLocator
	places   PlaceSearcher
	radius   int
	cap      int
	log      *zap.Logger
}

// Options tunes a Resolver.
type Options struct {
	RadiusMeters int
	Cap          int
	Logger       *zap.Logger
}

// NewResolver wires a resolver from its collaborators. Any collaborator may
// be nil; the operations that need it then fail with their lookup error.
func NewResolver(g Geocoder, ip IPLocator, ps PlaceSearcher, opts Options) *Resolver {
	if opts.RadiusMeters <= 0 {
		opts.RadiusMeters = DefaultRadiusMeters
	}
	if opts.Cap <= 0 {
		opts.Cap = DefaultCap
	}
	return &Resolver{
		geocoder: g,
		ip:       ip,
		places:   ps,
		radius:   opts.RadiusMeters,
		cap:      opts.Cap,
		log:      logging.OrNop(opts.Logger).Named("geo"),
	}
}

// NewFromConfig builds a resolver on Nominatim, ipapi and Overpass.
func NewFromConfig(cfg config.GeoConfig, log *zap.Logger) *Resolver {
	nom := NewNominatim(NominatimOptions{
		BaseURL:   cfg.NominatimURL,
		UserAgent: cfg.UserAgent,
		RPS:       cfg.GeocodeRPS,
		CacheSize: cfg.CacheSize,
		CacheTTL:  cfg.CacheTTL.Duration,
	})
	ip := NewIPAPI(cfg.IPAPIURL, cfg.UserAgent, nil)
	op := NewOverpass(cfg.OverpassURL, cfg.UserAgent, nil)
	if cfg.Timeout.Duration > 0 {
		op.client.Timeout = cfg.Timeout.Duration
		nom.client.Timeout = cfg.Timeout.Duration
	}
	return NewResolver(nom, ip, op, Options{
		RadiusMeters: cfg.DefaultRadiusM,
		Cap:          cfg.ResultCap,
		Logger:       log,
	})
}

// DefaultRadius returns the radius used when callers pass zero.
func (r *Resolver) DefaultRadius() int { return r.radius }

// SetByCoordinates overwrites u with an explicit point.
func (r *Resolver) SetByCoordinates(u *UserLocation, lat, lon float64) (Location, error) {
	p := Point{Lat: lat, Lon: lon}
	if !p.Valid() {
		return Location{}, fmt.Errorf("%w: %v", ErrInvalidCoordinates, p)
	}
	loc := Location{Point: p, Source: SourceCoordinates}
	u.Set(loc)
	r.log.Debug("location set", zap.String("source", string(loc.Source)))
	return *u.Get(), nil
}

// SetByPlaceName geocodes name and overwrites u. ErrGeocodeNotFound is
// returned when the name has no match; u is left untouched on failure.
func (r *Resolver) SetByPlaceName(ctx context.Context, u *UserLocation, name string) (Location, error) {
	if r.geocoder == nil {
		return Location{}, fmt.Errorf("%w: no geocoder configured", ErrLookup)
	}
	loc, err := r.geocoder.Geocode(ctx, name)
	if err != nil {
		r.log.Warn("geocode failed", zap.String("name", name), zap.Error(err))
		return Location{}, err
	}
	loc.Source = SourcePlaceName
	u.Set(loc)
	return *u.Get(), nil
}

// SetByIPApproximation overwrites u with the IP-derived location.
func (r *Resolver) SetByIPApproximation(ctx context.Context, u *UserLocation) (Location, error) {
	if r.ip == nil {
		return Location{}, fmt.Errorf("%w: no locator configured", ErrIPLookup)
	}
	loc, err := r.ip.Locate(ctx)
	if err != nil {
		r.log.Warn("ip lookup failed", zap.Error(err))
		if !errors.Is(err, ErrIPLookup) {
			err = fmt.Errorf("%w: %v", ErrIPLookup, err)
		}
		return Location{}, err
	}
	loc.Source = SourceIP
	u.Set(loc)
	return *u.Get(), nil
}

// FindNearby ranks places of category within radiusMeters of origin,
// nearest first, capped. A nil origin fails with ErrNoLocation. Zero
// radius and empty category use the defaults.
func (r *Resolver) FindNearby(ctx context.Context, origin *Location, radiusMeters int, category string) ([]Place, error) {
	if origin == nil {
		return nil, ErrNoLocation
	}
	if radiusMeters <= 0 {
		radiusMeters = r.radius
	}
	if strings.TrimSpace(category) == "" {
		category = CategoryGrocery
	}
	if !KnownCategory(category) {
		return nil, fmt.Errorf("%w %q", ErrUnknownCategory, category)
	}
	if r.places == nil {
		return nil, fmt.Errorf("%w: no place search configured", ErrLookup)
	}

	cands, err := r.places.Search(ctx, origin.Point, radiusMeters, category)
	if err != nil {
		r.log.Warn("place search failed", zap.String("category", category), zap.Error(err))
		return nil, err
	}
	return Rank(origin.Point, cands, r.cap), nil
}

// FindNearbyHere is FindNearby at u's current location.
func (r *Resolver) FindNearbyHere(ctx context.Context, u *UserLocation, radiusMeters int, category string) ([]Place, error) {
	return r.FindNearby(ctx, u.Get(), radiusMeters, category)
}

// Rank computes distances from origin, sorts ascending with ties kept in
// input order, and returns at most limit places. Distances are rounded to
// two decimals after sorting.
func Rank(origin Point, cands []Candidate, limit int) []Place {
	type scored struct {
		c Candidate
		d float64
	}
	all := make([]scored, len(cands))
	for i, c := range cands {
		all[i] = scored{c: c, d: Haversine(origin, c.Point)}
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].d < all[j].d })

	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	out := make([]Place, len(all))
	for i, s := range all {
		name := strings.TrimSpace(s.c.Name)
		if name == "" {
			name = UnnamedPlace
		}
		out[i] = Place{Name: name, Coordinates: s.c.Point, DistanceKm: round2(s.d)}
	}
	return out
}

// FormatPlaces renders places as a numbered list.
func FormatPlaces(places []Place) string {
	if len(places) == 0 {
		return "No grocery stores found within a few kilometers."
	}
	var b strings.Builder
	b.WriteString("Nearby grocery stores:")
	for i, p := range places {
		fmt.Fprintf(&b, "\n%d. %s — %.2f km", i+1, p.Name, p.DistanceKm)
	}
	return b.String()
}
