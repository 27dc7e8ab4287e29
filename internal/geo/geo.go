// Package geo resolves the user's location and finds nearby places around it.
package geo

import (
	"errors"
	"fmt"
	"math"
	"sync/atomic"
	"time"
)

var (
	// ErrNoLocation is returned by FindNearby when no location has been set.
	ErrNoLocation = errors.New("geo: location unknown")
	// ErrGeocodeNotFound is returned when a place name yields no match.
	ErrGeocodeNotFound = errors.New("geo: place not found")
	// ErrIPLookup wraps failures of the IP approximation service.
	ErrIPLookup = errors.New("geo: ip lookup failed")
	// ErrLookup wraps failures of the place-search service.
	ErrLookup = errors.New("geo: place search failed")
	// ErrInvalidCoordinates is returned for latitudes or longitudes out of range.
	ErrInvalidCoordinates = errors.New("geo: invalid coordinates")
	// ErrUnknownCategory is returned for place categories with no search
	// selectors. It wraps ErrLookup.
	ErrUnknownCategory = fmt.Errorf("%w: unknown category", ErrLookup)
)

// EarthRadiusKm is the mean Earth radius used for distances.
const EarthRadiusKm = 6371.0

// Point is a WGS84 coordinate pair in degrees.
type Point struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Valid reports whether p lies within the coordinate ranges.
func (p Point) Valid() bool {
	return p.Lat >= -90 && p.Lat <= 90 && p.Lon >= -180 && p.Lon <= 180 &&
		!math.IsNaN(p.Lat) && !math.IsNaN(p.Lon)
}

func (p Point) String() string {
	return fmt.Sprintf("(%.4f, %.4f)", p.Lat, p.Lon)
}

// Source records how a location was obtained.
type Source string

const (
	SourceCoordinates Source = "coordinates"
	SourcePlaceName   Source = "place_name"
	SourceIP          Source = "ip"
)

// Location is a set user location. Label is the human name when known.
type Location struct {
	Point
	Label  string
	Source Source
	SetAt  time.Time
}

// Place is one ranked search result.
type Place struct {
	Name        string  `json:"name"`
	Coordinates Point   `json:"coordinates"`
	DistanceKm  float64 `json:"distance_km"`
}

// Haversine returns the great-circle distance between a and b in km.
func Haversine(a, b Point) float64 {
	const rad = math.Pi / 180
	phi1, phi2 := a.Lat*rad, b.Lat*rad
	dPhi := (b.Lat - a.Lat) * rad
	dLambda := (b.Lon - a.Lon) * rad

	h := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	return 2 * EarthRadiusKm * math.Asin(math.Sqrt(math.Min(1, h)))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// UserLocation is the session's current location. Writers overwrite; the
// last write wins and is visible to subsequent reads.
type UserLocation struct {
	p atomic.Pointer[Location]
}

// Get returns the current location, or nil when unset.
func (u *UserLocation) Get() *Location {
	return u.p.Load()
}

// Set replaces the current location.
func (u *UserLocation) Set(loc Location) {
	if loc.SetAt.IsZero() {
		loc.SetAt = time.Now()
	}
	u.p.Store(&loc)
}

// Clear unsets the location.
func (u *UserLocation) Clear() {
	u.p.Store(nil)
}
