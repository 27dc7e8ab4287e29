package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"
)

// Candidate is an unranked place returned by a PlaceSearcher.
type Candidate struct {
	Name  string
	Point Point
}

// PlaceSearcher finds candidates of a category within a radius.
type PlaceSearcher interface {
	Search(ctx context.Context, origin Point, radiusMeters int, category string) ([]Candidate, error)
}

// CategoryGrocery is the default search category.
const CategoryGrocery = "grocery"

// selector is one Overpass element filter, e.g. node["shop"="supermarket"].
type selector struct {
	element string
	key     string
	value   string
}

var categories = map[string][]selector{
	CategoryGrocery: {
		{"node", "shop", "supermarket"},
		{"node", "amenity", "marketplace"},
		{"way", "shop", "supermarket"},
		{"relation", "shop", "supermarket"},
	},
	"supermarket": {
		{"node", "shop", "supermarket"},
		{"way", "shop", "supermarket"},
		{"relation", "shop", "supermarket"},
	},
	"marketplace": {
		{"node", "amenity", "marketplace"},
		{"way", "amenity", "marketplace"},
	},
	"butcher": {
		{"node", "shop", "butcher"},
		{"way", "shop", "butcher"},
	},
	"bakery": {
		{"node", "shop", "bakery"},
		{"way", "shop", "bakery"},
	},
}

// KnownCategory reports whether category has search selectors.
func KnownCategory(category string) bool {
	_, ok := categories[normalizeCategory(category)]
	return ok
}

func normalizeCategory(c string) string { return strings.ToLower(strings.TrimSpace(c)) }

// Categories lists the supported category names in sorted order.
func Categories() []string {
	out := make([]string, 0, len(categories))
	for c := range categories {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// BuildQuery renders the Overpass QL query for category around origin.
func BuildQuery(origin Point, radiusMeters int, category string) (string, error) {
	sels, ok := categories[normalizeCategory(category)]
	if !ok {
		return "", fmt.Errorf("%w %q", ErrUnknownCategory, category)
	}
	var b strings.Builder
	b.WriteString("[out:json];(")
	for _, s := range sels {
		fmt.Fprintf(&b, "%s[%q=%q](around:%d,%g,%g);", s.element, s.key, s.value, radiusMeters, origin.Lat, origin.Lon)
	}
	b.WriteString(");out center;")
	return b.String(), nil
}

// Overpass queries an OpenStreetMap Overpass API interpreter.
type Overpass struct {
	url    string
	ua     string
	client *http.Client
}

// NewOverpass creates a place searcher. A nil client gets a 15s timeout.
func NewOverpass(endpoint, userAgent string, client *http.Client) *Overpass {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &Overpass{url: endpoint, ua: userAgent, client: client}
}

type overpassElement struct {
	Type   string            `json:"type"`
	Lat    *float64          `json:"lat"`
	Lon    *float64          `json:"lon"`
	Center *Point            `json:"center"`
	Tags   map[string]string `json:"tags"`
}

type overpassResponse struct {
	Elements []overpassElement `json:"elements"`
}

// Search returns candidates in the service's order. Elements with neither
// a direct point nor a center are discarded.
func (o *Overpass) Search(ctx context.Context, origin Point, radiusMeters int, category string) ([]Candidate, error) {
	q, err := BuildQuery(origin, radiusMeters, category)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.url+"?"+url.Values{"data": {q}}.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLookup, err)
	}
	if o.ua != "" {
		req.Header.Set("User-Agent", o.ua)
	}

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLookup, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: overpass status %d", ErrLookup, resp.StatusCode)
	}

	var body overpassResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrLookup, err)
	}

	out := make([]Candidate, 0, len(body.Elements))
	for _, el := range body.Elements {
		p, ok := el.point()
		if !ok {
			continue
		}
		out = append(out, Candidate{Name: el.Tags["name"], Point: p})
	}
	return out, nil
}

func (el overpassElement) point() (Point, bool) {
	if el.Lat != nil && el.Lon != nil {
		return Point{Lat: *el.Lat, Lon: *el.Lon}, true
	}
	if el.Center != nil {
		return *el.Center, true
	}
	return Point{}, false
}
