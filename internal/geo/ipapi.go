package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// IPLocator approximates the caller's location from its public IP.
type IPLocator interface {
	Locate(ctx context.Context) (Location, error)
}

// IPAPI queries an ipapi.co compatible JSON endpoint.
type IPAPI struct {
	url    string
	ua     string
	client *http.Client
}

// NewIPAPI creates an IP locator. A nil client gets an 8s timeout.
func NewIPAPI(endpoint, userAgent string, client *http.Client) *IPAPI {
	if client == nil {
		client = &http.Client{Timeout: 8 * time.Second}
	}
	return &IPAPI{url: endpoint, ua: userAgent, client: client}
}

type ipapiResponse struct {
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
	City      string   `json:"city"`
	Region    string   `json:"region"`
	Error     bool     `json:"error"`
	Reason    string   `json:"reason"`
}

// Locate returns the approximate location. Every failure wraps ErrIPLookup.
func (a *IPAPI) Locate(ctx context.Context) (Location, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.url, nil)
	if err != nil {
		return Location{}, fmt.Errorf("%w: %v", ErrIPLookup, err)
	}
	if a.ua != "" {
		req.Header.Set("User-Agent", a.ua)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return Location{}, fmt.Errorf("%w: %v", ErrIPLookup, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Location{}, fmt.Errorf("%w: status %d", ErrIPLookup, resp.StatusCode)
	}

	var body ipapiResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Location{}, fmt.Errorf("%w: decode: %v", ErrIPLookup, err)
	}
	if body.Error {
		return Location{}, fmt.Errorf("%w: %s", ErrIPLookup, body.Reason)
	}
	if body.Latitude == nil || body.Longitude == nil {
		return Location{}, fmt.Errorf("%w: response has no coordinates", ErrIPLookup)
	}
	p := Point{Lat: *body.Latitude, Lon: *body.Longitude}
	if !p.Valid() {
		return Location{}, fmt.Errorf("%w: %v", ErrIPLookup, ErrInvalidCoordinates)
	}

	city := body.City
	if city == "" {
		city = "your area"
	}
	label := strings.TrimSpace(city + " " + body.Region)
	return Location{Point: p, Label: label, Source: SourceIP}, nil
}
