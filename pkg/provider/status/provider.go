package status

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"trip-pivot-be/pkg/geo"
)

type DeltaKind string

const (
	DeltaNone    DeltaKind = "none"
	DeltaWeather DeltaKind = "weather"
	DeltaTransit DeltaKind = "transit"
	DeltaVenue   DeltaKind = "venue"
)

// Delta is what changed at a location around a given time.
type Delta struct {
	Kind         DeltaKind `json:"kind"`
	Condition    string    `json:"condition,omitempty"`
	Severity     float64   `json:"severity"`
	DelayMinutes int       `json:"delay_minutes,omitempty"`
	VenueOpen    *bool     `json:"venue_open,omitempty"`
	VenueRef     string    `json:"venue_ref,omitempty"`
}

// Significant reports whether the delta is worth a trigger.
func (d Delta) Significant(minSeverity float64) bool {
	switch d.Kind {
	case DeltaVenue:
		return d.VenueOpen != nil && !*d.VenueOpen
	case DeltaTransit:
		return d.DelayMinutes > 0 && d.Severity >= minSeverity
	case DeltaWeather:
		return d.Severity >= minSeverity
	}
	return false
}

// Provider is a weather, transit or venue status source.
type Provider interface {
	GetStatus(ctx context.Context, location geo.Point, at time.Time, venueRef string) ([]Delta, error)
}

type HTTPProvider struct {
	BaseURL string
	Client  *http.Client
}

var _ Provider = &HTTPProvider{}

func NewHTTPProvider(baseURL string, timeout time.Duration) *HTTPProvider {
	return &HTTPProvider{
		BaseURL: baseURL,
		Client:  &http.Client{Timeout: timeout},
	}
}

type statusResponse struct {
	Deltas []Delta `json:"deltas"`
}

func (p *HTTPProvider) GetStatus(ctx context.Context, location geo.Point, at time.Time, venueRef string) ([]Delta, error) {
	params := url.Values{}
	params.Set("lat", strconv.FormatFloat(location.Lat, 'f', 6, 64))
	params.Set("lng", strconv.FormatFloat(location.Lng, 'f', 6, 64))
	params.Set("at", at.UTC().Format(time.RFC3339))
	if venueRef != "" {
		params.Set("venue", venueRef)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.BaseURL+"/v1/status?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := p.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("status request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status provider returned status %d", resp.StatusCode)
	}

	var out statusResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode status response: %w", err)
	}
	return out.Deltas, nil
}
