package candidate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"trip-pivot-be/internal/entity"
)

// Query describes what the candidate store should look for around a point.
type Query struct {
	Category        string   `json:"category,omitempty"`
	ExcludeCategory string   `json:"exclude_category,omitempty"`
	Vibe            string   `json:"vibe,omitempty"`
	ExcludeVibe     string   `json:"exclude_vibe,omitempty"`
	Indoor          *bool    `json:"indoor,omitempty"`
	Lat             float64  `json:"lat"`
	Lng             float64  `json:"lng"`
	RadiusMeters    int      `json:"radius_m"`
	Exclude         []string `json:"exclude,omitempty"`
	Limit           int      `json:"limit"`
}

// Provider is the activity/candidate store.
type Provider interface {
	Lookup(ctx context.Context, q Query) ([]entity.Candidate, error)
}

type HTTPProvider struct {
	BaseURL string
	Client  *http.Client
}

var _ Provider = &HTTPProvider{}

func NewHTTPProvider(baseURL string, timeout time.Duration) *HTTPProvider {
	return &HTTPProvider{
		BaseURL: baseURL,
		Client: &http.Client{
			Timeout: timeout,
		},
	}
}

type lookupResponse struct {
	Candidates []entity.Candidate `json:"candidates"`
}

func (p *HTTPProvider) Lookup(ctx context.Context, q Query) ([]entity.Candidate, error) {
	body, err := json.Marshal(q)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal lookup query: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.BaseURL+"/v1/candidates/lookup", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("candidate store request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("candidate store returned status %d: %s", resp.StatusCode, string(raw))
	}

	var out lookupResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode candidate response: %w", err)
	}
	return out.Candidates, nil
}
