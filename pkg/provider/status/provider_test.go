package status

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"trip-pivot-be/pkg/geo"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDelta_Significant(t *testing.T) {
	open, closed := true, false
	tests := []struct {
		name  string
		delta Delta
		want  bool
	}{
		{"venue closed", Delta{Kind: DeltaVenue, VenueOpen: &closed}, true},
		{"venue open", Delta{Kind: DeltaVenue, VenueOpen: &open}, false},
		{"venue unknown", Delta{Kind: DeltaVenue}, false},
		{"heavy rain", Delta{Kind: DeltaWeather, Severity: 0.8}, true},
		{"drizzle", Delta{Kind: DeltaWeather, Severity: 0.2}, false},
		{"delayed train", Delta{Kind: DeltaTransit, Severity: 0.6, DelayMinutes: 25}, true},
		{"on time", Delta{Kind: DeltaTransit, Severity: 0.9}, false},
		{"nothing", Delta{Kind: DeltaNone, Severity: 1}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.delta.Significant(0.5))
		})
	}
}

func TestHTTPProvider_GetStatus(t *testing.T) {
	at := time.Date(2026, 5, 2, 14, 0, 0, 0, time.UTC)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "48.856600", q.Get("lat"))
		assert.Equal(t, at.Format(time.RFC3339), q.Get("at"))
		assert.Equal(t, "louvre", q.Get("venue"))
		json.NewEncoder(w).Encode(statusResponse{Deltas: []Delta{{Kind: DeltaWeather, Condition: "storm", Severity: 0.9}}})
	}))
	defer srv.Close()

	deltas, err := NewHTTPProvider(srv.URL, time.Second).GetStatus(context.Background(), geo.Point{Lat: 48.8566, Lng: 2.3522}, at, "louvre")
	require.NoError(t, err)
	require.Len(t, deltas, 1)
	assert.Equal(t, "storm", deltas[0].Condition)
}
