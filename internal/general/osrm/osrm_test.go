package osrm

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ride-hail-sim/internal/domain/geo"
)

func TestRoute(t *testing.T) {
	var gotPath, gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"code":"Ok","routes":[{"geometry":{"coordinates":[[76.9,43.2],[76.95,43.25],[77.0,43.3]]}}]}`))
	}))
	defer srv.Close()

	leg, err := New(srv.URL+"/").Route(context.Background(), geo.Coordinate{Lat: 43.2, Lng: 76.9}, geo.Coordinate{Lat: 43.3, Lng: 77.0})
	require.NoError(t, err)

	assert.Equal(t, "/route/v1/driving/76.900000,43.200000;77.000000,43.300000", gotPath)
	assert.Equal(t, "overview=full&geometries=geojson", gotQuery)
	assert.Equal(t, geo.Leg{{Lat: 43.2, Lng: 76.9}, {Lat: 43.25, Lng: 76.95}, {Lat: 43.3, Lng: 77.0}}, leg)
	assert.True(t, leg.Active())
}

func TestRouteErrors(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{"no routes", http.StatusOK, `{"code":"Ok","routes":[]}`, ErrNoRoute},
		{"no segment", http.StatusOK, `{"code":"NoSegment"}`, ErrNoRoute},
		{"bad request", http.StatusBadRequest, `{"code":"InvalidQuery"}`, ErrNoRoute},
		{"server error", http.StatusBadGateway, ``, ErrBadResponse},
		{"garbage", http.StatusOK, `not json`, ErrBadResponse},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			_, err := New(srv.URL, WithHTTPClient(srv.Client())).Route(context.Background(), geo.Coordinate{}, geo.Coordinate{Lat: 1, Lng: 1})
			assert.ErrorIs(t, err, tc.want)
		})
	}
}
