// Package osrm fetches driving routes from an OSRM server and returns them
// as legs the simulator can walk.
package osrm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"ride-hail-sim/internal/domain/geo"
)

const defaultTimeout = 10 * time.Second

var (
	ErrNoRoute     = errors.New("osrm: no route found")
	ErrBadResponse = errors.New("osrm: unexpected response")
)

// Client calls the /route/v1/driving endpoint.
type Client struct {
	baseURL string
	http    *http.Client
}

type Option func(*Client)

// WithHTTPClient replaces the default client (10s timeout).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		http:    &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type routeResponse struct {
	Code   string `json:"code"`
	Routes []struct {
		Geometry struct {
			Coordinates [][]float64 `json:"coordinates"`
		} `json:"geometry"`
	} `json:"routes"`
}

// Route returns the full geometry of the fastest route from one point to
// another. OSRM speaks lng,lat; the leg is lat,lng.
func (c *Client) Route(ctx context.Context, from, to geo.Coordinate) (geo.Leg, error) {
	url := fmt.Sprintf("%s/route/v1/driving/%.6f,%.6f;%.6f,%.6f?overview=full&geometries=geojson",
		c.baseURL, from.Lng, from.Lat, to.Lng, to.Lat)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("osrm: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("osrm: request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		if resp.StatusCode == http.StatusBadRequest {
			return nil, ErrNoRoute
		}
		return nil, fmt.Errorf("%w: status %d", ErrBadResponse, resp.StatusCode)
	}

	var parsed routeResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadResponse, err)
	}
	if parsed.Code != "" && parsed.Code != "Ok" {
		return nil, ErrNoRoute
	}
	if len(parsed.Routes) == 0 {
		return nil, ErrNoRoute
	}

	points := parsed.Routes[0].Geometry.Coordinates
	leg := make(geo.Leg, 0, len(points))
	for _, pair := range points {
		if len(pair) < 2 {
			return nil, fmt.Errorf("%w: short coordinate", ErrBadResponse)
		}
		leg = append(leg, geo.Coordinate{Lat: pair[1], Lng: pair[0]})
	}
	return leg, nil
}
