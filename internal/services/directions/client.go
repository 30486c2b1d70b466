// Package directions asks an OSRM-compatible routing service for the
// driving distance and duration between two points.
package directions

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
)

var (
	ErrDisabled = errors.New("directions provider not configured")
	ErrNoRoute  = errors.New("no route between points")
)

const DefaultTimeout = 10 * time.Second

type LatLng struct {
	Latitude  float64 `json:"latitud"`
	Longitude float64 `json:"longitud"`
}

type Route struct {
	From            LatLng  `json:"origen"`
	To              LatLng  `json:"destino"`
	DistanceMeters  float64 `json:"distancia_metros"`
	DurationSeconds float64 `json:"duracion_segundos"`
	Geometry        string  `json:"geometria,omitempty"` // encoded polyline, precision 5
	Cached          bool    `json:"cached"`
}

type osrmResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Routes  []struct {
		Distance float64 `json:"distance"`
		Duration float64 `json:"duration"`
		Geometry string  `json:"geometry"`
	} `json:"routes"`
}

type Client struct {
	baseURL    string
	timeout    time.Duration
	httpClient *http.Client
	cb         *gobreaker.CircuitBreaker
	cache      *RouteCache
	log        *logrus.Logger
}

// NewClient builds a client for baseURL. An empty baseURL yields a client
// whose Route always returns ErrDisabled.
func NewClient(baseURL string, timeout time.Duration, log *logrus.Logger) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if baseURL == "" {
		log.Warn("⚠️  DIRECTIONS_URL not set - route estimates disabled")
	}

	st := gobreaker.Settings{
		Name:        "Directions",
		MaxRequests: 1,
		Interval:    30 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		// A point pair with no route is an answer, not a provider failure.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrNoRoute)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Warnf("CircuitBreaker[%s] state changed from %s to %s", name, from, to)
		},
	}

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		timeout:    timeout,
		httpClient: &http.Client{Timeout: timeout},
		cb:         gobreaker.NewCircuitBreaker(st),
		cache:      NewRouteCache(1000, 2*time.Minute),
		log:        log,
	}
}

func (c *Client) Route(ctx context.Context, from, to LatLng) (*Route, error) {
	if c.baseURL == "" {
		return nil, ErrDisabled
	}

	sig := Signature(from, to)
	if r, ok := c.cache.Get(sig); ok {
		r.Cached = true
		return &r, nil
	}

	res, err := c.cb.Execute(func() (interface{}, error) {
		return c.fetch(ctx, from, to)
	})
	if err != nil {
		return nil, errors.Wrap(err, "directions")
	}

	r := res.(Route)
	c.cache.Set(sig, r)
	return &r, nil
}

func (c *Client) fetch(ctx context.Context, from, to LatLng) (Route, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	// OSRM takes lng,lat pairs.
	url := fmt.Sprintf("%s/route/v1/driving/%f,%f;%f,%f?overview=full&geometries=polyline",
		c.baseURL, from.Longitude, from.Latitude, to.Longitude, to.Latitude)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Route{}, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Route{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return Route{}, err
	}
	if resp.StatusCode >= 500 {
		return Route{}, fmt.Errorf("provider returned %d", resp.StatusCode)
	}

	var parsed osrmResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return Route{}, errors.Wrap(err, "decode provider response")
	}
	if parsed.Code != "Ok" || len(parsed.Routes) == 0 {
		return Route{}, errors.Wrapf(ErrNoRoute, "provider code %s: %s", parsed.Code, parsed.Message)
	}

	return Route{
		From:            from,
		To:              to,
		DistanceMeters:  parsed.Routes[0].Distance,
		DurationSeconds: parsed.Routes[0].Duration,
		Geometry:        parsed.Routes[0].Geometry,
	}, nil
}

// Stats exposes the cache counters for the health endpoint.
func (c *Client) Stats() map[string]interface{} {
	stats := c.cache.GetStats()
	stats["breaker"] = c.cb.State().String()
	return stats
}
