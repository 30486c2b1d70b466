package directions

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
)

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.Out = io.Discard
	return log
}

// the client passes the encoded overview through untouched
const polyline = `_p~iF~ps|U_ulLnnqC_mqNvxq@`

var (
	origin = LatLng{Latitude: 19.4326, Longitude: -99.1332}
	dest   = LatLng{Latitude: 19.4194, Longitude: -99.1455}
)

func TestRouteParsesProviderAndCaches(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		if !strings.HasPrefix(r.URL.Path, "/route/v1/driving/-99.133200,19.432600;") {
			t.Errorf("path = %s, want lng,lat order", r.URL.Path)
		}
		if q := r.URL.Query(); q.Get("overview") != "full" || q.Get("geometries") != "polyline" {
			t.Errorf("query = %s, want full polyline overview", r.URL.RawQuery)
		}
		fmt.Fprintf(w, `{"code":"Ok","routes":[{"distance":2450.5,"duration":412.3,"geometry":%q}]}`, polyline)
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/", time.Second, quietLogger())

	r, err := c.Route(context.Background(), origin, dest)
	if err != nil {
		t.Fatalf("Route() error = %v", err)
	}
	if r.DistanceMeters != 2450.5 || r.DurationSeconds != 412.3 || r.Cached {
		t.Errorf("Route() = %+v", r)
	}
	if r.Geometry != polyline {
		t.Errorf("Geometry = %q, want %q", r.Geometry, polyline)
	}

	again, err := c.Route(context.Background(), origin, dest)
	if err != nil {
		t.Fatalf("Route() error = %v", err)
	}
	if !again.Cached {
		t.Error("second call should be served from cache")
	}
	if again.Geometry != polyline {
		t.Errorf("cached Geometry = %q, want %q", again.Geometry, polyline)
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("provider calls = %d, want 1", got)
	}
}

func TestRouteNoRouteDoesNotTripBreaker(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"code":"NoRoute","message":"Impossible route","routes":[]}`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second, quietLogger())
	for i := 0; i < 10; i++ {
		to := LatLng{Latitude: dest.Latitude + float64(i), Longitude: dest.Longitude}
		_, err := c.Route(context.Background(), origin, to)
		if !errors.Is(err, ErrNoRoute) {
			t.Fatalf("call %d: err = %v, want ErrNoRoute", i, err)
		}
	}
	if c.cb.State() != gobreaker.StateClosed {
		t.Errorf("breaker = %s, want closed", c.cb.State())
	}
}

func TestRouteBreakerOpensOnProviderFailures(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second, quietLogger())
	for i := 0; i < 8; i++ {
		if _, err := c.Route(context.Background(), origin, dest); err == nil {
			t.Fatalf("call %d: expected error", i)
		}
	}
	if got := atomic.LoadInt32(&calls); got != 5 {
		t.Errorf("provider calls = %d, want 5 before the breaker opened", got)
	}
	_, err := c.Route(context.Background(), origin, dest)
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Errorf("err = %v, want open state", err)
	}
}

func TestRouteTimesOut(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	c := NewClient(srv.URL, 50*time.Millisecond, quietLogger())
	start := time.Now()
	if _, err := c.Route(context.Background(), origin, dest); err == nil {
		t.Fatal("expected timeout error")
	}
	if time.Since(start) > 2*time.Second {
		t.Error("timeout was not enforced")
	}
}

func TestRouteDisabledWithoutURL(t *testing.T) {
	c := NewClient("", 0, quietLogger())
	if _, err := c.Route(context.Background(), origin, dest); !errors.Is(err, ErrDisabled) {
		t.Errorf("err = %v, want ErrDisabled", err)
	}
}

func TestRouteCacheExpiryAndEviction(t *testing.T) {
	now := time.Unix(1000, 0)
	c := NewRouteCache(2, time.Minute)
	c.now = func() time.Time { return now }

	c.Set("a", Route{DistanceMeters: 1})
	now = now.Add(time.Second)
	c.Set("b", Route{DistanceMeters: 2})
	now = now.Add(time.Second)
	if _, ok := c.Get("a"); !ok {
		t.Fatal("a should be cached")
	}
	c.Set("c", Route{DistanceMeters: 3})
	if _, ok := c.Get("b"); ok {
		t.Error("b was least recently used and should be evicted")
	}

	now = now.Add(2 * time.Minute)
	if _, ok := c.Get("a"); ok {
		t.Error("a should have expired")
	}
	if Signature(origin, dest) != Signature(LatLng{19.43261, -99.13321}, dest) {
		t.Error("signature should ignore sub-10m jitter")
	}
}
