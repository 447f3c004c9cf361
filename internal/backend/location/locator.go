package location

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"
)

// DefaultTimeout bounds how long CurrentLocation waits for a position fix.
const DefaultTimeout = 8 * time.Second

var (
	// ErrUnavailable is returned by locators that cannot produce a position.
	ErrUnavailable = errors.New("location unavailable")
	// ErrPermissionDenied is returned when the user refused to share the position.
	ErrPermissionDenied = errors.New("location permission denied")
)

// Coordinates is a WGS84 position.
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

func (c Coordinates) String() string {
	return fmt.Sprintf("%.6f, %.6f", c.Lat, c.Lng)
}

// LocateOptions mirrors the preferences a device geolocation request is made with.
type LocateOptions struct {
	HighAccuracy bool
	// MaximumAge is the oldest cached fix that may be returned; zero requests a fresh fix.
	MaximumAge time.Duration
}

// DefaultLocateOptions requests a fresh, high-accuracy fix.
func DefaultLocateOptions() LocateOptions {
	return LocateOptions{HighAccuracy: true, MaximumAge: 0}
}

// Locator is a device capability that can report the current position.
type Locator interface {
	Locate(ctx context.Context, opts LocateOptions) (Coordinates, error)
}

// CurrentLocation asks locator for a position and gives up after timeout.
// It returns nil when no locator is available or the request fails; it never blocks past the timeout.
func CurrentLocation(ctx context.Context, locator Locator, timeout time.Duration) *Coordinates {
	if locator == nil {
		slog.Debug("no locator available")
		return nil
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		coords Coordinates
		err    error
	}
	done := make(chan result, 1)
	go func() {
		coords, err := locator.Locate(ctx, DefaultLocateOptions())
		done <- result{coords: coords, err: err}
	}()

	select {
	case <-ctx.Done():
		slog.Warn("location request timed out or was cancelled", "timeout", timeout, "error", ctx.Err())
		return nil
	case res := <-done:
		if res.err != nil {
			slog.Warn("location unavailable", "error", res.err)
			return nil
		}
		if err := validate(res.coords); err != nil {
			slog.Warn("locator returned invalid coordinates", "error", err)
			return nil
		}
		return &res.coords
	}
}

func validate(c Coordinates) error {
	if math.IsNaN(c.Lat) || c.Lat < -90 || c.Lat > 90 {
		return fmt.Errorf("latitude out of range: %v", c.Lat)
	}
	if math.IsNaN(c.Lng) || c.Lng < -180 || c.Lng > 180 {
		return fmt.Errorf("longitude out of range: %v", c.Lng)
	}
	return nil
}

// StaticLocator reports coordinates that were supplied by the caller, e.g. by the browser.
type StaticLocator struct {
	coords Coordinates
}

func NewStaticLocator(lat, lng float64) (*StaticLocator, error) {
	c := Coordinates{Lat: lat, Lng: lng}
	if err := validate(c); err != nil {
		return nil, err
	}
	return &StaticLocator{coords: c}, nil
}

func (s *StaticLocator) Locate(_ context.Context, _ LocateOptions) (Coordinates, error) {
	return s.coords, nil
}

// LocatorFunc adapts a function to the Locator interface.
type LocatorFunc func(ctx context.Context, opts LocateOptions) (Coordinates, error)

func (f LocatorFunc) Locate(ctx context.Context, opts LocateOptions) (Coordinates, error) {
	return f(ctx, opts)
}
