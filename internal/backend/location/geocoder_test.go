package location

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func newTestGeocoder(t *testing.T, handler http.HandlerFunc) *Geocoder {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewGeocoder(GeocoderConfig{
		Endpoint:  server.URL + "/reverse",
		UserAgent: "photostamp-test",
		Timeout:   2 * time.Second,
	})
}

func TestReverseGeocode_ComposesAddress(t *testing.T) {
	var gotQuery, gotAccept, gotUA string
	geocoder := newTestGeocoder(t, func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		gotAccept = r.Header.Get("Accept")
		gotUA = r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"address":{"road":"Main St","house_number":"12","postcode":"90210","city":"Springfield"},"display_name":"ignored"}`))
	})

	got := geocoder.ReverseGeocode(context.Background(), 34.1, -118.4)
	if got != "Main St 12, 90210, Springfield" {
		t.Fatalf("ReverseGeocode = %q, want %q", got, "Main St 12, 90210, Springfield")
	}

	wantQuery := "addressdetails=1&format=json&lat=34.1&lon=-118.4&zoom=18"
	if gotQuery != wantQuery {
		t.Errorf("query = %q, want %q", gotQuery, wantQuery)
	}
	if gotAccept != "application/json" {
		t.Errorf("Accept header = %q, want application/json", gotAccept)
	}
	if gotUA != "photostamp-test" {
		t.Errorf("User-Agent header = %q, want photostamp-test", gotUA)
	}
}

func TestReverseGeocode_DisplayNameFallback(t *testing.T) {
	geocoder := newTestGeocoder(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"display_name":"Somewhere, Earth"}`))
	})
	if got := geocoder.ReverseGeocode(context.Background(), 1, 2); got != "Somewhere, Earth" {
		t.Fatalf("ReverseGeocode = %q, want display name", got)
	}
}

func TestReverseGeocode_FailuresReturnEmpty(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "server error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
			},
		},
		{
			name: "invalid json",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`<html>`))
			},
		},
		{
			name: "no address data",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"error":"Unable to geocode"}`))
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			geocoder := newTestGeocoder(t, tt.handler)
			if got := geocoder.ReverseGeocode(context.Background(), 1, 2); got != "" {
				t.Fatalf("ReverseGeocode = %q, want empty string", got)
			}
		})
	}
}

func TestReverseGeocode_NetworkFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	endpoint := server.URL
	server.Close()

	geocoder := NewGeocoder(GeocoderConfig{Endpoint: endpoint, Timeout: time.Second})
	if got := geocoder.ReverseGeocode(context.Background(), 1, 2); got != "" {
		t.Fatalf("ReverseGeocode = %q, want empty string", got)
	}
}

func TestReverseGeocode_RateLimited(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(`{"display_name":"x"}`))
	}))
	t.Cleanup(server.Close)

	geocoder := NewGeocoder(GeocoderConfig{Endpoint: server.URL, RequestsPerSecond: 0.001})
	if got := geocoder.ReverseGeocode(context.Background(), 1, 2); got != "x" {
		t.Fatalf("first ReverseGeocode = %q, want x", got)
	}

	// the second call must wait far longer than the context allows
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if got := geocoder.ReverseGeocode(ctx, 1, 2); got != "" {
		t.Fatalf("rate limited ReverseGeocode = %q, want empty string", got)
	}
	if calls.Load() != 1 {
		t.Fatalf("expected 1 upstream call, got %d", calls.Load())
	}
}

func TestComposeAddress(t *testing.T) {
	tests := []struct {
		name        string
		address     *Address
		displayName string
		want        string
	}{
		{
			name:    "full address",
			address: &Address{Road: "Main St", HouseNumber: "12", Postcode: "90210", City: "Springfield"},
			want:    "Main St 12, 90210, Springfield",
		},
		{
			name:    "town fallback",
			address: &Address{Road: "Dorfstraße", Postcode: "12345", Town: "Kleinstadt", Village: "ignored"},
			want:    "Dorfstraße, 12345, Kleinstadt",
		},
		{
			name:    "village fallback",
			address: &Address{Village: "Hintertupfing"},
			want:    "Hintertupfing",
		},
		{
			name:    "house number without road is ignored",
			address: &Address{HouseNumber: "7", Postcode: "10115", City: "Berlin"},
			want:    "10115, Berlin",
		},
		{
			name:        "empty address uses display name",
			address:     &Address{},
			displayName: "Atlantic Ocean",
			want:        "Atlantic Ocean",
		},
		{
			name:        "nil address uses display name",
			displayName: "Somewhere",
			want:        "Somewhere",
		},
		{
			name: "nothing usable",
			want: "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ComposeAddress(tt.address, tt.displayName); got != tt.want {
				t.Fatalf("ComposeAddress = %q, want %q", got, tt.want)
			}
		})
	}
}
