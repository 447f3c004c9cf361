package core

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jo-hoe/photostamp/internal/backend/location"
	"github.com/jo-hoe/photostamp/internal/common"
)

var testCapturedAt = time.Date(2024, 5, 1, 12, 3, 5, 123_000_000, time.UTC)

func newTestCoreService(t *testing.T, mutate func(cfg *ServiceConfig)) *CoreService {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Store = StoreConfig{Type: "memory", Key: "test"}
	disabled := false
	cfg.Geocoding.Enabled = &disabled
	cfg.Location.Timeout = 2 * time.Second
	if mutate != nil {
		mutate(cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("invalid test config: %v", err)
	}

	svc, err := NewCoreService(cfg)
	if err != nil {
		t.Fatalf("NewCoreService error: %v", err)
	}
	svc.now = func() time.Time { return testCapturedAt }
	t.Cleanup(func() { _ = svc.Close() })
	return svc
}

// withGeocoder points the service at a fake Nominatim server and counts its requests.
func withGeocoder(t *testing.T, body string) (func(cfg *ServiceConfig), *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)

	return func(cfg *ServiceConfig) {
		enabled := true
		cfg.Geocoding.Enabled = &enabled
		cfg.Geocoding.Endpoint = server.URL + "/reverse"
		cfg.Geocoding.RequestsPerSecond = 0
	}, &hits
}

func testPhoto(t *testing.T, width, height int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("failed to encode test photo: %v", err)
	}
	return buf.Bytes()
}

func staticLocator(t *testing.T, lat, lng float64) location.Locator {
	t.Helper()
	locator, err := location.NewStaticLocator(lat, lng)
	if err != nil {
		t.Fatalf("NewStaticLocator error: %v", err)
	}
	return locator
}

func TestSaveEntry_NoPhoto(t *testing.T) {
	svc := newTestCoreService(t, nil)

	_, err := svc.SaveEntry(context.Background(), SaveRequest{Comment: "nothing"})
	if !errors.Is(err, ErrNoPhoto) {
		t.Fatalf("expected ErrNoPhoto, got %v", err)
	}
	if entries := svc.ListEntries(context.Background()); len(entries) != 0 {
		t.Fatalf("expected no entries, got %d", len(entries))
	}
}

func TestSaveEntry_WithLocationAndAddress(t *testing.T) {
	geocoder, hits := withGeocoder(t, `{"address":{"road":"Main St","house_number":"12","postcode":"90210","city":"Springfield"}}`)
	svc := newTestCoreService(t, geocoder)

	entry, err := svc.SaveEntry(context.Background(), SaveRequest{
		Photo:   testPhoto(t, 2000, 1000),
		Comment: "  garden  ",
		Locator: staticLocator(t, 34.1, -118.4),
	})
	if err != nil {
		t.Fatalf("SaveEntry error: %v", err)
	}

	if hits.Load() != 1 {
		t.Errorf("expected one geocoder request, got %d", hits.Load())
	}
	if entry.Comment != "garden" {
		t.Errorf("expected trimmed comment, got %q", entry.Comment)
	}
	if entry.CapturedAt != "2024-05-01T12:03:05.123Z" {
		t.Errorf("unexpected capturedAt %q", entry.CapturedAt)
	}
	if entry.Lat == nil || entry.Lng == nil || *entry.Lat != 34.1 || *entry.Lng != -118.4 {
		t.Errorf("unexpected coordinates %v %v", entry.Lat, entry.Lng)
	}
	if entry.Address != "Main St 12, 90210, Springfield" {
		t.Errorf("unexpected address %q", entry.Address)
	}
	if !strings.HasPrefix(entry.Image, "data:image/jpeg;base64,") {
		t.Errorf("expected JPEG data URL, got prefix %q", entry.Image[:30])
	}

	data, _, err := common.DecodeDataURL(entry.Image)
	if err != nil {
		t.Fatalf("DecodeDataURL error: %v", err)
	}
	cfg, err := jpeg.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("stored image is not a JPEG: %v", err)
	}
	if cfg.Width != 1280 || cfg.Height != 640 {
		t.Errorf("expected 1280x640 image, got %dx%d", cfg.Width, cfg.Height)
	}

	stored, err := svc.GetEntry(context.Background(), entry.ID)
	if err != nil {
		t.Fatalf("GetEntry error: %v", err)
	}
	if stored.Address != entry.Address || stored.Image != entry.Image {
		t.Error("stored entry differs from the returned entry")
	}
}

func TestSaveEntry_WithoutLocation(t *testing.T) {
	geocoder, hits := withGeocoder(t, `{"display_name":"never used"}`)
	svc := newTestCoreService(t, geocoder)

	entry, err := svc.SaveEntry(context.Background(), SaveRequest{Photo: testPhoto(t, 64, 48)})
	if err != nil {
		t.Fatalf("SaveEntry error: %v", err)
	}

	if entry.Lat != nil || entry.Lng != nil {
		t.Errorf("expected no coordinates, got %v %v", entry.Lat, entry.Lng)
	}
	if entry.Address != "" {
		t.Errorf("expected empty address, got %q", entry.Address)
	}
	if hits.Load() != 0 {
		t.Errorf("expected no geocoder request without coordinates, got %d", hits.Load())
	}
}

func TestSaveEntry_DeniedLocationStillSaves(t *testing.T) {
	svc := newTestCoreService(t, nil)

	denied := location.LocatorFunc(func(context.Context, location.LocateOptions) (location.Coordinates, error) {
		return location.Coordinates{}, location.ErrPermissionDenied
	})
	entry, err := svc.SaveEntry(context.Background(), SaveRequest{Photo: testPhoto(t, 32, 32), Locator: denied})
	if err != nil {
		t.Fatalf("SaveEntry error: %v", err)
	}
	if entry.HasCoordinates() {
		t.Error("expected no coordinates after denied permission")
	}
}

func TestSaveEntry_UndecodablePhotoStoredRaw(t *testing.T) {
	svc := newTestCoreService(t, nil)

	photo := []byte("definitely not an image")
	entry, err := svc.SaveEntry(context.Background(), SaveRequest{Photo: photo})
	if err != nil {
		t.Fatalf("SaveEntry error: %v", err)
	}

	data, mime, err := common.DecodeDataURL(entry.Image)
	if err != nil {
		t.Fatalf("DecodeDataURL error: %v", err)
	}
	if !bytes.Equal(data, photo) {
		t.Error("expected the raw photo bytes to be stored")
	}
	if mime != "text/plain" {
		t.Errorf("expected sniffed text/plain, got %s", mime)
	}
}

func TestSaveEntry_RejectsConcurrentSave(t *testing.T) {
	svc := newTestCoreService(t, nil)

	entered := make(chan struct{})
	release := make(chan struct{})
	blocking := location.LocatorFunc(func(ctx context.Context, _ location.LocateOptions) (location.Coordinates, error) {
		close(entered)
		select {
		case <-release:
		case <-ctx.Done():
		}
		return location.Coordinates{Lat: 1, Lng: 2}, nil
	})

	done := make(chan error, 1)
	go func() {
		_, err := svc.SaveEntry(context.Background(), SaveRequest{Photo: testPhoto(t, 16, 16), Locator: blocking})
		done <- err
	}()

	<-entered
	_, err := svc.SaveEntry(context.Background(), SaveRequest{Photo: testPhoto(t, 16, 16)})
	if !errors.Is(err, ErrSaveInProgress) {
		t.Fatalf("expected ErrSaveInProgress, got %v", err)
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("first save failed: %v", err)
	}
	if entries := svc.ListEntries(context.Background()); len(entries) != 1 {
		t.Fatalf("expected exactly one entry, got %d", len(entries))
	}
}

func TestListEntries_NewestFirst(t *testing.T) {
	svc := newTestCoreService(t, nil)
	ctx := context.Background()

	t1 := time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)
	t2 := t1.Add(time.Hour)
	t3 := t2.Add(time.Hour)

	ids := map[time.Time]string{}
	for _, ts := range []time.Time{t2, t1, t3} {
		captured := ts
		svc.now = func() time.Time { return captured }
		entry, err := svc.SaveEntry(ctx, SaveRequest{Photo: testPhoto(t, 8, 8)})
		if err != nil {
			t.Fatalf("SaveEntry error: %v", err)
		}
		ids[ts] = entry.ID
	}

	entries := svc.ListEntries(ctx)
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	want := []string{ids[t3], ids[t2], ids[t1]}
	for i := range want {
		if entries[i].ID != want[i] {
			t.Fatalf("position %d: expected %s, got %s", i, want[i], entries[i].ID)
		}
	}
}

func TestDeleteEntry(t *testing.T) {
	svc := newTestCoreService(t, nil)
	ctx := context.Background()

	first, err := svc.SaveEntry(ctx, SaveRequest{Photo: testPhoto(t, 8, 8), Comment: "first"})
	if err != nil {
		t.Fatalf("SaveEntry error: %v", err)
	}
	second, err := svc.SaveEntry(ctx, SaveRequest{Photo: testPhoto(t, 8, 8), Comment: "second"})
	if err != nil {
		t.Fatalf("SaveEntry error: %v", err)
	}

	if err := svc.DeleteEntry(ctx, first.ID); err != nil {
		t.Fatalf("DeleteEntry error: %v", err)
	}
	entries := svc.ListEntries(ctx)
	if len(entries) != 1 || entries[0].ID != second.ID {
		t.Fatalf("expected only the second entry to remain, got %+v", entries)
	}

	if err := svc.DeleteEntry(ctx, first.ID); !errors.Is(err, ErrEntryNotFound) {
		t.Fatalf("expected ErrEntryNotFound, got %v", err)
	}
	if _, err := svc.GetEntry(ctx, first.ID); !errors.Is(err, ErrEntryNotFound) {
		t.Fatalf("expected ErrEntryNotFound from GetEntry, got %v", err)
	}
}

func TestClearEntries(t *testing.T) {
	svc := newTestCoreService(t, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := svc.SaveEntry(ctx, SaveRequest{Photo: testPhoto(t, 8, 8)}); err != nil {
			t.Fatalf("SaveEntry error: %v", err)
		}
	}
	if err := svc.ClearEntries(ctx); err != nil {
		t.Fatalf("ClearEntries error: %v", err)
	}
	if entries := svc.ListEntries(ctx); len(entries) != 0 {
		t.Fatalf("expected no entries after clear, got %d", len(entries))
	}
}

func TestEntryImage(t *testing.T) {
	svc := newTestCoreService(t, nil)
	ctx := context.Background()

	entry, err := svc.SaveEntry(ctx, SaveRequest{Photo: testPhoto(t, 40, 30)})
	if err != nil {
		t.Fatalf("SaveEntry error: %v", err)
	}

	data, mime, err := svc.EntryImage(ctx, entry.ID)
	if err != nil {
		t.Fatalf("EntryImage error: %v", err)
	}
	if mime != "image/jpeg" {
		t.Errorf("expected image/jpeg, got %s", mime)
	}
	if _, err := jpeg.Decode(bytes.NewReader(data)); err != nil {
		t.Errorf("image is not a JPEG: %v", err)
	}

	if _, _, err := svc.EntryImage(ctx, "unknown"); !errors.Is(err, ErrEntryNotFound) {
		t.Errorf("expected ErrEntryNotFound, got %v", err)
	}
}

func TestLocatorFor(t *testing.T) {
	svc := newTestCoreService(t, nil)
	lat, lng := 52.52, 13.405
	badLat := 123.0

	tests := []struct {
		name      string
		lat, lng  *float64
		ip        string
		wantNil   bool
		wantError bool
	}{
		{name: "coordinates", lat: &lat, lng: &lng},
		{name: "only latitude", lat: &lat, wantError: true},
		{name: "out of range", lat: &badLat, lng: &lng, wantError: true},
		{name: "ip without geo database", ip: "81.2.69.142", wantNil: true},
		{name: "nothing", wantNil: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			locator, err := svc.LocatorFor(tt.lat, tt.lng, tt.ip)
			if tt.wantError {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if (locator == nil) != tt.wantNil {
				t.Fatalf("expected nil locator=%v, got %v", tt.wantNil, locator)
			}
		})
	}
}

func TestNewCoreService_UnknownCommand(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Store = StoreConfig{Type: "memory", Key: "test"}
	cfg.Commands = []CommandConfig{{Name: "DoesNotExist"}}

	if _, err := NewCoreService(cfg); err == nil {
		t.Fatal("expected error for unknown command")
	}
}
