package core

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/jo-hoe/photostamp/internal/backend/commands"
	"github.com/jo-hoe/photostamp/internal/backend/commandstructure"
	"github.com/jo-hoe/photostamp/internal/backend/database"
	"github.com/jo-hoe/photostamp/internal/backend/location"
	"github.com/jo-hoe/photostamp/internal/common"
)

var (
	ErrNoPhoto        = errors.New("no photo selected")
	ErrSaveInProgress = errors.New("a save is already in progress")
	ErrEntryNotFound  = errors.New("entry not found")
)

// SaveRequest carries the user input of one save.
type SaveRequest struct {
	Photo   []byte
	Comment string
	// Locator provides device coordinates; nil means the capability is unavailable
	Locator location.Locator
}

// CoreService drives the capture flow and owns access to the stored entries.
type CoreService struct {
	config       *ServiceConfig
	store        *database.EntryStore
	geocoder     *location.Geocoder
	cityDatabase *location.CityDatabase
	preprocess   []commandstructure.Command
	timezone     *time.Location
	now          func() time.Time
	// held for the whole save flow so saves never overlap
	saving sync.Mutex
}

func NewCoreService(config *ServiceConfig) (*CoreService, error) {
	timezone, err := time.LoadLocation(config.Timezone)
	if err != nil {
		return nil, fmt.Errorf("failed to load timezone %s: %w", config.Timezone, err)
	}

	preprocess, err := commandstructure.BuildCommands(config.CommandConfigs())
	if err != nil {
		return nil, fmt.Errorf("failed to build preprocessing commands: %w", err)
	}
	// fail at startup rather than on the first save
	if _, err := commands.NewAnnotateCommandWithParams(config.AnnotateParams(), nil); err != nil {
		return nil, fmt.Errorf("invalid annotation settings: %w", err)
	}

	slot, err := database.NewSlot(config.Store.Type, config.Store.ConnectionString, config.Store.Key)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}

	var cityDatabase *location.CityDatabase
	if config.Location.GeoDatabase != "" {
		cityDatabase, err = location.OpenCityDatabase(config.Location.GeoDatabase)
		if err != nil {
			_ = slot.Close()
			return nil, fmt.Errorf("failed to open geo database: %w", err)
		}
		slog.Info("geo database opened", "path", config.Location.GeoDatabase)
	}

	var geocoder *location.Geocoder
	if config.Geocoding.IsEnabled() {
		geocoder = location.NewGeocoder(location.GeocoderConfig{
			Endpoint:          config.Geocoding.Endpoint,
			UserAgent:         config.Geocoding.UserAgent,
			Zoom:              config.Geocoding.Zoom,
			Timeout:           config.Geocoding.Timeout,
			RequestsPerSecond: config.Geocoding.RequestsPerSecond,
		})
	} else {
		slog.Info("reverse geocoding disabled")
	}

	return &CoreService{
		config:       config,
		store:        database.NewEntryStore(slot),
		geocoder:     geocoder,
		cityDatabase: cityDatabase,
		preprocess:   preprocess,
		timezone:     timezone,
		now:          time.Now,
	}, nil
}

// LocatorFor picks the coordinate source for a save. Explicit coordinates win; otherwise the
// client IP is looked up when a geo database is configured. A nil locator means no location.
func (service *CoreService) LocatorFor(lat, lng *float64, clientIP string) (location.Locator, error) {
	if lat != nil || lng != nil {
		if lat == nil || lng == nil {
			return nil, fmt.Errorf("lat and lng must be given together")
		}
		locator, err := location.NewStaticLocator(*lat, *lng)
		if err != nil {
			return nil, err
		}
		return locator, nil
	}
	if clientIP != "" && service.cityDatabase != nil {
		return service.cityDatabase.LocatorFor(clientIP), nil
	}
	return nil, nil
}

// SaveEntry captures the current time and location, stamps them onto the photo and stores the
// result together with the comment.
func (service *CoreService) SaveEntry(ctx context.Context, request SaveRequest) (*database.Entry, error) {
	if len(request.Photo) == 0 {
		return nil, ErrNoPhoto
	}
	if !service.saving.TryLock() {
		return nil, ErrSaveInProgress
	}
	defer service.saving.Unlock()

	start := time.Now()
	defer func() {
		saveDuration.Observe(time.Since(start).Seconds())
	}()

	capturedAt := service.now()

	coords := location.CurrentLocation(ctx, request.Locator, service.config.Location.Timeout)
	address := ""
	if coords == nil {
		locationUnavailable.Inc()
	} else if service.geocoder != nil {
		address = service.geocoder.ReverseGeocode(ctx, coords.Lat, coords.Lng)
		if address == "" {
			geocodeFailures.Inc()
		}
	}

	lines := CaptionLines(capturedAt, service.timezone, coords, address, service.config.Caption)
	image := service.annotate(request.Photo, lines)

	id, err := database.GenerateID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate entry id: %w", err)
	}

	entry := database.Entry{
		ID:         id,
		Image:      common.EncodeDataURL(image),
		Comment:    strings.TrimSpace(request.Comment),
		CapturedAt: database.FormatCapturedAt(capturedAt),
		Address:    address,
	}
	if coords != nil {
		lat, lng := coords.Lat, coords.Lng
		entry.Lat = &lat
		entry.Lng = &lng
	}

	if err := service.store.Append(ctx, entry); err != nil {
		return nil, fmt.Errorf("failed to save entry: %w", err)
	}
	entriesSaved.Inc()

	slog.Info("entry saved",
		"id", entry.ID,
		"has_coordinates", coords != nil,
		"has_address", address != "",
		"image_size_bytes", len(image),
		"duration_ms", time.Since(start).Milliseconds())
	return &entry, nil
}

// annotate runs the preprocessing commands and the caption stamp. Any failure yields the raw photo.
func (service *CoreService) annotate(photo []byte, lines []string) []byte {
	annotateCommand, err := commands.NewAnnotateCommandWithParams(service.config.AnnotateParams(), lines)
	if err != nil {
		slog.Warn("failed to create annotate command, storing original photo", "error", err)
		annotationFallbacks.Inc()
		return photo
	}

	pipeline := make([]commandstructure.Command, 0, len(service.preprocess)+1)
	pipeline = append(pipeline, service.preprocess...)
	pipeline = append(pipeline, annotateCommand)

	annotated, err := commandstructure.NewCommandInvoker(pipeline).Execute(photo)
	if err != nil {
		slog.Warn("failed to annotate photo, storing original photo", "error", err)
		annotationFallbacks.Inc()
		return photo
	}
	if bytes.Equal(annotated, photo) {
		slog.Warn("photo could not be decoded, storing original photo")
		annotationFallbacks.Inc()
	}
	return annotated
}

// ListEntries returns all entries, newest capture first.
func (service *CoreService) ListEntries(ctx context.Context) []database.Entry {
	entries := service.store.Load(ctx)
	slices.SortStableFunc(entries, func(a, b database.Entry) int {
		return b.CapturedTime().Compare(a.CapturedTime())
	})
	return entries
}

func (service *CoreService) GetEntry(ctx context.Context, id string) (*database.Entry, error) {
	entry, found := service.store.Get(ctx, id)
	if !found {
		return nil, ErrEntryNotFound
	}
	return entry, nil
}

// EntryImage returns the decoded annotated image of an entry and its MIME type.
func (service *CoreService) EntryImage(ctx context.Context, id string) ([]byte, string, error) {
	entry, err := service.GetEntry(ctx, id)
	if err != nil {
		return nil, "", err
	}
	data, mime, err := common.DecodeDataURL(entry.Image)
	if err != nil {
		return nil, "", fmt.Errorf("failed to decode image of entry %s: %w", id, err)
	}
	return data, mime, nil
}

func (service *CoreService) DeleteEntry(ctx context.Context, id string) error {
	found, err := service.store.Delete(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to delete entry %s: %w", id, err)
	}
	if !found {
		return ErrEntryNotFound
	}
	entriesDeleted.Inc()
	slog.Info("entry deleted", "id", id)
	return nil
}

// ClearEntries removes every stored entry.
func (service *CoreService) ClearEntries(ctx context.Context) error {
	count := len(service.store.Load(ctx))
	if err := service.store.Clear(ctx); err != nil {
		return err
	}
	entriesDeleted.Add(float64(count))
	slog.Info("entries cleared", "count", count)
	return nil
}

func (service *CoreService) Close() error {
	var errs []error
	if err := service.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close store: %w", err))
	}
	if service.cityDatabase != nil {
		if err := service.cityDatabase.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close geo database: %w", err))
		}
	}
	return errors.Join(errs...)
}
