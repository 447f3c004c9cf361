package database

import (
	"fmt"
	"math"
	"time"
)

// CapturedAtLayout is the canonical, sortable form of Entry.CapturedAt (UTC, millisecond precision).
const CapturedAtLayout = "2006-01-02T15:04:05.000Z07:00"

// Entry is a single annotated photo with its metadata.
type Entry struct {
	ID         string   `json:"id" validate:"required"`
	Image      string   `json:"image" validate:"required"` // self-contained data URL
	Comment    string   `json:"comment"`
	CapturedAt string   `json:"capturedAt" validate:"required,timestamp"`
	Lat        *float64 `json:"lat,omitempty"`
	Lng        *float64 `json:"lng,omitempty"`
	Address    string   `json:"address"`
}

// FormatCapturedAt renders t in the canonical stored form.
func FormatCapturedAt(t time.Time) string {
	return t.UTC().Format(CapturedAtLayout)
}

// ParseCapturedAt accepts the canonical form as well as any RFC 3339 timestamp.
func ParseCapturedAt(value string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, value)
}

// CapturedTime returns the parsed capture instant, or the zero time if the field is malformed.
func (e Entry) CapturedTime() time.Time {
	t, err := ParseCapturedAt(e.CapturedAt)
	if err != nil {
		return time.Time{}
	}
	return t
}

// HasCoordinates reports whether both lat and lng are set.
func (e Entry) HasCoordinates() bool {
	return e.Lat != nil && e.Lng != nil
}

// Clone returns a deep copy so callers never share the coordinate pointers with the store.
func (e Entry) Clone() Entry {
	c := e
	if e.Lat != nil {
		lat := *e.Lat
		c.Lat = &lat
	}
	if e.Lng != nil {
		lng := *e.Lng
		c.Lng = &lng
	}
	return c
}

// Validate checks struct tags plus the rules tags cannot express.
func (e Entry) Validate() error {
	if err := entryValidator().Struct(e); err != nil {
		return err
	}
	if (e.Lat == nil) != (e.Lng == nil) {
		return fmt.Errorf("lat and lng must both be set or both be absent")
	}
	if e.HasCoordinates() {
		if err := ValidateCoordinates(*e.Lat, *e.Lng); err != nil {
			return err
		}
	}
	return nil
}

// ValidateCoordinates rejects NaN and out-of-range values.
func ValidateCoordinates(lat, lng float64) error {
	if math.IsNaN(lat) || lat < -90 || lat > 90 {
		return fmt.Errorf("latitude out of range: %v", lat)
	}
	if math.IsNaN(lng) || lng < -180 || lng > 180 {
		return fmt.Errorf("longitude out of range: %v", lng)
	}
	return nil
}
