package core

import (
	"strings"
	"time"

	"github.com/jo-hoe/photostamp/internal/backend/location"
)

// CaptionLines builds the text stamped onto a photo: the local capture time, the coordinates
// or a placeholder, and the address when known. Blank lines are dropped.
func CaptionLines(capturedAt time.Time, tz *time.Location, coords *location.Coordinates, address string, caption CaptionConfig) []string {
	if tz == nil {
		tz = time.UTC
	}

	coordinateLine := caption.NoCoordinates
	if coords != nil {
		coordinateLine = coords.String()
	}

	candidates := []string{
		capturedAt.In(tz).Format(caption.TimeLayout),
		coordinateLine,
		address,
	}

	lines := make([]string, 0, len(candidates))
	for _, line := range candidates {
		if strings.TrimSpace(line) == "" {
			continue
		}
		lines = append(lines, line)
	}
	return lines
}
