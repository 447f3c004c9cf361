package database

import (
	"github.com/google/uuid"
)

// GenerateID returns a time-ordered UUIDv7 so ids stay unique across rapid successive saves.
func GenerateID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}
