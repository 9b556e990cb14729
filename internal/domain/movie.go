package domain

import "time"

// Movie represents the canonical movie entity in the database/service.
// ID is assigned by the store and never changes afterwards.
type Movie struct {
	ID          int64
	Title       string
	Genre       string
	ReleaseDate *time.Time
}
