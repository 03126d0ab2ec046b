package models

import (
	"context"
	"time"
)

// Model defines the base interface for persistent models.
// Implementations include PersistedRecord.
type Model interface {
	ID() string           // ID returns the unique identifier for this model
	CreatedAt() time.Time // CreatedAt returns when this model was created
	UpdatedAt() time.Time // UpdatedAt returns when this model was last updated
	Validate() error      // Validate checks if the model's data is valid and returns an error if not
}

// Repository defines the interface for data access operations.
type Repository[T Model] interface {
	Create(model T) error                      // Create inserts a new model into the database
	Get(id string) (T, error)                  // Get retrieves a model by its ID
	Update(model T) error                      // Update modifies an existing model in the database
	Delete(id string) error                    // Delete removes a model from the database by its ID
	List(criteria map[string]any) ([]T, error) // List retrieves all models matching the given criteria
}

// Sink receives canonical records produced by a merge.
type Sink interface {
	Accept(ctx context.Context, rec *CanonicalTrackRecord) error
}

// Canonical field names used in attribution and conflict entries.
const (
	FieldTitle       = "title"
	FieldArtists     = "artists"
	FieldAlbum       = "album"
	FieldTrackNumber = "track_number"
	FieldDiscNumber  = "disc_number"
	FieldDuration    = "duration"
	FieldReleaseDate = "release_date"
	FieldGenre       = "genre"
	FieldISRC        = "isrc"
	FieldExplicit    = "explicit"
	FieldServiceIDs  = "service_ids"
	FieldLyrics      = "lyrics"
	FieldUPC         = "upc"
	FieldTracks      = "tracks"
)

// SourceAttribution records which fields one fragment contributed to a record.
type SourceAttribution struct {
	Service   string    `json:"service"`
	Fields    []string  `json:"fields"`
	FetchedAt time.Time `json:"fetched_at"`
}

// Conflict records a value proposed by a lower priority fragment that disagreed with the value kept.
type Conflict struct {
	Field    string `json:"field"`
	Kept     string `json:"kept"`
	Proposed string `json:"proposed"`
	Service  string `json:"service"` // service that proposed the rejected value
}

// Warning reports a provider that failed without preventing a record from being produced.
type Warning struct {
	Service string `json:"service"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

func copyIDs(ids map[string]string) map[string]string {
	if ids == nil {
		return nil
	}
	out := make(map[string]string, len(ids))
	for k, v := range ids {
		out[k] = v
	}
	return out
}

func copyStrings(s []string) []string {
	if s == nil {
		return nil
	}
	return append([]string(nil), s...)
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
