package models

import "time"

// TrackRef is one entry in an album's tracklist.
type TrackRef struct {
	Position   int               `json:"position"`
	Disc       int               `json:"disc,omitempty"`
	Title      string            `json:"title"`
	ISRC       string            `json:"isrc,omitempty"`
	Duration   int               `json:"duration,omitempty"`
	ServiceIDs map[string]string `json:"service_ids,omitempty"`
}

// CanonicalAlbumRecord is the merged view of one album.
type CanonicalAlbumRecord struct {
	Title       string              `json:"title"`
	Artists     []string            `json:"artists"`
	UPC         string              `json:"upc,omitempty"`
	ReleaseDate *time.Time          `json:"release_date,omitempty"`
	Tracks      []TrackRef          `json:"tracks"`
	ServiceIDs  map[string]string   `json:"service_ids"`
	Attribution []SourceAttribution `json:"attribution"`
	Conflicts   []Conflict          `json:"conflicts,omitempty"`
	Warnings    []Warning           `json:"warnings,omitempty"`
	Partial     bool                `json:"partial,omitempty"`
}

// AlbumFragment is one adapter's partial contribution to an album record.
type AlbumFragment struct {
	Service   string    `json:"service"`
	Weight    int       `json:"weight"`
	FetchedAt time.Time `json:"fetched_at"`

	Title       string            `json:"title,omitempty"`
	Artists     []string          `json:"artists,omitempty"`
	UPC         string            `json:"upc,omitempty"`
	ReleaseDate *time.Time        `json:"release_date,omitempty"`
	Tracks      []TrackRef        `json:"tracks,omitempty"`
	ServiceIDs  map[string]string `json:"service_ids,omitempty"`
}

// Clone returns a deep copy of the album fragment.
func (f *AlbumFragment) Clone() *AlbumFragment {
	c := *f
	c.Artists = copyStrings(f.Artists)
	c.ServiceIDs = copyIDs(f.ServiceIDs)
	c.ReleaseDate = copyTime(f.ReleaseDate)
	if f.Tracks != nil {
		c.Tracks = make([]TrackRef, len(f.Tracks))
		for i, t := range f.Tracks {
			t.ServiceIDs = copyIDs(t.ServiceIDs)
			c.Tracks[i] = t
		}
	}
	return &c
}

// WithWeight returns a copy of the fragment carrying the given priority weight.
func (f *AlbumFragment) WithWeight(weight int) *AlbumFragment {
	c := f.Clone()
	c.Weight = weight
	return c
}
