package models

import (
	"time"
)

// AlbumRef is the album a track belongs to.
type AlbumRef struct {
	Title      string            `json:"title"`
	ServiceIDs map[string]string `json:"service_ids,omitempty"`
}

// IsEmpty reports whether the reference carries no album data.
func (a *AlbumRef) IsEmpty() bool {
	return a == nil || (a.Title == "" && len(a.ServiceIDs) == 0)
}

// CanonicalTrackRecord is the merged, internally consistent view of one track.
type CanonicalTrackRecord struct {
	Title       string              `json:"title"`
	Artists     []string            `json:"artists"`
	Album       *AlbumRef           `json:"album,omitempty"`
	TrackNumber int                 `json:"track_number,omitempty"`
	DiscNumber  int                 `json:"disc_number,omitempty"`
	Duration    int                 `json:"duration"` // seconds
	ReleaseDate *time.Time          `json:"release_date,omitempty"`
	Genre       string              `json:"genre,omitempty"`
	ISRC        string              `json:"isrc,omitempty"`
	Explicit    bool                `json:"explicit"`
	ServiceIDs  map[string]string   `json:"service_ids"`
	Lyrics      *LyricsPayload      `json:"lyrics,omitempty"`
	Attribution []SourceAttribution `json:"attribution"`
	Conflicts   []Conflict          `json:"conflicts,omitempty"`
	Warnings    []Warning           `json:"warnings,omitempty"`
	Partial     bool                `json:"partial,omitempty"` // produced from a cancelled batch
}

// PrimaryArtist returns the first credited artist or an empty string.
func (r *CanonicalTrackRecord) PrimaryArtist() string {
	if len(r.Artists) == 0 {
		return ""
	}
	return r.Artists[0]
}

// ContributedBy reports whether the given service appears in the attribution list.
func (r *CanonicalTrackRecord) ContributedBy(service string) bool {
	for _, a := range r.Attribution {
		if a.Service == service {
			return true
		}
	}
	return false
}

// Fragment is one adapter's partial contribution to a track record.
//
// Every canonical field is optional: zero values, nil pointers and empty collections mean "not supplied".
// Fragments are not modified after an adapter returns them; consumers copy what they keep.
type Fragment struct {
	Service   string    `json:"service"`
	Weight    int       `json:"weight"` // configured priority weight, lower is stronger
	FetchedAt time.Time `json:"fetched_at"`

	Title       string            `json:"title,omitempty"`
	Artists     []string          `json:"artists,omitempty"`
	Album       *AlbumRef         `json:"album,omitempty"`
	TrackNumber int               `json:"track_number,omitempty"`
	DiscNumber  int               `json:"disc_number,omitempty"`
	Duration    int               `json:"duration,omitempty"`
	ReleaseDate *time.Time        `json:"release_date,omitempty"`
	Genre       string            `json:"genre,omitempty"`
	ISRC        string            `json:"isrc,omitempty"`
	Explicit    *bool             `json:"explicit,omitempty"`
	ServiceIDs  map[string]string `json:"service_ids,omitempty"`
	Lyrics      *LyricsPayload    `json:"lyrics,omitempty"`
}

// WithWeight returns a copy of the fragment carrying the given priority weight.
func (f *Fragment) WithWeight(weight int) *Fragment {
	c := f.Clone()
	c.Weight = weight
	return c
}

// Clone returns a deep copy of the fragment.
func (f *Fragment) Clone() *Fragment {
	c := *f
	c.Artists = copyStrings(f.Artists)
	c.ServiceIDs = copyIDs(f.ServiceIDs)
	c.ReleaseDate = copyTime(f.ReleaseDate)
	if f.Album != nil {
		c.Album = &AlbumRef{Title: f.Album.Title, ServiceIDs: copyIDs(f.Album.ServiceIDs)}
	}
	if f.Explicit != nil {
		v := *f.Explicit
		c.Explicit = &v
	}
	if f.Lyrics != nil {
		c.Lyrics = f.Lyrics.Clone()
	}
	return &c
}

// Bool returns a pointer to b, for populating optional fragment flags.
func Bool(b bool) *bool { return &b }

// Date returns a pointer to a UTC date at midnight.
func Date(year int, month time.Month, day int) *time.Time {
	t := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	return &t
}

// ParseReleaseDate parses the partial date formats catalogs return ("2006", "2006-01", "2006-01-02").
// Returns nil when s is empty or unparseable.
func ParseReleaseDate(s string) *time.Time {
	for _, layout := range []string{"2006-01-02", "2006-01", "2006"} {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	return nil
}
