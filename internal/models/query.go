package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/desertthunder/tunemeld/internal/shared"
)

// Identifier is an opaque, service-specific ID.
type Identifier struct {
	Service string `json:"service"`
	ID      string `json:"id"`
}

func (i Identifier) String() string {
	return i.Service + ":" + i.ID
}

// ParseIdentifier parses the "service:id" form used on the command line.
func ParseIdentifier(s string) (Identifier, error) {
	service, id, ok := strings.Cut(s, ":")
	if !ok || service == "" || id == "" {
		return Identifier{}, fmt.Errorf("%w: identifier %q must be service:id", shared.ErrInvalidArgument, s)
	}
	return Identifier{Service: strings.ToLower(service), ID: id}, nil
}

// Query describes one logical metadata request: an ISRC, title+artist search terms, or service-specific IDs.
type Query struct {
	ISRC     string            `json:"isrc,omitempty"`
	Title    string            `json:"title,omitempty"`
	Artist   string            `json:"artist,omitempty"`
	Album    string            `json:"album,omitempty"`
	Duration int               `json:"duration,omitempty"` // seconds, used as a hint
	IDs      map[string]string `json:"ids,omitempty"`
}

// Validate returns [shared.ErrInvalidQuery] if the query carries nothing to look up.
func (q Query) Validate() error {
	if q.ISRC != "" {
		return nil
	}
	if strings.TrimSpace(q.Title) != "" && strings.TrimSpace(q.Artist) != "" {
		return nil
	}
	for svc, id := range q.IDs {
		if svc != "" && id != "" {
			return nil
		}
	}
	return fmt.Errorf("%w: need an ISRC, title and artist, or a service ID", shared.ErrInvalidQuery)
}

// IdentifierFor returns the query's ID for service, if one was supplied.
func (q Query) IdentifierFor(service string) (Identifier, bool) {
	id, ok := q.IDs[service]
	if !ok || id == "" {
		return Identifier{}, false
	}
	return Identifier{Service: service, ID: id}, true
}

// WithID returns a copy of the query carrying an ID for service.
func (q Query) WithID(service, id string) Query {
	ids := copyIDs(q.IDs)
	if ids == nil {
		ids = make(map[string]string, 1)
	}
	ids[service] = id
	q.IDs = ids
	return q
}

// Candidate is a search hit an adapter can later fetch.
type Candidate struct {
	Identifier Identifier `json:"identifier"`
	Title      string     `json:"title"`
	Artists    []string   `json:"artists,omitempty"`
	ISRC       string     `json:"isrc,omitempty"`
	Duration   int        `json:"duration,omitempty"`
	Score      float64    `json:"score"` // 0..1 similarity to the query
}

// DownloadURL is a signed, expiring URL returned by a download-resolution adapter.
type DownloadURL struct {
	Identifier Identifier `json:"identifier"`
	URL        string     `json:"url"`
	Expiry     time.Time  `json:"expiry"`
	Format     string     `json:"format,omitempty"`
}

// Expired reports whether the URL has expired at now.
func (d *DownloadURL) Expired(now time.Time) bool {
	return !d.Expiry.IsZero() && !now.Before(d.Expiry)
}
