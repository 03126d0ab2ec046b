package providers

import (
	"context"
	"strings"

	"github.com/desertthunder/tunemeld/internal/models"
)

// Adapter is the base contract of every provider plugin.
//
// Open establishes session or auth state and must release anything it partially acquired when it fails.
// Close releases the session; it is safe to call more than once.
// Implementations must be safe for concurrent calls with different identifiers.
type Adapter interface {
	// Name returns the lowercase service name (e.g., "spotify", "musicbrainz").
	Name() string

	Open(ctx context.Context) error
	Close() error
}

// MetadataLookup finds and fetches track metadata.
type MetadataLookup interface {
	Adapter

	// Search returns candidate identifiers for the query, best first.
	Search(ctx context.Context, q models.Query) ([]models.Candidate, error)

	// Fetch returns the fragment for one identifier.
	// Fails with [shared.ErrNotFound], [shared.ErrRateLimited] or [shared.ErrAuthFailed].
	Fetch(ctx context.Context, id models.Identifier) (*models.Fragment, error)
}

// LyricsLookup fetches lyrics by title and artist. durationHint is in seconds, 0 when unknown.
type LyricsLookup interface {
	Adapter

	FetchLyrics(ctx context.Context, title, artist string, durationHint int) (*models.LyricsPayload, error)
}

// DownloadResolution resolves a signed, expiring download URL.
// Fails with [shared.ErrAuthFailed] or [shared.ErrNotEntitled].
type DownloadResolution interface {
	Adapter

	ResolveDownloadURL(ctx context.Context, id models.Identifier) (*models.DownloadURL, error)
}

// AlbumLookup fetches album metadata.
type AlbumLookup interface {
	Adapter

	FetchAlbum(ctx context.Context, id models.Identifier) (*models.AlbumFragment, error)
}

// Capability is a set of provider capabilities.
type Capability uint8

const (
	Metadata Capability = 1 << iota
	Lyrics
	Download
	Album
)

var capabilityNames = []struct {
	c    Capability
	name string
}{
	{Metadata, "metadata"},
	{Lyrics, "lyrics"},
	{Download, "download"},
	{Album, "album"},
}

// Has reports whether every capability in o is present in c.
func (c Capability) Has(o Capability) bool {
	return o != 0 && c&o == o
}

func (c Capability) String() string {
	var parts []string
	for _, n := range capabilityNames {
		if c.Has(n.c) {
			parts = append(parts, n.name)
		}
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "|")
}

// ParseCapability parses a single capability name.
func ParseCapability(s string) (Capability, bool) {
	for _, n := range capabilityNames {
		if n.name == strings.ToLower(s) {
			return n.c, true
		}
	}
	return 0, false
}

// Detect returns the capabilities an adapter actually implements.
func Detect(a Adapter) Capability {
	var c Capability
	if _, ok := a.(MetadataLookup); ok {
		c |= Metadata
	}
	if _, ok := a.(LyricsLookup); ok {
		c |= Lyrics
	}
	if _, ok := a.(DownloadResolution); ok {
		c |= Download
	}
	if _, ok := a.(AlbumLookup); ok {
		c |= Album
	}
	return c
}
