// Package lrclib fetches plain and time-synced lyrics from LRCLIB.
package lrclib

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/desertthunder/tunemeld/internal/models"
	"github.com/desertthunder/tunemeld/internal/providers"
	"github.com/desertthunder/tunemeld/internal/shared"
)

const (
	Name = "lrclib"

	DefaultBaseURL = "https://lrclib.net"

	// durationTolerance is how far, in seconds, a result may be from the duration hint.
	durationTolerance = 2.0
)

type entry struct {
	ID           int     `json:"id"`
	TrackName    string  `json:"trackName"`
	ArtistName   string  `json:"artistName"`
	AlbumName    string  `json:"albumName"`
	Duration     float64 `json:"duration"`
	Instrumental bool    `json:"instrumental"`
	PlainLyrics  string  `json:"plainLyrics"`
	SyncedLyrics string  `json:"syncedLyrics"`
}

// Adapter implements [providers.LyricsLookup].
type Adapter struct {
	api *providers.JSONClient
}

var _ providers.LyricsLookup = (*Adapter)(nil)

// New creates an LRCLIB adapter. client may be nil.
func New(cfg shared.LRCLibConfig, client *http.Client) *Adapter {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	api := providers.NewJSONClient(Name, baseURL, client)
	api.UserAgent = "tunemeld/0.1.0 (https://github.com/desertthunder/tunemeld)"
	return &Adapter{api: api}
}

func (a *Adapter) Name() string { return Name }

func (a *Adapter) Open(ctx context.Context) error { return nil }

func (a *Adapter) Close() error { return nil }

// FetchLyrics tries an exact signature match when a duration hint is given, then falls back to search.
// Among search results, synced lyrics within the duration tolerance win.
func (a *Adapter) FetchLyrics(ctx context.Context, title, artist string, durationHint int) (*models.LyricsPayload, error) {
	if strings.TrimSpace(title) == "" || strings.TrimSpace(artist) == "" {
		return nil, fmt.Errorf("%w: lyrics need a title and artist", shared.ErrInvalidQuery)
	}

	if durationHint > 0 {
		params := url.Values{
			"track_name":  {title},
			"artist_name": {artist},
			"duration":    {strconv.Itoa(durationHint)},
		}
		var e entry
		err := a.api.Get(ctx, "/api/get", params, &e)
		switch {
		case err == nil && hasLyrics(e):
			return toPayload(e), nil
		case err != nil && !errors.Is(err, shared.ErrNotFound):
			return nil, err
		}
	}

	params := url.Values{"track_name": {title}, "artist_name": {artist}}
	var results []entry
	if err := a.api.Get(ctx, "/api/search", params, &results); err != nil {
		return nil, err
	}

	best := pick(results, durationHint)
	if best == nil {
		return nil, fmt.Errorf("%w: no lyrics for %s - %s", shared.ErrNotFound, artist, title)
	}
	return toPayload(*best), nil
}

// pick returns the first synced match, else the first plain match, skipping instrumentals and
// results outside the duration tolerance.
func pick(results []entry, durationHint int) *entry {
	var plain *entry
	for i := range results {
		e := &results[i]
		if !hasLyrics(*e) {
			continue
		}
		if durationHint > 0 && e.Duration > 0 && math.Abs(e.Duration-float64(durationHint)) > durationTolerance {
			continue
		}
		if e.SyncedLyrics != "" {
			return e
		}
		if plain == nil {
			plain = e
		}
	}
	return plain
}

func hasLyrics(e entry) bool {
	return !e.Instrumental && (e.SyncedLyrics != "" || strings.TrimSpace(e.PlainLyrics) != "")
}

func toPayload(e entry) *models.LyricsPayload {
	return &models.LyricsPayload{
		Unsynced: e.PlainLyrics,
		Synced:   ParseLRC(e.SyncedLyrics),
		Service:  Name,
	}
}

var timestamp = regexp.MustCompile(`\[(\d+):(\d{2})(?:[.:](\d{1,3}))?\]`)

// ParseLRC parses LRC text into synced lines ordered by offset.
// Lines with several timestamps ("[00:12.00][01:30.00] chorus") yield one line per timestamp;
// metadata tags such as [ar:...] are skipped.
func ParseLRC(text string) []models.SyncedLine {
	if text == "" {
		return nil
	}

	var lines []models.SyncedLine
	for raw := range strings.SplitSeq(text, "\n") {
		raw = strings.TrimSpace(raw)
		stamps := timestamp.FindAllStringSubmatchIndex(raw, -1)
		if len(stamps) == 0 {
			continue
		}
		lyric := strings.TrimSpace(raw[stamps[len(stamps)-1][1]:])
		for _, s := range stamps {
			lines = append(lines, models.SyncedLine{Offset: offset(raw, s), Text: lyric})
		}
	}

	slices.SortStableFunc(lines, func(a, b models.SyncedLine) int { return cmp.Compare(a.Offset, b.Offset) })
	return lines
}

func offset(raw string, idx []int) time.Duration {
	minutes, _ := strconv.Atoi(raw[idx[2]:idx[3]])
	seconds, _ := strconv.Atoi(raw[idx[4]:idx[5]])
	d := time.Duration(minutes)*time.Minute + time.Duration(seconds)*time.Second
	if idx[6] >= 0 {
		frac := raw[idx[6]:idx[7]]
		n, _ := strconv.Atoi(frac)
		switch len(frac) {
		case 1:
			d += time.Duration(n) * 100 * time.Millisecond
		case 2:
			d += time.Duration(n) * 10 * time.Millisecond
		default:
			d += time.Duration(n) * time.Millisecond
		}
	}
	return d
}
