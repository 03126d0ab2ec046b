// package formatter renders canonical records as plain text, JSON and CSV
package formatter

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/desertthunder/tunemeld/internal/models"
	"github.com/desertthunder/tunemeld/internal/shared"
)

// Format selects an output rendering.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
)

// ParseFormat parses a --format flag value. An empty string selects text.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FormatText, nil
	case FormatText, FormatJSON, FormatCSV:
		return f, nil
	default:
		return "", fmt.Errorf("%w: unknown format %q", shared.ErrInvalidArgument, s)
	}
}

// ToJSON renders any record as indented JSON.
func ToJSON(v any) ([]byte, error) {
	data, err := shared.MarshalJSON(v, true)
	if err != nil {
		return nil, fmt.Errorf("failed to encode JSON: %w", err)
	}
	return append(data, '\n'), nil
}

// TrackToText renders a track record with its sources, conflicts and lyrics.
func TrackToText(rec *models.CanonicalTrackRecord) []byte {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "%s - %s\n", strings.Join(rec.Artists, ", "), rec.Title)
	if rec.Album != nil && rec.Album.Title != "" {
		fmt.Fprintf(&buf, "Album: %s\n", rec.Album.Title)
	}
	if rec.TrackNumber > 0 {
		if rec.DiscNumber > 0 {
			fmt.Fprintf(&buf, "Track: %d-%d\n", rec.DiscNumber, rec.TrackNumber)
		} else {
			fmt.Fprintf(&buf, "Track: %d\n", rec.TrackNumber)
		}
	}
	fmt.Fprintf(&buf, "Duration: %s\n", shared.FormatDuration(rec.Duration))
	if rec.ReleaseDate != nil {
		fmt.Fprintf(&buf, "Released: %s\n", rec.ReleaseDate.Format("2006-01-02"))
	}
	if rec.Genre != "" {
		fmt.Fprintf(&buf, "Genre: %s\n", rec.Genre)
	}
	if rec.ISRC != "" {
		fmt.Fprintf(&buf, "ISRC: %s\n", rec.ISRC)
	}
	if rec.Explicit {
		buf.WriteString("Explicit: yes\n")
	}

	writeServiceIDs(&buf, rec.ServiceIDs)
	writeAttribution(&buf, rec.Attribution)
	writeConflicts(&buf, rec.Conflicts)

	if !rec.Lyrics.IsEmpty() {
		kind := "unsynced"
		if rec.Lyrics.IsSynced() {
			kind = "synced"
		}
		fmt.Fprintf(&buf, "\nLyrics (%s, %s):\n", kind, rec.Lyrics.Service)
		buf.Write(LyricsToText(rec.Lyrics))
	}

	return buf.Bytes()
}

// AlbumToText renders an album record and its tracklist.
func AlbumToText(rec *models.CanonicalAlbumRecord) []byte {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "%s - %s\n", strings.Join(rec.Artists, ", "), rec.Title)
	if rec.ReleaseDate != nil {
		fmt.Fprintf(&buf, "Released: %s\n", rec.ReleaseDate.Format("2006-01-02"))
	}
	if rec.UPC != "" {
		fmt.Fprintf(&buf, "UPC: %s\n", rec.UPC)
	}
	fmt.Fprintf(&buf, "Tracks: %d\n", len(rec.Tracks))
	writeServiceIDs(&buf, rec.ServiceIDs)
	writeAttribution(&buf, rec.Attribution)
	writeConflicts(&buf, rec.Conflicts)

	if len(rec.Tracks) > 0 {
		buf.WriteString("\n")
	}
	for _, t := range rec.Tracks {
		position := strconv.Itoa(t.Position)
		if t.Disc > 0 {
			position = fmt.Sprintf("%d-%d", t.Disc, t.Position)
		}
		fmt.Fprintf(&buf, "%s. %s", position, t.Title)
		if t.Duration > 0 {
			fmt.Fprintf(&buf, " [%s]", shared.FormatDuration(t.Duration))
		}
		buf.WriteString("\n")
	}

	return buf.Bytes()
}

// LyricsToText renders synced lyrics as LRC, otherwise the plain text.
func LyricsToText(l *models.LyricsPayload) []byte {
	if l.IsEmpty() {
		return nil
	}
	if l.IsSynced() {
		return []byte(l.LRC())
	}
	text := l.Unsynced
	if !strings.HasSuffix(text, "\n") {
		text += "\n"
	}
	return []byte(text)
}

// DownloadToText renders a resolved download URL with its format and remaining lifetime at now.
func DownloadToText(d *models.DownloadURL, now time.Time) []byte {
	var buf bytes.Buffer

	buf.WriteString(d.Identifier.Service)
	if d.Format != "" {
		fmt.Fprintf(&buf, " (%s)", d.Format)
	}
	switch {
	case d.Expiry.IsZero():
	case d.Expired(now):
		buf.WriteString(" expired")
	default:
		fmt.Fprintf(&buf, " expires in %s", d.Expiry.Sub(now).Round(time.Second))
	}
	fmt.Fprintf(&buf, "\n%s\n", d.URL)

	return buf.Bytes()
}

// RecordsToText renders stored records one per line as "#sequence artist - title [duration] isrc".
func RecordsToText(records []*models.PersistedRecord) []byte {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "Records: %d\n\n", len(records))
	for _, p := range records {
		rec := p.Record()
		fmt.Fprintf(&buf, "#%d %s - %s [%s]", p.Sequence(), rec.PrimaryArtist(), rec.Title, shared.FormatDuration(rec.Duration))
		if rec.ISRC != "" {
			fmt.Fprintf(&buf, " %s", rec.ISRC)
		}
		buf.WriteString("\n")
	}

	return buf.Bytes()
}

// RecordsToCSV converts stored records to CSV with columns: ID, Sequence, Title, Artist, Album, Duration, ISRC, Services
func RecordsToCSV(records []*models.PersistedRecord) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	headers := []string{"ID", "Sequence", "Title", "Artist", "Album", "Duration", "ISRC", "Services"}
	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, p := range records {
		rec := p.Record()
		album := ""
		if rec.Album != nil {
			album = rec.Album.Title
		}
		row := []string{
			p.ID(),
			strconv.Itoa(p.Sequence()),
			rec.Title,
			strings.Join(rec.Artists, "; "),
			album,
			strconv.Itoa(rec.Duration),
			rec.ISRC,
			strings.Join(sortedKeys(rec.ServiceIDs), " "),
		}
		if err := writer.Write(row); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}

// Write writes data to w, reporting short writes.
func Write(w io.Writer, data []byte) error {
	n, err := w.Write(data)
	if err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	if n != len(data) {
		return fmt.Errorf("failed to write output: %w", io.ErrShortWrite)
	}
	return nil
}

// WriteExport writes data to path, creating parent directories.
func WriteExport(path string, data []byte) error {
	if path == "" {
		return fmt.Errorf("%w: export path", shared.ErrMissingArgument)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write export file: %w", err)
	}
	return nil
}

func writeServiceIDs(buf *bytes.Buffer, ids map[string]string) {
	if len(ids) == 0 {
		return
	}
	buf.WriteString("\nService IDs:\n")
	for _, k := range sortedKeys(ids) {
		fmt.Fprintf(buf, "  %s: %s\n", k, ids[k])
	}
}

func writeAttribution(buf *bytes.Buffer, attribution []models.SourceAttribution) {
	if len(attribution) == 0 {
		return
	}
	buf.WriteString("\nSources:\n")
	for _, a := range attribution {
		fmt.Fprintf(buf, "  %s: %s\n", a.Service, strings.Join(a.Fields, ", "))
	}
}

func writeConflicts(buf *bytes.Buffer, conflicts []models.Conflict) {
	if len(conflicts) == 0 {
		return
	}
	buf.WriteString("\nConflicts:\n")
	for _, c := range conflicts {
		fmt.Fprintf(buf, "  %s: kept %s, %s proposed %s\n", c.Field, c.Kept, c.Service, c.Proposed)
	}
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
