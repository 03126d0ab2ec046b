package main

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/desertthunder/tunemeld/internal/formatter"
	"github.com/desertthunder/tunemeld/internal/merge"
	"github.com/desertthunder/tunemeld/internal/models"
	"github.com/desertthunder/tunemeld/internal/orchestrator"
	"github.com/desertthunder/tunemeld/internal/providers"
	"github.com/desertthunder/tunemeld/internal/registry"
	"github.com/desertthunder/tunemeld/internal/shared"
	"github.com/desertthunder/tunemeld/internal/ui"
	"github.com/urfave/cli/v3"
)

type providerInfo struct {
	Name         string   `json:"name"`
	Capabilities []string `json:"capabilities"`
}

// Providers lists the registered providers in discovery order.
func (r *Runner) Providers(ctx context.Context, cmd *cli.Command) error {
	format, err := outputFormat(cmd, formatter.FormatText, formatter.FormatJSON)
	if err != nil {
		return err
	}

	var infos []providerInfo
	for _, name := range r.registry.Names() {
		e, ok := r.registry.Get(name)
		if !ok {
			continue
		}
		infos = append(infos, providerInfo{Name: e.Name, Capabilities: strings.Split(e.Capabilities.String(), "|")})
	}

	return r.write(format, infos, func() []byte {
		var sb strings.Builder
		if len(infos) == 0 {
			sb.WriteString("No providers enabled\n")
		}
		for _, info := range infos {
			fmt.Fprintf(&sb, "%-12s %s\n", info.Name, strings.Join(info.Capabilities, ", "))
		}
		return []byte(sb.String())
	})
}

// Track fetches a track from every metadata provider, merges the fragments and optionally
// adds lyrics and stores the record.
func (r *Runner) Track(ctx context.Context, cmd *cli.Command) error {
	format, err := outputFormat(cmd, formatter.FormatText, formatter.FormatJSON)
	if err != nil {
		return err
	}
	q, err := queryFrom(cmd)
	if err != nil {
		return err
	}
	entries, err := r.resolve(providers.Metadata, cmd)
	if err != nil {
		return err
	}

	fetcher, stop := r.fetcher(cmd)
	batch, err := fetcher.FetchTracks(ctx, q, entries)
	if err != nil {
		stop()
		return err
	}
	batches := []*orchestrator.Batch{batch}

	rec, err := r.merger.MergeOutcomes(batch)
	if err == nil && cmd.Bool("lyrics") && !batch.Cancelled {
		var lyrics *orchestrator.Batch
		if lyrics, err = r.fetchLyricsFor(ctx, fetcher, rec, cmd); lyrics != nil {
			batches = append(batches, lyrics)
			rec, err = r.merger.MergeOutcomes(batch, lyrics)
		}
	}
	stop()

	if cmd.Bool("outcomes") {
		r.printOutcomes(batches...)
	}
	if err != nil {
		return err
	}
	r.warn(rec.Warnings)

	if cmd.Bool("save") {
		store, err := r.store()
		if err != nil {
			return err
		}
		if err := store.Accept(ctx, rec); err != nil {
			return fmt.Errorf("failed to save record: %w", err)
		}
		r.logger.Info("record saved", "title", rec.Title, "isrc", rec.ISRC)
	}

	return r.write(format, rec, func() []byte { return formatter.TrackToText(rec) })
}

// fetchLyricsFor fetches standalone lyrics for a merged record. No lyrics providers is not an error.
func (r *Runner) fetchLyricsFor(ctx context.Context, fetcher *orchestrator.Orchestrator, rec *models.CanonicalTrackRecord, cmd *cli.Command) (*orchestrator.Batch, error) {
	entries := r.registry.Resolve(providers.Lyrics)
	if len(entries) == 0 {
		r.logger.Warn("no lyrics providers enabled")
		return nil, nil
	}
	q := models.Query{Title: rec.Title, Artist: rec.PrimaryArtist(), Duration: rec.Duration}
	if rec.Album != nil {
		q.Album = rec.Album.Title
	}
	return fetcher.FetchLyrics(ctx, q, entries)
}

// Album fetches an album by service identifiers and merges the fragments.
func (r *Runner) Album(ctx context.Context, cmd *cli.Command) error {
	format, err := outputFormat(cmd, formatter.FormatText, formatter.FormatJSON)
	if err != nil {
		return err
	}

	var q models.Query
	for _, raw := range cmd.StringSlice("id") {
		id, err := models.ParseIdentifier(raw)
		if err != nil {
			return err
		}
		q = q.WithID(id.Service, id.ID)
	}
	if len(q.IDs) == 0 {
		return fmt.Errorf("%w: --id service:id", shared.ErrMissingArgument)
	}

	entries, err := r.resolve(providers.Album, cmd)
	if err != nil {
		return err
	}

	fetcher, stop := r.fetcher(cmd)
	batch, err := fetcher.FetchAlbums(ctx, q, entries)
	stop()
	if err != nil {
		return err
	}

	rec, err := r.merger.MergeAlbumOutcomes(batch)
	if err != nil {
		return err
	}
	r.warn(rec.Warnings)

	return r.write(format, rec, func() []byte { return formatter.AlbumToText(rec) })
}

// Lyrics fetches lyrics by title and artist and prints the best payload.
func (r *Runner) Lyrics(ctx context.Context, cmd *cli.Command) error {
	format, err := outputFormat(cmd, formatter.FormatText, formatter.FormatJSON)
	if err != nil {
		return err
	}
	q := models.Query{Title: cmd.String("title"), Artist: cmd.String("artist"), Duration: int(cmd.Int("duration"))}

	entries, err := r.resolve(providers.Lyrics, cmd)
	if err != nil {
		return err
	}

	fetcher, stop := r.fetcher(cmd)
	batch, err := fetcher.FetchLyrics(ctx, q, entries)
	stop()
	if err != nil {
		return err
	}

	lyrics, warnings, err := r.merger.LyricsOutcomes(batch)
	if err != nil {
		return err
	}
	r.warn(warnings)

	return r.write(format, lyrics, func() []byte { return formatter.LyricsToText(lyrics) })
}

// Download resolves a download URL from the download providers and prints the first live one
// in priority order.
func (r *Runner) Download(ctx context.Context, cmd *cli.Command) error {
	format, err := outputFormat(cmd, formatter.FormatText, formatter.FormatJSON)
	if err != nil {
		return err
	}
	q, err := queryFrom(cmd)
	if err != nil {
		return err
	}
	entries, err := r.resolve(providers.Download, cmd)
	if err != nil {
		return err
	}

	fetcher, stop := r.fetcher(cmd)
	batch, err := fetcher.ResolveDownload(ctx, q, entries)
	stop()
	if err != nil {
		return err
	}

	now := r.now()
	var download *models.DownloadURL
	for _, o := range batch.Outcomes {
		if o.OK() && o.Download != nil && !o.Download.Expired(now) {
			download = o.Download
			break
		}
	}
	r.warn(merge.Warnings(batch))
	if download == nil {
		if batch.Cancelled {
			return fmt.Errorf("batch cancelled before any provider answered: %w", batch.Err)
		}
		return fmt.Errorf("%w: no download URL", shared.ErrNotFound)
	}

	return r.write(format, download, func() []byte { return formatter.DownloadToText(download, now) })
}

// resolve returns the entries for capability, restricted by --provider.
func (r *Runner) resolve(capability providers.Capability, cmd *cli.Command) ([]registry.Entry, error) {
	filter := cmd.StringSlice("provider")
	entries := r.registry.Resolve(capability, filter...)
	if len(entries) == 0 {
		if len(filter) > 0 {
			return nil, fmt.Errorf("%w: none of %s provide %s", shared.ErrNoProviders, strings.Join(filter, ", "), capability)
		}
		return nil, fmt.Errorf("%w: no enabled provider supports %s", shared.ErrNoProviders, capability)
	}
	return entries, nil
}

func (r *Runner) printOutcomes(batches ...*orchestrator.Batch) {
	for _, b := range batches {
		fmt.Fprint(r.errOutput, ui.Outcomes(r.palette, b))
	}
}

// queryFrom builds a query from the --isrc, --title, --artist, --album, --duration and --id flags.
func queryFrom(cmd *cli.Command) (models.Query, error) {
	q := models.Query{
		ISRC:     strings.ToUpper(strings.TrimSpace(cmd.String("isrc"))),
		Title:    strings.TrimSpace(cmd.String("title")),
		Artist:   strings.TrimSpace(cmd.String("artist")),
		Album:    strings.TrimSpace(cmd.String("album")),
		Duration: int(cmd.Int("duration")),
	}
	if q.Duration < 0 {
		return models.Query{}, fmt.Errorf("%w: --duration must not be negative", shared.ErrInvalidArgument)
	}

	for _, raw := range cmd.StringSlice("id") {
		id, err := models.ParseIdentifier(raw)
		if err != nil {
			return models.Query{}, err
		}
		q = q.WithID(id.Service, id.ID)
	}

	if err := q.Validate(); err != nil {
		return models.Query{}, err
	}
	return q, nil
}

// outputFormat parses --format and rejects formats the command cannot render.
func outputFormat(cmd *cli.Command, allowed ...formatter.Format) (formatter.Format, error) {
	format, err := formatter.ParseFormat(cmd.String("format"))
	if err != nil {
		return "", err
	}
	if !slices.Contains(allowed, format) {
		return "", fmt.Errorf("%w: %s does not support %s output", shared.ErrInvalidArgument, cmd.Name, format)
	}
	return format, nil
}
