package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/desertthunder/tunemeld/internal/formatter"
	"github.com/desertthunder/tunemeld/internal/shared"
	"github.com/urfave/cli/v3"
)

// Records lists stored records, newest first, as text, JSON or CSV.
//
// With --export the rendered output is written to a file instead of stdout.
func (r *Runner) Records(ctx context.Context, cmd *cli.Command) error {
	format, err := outputFormat(cmd, formatter.FormatText, formatter.FormatJSON, formatter.FormatCSV)
	if err != nil {
		return err
	}

	limit := int(cmd.Int("limit"))
	if limit < 0 {
		return fmt.Errorf("%w: --limit must not be negative", shared.ErrInvalidArgument)
	}
	criteria := map[string]any{}
	if isrc := strings.TrimSpace(cmd.String("isrc")); isrc != "" {
		criteria["isrc"] = isrc
	}
	if artist := strings.TrimSpace(cmd.String("artist")); artist != "" {
		criteria["artist"] = artist
	}
	if service := strings.TrimSpace(cmd.String("service")); service != "" {
		criteria["service"] = strings.ToLower(service)
	}
	if limit > 0 {
		criteria["limit"] = limit
	}

	store, err := r.store()
	if err != nil {
		return err
	}
	records, err := store.List(criteria)
	if err != nil {
		return fmt.Errorf("failed to list records: %w", err)
	}

	var data []byte
	switch format {
	case formatter.FormatJSON:
		payload := make([]any, 0, len(records))
		for _, p := range records {
			payload = append(payload, map[string]any{"id": p.ID(), "sequence": p.Sequence(), "record": p.Record()})
		}
		data, err = formatter.ToJSON(payload)
	case formatter.FormatCSV:
		data, err = formatter.RecordsToCSV(records)
	default:
		data = formatter.RecordsToText(records)
	}
	if err != nil {
		return err
	}

	if path := cmd.String("export"); path != "" {
		if err := formatter.WriteExport(path, data); err != nil {
			return err
		}
		r.logger.Info("records exported", "path", path, "count", len(records))
		return r.writePlain("%s exported %d record(s) to %s\n", r.palette.OK("✓"), len(records), path)
	}
	return formatter.Write(r.output, data)
}
