package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/desertthunder/tunemeld/internal/formatter"
	"github.com/desertthunder/tunemeld/internal/models"
	"github.com/desertthunder/tunemeld/internal/orchestrator"
	"github.com/desertthunder/tunemeld/internal/shared"
	"github.com/desertthunder/tunemeld/internal/tasks"
	"github.com/urfave/cli/v3"
)

// Bulk looks up every query of a list on a worker pool and prints one line per query.
func (r *Runner) Bulk(ctx context.Context, cmd *cli.Command) error {
	format, err := outputFormat(cmd, formatter.FormatText, formatter.FormatJSON)
	if err != nil {
		return err
	}
	workers := int(cmd.Int("workers"))
	if workers < 1 || workers > 10 {
		return fmt.Errorf("%w: --workers must be between 1 and 10", shared.ErrInvalidArgument)
	}
	if cmd.Float("rate") < 0 {
		return fmt.Errorf("%w: --rate must not be negative", shared.ErrInvalidArgument)
	}

	jobs, err := r.readJobs(cmd.String("file"))
	if err != nil {
		return err
	}

	var sink models.Sink
	if cmd.Bool("save") {
		if sink, err = r.store(); err != nil {
			return err
		}
	}

	logger := shared.WithLogger(r.logger, "command", cmd.Name)
	engine := tasks.NewEngine(r.registry, orchestrator.New(orchestrator.ConfigFrom(r.config), logger), r.merger, sink, logger)

	var prog chan tasks.ProgressUpdate
	done := make(chan struct{})
	if cmd.Bool("progress") {
		prog = make(chan tasks.ProgressUpdate, 64)
		go func() {
			defer close(done)
			for u := range prog {
				fmt.Fprintln(r.errOutput, u.Message)
			}
		}()
	} else {
		close(done)
	}

	result, err := engine.BulkLookup(ctx, prog, jobs, tasks.BulkOpts{
		NumWorkers: workers,
		RateLimit:  cmd.Float("rate"),
		Providers:  cmd.StringSlice("provider"),
		Save:       cmd.Bool("save"),
	})
	if prog != nil {
		close(prog)
	}
	<-done
	if err != nil {
		return err
	}

	if path := cmd.String("manifest"); path != "" {
		if err := result.WriteManifest(path); err != nil {
			return err
		}
		r.logger.Info("manifest written", "path", path)
	}

	if err := r.write(format, result.Manifest(), func() []byte { return r.bulkText(result) }); err != nil {
		return err
	}
	if result.Cancelled {
		return fmt.Errorf("bulk lookup interrupted: %w", ctx.Err())
	}
	return nil
}

// readJobs parses the query list at path; "-" reads the runner's input.
func (r *Runner) readJobs(path string) ([]tasks.Job, error) {
	var in io.Reader = r.input
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open query list: %w", err)
		}
		defer f.Close()
		in = f
	}

	jobs, err := tasks.ParseQueries(in)
	if err != nil {
		return nil, err
	}
	if len(jobs) == 0 {
		return nil, fmt.Errorf("%w: %s has no queries", shared.ErrInvalidInput, path)
	}
	return jobs, nil
}

func (r *Runner) bulkText(result *tasks.BulkResult) []byte {
	var sb strings.Builder
	for _, res := range result.Results {
		if !res.OK() {
			fmt.Fprintf(&sb, "%s line %d %s: %v\n", r.palette.Err("✗"), res.Job.Line, res.Job, res.Err)
			continue
		}
		saved := ""
		if res.Saved {
			saved = " (saved)"
		}
		fmt.Fprintf(&sb, "%s line %d %s - %s%s\n", r.palette.OK("✓"), res.Job.Line,
			strings.Join(res.Record.Artists, ", "), res.Record.Title, saved)
	}
	fmt.Fprintf(&sb, "\n%d/%d found, %d failed, %d saved in %s\n",
		result.Succeeded, result.Total, result.Failed, result.Saved, result.Elapsed.Round(time.Millisecond))
	return []byte(sb.String())
}
