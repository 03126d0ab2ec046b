package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/tunemeld/internal/formatter"
	"github.com/desertthunder/tunemeld/internal/merge"
	"github.com/desertthunder/tunemeld/internal/models"
	"github.com/desertthunder/tunemeld/internal/orchestrator"
	"github.com/desertthunder/tunemeld/internal/registry"
	"github.com/desertthunder/tunemeld/internal/repositories"
	"github.com/desertthunder/tunemeld/internal/shared"
	"github.com/desertthunder/tunemeld/internal/ui"
	"github.com/urfave/cli/v3"
)

// recordStore is the part of [repositories.RecordRepository] the CLI needs.
type recordStore interface {
	models.Sink
	List(criteria map[string]any) ([]*models.PersistedRecord, error)
}

// Runner holds all dependencies for CLI commands and provides methods for each command action.
type Runner struct {
	config     *shared.Config
	configSet  bool
	registry   *registry.Registry
	merger     *merge.Merger
	records    recordStore
	db         *sql.DB
	httpClient *http.Client
	logger     *log.Logger
	input      io.Reader
	output     io.Writer
	errOutput  io.Writer
	palette    *ui.Palette
	now        func() time.Time
}

// RunnerOpts contains configuration options for creating a Runner.
//
// A nil Config is loaded from the --config flag before a command runs; a nil Registry is built
// from the enabled services and a nil Records store is opened from the database settings on first use.
type RunnerOpts struct {
	Config     *shared.Config
	Registry   *registry.Registry
	Records    recordStore
	HTTPClient *http.Client
	Logger     *log.Logger
	Input      io.Reader
	Output     io.Writer
	ErrOutput  io.Writer
	Now        func() time.Time
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	configSet := opts.Config != nil
	if opts.Config == nil {
		opts.Config = shared.DefaultConfig()
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Input == nil {
		opts.Input = os.Stdin
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.ErrOutput == nil {
		opts.ErrOutput = os.Stderr
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Runner{
		config:     opts.Config,
		configSet:  configSet,
		registry:   opts.Registry,
		merger:     merge.New(opts.Config.Priority),
		records:    opts.Records,
		httpClient: opts.HTTPClient,
		logger:     opts.Logger,
		input:      opts.Input,
		output:     opts.Output,
		errOutput:  opts.ErrOutput,
		palette:    ui.DefaultPalette,
		now:        opts.Now,
	}
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		setupCommand, providersCommand, trackCommand, albumCommand, lyricsCommand, downloadCommand, bulkCommand, recordsCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// before loads the configuration named by --config, applies the log level and builds the registry.
func (r *Runner) before(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	if !r.configSet {
		config, err := loadConfig(cmd.String("config"))
		if err != nil {
			return ctx, err
		}
		r.config = config
		r.merger = merge.New(config.Priority)
	}

	level := shared.ParseLogLevel(r.config.Log.Level)
	if cmd.Bool("debug") {
		level = log.DebugLevel
	}
	shared.SetLogLevel(r.logger, level)

	if r.registry == nil {
		reg, err := r.bootstrap()
		if err != nil {
			return ctx, err
		}
		r.registry = reg
	}
	return ctx, nil
}

// after closes the record database if a command opened it.
func (r *Runner) after(ctx context.Context, cmd *cli.Command) error {
	if r.db == nil {
		return nil
	}
	err := r.db.Close()
	r.db = nil
	r.records = nil
	return err
}

// loadConfig reads path when it exists and falls back to the embedded defaults otherwise.
func loadConfig(path string) (*shared.Config, error) {
	if path == "" {
		return shared.DefaultConfig(), nil
	}
	if _, err := os.Stat(path); err != nil {
		return shared.DefaultConfig(), nil
	}
	config, err := shared.LoadConfig(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config %s: %w", path, err)
	}
	return config, nil
}

// store returns the record store, opening the configured database and running migrations on first use.
func (r *Runner) store() (recordStore, error) {
	if r.records != nil {
		return r.records, nil
	}

	db, err := openDatabase(r.config.Database)
	if err != nil {
		return nil, err
	}
	r.db = db
	r.records = repositories.NewRecordRepository(db)
	return r.records, nil
}

func openDatabase(cfg shared.DatabaseConfig) (*sql.DB, error) {
	db, err := shared.NewDatabase(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to create database: %w", err)
	}
	shared.ConfigureDatabase(db, cfg)

	if err := shared.RunMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return db, nil
}

// write renders v in format and writes it to the output. text renders the plain form.
func (r *Runner) write(format formatter.Format, v any, text func() []byte) error {
	var data []byte
	switch format {
	case formatter.FormatJSON:
		var err error
		if data, err = formatter.ToJSON(v); err != nil {
			return err
		}
	case formatter.FormatText:
		data = text()
	default:
		return fmt.Errorf("%w: %s output is not supported here", shared.ErrInvalidArgument, format)
	}
	return formatter.Write(r.output, data)
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

// warn prints provider failures the result was produced despite.
func (r *Runner) warn(warnings []models.Warning) {
	if s := ui.Warnings(r.palette, warnings); s != "" {
		fmt.Fprint(r.errOutput, s)
	}
}

// fetcher builds an orchestrator for one command. With --progress, updates are printed to the
// error output; the returned stop func must be called once every batch has returned.
func (r *Runner) fetcher(cmd *cli.Command) (*orchestrator.Orchestrator, func()) {
	cfg := orchestrator.ConfigFrom(r.config)
	logger := shared.WithLogger(r.logger, "command", cmd.Name)
	if !cmd.Bool("progress") {
		return orchestrator.New(cfg, logger), func() {}
	}

	updates := make(chan orchestrator.ProgressUpdate, 64)
	done := ui.Progress(r.errOutput, r.palette, updates)
	return orchestrator.New(cfg, logger, orchestrator.WithProgress(updates)), func() {
		close(updates)
		<-done
	}
}
