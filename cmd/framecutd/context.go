package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/framecut/framecut-backend/internal/clock"
	"github.com/framecut/framecut-backend/internal/config"
	"github.com/framecut/framecut-backend/internal/db"
	"github.com/framecut/framecut-backend/internal/exports"
	"github.com/framecut/framecut-backend/internal/logging"
	"github.com/framecut/framecut-backend/internal/render"
	"github.com/framecut/framecut-backend/internal/timeline"
)

// Simulated presets; each renders a manifest standing in for an encode.
var simulatedPresets = []string{exports.DefaultPreset, "mov_prores", "webm_vp9"}

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.EnvConfig
	configErr  error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) ensureConfig() (*config.EnvConfig, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		c.config, c.configErr = config.Load(path)
	})
	return c.config, c.configErr
}

// app holds what every command that touches the database needs. close
// releases it in reverse order of acquisition.
type app struct {
	cfg      *config.EnvConfig
	logger   *slog.Logger
	db       *db.DB
	clock    *clock.Monotonic
	timeline *timeline.Store
	ledger   *exports.Ledger
	query    *exports.Query
	registry *render.Registry

	closers []io.Closer
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

// open takes the data-dir lock, builds the logger and opens the database.
// stdout may be nil for the process stdout.
func (c *commandContext) open(stdout io.Writer) (*app, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}

	lock, err := db.Lock(cfg.DataDir())
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, closers: []io.Closer{closerFunc(lock.Unlock)}}

	logger, logCloser := logging.New(logging.Options{
		Level:      cfg.LogLevel(),
		Format:     cfg.LogFormat(),
		File:       cfg.LogFile(),
		MaxSizeMB:  cfg.LogMaxSizeMB(),
		MaxBackups: cfg.LogMaxBackups(),
		Stdout:     stdout,
	})
	a.logger = logger
	a.closers = append(a.closers, logCloser)

	database, err := db.New(cfg.DBPath(), logging.WithComponent(logger, "db"))
	if err != nil {
		a.close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	a.db = database
	a.closers = append(a.closers, database)

	a.clock = clock.New()
	a.timeline = timeline.NewStore(database, a.clock, logging.WithComponent(logger, "timeline"))
	a.ledger = exports.NewLedger(database, a.clock, logging.WithComponent(logger, "ledger"))
	a.query = exports.NewQuery(database)
	a.registry = buildRegistry(cfg.DataDir(), cfg.ExportStepDelay(), a.timeline)
	return a, nil
}

func (a *app) close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func buildRegistry(root string, stepDelay time.Duration, store *timeline.Store) *render.Registry {
	reg := render.NewRegistry()
	sim := render.NewSimulated(root, stepDelay)
	for _, preset := range simulatedPresets {
		reg.Register(preset, sim)
	}
	reg.Register("edl", render.NewEDL(root, store))
	return reg
}
