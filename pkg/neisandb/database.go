// Package neisandb wires a directory of collection files into one
// database handle: a shared concurrency limiter, a shared codec and
// metrics registry, and a registry of opened collections (spec §5).
package neisandb

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/neisanworks/neisandb/internal/logger"
	"github.com/neisanworks/neisandb/internal/metrics"
	"github.com/neisanworks/neisandb/pkg/codec"
	"github.com/neisanworks/neisandb/pkg/collection"
)

// DefaultConcurrency is the database-wide concurrency limiter's default
// capacity (spec §5), clamped to [MinConcurrency, MaxConcurrency].
const (
	DefaultConcurrency = 25
	MinConcurrency     = 1
	MaxConcurrency     = 100
)

// DatabaseOptions configures a Database (spec §5/§6's "database-level
// options").
type DatabaseOptions struct {
	Directory   string
	Concurrency int64
	Codec       codec.Codec
	Logger      *logger.Logger
}

func (o *DatabaseOptions) setDefaults() {
	if o.Directory == "" {
		if wd, err := os.Getwd(); err == nil {
			o.Directory = filepath.Join(wd, "neisandb")
		}
	}
	if o.Concurrency <= 0 {
		o.Concurrency = DefaultConcurrency
	}
	if o.Concurrency < MinConcurrency {
		o.Concurrency = MinConcurrency
	}
	if o.Concurrency > MaxConcurrency {
		o.Concurrency = MaxConcurrency
	}
	if o.Codec == nil {
		o.Codec = codec.NewGobCodec()
	}
	if o.Logger == nil {
		o.Logger = logger.Global()
	}
}

// Database is a directory of collection files sharing one concurrency
// limiter, codec, metrics registry, and logger (spec §5).
type Database struct {
	opts DatabaseOptions

	metrics *metrics.Metrics
	limiter *semaphore.Weighted
	log     *logger.Logger

	mu          sync.Mutex
	collections map[string]*collection.Collection
}

// Open creates a Database rooted at opts.Directory. It does not open
// any collection files until Collection is called for each name (spec
// §5's lazy-open lifecycle).
func Open(opts DatabaseOptions) (*Database, error) {
	opts.setDefaults()
	if opts.Directory == "" {
		return nil, fmt.Errorf("neisandb: directory is required")
	}

	return &Database{
		opts:        opts,
		metrics:     metrics.New(),
		limiter:     semaphore.NewWeighted(opts.Concurrency),
		log:         opts.Logger,
		collections: make(map[string]*collection.Collection),
	}, nil
}

// Collection opens (or returns the already-open) collection named by
// copts.Name, wiring in the database's shared limiter, codec, metrics,
// and logger unless copts overrides them.
func (d *Database) Collection(copts collection.Options) (*collection.Collection, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if c, ok := d.collections[copts.Name]; ok {
		return c, nil
	}

	if copts.Directory == "" {
		copts.Directory = d.opts.Directory
	}
	if copts.Codec == nil {
		copts.Codec = d.opts.Codec
	}
	if copts.Limiter == nil {
		copts.Limiter = d.limiter
	}
	if copts.Metrics == nil {
		copts.Metrics = d.metrics
	}
	if copts.Logger == nil {
		copts.Logger = d.log
	}

	c, err := collection.Open(copts)
	if err != nil {
		return nil, err
	}
	d.collections[copts.Name] = c
	return c, nil
}

// Metrics returns the database's Prometheus registry, for wiring into
// an HTTP /metrics exporter or test assertions.
func (d *Database) Metrics() *metrics.Metrics { return d.metrics }

// Close flushes and closes every opened collection, returning the
// first error encountered (collecting the rest into the log).
func (d *Database) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	var firstErr error
	for name, c := range d.collections {
		if err := c.Close(); err != nil {
			d.log.Error("collection close failed").Str("collection", name).Err(err).Send()
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
