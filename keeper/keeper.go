// Package keeper reconciles scraped profile observations into a tabular
// system of record.
//
// One run drains the target queue: every pending target is fetched by the
// producer, classified, canonicalized and upserted against the profiles
// tab, then the tab is reordered freshest-first and a metrics row is
// appended to the runs tab. A marker file guarantees that at most one run
// mutates the store at a time on a host.
//
//	queue tab → producer → classify → canonical → upsert → reorder → runs tab
//
// Usage:
//
//	k, err := keeper.New(cfg, logger)
//	defer k.Close()
//	k.RegisterMCP(mcpServer)
//	http.ListenAndServe(cfg.Dashboard.Addr, k.Router())
//	k.Schedule(ctx)
package keeper

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hazyhaar/profkeeper/idgen"
	"github.com/hazyhaar/profkeeper/keeper/internal/browser"
	"github.com/hazyhaar/profkeeper/keeper/internal/datefmt"
	"github.com/hazyhaar/profkeeper/keeper/internal/index"
	"github.com/hazyhaar/profkeeper/keeper/internal/labels"
	"github.com/hazyhaar/profkeeper/keeper/internal/metrics"
	"github.com/hazyhaar/profkeeper/keeper/internal/pgbook"
	"github.com/hazyhaar/profkeeper/keeper/internal/producer"
	"github.com/hazyhaar/profkeeper/keeper/internal/queue"
	"github.com/hazyhaar/profkeeper/keeper/internal/record"
	"github.com/hazyhaar/profkeeper/keeper/internal/runlock"
	"github.com/hazyhaar/profkeeper/keeper/internal/scheduler"
	"github.com/hazyhaar/profkeeper/keeper/internal/sheetsbook"
	"github.com/hazyhaar/profkeeper/keeper/internal/sqlitebook"
	"github.com/hazyhaar/profkeeper/keeper/internal/tabular"
	"github.com/hazyhaar/profkeeper/keeper/internal/upsert"
)

// Keeper is the profkeeper orchestrator.
type Keeper struct {
	config *Config
	logger *slog.Logger
	schema *record.Schema
	dates  *datefmt.Normalizer
	mode   upsert.Mode

	book     tabular.Book
	closers  []func() error
	producer producer.Producer
	lock     *runlock.Lock
	runID    idgen.Generator
	now      func() time.Time
}

// Option configures a Keeper.
type Option func(*Keeper)

// WithBook replaces the configured backend.
func WithBook(b tabular.Book) Option { return func(k *Keeper) { k.book = b } }

// WithProducer replaces the browser-backed producer.
func WithProducer(p producer.Producer) Option { return func(k *Keeper) { k.producer = p } }

// WithClock sets the reference instant source used for normalization.
func WithClock(now func() time.Time) Option { return func(k *Keeper) { k.now = now } }

// WithRunID sets the run ID generator.
func WithRunID(gen idgen.Generator) Option { return func(k *Keeper) { k.runID = gen } }

// New validates cfg and opens the configured store. Chrome is only
// started by the first run that fetches a page.
func New(cfg *Config, logger *slog.Logger, opts ...Option) (*Keeper, error) {
	cfg.defaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	schema, err := cfg.schema()
	if err != nil {
		return nil, err
	}

	k := &Keeper{
		config: cfg,
		logger: logger,
		schema: schema,
		dates:  datefmt.New(logger, datefmt.ParsePolicy(cfg.Dates.Unknown)),
		mode:   upsert.ParseMode(cfg.Ordering),
		lock:   runlock.New(cfg.LockPath),
		runID:  idgen.UUIDv7(),
		now:    time.Now,
	}
	for _, o := range opts {
		o(k)
	}

	if k.book == nil {
		if err := k.openBook(context.Background()); err != nil {
			return nil, err
		}
	}
	k.book = tabular.NewThrottledBook(k.book, tabular.RetryConfig{
		Backoff:           cfg.Throttle.Backoff,
		MaxAttempts:       max(cfg.Throttle.MaxAttempts, 0),
		RequestsPerMinute: cfg.Throttle.RequestsPerMinute,
		Logger:            logger,
	})

	if k.producer == nil {
		if err := k.openProducer(); err != nil {
			k.Close()
			return nil, err
		}
	}
	return k, nil
}

func (k *Keeper) openBook(ctx context.Context) error {
	sc := k.config.Store
	switch sc.Backend {
	case BackendMemory:
		k.book = tabular.NewMemoryBook()
	case BackendSQLite:
		b, err := sqlitebook.Open(sc.Path)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
		}
		k.book = b
		k.closers = append(k.closers, b.Close)
	case BackendSheets:
		b, err := sheetsbook.New(ctx, sheetsbook.Config{
			SpreadsheetID:   sc.SpreadsheetID,
			CredentialsFile: sc.CredentialsFile,
			Endpoint:        sc.Endpoint,
		})
		if err != nil {
			return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
		}
		k.book = b
	case BackendPostgres:
		b, err := pgbook.Open(ctx, sc.DSN)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
		}
		k.book = b
		k.closers = append(k.closers, func() error { b.Close(); return nil })
	}
	return nil
}

func (k *Keeper) openProducer() error {
	pc := k.config.Producer
	rules, err := producer.DefaultRules().Apply(pc.Rules)
	if err != nil {
		return fmt.Errorf("%w: producer rules: %w", ErrInvalidConfig, err)
	}
	mgr := browser.NewManager(browser.Config{
		RemoteURL:        pc.RemoteURL,
		Headful:          pc.Headful,
		DisableStealth:   pc.DisableStealth,
		PageTimeout:      pc.PageTimeout,
		RecycleAfter:     pc.RecycleAfter,
		ResourceBlocking: pc.ResourceBlocking,
		Logger:           k.logger,
	})
	k.closers = append(k.closers, mgr.Close)
	k.producer = producer.New(mgr, rules, producer.Config{
		ProfileURL: pc.ProfileURL,
		SourceTag:  pc.SourceTag,
		Logger:     k.logger,
	})
	return nil
}

// Close shuts the browser down and closes the store.
func (k *Keeper) Close() error {
	var first error
	for i := len(k.closers) - 1; i >= 0; i-- {
		if err := k.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	k.closers = nil
	return first
}

// Schema returns the profile schema.
func (k *Keeper) Schema() *record.Schema { return k.schema }

// session is the set of tabs one operation works on.
type session struct {
	profiles tabular.Store
	queue    *queue.Queue
	labels   tabular.Store
	runs     *metrics.Sink
}

func (k *Keeper) open(ctx context.Context) (*session, error) {
	tabs := k.config.Store.Tabs
	profiles, err := k.book.Tab(ctx, tabs.Profiles, k.schema.Columns)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	q, err := k.book.Tab(ctx, tabs.Queue, queue.Header)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	l, err := k.book.Tab(ctx, tabs.Labels, labels.Header)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	r, err := k.book.Tab(ctx, tabs.Runs, metrics.Header)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	return &session{profiles: profiles, queue: queue.New(q), labels: l, runs: metrics.NewSink(r)}, nil
}

// Lookup returns the stored record of key.
func (k *Keeper) Lookup(ctx context.Context, key string) (record.Record, error) {
	s, err := k.open(ctx)
	if err != nil {
		return nil, err
	}
	idx, err := index.Build(ctx, s.profiles, k.schema, k.logger)
	if err != nil {
		return nil, err
	}
	e, ok := idx.Lookup(record.Clean(key))
	if !ok {
		return nil, ErrNotFound
	}
	return e.Snapshot, nil
}

// Profiles returns up to limit stored records in row order. limit <= 0
// returns all of them.
func (k *Keeper) Profiles(ctx context.Context, limit int) ([]record.Record, error) {
	s, err := k.open(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := s.profiles.ReadAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("keeper: read profiles: %w", err)
	}
	if limit > 0 && limit < len(rows) {
		rows = rows[:limit]
	}
	out := make([]record.Record, len(rows))
	for i, row := range rows {
		out[i] = k.schema.FromRow(row)
	}
	return out, nil
}

// Runs returns up to n recorded runs, newest first.
func (k *Keeper) Runs(ctx context.Context, n int) ([]metrics.Run, error) {
	s, err := k.open(ctx)
	if err != nil {
		return nil, err
	}
	return s.runs.Recent(ctx, n)
}

// Enqueue adds a pending target to the queue and returns its position.
func (k *Keeper) Enqueue(ctx context.Context, target string) (int, error) {
	s, err := k.open(ctx)
	if err != nil {
		return 0, err
	}
	return s.queue.Enqueue(ctx, target)
}

// Forget deletes the row of key. It takes the run lock, so it fails with
// ErrRunActive while a run is in progress.
func (k *Keeper) Forget(ctx context.Context, key string) (bool, error) {
	ok, err := k.lock.TryAcquire("forget")
	if err != nil {
		return false, err
	}
	if !ok {
		return false, ErrRunActive
	}
	defer k.release()

	s, err := k.open(ctx)
	if err != nil {
		return false, err
	}
	idx, err := index.Build(ctx, s.profiles, k.schema, k.logger)
	if err != nil {
		return false, err
	}
	engine := upsert.New(s.profiles, k.schema, idx, upsert.WithLogger(k.logger))
	removed, err := engine.Forget(ctx, record.Clean(key))
	if err != nil {
		return false, err
	}
	if removed {
		k.logger.Info("keeper: profile forgotten", "key", key)
	}
	return removed, nil
}

func (k *Keeper) release() {
	if err := k.lock.Release(); err != nil {
		k.logger.Error("keeper: release lock", "path", k.lock.Path(), "error", err)
	}
}

// Schedule runs the reconciliation on the configured interval until ctx
// is cancelled.
func (k *Keeper) Schedule(ctx context.Context) {
	run := func(ctx context.Context) error {
		_, err := k.RunOnce(ctx, TriggerScheduled)
		return err
	}
	scheduler.New(run, scheduler.Config{
		Interval:    k.config.Scheduler.Interval,
		SkipInitial: k.config.Scheduler.SkipInitial,
	}, k.logger).Run(ctx)
}

// Start launches the scheduler in the background.
func (k *Keeper) Start(ctx context.Context) {
	go k.Schedule(ctx)
	k.logger.Info("keeper: started",
		"backend", k.config.Store.Backend,
		"interval", k.config.Scheduler.Interval,
		"ordering", k.config.Ordering)
}
