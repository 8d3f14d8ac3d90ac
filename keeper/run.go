package keeper

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hazyhaar/profkeeper/keeper/internal/index"
	"github.com/hazyhaar/profkeeper/keeper/internal/labels"
	"github.com/hazyhaar/profkeeper/keeper/internal/lifecycle"
	"github.com/hazyhaar/profkeeper/keeper/internal/metrics"
	"github.com/hazyhaar/profkeeper/keeper/internal/ordering"
	"github.com/hazyhaar/profkeeper/keeper/internal/queue"
	"github.com/hazyhaar/profkeeper/keeper/internal/record"
	"github.com/hazyhaar/profkeeper/keeper/internal/upsert"
)

// Trigger says what started a run.
type Trigger string

const (
	TriggerScheduled Trigger = "scheduled"
	TriggerManual    Trigger = "manual"
)

// Summary is the outcome of RunOnce.
type Summary struct {
	metrics.Run
	// Skipped is set when another run held the lock; nothing was done.
	Skipped bool `json:"skipped"`
	// Moved is the number of rows the end-of-run reorder displaced.
	Moved int `json:"moved"`
}

// RunOnce performs one reconciliation run. When another run holds the
// lock it returns a skipped Summary and a nil error.
//
// A store that cannot be opened or read at session start aborts the run
// with ErrStoreUnavailable before any record is processed. Failures on
// individual targets are counted, marked on the queue and do not stop
// the run.
func (k *Keeper) RunOnce(ctx context.Context, trigger Trigger) (Summary, error) {
	ok, err := k.lock.TryAcquire(string(trigger))
	if err != nil {
		return Summary{}, fmt.Errorf("keeper: acquire lock: %w", err)
	}
	if !ok {
		level := slog.LevelWarn
		if trigger == TriggerScheduled {
			level = slog.LevelDebug
		}
		k.logger.Log(ctx, level, "keeper: run already active, skipping",
			"trigger", trigger, "lock", k.lock.Path())
		return Summary{Run: metrics.Run{Trigger: string(trigger)}, Skipped: true}, nil
	}
	defer k.release()
	return k.run(ctx, trigger)
}

func (k *Keeper) run(ctx context.Context, trigger Trigger) (Summary, error) {
	sum := Summary{Run: metrics.Run{ID: k.runID(), Trigger: string(trigger), Started: k.now()}}

	s, err := k.open(ctx)
	if err != nil {
		return sum, err
	}
	idx, err := index.Build(ctx, s.profiles, k.schema, k.logger)
	if err != nil {
		return sum, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	lbls, err := labels.Load(ctx, s.labels)
	if err != nil {
		return sum, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	pending, err := s.queue.Pending(ctx)
	if err != nil {
		return sum, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}

	k.logger.Info("keeper: run started",
		"run_id", sum.ID, "trigger", trigger, "pending", len(pending), "rows", idx.Len())

	engine := upsert.New(s.profiles, k.schema, idx,
		upsert.WithLogger(k.logger), upsert.WithMode(k.mode))
	canon := &upsert.Canonicalizer{Schema: k.schema, Dates: k.dates, Label: lbls.For}

	for _, e := range pending {
		if ctx.Err() != nil {
			break
		}
		sum.Attempted++
		res, state, reason, err := k.reconcile(ctx, engine, canon, e)
		if err != nil {
			sum.Failed++
			k.logger.Error("keeper: record failed", "target", e.Target, "error", err)
			k.mark(ctx, s.queue, e, queue.Failed, "", err.Error())
			continue
		}
		switch res.Status {
		case upsert.StatusNew:
			sum.New++
		case upsert.StatusUpdated:
			sum.Updated++
		case upsert.StatusUnchanged:
			sum.Unchanged++
		}
		status := queue.Done
		if state == lifecycle.Dead {
			status = queue.Unreachable
		}
		k.mark(ctx, s.queue, e, status, res.Key, remark(res, reason))
	}
	if err := ctx.Err(); err != nil {
		return sum, fmt.Errorf("keeper: run %s interrupted: %w", sum.ID, err)
	}

	written := sum.Attempted - sum.Failed
	if k.mode == upsert.ModeBulk && written > 0 {
		moved, err := ordering.Reorder(ctx, s.profiles, k.schema)
		if err != nil {
			k.logger.Error("keeper: reorder failed", "run_id", sum.ID, "error", err)
		}
		sum.Moved = moved
	}

	// Counts come from a fresh read so they reflect the reordered store;
	// a failed read leaves them unknown.
	if final, err := index.Build(ctx, s.profiles, k.schema, k.logger); err != nil {
		k.logger.Warn("keeper: state counts not computed", "run_id", sum.ID, "error", err)
	} else {
		engine.Reset(final)
		counts := engine.Index().Counts()
		sum.Active = metrics.Known(counts[string(lifecycle.Active)])
		sum.Unverified = metrics.Known(counts[string(lifecycle.Unverified)])
		sum.Banned = metrics.Known(counts[string(lifecycle.Banned)])
		sum.Dead = metrics.Known(counts[string(lifecycle.Dead)])
		sum.TotalRows = metrics.Known(final.Len())
	}

	sum.Finished = k.now()
	if err := s.runs.Record(ctx, sum.Run); err != nil {
		k.logger.Error("keeper: record run metrics", "run_id", sum.ID, "error", err)
	}

	k.logger.Info("keeper: run finished",
		"run_id", sum.ID,
		"attempted", sum.Attempted,
		"new", sum.New,
		"updated", sum.Updated,
		"unchanged", sum.Unchanged,
		"failed", sum.Failed,
		"moved", sum.Moved,
		"duration", sum.Finished.Sub(sum.Started))
	return sum, nil
}

// reconcile produces, canonicalizes and upserts one queue target. It
// returns the derived lifecycle state and the producer's failure reason.
func (k *Keeper) reconcile(ctx context.Context, engine *upsert.Engine, canon *upsert.Canonicalizer, e queue.Entry) (upsert.Result, lifecycle.State, string, error) {
	b, err := k.producer.Produce(ctx, e.Target)
	if err != nil {
		return upsert.Result{}, "", "", err
	}
	b.QueueRef = e.Pos
	if e.ID != "" && record.IsBlank(b.Field(k.schema.Key)) {
		if b.Fields == nil {
			b.Fields = make(map[string]string)
		}
		b.Fields[k.schema.Key] = e.ID
	}

	rec := canon.Canonical(b, k.now())
	res, err := engine.Upsert(ctx, rec)
	if err != nil {
		return upsert.Result{}, "", "", err
	}
	return res, lifecycle.State(rec[k.schema.State]), b.FailureReason, nil
}

func (k *Keeper) mark(ctx context.Context, q *queue.Queue, e queue.Entry, status queue.Status, id, remark string) {
	if err := q.Mark(ctx, e, status, id, remark); err != nil {
		k.logger.Error("keeper: queue status not written",
			"target", e.Target, "status", status, "error", err)
	}
}

// remark renders "updated: CITY, BIO" or "new (Page timeout)".
func remark(res upsert.Result, reason string) string {
	var b strings.Builder
	b.WriteString(string(res.Status))
	if len(res.Changed) > 0 {
		b.WriteString(": ")
		b.WriteString(strings.Join(res.Changed, ", "))
	}
	if reason != "" {
		b.WriteString(" (")
		b.WriteString(reason)
		b.WriteString(")")
	}
	return b.String()
}
